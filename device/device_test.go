package device_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/cadence/device"
	"github.com/vkngwrapper/cadence/internal/testutil"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/golang/mock/gomock"
)

func TestResolveQueueFamiliesPrefersDedicated(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig := testutil.NewRig(t, ctrl, testutil.HostVisibleSetup)

	rig.PhysicalDevice.EXPECT().QueueFamilyProperties().Return([]*core1_0.QueueFamilyProperties{
		{QueueFlags: core1_0.QueueGraphics | core1_0.QueueCompute | core1_0.QueueTransfer, QueueCount: 16},
		{QueueFlags: core1_0.QueueCompute | core1_0.QueueTransfer, QueueCount: 2},
		{QueueFlags: core1_0.QueueTransfer, QueueCount: 1},
	})

	indices, err := device.ResolveQueueFamilies(rig.Context)
	require.NoError(t, err)
	require.Equal(t, 0, indices.Graphics)
	require.Equal(t, 1, indices.Compute)
	require.Equal(t, 2, indices.Transfer)
	require.Nil(t, indices.Present)
	require.Equal(t, []int{0, 1, 2}, indices.Unique())
}

func TestResolveQueueFamiliesSingleFamily(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig := testutil.NewRig(t, ctrl, testutil.HostVisibleSetup)

	rig.PhysicalDevice.EXPECT().QueueFamilyProperties().Return([]*core1_0.QueueFamilyProperties{
		{QueueFlags: core1_0.QueueGraphics | core1_0.QueueCompute, QueueCount: 1},
	})

	indices, err := device.ResolveQueueFamilies(rig.Context)
	require.NoError(t, err)
	require.Equal(t, device.QueueFamilyIndices{Graphics: 0, Compute: 0, Transfer: 0}, indices)
	require.Equal(t, []int{0}, indices.Unique())
}

func TestResolveQueueFamiliesMissingCompute(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig := testutil.NewRig(t, ctrl, testutil.HostVisibleSetup)

	rig.PhysicalDevice.EXPECT().QueueFamilyProperties().Return([]*core1_0.QueueFamilyProperties{
		{QueueFlags: core1_0.QueueGraphics | core1_0.QueueTransfer, QueueCount: 1},
	})

	_, err := device.ResolveQueueFamilies(rig.Context)
	require.ErrorContains(t, err, "failed to find required queue families")
}

func TestUniqueIncludesPresent(t *testing.T) {
	present := 3
	indices := device.QueueFamilyIndices{Graphics: 0, Compute: 1, Transfer: 1, Present: &present}
	require.Equal(t, []int{0, 1, 3}, indices.Unique())

	present = 0
	require.Equal(t, []int{0, 1}, indices.Unique())
}

func TestFindMemoryType(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig := testutil.NewRig(t, ctrl, testutil.HostVisibleSetup)

	index, err := rig.Context.FindMemoryType(0xffffffff, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	require.NoError(t, err)
	require.Equal(t, 1, index)

	index, err = rig.Context.FindMemoryType(0xffffffff, core1_0.MemoryPropertyDeviceLocal)
	require.NoError(t, err)
	require.Equal(t, 0, index)

	// Type 1 is excluded by the bits
	_, err = rig.Context.FindMemoryType(0x1, core1_0.MemoryPropertyHostVisible)
	require.Error(t, err)

	require.False(t, rig.Context.IsMemoryTypeHostNonCoherent(1))
	require.Equal(t, 1, rig.Context.MemoryTypeIndexToHeapIndex(1))
}

func TestDestroyWithLiveObjects(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig := testutil.NewRig(t, ctrl, testutil.HostVisibleSetup)

	releaseBuffer := rig.Device.Track("buffer")
	releaseArena := rig.Device.Track("arena")
	require.Equal(t, 2, rig.Device.LiveObjects())

	err := rig.Device.Destroy()
	require.True(t, errors.Is(err, device.ErrObjectsOutstanding))
	require.ErrorContains(t, err, "1 arena, 1 buffer")

	releaseBuffer()
	releaseBuffer()
	releaseArena()
	require.Equal(t, 0, rig.Device.LiveObjects())

	rig.VulkanDevice.EXPECT().WaitIdle().Return(core1_0.VKSuccess, nil)
	rig.VulkanDevice.EXPECT().Destroy(nil)
	require.NoError(t, rig.Device.Destroy())

	// Second destroy is a no-op
	require.NoError(t, rig.Device.Destroy())
}

func TestQueueUnknownFamilyPanics(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig := testutil.NewRig(t, ctrl, testutil.HostVisibleSetup)

	require.Panics(t, func() {
		rig.Device.Queue(4)
	})
}
