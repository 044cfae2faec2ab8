package command_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/cadence/command"
	"github.com/vkngwrapper/cadence/internal/testutil"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/mocks"
	"github.com/golang/mock/gomock"
)

type poolFixture struct {
	rig    *testutil.Rig
	queue  *mocks.MockQueue
	vkPool *mocks.MockCommandPool
	pool   *command.Pool
}

func readyPool(t *testing.T, ctrl *gomock.Controller) *poolFixture {
	rig := testutil.NewRig(t, ctrl, testutil.HostVisibleSetup)

	queue := mocks.NewMockQueue(ctrl)
	rig.VulkanDevice.EXPECT().GetQueue(0, 0).Return(queue)

	vkPool := mocks.NewMockCommandPool(ctrl)
	rig.VulkanDevice.EXPECT().CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateTransient | core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: 0,
	}).Return(vkPool, core1_0.VKSuccess, nil)

	pool, err := command.NewPool(rig.Device, 0)
	require.NoError(t, err)
	require.Equal(t, queue, pool.Queue())

	return &poolFixture{
		rig:    rig,
		queue:  queue,
		vkPool: vkPool,
		pool:   pool,
	}
}

func (f *poolFixture) expectAllocate(ctrl *gomock.Controller, count int) []core1_0.CommandBuffer {
	var buffers []core1_0.CommandBuffer
	for i := 0; i < count; i++ {
		buffers = append(buffers, mocks.NewMockCommandBuffer(ctrl))
	}

	f.rig.VulkanDevice.EXPECT().AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        f.vkPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	}).Return(buffers, core1_0.VKSuccess, nil)

	return buffers
}

func TestOneShotSubmit(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := readyPool(t, ctrl)

	buffers := f.expectAllocate(ctrl, 1)
	buffer := buffers[0].(*mocks.MockCommandBuffer)

	gomock.InOrder(
		buffer.EXPECT().Begin(core1_0.CommandBufferBeginInfo{
			Flags: core1_0.CommandBufferUsageOneTimeSubmit,
		}).Return(core1_0.VKSuccess, nil),
		buffer.EXPECT().End().Return(core1_0.VKSuccess, nil),
		f.queue.EXPECT().Submit(nil, []core1_0.SubmitInfo{
			{CommandBuffers: buffers},
		}).Return(core1_0.VKSuccess, nil),
		f.queue.EXPECT().WaitIdle().Return(core1_0.VKSuccess, nil),
		f.rig.VulkanDevice.EXPECT().FreeCommandBuffers(buffers),
	)

	cmd, err := f.pool.BeginOneShot()
	require.NoError(t, err)
	require.NoError(t, f.pool.SubmitAndWait(cmd))
}

func TestSubmitFailureStillFrees(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := readyPool(t, ctrl)

	buffers := f.expectAllocate(ctrl, 2)
	for _, buffer := range buffers {
		buffer.(*mocks.MockCommandBuffer).EXPECT().End().Return(core1_0.VKSuccess, nil)
	}

	f.queue.EXPECT().Submit(nil, gomock.Any()).Return(core1_0.VKErrorDeviceLost, core1_0.VKErrorDeviceLost.ToError())
	f.rig.VulkanDevice.EXPECT().FreeCommandBuffers(buffers)

	allocated, err := f.pool.Allocate(2)
	require.NoError(t, err)

	err = f.pool.SubmitAndWait(allocated...)
	require.Error(t, err)
	require.True(t, errors.Is(err, core1_0.VKErrorDeviceLost.ToError()))
}

func TestEndFailureStillFrees(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := readyPool(t, ctrl)

	buffers := f.expectAllocate(ctrl, 1)
	buffers[0].(*mocks.MockCommandBuffer).EXPECT().End().Return(core1_0.VKErrorOutOfHostMemory, core1_0.VKErrorOutOfHostMemory.ToError())
	f.rig.VulkanDevice.EXPECT().FreeCommandBuffers(buffers)

	allocated, err := f.pool.Allocate(1)
	require.NoError(t, err)
	require.Error(t, f.pool.SubmitAndWait(allocated...))
}

func TestAllocateInvalidCount(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := readyPool(t, ctrl)

	_, err := f.pool.Allocate(0)
	require.Error(t, err)
}

func TestPoolDestroyReleasesDevice(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := readyPool(t, ctrl)

	require.Equal(t, 1, f.rig.Device.LiveObjects())

	f.vkPool.EXPECT().Destroy(nil)
	f.pool.Destroy()
	f.pool.Destroy()

	require.Equal(t, 0, f.rig.Device.LiveObjects())
}
