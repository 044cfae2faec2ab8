package memory_test

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/cadence/internal/testutil"
	"github.com/vkngwrapper/cadence/memory"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/mocks"
	"github.com/golang/mock/gomock"
)

func readyAllocator(t *testing.T, ctrl *gomock.Controller, options memory.CreateOptions) (*testutil.Rig, *memory.Allocator) {
	rig := testutil.NewRig(t, ctrl, testutil.HostVisibleSetup)

	allocator, err := memory.New(rig.Logger, rig.Device, options)
	require.NoError(t, err)

	return rig, allocator
}

// mappedArena allocates a host-visible arena of the given size backed by a Go slice
func mappedArena(t *testing.T, ctrl *gomock.Controller, rig *testutil.Rig, allocator *memory.Allocator, size int) (*memory.Arena, []byte) {
	deviceMemory := mocks.EasyMockDeviceMemory(ctrl)
	rig.VulkanDevice.EXPECT().AllocateMemory(gomock.Any(), core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: 1,
	}).Return(deviceMemory, core1_0.VKSuccess, nil)

	backing := make([]byte, size)
	deviceMemory.EXPECT().Map(0, -1, core1_0.MemoryMapFlags(0)).Return(unsafe.Pointer(&backing[0]), core1_0.VKSuccess, nil)
	deviceMemory.EXPECT().Unmap().AnyTimes()
	deviceMemory.EXPECT().Free(nil).AnyTimes()

	arena, err := allocator.Allocate(size, 1)
	require.NoError(t, err)

	require.NoError(t, arena.Map(common.WholeSize, 0))
	return arena, backing
}

func TestArenaRoundTrip(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, allocator := readyAllocator(t, ctrl, memory.CreateOptions{})

	arena, backing := mappedArena(t, ctrl, rig, allocator, 256)

	pattern := make([]byte, 100)
	for i := range pattern {
		pattern[i] = byte(i*7 + 3)
	}

	require.NoError(t, arena.Write(pattern, len(pattern), 0))
	require.Equal(t, pattern, backing[:100])

	out := make([]byte, 100)
	require.NoError(t, arena.Read(out, len(out), 0))
	require.Equal(t, pattern, out)

	require.NoError(t, arena.Write(pattern[:10], 10, 246))
	require.Equal(t, pattern[:10], backing[246:])
}

func TestArenaTypedSlices(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, allocator := readyAllocator(t, ctrl, memory.CreateOptions{})

	arena, _ := mappedArena(t, ctrl, rig, allocator, 64)

	require.NoError(t, memory.WriteSlice(arena, []int32{-5, 10, -4}, 16))

	out := make([]int32, 3)
	require.NoError(t, memory.ReadSlice(arena, out, 16))
	require.Equal(t, []int32{-5, 10, -4}, out)

	// 17 int32s don't fit
	require.ErrorIs(t, memory.WriteSlice(arena, make([]int32, 17), 0), memory.ErrOutOfBounds)
}

func TestArenaBounds(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, allocator := readyAllocator(t, ctrl, memory.CreateOptions{})

	for _, arenaSize := range []int{1, 4, 64, 1000} {
		arena, _ := mappedArena(t, ctrl, rig, allocator, arenaSize)
		buffer := make([]byte, arenaSize+16)

		for _, access := range []struct {
			size   int
			offset int
		}{
			{size: arenaSize + 1, offset: 0},
			{size: 1, offset: arenaSize},
			{size: arenaSize, offset: 1},
			{size: arenaSize/2 + 1, offset: arenaSize/2 + arenaSize%2},
			{size: 0, offset: arenaSize + 1},
			{size: 16, offset: arenaSize},
			{size: 1, offset: math.MaxInt},
			{size: 0, offset: math.MaxInt},
			{size: 16, offset: math.MaxInt - 8},
		} {
			name := fmt.Sprintf("arena %d size %d offset %d", arenaSize, access.size, access.offset)

			err := arena.Write(buffer, access.size, access.offset)
			require.ErrorIs(t, err, memory.ErrOutOfBounds, name)

			err = arena.Read(buffer, access.size, access.offset)
			require.ErrorIs(t, err, memory.ErrOutOfBounds, name)
		}

		// The last byte is always in range
		require.NoError(t, arena.Write(buffer, 1, arenaSize-1))
		require.NoError(t, arena.Free())
	}
}

func TestArenaUnmappedAccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, allocator := readyAllocator(t, ctrl, memory.CreateOptions{})

	arena, _ := mappedArena(t, ctrl, rig, allocator, 32)
	require.NoError(t, arena.Unmap())
	require.False(t, arena.IsMapped())

	buffer := make([]byte, 4)
	require.ErrorIs(t, arena.Write(buffer, 4, 0), memory.ErrNotMapped)
	require.ErrorIs(t, arena.Read(buffer, 4, 0), memory.ErrNotMapped)
	require.ErrorIs(t, arena.Unmap(), memory.ErrNotMapped)
}

func TestArenaDoubleMap(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, allocator := readyAllocator(t, ctrl, memory.CreateOptions{})

	arena, backing := mappedArena(t, ctrl, rig, allocator, 32)

	// The first mapping survives the failed call
	require.ErrorIs(t, arena.Map(16, 0), memory.ErrAlreadyMapped)
	require.True(t, arena.IsMapped())
	require.NoError(t, arena.Write([]byte{9}, 1, 31))
	require.Equal(t, byte(9), backing[31])
}

func TestArenaPartialMapping(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, allocator := readyAllocator(t, ctrl, memory.CreateOptions{})

	deviceMemory := mocks.EasyMockDeviceMemory(ctrl)
	rig.VulkanDevice.EXPECT().AllocateMemory(gomock.Any(), gomock.Any()).Return(deviceMemory, core1_0.VKSuccess, nil)
	backing := make([]byte, 16)
	deviceMemory.EXPECT().Map(16, 16, core1_0.MemoryMapFlags(0)).Return(unsafe.Pointer(&backing[0]), core1_0.VKSuccess, nil)

	arena, err := allocator.Allocate(64, 1)
	require.NoError(t, err)
	require.ErrorIs(t, arena.Map(16, math.MaxInt), memory.ErrOutOfBounds)
	require.ErrorIs(t, arena.Map(math.MaxInt, 16), memory.ErrOutOfBounds)
	require.NoError(t, arena.Map(16, 16))

	require.NoError(t, arena.Write([]byte{1, 2}, 2, 20))
	require.Equal(t, []byte{1, 2}, backing[4:6])

	require.ErrorIs(t, arena.Write([]byte{1}, 1, 8), memory.ErrOutOfBounds)
	require.ErrorIs(t, arena.Write([]byte{1}, 1, 32), memory.ErrOutOfBounds)
	require.ErrorIs(t, arena.Write(make([]byte, 4), 4, 30), memory.ErrOutOfBounds)
}

func TestArenaNotHostVisible(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, allocator := readyAllocator(t, ctrl, memory.CreateOptions{})

	deviceMemory := mocks.EasyMockDeviceMemory(ctrl)
	rig.VulkanDevice.EXPECT().AllocateMemory(gomock.Any(), core1_0.MemoryAllocateInfo{
		AllocationSize:  128,
		MemoryTypeIndex: 0,
	}).Return(deviceMemory, core1_0.VKSuccess, nil)

	arena, err := allocator.Allocate(128, 0)
	require.NoError(t, err)
	require.ErrorIs(t, arena.Map(common.WholeSize, 0), memory.ErrNotHostVisible)
}

func TestAllocateInvalidType(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, allocator := readyAllocator(t, ctrl, memory.CreateOptions{})

	_, err := allocator.Allocate(128, 2)
	require.Error(t, err)

	_, err = allocator.Allocate(128, -1)
	require.Error(t, err)

	_, err = allocator.Allocate(0, 1)
	require.Error(t, err)
}

func TestArenaStaleHandle(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, allocator := readyAllocator(t, ctrl, memory.CreateOptions{})

	arena, _ := mappedArena(t, ctrl, rig, allocator, 32)
	handle := arena.Handle()

	resolved, err := allocator.Resolve(handle)
	require.NoError(t, err)
	require.Same(t, arena, resolved)
	require.Equal(t, 1, allocator.ArenaCount())

	require.NoError(t, arena.Free())
	require.Equal(t, 0, allocator.ArenaCount())

	_, err = allocator.Resolve(handle)
	require.ErrorIs(t, err, memory.ErrStaleHandle)
	require.ErrorIs(t, arena.Free(), memory.ErrStaleHandle)
	require.ErrorIs(t, arena.Map(common.WholeSize, 0), memory.ErrStaleHandle)
}

func TestHeapSizeLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, allocator := readyAllocator(t, ctrl, memory.CreateOptions{
		HeapSizeLimits: []int{0, 100},
	})

	deviceMemory := mocks.EasyMockDeviceMemory(ctrl)
	deviceMemory.EXPECT().Free(nil)
	rig.VulkanDevice.EXPECT().AllocateMemory(gomock.Any(), core1_0.MemoryAllocateInfo{
		AllocationSize:  80,
		MemoryTypeIndex: 1,
	}).Return(deviceMemory, core1_0.VKSuccess, nil)

	arena, err := allocator.Allocate(80, 1)
	require.NoError(t, err)

	// Over the limit, no device call is made
	_, err = allocator.Allocate(40, 1)
	require.Error(t, err)

	stats := allocator.Statistics()
	require.Equal(t, 1, stats[1].BlockCount)
	require.Equal(t, 80, stats[1].BlockBytes)
	require.Equal(t, 0, stats[0].BlockCount)

	require.NoError(t, arena.Free())
	require.Equal(t, 0, allocator.TotalStatistics().BlockBytes)
}

func TestHeapSizeLimitLength(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig := testutil.NewRig(t, ctrl, testutil.HostVisibleSetup)

	_, err := memory.New(rig.Logger, rig.Device, memory.CreateOptions{HeapSizeLimits: []int{1}})
	require.Error(t, err)
}

func TestBuildStatsString(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, allocator := readyAllocator(t, ctrl, memory.CreateOptions{})

	mappedArena(t, ctrl, rig, allocator, 48)

	var stats struct {
		Total struct {
			BlockCount int
			BlockBytes int
		}
		MemoryHeaps []struct {
			Index       int
			MemoryTypes []struct {
				Index int
			}
		}
		Arenas []struct {
			Size            int
			MemoryTypeIndex int
			Mapped          bool
		}
	}
	require.NoError(t, json.Unmarshal([]byte(allocator.BuildStatsString()), &stats))

	require.Equal(t, 1, stats.Total.BlockCount)
	require.Equal(t, 48, stats.Total.BlockBytes)
	require.Len(t, stats.MemoryHeaps, 2)
	require.Len(t, stats.MemoryHeaps[1].MemoryTypes, 1)
	require.Equal(t, 1, stats.MemoryHeaps[1].MemoryTypes[0].Index)
	require.Len(t, stats.Arenas, 1)
	require.Equal(t, 48, stats.Arenas[0].Size)
	require.True(t, stats.Arenas[0].Mapped)
}

func TestAllocatorDestroyFreesLeaks(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, allocator := readyAllocator(t, ctrl, memory.CreateOptions{})

	mappedArena(t, ctrl, rig, allocator, 16)
	mappedArena(t, ctrl, rig, allocator, 16)
	require.Equal(t, 3, rig.Device.LiveObjects())

	allocator.Destroy()
	require.Equal(t, 0, allocator.ArenaCount())
	require.Equal(t, 0, rig.Device.LiveObjects())
}
