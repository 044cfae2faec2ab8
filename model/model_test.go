package model_test

import (
	"encoding/binary"
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/cadence/internal/testutil"
	"github.com/vkngwrapper/cadence/memory"
	"github.com/vkngwrapper/cadence/model"
	"github.com/vkngwrapper/cadence/pipeline"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/mocks"
	"github.com/golang/mock/gomock"
)

func readyAllocator(t *testing.T, ctrl *gomock.Controller) (*testutil.Rig, *memory.Allocator) {
	rig := testutil.NewRig(t, ctrl, testutil.HostVisibleSetup)

	allocator, err := memory.New(rig.Logger, rig.Device, memory.CreateOptions{})
	require.NoError(t, err)

	return rig, allocator
}

func expectBuffer(ctrl *gomock.Controller, vkDevice *mocks.MockDevice, size int, usage core1_0.BufferUsageFlags, requirements core1_0.MemoryRequirements) *mocks.MockBuffer {
	buffer := mocks.NewMockBuffer(ctrl)
	buffer.EXPECT().MemoryRequirements().Return(&requirements)
	buffer.EXPECT().Destroy(nil)

	vkDevice.EXPECT().CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	}).Return(buffer, core1_0.VKSuccess, nil)
	return buffer
}

func TestFlatVertexLayout(t *testing.T) {
	require.Equal(t, uintptr(20), unsafe.Sizeof(pipeline.FlatVertex{}))

	square := model.Square()
	require.Equal(t, 80, square.VertexDataSize())
	require.Equal(t, 24, square.IndexDataSize())
}

func TestModelUploadAndDraw(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, allocator := readyAllocator(t, ctrl)
	vkDevice := rig.VulkanDevice

	vertexBuffer := expectBuffer(ctrl, vkDevice, 80, core1_0.BufferUsageVertexBuffer,
		core1_0.MemoryRequirements{Size: 80, Alignment: 16, MemoryTypeBits: 0x3})
	indexBuffer := expectBuffer(ctrl, vkDevice, 24, core1_0.BufferUsageIndexBuffer,
		core1_0.MemoryRequirements{Size: 24, Alignment: 64, MemoryTypeBits: 0x2})

	// Indices follow the vertices at the next 64 byte boundary
	deviceMemory := mocks.EasyMockDeviceMemory(ctrl)
	vkDevice.EXPECT().AllocateMemory(gomock.Any(), core1_0.MemoryAllocateInfo{
		AllocationSize:  152,
		MemoryTypeIndex: 1,
	}).Return(deviceMemory, core1_0.VKSuccess, nil)
	vertexBuffer.EXPECT().BindBufferMemory(deviceMemory, 0).Return(core1_0.VKSuccess, nil)
	indexBuffer.EXPECT().BindBufferMemory(deviceMemory, 128).Return(core1_0.VKSuccess, nil)

	backing := make([]byte, 152)
	deviceMemory.EXPECT().Map(0, -1, core1_0.MemoryMapFlags(0)).Return(unsafe.Pointer(&backing[0]), core1_0.VKSuccess, nil)
	deviceMemory.EXPECT().Unmap()

	square, err := model.New(rig.Device, allocator, model.Square())
	require.NoError(t, err)
	require.Equal(t, 6, square.IndexCount())
	require.Equal(t, 4, rig.Device.LiveObjects())

	// First vertex: position then color
	require.Equal(t, float32(-0.8), math.Float32frombits(binary.LittleEndian.Uint32(backing[0:])))
	require.Equal(t, float32(0.8), math.Float32frombits(binary.LittleEndian.Uint32(backing[4:])))
	require.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(backing[8:])))
	// Last vertex is blue
	require.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(backing[76:])))

	indices := make([]uint32, 6)
	for i := range indices {
		indices[i] = binary.LittleEndian.Uint32(backing[128+4*i:])
	}
	require.Equal(t, []uint32{0, 1, 2, 2, 1, 3}, indices)

	cmd := mocks.NewMockCommandBuffer(ctrl)
	gomock.InOrder(
		cmd.EXPECT().CmdBindVertexBuffers(0, []core1_0.Buffer{vertexBuffer}, []int{0}),
		cmd.EXPECT().CmdBindIndexBuffer(indexBuffer, 0, core1_0.IndexTypeUInt32),
		cmd.EXPECT().CmdDrawIndexed(6, 1, 0, 0, 0),
	)
	square.Bind(cmd)
	square.Draw(cmd)

	deviceMemory.EXPECT().Free(nil)
	square.Destroy()
	require.Equal(t, 1, rig.Device.LiveObjects())
	require.Equal(t, 0, allocator.ArenaCount())

	// Destroying twice does nothing
	square.Destroy()
}

func TestModelNoSharedMemoryType(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, allocator := readyAllocator(t, ctrl)

	expectBuffer(ctrl, rig.VulkanDevice, 80, core1_0.BufferUsageVertexBuffer,
		core1_0.MemoryRequirements{Size: 80, Alignment: 16, MemoryTypeBits: 0x1})
	expectBuffer(ctrl, rig.VulkanDevice, 24, core1_0.BufferUsageIndexBuffer,
		core1_0.MemoryRequirements{Size: 24, Alignment: 16, MemoryTypeBits: 0x2})

	_, err := model.New(rig.Device, allocator, model.Square())
	require.Error(t, err)

	// Both buffers were destroyed and nothing was allocated
	require.Equal(t, 1, rig.Device.LiveObjects())
	require.Equal(t, 0, allocator.ArenaCount())
}

func TestModelRejectsBadData(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, allocator := readyAllocator(t, ctrl)

	testCases := map[string]model.VertexData{
		"no vertices": {Indices: []uint32{0}},
		"no indices":  {Vertices: model.Square().Vertices},
		"index past last vertex": {
			Vertices: model.Square().Vertices,
			Indices:  []uint32{0, 1, 4},
		},
	}

	for name, data := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := model.New(rig.Device, allocator, data)
			require.Error(t, err)
		})
	}
	require.Equal(t, 1, rig.Device.LiveObjects())
}
