package pipeline_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/cadence/internal/testutil"
	"github.com/vkngwrapper/cadence/pipeline"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/mocks"
	"github.com/golang/mock/gomock"
)

func spirv(order binary.ByteOrder, words ...uint32) []byte {
	data := make([]byte, 4*(len(words)+1))
	order.PutUint32(data, 0x07230203)
	for i, word := range words {
		order.PutUint32(data[4*(i+1):], word)
	}
	return data
}

func writeShader(t *testing.T, data []byte) string {
	path := filepath.Join(t.TempDir(), "shader.spv")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestReadSPIRV(t *testing.T) {
	words, err := pipeline.ReadSPIRV(spirv(binary.LittleEndian, 0x00010000, 42))
	require.NoError(t, err)
	require.Equal(t, []uint32{0x07230203, 0x00010000, 42}, words)

	words, err = pipeline.ReadSPIRV(spirv(binary.BigEndian, 42))
	require.NoError(t, err)
	require.Equal(t, []uint32{0x07230203, 42}, words)

	_, err = pipeline.ReadSPIRV(nil)
	require.Error(t, err)

	_, err = pipeline.ReadSPIRV([]byte{0x03, 0x02, 0x23, 0x07, 0x00})
	require.Error(t, err)

	_, err = pipeline.ReadSPIRV([]byte{0xde, 0xad, 0xbe, 0xef})
	require.Error(t, err)
}

var storageBindings = []pipeline.BindingInfo{
	{Type: core1_0.DescriptorTypeStorageBuffer, Count: 1, Stages: core1_0.StageCompute},
	{Type: core1_0.DescriptorTypeStorageImage, Count: 1, Stages: core1_0.StageCompute},
}

func loadComputeShader(t *testing.T, ctrl *gomock.Controller, rig *testutil.Rig) (*pipeline.Shader, *mocks.MockShaderModule, *mocks.MockDescriptorSetLayout) {
	path := writeShader(t, spirv(binary.LittleEndian, 1, 2))

	setLayout := mocks.NewMockDescriptorSetLayout(ctrl)
	rig.VulkanDevice.EXPECT().CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{
			{Binding: 0, DescriptorType: core1_0.DescriptorTypeStorageBuffer, DescriptorCount: 1, StageFlags: core1_0.StageCompute},
			{Binding: 1, DescriptorType: core1_0.DescriptorTypeStorageImage, DescriptorCount: 1, StageFlags: core1_0.StageCompute},
		},
	}).Return(setLayout, core1_0.VKSuccess, nil)

	module := mocks.NewMockShaderModule(ctrl)
	rig.VulkanDevice.EXPECT().CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: []uint32{0x07230203, 1, 2},
	}).Return(module, core1_0.VKSuccess, nil)

	shader, err := pipeline.LoadShader(rig.Device, pipeline.ShaderStageConfig{
		Path:     path,
		Stage:    core1_0.StageCompute,
		Bindings: storageBindings,
	})
	require.NoError(t, err)

	return shader, module, setLayout
}

func TestLoadShader(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig := testutil.NewRig(t, ctrl, testutil.HostVisibleSetup)

	shader, module, setLayout := loadComputeShader(t, ctrl, rig)
	require.Equal(t, core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageCompute,
		Module: module,
		Name:   "main",
	}, shader.StageInfo())
	require.Equal(t, setLayout, shader.SetLayout())

	module.EXPECT().Destroy(nil)
	setLayout.EXPECT().Destroy(nil)
	shader.Destroy()
	shader.Destroy()
	require.Equal(t, 0, rig.Device.LiveObjects())
}

func TestLoadShaderInvalidFile(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig := testutil.NewRig(t, ctrl, testutil.HostVisibleSetup)

	_, err := pipeline.LoadShader(rig.Device, pipeline.ShaderStageConfig{
		Path: writeShader(t, []byte("#version 450\n")),
	})
	require.Error(t, err)

	_, err = pipeline.LoadShader(rig.Device, pipeline.ShaderStageConfig{
		Path: filepath.Join(t.TempDir(), "missing.spv"),
	})
	require.Error(t, err)
}

func TestShaderWriteDescriptors(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig := testutil.NewRig(t, ctrl, testutil.HostVisibleSetup)
	shader, _, _ := loadComputeShader(t, ctrl, rig)

	set := mocks.NewMockDescriptorSet(ctrl)
	buffer := mocks.NewMockBuffer(ctrl)
	view := mocks.NewMockImageView(ctrl)

	rig.VulkanDevice.EXPECT().UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:         set,
			DstBinding:     0,
			DescriptorType: core1_0.DescriptorTypeStorageBuffer,
			BufferInfo:     []core1_0.DescriptorBufferInfo{{Buffer: buffer, Range: 64}},
		},
	}, nil).Return(nil)
	require.NoError(t, shader.WriteBuffer(set, 0, core1_0.DescriptorBufferInfo{Buffer: buffer, Range: 64}))

	rig.VulkanDevice.EXPECT().UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:         set,
			DstBinding:     1,
			DescriptorType: core1_0.DescriptorTypeStorageImage,
			ImageInfo:      []core1_0.DescriptorImageInfo{{ImageView: view, ImageLayout: core1_0.ImageLayoutGeneral}},
		},
	}, nil).Return(nil)
	require.NoError(t, shader.WriteImage(set, 1, core1_0.DescriptorImageInfo{ImageView: view, ImageLayout: core1_0.ImageLayoutGeneral}))

	require.Error(t, shader.WriteBuffer(set, 2, core1_0.DescriptorBufferInfo{}))
	require.Error(t, shader.WriteImage(set, -1, core1_0.DescriptorImageInfo{}))
}

func TestComputePipeline(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig := testutil.NewRig(t, ctrl, testutil.HostVisibleSetup)
	shader, _, setLayout := loadComputeShader(t, ctrl, rig)

	layout := mocks.NewMockPipelineLayout(ctrl)
	rig.VulkanDevice.EXPECT().CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{setLayout},
	}).Return(layout, core1_0.VKSuccess, nil)

	vkPipeline := mocks.NewMockPipeline(ctrl)
	rig.VulkanDevice.EXPECT().CreateComputePipelines(nil, nil, []core1_0.ComputePipelineCreateInfo{
		{Stage: shader.StageInfo(), Layout: layout},
	}).Return([]core1_0.Pipeline{vkPipeline}, core1_0.VKSuccess, nil)

	compute, err := pipeline.NewComputePipeline(rig.Device, shader)
	require.NoError(t, err)

	set := mocks.NewMockDescriptorSet(ctrl)
	cmd := mocks.NewMockCommandBuffer(ctrl)
	gomock.InOrder(
		cmd.EXPECT().CmdBindPipeline(core1_0.PipelineBindPointCompute, vkPipeline),
		cmd.EXPECT().CmdBindDescriptorSets(core1_0.PipelineBindPointCompute, layout, 0, []core1_0.DescriptorSet{set}, nil),
		cmd.EXPECT().CmdDispatch(3, 1, 1),
	)

	compute.Bind(cmd, set)
	compute.Dispatch(cmd, 3, 1, 1)

	vkPipeline.EXPECT().Destroy(nil)
	layout.EXPECT().Destroy(nil)
	compute.Destroy()
}

func TestDescriptorPool(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig := testutil.NewRig(t, ctrl, testutil.HostVisibleSetup)

	_, err := pipeline.NewDescriptorPoolBuilder(0).Build(rig.Device)
	require.Error(t, err)

	vkPool := mocks.NewMockDescriptorPool(ctrl)
	rig.VulkanDevice.EXPECT().CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets: 1,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{Type: core1_0.DescriptorTypeStorageBuffer, DescriptorCount: 2},
		},
	}).Return(vkPool, core1_0.VKSuccess, nil)

	pool, err := pipeline.NewDescriptorPoolBuilder(1).
		AddPoolSize(core1_0.DescriptorTypeStorageBuffer, 2).
		Build(rig.Device)
	require.NoError(t, err)

	layout := mocks.NewMockDescriptorSetLayout(ctrl)
	set := mocks.NewMockDescriptorSet(ctrl)
	rig.VulkanDevice.EXPECT().AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: vkPool,
		SetLayouts:     []core1_0.DescriptorSetLayout{layout},
	}).Return([]core1_0.DescriptorSet{set}, core1_0.VKSuccess, nil)

	allocated, err := pool.AllocateSet(layout)
	require.NoError(t, err)
	require.Equal(t, set, allocated)

	vkPool.EXPECT().Destroy(nil)
	pool.Destroy()
	require.Equal(t, 0, rig.Device.LiveObjects())
}
