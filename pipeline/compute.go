package pipeline

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cadence/device"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

type ComputePipeline struct {
	layout   core1_0.PipelineLayout
	pipeline core1_0.Pipeline
	release  func()
}

// NewComputePipeline builds a compute pipeline from the shader's stage and a layout
// holding its descriptor set layout
func NewComputePipeline(dev *device.Device, shader *Shader) (*ComputePipeline, error) {
	vkDevice := dev.VulkanDevice()

	layout, _, err := vkDevice.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{shader.SetLayout()},
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create compute pipeline layout")
	}

	pipelines, _, err := vkDevice.CreateComputePipelines(nil, nil, []core1_0.ComputePipelineCreateInfo{
		{
			Stage:  shader.StageInfo(),
			Layout: layout,
		},
	})
	if err != nil {
		layout.Destroy(nil)
		return nil, errors.Wrap(err, "could not create compute pipeline")
	}

	dev.Logger().Debug("ComputePipeline::New", slog.String("Entry", shader.StageInfo().Name))
	return &ComputePipeline{
		layout:   layout,
		pipeline: pipelines[0],
		release:  dev.Track("compute pipeline"),
	}, nil
}

func (p *ComputePipeline) Layout() core1_0.PipelineLayout {
	return p.layout
}

// Bind binds the pipeline and any descriptor sets, starting at set 0
func (p *ComputePipeline) Bind(cmd core1_0.CommandBuffer, sets ...core1_0.DescriptorSet) {
	cmd.CmdBindPipeline(core1_0.PipelineBindPointCompute, p.pipeline)
	if len(sets) > 0 {
		cmd.CmdBindDescriptorSets(core1_0.PipelineBindPointCompute, p.layout, 0, sets, nil)
	}
}

func (p *ComputePipeline) Dispatch(cmd core1_0.CommandBuffer, x, y, z int) {
	cmd.CmdDispatch(x, y, z)
}

func (p *ComputePipeline) Destroy() {
	if p.pipeline == nil {
		return
	}

	p.pipeline.Destroy(nil)
	p.layout.Destroy(nil)
	p.pipeline = nil
	p.layout = nil
	p.release()
}
