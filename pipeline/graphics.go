package pipeline

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cadence/device"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

type PrimitiveState struct {
	Topology    core1_0.PrimitiveTopology
	Restart     bool
	PolygonMode core1_0.PolygonMode
	DepthClamp  bool
	CullMode    core1_0.CullModeFlags
	FrontFace   core1_0.FrontFace
}

type BlendInfo struct {
	SrcFactor core1_0.BlendFactor
	DstFactor core1_0.BlendFactor
	Operation core1_0.BlendOp
}

// ColorTarget describes one color attachment. Blending is enabled if either blend is set.
type ColorTarget struct {
	ColorBlend *BlendInfo
	AlphaBlend *BlendInfo
	WriteMask  core1_0.ColorComponentFlags
}

func (t ColorTarget) attachmentState() core1_0.PipelineColorBlendAttachmentState {
	state := core1_0.PipelineColorBlendAttachmentState{
		ColorWriteMask: t.WriteMask,
	}

	if t.ColorBlend == nil && t.AlphaBlend == nil {
		return state
	}

	state.BlendEnabled = true
	if t.ColorBlend != nil {
		state.SrcColorBlendFactor = t.ColorBlend.SrcFactor
		state.DstColorBlendFactor = t.ColorBlend.DstFactor
		state.ColorBlendOp = t.ColorBlend.Operation
	}
	if t.AlphaBlend != nil {
		state.SrcAlphaBlendFactor = t.AlphaBlend.SrcFactor
		state.DstAlphaBlendFactor = t.AlphaBlend.DstFactor
		state.AlphaBlendOp = t.AlphaBlend.Operation
	}
	return state
}

// GraphicsConfig is the fixed-function state of a graphics pipeline. Line width is 1, there
// is one sample per pixel, and viewport and scissor are always dynamic.
type GraphicsConfig struct {
	Primitive    PrimitiveState
	ColorTargets []ColorTarget
	Vertex       VertexFormat
}

// DefaultGraphicsConfig draws filled, unculled triangle lists into one unblended target
// with procedurally generated vertices
func DefaultGraphicsConfig() GraphicsConfig {
	return GraphicsConfig{
		Primitive: PrimitiveState{
			Topology:    core1_0.PrimitiveTopologyTriangleList,
			PolygonMode: core1_0.PolygonModeFill,
			CullMode:    cullModeNone,
			FrontFace:   core1_0.FrontFaceClockwise,
		},
		ColorTargets: []ColorTarget{
			{WriteMask: writeMaskRGBA},
		},
		Vertex: VertexNone,
	}
}

const (
	cullModeNone  core1_0.CullModeFlags       = 0
	writeMaskRGBA core1_0.ColorComponentFlags = core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha
)

func (c GraphicsConfig) createInfo(layout core1_0.PipelineLayout, renderPass core1_0.RenderPass, stages []core1_0.PipelineShaderStageCreateInfo) core1_0.GraphicsPipelineCreateInfo {
	attachments := make([]core1_0.PipelineColorBlendAttachmentState, 0, len(c.ColorTargets))
	for _, target := range c.ColorTargets {
		attachments = append(attachments, target.attachmentState())
	}

	return core1_0.GraphicsPipelineCreateInfo{
		Stages:           stages,
		VertexInputState: c.Vertex.InputState(),
		InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
			Topology:               c.Primitive.Topology,
			PrimitiveRestartEnable: c.Primitive.Restart,
		},
		// Counts only, the values are set while recording
		ViewportState: &core1_0.PipelineViewportStateCreateInfo{
			Viewports: []core1_0.Viewport{{}},
			Scissors:  []core1_0.Rect2D{{}},
		},
		RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
			DepthClampEnable: c.Primitive.DepthClamp,
			PolygonMode:      c.Primitive.PolygonMode,
			CullMode:         c.Primitive.CullMode,
			FrontFace:        c.Primitive.FrontFace,
			DepthBiasEnable:  false,
			LineWidth:        1.0,
		},
		MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
			RasterizationSamples: core1_0.Samples1,
			SampleShadingEnable:  false,
		},
		ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
			Attachments: attachments,
		},
		DynamicState: &core1_0.PipelineDynamicStateCreateInfo{
			DynamicStates: []core1_0.DynamicState{
				core1_0.DynamicStateViewport,
				core1_0.DynamicStateScissor,
			},
		},
		Layout:            layout,
		RenderPass:        renderPass,
		Subpass:           0,
		BasePipelineIndex: -1,
	}
}

type GraphicsPipeline struct {
	layout   core1_0.PipelineLayout
	pipeline core1_0.Pipeline
	release  func()
}

// NewGraphicsPipeline builds a pipeline for subpass 0 of renderPass. Its layout holds the
// vertex shader's descriptor set layout followed by the fragment shader's.
func NewGraphicsPipeline(dev *device.Device, config GraphicsConfig, renderPass core1_0.RenderPass, vertex, fragment *Shader) (*GraphicsPipeline, error) {
	if len(config.ColorTargets) == 0 {
		return nil, errors.New("graphics pipeline needs at least one color target")
	}

	vkDevice := dev.VulkanDevice()
	layout, _, err := vkDevice.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{vertex.SetLayout(), fragment.SetLayout()},
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create graphics pipeline layout")
	}

	stages := []core1_0.PipelineShaderStageCreateInfo{vertex.StageInfo(), fragment.StageInfo()}
	pipelines, _, err := vkDevice.CreateGraphicsPipelines(nil, nil, []core1_0.GraphicsPipelineCreateInfo{
		config.createInfo(layout, renderPass, stages),
	})
	if err != nil {
		layout.Destroy(nil)
		return nil, errors.Wrap(err, "could not create graphics pipeline")
	}

	dev.Logger().Debug("GraphicsPipeline::New",
		slog.String("Vertex", config.Vertex.String()),
		slog.Int("ColorTargets", len(config.ColorTargets)),
	)
	return &GraphicsPipeline{
		layout:   layout,
		pipeline: pipelines[0],
		release:  dev.Track("graphics pipeline"),
	}, nil
}

func (p *GraphicsPipeline) Layout() core1_0.PipelineLayout {
	return p.layout
}

func (p *GraphicsPipeline) Bind(cmd core1_0.CommandBuffer) {
	cmd.CmdBindPipeline(core1_0.PipelineBindPointGraphics, p.pipeline)
}

// Draw records a single-instance draw of vertexCount vertices
func (p *GraphicsPipeline) Draw(cmd core1_0.CommandBuffer, vertexCount int) {
	cmd.CmdDraw(vertexCount, 1, 0, 0)
}

func (p *GraphicsPipeline) Destroy() {
	if p.pipeline == nil {
		return
	}

	p.pipeline.Destroy(nil)
	p.layout.Destroy(nil)
	p.pipeline = nil
	p.layout = nil
	p.release()
}
