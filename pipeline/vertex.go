package pipeline

import (
	"fmt"

	"github.com/vkngwrapper/core/v2/core1_0"
)

// VertexFormat selects the vertex input layout of a graphics pipeline
type VertexFormat int

const (
	// VertexNone has no vertex buffers. Shaders generate their vertices.
	VertexNone VertexFormat = iota
	// VertexFlat is FlatVertex in binding 0
	VertexFlat
)

var vertexFormatToString = map[VertexFormat]string{
	VertexNone: "none",
	VertexFlat: "flat",
}

func (f VertexFormat) String() string {
	str, ok := vertexFormatToString[f]
	if !ok {
		return fmt.Sprintf("VertexFormat(%d)", int(f))
	}
	return str
}

// FlatVertex is a 2D position with an RGB color
type FlatVertex struct {
	Position [2]float32
	Color    [3]float32
}

const flatVertexStride = 20

// InputState describes the vertex buffers and attributes of the format
func (f VertexFormat) InputState() *core1_0.PipelineVertexInputStateCreateInfo {
	switch f {
	case VertexNone:
		return &core1_0.PipelineVertexInputStateCreateInfo{}
	case VertexFlat:
		return &core1_0.PipelineVertexInputStateCreateInfo{
			VertexBindingDescriptions: []core1_0.VertexInputBindingDescription{
				{
					Binding:   0,
					Stride:    flatVertexStride,
					InputRate: core1_0.VertexInputRateVertex,
				},
			},
			VertexAttributeDescriptions: []core1_0.VertexInputAttributeDescription{
				{
					Location: 0,
					Binding:  0,
					Format:   core1_0.FormatR32G32SignedFloat,
					Offset:   0,
				},
				{
					Location: 1,
					Binding:  0,
					Format:   core1_0.FormatR32G32B32SignedFloat,
					Offset:   8,
				},
			},
		}
	default:
		panic(fmt.Sprintf("unknown vertex format %d", int(f)))
	}
}
