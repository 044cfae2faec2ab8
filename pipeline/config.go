package pipeline

import (
	"bytes"
	"os"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// Configuration files name each pipeline in a top-level table:
//
//	[flat]
//	vertex = "flat"
//	primitive = { topology = "triangle-list", cull_mode = "back" }
//
//	[[flat.color_targets]]
//	write_mask = "rgba"
//	color_blend = { src = "src-alpha", dst = "one-minus-src-alpha", op = "add" }
//
// Omitted fields take their value from DefaultGraphicsConfig.

type blendFile struct {
	Src string `toml:"src"`
	Dst string `toml:"dst"`
	Op  string `toml:"op"`
}

type colorTargetFile struct {
	WriteMask  string     `toml:"write_mask"`
	ColorBlend *blendFile `toml:"color_blend"`
	AlphaBlend *blendFile `toml:"alpha_blend"`
}

type primitiveFile struct {
	Topology    string `toml:"topology"`
	Restart     bool   `toml:"restart"`
	PolygonMode string `toml:"polygon_mode"`
	DepthClamp  bool   `toml:"depth_clamp"`
	CullMode    string `toml:"cull_mode"`
	FrontFace   string `toml:"front_face"`
}

type graphicsConfigFile struct {
	Vertex       string            `toml:"vertex"`
	Primitive    primitiveFile     `toml:"primitive"`
	ColorTargets []colorTargetFile `toml:"color_targets"`
}

var topologies = map[string]core1_0.PrimitiveTopology{
	"point-list":     core1_0.PrimitiveTopologyPointList,
	"line-list":      core1_0.PrimitiveTopologyLineList,
	"line-strip":     core1_0.PrimitiveTopologyLineStrip,
	"triangle-list":  core1_0.PrimitiveTopologyTriangleList,
	"triangle-strip": core1_0.PrimitiveTopologyTriangleStrip,
	"triangle-fan":   core1_0.PrimitiveTopologyTriangleFan,
}

var polygonModes = map[string]core1_0.PolygonMode{
	"fill":  core1_0.PolygonModeFill,
	"line":  core1_0.PolygonModeLine,
	"point": core1_0.PolygonModePoint,
}

var cullModes = map[string]core1_0.CullModeFlags{
	"none":           cullModeNone,
	"front":          core1_0.CullModeFront,
	"back":           core1_0.CullModeBack,
	"front-and-back": core1_0.CullModeFront | core1_0.CullModeBack,
}

var frontFaces = map[string]core1_0.FrontFace{
	"clockwise":         core1_0.FrontFaceClockwise,
	"counter-clockwise": core1_0.FrontFaceCounterClockwise,
}

var blendFactors = map[string]core1_0.BlendFactor{
	"zero":                core1_0.BlendFactorZero,
	"one":                 core1_0.BlendFactorOne,
	"src-color":           core1_0.BlendFactorSrcColor,
	"one-minus-src-color": core1_0.BlendFactorOneMinusSrcColor,
	"dst-color":           core1_0.BlendFactorDstColor,
	"one-minus-dst-color": core1_0.BlendFactorOneMinusDstColor,
	"src-alpha":           core1_0.BlendFactorSrcAlpha,
	"one-minus-src-alpha": core1_0.BlendFactorOneMinusSrcAlpha,
	"dst-alpha":           core1_0.BlendFactorDstAlpha,
	"one-minus-dst-alpha": core1_0.BlendFactorOneMinusDstAlpha,
}

// VK_BLEND_OP_REVERSE_SUBTRACT, which core1_0 does not name
const blendOpReverseSubtract core1_0.BlendOp = 2

var blendOps = map[string]core1_0.BlendOp{
	"add":              core1_0.BlendOpAdd,
	"subtract":         core1_0.BlendOpSubtract,
	"reverse-subtract": blendOpReverseSubtract,
	"min":              core1_0.BlendOpMin,
	"max":              core1_0.BlendOpMax,
}

var vertexFormats = map[string]VertexFormat{
	"none": VertexNone,
	"flat": VertexFlat,
}

func lookup[T any](table map[string]T, field, value string, fallback T) (T, error) {
	if value == "" {
		return fallback, nil
	}

	result, ok := table[strings.ToLower(value)]
	if !ok {
		options := make([]string, 0, len(table))
		for option := range table {
			options = append(options, option)
		}
		sort.Strings(options)

		return fallback, errors.Newf("unknown %s %q (expected one of %s)", field, value, strings.Join(options, ", "))
	}
	return result, nil
}

func parseWriteMask(value string) (core1_0.ColorComponentFlags, error) {
	if value == "" {
		return writeMaskRGBA, nil
	}

	var mask core1_0.ColorComponentFlags
	for _, component := range strings.ToLower(value) {
		switch component {
		case 'r':
			mask |= core1_0.ColorComponentRed
		case 'g':
			mask |= core1_0.ColorComponentGreen
		case 'b':
			mask |= core1_0.ColorComponentBlue
		case 'a':
			mask |= core1_0.ColorComponentAlpha
		default:
			return 0, errors.Newf("unknown color component %q in write mask %q", component, value)
		}
	}
	return mask, nil
}

func (f *blendFile) blendInfo() (*BlendInfo, error) {
	if f == nil {
		return nil, nil
	}

	src, err := lookup(blendFactors, "blend factor", f.Src, core1_0.BlendFactorOne)
	if err != nil {
		return nil, err
	}
	dst, err := lookup(blendFactors, "blend factor", f.Dst, core1_0.BlendFactorZero)
	if err != nil {
		return nil, err
	}
	op, err := lookup(blendOps, "blend op", f.Op, core1_0.BlendOpAdd)
	if err != nil {
		return nil, err
	}

	return &BlendInfo{SrcFactor: src, DstFactor: dst, Operation: op}, nil
}

func (f graphicsConfigFile) config() (GraphicsConfig, error) {
	config := DefaultGraphicsConfig()
	var err error

	config.Vertex, err = lookup(vertexFormats, "vertex format", f.Vertex, config.Vertex)
	if err != nil {
		return config, err
	}

	primitive := &config.Primitive
	primitive.Restart = f.Primitive.Restart
	primitive.DepthClamp = f.Primitive.DepthClamp
	if primitive.Topology, err = lookup(topologies, "topology", f.Primitive.Topology, primitive.Topology); err != nil {
		return config, err
	}
	if primitive.PolygonMode, err = lookup(polygonModes, "polygon mode", f.Primitive.PolygonMode, primitive.PolygonMode); err != nil {
		return config, err
	}
	if primitive.CullMode, err = lookup(cullModes, "cull mode", f.Primitive.CullMode, primitive.CullMode); err != nil {
		return config, err
	}
	if primitive.FrontFace, err = lookup(frontFaces, "front face", f.Primitive.FrontFace, primitive.FrontFace); err != nil {
		return config, err
	}

	if len(f.ColorTargets) == 0 {
		return config, nil
	}

	config.ColorTargets = make([]ColorTarget, 0, len(f.ColorTargets))
	for index, targetFile := range f.ColorTargets {
		var target ColorTarget

		target.WriteMask, err = parseWriteMask(targetFile.WriteMask)
		if err != nil {
			return config, errors.Wrapf(err, "color target %d", index)
		}
		target.ColorBlend, err = targetFile.ColorBlend.blendInfo()
		if err != nil {
			return config, errors.Wrapf(err, "color target %d color blend", index)
		}
		target.AlphaBlend, err = targetFile.AlphaBlend.blendInfo()
		if err != nil {
			return config, errors.Wrapf(err, "color target %d alpha blend", index)
		}

		config.ColorTargets = append(config.ColorTargets, target)
	}

	return config, nil
}

// Presets returns the built-in configurations. "null" draws vertices generated by the
// vertex shader and "flat" draws models made of FlatVertex.
func Presets() map[string]GraphicsConfig {
	flat := DefaultGraphicsConfig()
	flat.Vertex = VertexFlat

	return map[string]GraphicsConfig{
		"null": DefaultGraphicsConfig(),
		"flat": flat,
	}
}

// WithPresets adds the built-in configurations to configs. Entries in configs replace a
// preset of the same name.
func WithPresets(configs map[string]GraphicsConfig) map[string]GraphicsConfig {
	merged := Presets()
	for name, config := range configs {
		merged[name] = config
	}
	return merged
}

// ParseGraphicsConfigs reads named graphics pipeline configurations from TOML. Unknown
// keys are rejected.
func ParseGraphicsConfigs(data []byte) (map[string]GraphicsConfig, error) {
	var files map[string]graphicsConfigFile

	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	err := decoder.Decode(&files)
	if err != nil {
		return nil, errors.Wrap(err, "could not decode graphics pipeline configs")
	}

	configs := make(map[string]GraphicsConfig, len(files))
	for name, file := range files {
		config, err := file.config()
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline config %q", name)
		}
		configs[name] = config
	}

	return configs, nil
}

// LoadGraphicsConfigs reads a TOML file of graphics pipeline configurations
func LoadGraphicsConfigs(path string) (map[string]GraphicsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read pipeline configs %s", path)
	}

	return ParseGraphicsConfigs(data)
}
