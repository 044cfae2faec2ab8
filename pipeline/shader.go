package pipeline

import (
	"encoding/binary"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cadence/device"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

const spirvMagic uint32 = 0x07230203

// BindingInfo describes one descriptor set binding. Bindings are numbered by their
// position in ShaderStageConfig.Bindings.
type BindingInfo struct {
	Type   core1_0.DescriptorType
	Count  int
	Stages core1_0.ShaderStageFlags
}

type ShaderStageConfig struct {
	Path string
	// EntryName defaults to "main"
	EntryName string
	Stage     core1_0.ShaderStageFlags
	Flags     core1_0.PipelineShaderStageCreateFlags
	Bindings  []BindingInfo
}

func (c ShaderStageConfig) layoutBindings() []core1_0.DescriptorSetLayoutBinding {
	bindings := make([]core1_0.DescriptorSetLayoutBinding, 0, len(c.Bindings))
	for index, binding := range c.Bindings {
		bindings = append(bindings, core1_0.DescriptorSetLayoutBinding{
			Binding:         index,
			DescriptorType:  binding.Type,
			DescriptorCount: binding.Count,
			StageFlags:      binding.Stages,
		})
	}
	return bindings
}

// Shader is a shader module together with the descriptor set layout its bindings describe
type Shader struct {
	logger    *slog.Logger
	device    core1_0.Device
	module    core1_0.ShaderModule
	setLayout core1_0.DescriptorSetLayout
	bindings  []BindingInfo
	stageInfo core1_0.PipelineShaderStageCreateInfo

	release func()
}

// ReadSPIRV reads a SPIR-V binary into words. Binaries written with the opposite byte
// order are swapped.
func ReadSPIRV(data []byte) ([]uint32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, errors.Newf("spir-v length %d is not a positive multiple of 4", len(data))
	}

	var order binary.ByteOrder = binary.LittleEndian
	if binary.LittleEndian.Uint32(data) != spirvMagic {
		if binary.BigEndian.Uint32(data) != spirvMagic {
			return nil, errors.Newf("missing spir-v magic number (found %#08x)", binary.LittleEndian.Uint32(data))
		}
		order = binary.BigEndian
	}

	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = order.Uint32(data[i*4:])
	}
	return words, nil
}

// LoadShader reads the config's SPIR-V file and creates its shader module and descriptor
// set layout
func LoadShader(dev *device.Device, config ShaderStageConfig) (*Shader, error) {
	data, err := os.ReadFile(config.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read shader %s", config.Path)
	}

	code, err := ReadSPIRV(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid shader %s", config.Path)
	}

	vkDevice := dev.VulkanDevice()
	setLayout, _, err := vkDevice.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: config.layoutBindings(),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not create descriptor set layout for %s", config.Path)
	}

	module, _, err := vkDevice.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	if err != nil {
		setLayout.Destroy(nil)
		return nil, errors.Wrapf(err, "could not create shader module for %s", config.Path)
	}

	entryName := config.EntryName
	if entryName == "" {
		entryName = "main"
	}

	dev.Logger().Debug("Shader::Load",
		slog.String("Path", config.Path),
		slog.String("Stage", config.Stage.String()),
		slog.Int("Bindings", len(config.Bindings)),
	)

	return &Shader{
		logger:    dev.Logger(),
		device:    vkDevice,
		module:    module,
		setLayout: setLayout,
		bindings:  append([]BindingInfo(nil), config.Bindings...),
		stageInfo: core1_0.PipelineShaderStageCreateInfo{
			Flags:  config.Flags,
			Stage:  config.Stage,
			Module: module,
			Name:   entryName,
		},
		release: dev.Track("shader"),
	}, nil
}

func (s *Shader) StageInfo() core1_0.PipelineShaderStageCreateInfo {
	return s.stageInfo
}

func (s *Shader) SetLayout() core1_0.DescriptorSetLayout {
	return s.setLayout
}

func (s *Shader) Bindings() []BindingInfo {
	return s.bindings
}

func (s *Shader) bindingType(binding int) (core1_0.DescriptorType, error) {
	if binding < 0 || binding >= len(s.bindings) {
		return 0, errors.Newf("binding %d does not exist in a shader with %d bindings", binding, len(s.bindings))
	}
	return s.bindings[binding].Type, nil
}

// WriteBuffer points a buffer binding of set at info
func (s *Shader) WriteBuffer(set core1_0.DescriptorSet, binding int, info core1_0.DescriptorBufferInfo) error {
	descriptorType, err := s.bindingType(binding)
	if err != nil {
		return err
	}

	return s.device.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:         set,
			DstBinding:     binding,
			DescriptorType: descriptorType,
			BufferInfo:     []core1_0.DescriptorBufferInfo{info},
		},
	}, nil)
}

// WriteImage points an image binding of set at info
func (s *Shader) WriteImage(set core1_0.DescriptorSet, binding int, info core1_0.DescriptorImageInfo) error {
	descriptorType, err := s.bindingType(binding)
	if err != nil {
		return err
	}

	return s.device.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:         set,
			DstBinding:     binding,
			DescriptorType: descriptorType,
			ImageInfo:      []core1_0.DescriptorImageInfo{info},
		},
	}, nil)
}

func (s *Shader) Destroy() {
	if s.module == nil {
		return
	}

	s.module.Destroy(nil)
	s.setLayout.Destroy(nil)
	s.module = nil
	s.setLayout = nil
	s.release()
}
