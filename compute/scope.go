// Package compute runs one-shot compute shader workloads: squaring integers and
// processing an RGBA image.
package compute

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cadence/command"
	"github.com/vkngwrapper/cadence/device"
	"github.com/vkngwrapper/cadence/memory"
	"github.com/vkngwrapper/cadence/pipeline"
	"github.com/vkngwrapper/cadence/resource"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

// scope owns everything a workload creates. Bound resources are destroyed before the
// arenas backing them are freed.
type scope struct {
	logger    *slog.Logger
	device    *device.Device
	allocator *memory.Allocator

	objects []func()
	bound   []func()
	arenas  []*memory.Arena
}

func newScope(dev *device.Device, allocator *memory.Allocator) *scope {
	return &scope{
		logger:    dev.Logger(),
		device:    dev,
		allocator: allocator,
	}
}

func (s *scope) buffer(size int, usage core1_0.BufferUsageFlags) (*resource.Buffer, error) {
	buffer, err := resource.NewBuffer(s.device, size, usage)
	if err != nil {
		return nil, err
	}

	s.bound = append(s.bound, buffer.Destroy)
	return buffer, nil
}

func (s *scope) image(options resource.ImageOptions) (*resource.Image, error) {
	image, err := resource.NewImage(s.device, options)
	if err != nil {
		return nil, err
	}

	s.bound = append(s.bound, image.Destroy)
	return image, nil
}

func (s *scope) arena(requirements *core1_0.MemoryRequirements, size int, properties core1_0.MemoryPropertyFlags) (*memory.Arena, error) {
	memoryTypeIndex, err := s.device.Context().FindMemoryType(requirements.MemoryTypeBits, properties)
	if err != nil {
		return nil, err
	}

	arena, err := s.allocator.Allocate(size, memoryTypeIndex)
	if err != nil {
		return nil, err
	}

	s.arenas = append(s.arenas, arena)
	return arena, nil
}

func (s *scope) shader(path string, bindings ...pipeline.BindingInfo) (*pipeline.Shader, error) {
	shader, err := pipeline.LoadShader(s.device, pipeline.ShaderStageConfig{
		Path:     path,
		Stage:    core1_0.StageCompute,
		Bindings: bindings,
	})
	if err != nil {
		return nil, err
	}

	s.objects = append(s.objects, shader.Destroy)
	return shader, nil
}

// descriptorSet allocates a set for the shader from a dedicated pool and writes the
// shader's bindings into it
func (s *scope) descriptorSet(shader *pipeline.Shader, write func(set core1_0.DescriptorSet) error) (core1_0.DescriptorSet, error) {
	builder := pipeline.NewDescriptorPoolBuilder(1)
	for _, binding := range shader.Bindings() {
		builder.AddPoolSize(binding.Type, binding.Count)
	}

	pool, err := builder.Build(s.device)
	if err != nil {
		return nil, err
	}
	s.objects = append(s.objects, pool.Destroy)

	set, err := pool.AllocateSet(shader.SetLayout())
	if err != nil {
		return nil, err
	}

	err = write(set)
	if err != nil {
		return nil, err
	}

	return set, nil
}

func (s *scope) computePipeline(shader *pipeline.Shader) (*pipeline.ComputePipeline, error) {
	compute, err := pipeline.NewComputePipeline(s.device, shader)
	if err != nil {
		return nil, err
	}

	s.objects = append(s.objects, compute.Destroy)
	return compute, nil
}

// submit records a one-shot command buffer with record and waits for it to execute
func (s *scope) submit(pool *command.Pool, record func(cmd core1_0.CommandBuffer) error) error {
	cmd, err := pool.BeginOneShot()
	if err != nil {
		return err
	}

	err = record(cmd)
	if err != nil {
		pool.Free([]core1_0.CommandBuffer{cmd})
		return err
	}

	return pool.SubmitAndWait(cmd)
}

func (s *scope) release() {
	for i := len(s.objects) - 1; i >= 0; i-- {
		s.objects[i]()
	}
	s.objects = nil

	for i := len(s.bound) - 1; i >= 0; i-- {
		s.bound[i]()
	}
	s.bound = nil

	for _, arena := range s.arenas {
		err := arena.Free()
		if err != nil && !errors.Is(err, memory.ErrStaleHandle) {
			s.logger.Error("could not free arena", slog.String("Arena", arena.Handle().String()), slog.Any("error", err))
		}
	}
	s.arenas = nil
}
