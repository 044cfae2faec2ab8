package compute

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/memutils"
	"github.com/vkngwrapper/cadence/command"
	"github.com/vkngwrapper/cadence/device"
	"github.com/vkngwrapper/cadence/memory"
	"github.com/vkngwrapper/cadence/pipeline"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

const int32Size = 4

var squareBindings = []pipeline.BindingInfo{
	{Type: core1_0.DescriptorTypeStorageBuffer, Count: 1, Stages: core1_0.StageCompute},
	{Type: core1_0.DescriptorTypeStorageBuffer, Count: 1, Stages: core1_0.StageCompute},
}

// Square runs the squaring shader at shaderPath over input. The shader reads binding 0 and
// writes binding 1, one invocation per element. Both buffers share one host-visible arena.
func Square(dev *device.Device, allocator *memory.Allocator, pool *command.Pool, shaderPath string, input []int32) ([]int32, error) {
	if len(input) == 0 {
		return nil, errors.New("nothing to square")
	}

	s := newScope(dev, allocator)
	defer s.release()

	size := len(input) * int32Size
	src, err := s.buffer(size, core1_0.BufferUsageStorageBuffer)
	if err != nil {
		return nil, err
	}

	dst, err := s.buffer(size, core1_0.BufferUsageStorageBuffer)
	if err != nil {
		return nil, err
	}

	requirements := src.MemoryRequirements()
	alignedSize := memutils.AlignUp(size, uint(requirements.Alignment))

	arena, err := s.arena(requirements, alignedSize*2, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, err
	}

	err = src.Bind(arena, 0)
	if err != nil {
		return nil, err
	}

	err = dst.Bind(arena, alignedSize)
	if err != nil {
		return nil, err
	}

	err = arena.Map(common.WholeSize, 0)
	if err != nil {
		return nil, err
	}

	err = memory.WriteSlice(arena, input, 0)
	if err != nil {
		return nil, err
	}

	shader, err := s.shader(shaderPath, squareBindings...)
	if err != nil {
		return nil, err
	}

	set, err := s.descriptorSet(shader, func(set core1_0.DescriptorSet) error {
		err := shader.WriteBuffer(set, 0, src.DescriptorInfo())
		if err != nil {
			return err
		}
		return shader.WriteBuffer(set, 1, dst.DescriptorInfo())
	})
	if err != nil {
		return nil, err
	}

	compute, err := s.computePipeline(shader)
	if err != nil {
		return nil, err
	}

	err = s.submit(pool, func(cmd core1_0.CommandBuffer) error {
		compute.Bind(cmd, set)
		compute.Dispatch(cmd, len(input), 1, 1)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "square dispatch failed")
	}

	output := make([]int32, len(input))
	err = memory.ReadSlice(arena, output, alignedSize)
	if err != nil {
		return nil, err
	}

	dev.Logger().Info("results", slog.Any("Input", input), slog.Any("Output", output))
	return output, nil
}
