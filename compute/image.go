package compute

import (
	"image"
	"image/draw"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cadence/command"
	"github.com/vkngwrapper/cadence/device"
	"github.com/vkngwrapper/cadence/memory"
	"github.com/vkngwrapper/cadence/pipeline"
	"github.com/vkngwrapper/cadence/resource"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

const rgbaSize = 4

var imageBindings = []pipeline.BindingInfo{
	{Type: core1_0.DescriptorTypeStorageImage, Count: 1, Stages: core1_0.StageCompute},
	{Type: core1_0.DescriptorTypeStorageImage, Count: 1, Stages: core1_0.StageCompute},
}

// toRGBA returns the image as tightly packed RGBA8 pixels with its origin at 0,0. Pix
// holds exactly the image's pixels.
func toRGBA(src image.Image) *image.RGBA {
	bounds := src.Bounds()
	rgba, ok := src.(*image.RGBA)
	if ok && bounds.Min == (image.Point{}) && rgba.Stride == bounds.Dx()*rgbaSize {
		// Row-cropped sub-images keep the parent's trailing rows
		return &image.RGBA{
			Pix:    rgba.Pix[:bounds.Dy()*rgba.Stride],
			Stride: rgba.Stride,
			Rect:   rgba.Rect,
		}
	}

	rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)
	return rgba
}

// ProcessImage runs the image shader at shaderPath over src. The shader reads the storage
// image at binding 0 and writes binding 1, one invocation per pixel.
func ProcessImage(dev *device.Device, allocator *memory.Allocator, pool *command.Pool, shaderPath string, src image.Image) (*image.RGBA, error) {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, errors.Newf("cannot process empty %dx%d image", width, height)
	}

	s := newScope(dev, allocator)
	defer s.release()

	pixels := toRGBA(src)
	size := width * height * rgbaSize

	stage, err := s.buffer(size, core1_0.BufferUsageTransferSrc|core1_0.BufferUsageTransferDst)
	if err != nil {
		return nil, err
	}

	stageArena, err := s.arena(stage.MemoryRequirements(), stage.MemoryRequirements().Size, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, err
	}

	err = stage.Bind(stageArena, 0)
	if err != nil {
		return nil, err
	}

	err = stageArena.Map(common.WholeSize, 0)
	if err != nil {
		return nil, err
	}

	err = stage.Write(pixels.Pix[:size])
	if err != nil {
		return nil, err
	}

	srcImage, err := s.deviceImage(width, height, core1_0.ImageUsageTransferDst|core1_0.ImageUsageSampled|core1_0.ImageUsageStorage)
	if err != nil {
		return nil, err
	}

	dstImage, err := s.deviceImage(width, height, core1_0.ImageUsageTransferSrc|core1_0.ImageUsageStorage)
	if err != nil {
		return nil, err
	}

	// Upload
	toTransfer := srcImage.Barrier(core1_0.ImageLayoutTransferDstOptimal, 0, core1_0.AccessTransferWrite)
	err = s.submitTransitions(pool, core1_0.PipelineStageTopOfPipe, core1_0.PipelineStageTransfer, nil, toTransfer)
	if err != nil {
		return nil, err
	}

	srcToGeneral := srcImage.Barrier(core1_0.ImageLayoutGeneral, core1_0.AccessTransferWrite, core1_0.AccessShaderRead)
	dstToGeneral := dstImage.Barrier(core1_0.ImageLayoutGeneral, 0, core1_0.AccessShaderWrite)
	err = s.submit(pool, func(cmd core1_0.CommandBuffer) error {
		err := stage.CmdCopyToImage(cmd, srcImage)
		if err != nil {
			return err
		}

		err = resource.CmdTransition(cmd, core1_0.PipelineStageTransfer, core1_0.PipelineStageComputeShader, srcToGeneral)
		if err != nil {
			return err
		}
		return resource.CmdTransition(cmd, core1_0.PipelineStageTopOfPipe, core1_0.PipelineStageComputeShader, dstToGeneral)
	})
	if err != nil {
		return nil, errors.Wrap(err, "image upload failed")
	}

	err = resource.CommitAll(srcToGeneral, dstToGeneral)
	if err != nil {
		return nil, err
	}

	// Dispatch
	shader, err := s.shader(shaderPath, imageBindings...)
	if err != nil {
		return nil, err
	}

	set, err := s.descriptorSet(shader, func(set core1_0.DescriptorSet) error {
		for binding, img := range []*resource.Image{srcImage, dstImage} {
			err := img.RecreateView()
			if err != nil {
				return err
			}

			info, err := img.DescriptorInfo()
			if err != nil {
				return err
			}

			err = shader.WriteImage(set, binding, info)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	compute, err := s.computePipeline(shader)
	if err != nil {
		return nil, err
	}

	toReadback := dstImage.Barrier(core1_0.ImageLayoutTransferSrcOptimal, core1_0.AccessShaderWrite, core1_0.AccessTransferRead)
	err = s.submitTransitions(pool, core1_0.PipelineStageComputeShader, core1_0.PipelineStageTransfer, func(cmd core1_0.CommandBuffer) {
		compute.Bind(cmd, set)
		compute.Dispatch(cmd, width, height, 1)
	}, toReadback)
	if err != nil {
		return nil, errors.Wrap(err, "image dispatch failed")
	}

	// Readback
	err = s.submit(pool, func(cmd core1_0.CommandBuffer) error {
		return dstImage.CmdCopyToBuffer(cmd, stage)
	})
	if err != nil {
		return nil, errors.Wrap(err, "image readback failed")
	}

	result := image.NewRGBA(image.Rect(0, 0, width, height))
	err = stage.Read(result.Pix)
	if err != nil {
		return nil, err
	}

	dev.Logger().Info("processed image", slog.Int("Width", width), slog.Int("Height", height))
	return result, nil
}

// deviceImage creates an RGBA8 image in its own device-local arena
func (s *scope) deviceImage(width, height int, usage core1_0.ImageUsageFlags) (*resource.Image, error) {
	img, err := s.image(resource.ImageOptions{
		Width:  width,
		Height: height,
		Format: core1_0.FormatR8G8B8A8UnsignedNormalized,
		Usage:  usage,
	})
	if err != nil {
		return nil, err
	}

	requirements := img.MemoryRequirements()
	arena, err := s.arena(requirements, requirements.Size, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}

	err = img.Bind(arena, 0)
	if err != nil {
		return nil, err
	}

	return img, nil
}

// submitTransitions records before (if any) followed by one barrier carrying the
// transitions, waits for the submission, and commits the transitions
func (s *scope) submitTransitions(pool *command.Pool, srcStage, dstStage core1_0.PipelineStageFlags, before func(cmd core1_0.CommandBuffer), transitions ...resource.LayoutTransition) error {
	err := s.submit(pool, func(cmd core1_0.CommandBuffer) error {
		if before != nil {
			before(cmd)
		}
		return resource.CmdTransition(cmd, srcStage, dstStage, transitions...)
	})
	if err != nil {
		return err
	}

	return resource.CommitAll(transitions...)
}
