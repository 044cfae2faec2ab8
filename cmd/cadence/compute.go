package main

import (
	"image"
	_ "image/jpeg"
	"image/png"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cadence/command"
	"github.com/vkngwrapper/cadence/compute"
	"github.com/vkngwrapper/cadence/device"
	"github.com/vkngwrapper/cadence/memory"
	"github.com/vkngwrapper/core/v2"
	"golang.org/x/exp/slog"
)

var squareInput = []int32{-5, 10, -4}

func runCompute(logger *slog.Logger, cfg config, selected program) (err error) {
	loader, err := core.CreateSystemLoader()
	if err != nil {
		return errors.Wrap(err, "could not load vulkan")
	}

	ctx, err := device.NewContext(logger, loader, device.ContextOptions{
		ApplicationName: "cadence",
		Diagnostics:     cfg.diagnostics,
		Headless:        true,
	})
	if err != nil {
		return err
	}
	defer ctx.Destroy()

	indices, err := device.ResolveQueueFamilies(ctx)
	if err != nil {
		return err
	}

	dev, err := device.New(logger, ctx, indices, device.Options{})
	if err != nil {
		return err
	}
	defer func() {
		destroyErr := dev.Destroy()
		if err == nil {
			err = destroyErr
		}
	}()

	allocator, err := memory.New(logger, dev, memory.CreateOptions{})
	if err != nil {
		return err
	}
	defer allocator.Destroy()

	pool, err := command.NewPool(dev, indices.Compute)
	if err != nil {
		return err
	}
	defer pool.Destroy()

	switch selected {
	case programSquare:
		_, err = compute.Square(dev, allocator, pool, cfg.shader("sqr.spv"), squareInput)
	case programImage:
		err = processImage(dev, allocator, pool, cfg)
	}

	logger.Debug("allocator statistics", slog.String("Stats", allocator.BuildStatsString()))
	return err
}

func processImage(dev *device.Device, allocator *memory.Allocator, pool *command.Pool, cfg config) error {
	in, err := os.Open(cfg.in)
	if err != nil {
		return errors.Wrap(err, "could not open input image")
	}
	defer in.Close()

	src, _, err := image.Decode(in)
	if err != nil {
		return errors.Wrapf(err, "could not decode %s", cfg.in)
	}

	result, err := compute.ProcessImage(dev, allocator, pool, cfg.shader("img.spv"), src)
	if err != nil {
		return err
	}

	out, err := os.Create(cfg.out)
	if err != nil {
		return errors.Wrap(err, "could not create output image")
	}
	defer out.Close()

	return png.Encode(out, result)
}
