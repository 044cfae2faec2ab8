package main

import (
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/cadence/device"
	"github.com/vkngwrapper/cadence/interactive"
	"github.com/vkngwrapper/cadence/pipeline"
	"github.com/vkngwrapper/cadence/surface"
	"github.com/vkngwrapper/core/v2"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v2"
	"golang.org/x/exp/slog"
)

const (
	windowWidth  = 800
	windowHeight = 600
)

func init() {
	// SDL event handling must stay on the main thread
	runtime.LockOSThread()
}

// sdlSurface creates surfaces for *sdl.Window handles registered as surface.PlatformCustom
func sdlSurface(instance core1_0.Instance, handle surface.Handle) (khr_surface.Surface, error) {
	window, ok := handle.Custom.(*sdl.Window)
	if !ok {
		return nil, errors.Newf("custom surface handle is %T, not an SDL window", handle.Custom)
	}

	return vkng_sdl2.CreateSurface(instance, khr_surface.CreateExtensionFromInstance(instance), window)
}

func drawableExtent(window *sdl.Window) core1_0.Extent2D {
	width, height := window.VulkanGetDrawableSize()
	return core1_0.Extent2D{Width: int(width), Height: int(height)}
}

func selectPipeline(cfg config) (pipeline.GraphicsConfig, error) {
	graphics, ok := cfg.pipelines[cfg.pipeline]
	if !ok {
		return pipeline.GraphicsConfig{}, errors.Newf("no pipeline configuration named %q", cfg.pipeline)
	}
	return graphics, nil
}

func runInteractive(logger *slog.Logger, cfg config) (err error) {
	options := interactive.Options{
		VertexShader:   cfg.shader("kew.vert.spv"),
		FragmentShader: cfg.shader("kew.frag.spv"),
	}
	graphics, err := selectPipeline(cfg)
	if err != nil {
		return err
	}
	options.Pipeline = &graphics

	err = sdl.Init(sdl.INIT_VIDEO)
	if err != nil {
		return errors.Wrap(err, "could not initialize SDL")
	}
	defer sdl.Quit()

	window, err := sdl.CreateWindow("cadence", sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, windowWidth, windowHeight, sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return errors.Wrap(err, "could not create window")
	}
	defer window.Destroy()

	loader, err := core.CreateLoaderFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return errors.Wrap(err, "could not load vulkan")
	}

	ctx, err := device.NewContext(logger, loader, device.ContextOptions{
		ApplicationName:    "cadence",
		Diagnostics:        cfg.diagnostics,
		InstanceExtensions: window.VulkanGetInstanceExtensions(),
	})
	if err != nil {
		return err
	}
	defer ctx.Destroy()

	registry := surface.NewRegistry()
	registry.Register(surface.PlatformCustom, sdlSurface)

	vkSurface, err := registry.Create(ctx.Instance(), surface.Custom(window))
	if err != nil {
		return err
	}

	indices, err := device.ResolveQueueFamilies(ctx)
	if err != nil {
		vkSurface.Destroy(nil)
		return err
	}

	err = indices.ResolvePresent(ctx, vkSurface)
	if err != nil {
		vkSurface.Destroy(nil)
		return err
	}

	dev, err := device.New(logger, ctx, indices, device.Options{Presentation: true})
	if err != nil {
		vkSurface.Destroy(nil)
		return err
	}
	defer func() {
		destroyErr := dev.Destroy()
		if err == nil {
			err = destroyErr
		}
	}()

	// The session owns the surface from here on
	session, err := interactive.Start(logger, dev, vkSurface, drawableExtent(window), options)
	if err != nil {
		return err
	}

	pumpEvents(window, session)
	return session.Close()
}

// pumpEvents requests a redraw every iteration until the window closes or the session
// stops on its own
func pumpEvents(window *sdl.Window, session *interactive.Session) {
	for {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				return
			case *sdl.WindowEvent:
				if e.Event == sdl.WINDOWEVENT_RESIZED {
					session.Post(interactive.Resize(drawableExtent(window)))
				}
			}
		}

		select {
		case <-session.Done():
			return
		default:
		}

		session.Post(interactive.Redraw())
		sdl.Delay(1)
	}
}
