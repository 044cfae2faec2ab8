package swapchain

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"golang.org/x/exp/slog"
)

const defaultFormat = core1_0.FormatR8G8B8A8UnsignedNormalized

func chooseSurfaceFormat(logger *slog.Logger, formats []khr_surface.SurfaceFormat, preferred core1_0.Format) (khr_surface.SurfaceFormat, error) {
	if len(formats) == 0 {
		return khr_surface.SurfaceFormat{}, errors.New("surface has no formats")
	}

	if preferred == core1_0.FormatUndefined {
		preferred = defaultFormat
	}

	for _, format := range formats {
		if format.Format == preferred && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format, nil
		}
	}

	logger.Warn("did not find desired surface format (defaulting to first enumerated)",
		slog.String("Desired", preferred.String()),
		slog.String("Chosen", formats[0].Format.String()),
	)
	return formats[0], nil
}

func choosePresentMode(logger *slog.Logger, modes []khr_surface.PresentMode, preferred khr_surface.PresentMode) khr_surface.PresentMode {
	for _, mode := range modes {
		if mode == preferred {
			return mode
		}
	}

	logger.Warn("desired present mode unavailable (default FIFO)", slog.String("Desired", preferred.String()))
	return khr_surface.PresentModeFIFO
}

// chooseExtent uses the surface's extent unless the surface leaves it to the swapchain, in
// which case the requested extent is clamped to what the surface allows
func chooseExtent(capabilities *khr_surface.SurfaceCapabilities, requested core1_0.Extent2D) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	return core1_0.Extent2D{
		Width:  clamp(requested.Width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: clamp(requested.Height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func imageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	count := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && count > capabilities.MaxImageCount {
		count = capabilities.MaxImageCount
	}
	return count
}
