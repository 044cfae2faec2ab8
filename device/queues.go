package device

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"golang.org/x/exp/slog"
)

// QueueFamilyIndices names the queue families the device will create queues on. Graphics,
// Compute and Transfer are always resolved; Present is nil until ResolvePresent has been
// called with a surface.
type QueueFamilyIndices struct {
	Graphics int
	Compute  int
	Transfer int
	Present  *int
}

func (i QueueFamilyIndices) String() string {
	present := "unresolved"
	if i.Present != nil {
		present = fmt.Sprintf("%d", *i.Present)
	}
	return fmt.Sprintf("graphics=%d compute=%d transfer=%d present=%s", i.Graphics, i.Compute, i.Transfer, present)
}

// Unique lists every family that needs a queue, without repeats, in
// graphics/compute/transfer/present order
func (i QueueFamilyIndices) Unique() []int {
	families := []int{i.Graphics, i.Compute, i.Transfer}
	if i.Present != nil {
		families = append(families, *i.Present)
	}

	var unique []int
	for _, family := range families {
		seen := false
		for _, existing := range unique {
			if existing == family {
				seen = true
				break
			}
		}

		if !seen {
			unique = append(unique, family)
		}
	}

	return unique
}

// ResolveQueueFamilies picks queue families for the context's physical device. Compute and
// transfer prefer families dedicated to that work so they can run beside graphics.
func ResolveQueueFamilies(ctx *Context) (QueueFamilyIndices, error) {
	families := ctx.PhysicalDevice().QueueFamilyProperties()

	graphics, compute, transfer := -1, -1, -1
	dedicatedCompute, dedicatedTransfer := -1, -1

	for index, family := range families {
		if family.QueueCount < 1 {
			continue
		}

		hasGraphics := family.QueueFlags&core1_0.QueueGraphics != 0
		hasCompute := family.QueueFlags&core1_0.QueueCompute != 0
		hasTransfer := family.QueueFlags&core1_0.QueueTransfer != 0

		if hasGraphics && graphics < 0 {
			graphics = index
		}

		if hasCompute {
			if compute < 0 {
				compute = index
			}
			if !hasGraphics && dedicatedCompute < 0 {
				dedicatedCompute = index
			}
		}

		if hasTransfer {
			if transfer < 0 {
				transfer = index
			}
			if !hasGraphics && !hasCompute && dedicatedTransfer < 0 {
				dedicatedTransfer = index
			}
		}
	}

	if dedicatedCompute >= 0 {
		compute = dedicatedCompute
	}
	if dedicatedTransfer >= 0 {
		transfer = dedicatedTransfer
	}

	// Graphics and compute queues accept transfer commands even when the family does not
	// advertise the bit
	if transfer < 0 {
		transfer = graphics
	}

	if graphics < 0 || compute < 0 || transfer < 0 {
		return QueueFamilyIndices{}, errors.Newf("failed to find required queue families (graphics=%d compute=%d transfer=%d)", graphics, compute, transfer)
	}

	indices := QueueFamilyIndices{
		Graphics: graphics,
		Compute:  compute,
		Transfer: transfer,
	}

	ctx.Logger().Debug("Device::ResolveQueueFamilies", slog.String("indices", indices.String()))
	return indices, nil
}

// ResolvePresent finds a family that can present to the surface, preferring the graphics
// family so that rendering and presentation share a queue
func (i *QueueFamilyIndices) ResolvePresent(ctx *Context, surface khr_surface.Surface) error {
	physicalDevice := ctx.PhysicalDevice()

	supported, _, err := surface.PhysicalDeviceSurfaceSupport(physicalDevice, i.Graphics)
	if err != nil {
		return errors.Wrap(err, "could not query surface support")
	}
	if supported {
		present := i.Graphics
		i.Present = &present
		return nil
	}

	families := physicalDevice.QueueFamilyProperties()
	for index := range families {
		supported, _, err := surface.PhysicalDeviceSurfaceSupport(physicalDevice, index)
		if err != nil {
			return errors.Wrap(err, "could not query surface support")
		}

		if supported {
			present := index
			i.Present = &present
			return nil
		}
	}

	return errors.New("no present-capable queue family")
}
