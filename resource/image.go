package resource

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cadence/device"
	"github.com/vkngwrapper/cadence/memory"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

type ImageOptions struct {
	Width  int
	Height int
	Format core1_0.Format
	Usage  core1_0.ImageUsageFlags
}

// Image is a single-mip, single-layer 2D color image. Its layout is bookkeeping of the
// last committed transition and only moves through Commit.
type Image struct {
	logger       *slog.Logger
	device       core1_0.Device
	image        core1_0.Image
	view         core1_0.ImageView
	format       core1_0.Format
	extent       core1_0.Extent3D
	subresource  core1_0.ImageSubresourceRange
	requirements *core1_0.MemoryRequirements

	layout           core1_0.ImageLayout
	layoutGeneration uint64

	binding binding
	release func()
}

func NewImage(dev *device.Device, options ImageOptions) (*Image, error) {
	extent := core1_0.Extent3D{
		Width:  options.Width,
		Height: options.Height,
		Depth:  1,
	}

	image, _, err := dev.VulkanDevice().CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType:     core1_0.ImageType2D,
		Format:        options.Format,
		Extent:        extent,
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       core1_0.Samples1,
		Tiling:        core1_0.ImageTilingOptimal,
		Usage:         options.Usage,
		SharingMode:   core1_0.SharingModeExclusive,
		InitialLayout: core1_0.ImageLayoutUndefined,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not create %dx%d image", options.Width, options.Height)
	}

	dev.Logger().Debug("Image::New",
		slog.Int("Width", options.Width),
		slog.Int("Height", options.Height),
		slog.String("Format", options.Format.String()),
	)

	return &Image{
		logger: dev.Logger(),
		device: dev.VulkanDevice(),
		image:  image,
		format: options.Format,
		extent: extent,
		subresource: core1_0.ImageSubresourceRange{
			AspectMask:     core1_0.ImageAspectColor,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		requirements: image.MemoryRequirements(),
		layout:       core1_0.ImageLayoutUndefined,
		binding:      binding{kind: "image"},
		release:      dev.Track("image"),
	}, nil
}

func (i *Image) VulkanImage() core1_0.Image {
	return i.image
}

func (i *Image) Format() core1_0.Format {
	return i.format
}

func (i *Image) Extent() core1_0.Extent3D {
	return i.extent
}

func (i *Image) SubresourceRange() core1_0.ImageSubresourceRange {
	return i.subresource
}

// Layout is the layout the image was left in by the last committed transition
func (i *Image) Layout() core1_0.ImageLayout {
	return i.layout
}

func (i *Image) MemoryRequirements() *core1_0.MemoryRequirements {
	return i.requirements
}

// Bind places the image in the arena at offset. The image can only be bound once.
func (i *Image) Bind(arena *memory.Arena, offset int) error {
	return i.binding.bind(i.logger, i.requirements, arena, offset, func(arena *memory.Arena, offset int) error {
		return arena.BindImage(i.image, offset)
	})
}

func (i *Image) Binding() (Binding, bool) {
	return i.binding.get()
}

func (i *Image) Offset() (int, error) {
	return i.binding.offset()
}

// RecreateView replaces the image's view
func (i *Image) RecreateView() error {
	if _, bound := i.binding.get(); !bound {
		return errors.Wrap(ErrUnbound, "cannot create a view of an image without memory")
	}

	view, _, err := i.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		ViewType:         core1_0.ImageViewType2D,
		Image:            i.image,
		Format:           i.format,
		SubresourceRange: i.subresource,
	})
	if err != nil {
		return errors.Wrap(err, "could not create image view")
	}

	if i.view != nil {
		i.view.Destroy(nil)
	}
	i.view = view
	return nil
}

// View returns the image's view, or nil if none has been created
func (i *Image) View() core1_0.ImageView {
	return i.view
}

// DescriptorInfo describes the image's view in its current layout, creating the view
// if it does not exist yet
func (i *Image) DescriptorInfo() (core1_0.DescriptorImageInfo, error) {
	if i.view == nil {
		i.logger.Warn("view missing for descriptor info (recreated view)")
		err := i.RecreateView()
		if err != nil {
			return core1_0.DescriptorImageInfo{}, err
		}
	}

	return core1_0.DescriptorImageInfo{
		ImageView:   i.view,
		ImageLayout: i.layout,
	}, nil
}

// Barrier describes a transition from the image's current layout to newLayout. Recording
// it is up to the caller, and the image's layout only changes once the transition is
// passed to Commit.
func (i *Image) Barrier(newLayout core1_0.ImageLayout, srcAccess, dstAccess core1_0.AccessFlags) LayoutTransition {
	return LayoutTransition{
		image:      i,
		generation: i.layoutGeneration,
		barrier: core1_0.ImageMemoryBarrier{
			SrcAccessMask:       srcAccess,
			DstAccessMask:       dstAccess,
			OldLayout:           i.layout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               i.image,
			SubresourceRange:    i.subresource,
		},
	}
}

// Commit records that the transition's barrier has been submitted. It fails with
// ErrStaleTransition if the transition belongs to another image or was built before
// another transition was committed.
func (i *Image) Commit(transition LayoutTransition) error {
	if transition.image != i {
		return errors.Wrap(ErrStaleTransition, "transition was built for a different image")
	}

	if transition.generation != i.layoutGeneration {
		return errors.Wrapf(ErrStaleTransition, "transition %s -> %s was built before the image moved to %s",
			transition.barrier.OldLayout, transition.barrier.NewLayout, i.layout)
	}

	i.layout = transition.barrier.NewLayout
	i.layoutGeneration++
	return nil
}

func (i *Image) copyRegion() core1_0.BufferImageCopy {
	return core1_0.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: core1_0.ImageSubresourceLayers{
			AspectMask:     i.subresource.AspectMask,
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageOffset: core1_0.Offset3D{},
		ImageExtent: i.extent,
	}
}

// CmdCopyToBuffer records a copy of the full image into the buffer from the image's
// current layout, which must be transfer-src or general
func (i *Image) CmdCopyToBuffer(cmd core1_0.CommandBuffer, buffer *Buffer) error {
	if i.layout != core1_0.ImageLayoutTransferSrcOptimal && i.layout != core1_0.ImageLayoutGeneral {
		return errors.Newf("cannot copy out of image in layout %s", i.layout)
	}

	return cmd.CmdCopyImageToBuffer(i.image, i.layout, buffer.buffer, []core1_0.BufferImageCopy{i.copyRegion()})
}

func (i *Image) Destroy() {
	if i.image == nil {
		return
	}

	if i.view != nil {
		i.view.Destroy(nil)
		i.view = nil
	}

	i.image.Destroy(nil)
	i.image = nil
	i.release()
}
