// Package swapchain presents rendered frames to a surface and paces how many frames are
// in flight at once
package swapchain

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cadence/device"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
	"golang.org/x/exp/slog"
)

// FramesInFlight is how many frames can be recorded or executing at once
const FramesInFlight = 2

// SlotIndex selects one of the FramesInFlight frame slots
type SlotIndex int

// ImageIndex selects a swapchain image, as returned by AcquireNextImage
type ImageIndex int

// ErrOutOfDate is returned when the surface no longer matches the swapchain. Swapchains
// are never recreated, so this ends presentation.
var ErrOutOfDate = errors.New("swapchain is out of date with its surface")

var clearColor = core1_0.ClearValueFloat{0.01, 0.01, 0.01, 0.01}

type Options struct {
	// Format is the preferred surface format, R8G8B8A8 unorm if unset. A surface without
	// it falls back to its first format.
	Format core1_0.Format
	// PresentMode is the preferred present mode, immediate if unset. Surfaces without it
	// use FIFO.
	PresentMode khr_surface.PresentMode
}

// Swapchain owns the swapchain images, their views and framebuffers, the render pass that
// draws into them, and the synchronization objects of each frame slot
type Swapchain struct {
	logger *slog.Logger
	device core1_0.Device

	extension     khr_swapchain.Extension
	swapchain     khr_swapchain.Swapchain
	graphicsQueue core1_0.Queue
	presentQueue  core1_0.Queue

	format       core1_0.Format
	extent       core1_0.Extent2D
	renderPass   core1_0.RenderPass
	images       []core1_0.Image
	views        []core1_0.ImageView
	framebuffers []core1_0.Framebuffer

	slots   frameSlots
	release func()
}

func New(dev *device.Device, surface khr_surface.Surface, extent core1_0.Extent2D, options Options) (*Swapchain, error) {
	indices := dev.Indices()
	if indices.Present == nil {
		return nil, errors.New("device was created without a present queue family")
	}

	logger := dev.Logger()
	vkDevice := dev.VulkanDevice()
	physicalDevice := dev.Context().PhysicalDevice()

	capabilities, _, err := surface.PhysicalDeviceSurfaceCapabilities(physicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "could not query surface capabilities")
	}
	formats, _, err := surface.PhysicalDeviceSurfaceFormats(physicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "could not query surface formats")
	}
	presentModes, _, err := surface.PhysicalDeviceSurfacePresentModes(physicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "could not query surface present modes")
	}

	surfaceFormat, err := chooseSurfaceFormat(logger, formats, options.Format)
	if err != nil {
		return nil, err
	}
	presentMode := choosePresentMode(logger, presentModes, options.PresentMode)
	swapExtent := chooseExtent(capabilities, extent)

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilies []int
	if indices.Graphics != *indices.Present {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilies = []int{indices.Graphics, *indices.Present}
	}

	extension := khr_swapchain.CreateExtensionFromDevice(vkDevice)
	vkSwapchain, _, err := extension.CreateSwapchain(vkDevice, nil, khr_swapchain.SwapchainCreateInfo{
		Surface:            surface,
		MinImageCount:      imageCount(capabilities),
		ImageFormat:        surfaceFormat.Format,
		ImageColorSpace:    surfaceFormat.ColorSpace,
		ImageExtent:        swapExtent,
		ImageArrayLayers:   1,
		ImageUsage:         core1_0.ImageUsageColorAttachment,
		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilies,
		PreTransform:       capabilities.CurrentTransform,
		CompositeAlpha:     khr_surface.CompositeAlphaOpaque,
		PresentMode:        presentMode,
		Clipped:            true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create swapchain")
	}

	s := &Swapchain{
		logger:        logger,
		device:        vkDevice,
		extension:     extension,
		swapchain:     vkSwapchain,
		graphicsQueue: dev.Queue(indices.Graphics),
		presentQueue:  dev.Queue(*indices.Present),
		format:        surfaceFormat.Format,
		extent:        swapExtent,
		slots:         frameSlots{device: vkDevice},
	}

	err = s.createAttachments()
	if err != nil {
		s.destroy()
		return nil, err
	}

	err = s.slots.create()
	if err != nil {
		s.destroy()
		return nil, err
	}

	logger.Debug("Swapchain::New",
		slog.String("Format", surfaceFormat.Format.String()),
		slog.String("PresentMode", presentMode.String()),
		slog.Int("Width", swapExtent.Width),
		slog.Int("Height", swapExtent.Height),
		slog.Int("Images", len(s.images)),
	)
	s.release = dev.Track("swapchain")
	return s, nil
}

func (s *Swapchain) createAttachments() error {
	var err error
	s.renderPass, err = createRenderPass(s.device, s.format)
	if err != nil {
		return err
	}

	s.images, _, err = s.swapchain.SwapchainImages()
	if err != nil {
		return errors.Wrap(err, "could not get swapchain images")
	}

	for index, image := range s.images {
		view, _, err := s.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
			ViewType: core1_0.ImageViewType2D,
			Image:    image,
			Format:   s.format,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     core1_0.ImageAspectColor,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		})
		if err != nil {
			return errors.Wrapf(err, "could not create view for swapchain image %d", index)
		}
		s.views = append(s.views, view)

		framebuffer, _, err := s.device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass:  s.renderPass,
			Attachments: []core1_0.ImageView{view},
			Width:       s.extent.Width,
			Height:      s.extent.Height,
			Layers:      1,
		})
		if err != nil {
			return errors.Wrapf(err, "could not create framebuffer for swapchain image %d", index)
		}
		s.framebuffers = append(s.framebuffers, framebuffer)
	}

	return nil
}

func createRenderPass(device core1_0.Device, format core1_0.Format) (core1_0.RenderPass, error) {
	renderPass, _, err := device.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         format,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create swapchain render pass")
	}
	return renderPass, nil
}

func (s *Swapchain) Format() core1_0.Format {
	return s.format
}

func (s *Swapchain) Extent() core1_0.Extent2D {
	return s.extent
}

func (s *Swapchain) RenderPass() core1_0.RenderPass {
	return s.renderPass
}

func (s *Swapchain) ImageCount() int {
	return len(s.images)
}

// SlotBusy reports whether the slot's previous frame is still executing. It does not
// block.
func (s *Swapchain) SlotBusy(slot SlotIndex) (bool, error) {
	return s.slots.busy(slot)
}

// AcquireNextImage returns the next image to render into, signalling the slot's
// image-available semaphore once the image can be written
func (s *Swapchain) AcquireNextImage(slot SlotIndex) (ImageIndex, error) {
	index, res, err := s.swapchain.AcquireNextImage(common.NoTimeout, s.slots.get(slot).imageAvailable, nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		return 0, errors.Wrap(ErrOutOfDate, "acquire")
	} else if err != nil {
		return 0, errors.Wrap(err, "could not acquire swapchain image")
	}

	if res == khr_swapchain.VKSuboptimal {
		s.logger.Warn("swapchain is suboptimal for its surface (recreation is unsupported)", slog.Int("Slot", int(slot)))
	}

	return ImageIndex(index), nil
}

// BeginRenderPass begins the swapchain render pass on the image's framebuffer, clearing
// it, and sets the viewport and scissor to the full extent
func (s *Swapchain) BeginRenderPass(cmd core1_0.CommandBuffer, image ImageIndex) error {
	renderArea := core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: 0, Y: 0},
		Extent: s.extent,
	}

	err := cmd.CmdBeginRenderPass(core1_0.SubpassContentsInline, core1_0.RenderPassBeginInfo{
		RenderPass:  s.renderPass,
		Framebuffer: s.framebuffers[image],
		RenderArea:  renderArea,
		ClearValues: []core1_0.ClearValue{clearColor},
	})
	if err != nil {
		return errors.Wrap(err, "could not begin render pass")
	}

	cmd.CmdSetViewport([]core1_0.Viewport{
		{
			Width:    float32(s.extent.Width),
			Height:   float32(s.extent.Height),
			MinDepth: 0,
			MaxDepth: 1,
		},
	})
	cmd.CmdSetScissor([]core1_0.Rect2D{renderArea})
	return nil
}

func (s *Swapchain) EndRenderPass(cmd core1_0.CommandBuffer) {
	cmd.CmdEndRenderPass()
}

// SubmitAndPresent submits the slot's recorded commands and queues the image for
// presentation once they finish
func (s *Swapchain) SubmitAndPresent(cmd core1_0.CommandBuffer, image ImageIndex, slot SlotIndex) error {
	frame := s.slots.get(slot)

	err := s.slots.reset(slot)
	if err != nil {
		return err
	}

	_, err = s.graphicsQueue.Submit(frame.inFlight, []core1_0.SubmitInfo{
		{
			WaitSemaphores:   []core1_0.Semaphore{frame.imageAvailable},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{cmd},
			SignalSemaphores: []core1_0.Semaphore{frame.renderFinished},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "could not submit frame for slot %d", slot)
	}
	s.slots.submitted(slot)

	res, err := s.extension.QueuePresent(s.presentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{frame.renderFinished},
		Swapchains:     []khr_swapchain.Swapchain{s.swapchain},
		ImageIndices:   []int{int(image)},
	})
	if res == khr_swapchain.VKErrorOutOfDate {
		return errors.Wrap(ErrOutOfDate, "present")
	} else if err != nil {
		return errors.Wrapf(err, "could not present image %d", image)
	}

	if res == khr_swapchain.VKSuboptimal {
		s.logger.Warn("swapchain is suboptimal for its surface (recreation is unsupported)", slog.Int("Image", int(image)))
	}
	return nil
}

// WaitFrames blocks until every frame submitted through the swapchain has finished executing
func (s *Swapchain) WaitFrames() error {
	return s.slots.wait()
}

// Destroy waits for every frame in flight and then destroys the swapchain and everything
// it owns
func (s *Swapchain) Destroy() error {
	if s.swapchain == nil {
		return nil
	}

	err := s.slots.wait()
	if err != nil {
		return err
	}

	s.destroy()
	s.release()
	return nil
}

func (s *Swapchain) destroy() {
	s.slots.destroy()

	for _, framebuffer := range s.framebuffers {
		framebuffer.Destroy(nil)
	}
	s.framebuffers = nil

	for _, view := range s.views {
		view.Destroy(nil)
	}
	s.views = nil
	s.images = nil

	if s.swapchain != nil {
		s.swapchain.Destroy(nil)
		s.swapchain = nil
	}

	if s.renderPass != nil {
		s.renderPass.Destroy(nil)
		s.renderPass = nil
	}
}
