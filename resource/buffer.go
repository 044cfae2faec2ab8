package resource

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cadence/device"
	"github.com/vkngwrapper/cadence/memory"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

// Buffer is a device buffer that is bound at most once to an arena
type Buffer struct {
	logger       *slog.Logger
	buffer       core1_0.Buffer
	size         int
	usage        core1_0.BufferUsageFlags
	requirements *core1_0.MemoryRequirements

	binding binding
	release func()
}

func NewBuffer(dev *device.Device, size int, usage core1_0.BufferUsageFlags) (*Buffer, error) {
	buffer, _, err := dev.VulkanDevice().CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not create buffer of %d bytes", size)
	}

	dev.Logger().Debug("Buffer::New", slog.Int("Size", size), slog.String("Usage", usage.String()))
	return &Buffer{
		logger:       dev.Logger(),
		buffer:       buffer,
		size:         size,
		usage:        usage,
		requirements: buffer.MemoryRequirements(),
		binding:      binding{kind: "buffer"},
		release:      dev.Track("buffer"),
	}, nil
}

func (b *Buffer) VulkanBuffer() core1_0.Buffer {
	return b.buffer
}

func (b *Buffer) Size() int {
	return b.size
}

func (b *Buffer) MemoryRequirements() *core1_0.MemoryRequirements {
	return b.requirements
}

// Bind places the buffer in the arena at offset. The buffer can only be bound once.
func (b *Buffer) Bind(arena *memory.Arena, offset int) error {
	return b.binding.bind(b.logger, b.requirements, arena, offset, func(arena *memory.Arena, offset int) error {
		return arena.BindBuffer(b.buffer, offset)
	})
}

func (b *Buffer) Binding() (Binding, bool) {
	return b.binding.get()
}

// Offset is the buffer's offset in its arena
func (b *Buffer) Offset() (int, error) {
	return b.binding.offset()
}

// DescriptorInfo describes the full buffer
func (b *Buffer) DescriptorInfo() core1_0.DescriptorBufferInfo {
	return core1_0.DescriptorBufferInfo{
		Buffer: b.buffer,
		Offset: 0,
		Range:  b.size,
	}
}

// Write copies src to the start of the buffer through its mapped arena
func (b *Buffer) Write(src []byte) error {
	if len(src) > b.size {
		return errors.Wrapf(memory.ErrOutOfBounds, "write of %d bytes to buffer of %d bytes", len(src), b.size)
	}

	arena, offset, err := b.binding.arena()
	if err != nil {
		return err
	}

	return arena.Write(src, len(src), offset)
}

// Read fills dst from the start of the buffer through its mapped arena
func (b *Buffer) Read(dst []byte) error {
	if len(dst) > b.size {
		return errors.Wrapf(memory.ErrOutOfBounds, "read of %d bytes from buffer of %d bytes", len(dst), b.size)
	}

	arena, offset, err := b.binding.arena()
	if err != nil {
		return err
	}

	return arena.Read(dst, len(dst), offset)
}

// CmdCopyToImage records a copy of the buffer's contents over the full image. The image
// must be in transfer-dst or general layout.
func (b *Buffer) CmdCopyToImage(cmd core1_0.CommandBuffer, image *Image) error {
	layout := image.Layout()
	if layout != core1_0.ImageLayoutTransferDstOptimal && layout != core1_0.ImageLayoutGeneral {
		return errors.Newf("cannot copy into image in layout %s", layout)
	}

	return cmd.CmdCopyBufferToImage(b.buffer, image.image, layout, []core1_0.BufferImageCopy{image.copyRegion()})
}

func (b *Buffer) Destroy() {
	if b.buffer == nil {
		return
	}

	b.buffer.Destroy(nil)
	b.buffer = nil
	b.release()
}
