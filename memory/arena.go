package memory

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/memutils"
	"github.com/vkngwrapper/cadence/internal/utils"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

// Arena is a single device allocation. Buffers and images are bound into it at fixed
// offsets, and host-visible arenas can be mapped for bounds-checked reads and writes.
type Arena struct {
	allocator       *Allocator
	handle          ArenaHandle
	memory          core1_0.DeviceMemory
	size            int
	memoryTypeIndex int
	heapIndex       int

	mapLock   utils.OptionalMutex
	mapData   unsafe.Pointer
	mapOffset int
	mapSize   int

	freed   bool
	release func()
}

func (a *Arena) Handle() ArenaHandle {
	return a.handle
}

func (a *Arena) Allocator() *Allocator {
	return a.allocator
}

func (a *Arena) Size() int {
	return a.size
}

func (a *Arena) MemoryTypeIndex() int {
	return a.memoryTypeIndex
}

func (a *Arena) VulkanDeviceMemory() core1_0.DeviceMemory {
	return a.memory
}

func (a *Arena) IsMapped() bool {
	a.mapLock.Lock()
	defer a.mapLock.Unlock()

	return a.mapData != nil
}

func (a *Arena) staleErr(operation string) error {
	return errors.Wrapf(ErrStaleHandle, "%s on arena %s", operation, a.handle)
}

// Map maps size bytes starting at offset into host memory. Pass common.WholeSize to map to
// the end of the arena. Mapping an arena that is already mapped fails with ErrAlreadyMapped
// and leaves the existing mapping in place.
func (a *Arena) Map(size int, offset int) error {
	a.mapLock.Lock()
	defer a.mapLock.Unlock()

	if a.freed {
		return a.staleErr("map")
	}

	if a.mapData != nil {
		a.allocator.logger.Warn("map call on mapped memory", slog.String("Arena", a.handle.String()))
		return errors.Wrapf(ErrAlreadyMapped, "arena %s", a.handle)
	}

	flags := a.allocator.context.MemoryTypeProperties(a.memoryTypeIndex).PropertyFlags
	if flags&core1_0.MemoryPropertyHostVisible == 0 {
		return errors.Wrapf(ErrNotHostVisible, "arena %s has memory type %d (%s)", a.handle, a.memoryTypeIndex, flags)
	}

	if offset < 0 || offset >= a.size {
		return errors.Wrapf(ErrOutOfBounds, "map out of bounds: arena size %d, map size %d, map offset %d", a.size, size, offset)
	}

	mapSize := size
	if size == common.WholeSize {
		mapSize = a.size - offset
	}

	if mapSize <= 0 || mapSize > a.size-offset {
		return errors.Wrapf(ErrOutOfBounds, "map out of bounds: arena size %d, map size %d, map offset %d", a.size, size, offset)
	}

	data, _, err := a.memory.Map(offset, size, 0)
	if err != nil {
		return errors.Wrapf(err, "could not map arena %s", a.handle)
	}

	a.mapData = data
	a.mapOffset = offset
	a.mapSize = mapSize
	return nil
}

// Unmap releases the host mapping. Unmapping an arena that is not mapped fails with
// ErrNotMapped.
func (a *Arena) Unmap() error {
	a.mapLock.Lock()
	defer a.mapLock.Unlock()

	if a.freed {
		return a.staleErr("unmap")
	}

	if a.mapData == nil {
		a.allocator.logger.Warn("unmap call on unmapped memory", slog.String("Arena", a.handle.String()))
		return errors.Wrapf(ErrNotMapped, "arena %s", a.handle)
	}

	a.memory.Unmap()
	a.mapData = nil
	a.mapOffset = 0
	a.mapSize = 0
	return nil
}

// checkAccess validates a host access of size bytes at an arena-relative offset and returns
// the host address of its first byte. Callers hold mapLock.
func (a *Arena) checkAccess(operation string, size int, offset int) (unsafe.Pointer, error) {
	if a.freed {
		return nil, a.staleErr(operation)
	}

	if a.mapData == nil {
		return nil, errors.Wrapf(ErrNotMapped, "%s on arena %s", operation, a.handle)
	}

	// Compared by subtraction so huge offsets cannot wrap around
	if size < 0 || offset < 0 || offset > a.size || size > a.size-offset {
		return nil, errors.Wrapf(ErrOutOfBounds, "%s out of bounds: arena size %d, data size %d, data offset %d", operation, a.size, size, offset)
	}

	if offset < a.mapOffset || offset-a.mapOffset > a.mapSize || size > a.mapSize-(offset-a.mapOffset) {
		return nil, errors.Wrapf(ErrOutOfBounds, "%s outside mapped range [%d, %d): data size %d, data offset %d", operation, a.mapOffset, a.mapOffset+a.mapSize, size, offset)
	}

	return unsafe.Add(a.mapData, offset-a.mapOffset), nil
}

// Read copies size bytes at offset in the arena into dst
func (a *Arena) Read(dst []byte, size int, offset int) error {
	if size > len(dst) {
		return errors.Newf("read of %d bytes into a %d byte destination", size, len(dst))
	}

	a.mapLock.Lock()
	defer a.mapLock.Unlock()

	src, err := a.checkAccess("read", size, offset)
	if err != nil {
		return err
	}

	if size > 0 {
		copy(dst[:size], unsafe.Slice((*byte)(src), size))
	}
	return nil
}

// Write copies the first size bytes of src into the arena at offset
func (a *Arena) Write(src []byte, size int, offset int) error {
	if size > len(src) {
		return errors.Newf("write of %d bytes from a %d byte source", size, len(src))
	}

	a.mapLock.Lock()
	defer a.mapLock.Unlock()

	dst, err := a.checkAccess("write", size, offset)
	if err != nil {
		return err
	}

	if size > 0 {
		copy(unsafe.Slice((*byte)(dst), size), src[:size])
	}
	return nil
}

// Flush makes host writes in the range visible to the device. It does nothing for
// host-coherent memory.
func (a *Arena) Flush(offset, size int) error {
	return a.flushOrInvalidate(offset, size, false)
}

// Invalidate makes device writes in the range visible to the host. It does nothing for
// host-coherent memory.
func (a *Arena) Invalidate(offset, size int) error {
	return a.flushOrInvalidate(offset, size, true)
}

func (a *Arena) flushOrInvalidate(offset, size int, invalidate bool) error {
	if !a.allocator.context.IsMemoryTypeHostNonCoherent(a.memoryTypeIndex) {
		return nil
	}

	a.mapLock.Lock()
	defer a.mapLock.Unlock()

	if a.freed {
		return a.staleErr("flush")
	}
	if a.mapData == nil {
		return errors.Wrapf(ErrNotMapped, "flush on arena %s", a.handle)
	}

	atomSize := uint(1)
	if limits := a.allocator.context.Limits(); limits != nil && limits.NonCoherentAtomSize > 1 {
		atomSize = uint(limits.NonCoherentAtomSize)
	}

	if offset < 0 || offset > a.size {
		return errors.Wrapf(ErrOutOfBounds, "flush out of bounds: arena size %d, flush offset %d", a.size, offset)
	}
	if size == common.WholeSize || size > a.size-offset {
		size = a.size - offset
	}
	if size < 0 {
		return errors.Wrapf(ErrOutOfBounds, "flush of negative size %d", size)
	}

	// Ranges must be aligned to the non-coherent atom size
	start := memutils.AlignDown(offset, atomSize)
	end := memutils.AlignUp(offset+size, atomSize)
	if end > a.size {
		end = a.size
	}

	ranges := []core1_0.MappedMemoryRange{
		{
			Memory: a.memory,
			Offset: start,
			Size:   end - start,
		},
	}

	vkDevice := a.allocator.device.VulkanDevice()
	var err error
	if invalidate {
		_, err = vkDevice.InvalidateMappedMemoryRanges(ranges)
	} else {
		_, err = vkDevice.FlushMappedMemoryRanges(ranges)
	}
	return err
}

// BindBuffer binds a buffer to the arena at offset
func (a *Arena) BindBuffer(buffer core1_0.Buffer, offset int) error {
	a.mapLock.Lock()
	defer a.mapLock.Unlock()

	if a.freed {
		return a.staleErr("bind buffer")
	}

	_, err := buffer.BindBufferMemory(a.memory, offset)
	return err
}

// BindImage binds an image to the arena at offset
func (a *Arena) BindImage(image core1_0.Image, offset int) error {
	a.mapLock.Lock()
	defer a.mapLock.Unlock()

	if a.freed {
		return a.staleErr("bind image")
	}

	_, err := image.BindImageMemory(a.memory, offset)
	return err
}

// Free unmaps the arena if needed and returns its memory to the device. Resources bound
// to the arena must be destroyed first.
func (a *Arena) Free() error {
	a.mapLock.Lock()
	defer a.mapLock.Unlock()

	if a.freed {
		return a.staleErr("free")
	}

	if a.mapData != nil {
		a.memory.Unmap()
		a.mapData = nil
	}

	err := a.allocator.freeArena(a)
	if err != nil {
		return err
	}

	a.freed = true
	return nil
}

// WriteSlice copies data into the arena at offset
func WriteSlice[T any](arena *Arena, data []T, offset int) error {
	if len(data) == 0 {
		return nil
	}

	size := len(data) * int(unsafe.Sizeof(data[0]))
	bytes := unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), size)
	return arena.Write(bytes, size, offset)
}

// ReadSlice fills out from the arena at offset
func ReadSlice[T any](arena *Arena, out []T, offset int) error {
	if len(out) == 0 {
		return nil
	}

	size := len(out) * int(unsafe.Sizeof(out[0]))
	bytes := unsafe.Slice((*byte)(unsafe.Pointer(&out[0])), size)
	return arena.Read(bytes, size, offset)
}
