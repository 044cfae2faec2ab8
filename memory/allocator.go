package memory

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/memutils"
	"github.com/vkngwrapper/cadence/device"
	"github.com/vkngwrapper/cadence/internal/utils"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

type CreateOptions struct {
	// Synchronized guards the arena table and each arena's mapping state with mutexes.
	// Leave it off when one goroutine owns the device.
	Synchronized bool
	// HeapSizeLimits caps the bytes allocated from each heap. A zero entry means no limit.
	// If provided, the length must equal the number of memory heaps.
	HeapSizeLimits []int
}

// ArenaHandle identifies an arena in its Allocator. Handles stay comparable and cheap to
// copy after the arena is freed, but no longer resolve.
type ArenaHandle struct {
	handle utils.Handle
}

func (h ArenaHandle) IsZero() bool {
	return h.handle.IsZero()
}

func (h ArenaHandle) String() string {
	return h.handle.String()
}

// Allocator owns every Arena allocated from one device, addressed by generational handles
type Allocator struct {
	logger       *slog.Logger
	device       *device.Device
	context      *device.Context
	synchronized bool

	blockCount  [common.MaxMemoryHeaps]uint32
	blockBytes  [common.MaxMemoryHeaps]uint64
	memoryCount uint32
	heapLimits  []int

	arenas  *utils.Table[*Arena]
	release func()
}

func New(logger *slog.Logger, dev *device.Device, options CreateOptions) (*Allocator, error) {
	ctx := dev.Context()

	heapCount := ctx.MemoryHeapCount()
	if len(options.HeapSizeLimits) > 0 && len(options.HeapSizeLimits) != heapCount {
		return nil, errors.New("memory.CreateOptions.HeapSizeLimits was provided, but the length does not equal the number of PhysicalDevice heaps")
	}

	limits := ctx.Limits()
	if limits != nil {
		err := memutils.CheckPow2(limits.NonCoherentAtomSize, "device nonCoherentAtomSize")
		if err != nil {
			return nil, err
		}
	}

	heapLimits := make([]int, heapCount)
	copy(heapLimits, options.HeapSizeLimits)

	return &Allocator{
		logger:       logger,
		device:       dev,
		context:      ctx,
		synchronized: options.Synchronized,
		heapLimits:   heapLimits,
		arenas:       utils.NewTable[*Arena](options.Synchronized, 16),
		release:      dev.Track("memory allocator"),
	}, nil
}

func (a *Allocator) Device() *device.Device {
	return a.device
}

// Allocate performs one real device allocation of size bytes from the memory type
func (a *Allocator) Allocate(size int, memoryTypeIndex int) (arena *Arena, err error) {
	a.logger.Debug("Allocator::Allocate", slog.Int("Size", size), slog.Int("MemoryTypeIndex", memoryTypeIndex))

	if memoryTypeIndex < 0 || memoryTypeIndex >= a.context.MemoryTypeCount() {
		return nil, errors.Newf("memory type index %d is invalid, the device has %d memory types", memoryTypeIndex, a.context.MemoryTypeCount())
	}
	if size <= 0 {
		return nil, errors.Newf("cannot allocate an arena of %d bytes", size)
	}

	newCount := atomic.AddUint32(&a.memoryCount, 1)
	defer func() {
		if err != nil {
			atomic.AddUint32(&a.memoryCount, ^uint32(0))
		}
	}()

	limits := a.context.Limits()
	if limits != nil && limits.MaxMemoryAllocationCount > 0 && int(newCount) > limits.MaxMemoryAllocationCount {
		return nil, errors.Wrapf(core1_0.VKErrorTooManyObjects.ToError(), "device allows %d allocations", limits.MaxMemoryAllocationCount)
	}

	heapIndex := a.context.MemoryTypeIndexToHeapIndex(memoryTypeIndex)
	err = a.addBlockAllocation(heapIndex, size)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			a.removeBlockAllocation(heapIndex, size)
		}
	}()

	vulkanMemory, _, err := a.device.VulkanDevice().AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not allocate %d bytes from memory type %d", size, memoryTypeIndex)
	}

	arena = &Arena{
		allocator:       a,
		memory:          vulkanMemory,
		size:            size,
		memoryTypeIndex: memoryTypeIndex,
		heapIndex:       heapIndex,
		mapLock:         utils.OptionalMutex{Enabled: a.synchronized},
		release:         a.device.Track("memory arena"),
	}
	arena.handle = ArenaHandle{handle: a.arenas.Insert(arena)}

	return arena, nil
}

// AllocateFor allocates an arena sized to the requirements from the first compatible memory
// type with the requested properties
func (a *Allocator) AllocateFor(requirements *core1_0.MemoryRequirements, properties core1_0.MemoryPropertyFlags) (*Arena, error) {
	memoryTypeIndex, err := a.context.FindMemoryType(requirements.MemoryTypeBits, properties)
	if err != nil {
		return nil, err
	}

	return a.Allocate(requirements.Size, memoryTypeIndex)
}

// Resolve looks up a live arena
func (a *Allocator) Resolve(handle ArenaHandle) (*Arena, error) {
	arena, ok := a.arenas.Get(handle.handle)
	if !ok {
		return nil, errors.Wrapf(ErrStaleHandle, "arena %s", handle)
	}

	return arena, nil
}

// ArenaCount is the number of arenas that have been allocated and not freed
func (a *Allocator) ArenaCount() int {
	return a.arenas.Len()
}

func (a *Allocator) freeArena(arena *Arena) error {
	_, ok := a.arenas.Remove(arena.handle.handle)
	if !ok {
		return errors.Wrapf(ErrStaleHandle, "arena %s was already freed", arena.handle)
	}

	arena.memory.Free(nil)
	a.removeBlockAllocation(arena.heapIndex, arena.size)
	atomic.AddUint32(&a.memoryCount, ^uint32(0))
	arena.release()

	return nil
}

func (a *Allocator) addBlockAllocation(heapIndex, size int) error {
	limit := a.heapLimits[heapIndex]
	if limit == 0 {
		atomic.AddUint64(&a.blockBytes[heapIndex], uint64(size))
		atomic.AddUint32(&a.blockCount[heapIndex], 1)
		return nil
	}

	for {
		currentVal := atomic.LoadUint64(&a.blockBytes[heapIndex])
		targetVal := currentVal + uint64(size)

		if targetVal > uint64(limit) {
			return errors.Wrapf(core1_0.VKErrorOutOfDeviceMemory.ToError(), "heap %d is limited to %d bytes", heapIndex, limit)
		}

		if atomic.CompareAndSwapUint64(&a.blockBytes[heapIndex], currentVal, targetVal) {
			break
		}
	}

	atomic.AddUint32(&a.blockCount[heapIndex], 1)
	return nil
}

func (a *Allocator) removeBlockAllocation(heapIndex, size int) {
	if atomic.LoadUint64(&a.blockBytes[heapIndex]) < uint64(size) {
		panic(fmt.Sprintf("block bytes for heapIndex %d went negative", heapIndex))
	}
	atomic.AddUint64(&a.blockBytes[heapIndex], ^uint64(size-1))

	if atomic.LoadUint32(&a.blockCount[heapIndex]) == 0 {
		panic(fmt.Sprintf("block count for heapIndex %d went negative", heapIndex))
	}
	atomic.AddUint32(&a.blockCount[heapIndex], ^uint32(0))
}

// Statistics reports each heap's arenas. Every arena is one block holding one allocation.
func (a *Allocator) Statistics() []memutils.Statistics {
	stats := make([]memutils.Statistics, a.context.MemoryHeapCount())
	for heapIndex := range stats {
		count := int(atomic.LoadUint32(&a.blockCount[heapIndex]))
		bytes := int(atomic.LoadUint64(&a.blockBytes[heapIndex]))

		stats[heapIndex] = memutils.Statistics{
			BlockCount:      count,
			AllocationCount: count,
			BlockBytes:      bytes,
			AllocationBytes: bytes,
		}
	}

	return stats
}

// Destroy frees every arena that is still alive, logging each one, and releases the
// allocator from the device
func (a *Allocator) Destroy() {
	for _, handle := range a.arenas.Handles() {
		arena, ok := a.arenas.Get(handle)
		if !ok {
			continue
		}

		a.logger.Warn("Allocator::Destroy freeing leaked arena",
			slog.String("Handle", arena.handle.String()),
			slog.Int("Size", arena.size),
		)
		err := arena.Free()
		if err != nil {
			a.logger.Warn("Allocator::Destroy could not free arena", slog.Any("error", err))
		}
	}

	if a.release != nil {
		a.release()
		a.release = nil
	}
}
