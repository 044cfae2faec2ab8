package resource

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cadence/memory"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

var (
	// ErrAlreadyBound is returned when binding a resource that is already bound. The
	// existing binding is kept.
	ErrAlreadyBound = errors.New("resource is already bound to memory")
	// ErrUnbound is returned by operations that need a resource's memory before it is bound
	ErrUnbound = errors.New("resource is not bound to memory")
	// ErrStaleTransition is returned when committing a layout transition that does not
	// start from the image's current layout
	ErrStaleTransition = errors.New("layout transition does not match the image's current layout")
)

// Binding places a resource in an arena. It is set once, by an explicit bind call.
type Binding struct {
	Arena  memory.ArenaHandle
	Offset int
}

type binding struct {
	kind      string
	allocator *memory.Allocator
	bound     *Binding
}

func (b *binding) bind(logger *slog.Logger, requirements *core1_0.MemoryRequirements, arena *memory.Arena, offset int, bindFunc func(arena *memory.Arena, offset int) error) error {
	if b.bound != nil {
		logger.Warn(b.kind+" already bound to memory",
			slog.String("Arena", b.bound.Arena.String()),
			slog.Int("Offset", b.bound.Offset),
		)
		return errors.Wrapf(ErrAlreadyBound, "%s is bound to arena %s at offset %d", b.kind, b.bound.Arena, b.bound.Offset)
	}

	if offset < 0 {
		return errors.Newf("cannot bind %s at negative offset %d", b.kind, offset)
	}

	if requirements.Alignment > 0 && offset%requirements.Alignment != 0 {
		return errors.Newf("%s requires alignment %d, but offset %d is unaligned", b.kind, requirements.Alignment, offset)
	}

	if offset > arena.Size() || requirements.Size > arena.Size()-offset {
		return errors.Wrapf(memory.ErrOutOfBounds, "%s of %d bytes at offset %d does not fit in arena of %d bytes", b.kind, requirements.Size, offset, arena.Size())
	}

	if requirements.MemoryTypeBits&(1<<arena.MemoryTypeIndex()) == 0 {
		return errors.Newf("%s cannot use memory type %d (allowed bits %#x)", b.kind, arena.MemoryTypeIndex(), requirements.MemoryTypeBits)
	}

	err := bindFunc(arena, offset)
	if err != nil {
		return errors.Wrapf(err, "could not bind %s", b.kind)
	}

	b.allocator = arena.Allocator()
	b.bound = &Binding{
		Arena:  arena.Handle(),
		Offset: offset,
	}
	return nil
}

func (b *binding) get() (Binding, bool) {
	if b.bound == nil {
		return Binding{}, false
	}
	return *b.bound, true
}

func (b *binding) offset() (int, error) {
	if b.bound == nil {
		return 0, errors.Wrapf(ErrUnbound, "cannot return offset for unbound %s", b.kind)
	}
	return b.bound.Offset, nil
}

func (b *binding) arena() (*memory.Arena, int, error) {
	if b.bound == nil {
		return nil, 0, errors.Wrapf(ErrUnbound, "%s has no memory", b.kind)
	}

	arena, err := b.allocator.Resolve(b.bound.Arena)
	if err != nil {
		return nil, 0, err
	}

	return arena, b.bound.Offset, nil
}
