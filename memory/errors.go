package memory

import "github.com/cockroachdb/errors"

var (
	// ErrAlreadyMapped is returned when mapping an arena that is already mapped
	ErrAlreadyMapped = errors.New("arena is already mapped")
	// ErrNotMapped is returned when reading, writing or unmapping an arena that is not mapped
	ErrNotMapped = errors.New("arena is not mapped")
	// ErrOutOfBounds is returned when an access falls outside the arena or its mapped range
	ErrOutOfBounds = errors.New("arena access out of bounds")
	// ErrNotHostVisible is returned when mapping an arena whose memory type the host cannot see
	ErrNotHostVisible = errors.New("arena memory type is not host visible")
	// ErrStaleHandle is returned when an ArenaHandle or Arena is used after the arena was freed
	ErrStaleHandle = errors.New("arena handle refers to freed memory")
)
