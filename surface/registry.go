package surface

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cadence/internal/utils"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
)

var ErrUnsupportedPlatform = errors.New("surface creation not supported for platform")

// Creator builds a surface for a handle of the platform it was registered for
type Creator func(instance core1_0.Instance, handle Handle) (khr_surface.Surface, error)

type Registry struct {
	lock     utils.OptionalRWMutex
	creators map[Platform]Creator
}

func NewRegistry() *Registry {
	return &Registry{
		lock:     utils.OptionalRWMutex{Enabled: true},
		creators: make(map[Platform]Creator),
	}
}

// Register sets the creator for platform, replacing any earlier one
func (r *Registry) Register(platform Platform, creator Creator) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.creators[platform] = creator
}

func (r *Registry) Supports(platform Platform) bool {
	r.lock.RLock()
	defer r.lock.RUnlock()

	_, ok := r.creators[platform]
	return ok
}

// Create validates the handle and passes it to its platform's creator. Platforms with no
// creator fail with ErrUnsupportedPlatform.
func (r *Registry) Create(instance core1_0.Instance, handle Handle) (khr_surface.Surface, error) {
	err := handle.Validate()
	if err != nil {
		return nil, err
	}

	r.lock.RLock()
	creator, ok := r.creators[handle.Platform]
	r.lock.RUnlock()

	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedPlatform, "no creator registered for %s", handle.Platform)
	}

	surface, err := creator(instance, handle)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create %s surface", handle.Platform)
	}
	return surface, nil
}
