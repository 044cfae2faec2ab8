package device

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/cadence/internal/utils"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
	"golang.org/x/exp/slog"
)

// ErrObjectsOutstanding is returned from Device.Destroy while objects created against the
// device are still alive
var ErrObjectsOutstanding = errors.New("device still owns live objects")

type Options struct {
	// Presentation enables khr_swapchain. The queue indices should have Present resolved.
	Presentation bool
	// Features defaults to no optional features
	Features *core1_0.PhysicalDeviceFeatures
	// Synchronized guards the device's live-object registry with a mutex
	Synchronized bool
}

// Device owns the logical device and keeps a registry of every object created against it,
// so that destroying the device early is caught instead of leaving dangling handles.
type Device struct {
	logger  *slog.Logger
	context *Context
	device  core1_0.Device
	indices QueueFamilyIndices

	liveLock    utils.OptionalMutex
	liveObjects *swiss.Map[uint64, string]
	nextObject  uint64
	destroyed   bool
}

func New(logger *slog.Logger, ctx *Context, indices QueueFamilyIndices, options Options) (*Device, error) {
	if options.Presentation && indices.Present == nil {
		return nil, errors.New("presentation was requested but the present queue family is unresolved")
	}

	var queueInfos []core1_0.DeviceQueueCreateInfo
	for _, family := range indices.Unique() {
		queueInfos = append(queueInfos, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: family,
			QueuePriorities:  []float32{1.0},
		})
	}

	var extensionNames []string
	if options.Presentation {
		extensionNames = append(extensionNames, khr_swapchain.ExtensionName)
	}

	physicalDevice := ctx.PhysicalDevice()
	extensions, _, err := physicalDevice.EnumerateDeviceExtensionProperties()
	if err != nil {
		return nil, errors.Wrap(err, "could not enumerate device extensions")
	}

	for _, extensionName := range extensionNames {
		_, supported := extensions[extensionName]
		if !supported {
			return nil, errors.Newf("missing required device extension %s", extensionName)
		}
	}

	// Required on portability implementations like MoltenVK
	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	features := options.Features
	if features == nil {
		features = &core1_0.PhysicalDeviceFeatures{}
	}

	vkDevice, _, err := physicalDevice.CreateDevice(nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queueInfos,
		EnabledFeatures:       features,
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create logical device")
	}

	logger.Debug("Device::New", slog.String("indices", indices.String()), slog.Any("extensions", extensionNames))
	return Wrap(logger, ctx, vkDevice, indices, options.Synchronized), nil
}

// Wrap adopts a logical device created elsewhere. The Device takes ownership and destroys it.
func Wrap(logger *slog.Logger, ctx *Context, vkDevice core1_0.Device, indices QueueFamilyIndices, synchronized bool) *Device {
	return &Device{
		logger:      logger,
		context:     ctx,
		device:      vkDevice,
		indices:     indices,
		liveLock:    utils.OptionalMutex{Enabled: synchronized},
		liveObjects: swiss.NewMap[uint64, string](16),
	}
}

func (d *Device) Logger() *slog.Logger {
	return d.logger
}

func (d *Device) Context() *Context {
	return d.context
}

func (d *Device) VulkanDevice() core1_0.Device {
	return d.device
}

func (d *Device) Indices() QueueFamilyIndices {
	return d.indices
}

// Queue returns the first queue of the family. The family must be one of the device's
// queue family indices.
func (d *Device) Queue(family int) core1_0.Queue {
	for _, created := range d.indices.Unique() {
		if created == family {
			return d.device.GetQueue(family, 0)
		}
	}

	panic(fmt.Sprintf("queue family %d was not created on this device (%s)", family, d.indices))
}

func (d *Device) WaitIdle() error {
	_, err := d.device.WaitIdle()
	return err
}

// Track registers a live object and returns the function that releases it. Release is
// idempotent.
func (d *Device) Track(kind string) (release func()) {
	d.liveLock.Lock()
	defer d.liveLock.Unlock()

	if d.destroyed {
		panic(fmt.Sprintf("attempted to create a %s on a destroyed device", kind))
	}

	d.nextObject++
	id := d.nextObject
	d.liveObjects.Put(id, kind)

	return func() {
		d.liveLock.Lock()
		defer d.liveLock.Unlock()

		d.liveObjects.Delete(id)
	}
}

// LiveObjects counts objects that have been tracked and not released
func (d *Device) LiveObjects() int {
	d.liveLock.Lock()
	defer d.liveLock.Unlock()

	return d.liveObjects.Count()
}

// Destroy waits for the device to go idle and destroys it. It fails with
// ErrObjectsOutstanding, leaving the device untouched, if anything created against it
// is still alive.
func (d *Device) Destroy() error {
	d.liveLock.Lock()
	defer d.liveLock.Unlock()

	if d.destroyed {
		return nil
	}

	if d.liveObjects.Count() > 0 {
		counts := make(map[string]int)
		d.liveObjects.Iter(func(_ uint64, kind string) bool {
			counts[kind]++
			return false
		})

		var parts []string
		for kind, count := range counts {
			parts = append(parts, fmt.Sprintf("%d %s", count, kind))
		}
		sort.Strings(parts)

		return errors.Wrapf(ErrObjectsOutstanding, "%s", strings.Join(parts, ", "))
	}

	_, err := d.device.WaitIdle()
	if err != nil {
		d.logger.Warn("Device::Destroy wait idle failed", slog.Any("error", err))
	}

	d.device.Destroy(nil)
	d.destroyed = true
	return nil
}
