package device

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v2/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"golang.org/x/exp/slog"
)

type ContextOptions struct {
	ApplicationName string
	// APIVersion defaults to Vulkan 1.2
	APIVersion  common.APIVersion
	Diagnostics Diagnostics
	// InstanceExtensions are required in addition to khr_surface, usually the platform
	// surface extensions reported by the windowing library
	InstanceExtensions []string
	// Headless skips khr_surface for compute-only use
	Headless bool
}

// Context is the instance and the physical device selected from it, along with the
// device's memory type table. It does not change after creation.
type Context struct {
	logger      *slog.Logger
	diagnostics Diagnostics

	ownsInstance   bool
	instance       core1_0.Instance
	debugMessenger ext_debug_utils.DebugUtilsMessenger

	physicalDevice   core1_0.PhysicalDevice
	deviceProperties *core1_0.PhysicalDeviceProperties
	memoryProperties *core1_0.PhysicalDeviceMemoryProperties
}

func NewContext(logger *slog.Logger, loader core.Loader, options ContextOptions) (*Context, error) {
	apiVersion := options.APIVersion
	if apiVersion == 0 {
		apiVersion = common.Vulkan1_2
	}

	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    options.ApplicationName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "cadence",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         apiVersion,
	}

	extensions, _, err := loader.AvailableExtensions()
	if err != nil {
		return nil, errors.Wrap(err, "could not enumerate instance extensions")
	}

	required := append([]string(nil), options.InstanceExtensions...)
	if !options.Headless {
		required = append(required, khr_surface.ExtensionName)
	}
	if options.Diagnostics != DiagnosticsNone {
		required = append(required, ext_debug_utils.ExtensionName)
	}

	for _, extensionName := range dedupeStrings(required) {
		_, hasExtension := extensions[extensionName]
		if !hasExtension {
			return nil, errors.Newf("missing required instance extension %s", extensionName)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, extensionName)
	}

	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	ctx := &Context{
		logger:       logger,
		diagnostics:  options.Diagnostics,
		ownsInstance: true,
	}

	if options.Diagnostics != DiagnosticsNone {
		layers, _, err := loader.AvailableLayers()
		if err != nil {
			return nil, errors.Wrap(err, "could not enumerate instance layers")
		}

		_, hasValidation := layers[ValidationLayerName]
		if !hasValidation {
			return nil, errors.Newf("diagnostics level %s requires layer %s, which is not available", options.Diagnostics, ValidationLayerName)
		}
		instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, ValidationLayerName)
		instanceOptions.Next = ctx.debugMessengerOptions()
	}

	ctx.instance, _, err = loader.CreateInstance(nil, instanceOptions)
	if err != nil {
		return nil, errors.Wrap(err, "could not create instance")
	}

	if options.Diagnostics != DiagnosticsNone {
		debugLoader := ext_debug_utils.CreateExtensionFromInstance(ctx.instance)
		ctx.debugMessenger, _, err = debugLoader.CreateDebugUtilsMessenger(ctx.instance, nil, ctx.debugMessengerOptions())
		if err != nil {
			ctx.instance.Destroy(nil)
			return nil, errors.Wrap(err, "could not create debug messenger")
		}
	}

	physicalDevices, _, err := ctx.instance.EnumeratePhysicalDevices()
	if err != nil {
		ctx.Destroy()
		return nil, errors.Wrap(err, "could not enumerate physical devices")
	}

	physicalDevice, err := selectPhysicalDevice(logger, physicalDevices)
	if err != nil {
		ctx.Destroy()
		return nil, err
	}

	err = ctx.adoptPhysicalDevice(physicalDevice)
	if err != nil {
		ctx.Destroy()
		return nil, err
	}

	return ctx, nil
}

// NewContextFromPhysicalDevice wraps an instance and physical device created elsewhere.
// Destroy will not destroy the instance.
func NewContextFromPhysicalDevice(logger *slog.Logger, instance core1_0.Instance, physicalDevice core1_0.PhysicalDevice) (*Context, error) {
	ctx := &Context{
		logger:   logger,
		instance: instance,
	}

	err := ctx.adoptPhysicalDevice(physicalDevice)
	if err != nil {
		return nil, err
	}

	return ctx, nil
}

func (c *Context) adoptPhysicalDevice(physicalDevice core1_0.PhysicalDevice) error {
	var err error
	c.physicalDevice = physicalDevice
	c.deviceProperties, err = physicalDevice.Properties()
	if err != nil {
		return errors.Wrap(err, "could not read physical device properties")
	}

	c.memoryProperties = physicalDevice.MemoryProperties()

	c.logger.Info("Context::selected physical device",
		slog.String("name", c.deviceProperties.DriverName),
		slog.Int("memoryTypes", len(c.memoryProperties.MemoryTypes)),
		slog.Int("memoryHeaps", len(c.memoryProperties.MemoryHeaps)),
	)
	return nil
}

func selectPhysicalDevice(logger *slog.Logger, physicalDevices []core1_0.PhysicalDevice) (core1_0.PhysicalDevice, error) {
	if len(physicalDevices) == 0 {
		return nil, errors.New("no physical devices found")
	}

	for _, physicalDevice := range physicalDevices {
		properties, err := physicalDevice.Properties()
		if err != nil {
			return nil, errors.Wrap(err, "could not read physical device properties")
		}

		if properties.DriverType == core1_0.PhysicalDeviceTypeDiscreteGPU {
			return physicalDevice, nil
		}
	}

	logger.Warn("no discrete gpu found, falling back to first enumerated")
	return physicalDevices[0], nil
}

func (c *Context) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     c.diagnostics.messageTypes(),
		UserCallback:    c.logDebug,
	}
}

func (c *Context) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	level := slog.LevelWarn
	if severity&ext_debug_utils.SeverityError != 0 {
		level = slog.LevelError
	}

	c.logger.Log(context.Background(), level, data.Message,
		slog.String("type", msgType.String()),
		slog.String("messageID", data.MessageIDName),
	)
	return false
}

func (c *Context) Logger() *slog.Logger {
	return c.logger
}

func (c *Context) Diagnostics() Diagnostics {
	return c.diagnostics
}

func (c *Context) Instance() core1_0.Instance {
	return c.instance
}

func (c *Context) PhysicalDevice() core1_0.PhysicalDevice {
	return c.physicalDevice
}

func (c *Context) DeviceProperties() *core1_0.PhysicalDeviceProperties {
	return c.deviceProperties
}

func (c *Context) Limits() *core1_0.PhysicalDeviceLimits {
	return c.deviceProperties.Limits
}

func (c *Context) MemoryTypeCount() int {
	return len(c.memoryProperties.MemoryTypes)
}

func (c *Context) MemoryHeapCount() int {
	return len(c.memoryProperties.MemoryHeaps)
}

func (c *Context) MemoryTypeProperties(memoryTypeIndex int) core1_0.MemoryType {
	return c.memoryProperties.MemoryTypes[memoryTypeIndex]
}

func (c *Context) MemoryHeapProperties(heapIndex int) core1_0.MemoryHeap {
	return c.memoryProperties.MemoryHeaps[heapIndex]
}

func (c *Context) MemoryTypeIndexToHeapIndex(memoryTypeIndex int) int {
	return c.memoryProperties.MemoryTypes[memoryTypeIndex].HeapIndex
}

func (c *Context) IsMemoryTypeHostNonCoherent(memoryTypeIndex int) bool {
	flags := c.memoryProperties.MemoryTypes[memoryTypeIndex].PropertyFlags

	return flags&(core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent) == core1_0.MemoryPropertyHostVisible
}

// FindMemoryType returns the first memory type permitted by typeBits whose properties
// include every flag in required
func (c *Context) FindMemoryType(typeBits uint32, required core1_0.MemoryPropertyFlags) (int, error) {
	for i, memoryType := range c.memoryProperties.MemoryTypes {
		if typeBits&(1<<i) == 0 {
			continue
		}

		if memoryType.PropertyFlags&required == required {
			return i, nil
		}
	}

	return -1, errors.Newf("no memory type in bits %#x has properties %s", typeBits, required)
}

func (c *Context) Destroy() {
	if c.debugMessenger != nil {
		c.debugMessenger.Destroy(nil)
		c.debugMessenger = nil
	}

	if c.ownsInstance && c.instance != nil {
		c.instance.Destroy(nil)
		c.instance = nil
	}
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}
