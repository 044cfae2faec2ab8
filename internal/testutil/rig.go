// Package testutil builds mocked devices for package tests
package testutil

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/cadence/device"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/mocks"
	"github.com/golang/mock/gomock"
	"golang.org/x/exp/slog"
)

type Setup struct {
	DriverType  core1_0.PhysicalDeviceType
	MemoryTypes []core1_0.MemoryType
	MemoryHeaps []core1_0.MemoryHeap
	Limits      *core1_0.PhysicalDeviceLimits
	Indices     device.QueueFamilyIndices
}

// HostVisibleSetup has one device-local type and one host-visible, host-coherent type
var HostVisibleSetup = Setup{
	DriverType: core1_0.PhysicalDeviceTypeDiscreteGPU,
	MemoryTypes: []core1_0.MemoryType{
		{
			PropertyFlags: core1_0.MemoryPropertyDeviceLocal,
			HeapIndex:     0,
		},
		{
			PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
			HeapIndex:     1,
		},
	},
	MemoryHeaps: []core1_0.MemoryHeap{
		{
			Size:  1000000,
			Flags: core1_0.MemoryHeapDeviceLocal,
		},
		{
			Size:  1000000,
			Flags: 0,
		},
	},
}

type Rig struct {
	Logger         *slog.Logger
	PhysicalDevice *mocks.MockPhysicalDevice
	VulkanDevice   *mocks.MockDevice
	Context        *device.Context
	Device         *device.Device
}

func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func NewRig(t *testing.T, ctrl *gomock.Controller, setup Setup) *Rig {
	limits := setup.Limits
	if limits == nil {
		limits = &core1_0.PhysicalDeviceLimits{
			BufferImageGranularity:   1,
			NonCoherentAtomSize:      1,
			MaxMemoryAllocationCount: 4096,
		}
	}

	physicalDevice := mocks.NewMockPhysicalDevice(ctrl)
	physicalDevice.EXPECT().Properties().Return(&core1_0.PhysicalDeviceProperties{
		DriverType: setup.DriverType,
		DriverName: "Mock GPU",
		Limits:     limits,
	}, nil).AnyTimes()
	physicalDevice.EXPECT().MemoryProperties().Return(&core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: setup.MemoryTypes,
		MemoryHeaps: setup.MemoryHeaps,
	}).AnyTimes()

	logger := Logger()
	instance := mocks.NewMockInstance(ctrl)
	ctx, err := device.NewContextFromPhysicalDevice(logger, instance, physicalDevice)
	require.NoError(t, err)

	vkDevice := mocks.NewMockDevice(ctrl)
	dev := device.Wrap(logger, ctx, vkDevice, setup.Indices, false)

	return &Rig{
		Logger:         logger,
		PhysicalDevice: physicalDevice,
		VulkanDevice:   vkDevice,
		Context:        ctx,
		Device:         dev,
	}
}
