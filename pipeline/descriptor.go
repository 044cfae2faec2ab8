package pipeline

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cadence/device"
	"github.com/vkngwrapper/core/v2/core1_0"
)

type DescriptorPoolBuilder struct {
	maxSets   int
	flags     core1_0.DescriptorPoolCreateFlags
	poolSizes []core1_0.DescriptorPoolSize
}

func NewDescriptorPoolBuilder(maxSets int) *DescriptorPoolBuilder {
	return &DescriptorPoolBuilder{maxSets: maxSets}
}

func (b *DescriptorPoolBuilder) AddPoolSize(descriptorType core1_0.DescriptorType, count int) *DescriptorPoolBuilder {
	b.poolSizes = append(b.poolSizes, core1_0.DescriptorPoolSize{
		Type:            descriptorType,
		DescriptorCount: count,
	})
	return b
}

func (b *DescriptorPoolBuilder) WithFlags(flags core1_0.DescriptorPoolCreateFlags) *DescriptorPoolBuilder {
	b.flags = flags
	return b
}

func (b *DescriptorPoolBuilder) Build(dev *device.Device) (*DescriptorPool, error) {
	if b.maxSets <= 0 {
		return nil, errors.Newf("descriptor pool needs at least one set, got %d", b.maxSets)
	}

	pool, _, err := dev.VulkanDevice().CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		Flags:     b.flags,
		MaxSets:   b.maxSets,
		PoolSizes: b.poolSizes,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create descriptor pool")
	}

	return &DescriptorPool{
		device:  dev.VulkanDevice(),
		pool:    pool,
		release: dev.Track("descriptor pool"),
	}, nil
}

type DescriptorPool struct {
	device  core1_0.Device
	pool    core1_0.DescriptorPool
	release func()
}

// AllocateSet allocates one descriptor set with the given layout. Sets are returned to the
// device when the pool is destroyed.
func (p *DescriptorPool) AllocateSet(layout core1_0.DescriptorSetLayout) (core1_0.DescriptorSet, error) {
	sets, _, err := p.device.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: p.pool,
		SetLayouts:     []core1_0.DescriptorSetLayout{layout},
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not allocate descriptor set")
	}

	return sets[0], nil
}

func (p *DescriptorPool) Destroy() {
	if p.pool == nil {
		return
	}

	p.pool.Destroy(nil)
	p.pool = nil
	p.release()
}
