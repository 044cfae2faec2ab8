package command

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cadence/device"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

// Pool owns a command pool for one queue family and submits work to that family's queue
type Pool struct {
	logger *slog.Logger
	device core1_0.Device
	pool   core1_0.CommandPool
	queue  core1_0.Queue
	family int

	release func()
}

// NewPool creates a pool whose buffers are short-lived and individually resettable
func NewPool(dev *device.Device, queueFamily int) (*Pool, error) {
	queue := dev.Queue(queueFamily)

	pool, _, err := dev.VulkanDevice().CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateTransient | core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: queueFamily,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not create command pool for queue family %d", queueFamily)
	}

	dev.Logger().Debug("Pool::New", slog.Int("QueueFamily", queueFamily))
	return &Pool{
		logger:  dev.Logger(),
		device:  dev.VulkanDevice(),
		pool:    pool,
		queue:   queue,
		family:  queueFamily,
		release: dev.Track("command pool"),
	}, nil
}

func (p *Pool) Queue() core1_0.Queue {
	return p.queue
}

func (p *Pool) QueueFamily() int {
	return p.family
}

func (p *Pool) VulkanCommandPool() core1_0.CommandPool {
	return p.pool
}

// Allocate creates count primary command buffers that stay alive until passed to Free
func (p *Pool) Allocate(count int) ([]core1_0.CommandBuffer, error) {
	if count <= 0 {
		return nil, errors.Newf("cannot allocate %d command buffers", count)
	}

	buffers, _, err := p.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        p.pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not allocate %d command buffers", count)
	}

	return buffers, nil
}

func (p *Pool) Free(buffers []core1_0.CommandBuffer) {
	if len(buffers) == 0 {
		return
	}

	p.device.FreeCommandBuffers(buffers)
}

// BeginOneShot allocates a primary command buffer and begins it for a single submission.
// The buffer is freed by SubmitAndWait.
func (p *Pool) BeginOneShot() (core1_0.CommandBuffer, error) {
	buffers, err := p.Allocate(1)
	if err != nil {
		return nil, err
	}

	_, err = buffers[0].Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		p.Free(buffers)
		return nil, errors.Wrap(err, "could not begin one-shot command buffer")
	}

	return buffers[0], nil
}

// SubmitAndWait ends recording on each buffer, submits them as one batch and blocks until
// the queue is idle. The buffers are freed whether or not the submission succeeds.
func (p *Pool) SubmitAndWait(buffers ...core1_0.CommandBuffer) error {
	if len(buffers) == 0 {
		return nil
	}
	defer p.Free(buffers)

	for index, buffer := range buffers {
		_, err := buffer.End()
		if err != nil {
			return errors.Wrapf(err, "could not end command buffer %d", index)
		}
	}

	_, err := p.queue.Submit(nil, []core1_0.SubmitInfo{
		{
			CommandBuffers: buffers,
		},
	})
	if err != nil {
		return errors.Wrapf(err, "could not submit %d command buffers", len(buffers))
	}

	_, err = p.queue.WaitIdle()
	if err != nil {
		return errors.Wrap(err, "could not wait for queue idle")
	}

	return nil
}

func (p *Pool) Destroy() {
	if p.pool == nil {
		return
	}

	p.pool.Destroy(nil)
	p.pool = nil
	p.release()
}
