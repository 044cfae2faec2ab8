package swapchain

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

//go:generate mockgen -source pacer.go -destination ./mocks/presenter.go -package mock_swapchain

// Presenter is the part of a Swapchain the frame pacer drives
type Presenter interface {
	SlotBusy(slot SlotIndex) (bool, error)
	AcquireNextImage(slot SlotIndex) (ImageIndex, error)
	BeginRenderPass(cmd core1_0.CommandBuffer, image ImageIndex) error
	EndRenderPass(cmd core1_0.CommandBuffer)
	SubmitAndPresent(cmd core1_0.CommandBuffer, image ImageIndex, slot SlotIndex) error
}

var _ Presenter = (*Swapchain)(nil)

type FrameStatus int

const (
	// FrameDropped means no frame was opened. Nothing should be recorded.
	FrameDropped FrameStatus = iota
	// FrameOpened means the frame's commands are recording inside the swapchain render pass
	FrameOpened
)

var frameStatusToString = map[FrameStatus]string{
	FrameDropped: "FrameDropped",
	FrameOpened:  "FrameOpened",
}

func (s FrameStatus) String() string {
	str, ok := frameStatusToString[s]
	if !ok {
		return fmt.Sprintf("FrameStatus(%d)", int(s))
	}
	return str
}

type Frame struct {
	Status   FrameStatus
	Slot     SlotIndex
	Image    ImageIndex
	Commands core1_0.CommandBuffer
}

// FramePacer hands out frames round robin over the frame slots, dropping a frame instead
// of waiting when its slot is still executing
type FramePacer struct {
	logger    *slog.Logger
	presenter Presenter
	commands  []core1_0.CommandBuffer

	slot      SlotIndex
	image     ImageIndex
	frameOpen bool
}

// NewFramePacer needs one command buffer per frame slot
func NewFramePacer(logger *slog.Logger, presenter Presenter, commands []core1_0.CommandBuffer) (*FramePacer, error) {
	if len(commands) != FramesInFlight {
		return nil, errors.Newf("frame pacer needs %d command buffers, got %d", FramesInFlight, len(commands))
	}

	return &FramePacer{
		logger:    logger,
		presenter: presenter,
		commands:  commands,
	}, nil
}

// Slot is the slot the next frame will use
func (p *FramePacer) Slot() SlotIndex {
	return p.slot
}

func (p *FramePacer) FrameOpen() bool {
	return p.frameOpen
}

// OpenFrame acquires an image and starts recording the current slot's command buffer
// inside the render pass. The frame is dropped if one is already open or the slot is
// still in flight.
func (p *FramePacer) OpenFrame() (Frame, error) {
	if p.frameOpen {
		p.logger.Debug("FramePacer::OpenFrame frame already open", slog.Int("Slot", int(p.slot)))
		return Frame{Status: FrameDropped, Slot: p.slot}, nil
	}

	busy, err := p.presenter.SlotBusy(p.slot)
	if err != nil {
		return Frame{}, err
	}
	if busy {
		return Frame{Status: FrameDropped, Slot: p.slot}, nil
	}

	image, err := p.presenter.AcquireNextImage(p.slot)
	if err != nil {
		return Frame{}, err
	}

	cmd := p.commands[p.slot]
	_, err = cmd.Begin(core1_0.CommandBufferBeginInfo{})
	if err != nil {
		return Frame{}, errors.Wrapf(err, "could not begin command buffer for slot %d", p.slot)
	}

	err = p.presenter.BeginRenderPass(cmd, image)
	if err != nil {
		return Frame{}, err
	}

	p.image = image
	p.frameOpen = true
	return Frame{
		Status:   FrameOpened,
		Slot:     p.slot,
		Image:    image,
		Commands: cmd,
	}, nil
}

// CloseFrame ends the open frame, submits and presents it, and moves to the next slot
func (p *FramePacer) CloseFrame() error {
	if !p.frameOpen {
		return errors.New("no frame is open")
	}
	p.frameOpen = false

	cmd := p.commands[p.slot]
	p.presenter.EndRenderPass(cmd)

	_, err := cmd.End()
	if err != nil {
		return errors.Wrapf(err, "could not end command buffer for slot %d", p.slot)
	}

	err = p.presenter.SubmitAndPresent(cmd, p.image, p.slot)
	if err != nil {
		return err
	}

	p.slot = (p.slot + 1) % FramesInFlight
	return nil
}
