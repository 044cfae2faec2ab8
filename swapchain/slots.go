package swapchain

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

type frameSlot struct {
	imageAvailable core1_0.Semaphore
	renderFinished core1_0.Semaphore
	inFlight       core1_0.Fence
	// unsubmitted is set while inFlight has been reset without a submission that will
	// signal it
	unsubmitted bool
}

type frameSlots struct {
	device core1_0.Device
	slots  []frameSlot
}

// create builds FramesInFlight slots. Fences start signaled so the first frame in each
// slot does not wait.
func (f *frameSlots) create() error {
	for index := 0; index < FramesInFlight; index++ {
		var slot frameSlot
		var err error

		slot.imageAvailable, _, err = f.device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return errors.Wrapf(err, "could not create image available semaphore for slot %d", index)
		}

		slot.renderFinished, _, err = f.device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			slot.imageAvailable.Destroy(nil)
			return errors.Wrapf(err, "could not create render finished semaphore for slot %d", index)
		}

		slot.inFlight, _, err = f.device.CreateFence(nil, core1_0.FenceCreateInfo{
			Flags: core1_0.FenceCreateSignaled,
		})
		if err != nil {
			slot.imageAvailable.Destroy(nil)
			slot.renderFinished.Destroy(nil)
			return errors.Wrapf(err, "could not create in-flight fence for slot %d", index)
		}

		f.slots = append(f.slots, slot)
	}

	return nil
}

func (f *frameSlots) get(slot SlotIndex) frameSlot {
	if slot < 0 || int(slot) >= len(f.slots) {
		panic(fmt.Sprintf("frame slot %d out of range (%d slots)", slot, len(f.slots)))
	}
	return f.slots[slot]
}

func (f *frameSlots) busy(slot SlotIndex) (bool, error) {
	frame := f.get(slot)
	if frame.unsubmitted {
		return false, nil
	}

	status, err := frame.inFlight.Status()
	if err != nil {
		return false, errors.Wrapf(err, "could not get fence status for slot %d", slot)
	}

	return status == core1_0.VKNotReady, nil
}

// reset unsignals the slot's fence ahead of a submission. The slot is left out of busy
// and wait until submitted is called.
func (f *frameSlots) reset(slot SlotIndex) error {
	_, err := f.device.ResetFences([]core1_0.Fence{f.get(slot).inFlight})
	if err != nil {
		return errors.Wrapf(err, "could not reset fence for slot %d", slot)
	}

	f.slots[slot].unsubmitted = true
	return nil
}

func (f *frameSlots) submitted(slot SlotIndex) {
	f.slots[slot].unsubmitted = false
}

// wait blocks until every slot's last submission has finished
func (f *frameSlots) wait() error {
	fences := make([]core1_0.Fence, 0, len(f.slots))
	for _, slot := range f.slots {
		if !slot.unsubmitted {
			fences = append(fences, slot.inFlight)
		}
	}

	if len(fences) == 0 {
		return nil
	}

	_, err := f.device.WaitForFences(true, common.NoTimeout, fences)
	if err != nil {
		return errors.Wrap(err, "could not wait for frames in flight")
	}
	return nil
}

func (f *frameSlots) destroy() {
	for _, slot := range f.slots {
		slot.inFlight.Destroy(nil)
		slot.imageAvailable.Destroy(nil)
		slot.renderFinished.Destroy(nil)
	}
	f.slots = nil
}
