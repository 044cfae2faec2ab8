package resource

import (
	"github.com/vkngwrapper/core/v2/core1_0"
)

// LayoutTransition is a pending move of an image from one layout to another. Build it with
// Image.Barrier, record it with CmdTransition, and pass it to Image.Commit once the command
// buffer has been submitted.
type LayoutTransition struct {
	image      *Image
	generation uint64
	barrier    core1_0.ImageMemoryBarrier
}

func (t LayoutTransition) From() core1_0.ImageLayout {
	return t.barrier.OldLayout
}

func (t LayoutTransition) To() core1_0.ImageLayout {
	return t.barrier.NewLayout
}

func (t LayoutTransition) Barrier() core1_0.ImageMemoryBarrier {
	return t.barrier
}

// CmdTransition records one pipeline barrier carrying every transition
func CmdTransition(cmd core1_0.CommandBuffer, srcStage, dstStage core1_0.PipelineStageFlags, transitions ...LayoutTransition) error {
	barriers := make([]core1_0.ImageMemoryBarrier, 0, len(transitions))
	for _, transition := range transitions {
		barriers = append(barriers, transition.barrier)
	}

	return cmd.CmdPipelineBarrier(srcStage, dstStage, 0, nil, nil, barriers)
}

// CommitAll commits transitions in order, stopping at the first failure
func CommitAll(transitions ...LayoutTransition) error {
	for _, transition := range transitions {
		err := transition.image.Commit(transition)
		if err != nil {
			return err
		}
	}

	return nil
}
