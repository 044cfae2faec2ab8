package interactive

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cadence/swapchain"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

// renderer records one scene into whatever frame the pacer opens
type renderer struct {
	logger *slog.Logger
	pacer  *swapchain.FramePacer
	record func(cmd core1_0.CommandBuffer)

	drawn   int
	dropped int
}

func (r *renderer) renderFrame() error {
	frame, err := r.pacer.OpenFrame()
	if err != nil {
		return err
	}

	if frame.Status == swapchain.FrameDropped {
		r.dropped++
		r.logger.Debug("Renderer::RenderFrame dropped frame", slog.Int("Slot", int(r.pacer.Slot())))
		return nil
	}

	r.record(frame.Commands)

	err = r.pacer.CloseFrame()
	if err != nil {
		return err
	}

	r.drawn++
	return nil
}

// run processes updates until the channel closes or a frame fails
func (r *renderer) run(updates <-chan Update) error {
	for update := range updates {
		switch update.Kind {
		case UpdateRedraw:
			err := r.renderFrame()
			if err != nil {
				return errors.Wrap(err, "could not render frame")
			}
		case UpdateResize:
			r.logger.Warn("swapchain recreation is unsupported, ignoring resize",
				slog.Int("Width", update.Extent.Width),
				slog.Int("Height", update.Extent.Height),
			)
		default:
			r.logger.Warn("unknown update", slog.String("Kind", update.Kind.String()))
		}
	}

	return nil
}
