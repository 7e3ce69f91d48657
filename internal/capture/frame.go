package capture

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/waycap/internal/logger"
	"github.com/bryanchriswhite/waycap/internal/pixel"
	"github.com/bryanchriswhite/waycap/internal/shm"
)

// State is the position of a frame in the screencopy handshake.
type State int

const (
	StateRequested State = iota
	StateCollectingFormats
	StateAwaitingTerminal
	StateFinished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateCollectingFormats:
		return "collecting_formats"
	case StateAwaitingTerminal:
		return "awaiting_terminal"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further events change the outcome.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateFailed
}

// frame is the state machine for one transaction.
type frame struct {
	tx    Transaction
	alloc Allocator
	log   *zerolog.Logger

	state   State
	offered []FrameDescriptor
	chosen  FrameDescriptor
	region  *shm.Region
	flags   uint32
	result  *CapturedFrame
	err     error
}

func newFrame(tx Transaction, alloc Allocator) *frame {
	return &frame{
		tx:    tx,
		alloc: alloc,
		log:   logger.WithComponent("capture"),
		state: StateRequested,
	}
}

// run feeds events into the state machine until it reaches a terminal state.
// Compositor objects are destroyed on every path; the shared memory is
// released unless it was handed to the returned frame.
func (f *frame) run() (*CapturedFrame, error) {
	defer func() {
		if err := f.tx.Close(); err != nil {
			f.log.Debug().Err(err).Msg("Failed to destroy frame objects")
		}
	}()

	for !f.state.Terminal() {
		ev, err := f.tx.NextEvent()
		if err != nil {
			f.fail(fmt.Errorf("%w: %v", ErrConnection, err))
			break
		}
		f.handle(ev)
	}

	if f.state == StateFailed {
		f.release()
		return nil, f.err
	}
	return f.result, nil
}

// handle applies one event. Events after a terminal state are ignored.
func (f *frame) handle(ev Event) {
	if f.state.Terminal() {
		f.log.Debug().Stringer("event", ev.Kind).Stringer("state", f.state).Msg("Ignoring event after terminal state")
		return
	}

	f.log.Debug().Stringer("event", ev.Kind).Stringer("state", f.state).Msg("Frame event")

	switch ev.Kind {
	case EventBuffer:
		if f.state == StateAwaitingTerminal {
			f.log.Debug().Stringer("descriptor", ev.Descriptor).Msg("Ignoring buffer offer after buffer_done")
			return
		}
		f.offered = append(f.offered, ev.Descriptor)
		f.state = StateCollectingFormats

	case EventFlags:
		f.flags = ev.Flags
		f.log.Debug().Uint32("flags", ev.Flags).Bool("y_invert", ev.Flags&FlagYInvert != 0).Msg("Frame flags")

	case EventDamage:
		f.log.Debug().Stringer("damage", ev.Damage).Msg("Frame damage")

	case EventLinuxDmabuf:
		// dma-buf import is not supported; the shm offers are used instead.

	case EventBufferDone:
		if f.state == StateAwaitingTerminal {
			f.fail(fmt.Errorf("%w: duplicate buffer_done", ErrProtocol))
			return
		}
		f.startCopy()

	case EventReady:
		if f.state != StateAwaitingTerminal {
			f.fail(fmt.Errorf("%w: ready received in state %s", ErrProtocol, f.state))
			return
		}
		f.finish(ev)

	case EventFailed:
		f.fail(ErrCaptureFailed)

	default:
		f.log.Debug().Int("kind", int(ev.Kind)).Msg("Unknown frame event")
	}
}

// selectDescriptor returns the first usable offer in advertisement order.
func selectDescriptor(offered []FrameDescriptor) (FrameDescriptor, bool) {
	for _, d := range offered {
		if d.Usable() {
			return d, true
		}
	}
	return FrameDescriptor{}, false
}

func (f *frame) startCopy() {
	desc, ok := selectDescriptor(f.offered)
	if !ok {
		names := make([]string, 0, len(f.offered))
		for _, d := range f.offered {
			names = append(names, d.String())
		}
		f.fail(fmt.Errorf("%w: compositor offered [%s]", ErrUnsupportedFormat, strings.Join(names, ", ")))
		return
	}

	region, err := f.alloc(desc.Size())
	if err != nil {
		if !errors.Is(err, ErrAllocation) {
			err = fmt.Errorf("%w: %v", ErrAllocation, err)
		}
		f.fail(err)
		return
	}
	f.region = region
	f.chosen = desc

	f.log.Debug().Stringer("descriptor", desc).Int("size", desc.Size()).Msg("Requesting copy")

	if err := f.tx.Copy(desc, region.Fd(), region.Size()); err != nil {
		if !errors.Is(err, ErrCaptureFailed) && !errors.Is(err, ErrConnection) {
			err = fmt.Errorf("%w: copy request: %w", ErrConnection, err)
		}
		f.fail(err)
		return
	}
	f.state = StateAwaitingTerminal
}

func (f *frame) finish(ev Event) {
	data, err := f.region.Map()
	if err != nil {
		f.fail(err)
		return
	}

	color, err := pixel.Convert(f.chosen.Format, data)
	if err != nil {
		f.fail(err)
		return
	}

	f.result = &CapturedFrame{
		Descriptor: f.chosen,
		Color:      color,
		Flags:      f.flags,
		Timestamp:  ev.Timestamp,
		region:     f.region,
		data:       data,
	}
	f.region = nil
	f.state = StateFinished
}

func (f *frame) fail(err error) {
	f.err = err
	f.state = StateFailed
	f.log.Debug().Err(err).Msg("Frame failed")
}

func (f *frame) release() {
	if f.region == nil {
		return
	}
	if err := f.region.Close(); err != nil {
		f.log.Debug().Err(err).Msg("Failed to release shared memory")
	}
	f.region = nil
}
