package wayland

import (
	"errors"
	"fmt"
	"time"

	"github.com/rajveermalviya/go-wayland/wayland/client"

	"github.com/bryanchriswhite/waycap/internal/capture"
	"github.com/bryanchriswhite/waycap/internal/geometry"
	"github.com/bryanchriswhite/waycap/internal/pixel"
	"github.com/bryanchriswhite/waycap/internal/protocol/wlrscreencopy"
)

// transaction adapts a screencopy frame object to capture.Transaction. Frame
// events are queued by the handlers and handed out one at a time.
type transaction struct {
	s      *Session
	frame  *wlrscreencopy.ZwlrScreencopyFrameV1
	pool   *client.ShmPool
	buffer *client.Buffer

	queue  []capture.Event
	closed bool
	// synthesized is set once a buffer_done has been queued for a
	// compositor that never sends one.
	synthesized bool
}

// newTransaction installs the frame handlers. When the compositor speaks a
// screencopy version without buffer_done, one is synthesized after the
// first shm offer.
func newTransaction(s *Session, frame *wlrscreencopy.ZwlrScreencopyFrameV1, synthesizeBufferDone bool) *transaction {
	t := &transaction{s: s, frame: frame}

	frame.SetBufferHandler(func(e wlrscreencopy.ZwlrScreencopyFrameV1BufferEvent) {
		t.push(capture.Event{
			Kind: capture.EventBuffer,
			Descriptor: capture.FrameDescriptor{
				Format: pixel.FrameFormat(e.Format),
				Width:  e.Width,
				Height: e.Height,
				Stride: e.Stride,
			},
		})
		if synthesizeBufferDone && !t.synthesized {
			t.synthesized = true
			t.push(capture.Event{Kind: capture.EventBufferDone})
		}
	})
	frame.SetFlagsHandler(func(e wlrscreencopy.ZwlrScreencopyFrameV1FlagsEvent) {
		t.push(capture.Event{Kind: capture.EventFlags, Flags: e.Flags})
	})
	frame.SetDamageHandler(func(e wlrscreencopy.ZwlrScreencopyFrameV1DamageEvent) {
		t.push(capture.Event{
			Kind: capture.EventDamage,
			Damage: geometry.Region{
				X:      int32(e.X),
				Y:      int32(e.Y),
				Width:  int32(e.Width),
				Height: int32(e.Height),
			},
		})
	})
	frame.SetLinuxDmabufHandler(func(e wlrscreencopy.ZwlrScreencopyFrameV1LinuxDmabufEvent) {
		t.push(capture.Event{Kind: capture.EventLinuxDmabuf})
	})
	frame.SetBufferDoneHandler(func(wlrscreencopy.ZwlrScreencopyFrameV1BufferDoneEvent) {
		t.push(capture.Event{Kind: capture.EventBufferDone})
	})
	frame.SetReadyHandler(func(e wlrscreencopy.ZwlrScreencopyFrameV1ReadyEvent) {
		t.push(capture.Event{Kind: capture.EventReady, Timestamp: readyTime(e)})
	})
	frame.SetFailedHandler(func(wlrscreencopy.ZwlrScreencopyFrameV1FailedEvent) {
		t.push(capture.Event{Kind: capture.EventFailed})
	})

	return t
}

func (t *transaction) push(ev capture.Event) {
	t.queue = append(t.queue, ev)
}

// readyTime joins the split seconds of a ready event.
func readyTime(e wlrscreencopy.ZwlrScreencopyFrameV1ReadyEvent) time.Time {
	sec := int64(e.TvSecHi)<<32 | int64(e.TvSecLo)
	return time.Unix(sec, int64(e.TvNsec))
}

// NextEvent dispatches compositor events until a frame event is available.
func (t *transaction) NextEvent() (capture.Event, error) {
	if t.closed {
		return capture.Event{}, errors.New("transaction closed")
	}
	for len(t.queue) == 0 {
		if err := t.s.ctx.Dispatch(); err != nil {
			return capture.Event{}, fmt.Errorf("dispatch: %w", err)
		}
	}
	ev := t.queue[0]
	t.queue = t.queue[1:]
	return ev, nil
}

// Copy wraps fd in a wl_shm pool and buffer and requests the copy.
func (t *transaction) Copy(desc capture.FrameDescriptor, fd int, size int) error {
	pool, err := t.s.shm.CreatePool(fd, int32(size))
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	t.pool = pool

	buffer, err := pool.CreateBuffer(0, int32(desc.Width), int32(desc.Height), int32(desc.Stride), uint32(desc.Format))
	if err != nil {
		return fmt.Errorf("create buffer: %w", err)
	}
	t.buffer = buffer

	return t.frame.Copy(buffer)
}

// Close destroys the frame, buffer and pool.
func (t *transaction) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.queue = nil

	var errs []error
	if err := t.frame.Destroy(); err != nil {
		errs = append(errs, fmt.Errorf("destroy frame: %w", err))
	}
	if t.buffer != nil {
		if err := t.buffer.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("destroy buffer: %w", err))
		}
	}
	if t.pool != nil {
		if err := t.pool.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("destroy pool: %w", err))
		}
	}
	return errors.Join(errs...)
}
