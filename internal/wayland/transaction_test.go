package wayland

import (
	"testing"

	"github.com/rajveermalviya/go-wayland/wayland/client"

	"github.com/bryanchriswhite/waycap/internal/capture"
	"github.com/bryanchriswhite/waycap/internal/pixel"
	"github.com/bryanchriswhite/waycap/internal/protocol/wlrscreencopy"
)

func payload(vals ...uint32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		client.PutUint32(b[i*4:i*4+4], v)
	}
	return b
}

func TestTransactionQueuesFrameEvents(t *testing.T) {
	frame := &wlrscreencopy.ZwlrScreencopyFrameV1{}
	tx := newTransaction(&Session{}, frame, false)

	frame.Dispatch(0, -1, payload(uint32(pixel.FormatXrgb8888), 1920, 1080, 7680))
	frame.Dispatch(5, -1, payload(0x34325258, 1920, 1080))
	frame.Dispatch(6, -1, nil)
	frame.Dispatch(1, -1, payload(1))
	frame.Dispatch(2, -1, payload(0, 100, 0))

	wantKinds := []capture.EventKind{
		capture.EventBuffer,
		capture.EventLinuxDmabuf,
		capture.EventBufferDone,
		capture.EventFlags,
		capture.EventReady,
	}
	for i, want := range wantKinds {
		ev, err := tx.NextEvent()
		if err != nil {
			t.Fatalf("NextEvent %d: %v", i, err)
		}
		if ev.Kind != want {
			t.Fatalf("event %d: got %s, want %s", i, ev.Kind, want)
		}
		switch ev.Kind {
		case capture.EventBuffer:
			want := capture.FrameDescriptor{Format: pixel.FormatXrgb8888, Width: 1920, Height: 1080, Stride: 7680}
			if ev.Descriptor != want {
				t.Fatalf("descriptor = %v, want %v", ev.Descriptor, want)
			}
		case capture.EventFlags:
			if ev.Flags != capture.FlagYInvert {
				t.Fatalf("flags = %d", ev.Flags)
			}
		case capture.EventReady:
			if ev.Timestamp.Unix() != 100 {
				t.Fatalf("timestamp = %v", ev.Timestamp)
			}
		}
	}
}

func TestTransactionSynthesizesBufferDone(t *testing.T) {
	frame := &wlrscreencopy.ZwlrScreencopyFrameV1{}
	tx := newTransaction(&Session{}, frame, true)

	frame.Dispatch(0, -1, payload(uint32(pixel.FormatXbgr8888), 4, 4, 16))

	first, _ := tx.NextEvent()
	second, _ := tx.NextEvent()
	if first.Kind != capture.EventBuffer || second.Kind != capture.EventBufferDone {
		t.Fatalf("got %s then %s", first.Kind, second.Kind)
	}
}

func TestTransactionSynthesizesBufferDoneOnce(t *testing.T) {
	frame := &wlrscreencopy.ZwlrScreencopyFrameV1{}
	tx := newTransaction(&Session{}, frame, true)

	frame.Dispatch(0, -1, payload(uint32(pixel.FormatXrgb8888), 4, 4, 16))
	frame.Dispatch(0, -1, payload(uint32(pixel.FormatXbgr8888), 4, 4, 16))
	frame.Dispatch(2, -1, payload(0, 1, 0))

	wantKinds := []capture.EventKind{
		capture.EventBuffer,
		capture.EventBufferDone,
		capture.EventBuffer,
		capture.EventReady,
	}
	for i, want := range wantKinds {
		ev, err := tx.NextEvent()
		if err != nil {
			t.Fatalf("NextEvent %d: %v", i, err)
		}
		if ev.Kind != want {
			t.Fatalf("event %d: got %s, want %s", i, ev.Kind, want)
		}
	}
}
