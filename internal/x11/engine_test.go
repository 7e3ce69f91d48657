package x11

import (
	"errors"
	"testing"

	"github.com/bryanchriswhite/waycap/internal/capture"
	"github.com/bryanchriswhite/waycap/internal/geometry"
)

// stubEngine runs real transactions against a canned image source.
type stubEngine struct {
	outputs []geometry.Output
	get     imageGetter
}

func (s *stubEngine) Outputs() []geometry.Output { return s.outputs }

func (s *stubEngine) Capture(out geometry.Output, cursor bool, region *geometry.Region) (capture.Transaction, error) {
	rect := out.Bounds()
	if region != nil {
		rect = region.Translate(out.X, out.Y)
	}
	return newTransaction(rect, s.get), nil
}

var outputs = []geometry.Output{
	{Name: "HDMI-0", Width: 1920, Height: 1080, Scale: 1},
	{Name: "DP-0", X: 1920, Width: 1920, Height: 1080, Scale: 1},
}

func TestTransactionCapturesRegion(t *testing.T) {
	var got [4]int
	get := func(x, y int16, w, h uint16) ([]byte, error) {
		got = [4]int{int(x), int(y), int(w), int(h)}
		data := make([]byte, int(w)*int(h)*4)
		for i := 0; i < len(data); i += 4 {
			// B, G, R, pad
			data[i], data[i+1], data[i+2] = 0x10, 0x20, 0x30
		}
		return data, nil
	}

	c := capture.New(&stubEngine{outputs: outputs, get: get})
	frame, err := c.CaptureRegion(geometry.Region{X: 2000, Y: 100, Width: 3, Height: 2}, false)
	if err != nil {
		t.Fatalf("CaptureRegion: %v", err)
	}
	defer frame.Close()

	if got != [4]int{2000, 100, 3, 2} {
		t.Fatalf("GetImage rectangle = %v", got)
	}
	img := frame.Clone()
	if c := img.RGBAAt(2, 1); c.R != 0x30 || c.G != 0x20 || c.B != 0x10 || c.A != 0xff {
		t.Fatalf("pixel = %+v", c)
	}
}

func TestTransactionGetImageFailure(t *testing.T) {
	get := func(x, y int16, w, h uint16) ([]byte, error) {
		return nil, errors.New("BadMatch")
	}
	c := capture.New(&stubEngine{outputs: outputs, get: get})
	if _, err := c.Capture(capture.Request{}); !errors.Is(err, capture.ErrCaptureFailed) {
		t.Fatalf("expected ErrCaptureFailed, got %v", err)
	}
}

func TestTransactionShortImage(t *testing.T) {
	get := func(x, y int16, w, h uint16) ([]byte, error) {
		return make([]byte, 16), nil
	}
	c := capture.New(&stubEngine{outputs: outputs, get: get})
	if _, err := c.Capture(capture.Request{Output: "DP-0"}); !errors.Is(err, capture.ErrCaptureFailed) {
		t.Fatalf("expected ErrCaptureFailed, got %v", err)
	}
}
