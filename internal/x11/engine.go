// Package x11 captures the root window of an X server. It is the fallback
// engine for sessions without a wlroots compositor.
package x11

import (
	"fmt"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"golang.org/x/sys/unix"

	"github.com/bryanchriswhite/waycap/internal/capture"
	"github.com/bryanchriswhite/waycap/internal/geometry"
	"github.com/bryanchriswhite/waycap/internal/logger"
	"github.com/bryanchriswhite/waycap/internal/pixel"
)

// imageGetter reads a ZPixmap rectangle of the root window.
type imageGetter func(x, y int16, w, h uint16) ([]byte, error)

// Engine captures X11 screens
type Engine struct {
	conn    *xgb.Conn
	root    xproto.Window
	screen  *xproto.ScreenInfo
	outputs []geometry.Output
	mu      sync.Mutex
}

// Connect opens the display named by $DISPLAY.
func Connect() (*Engine, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to X server: %v", capture.ErrConnection, err)
	}

	screen := xproto.Setup(conn).DefaultScreen(conn)
	if screen.RootDepth != 24 && screen.RootDepth != 32 {
		conn.Close()
		return nil, fmt.Errorf("%w: root depth %d", capture.ErrUnsupportedFormat, screen.RootDepth)
	}

	e := &Engine{
		conn:   conn,
		root:   screen.Root,
		screen: screen,
	}
	e.outputs = e.discover()

	logger.WithComponent("x11").Info().
		Int("outputs", len(e.outputs)).
		Uint8("depth", screen.RootDepth).
		Msg("Connected to X server")
	return e, nil
}

// discover lists active RandR outputs. Without RandR the whole root window
// is one output.
func (e *Engine) discover() []geometry.Output {
	log := logger.WithComponent("x11")
	whole := []geometry.Output{{
		Name:   "screen-0",
		Width:  int32(e.screen.WidthInPixels),
		Height: int32(e.screen.HeightInPixels),
		Scale:  1,
	}}

	if err := randr.Init(e.conn); err != nil {
		log.Debug().Err(err).Msg("RandR not available, using the root window")
		return whole
	}
	res, err := randr.GetScreenResources(e.conn, e.root).Reply()
	if err != nil {
		log.Debug().Err(err).Msg("Failed to get screen resources")
		return whole
	}

	var outputs []geometry.Output
	for _, out := range res.Outputs {
		info, err := randr.GetOutputInfo(e.conn, out, res.ConfigTimestamp).Reply()
		if err != nil || info.Connection != randr.ConnectionConnected || info.Crtc == 0 {
			continue
		}
		crtc, err := randr.GetCrtcInfo(e.conn, info.Crtc, res.ConfigTimestamp).Reply()
		if err != nil || crtc.Width == 0 || crtc.Height == 0 {
			continue
		}
		outputs = append(outputs, geometry.Output{
			Name:   string(info.Name),
			X:      int32(crtc.X),
			Y:      int32(crtc.Y),
			Width:  int32(crtc.Width),
			Height: int32(crtc.Height),
			Scale:  1,
		})
	}
	if len(outputs) == 0 {
		return whole
	}
	return outputs
}

// Outputs returns the monitors found at connect time.
func (e *Engine) Outputs() []geometry.Output {
	return e.outputs
}

// Capture reads the output, or the output-local region, from the root
// window. The cursor is never included.
func (e *Engine) Capture(out geometry.Output, overlayCursor bool, region *geometry.Region) (capture.Transaction, error) {
	rect := out.Bounds()
	if region != nil {
		rect = region.Translate(out.X, out.Y)
	}
	if overlayCursor {
		logger.WithComponent("x11").Debug().Msg("Cursor overlay is not supported on X11")
	}
	return newTransaction(rect, e.getImage), nil
}

func (e *Engine) getImage(x, y int16, w, h uint16) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	reply, err := xproto.GetImage(
		e.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(e.root),
		x, y, w, h,
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return reply.Data, nil
}

// Close closes the X connection
func (e *Engine) Close() error {
	e.conn.Close()
	return nil
}

// transaction replays the screencopy handshake for a GetImage request: one
// xrgb8888 buffer offer, buffer_done, then ready once the copy has landed.
type transaction struct {
	rect   geometry.Region
	get    imageGetter
	events []capture.Event
}

func newTransaction(rect geometry.Region, get imageGetter) *transaction {
	desc := capture.FrameDescriptor{
		Format: pixel.FormatXrgb8888,
		Width:  uint32(rect.Width),
		Height: uint32(rect.Height),
		Stride: uint32(rect.Width) * 4,
	}
	return &transaction{
		rect: rect,
		get:  get,
		events: []capture.Event{
			{Kind: capture.EventBuffer, Descriptor: desc},
			{Kind: capture.EventBufferDone},
		},
	}
}

func (t *transaction) NextEvent() (capture.Event, error) {
	if len(t.events) == 0 {
		return capture.Event{}, fmt.Errorf("%w: no pending event", capture.ErrProtocol)
	}
	ev := t.events[0]
	t.events = t.events[1:]
	return ev, nil
}

func (t *transaction) Copy(desc capture.FrameDescriptor, fd int, size int) error {
	data, err := t.get(int16(t.rect.X), int16(t.rect.Y), uint16(t.rect.Width), uint16(t.rect.Height))
	if err != nil {
		logger.WithComponent("x11").Warn().Err(err).Stringer("region", t.rect).Msg("GetImage failed")
		t.events = append(t.events, capture.Event{Kind: capture.EventFailed})
		return nil
	}
	if len(data) < size {
		return fmt.Errorf("%w: got %d bytes of image data, want %d", capture.ErrCaptureFailed, len(data), size)
	}
	if _, err := unix.Pwrite(fd, data[:size], 0); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	t.events = append(t.events, capture.Event{Kind: capture.EventReady, Timestamp: time.Now()})
	return nil
}

func (t *transaction) Close() error {
	return nil
}
