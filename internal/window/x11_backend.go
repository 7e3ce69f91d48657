package window

import (
	"context"
	"fmt"
	"strings"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/bryanchriswhite/waycap/internal/geometry"
	"github.com/bryanchriswhite/waycap/internal/logger"
)

// X11Backend implements the Backend interface using X11 (or XWayland)
type X11Backend struct {
	conn *xgb.Conn
	root xproto.Window
}

// NewX11Backend creates a new X11 backend
func NewX11Backend() (*X11Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	root := setup.DefaultScreen(conn).Root

	return &X11Backend{
		conn: conn,
		root: root,
	}, nil
}

// Close closes the X11 connection
func (b *X11Backend) Close() error {
	b.conn.Close()
	return nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return BackendX11
}

// FocusedWindow returns the window named by _NET_ACTIVE_WINDOW, falling back
// to the input focus when the window manager does not publish it
func (b *X11Backend) FocusedWindow(ctx context.Context) (*Window, error) {
	log := logger.WithComponent("x11-backend")

	win, err := b.activeWindow()
	if err != nil {
		log.Debug().Err(err).Msg("_NET_ACTIVE_WINDOW unavailable, using input focus")
		focus, ferr := xproto.GetInputFocus(b.conn).Reply()
		if ferr != nil {
			return nil, fmt.Errorf("failed to get input focus: %w", ferr)
		}
		win = focus.Focus
	}
	if win == xproto.WindowNone || win == b.root || win == xproto.InputFocusPointerRoot {
		return nil, ErrNoFocusedWindow
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	geom, err := xproto.GetGeometry(b.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get window geometry: %w", err)
	}

	// Geometry is relative to the parent; translate the origin to the root.
	pos, err := xproto.TranslateCoordinates(b.conn, win, b.root, 0, 0).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to translate window coordinates: %w", err)
	}

	w := &Window{
		Title: b.title(win),
		Class: b.class(win),
		Region: geometry.Region{
			X:      int32(pos.DstX),
			Y:      int32(pos.DstY),
			Width:  int32(geom.Width),
			Height: int32(geom.Height),
		},
	}

	log.Debug().
		Uint32("winID", uint32(win)).
		Str("title", w.Title).
		Stringer("region", w.Region).
		Msg("Focused window")
	return w, nil
}

func (b *X11Backend) activeWindow() (xproto.Window, error) {
	atom, err := b.getAtom("_NET_ACTIVE_WINDOW")
	if err != nil {
		return 0, err
	}
	reply, err := xproto.GetProperty(b.conn, false, b.root, atom, xproto.AtomWindow, 0, 1).Reply()
	if err != nil {
		return 0, err
	}
	if len(reply.Value) < 4 {
		return 0, fmt.Errorf("_NET_ACTIVE_WINDOW is empty")
	}
	return xproto.Window(xgb.Get32(reply.Value)), nil
}

func (b *X11Backend) title(win xproto.Window) string {
	for _, name := range []string{"_NET_WM_NAME", "WM_NAME"} {
		atom, err := b.getAtom(name)
		if err != nil {
			continue
		}
		if title, err := b.getProperty(win, atom); err == nil && title != "" {
			return title
		}
	}
	return ""
}

// class returns the class half of WM_CLASS (instance\0class\0)
func (b *X11Backend) class(win xproto.Window) string {
	atom, err := b.getAtom("WM_CLASS")
	if err != nil {
		return ""
	}
	raw, err := b.getProperty(win, atom)
	if err != nil {
		return ""
	}
	parts := strings.Split(raw, "\x00")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	return parts[0]
}

// getAtom gets an atom ID by name
func (b *X11Backend) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(b.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

// getProperty gets a property value as a string
func (b *X11Backend) getProperty(win xproto.Window, atom xproto.Atom) (string, error) {
	reply, err := xproto.GetProperty(
		b.conn,
		false,
		win,
		atom,
		xproto.GetPropertyTypeAny,
		0,
		(1<<32)-1,
	).Reply()
	if err != nil {
		return "", err
	}

	if reply.ValueLen == 0 {
		return "", fmt.Errorf("empty property")
	}

	return string(reply.Value), nil
}
