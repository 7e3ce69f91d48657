package window

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/bryanchriswhite/waycap/internal/geometry"
	"github.com/bryanchriswhite/waycap/internal/logger"
)

// HyprlandBackend asks Hyprland's request socket for the active window
type HyprlandBackend struct {
	socket string
}

// NewHyprlandBackend locates the request socket of the running instance
func NewHyprlandBackend() (*HyprlandBackend, error) {
	sig := os.Getenv("HYPRLAND_INSTANCE_SIGNATURE")
	if sig == "" {
		return nil, fmt.Errorf("%w: HYPRLAND_INSTANCE_SIGNATURE not set", ErrNoBackend)
	}

	// Hyprland 0.40 moved the sockets from /tmp/hypr to the runtime dir.
	candidates := []string{filepath.Join(os.TempDir(), "hypr", sig, ".socket.sock")}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		candidates = append([]string{filepath.Join(dir, "hypr", sig, ".socket.sock")}, candidates...)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return &HyprlandBackend{socket: path}, nil
		}
	}
	return nil, fmt.Errorf("%w: hyprland socket not found for instance %s", ErrNoBackend, sig)
}

// Name returns the backend name
func (b *HyprlandBackend) Name() string {
	return BackendHyprland
}

// Close is a no-op; Hyprland closes the socket after every reply
func (b *HyprlandBackend) Close() error {
	return nil
}

// FocusedWindow returns the active window
func (b *HyprlandBackend) FocusedWindow(ctx context.Context) (*Window, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", b.socket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to hyprland: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if _, err := conn.Write([]byte("j/activewindow")); err != nil {
		return nil, fmt.Errorf("failed to query hyprland: %w", err)
	}
	reply, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read hyprland reply: %w", err)
	}

	win, err := parseHyprlandWindow(reply)
	if err != nil {
		return nil, err
	}

	logger.WithComponent("hyprland-backend").Debug().
		Str("title", win.Title).
		Stringer("region", win.Region).
		Msg("Focused window")
	return win, nil
}

type hyprlandWindow struct {
	Address string   `json:"address"`
	At      [2]int32 `json:"at"`
	Size    [2]int32 `json:"size"`
	Title   string   `json:"title"`
	Class   string   `json:"class"`
}

// parseHyprlandWindow decodes a j/activewindow reply. Hyprland answers "{}"
// when nothing is focused.
func parseHyprlandWindow(reply []byte) (*Window, error) {
	reply = bytes.TrimSpace(reply)
	if len(reply) == 0 {
		return nil, ErrNoFocusedWindow
	}

	var hw hyprlandWindow
	if err := json.Unmarshal(reply, &hw); err != nil {
		return nil, fmt.Errorf("failed to decode hyprland reply: %w", err)
	}
	if hw.Address == "" {
		return nil, ErrNoFocusedWindow
	}

	return &Window{
		Title: hw.Title,
		Class: hw.Class,
		Region: geometry.Region{
			X:      hw.At[0],
			Y:      hw.At[1],
			Width:  hw.Size[0],
			Height: hw.Size[1],
		},
	}, nil
}
