package window

import (
	"context"
	"errors"

	"github.com/bryanchriswhite/waycap/internal/geometry"
)

var (
	// ErrNoFocusedWindow is returned when no window has keyboard focus.
	ErrNoFocusedWindow = errors.New("no focused window")
	// ErrNoBackend is returned when no supported window manager is detected.
	ErrNoBackend = errors.New("no window backend available")
)

// Window describes the focused toplevel
type Window struct {
	Title string `json:"title,omitempty"`
	Class string `json:"class,omitempty"`
	// Output is the name of the output the window is on, when known
	Output string `json:"output,omitempty"`
	// Region is the window content area in compositor-global logical
	// coordinates, without decorations
	Region geometry.Region `json:"region"`
}

// Backend queries a window manager for the focused window (sway, Hyprland, X11)
type Backend interface {
	// FocusedWindow returns the window that currently has keyboard focus
	FocusedWindow(ctx context.Context) (*Window, error)

	// Close releases the connection to the window manager
	Close() error

	// Name returns the backend name (e.g., "sway", "x11")
	Name() string
}
