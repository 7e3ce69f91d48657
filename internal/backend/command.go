package backend

import (
	"github.com/bryanchriswhite/waycap/internal/capture"
	"github.com/bryanchriswhite/waycap/internal/encode"
	"github.com/bryanchriswhite/waycap/internal/geometry"
	"github.com/bryanchriswhite/waycap/internal/overlay"
	"github.com/bryanchriswhite/waycap/internal/window"
)

// Command is a request for the worker. The concrete types below are the
// only implementations.
type Command interface {
	command() string
}

// ListOutputs returns the discovered outputs.
type ListOutputs struct{}

// CaptureScreen captures a whole output. An empty Output selects the first
// one.
type CaptureScreen struct {
	Output string
	Cursor bool
}

// CaptureWindow captures the focused window through the window backend.
type CaptureWindow struct {
	Cursor bool
}

// CaptureRegion captures a region in global coordinates.
type CaptureRegion struct {
	Region geometry.Region
	Cursor bool
}

// Save encodes Frame and writes it to disk. The worker takes ownership of
// Frame and closes it whether or not saving succeeds.
type Save struct {
	Frame    *capture.CapturedFrame
	Dir      string
	Filename string
	Format   encode.Format
	Options  encode.Options
	// Label is stamped onto the image before encoding, when set.
	Label *overlay.Label
}

// Quit stops the worker after closing the compositor connection.
type Quit struct{}

func (ListOutputs) command() string   { return "list_outputs" }
func (CaptureScreen) command() string { return "capture_screen" }
func (CaptureWindow) command() string { return "capture_window" }
func (CaptureRegion) command() string { return "capture_region" }
func (Save) command() string          { return "save" }
func (Quit) command() string          { return "quit" }

// Result answers exactly one Command. Frame, when set, belongs to the
// receiver, which must Close it.
type Result struct {
	Outputs []geometry.Output
	Frame   *capture.CapturedFrame
	Path    string
	Window  *window.Window
	Err     error
}

// release frees whatever the result owns. Used for results nobody is
// waiting for anymore.
func (r Result) release() {
	if r.Frame != nil {
		r.Frame.Close()
	}
}
