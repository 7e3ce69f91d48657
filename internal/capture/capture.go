// Package capture drives a single screencopy handshake from request to a
// converted RGBA8 frame.
package capture

import (
	"github.com/bryanchriswhite/waycap/internal/geometry"
	"github.com/bryanchriswhite/waycap/internal/shm"
)

// Compositor is the protocol session a Capturer talks to
type Compositor interface {
	// Outputs returns the outputs found by the last discovery, in the
	// order the compositor advertised them
	Outputs() []geometry.Output

	// Capture asks the compositor to copy the given output, or the region of
	// it when region is non-nil. The region is in output-local coordinates.
	Capture(output geometry.Output, overlayCursor bool, region *geometry.Region) (Transaction, error)
}

// Transaction is one in-flight screencopy frame on the compositor side
type Transaction interface {
	// NextEvent blocks until the compositor delivers the next frame event
	NextEvent() (Event, error)

	// Copy wraps fd in a pool and buffer described by desc and asks the
	// compositor to copy the frame into it
	Copy(desc FrameDescriptor, fd int, size int) error

	// Close destroys every compositor-side object of the transaction.
	// It must be safe to call more than once.
	Close() error
}

// Allocator creates the shared memory a frame is copied into
type Allocator func(size int) (*shm.Region, error)
