package capture

import (
	"fmt"

	"github.com/bryanchriswhite/waycap/internal/geometry"
	"github.com/bryanchriswhite/waycap/internal/logger"
	"github.com/bryanchriswhite/waycap/internal/shm"
)

// Request describes one screenshot.
type Request struct {
	// Output is the output name. Empty selects the first output.
	Output        string
	OverlayCursor bool
	// Region, when set, is in compositor-global coordinates and must lie
	// inside the selected output.
	Region *geometry.Region
}

// Capturer resolves requests against the compositor's outputs and runs the
// frame handshake for each.
type Capturer struct {
	comp  Compositor
	alloc Allocator
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithAllocator replaces the shared-memory allocator.
func WithAllocator(alloc Allocator) Option {
	return func(c *Capturer) {
		c.alloc = alloc
	}
}

// New returns a Capturer bound to comp.
func New(comp Compositor, opts ...Option) *Capturer {
	c := &Capturer{
		comp:  comp,
		alloc: shm.Allocate,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Outputs returns the compositor's outputs in discovery order.
func (c *Capturer) Outputs() []geometry.Output {
	return c.comp.Outputs()
}

// ResolveOutput finds the output called name. An empty name selects the
// first output.
func ResolveOutput(outputs []geometry.Output, name string) (geometry.Output, error) {
	if name == "" {
		if len(outputs) == 0 {
			return geometry.Output{}, fmt.Errorf("%w: compositor reported no outputs", ErrNotFound)
		}
		return outputs[0], nil
	}
	for _, o := range outputs {
		if o.Name == name {
			return o, nil
		}
	}
	return geometry.Output{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// OutputForRegion returns the first output that fully contains region.
// Regions that span outputs are rejected.
func OutputForRegion(outputs []geometry.Output, region geometry.Region) (geometry.Output, error) {
	if region.Empty() {
		return geometry.Output{}, fmt.Errorf("%w: %s has no area", ErrInvalidRegion, region)
	}
	o, ok := geometry.OutputContaining(outputs, region)
	if !ok {
		return geometry.Output{}, fmt.Errorf("%w: %s is not inside a single output", ErrInvalidRegion, region)
	}
	return o, nil
}

// Capture takes a screenshot of an output or of a region of it.
func (c *Capturer) Capture(req Request) (*CapturedFrame, error) {
	output, err := ResolveOutput(c.comp.Outputs(), req.Output)
	if err != nil {
		return nil, err
	}

	var local *geometry.Region
	if req.Region != nil {
		if req.Region.Empty() {
			return nil, fmt.Errorf("%w: %s has no area", ErrInvalidRegion, *req.Region)
		}
		if !output.Bounds().Contains(*req.Region) {
			return nil, fmt.Errorf("%w: %s is outside output %s", ErrInvalidRegion, *req.Region, output)
		}
		r := req.Region.Local(output)
		local = &r
	}

	ev := logger.WithComponent("capture").Info().
		Str("output", output.Name).
		Bool("cursor", req.OverlayCursor)
	if local != nil {
		ev = ev.Stringer("region", *local)
	}
	ev.Msg("Capturing")

	tx, err := c.comp.Capture(output, req.OverlayCursor, local)
	if err != nil {
		return nil, err
	}

	frame, err := newFrame(tx, c.alloc).run()
	if err != nil {
		return nil, err
	}
	frame.Output = output
	return frame, nil
}

// CaptureRegion captures a global region from whichever output contains it.
func (c *Capturer) CaptureRegion(region geometry.Region, overlayCursor bool) (*CapturedFrame, error) {
	output, err := OutputForRegion(c.comp.Outputs(), region)
	if err != nil {
		return nil, err
	}
	return c.Capture(Request{Output: output.Name, OverlayCursor: overlayCursor, Region: &region})
}
