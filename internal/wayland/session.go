// Package wayland is the compositor connection used for screenshots. It
// discovers outputs and opens screencopy transactions on demand.
package wayland

import (
	"fmt"

	"github.com/rajveermalviya/go-wayland/wayland/client"

	"github.com/bryanchriswhite/waycap/internal/capture"
	"github.com/bryanchriswhite/waycap/internal/geometry"
	"github.com/bryanchriswhite/waycap/internal/logger"
	"github.com/bryanchriswhite/waycap/internal/protocol/wlrscreencopy"
	"github.com/bryanchriswhite/waycap/internal/protocol/xdgoutput"
)

const (
	maxOutputVersion     = 4
	maxScreencopyVersion = 3
	maxXdgOutputVersion  = 3
	// buffer_done was added in screencopy version 3.
	bufferDoneSince = 3
	// wl_output.release was added in version 3.
	outputReleaseSince = 3

	// Core protocol interface names as advertised by wl_registry.
	shmInterfaceName    = "wl_shm"
	outputInterfaceName = "wl_output"
)

type global struct {
	name    uint32
	iface   string
	version uint32
}

// output accumulates what the compositor reports about one wl_output.
type output struct {
	globalName uint32
	version    uint32
	wl         *client.Output
	xdg        *xdgoutput.ZxdgOutputV1

	name        string
	description string
	x, y        int32
	modeW       int32
	modeH       int32
	scale       int32

	hasLogicalPos  bool
	hasLogicalSize bool
	logicalX       int32
	logicalY       int32
	logicalW       int32
	logicalH       int32
}

// logical returns the output in compositor-global logical coordinates. Without
// xdg-output data the physical mode is divided by the integer scale.
func (o *output) logical() geometry.Output {
	out := geometry.Output{
		Name:        o.name,
		Description: o.description,
		X:           o.x,
		Y:           o.y,
		Scale:       o.scale,
	}
	if out.Scale <= 0 {
		out.Scale = 1
	}
	if out.Name == "" {
		out.Name = fmt.Sprintf("output-%d", o.globalName)
	}
	if o.hasLogicalPos {
		out.X, out.Y = o.logicalX, o.logicalY
	}
	if o.hasLogicalSize {
		out.Width, out.Height = o.logicalW, o.logicalH
	} else {
		out.Width, out.Height = o.modeW/out.Scale, o.modeH/out.Scale
	}
	return out
}

// Session is one connection to the compositor. It is not safe for concurrent
// use; the backend worker confines it to a single goroutine.
type Session struct {
	display  *client.Display
	ctx      *client.Context
	registry *client.Registry

	shm               *client.Shm
	screencopy        *wlrscreencopy.ZwlrScreencopyManagerV1
	screencopyVersion uint32
	xdgManager        *xdgoutput.ZxdgOutputManagerV1

	globals []global
	outputs []*output
	closed  bool
}

// Connect opens the compositor named by WAYLAND_DISPLAY and discovers its
// outputs. The compositor must offer wl_shm and wlr-screencopy.
func Connect() (*Session, error) {
	display, err := client.Connect("")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrConnection, err)
	}

	s := &Session{
		display: display,
		ctx:     display.Context(),
	}
	if err := s.discover(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) discover() error {
	log := logger.WithComponent("wayland")

	registry, err := s.display.GetRegistry()
	if err != nil {
		return fmt.Errorf("%w: get registry: %v", capture.ErrConnection, err)
	}
	s.registry = registry
	registry.SetGlobalHandler(func(e client.RegistryGlobalEvent) {
		log.Debug().
			Uint32("name", e.Name).
			Str("interface", e.Interface).
			Uint32("version", e.Version).
			Msg("Global advertised")
		s.globals = append(s.globals, global{name: e.Name, iface: e.Interface, version: e.Version})
	})
	registry.SetGlobalRemoveHandler(func(e client.RegistryGlobalRemoveEvent) {
		log.Debug().Uint32("name", e.Name).Msg("Global removed")
	})

	if err := s.roundtrip(); err != nil {
		return err
	}

	for _, g := range s.globals {
		if err := s.bind(g); err != nil {
			return fmt.Errorf("%w: bind %s: %v", capture.ErrConnection, g.iface, err)
		}
	}
	if s.shm == nil {
		return fmt.Errorf("%w: compositor does not offer %s", capture.ErrConnection, shmInterfaceName)
	}
	if s.screencopy == nil {
		return fmt.Errorf("%w: compositor does not support %s", capture.ErrConnection, wlrscreencopy.ZwlrScreencopyManagerV1InterfaceName)
	}

	if err := s.roundtrip(); err != nil {
		return err
	}

	if s.xdgManager == nil {
		log.Warn().Msg("xdg-output not available, output geometry may be inaccurate for scaled outputs")
	} else {
		for _, o := range s.outputs {
			if err := s.attachXdgOutput(o); err != nil {
				return fmt.Errorf("%w: get xdg_output: %v", capture.ErrConnection, err)
			}
		}
		if err := s.roundtrip(); err != nil {
			return err
		}
	}

	for _, o := range s.Outputs() {
		log.Info().
			Str("output", o.Name).
			Int32("x", o.X).
			Int32("y", o.Y).
			Int32("width", o.Width).
			Int32("height", o.Height).
			Int32("scale", o.Scale).
			Msg("Discovered output")
	}
	return nil
}

func (s *Session) bind(g global) error {
	switch g.iface {
	case shmInterfaceName:
		shm := client.NewShm(s.ctx)
		if err := s.registry.Bind(g.name, g.iface, 1, shm); err != nil {
			return err
		}
		s.shm = shm

	case wlrscreencopy.ZwlrScreencopyManagerV1InterfaceName:
		version := min(g.version, maxScreencopyVersion)
		sc := wlrscreencopy.NewZwlrScreencopyManagerV1(s.ctx)
		if err := s.registry.Bind(g.name, g.iface, version, sc); err != nil {
			return err
		}
		s.screencopy = sc
		s.screencopyVersion = version

	case xdgoutput.ZxdgOutputManagerV1InterfaceName:
		mgr := xdgoutput.NewZxdgOutputManagerV1(s.ctx)
		if err := s.registry.Bind(g.name, g.iface, min(g.version, maxXdgOutputVersion), mgr); err != nil {
			return err
		}
		s.xdgManager = mgr

	case outputInterfaceName:
		version := min(g.version, maxOutputVersion)
		wl := client.NewOutput(s.ctx)
		if err := s.registry.Bind(g.name, g.iface, version, wl); err != nil {
			return err
		}
		o := &output{globalName: g.name, version: version, wl: wl, scale: 1}
		s.watchOutput(o)
		s.outputs = append(s.outputs, o)
	}
	return nil
}

func (s *Session) watchOutput(o *output) {
	o.wl.SetGeometryHandler(func(e client.OutputGeometryEvent) {
		o.x, o.y = e.X, e.Y
	})
	o.wl.SetModeHandler(func(e client.OutputModeEvent) {
		if e.Flags&uint32(client.OutputModeCurrent) == 0 {
			return
		}
		o.modeW, o.modeH = e.Width, e.Height
	})
	o.wl.SetScaleHandler(func(e client.OutputScaleEvent) {
		o.scale = e.Factor
	})
	o.wl.SetNameHandler(func(e client.OutputNameEvent) {
		if o.name == "" {
			o.name = e.Name
		}
	})
	o.wl.SetDescriptionHandler(func(e client.OutputDescriptionEvent) {
		if o.description == "" {
			o.description = e.Description
		}
	})
}

func (s *Session) attachXdgOutput(o *output) error {
	xdg, err := s.xdgManager.GetXdgOutput(o.wl)
	if err != nil {
		return err
	}
	o.xdg = xdg
	xdg.SetLogicalPositionHandler(func(e xdgoutput.ZxdgOutputV1LogicalPositionEvent) {
		o.logicalX, o.logicalY = e.X, e.Y
		o.hasLogicalPos = true
	})
	xdg.SetLogicalSizeHandler(func(e xdgoutput.ZxdgOutputV1LogicalSizeEvent) {
		o.logicalW, o.logicalH = e.Width, e.Height
		o.hasLogicalSize = true
	})
	xdg.SetNameHandler(func(e xdgoutput.ZxdgOutputV1NameEvent) {
		o.name = e.Name
	})
	xdg.SetDescriptionHandler(func(e xdgoutput.ZxdgOutputV1DescriptionEvent) {
		o.description = e.Description
	})
	return nil
}

// roundtrip blocks until the compositor has processed every request sent so
// far and all resulting events have been dispatched.
func (s *Session) roundtrip() error {
	cb, err := s.display.Sync()
	if err != nil {
		return fmt.Errorf("%w: sync: %v", capture.ErrConnection, err)
	}
	done := false
	cb.SetDoneHandler(func(client.CallbackDoneEvent) {
		done = true
	})
	for !done {
		if err := s.ctx.Dispatch(); err != nil {
			return fmt.Errorf("%w: dispatch: %v", capture.ErrConnection, err)
		}
	}
	return nil
}

// Outputs returns the discovered outputs in advertisement order.
func (s *Session) Outputs() []geometry.Output {
	outs := make([]geometry.Output, 0, len(s.outputs))
	for _, o := range s.outputs {
		outs = append(outs, o.logical())
	}
	return outs
}

func (s *Session) lookup(name string) *output {
	for _, o := range s.outputs {
		if o.logical().Name == name {
			return o
		}
	}
	return nil
}

// Capture starts a screencopy transaction for out. region is output-local.
func (s *Session) Capture(out geometry.Output, overlayCursor bool, region *geometry.Region) (capture.Transaction, error) {
	o := s.lookup(out.Name)
	if o == nil {
		return nil, fmt.Errorf("%w: %q", capture.ErrNotFound, out.Name)
	}

	cursor := int32(0)
	if overlayCursor {
		cursor = 1
	}

	var (
		frame *wlrscreencopy.ZwlrScreencopyFrameV1
		err   error
	)
	if region == nil {
		frame, err = s.screencopy.CaptureOutput(cursor, o.wl)
	} else {
		frame, err = s.screencopy.CaptureOutputRegion(cursor, o.wl, region.X, region.Y, region.Width, region.Height)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: capture request: %v", capture.ErrConnection, err)
	}

	return newTransaction(s, frame, s.screencopyVersion < bufferDoneSince), nil
}

// Close destroys every bound global and disconnects. It is safe to call
// more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	for _, o := range s.outputs {
		if o.xdg != nil {
			o.xdg.Destroy()
		}
		if o.version >= outputReleaseSince {
			o.wl.Release()
		}
	}
	if s.xdgManager != nil {
		s.xdgManager.Destroy()
	}
	if s.screencopy != nil {
		s.screencopy.Destroy()
	}
	return s.ctx.Close()
}
