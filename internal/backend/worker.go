// Package backend confines the compositor connection to a single goroutine
// and serves capture commands one at a time.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/waycap/internal/capture"
	"github.com/bryanchriswhite/waycap/internal/encode"
	"github.com/bryanchriswhite/waycap/internal/logger"
	"github.com/bryanchriswhite/waycap/internal/overlay"
	"github.com/bryanchriswhite/waycap/internal/wayland"
	"github.com/bryanchriswhite/waycap/internal/window"
)

// DefaultWindowTimeout bounds a focused-window query.
const DefaultWindowTimeout = 2 * time.Second

var (
	// ErrStopped is returned by Do after the worker has quit.
	ErrStopped = errors.New("backend worker stopped")
	// ErrUnavailable wraps the initialization error reported for every
	// command when the compositor connection could not be opened.
	ErrUnavailable = errors.New("backend unavailable")
)

// Engine is a compositor connection.
type Engine interface {
	capture.Compositor
	Close() error
}

// Opener creates the Engine. It runs on the worker goroutine.
type Opener func() (Engine, error)

// Wayland opens a connection to the running Wayland compositor.
func Wayland() (Engine, error) {
	s, err := wayland.Connect()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Worker owns one Engine. Commands go in on one channel and results come
// back on another, strictly in order.
type Worker struct {
	commands chan Command
	results  chan Result
	done     chan struct{}

	// mu pairs a command with its result for Do callers.
	mu sync.Mutex

	windows       window.Backend
	windowTimeout time.Duration
	captureOpts   []capture.Option

	closeErr error
}

// Option configures a Worker.
type Option func(*Worker)

// WithWindowBackend sets the backend used by CaptureWindow. The worker
// closes it on Quit.
func WithWindowBackend(b window.Backend) Option {
	return func(w *Worker) {
		w.windows = b
	}
}

// WithWindowTimeout overrides DefaultWindowTimeout.
func WithWindowTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.windowTimeout = d
		}
	}
}

// WithCaptureOptions passes options to the capture.Capturer.
func WithCaptureOptions(opts ...capture.Option) Option {
	return func(w *Worker) {
		w.captureOpts = append(w.captureOpts, opts...)
	}
}

// Start launches the worker goroutine, which calls open before serving the
// first command.
func Start(open Opener, opts ...Option) *Worker {
	w := &Worker{
		commands:      make(chan Command),
		results:       make(chan Result),
		done:          make(chan struct{}),
		windowTimeout: DefaultWindowTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.run(open)
	return w
}

// Commands is the inbound queue. Every command sent here produces exactly
// one value on Results.
func (w *Worker) Commands() chan<- Command {
	return w.commands
}

// Results is the outbound queue.
func (w *Worker) Results() <-chan Result {
	return w.results
}

// Done is closed once the worker has quit.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Do sends cmd and waits for its result. It is safe for concurrent use.
// If ctx ends while the command is running, the result is drained and its
// frame closed before the next command is admitted.
func (w *Worker) Do(ctx context.Context, cmd Command) (Result, error) {
	w.mu.Lock()

	select {
	case w.commands <- cmd:
	case <-ctx.Done():
		w.mu.Unlock()
		return Result{}, ctx.Err()
	case <-w.done:
		w.mu.Unlock()
		return Result{}, ErrStopped
	}

	select {
	case res := <-w.results:
		w.mu.Unlock()
		return res, nil
	case <-ctx.Done():
		go func() {
			defer w.mu.Unlock()
			select {
			case res := <-w.results:
				logger.WithComponent("backend").Debug().
					Str("command", cmd.command()).
					Msg("Dropping result of cancelled command")
				res.release()
			case <-w.done:
			}
		}()
		return Result{}, ctx.Err()
	case <-w.done:
		w.mu.Unlock()
		return Result{}, ErrStopped
	}
}

// Close stops the worker and waits for it to exit. It returns the error
// from closing the engine, if any.
func (w *Worker) Close() error {
	if _, err := w.Do(context.Background(), Quit{}); err != nil && !errors.Is(err, ErrStopped) {
		return err
	}
	<-w.done
	return w.closeErr
}

func (w *Worker) run(open Opener) {
	defer close(w.done)
	log := logger.WithComponent("backend")

	var (
		engine   Engine
		capturer *capture.Capturer
		unusable error
	)
	engine, err := open()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open compositor connection")
		unusable = fmt.Errorf("%w: %w", ErrUnavailable, err)
	} else {
		capturer = capture.New(engine, w.captureOpts...)
		log.Debug().Int("outputs", len(engine.Outputs())).Msg("Backend ready")
	}

	for cmd := range w.commands {
		log.Debug().Str("command", cmd.command()).Msg("Handling command")

		var res Result
		switch c := cmd.(type) {
		case Quit:
			w.shutdown(engine)
			w.results <- res
			return
		case Save:
			res = save(c)
		default:
			if unusable != nil {
				res.Err = unusable
			} else {
				res = w.handle(capturer, c)
			}
		}

		if res.Err != nil {
			log.Warn().Err(res.Err).Str("command", cmd.command()).Msg("Command failed")
		}
		w.results <- res
	}
}

func (w *Worker) handle(c *capture.Capturer, cmd Command) Result {
	var res Result
	switch cmd := cmd.(type) {
	case ListOutputs:
		res.Outputs = c.Outputs()
	case CaptureScreen:
		res.Frame, res.Err = c.Capture(capture.Request{
			Output:        cmd.Output,
			OverlayCursor: cmd.Cursor,
		})
	case CaptureRegion:
		res.Frame, res.Err = c.CaptureRegion(cmd.Region, cmd.Cursor)
	case CaptureWindow:
		win, err := w.focusedWindow()
		if err != nil {
			res.Err = err
			break
		}
		res.Window = win
		res.Frame, res.Err = c.CaptureRegion(win.Region, cmd.Cursor)
	default:
		res.Err = fmt.Errorf("unknown command %T", cmd)
	}
	return res
}

func (w *Worker) focusedWindow() (*window.Window, error) {
	if w.windows == nil {
		return nil, window.ErrNoBackend
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.windowTimeout)
	defer cancel()

	win, err := w.windows.FocusedWindow(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", w.windows.Name(), err)
	}
	logger.WithComponent("backend").Debug().
		Str("title", win.Title).
		Stringer("region", win.Region).
		Msg("Focused window")
	return win, nil
}

func (w *Worker) shutdown(engine Engine) {
	var errs []error
	if engine != nil {
		errs = append(errs, engine.Close())
	}
	if w.windows != nil {
		errs = append(errs, w.windows.Close())
	}
	w.closeErr = errors.Join(errs...)
}

// save runs on the worker goroutine so that Save commands are ordered with
// captures, but it never touches the engine.
func save(cmd Save) Result {
	if cmd.Frame == nil {
		return Result{Err: errors.New("save: no frame")}
	}
	defer cmd.Frame.Close()

	img := cmd.Frame.Clone()
	if img == nil {
		return Result{Err: errors.New("save: frame already closed")}
	}

	if cmd.Label != nil {
		// The caller keeps its label; placeholders are filled on a copy.
		label := *cmd.Label
		label.Output = cmd.Frame.Output.Name
		if label.Time.IsZero() {
			label.Time = cmd.Frame.Timestamp
		}
		if err := overlay.Apply(img, &label); err != nil {
			return Result{Err: fmt.Errorf("label: %w", err)}
		}
	}

	format := cmd.Format
	if format == "" {
		format = encode.PNG
	}
	name := cmd.Filename
	if name == "" {
		name = encode.DefaultFilename(time.Now())
	}
	path, err := encode.Save(encode.ScreenshotDir(cmd.Dir), name, format, img, cmd.Options)
	return Result{Path: path, Err: err}
}
