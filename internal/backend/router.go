package backend

import (
	"errors"
	"fmt"
	"os"

	"github.com/bryanchriswhite/waycap/internal/logger"
	"github.com/bryanchriswhite/waycap/internal/x11"
)

// X11 opens the X server named by $DISPLAY.
func X11() (Engine, error) {
	e, err := x11.Connect()
	if err != nil {
		return nil, err
	}
	return e, nil
}

type candidate struct {
	name string
	open Opener
}

// candidates lists the engines Auto tries. X11 is only a fallback for
// plain X sessions: under XWayland the root window does not show native
// Wayland clients.
func candidates() []candidate {
	list := []candidate{{name: "wayland", open: Wayland}}
	if os.Getenv("WAYLAND_DISPLAY") == "" && os.Getenv("DISPLAY") != "" {
		list = append(list, candidate{name: "x11", open: X11})
	}
	return list
}

// Auto opens the first engine that connects.
func Auto() (Engine, error) {
	return route(candidates())
}

func route(list []candidate) (Engine, error) {
	log := logger.WithComponent("capture-router")

	var errs []error
	for _, c := range list {
		engine, err := c.open()
		if err != nil {
			log.Debug().Err(err).Str("engine", c.name).Msg("Capture engine not available")
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		log.Info().Str("engine", c.name).Msg("Capture engine initialized")
		return engine, nil
	}
	if len(errs) == 0 {
		return nil, errors.New("no capture engines configured")
	}
	return nil, errors.Join(errs...)
}
