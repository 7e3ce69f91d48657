package window

import (
	"fmt"
	"os"
	"strings"

	"github.com/bryanchriswhite/waycap/internal/logger"
)

// Backend names accepted by New.
const (
	BackendAuto     = "auto"
	BackendSway     = "sway"
	BackendHyprland = "hyprland"
	BackendX11      = "x11"
)

// DetectName picks a backend from the environment. The compositor-specific
// sockets win over DISPLAY, which XWayland sets on most Wayland sessions.
func DetectName() string {
	switch {
	case os.Getenv("SWAYSOCK") != "":
		return BackendSway
	case os.Getenv("HYPRLAND_INSTANCE_SIGNATURE") != "":
		return BackendHyprland
	case os.Getenv("DISPLAY") != "":
		return BackendX11
	}
	return ""
}

// New returns the named backend. An empty name or "auto" detects one.
func New(name string) (Backend, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == BackendAuto {
		name = DetectName()
		if name == "" {
			return nil, ErrNoBackend
		}
		logger.WithComponent("window").Debug().Str("backend", name).Msg("Detected window backend")
	}

	switch name {
	case BackendSway:
		return NewSwayBackend(), nil
	case BackendHyprland:
		return NewHyprlandBackend()
	case BackendX11:
		return NewX11Backend()
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrNoBackend, name)
	}
}
