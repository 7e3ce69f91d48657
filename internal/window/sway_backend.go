package window

import (
	"context"
	"fmt"

	"github.com/joshuarubin/go-sway"

	"github.com/bryanchriswhite/waycap/internal/geometry"
	"github.com/bryanchriswhite/waycap/internal/logger"
)

// SwayBackend reads the focused container from the sway IPC tree
type SwayBackend struct{}

// NewSwayBackend creates a sway backend. The IPC socket is opened per query.
func NewSwayBackend() *SwayBackend {
	return &SwayBackend{}
}

// Name returns the backend name
func (b *SwayBackend) Name() string {
	return BackendSway
}

// Close is a no-op; connections do not outlive a query
func (b *SwayBackend) Close() error {
	return nil
}

// FocusedWindow returns the focused view
func (b *SwayBackend) FocusedWindow(ctx context.Context) (*Window, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, err := sway.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sway: %w", err)
	}

	tree, err := client.GetTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sway tree: %w", err)
	}

	win, err := focusedSwayWindow(tree)
	if err != nil {
		return nil, err
	}

	logger.WithComponent("sway-backend").Debug().
		Str("title", win.Title).
		Str("output", win.Output).
		Stringer("region", win.Region).
		Msg("Focused window")
	return win, nil
}

// focusedSwayWindow walks the tree for the focused view. The content area is
// the container rect offset by window_rect, which excludes borders.
func focusedSwayWindow(root *sway.Node) (*Window, error) {
	node, output := findFocused(root, "")
	if node == nil || !isView(node) {
		return nil, ErrNoFocusedWindow
	}

	win := &Window{
		Title:  node.Name,
		Output: output,
		Region: geometry.Region{
			X:      int32(node.Rect.X + node.WindowRect.X),
			Y:      int32(node.Rect.Y + node.WindowRect.Y),
			Width:  int32(node.WindowRect.Width),
			Height: int32(node.WindowRect.Height),
		},
	}
	switch {
	case node.AppID != nil && *node.AppID != "":
		win.Class = *node.AppID
	case node.WindowProperties != nil:
		win.Class = node.WindowProperties.Class
	}
	return win, nil
}

func findFocused(n *sway.Node, output string) (*sway.Node, string) {
	if n == nil {
		return nil, ""
	}
	if string(n.Type) == "output" {
		output = n.Name
	}
	if n.Focused {
		return n, output
	}
	for _, children := range [][]*sway.Node{n.Nodes, n.FloatingNodes} {
		for _, child := range children {
			if found, out := findFocused(child, output); found != nil {
				return found, out
			}
		}
	}
	return nil, ""
}

func isView(n *sway.Node) bool {
	t := string(n.Type)
	return t == "con" || t == "floating_con"
}
