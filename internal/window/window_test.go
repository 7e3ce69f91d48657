package window

import (
	"errors"
	"testing"

	"github.com/joshuarubin/go-sway"

	"github.com/bryanchriswhite/waycap/internal/geometry"
)

func strPtr(s string) *string { return &s }

func TestFocusedSwayWindow(t *testing.T) {
	focused := &sway.Node{
		Name:       "vim",
		Type:       "con",
		Focused:    true,
		AppID:      strPtr("foot"),
		Rect:       sway.Rect{X: 1920, Y: 30, Width: 960, Height: 1050},
		WindowRect: sway.Rect{X: 2, Y: 0, Width: 956, Height: 1048},
	}
	tree := &sway.Node{
		Type: "root",
		Nodes: []*sway.Node{
			{Name: "DP-1", Type: "output", Nodes: []*sway.Node{
				{Type: "workspace", Nodes: []*sway.Node{{Name: "firefox", Type: "con"}}},
			}},
			{Name: "HDMI-A-1", Type: "output", Nodes: []*sway.Node{
				{Type: "workspace", Nodes: []*sway.Node{focused}},
			}},
		},
	}

	win, err := focusedSwayWindow(tree)
	if err != nil {
		t.Fatalf("focusedSwayWindow: %v", err)
	}
	want := geometry.Region{X: 1922, Y: 30, Width: 956, Height: 1048}
	if win.Region != want {
		t.Fatalf("region = %v, want %v", win.Region, want)
	}
	if win.Output != "HDMI-A-1" || win.Class != "foot" || win.Title != "vim" {
		t.Fatalf("unexpected window %+v", win)
	}
}

func TestFocusedSwayFloatingWindow(t *testing.T) {
	tree := &sway.Node{Type: "root", Nodes: []*sway.Node{
		{Name: "DP-1", Type: "output", Nodes: []*sway.Node{
			{Type: "workspace", FloatingNodes: []*sway.Node{
				{
					Type:             "floating_con",
					Focused:          true,
					WindowProperties: &sway.WindowProperties{Class: "Gimp"},
					Rect:             sway.Rect{X: 100, Y: 100, Width: 400, Height: 300},
					WindowRect:       sway.Rect{X: 0, Y: 20, Width: 400, Height: 280},
				},
			}},
		}},
	}}

	win, err := focusedSwayWindow(tree)
	if err != nil {
		t.Fatalf("focusedSwayWindow: %v", err)
	}
	if win.Class != "Gimp" || win.Region.Y != 120 {
		t.Fatalf("unexpected window %+v", win)
	}
}

func TestFocusedSwayEmptyWorkspace(t *testing.T) {
	tree := &sway.Node{Type: "root", Nodes: []*sway.Node{
		{Name: "DP-1", Type: "output", Nodes: []*sway.Node{
			{Type: "workspace", Focused: true},
		}},
	}}
	if _, err := focusedSwayWindow(tree); !errors.Is(err, ErrNoFocusedWindow) {
		t.Fatalf("expected ErrNoFocusedWindow, got %v", err)
	}
}

func TestParseHyprlandWindow(t *testing.T) {
	reply := []byte(`{"address":"0x55d1","mapped":true,"at":[2570,48],"size":[1280,720],"workspace":{"id":2},"floating":false,"monitor":1,"class":"kitty","title":"~"}`)
	win, err := parseHyprlandWindow(reply)
	if err != nil {
		t.Fatalf("parseHyprlandWindow: %v", err)
	}
	want := geometry.Region{X: 2570, Y: 48, Width: 1280, Height: 720}
	if win.Region != want || win.Class != "kitty" {
		t.Fatalf("unexpected window %+v", win)
	}
}

func TestParseHyprlandNoWindow(t *testing.T) {
	for _, reply := range []string{"{}", "", "  \n"} {
		if _, err := parseHyprlandWindow([]byte(reply)); !errors.Is(err, ErrNoFocusedWindow) {
			t.Fatalf("reply %q: expected ErrNoFocusedWindow, got %v", reply, err)
		}
	}
	if _, err := parseHyprlandWindow([]byte("not json")); err == nil || errors.Is(err, ErrNoFocusedWindow) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestDetectName(t *testing.T) {
	tests := []struct {
		name     string
		sway     string
		hyprland string
		display  string
		want     string
	}{
		{"sway", "/run/user/1000/sway-ipc.sock", "", ":0", BackendSway},
		{"hyprland", "", "abc_123", ":0", BackendHyprland},
		{"x11 only", "", "", ":1", BackendX11},
		{"nothing", "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SWAYSOCK", tt.sway)
			t.Setenv("HYPRLAND_INSTANCE_SIGNATURE", tt.hyprland)
			t.Setenv("DISPLAY", tt.display)
			if got := DetectName(); got != tt.want {
				t.Fatalf("DetectName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewErrors(t *testing.T) {
	t.Setenv("SWAYSOCK", "")
	t.Setenv("HYPRLAND_INSTANCE_SIGNATURE", "")
	t.Setenv("DISPLAY", "")

	if _, err := New("auto"); !errors.Is(err, ErrNoBackend) {
		t.Fatalf("expected ErrNoBackend, got %v", err)
	}
	if _, err := New("kwin"); !errors.Is(err, ErrNoBackend) {
		t.Fatalf("expected ErrNoBackend for unknown backend, got %v", err)
	}
	if _, err := New("hyprland"); !errors.Is(err, ErrNoBackend) {
		t.Fatalf("expected ErrNoBackend without instance signature, got %v", err)
	}

	b, err := New("SWAY")
	if err != nil {
		t.Fatalf("New(SWAY): %v", err)
	}
	if b.Name() != BackendSway {
		t.Fatalf("unexpected backend %s", b.Name())
	}
}
