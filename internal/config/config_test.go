package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func TestNewManagerMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if *m.Get() != *Defaults() {
		t.Fatalf("expected defaults, got %+v", m.Get())
	}
	if m.Get().ServerHost != "127.0.0.1" {
		t.Fatalf("server should listen on loopback by default, got %q", m.Get().ServerHost)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("config file created without Save")
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	m, err := NewManager(path)
	if err != nil {
		t.Fatal(err)
	}

	sets := map[string]string{
		"format":         "JPEG",
		"jpeg_quality":   "75",
		"cursor":         "true",
		"screenshot_dir": "~/shots",
		"window_backend": "sway",
	}
	for k, v := range sets {
		if err := m.Set(k, v); err != nil {
			t.Fatalf("Set(%s): %v", k, err)
		}
	}
	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := NewManager(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	cfg := reloaded.Get()
	if cfg.Format != "jpg" || cfg.JPEGQuality != 75 || !cfg.Cursor ||
		cfg.ScreenshotDir != "~/shots" || cfg.WindowBackend != "sway" {
		t.Fatalf("unexpected config after reload: %+v", cfg)
	}
	if cfg.ServerPort != 8080 {
		t.Fatalf("untouched key lost its default: %d", cfg.ServerPort)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("notify: true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	m, err := NewManager(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg := m.Get()
	if !cfg.Notify || cfg.Format != "png" || cfg.JPEGQuality != 90 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestInvalidFileRejected(t *testing.T) {
	tests := map[string]string{
		"bad yaml":    "format: [png\n",
		"bad format":  "format: gif\n",
		"bad quality": "jpeg_quality: 150\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := NewManager(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSetValidation(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		key, value string
		wantErr    bool
	}{
		{"log_level", "debug", false},
		{"log_level", "verbose", true},
		{"server_port", "9090", false},
		{"server_port", "70000", true},
		{"server_port", "abc", true},
		{"server_host", "0.0.0.0", false},
		{"server_host", "::1", false},
		{"server_host", "localhost", false},
		{"server_host", "", true},
		{"server_host", "http://evil", true},
		{"cursor", "maybe", true},
		{"label_position", "top-left", false},
		{"label_position", "middle", true},
		{"window_backend", "kwin", true},
		{"no_such_key", "x", true},
	}
	for _, tt := range tests {
		err := m.Set(tt.key, tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("Set(%s, %s) error = %v, wantErr %v", tt.key, tt.value, err, tt.wantErr)
		}
	}
	if v, _ := m.Value("server_port"); v != 9090 {
		t.Fatalf("server_port = %v", v)
	}
}

func TestValueUnknownKey(t *testing.T) {
	m, _ := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	_, err := m.Value("virtual_display.width")
	if err == nil || !strings.Contains(err.Error(), "known keys") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestResolveAppliesChangedFlagsOnly(t *testing.T) {
	m, _ := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err := m.Set("format", "bmp"); err != nil {
		t.Fatal(err)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("format", "png", "")
	flags.Bool("cursor", false, "")
	if err := flags.Parse([]string{"--cursor"}); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	v.BindPFlag("format", flags.Lookup("format"))
	v.BindPFlag("cursor", flags.Lookup("cursor"))

	cfg, err := m.Resolve(v)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Format != "bmp" {
		t.Fatalf("unchanged flag overrode file value: %s", cfg.Format)
	}
	if !cfg.Cursor {
		t.Fatal("changed flag was not applied")
	}
}

func TestKeysSorted(t *testing.T) {
	keys := Keys()
	if len(keys) != len(fields) {
		t.Fatalf("got %d keys", len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("keys not sorted: %v", keys)
		}
	}
}
