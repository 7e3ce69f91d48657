package config

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/bryanchriswhite/waycap/internal/encode"
	"github.com/bryanchriswhite/waycap/internal/overlay"
	"github.com/bryanchriswhite/waycap/internal/window"
)

type field struct {
	key string
	get func(*Config) interface{}
	set func(*Config, string) error
}

var fields = []field{
	{
		key: "log_level",
		get: func(c *Config) interface{} { return c.LogLevel },
		set: func(c *Config, v string) error {
			if err := validLogLevel(v); err != nil {
				return err
			}
			c.LogLevel = strings.ToLower(v)
			return nil
		},
	},
	{
		key: "screenshot_dir",
		get: func(c *Config) interface{} { return c.ScreenshotDir },
		set: func(c *Config, v string) error {
			c.ScreenshotDir = v
			return nil
		},
	},
	{
		key: "format",
		get: func(c *Config) interface{} { return c.Format },
		set: func(c *Config, v string) error {
			f, err := encode.ParseFormat(v)
			if err != nil {
				return err
			}
			c.Format = string(f)
			return nil
		},
	},
	{
		key: "jpeg_quality",
		get: func(c *Config) interface{} { return c.JPEGQuality },
		set: func(c *Config, v string) error {
			q, err := strconv.Atoi(v)
			if err != nil || q < 1 || q > 100 {
				return fmt.Errorf("invalid jpeg quality: %s (use 1-100)", v)
			}
			c.JPEGQuality = q
			return nil
		},
	},
	{
		key: "cursor",
		get: func(c *Config) interface{} { return c.Cursor },
		set: boolSetter(func(c *Config, b bool) { c.Cursor = b }),
	},
	{
		key: "notify",
		get: func(c *Config) interface{} { return c.Notify },
		set: boolSetter(func(c *Config, b bool) { c.Notify = b }),
	},
	{
		key: "window_backend",
		get: func(c *Config) interface{} { return c.WindowBackend },
		set: func(c *Config, v string) error {
			v = strings.ToLower(v)
			switch v {
			case window.BackendAuto, window.BackendSway, window.BackendHyprland, window.BackendX11:
				c.WindowBackend = v
				return nil
			}
			return fmt.Errorf("invalid window backend: %s (use: auto, sway, hyprland, x11)", v)
		},
	},
	{
		key: "label_position",
		get: func(c *Config) interface{} { return c.LabelPosition },
		set: func(c *Config, v string) error {
			a, err := overlay.ParseAnchor(v)
			if err != nil {
				return err
			}
			c.LabelPosition = string(a)
			return nil
		},
	},
	{
		key: "server_host",
		get: func(c *Config) interface{} { return c.ServerHost },
		set: func(c *Config, v string) error {
			if v == "" || (net.ParseIP(v) == nil && strings.ContainsAny(v, " /:")) {
				return fmt.Errorf("invalid server host: %q", v)
			}
			c.ServerHost = v
			return nil
		},
	},
	{
		key: "server_port",
		get: func(c *Config) interface{} { return c.ServerPort },
		set: func(c *Config, v string) error {
			port, err := strconv.Atoi(v)
			if err != nil || port < 1 || port > 65535 {
				return fmt.Errorf("invalid port number: %s", v)
			}
			c.ServerPort = port
			return nil
		},
	},
}

func boolSetter(apply func(*Config, bool)) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s (use: true or false)", v)
		}
		apply(c, b)
		return nil
	}
}

func validLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", level)
}

func lookup(key string) (field, error) {
	for _, f := range fields {
		if f.key == key {
			return f, nil
		}
	}
	return field{}, fmt.Errorf("configuration key not found: %s (known keys: %s)", key, strings.Join(Keys(), ", "))
}

// Keys lists the configuration keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.key)
	}
	sort.Strings(keys)
	return keys
}

// Validate re-parses every value through its setter.
func (c *Config) Validate() error {
	for _, f := range fields {
		v := fmt.Sprint(f.get(c))
		if v == "" {
			continue
		}
		check := *c
		if err := f.set(&check, v); err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
	}
	return nil
}
