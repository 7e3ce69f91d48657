package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/waycap/internal/logger"
)

// Config is the persisted configuration
type Config struct {
	LogLevel      string `json:"log_level" yaml:"log_level"`
	ScreenshotDir string `json:"screenshot_dir" yaml:"screenshot_dir"`
	Format        string `json:"format" yaml:"format"`
	JPEGQuality   int    `json:"jpeg_quality" yaml:"jpeg_quality"`
	Cursor        bool   `json:"cursor" yaml:"cursor"`
	Notify        bool   `json:"notify" yaml:"notify"`
	WindowBackend string `json:"window_backend" yaml:"window_backend"`
	LabelPosition string `json:"label_position" yaml:"label_position"`
	ServerHost    string `json:"server_host" yaml:"server_host"`
	ServerPort    int    `json:"server_port" yaml:"server_port"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		LogLevel:      "warn",
		Format:        "png",
		JPEGQuality:   90,
		WindowBackend: "auto",
		LabelPosition: "bottom-right",
		ServerHost:    "127.0.0.1",
		ServerPort:    8080,
	}
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/waycap/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "waycap", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when it is empty. A
// missing file yields the defaults; it is only created by Save.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	m := &Manager{configPath: path}
	if err := m.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Debug().
			Str("path", m.configPath).
			Msg("Config file not found, using defaults")
		m.config = Defaults()
		return m, nil
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config loaded")
	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	// Keys missing from the file keep their defaults.
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg := *m.config
	return &cfg
}

// Path returns the path to the config file
func (m *Manager) Path() string {
	return m.configPath
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := yaml.Marshal(m.config)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// Value returns the value stored under key.
func (m *Manager) Value(key string) (interface{}, error) {
	f, err := lookup(key)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return f.get(m.config), nil
}

// Set parses value for key and stores it. It does not save.
func (m *Manager) Set(key, value string) error {
	f, err := lookup(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return f.set(m.config, value)
}

// Resolve returns the configuration with every key that v has explicitly
// set (a changed flag or an environment variable) applied on top of the
// file values.
func (m *Manager) Resolve(v *viper.Viper) (*Config, error) {
	cfg := m.Get()
	for _, f := range fields {
		if !v.IsSet(f.key) {
			continue
		}
		if err := f.set(cfg, v.GetString(f.key)); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
