package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/bryanchriswhite/fremkalder/internal/logger"
	"github.com/bryanchriswhite/fremkalder/internal/surface"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks a configuration value that fails validation.
var ErrInvalid = errors.New("invalid configuration")

// ErrUnknownKey is returned by Set for keys the config does not define.
var ErrUnknownKey = errors.New("unknown configuration key")

var logLevels = []string{"debug", "info", "warn", "error"}

// Manager loads, validates and persists the YAML config file.
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/fremkalder/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "fremkalder", "config.yaml"), nil
}

// NewManager reads configFile (or the default path when empty), creating it
// with defaults if it does not exist.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	m := &Manager{configPath: path}
	log := logger.WithComponent("config")

	if err := m.load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Info().Str("path", path).Msg("Config file not found, creating new config")
		m.config = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	log.Info().
		Str("path", path).
		Int("sources", len(m.config.Sources)).
		Msg("Config loaded")
	return m, nil
}

// load reads the file over a copy of the defaults, so keys missing from the
// file keep their default values.
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Sources == nil {
		cfg.Sources = []SourceConfig{}
	}
	if err := Validate(cfg); err != nil {
		return err
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Validate checks value ranges the rest of the program relies on.
func Validate(cfg *Config) error {
	switch {
	case cfg.ServerPort < 0 || cfg.ServerPort > 65535:
		return fmt.Errorf("%w: server_port %d out of range", ErrInvalid, cfg.ServerPort)
	case !slices.Contains(logLevels, cfg.LogLevel):
		return fmt.Errorf("%w: log_level %q (use: debug, info, warn, error)", ErrInvalid, cfg.LogLevel)
	case cfg.Output.Width < 1 || cfg.Output.Height < 1:
		return fmt.Errorf("%w: output size %dx%d", ErrInvalid, cfg.Output.Width, cfg.Output.Height)
	case cfg.Output.FPS < 1:
		return fmt.Errorf("%w: output.fps must be at least 1", ErrInvalid)
	case cfg.Preview.Width < 1 || cfg.Preview.Height < 1:
		return fmt.Errorf("%w: preview size %dx%d", ErrInvalid, cfg.Preview.Width, cfg.Preview.Height)
	case cfg.Mapping.Segments < 1 || cfg.Mapping.Segments > surface.MaxSubdivisions:
		return fmt.Errorf("%w: mapping.segments must be between 1 and %d", ErrInvalid, surface.MaxSubdivisions)
	case cfg.MJPEG.Quality < 1 || cfg.MJPEG.Quality > 100:
		return fmt.Errorf("%w: mjpeg.quality %d out of range", ErrInvalid, cfg.MJPEG.Quality)
	case cfg.Broadcast.PixelFormat != "rgba" && cfg.Broadcast.PixelFormat != "rgba64le":
		return fmt.Errorf("%w: broadcast.pixel_format %q (use: rgba, rgba64le)", ErrInvalid, cfg.Broadcast.PixelFormat)
	}

	seen := map[int]bool{}
	for i, src := range cfg.Sources {
		if src.Quadrant < 0 || src.Quadrant > 3 {
			return fmt.Errorf("%w: sources[%d].quadrant %d out of range", ErrInvalid, i, src.Quadrant)
		}
		if seen[src.Quadrant] {
			return fmt.Errorf("%w: quadrant %d bound twice", ErrInvalid, src.Quadrant)
		}
		seen[src.Quadrant] = true
		switch src.Kind {
		case SourceImage:
			if src.Path == "" {
				return fmt.Errorf("%w: sources[%d] image source needs a path", ErrInvalid, i)
			}
		case SourceX11:
			if src.Width < 1 || src.Height < 1 {
				return fmt.Errorf("%w: sources[%d] x11 source needs a region", ErrInvalid, i)
			}
		default:
			return fmt.Errorf("%w: sources[%d].kind %q", ErrInvalid, i, src.Kind)
		}
	}
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	cfg := *m.config
	cfg.Sources = slices.Clone(m.config.Sources)
	return &cfg
}

// Save writes the current configuration to disk.
func (m *Manager) Save() error {
	cfg := m.Get()
	log := logger.WithComponent("config")

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		log.Error().Err(err).Str("path", m.configPath).Msg("Failed to write config")
		return err
	}

	log.Debug().Str("path", m.configPath).Msg("Config saved")
	return nil
}

// Update replaces the whole configuration after validating it.
func (m *Manager) Update(cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// GetViper exposes the current configuration as a viper instance so that
// values can be addressed by dotted keys such as "broadcast.udp_port".
func (m *Manager) GetViper() (*viper.Viper, error) {
	data, err := yaml.Marshal(m.Get())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return v, nil
}

// Lookup returns the value stored under a dotted key.
func (m *Manager) Lookup(key string) (any, error) {
	v, err := m.GetViper()
	if err != nil {
		return nil, err
	}
	if !v.IsSet(key) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return v.Get(key), nil
}

// Set assigns a dotted key, converting value to the field's type, then
// validates and saves. String values such as "9090" or "true" are accepted
// for numeric and boolean fields.
func (m *Manager) Set(key string, value any) error {
	v, err := m.GetViper()
	if err != nil {
		return err
	}
	if !v.IsSet(key) {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	v.Set(key, value)

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	if cfg.Sources == nil {
		cfg.Sources = []SourceConfig{}
	}
	return m.Update(cfg)
}

// SetPort sets the server port.
func (m *Manager) SetPort(port int) error {
	return m.Set("server_port", port)
}

// GetPort returns the server port.
func (m *Manager) GetPort() int {
	return m.Get().ServerPort
}

// SetLogLevel sets the log level.
func (m *Manager) SetLogLevel(level string) error {
	return m.Set("log_level", level)
}

// GetLogLevel returns the log level.
func (m *Manager) GetLogLevel() string {
	return m.Get().LogLevel
}

// GetConfigPath returns the path of the config file.
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
