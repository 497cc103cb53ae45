// Package config loads the runtime configuration and provides the
// namespaced store modules keep their own settings in.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// BOTCORE_CLIENT_URL or BOTCORE_SHUTDOWN_TIMEOUT.
const EnvPrefix = "BOTCORE_"

// Client transports.
const (
	TransportSocketIO  = "socketio"
	TransportWebSocket = "websocket"
	TransportLocal     = "local"
)

// Store drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Console modes.
const (
	ConsoleAuto = "auto"
	ConsoleTUI  = "tui"
	ConsoleLine = "line"
)

// Config is the runtime configuration.
type Config struct {
	Client          Client        `toml:"client" yaml:"client" envPrefix:"CLIENT_"`
	Log             Log           `toml:"log" yaml:"log" envPrefix:"LOG_"`
	Storage         Storage       `toml:"storage" yaml:"storage" envPrefix:"STORAGE_"`
	Modules         Modules       `toml:"modules" yaml:"modules" envPrefix:"MODULES_"`
	Console         Console       `toml:"console" yaml:"console" envPrefix:"CONSOLE_"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// Client configures the connection to the remote event source.
type Client struct {
	Transport          string        `toml:"transport" yaml:"transport" env:"TRANSPORT"`
	URL                string        `toml:"url" yaml:"url" env:"URL"`
	Namespace          string        `toml:"namespace" yaml:"namespace" env:"NAMESPACE"`
	Token              string        `toml:"token" yaml:"token" env:"TOKEN"`
	InsecureSkipVerify bool          `toml:"insecure_skip_verify" yaml:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`
	ConnectTimeout     time.Duration `toml:"connect_timeout" yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

// Log configures the root logger.
type Log struct {
	Level  string `toml:"level" yaml:"level" env:"LEVEL"`
	Format string `toml:"format" yaml:"format" env:"FORMAT"`
	// File redirects log output so an interactive console keeps the terminal.
	File string `toml:"file" yaml:"file" env:"FILE"`
}

// Storage selects the backend of the module config store.
type Storage struct {
	Driver string `toml:"driver" yaml:"driver" env:"DRIVER"`
	// Path is a directory for the file driver and a database file for sqlite.
	Path string `toml:"path" yaml:"path" env:"PATH"`
	// Format is the default file extension of the file driver.
	Format string `toml:"format" yaml:"format" env:"FORMAT"`
}

// Modules controls which catalog entries autoload.
type Modules struct {
	Disabled []string `toml:"disabled" yaml:"disabled" env:"DISABLED" envSeparator:","`
}

// Console configures the interactive command surface.
type Console struct {
	Mode   string `toml:"mode" yaml:"mode" env:"MODE"`
	Prompt string `toml:"prompt" yaml:"prompt" env:"PROMPT"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Client: Client{
			Transport:      TransportSocketIO,
			URL:            "http://localhost:3000",
			Namespace:      "/",
			ConnectTimeout: 10 * time.Second,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Storage: Storage{
			Driver: DriverFile,
			Path:   "configs",
			Format: FormatJSON,
		},
		Console: Console{
			Mode:   ConsoleAuto,
			Prompt: "> ",
		},
		ShutdownTimeout: 30 * time.Second,
	}
}

// Load reads path (TOML or YAML by extension; empty means defaults only)
// and applies BOTCORE_* environment overrides on top.
func Load(path string) (*Config, error) {
	return load(path, env.Options{Prefix: EnvPrefix})
}

func load(path string, opts env.Options) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decodeFile(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	case ".toml", "":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown keys: %v", undecoded)
		}
		return nil
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

// Validate checks the values that cannot be fixed up silently.
func (c *Config) Validate() error {
	switch c.Client.Transport {
	case TransportSocketIO, TransportWebSocket, TransportLocal:
	default:
		return fmt.Errorf("invalid client transport %q: must be one of socketio, websocket, local", c.Client.Transport)
	}
	if c.Client.Transport != TransportLocal && c.Client.URL == "" {
		return fmt.Errorf("client url is required for transport %s", c.Client.Transport)
	}

	switch c.Storage.Driver {
	case DriverFile, DriverSQLite:
	default:
		return fmt.Errorf("invalid storage driver %q: must be file or sqlite", c.Storage.Driver)
	}
	if c.Storage.Driver == DriverFile {
		if _, err := codecFor(c.Storage.Format); err != nil {
			return err
		}
	}

	switch c.Console.Mode {
	case ConsoleAuto, ConsoleTUI, ConsoleLine:
	default:
		return fmt.Errorf("invalid console mode %q: must be one of auto, tui, line", c.Console.Mode)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}

// IsDisabled reports whether the named module must not autoload.
func (c *Config) IsDisabled(name string) bool {
	return slices.Contains(c.Modules.Disabled, name)
}
