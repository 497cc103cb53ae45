package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadWith(t *testing.T, path string, environ map[string]string) (*Config, error) {
	t.Helper()
	if environ == nil {
		environ = map[string]string{}
	}
	return load(path, env.Options{Prefix: EnvPrefix, Environment: environ})
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadWith(t, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %s, want 30s", cfg.ShutdownTimeout)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "botcore.toml", `
shutdown_timeout = "5s"

[client]
transport = "websocket"
url = "ws://bot.local:8080/ws"
token = "secret"

[modules]
disabled = ["combat"]
`)
	cfg, err := loadWith(t, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %s, want 5s", cfg.ShutdownTimeout)
	}
	if cfg.Client.Transport != TransportWebSocket || cfg.Client.URL != "ws://bot.local:8080/ws" {
		t.Errorf("Client = %+v", cfg.Client)
	}
	if !cfg.IsDisabled("combat") || cfg.IsDisabled("notify") {
		t.Errorf("Disabled = %v", cfg.Modules.Disabled)
	}
	// Untouched sections keep their defaults.
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "botcore.yaml", `
shutdown_timeout: 45s
client:
  transport: local
log:
  level: debug
  format: json
storage:
  driver: sqlite
  path: data/botcore.db
`)
	cfg, err := loadWith(t, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ShutdownTimeout != 45*time.Second {
		t.Errorf("ShutdownTimeout = %s, want 45s", cfg.ShutdownTimeout)
	}
	if cfg.Client.Transport != TransportLocal {
		t.Errorf("Transport = %q, want local", cfg.Client.Transport)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Storage.Driver != DriverSQLite || cfg.Storage.Path != "data/botcore.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "botcore.toml", `
[client]
url = "http://file:3000"
`)
	cfg, err := loadWith(t, path, map[string]string{
		"BOTCORE_CLIENT_URL":                  "http://env:3000",
		"BOTCORE_SHUTDOWN_TIMEOUT":            "2s",
		"BOTCORE_MODULES_DISABLED":            "combat,autoequip",
		"BOTCORE_LOG_LEVEL":                   "warn",
		"BOTCORE_CLIENT_TRANSPORT":            "socketio",
		"BOTCORE_CONSOLE_MODE":                "line",
		"UNRELATED_CLIENT_URL":                "http://ignored",
		"BOTCORE_CLIENT_NAMESPACE":            "/bot",
		"BOTCORE_STORAGE_FORMAT":              "yaml",
		"BOTCORE_CLIENT_INSECURE_SKIP_VERIFY": "true",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Client.URL != "http://env:3000" {
		t.Errorf("URL = %q, want env value", cfg.Client.URL)
	}
	if cfg.ShutdownTimeout != 2*time.Second {
		t.Errorf("ShutdownTimeout = %s, want 2s", cfg.ShutdownTimeout)
	}
	if diff := cmp.Diff([]string{"combat", "autoequip"}, cfg.Modules.Disabled); diff != "" {
		t.Errorf("Disabled mismatch (-want +got):\n%s", diff)
	}
	if cfg.Log.Level != "warn" || cfg.Console.Mode != ConsoleLine || cfg.Client.Namespace != "/bot" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Storage.Format != FormatYAML || !cfg.Client.InsecureSkipVerify {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		environ map[string]string
		wantErr string
	}{
		{"bad transport", "a.toml", "[client]\ntransport = \"carrier-pigeon\"\n", nil, "invalid client transport"},
		{"unknown key", "a.toml", "colour = \"red\"\n", nil, "unknown keys"},
		{"unknown yaml key", "a.yaml", "colour: red\n", nil, "colour"},
		{"bad format", "a.ini", "x=1\n", nil, "unsupported config format"},
		{"bad driver", "a.toml", "[storage]\ndriver = \"postgres\"\n", nil, "invalid storage driver"},
		{"bad store format", "a.toml", "[storage]\nformat = \"xml\"\n", nil, "unsupported store format"},
		{"bad console", "a.toml", "[console]\nmode = \"gui\"\n", nil, "invalid console mode"},
		{"zero timeout", "a.toml", "shutdown_timeout = \"0s\"\n", nil, "shutdown timeout"},
		{"bad env duration", "a.toml", "", map[string]string{"BOTCORE_SHUTDOWN_TIMEOUT": "soon"}, "parse env"},
		{"missing url", "a.toml", "[client]\nurl = \"\"\n", nil, "client url is required"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, tc.file, tc.content)
			_, err := loadWith(t, path, tc.environ)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := loadWith(t, filepath.Join(t.TempDir(), "nope.toml"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEmptyYAMLKeepsDefaults(t *testing.T) {
	path := writeFile(t, "empty.yml", "")
	cfg, err := loadWith(t, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %s, want default", cfg.ShutdownTimeout)
	}
}
