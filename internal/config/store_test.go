package config

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"
)

type combatSettings struct {
	Range    int      `json:"range" yaml:"range" toml:"range"`
	Greeting string   `json:"greeting" yaml:"greeting" toml:"greeting"`
	Ignore   []string `json:"ignore" yaml:"ignore" toml:"ignore"`
}

var sampleSettings = combatSettings{Range: 16, Greeting: "hi", Ignore: []string{"alex", "steve"}}

func testStores(t *testing.T) map[string]Store {
	t.Helper()

	stores := make(map[string]Store)
	for _, format := range []string{FormatJSON, FormatYAML, FormatTOML} {
		fs, err := NewFileStore(t.TempDir(), format)
		if err != nil {
			t.Fatal(err)
		}
		stores["file-"+format] = fs
	}

	sqlStore, err := OpenSQLStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sqlStore.Close() })
	stores["sqlite"] = sqlStore
	return stores
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Write(ctx, "combat", "settings", sampleSettings); err != nil {
				t.Fatal(err)
			}
			var got combatSettings
			if err := s.Read(ctx, "combat", "settings", &got); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(sampleSettings, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}

			// Overwrite replaces the entry.
			updated := sampleSettings
			updated.Range = 4
			if err := s.Write(ctx, "combat", "settings", updated); err != nil {
				t.Fatal(err)
			}
			got = combatSettings{}
			if err := s.Read(ctx, "combat", "settings", &got); err != nil {
				t.Fatal(err)
			}
			if got.Range != 4 {
				t.Errorf("Range = %d after overwrite, want 4", got.Range)
			}
		})
	}
}

func TestStoreNotFound(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			var out combatSettings
			if err := s.Read(ctx, "nobody", "settings", &out); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Read() = %v, want ErrNotFound", err)
			}
			s.Write(ctx, "combat", "settings", sampleSettings)
			if err := s.Read(ctx, "combat", "other", &out); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Read() = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStoreInvalidKeys(t *testing.T) {
	ctx := context.Background()
	keys := [][2]string{
		{"", "settings"},
		{"combat", ""},
		{"..", "settings"},
		{"combat", "../escape"},
		{"a/b", "settings"},
	}
	for name, s := range testStores(t) {
		for _, k := range keys {
			if err := s.Write(ctx, k[0], k[1], sampleSettings); err == nil {
				t.Errorf("%s: Write(%q, %q) succeeded, want error", name, k[0], k[1])
			}
		}
	}
}

func TestFileStoreLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := s.Write(ctx, "notify", "settings", map[string]int{"history": 20}); err != nil {
		t.Fatal(err)
	}
	if got, want := s.Path("notify", "settings"), filepath.Join(dir, "notify", "settings.json"); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
	data, err := os.ReadFile(filepath.Join(dir, "notify", "settings.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"history": 20`) {
		t.Errorf("unexpected file content:\n%s", data)
	}

	// An explicit extension picks its own codec.
	if err := s.Write(ctx, "notify", "colors.yaml", map[string]string{"warn": "yellow"}); err != nil {
		t.Fatal(err)
	}
	data, err = os.ReadFile(filepath.Join(dir, "notify", "colors.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "warn: yellow" {
		t.Errorf("colors.yaml = %q", data)
	}

	entries, _ := os.ReadDir(filepath.Join(dir, "notify"))
	if len(entries) != 2 {
		t.Errorf("found %d files, temp files left behind?", len(entries))
	}
}

func TestFileStoreUnknownFormat(t *testing.T) {
	if _, err := NewFileStore(t.TempDir(), "xml"); err == nil {
		t.Fatal("expected error for xml")
	}
	if _, err := NewFileStore("", FormatJSON); err == nil {
		t.Fatal("expected error for empty directory")
	}
}

func TestSQLStoreMigrationsIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()

	ctx := context.Background()
	first, err := NewSQLStore(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Write(ctx, "combat", "settings", sampleSettings); err != nil {
		t.Fatal(err)
	}

	second, err := NewSQLStore(ctx, db)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var got combatSettings
	if err := second.Read(ctx, "combat", "settings", &got); err != nil {
		t.Fatal(err)
	}

	var applied int
	if err := db.QueryRow("SELECT COUNT(*) FROM botcore_migrations").Scan(&applied); err != nil {
		t.Fatal(err)
	}
	if applied != len(migrations) {
		t.Errorf("applied = %d, want %d", applied, len(migrations))
	}

	second.Write(ctx, "notify", "settings", map[string]int{"history": 5})
	ns, err := second.Namespaces(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"combat", "notify"}, ns); diff != "" {
		t.Errorf("Namespaces mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenStore(t *testing.T) {
	tests := []struct {
		cfg     Storage
		wantErr bool
	}{
		{Storage{Driver: DriverFile, Path: t.TempDir(), Format: FormatTOML}, false},
		{Storage{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "data", "botcore.db")}, false},
		{Storage{Driver: "redis"}, true},
	}
	for _, tc := range tests {
		s, err := OpenStore(tc.cfg)
		if (err != nil) != tc.wantErr {
			t.Errorf("OpenStore(%+v) err = %v, wantErr %v", tc.cfg, err, tc.wantErr)
			continue
		}
		if s != nil {
			s.Close()
		}
	}
}
