package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by Store.Read when nothing is stored under the key.
var ErrNotFound = errors.New("config not found")

// Store persists per-module settings. A namespace groups the entries of one
// module; writing to a namespace that does not exist creates it.
type Store interface {
	Read(ctx context.Context, namespace, name string, out any) error
	Write(ctx context.Context, namespace, name string, v any) error
	Close() error
}

// OpenStore opens the backend selected by cfg.
func OpenStore(cfg Storage) (Store, error) {
	switch cfg.Driver {
	case DriverFile, "":
		s, err := NewFileStore(cfg.Path, cfg.Format)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite:
		s, err := OpenSQLStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

// Codec formats understood by the file store.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

type codec struct {
	ext       string
	marshal   func(v any) ([]byte, error)
	unmarshal func(data []byte, out any) error
}

var codecs = map[string]codec{
	FormatJSON: {
		ext: ".json",
		marshal: func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "    ")
		},
		unmarshal: json.Unmarshal,
	},
	FormatYAML: {
		ext:       ".yaml",
		marshal:   yaml.Marshal,
		unmarshal: yaml.Unmarshal,
	},
	FormatTOML: {
		ext: ".toml",
		marshal: func(v any) ([]byte, error) {
			var buf bytes.Buffer
			if err := toml.NewEncoder(&buf).Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
		unmarshal: toml.Unmarshal,
	},
}

// codecFor resolves a format name or file extension.
func codecFor(format string) (codec, error) {
	f := strings.ToLower(strings.TrimPrefix(format, "."))
	switch f {
	case "":
		f = FormatJSON
	case "yml":
		f = FormatYAML
	}
	c, ok := codecs[f]
	if !ok {
		return codec{}, fmt.Errorf("unsupported store format %q: must be one of json, yaml, toml", format)
	}
	return c, nil
}

// validKey rejects names that would escape the store layout.
func validKey(namespace, name string) error {
	for _, part := range []string{namespace, name} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return fmt.Errorf("invalid store key %q/%q", namespace, name)
		}
	}
	return nil
}
