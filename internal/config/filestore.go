package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one directory per namespace and one file per entry.
// A name with a .json, .yaml, .yml or .toml extension picks that codec;
// any other name gets the store's default format appended.
type FileStore struct {
	root  string
	codec codec
}

// NewFileStore returns a store rooted at dir. The directory is created on
// first write.
func NewFileStore(dir, format string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store needs a directory")
	}
	c, err := codecFor(format)
	if err != nil {
		return nil, err
	}
	return &FileStore{root: dir, codec: c}, nil
}

// Path returns the file that holds namespace/name.
func (s *FileStore) Path(namespace, name string) string {
	p, _ := s.resolve(namespace, name)
	return p
}

func (s *FileStore) resolve(namespace, name string) (string, codec) {
	if ext := filepath.Ext(name); ext != "" {
		if c, err := codecFor(ext); err == nil {
			return filepath.Join(s.root, namespace, name), c
		}
	}
	return filepath.Join(s.root, namespace, name+s.codec.ext), s.codec
}

// Read decodes namespace/name into out.
func (s *FileStore) Read(ctx context.Context, namespace, name string, out any) error {
	if err := validKey(namespace, name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path, c := s.resolve(namespace, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, namespace, name)
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := c.unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Write encodes v to namespace/name, replacing the previous file atomically.
func (s *FileStore) Write(ctx context.Context, namespace, name string, v any) error {
	if err := validKey(namespace, name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path, c := s.resolve(namespace, name)
	data, err := c.marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", namespace, name, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}
