package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInputUnreadable aborts a batch: the input directory is missing or cannot be listed.
var ErrInputUnreadable = errors.New("input directory unreadable")

// Store is a directory holding one JSON document per record.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: filepath.Clean(dir)}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Ensure() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", s.dir, err)
	}
	return nil
}

// List returns the record file names in the directory, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInputUnreadable, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".json") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) path(name string) (string, error) {
	if name == "" || filepath.Base(name) != name || name == ".." {
		return "", ValidationError{reason: fmt.Errorf("invalid record file name %q", name)}
	}
	return filepath.Join(s.dir, name), nil
}

func Read[L any](s *Store, name string) (Document[L], error) {
	path, err := s.path(name)
	if err != nil {
		return Document[L]{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Document[L]{}, fmt.Errorf("read %s: %w", name, err)
	}
	return Decode[L](data)
}

// Write replaces the named document atomically.
func Write[L any](s *Store, name string, doc Document[L]) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	data, err := Encode(doc)
	if err != nil {
		return err
	}
	if err := s.Ensure(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Remove deletes the named document. A missing document is not an error.
func Remove(s *Store, name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// Encode renders a document in the on-disk format: two-space indent, no HTML escaping.
func Encode[L any](doc Document[L]) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode record %s: %w", doc.ID, err)
	}
	return buf.Bytes(), nil
}

func Decode[L any](data []byte) (Document[L], error) {
	var doc Document[L]
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document[L]{}, ValidationError{reason: fmt.Errorf("decode record: %w", err)}
	}
	if err := Validate(doc); err != nil {
		return Document[L]{}, err
	}
	return doc, nil
}
