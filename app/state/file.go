package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps watermarks in a JSON object mapping source keys to
// ISO-8601 timestamps. The file is not locked; one writer is assumed.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) String() string {
	return "file:" + s.path
}

func (s *FileStore) Load(ctx context.Context) (Watermarks, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Watermarks{}, nil
	}
	if err != nil {
		return Watermarks{}, fmt.Errorf("failed to read state file: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Watermarks{}, &CorruptError{Location: s.path, Err: err}
	}

	values := make(map[string]string, len(raw))
	var errs []error
	for key, msg := range raw {
		var value string
		if err := json.Unmarshal(msg, &value); err != nil {
			errs = append(errs, &CorruptError{Location: s.path, Key: key, Err: err})
			continue
		}
		values[key] = value
	}

	marks, err := parseEntries(s.path, values)
	return marks, errors.Join(append(errs, err)...)
}

// Save replaces the file atomically: the new content is written to a temp
// file in the same directory and renamed over the old one.
func (s *FileStore) Save(ctx context.Context, marks Watermarks) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	payload := make(map[string]string, len(marks))
	for key, t := range marks {
		payload[key] = formatTimestamp(t)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}

func (s *FileStore) Close() error {
	return nil
}
