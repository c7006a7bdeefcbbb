package downloads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// JSONFile keeps counts in a {"filename": count} JSON document on disk.
type JSONFile struct {
	Path string
}

func (f JSONFile) Load(_ context.Context) (map[string]int64, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]int64), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}

	counts := make(map[string]int64)
	if len(data) == 0 {
		return counts, nil
	}
	if err := json.Unmarshal(data, &counts); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Path, err)
	}
	return counts, nil
}

// Save replaces the file atomically via a temp file in the same directory.
func (f JSONFile) Save(_ context.Context, counts map[string]int64) error {
	data, err := json.MarshalIndent(counts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode download counts: %w", err)
	}

	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, ".downloads-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write counts: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write counts: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", f.Path, err)
	}
	return nil
}
