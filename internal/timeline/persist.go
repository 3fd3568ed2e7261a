package timeline

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"nestling/internal/model"
)

// SchemaVersion is the version of the snapshot layout written by Save:
// a JSON array of {"tweet": {...}, "unread": bool} with unsigned ids.
const SchemaVersion = 1

// DefaultFileName carries the schema version so that a layout change never
// reads an older file by accident.
var DefaultFileName = fmt.Sprintf("home_timeline.v%d.json", SchemaVersion)

// Save writes entries to path as JSON. The file is written next to the target
// and renamed over it, so a crash mid-write leaves the previous file intact.
func Save(path string, entries []model.Entry) error {
	if entries == nil {
		entries = []model.Entry{}
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	if err = json.NewEncoder(w).Encode(entries); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err = w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot written by Save. A missing file is the first-run case
// and yields an empty timeline. Any other failure is a *model.PersistenceError.
func Load(path string) ([]model.Entry, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.Entry{}, nil
	}
	if err != nil {
		return nil, &model.PersistenceError{Path: path, Err: err}
	}
	entries := []model.Entry{}
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, &model.PersistenceError{Path: path, Err: err}
	}
	if entries == nil {
		entries = []model.Entry{}
	}
	return entries, nil
}
