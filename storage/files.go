package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileStore persists records as one JSON file each, named
// {kind}_{id}_{unixTimestamp}.json. Records are immutable once written.
type FileStore struct {
	dir string
}

// NewFileStore creates the target directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes one record and returns the file path
func (fs *FileStore) Save(kind, id string, record any) (string, error) {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s record: %w", kind, err)
	}

	name := fmt.Sprintf("%s_%s_%d.json", kind, id, time.Now().Unix())
	path := filepath.Join(fs.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s record: %w", kind, err)
	}
	return path, nil
}

// Load reads the most recent record of the given kind and id into out
func (fs *FileStore) Load(kind, id string, out any) error {
	matches, err := filepath.Glob(filepath.Join(fs.dir, fmt.Sprintf("%s_%s_*.json", kind, id)))
	if err != nil {
		return fmt.Errorf("failed to list %s records: %w", kind, err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("no %s record found for %s", kind, id)
	}
	sort.Strings(matches)
	data, err := os.ReadFile(matches[len(matches)-1])
	if err != nil {
		return fmt.Errorf("failed to read %s record: %w", kind, err)
	}
	return json.Unmarshal(data, out)
}

// List returns the ids of all persisted records of one kind, oldest first
func (fs *FileStore) List(kind string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(fs.dir, kind+"_*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", kind, err)
	}
	sort.Strings(matches)

	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		base := strings.TrimSuffix(filepath.Base(match), ".json")
		parts := strings.Split(base, "_")
		if len(parts) < 3 {
			continue
		}
		// id may itself contain underscores; the kind prefix and the
		// timestamp suffix are single segments
		id := strings.Join(parts[1:len(parts)-1], "_")
		ids = append(ids, id)
	}
	return ids, nil
}
