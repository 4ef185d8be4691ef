// Package calibration saves and restores the offsets that calibration
// applies to tracked objects, so a robot keeps its calibration across
// restarts.
package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/banshee-data/deck.control/internal/db"
	"github.com/banshee-data/deck.control/internal/monitoring"
)

var logf = monitoring.Prefixed("calibration")

// Delta is a stored translation offset in mm.
type Delta struct {
	X, Y, Z float64
}

// Store persists deltas by key.
type Store interface {
	Load() (map[string]Delta, error)
	Save(key string, d Delta) error
}

// DBStore keeps deltas in the calibration database.
type DBStore struct {
	DB *db.DB
}

func (s DBStore) Load() (map[string]Delta, error) {
	rows, err := s.DB.Deltas()
	if err != nil {
		return nil, err
	}
	out := make(map[string]Delta, len(rows))
	for _, r := range rows {
		out[r.Key] = Delta{X: r.DX, Y: r.DY, Z: r.DZ}
	}
	return out, nil
}

func (s DBStore) Save(key string, d Delta) error {
	return s.DB.SaveDelta(key, d.X, d.Y, d.Z)
}

const fileVersion = 1

// fileDoc is the on-disk layout of a calibrations file:
// {"version": 1, "data": {"<key>": {"delta": [x, y, z]}}}.
type fileDoc struct {
	Version int                  `json:"version"`
	Data    map[string]fileEntry `json:"data"`
}

type fileEntry struct {
	Delta [3]float64 `json:"delta"`
}

// FileStore keeps deltas in a JSON file. A missing, unparsable or
// unversioned file is replaced by an empty one.
type FileStore struct {
	Path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: filepath.Clean(path)}
}

func (s *FileStore) Load() (map[string]Delta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make(map[string]Delta, len(doc.Data))
	for k, e := range doc.Data {
		out[k] = Delta{X: e.Delta[0], Y: e.Delta[1], Z: e.Delta[2]}
	}
	return out, nil
}

func (s *FileStore) Save(key string, d Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Data[key] = fileEntry{Delta: [3]float64{d.X, d.Y, d.Z}}
	return s.write(doc)
}

// Keys lists the stored keys, sorted.
func (s *FileStore) Keys() ([]string, error) {
	deltas, err := s.Load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(deltas))
	for k := range deltas {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStore) read() (fileDoc, error) {
	blank := fileDoc{Version: fileVersion, Data: map[string]fileEntry{}}

	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return blank, s.write(blank)
	}
	if err != nil {
		return fileDoc{}, fmt.Errorf("failed to read calibrations file: %w", err)
	}

	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil || doc.Version == 0 || doc.Data == nil {
		logf("calibrations file %s is invalid, starting blank (parse error: %v)", s.Path, err)
		return blank, s.write(blank)
	}
	return doc, nil
}

func (s *FileStore) write(doc fileDoc) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode calibrations: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write calibrations file: %w", err)
	}
	return nil
}
