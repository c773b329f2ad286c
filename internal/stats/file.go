package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultFileName is used when the file backend has no path configured.
const DefaultFileName = "scan_stats.json"

type fileState struct {
	ScanCount int64    `json:"scan_count"`
	LastScans []string `json:"last_scans"`
}

// FileStore persists counters as a small JSON document. Every increment
// rewrites the document through a temp file and rename.
type FileStore struct {
	mu   sync.Mutex
	path string
	keep int
}

// OpenFileStore returns a FileStore at path, validating any existing content.
func OpenFileStore(path string, keep int) (*FileStore, error) {
	if path == "" {
		path = DefaultFileName
	}
	if keep <= 0 {
		keep = DefaultKeep
	}
	s := &FileStore{path: path, keep: keep}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) load() (fileState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileState{LastScans: []string{}}, nil
	}
	if err != nil {
		return fileState{}, fmt.Errorf("read stats file: %w", err)
	}
	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		return fileState{}, fmt.Errorf("parse stats file %s: %w", s.path, err)
	}
	if st.LastScans == nil {
		st.LastScans = []string{}
	}
	return st, nil
}

func (s *FileStore) save(st fileState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create stats directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".scan_stats-*.json")
	if err != nil {
		return fmt.Errorf("create temp stats file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp stats file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileStore) Increment(_ context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}
	st.ScanCount++
	st.LastScans = append(st.LastScans, formatTimestamp(at))
	if len(st.LastScans) > s.keep {
		st.LastScans = st.LastScans[len(st.LastScans)-s.keep:]
	}
	return s.save(st)
}

func (s *FileStore) RecentTimestamps(_ context.Context, n int) ([]time.Time, error) {
	s.mu.Lock()
	st, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]time.Time, 0, len(st.LastScans))
	for _, raw := range st.LastScans {
		ts, err := parseTimestamp(raw)
		if err != nil {
			continue
		}
		out = append(out, ts)
	}
	return tail(out, n), nil
}

func (s *FileStore) Total(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return 0, err
	}
	return st.ScanCount, nil
}

func (s *FileStore) Close() error { return nil }
