package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// FSConfig captures the parameters for the filesystem-backed run store.
type FSConfig struct {
	// Dir is the directory where run files are written.
	Dir string `mapstructure:"results_dir" yaml:"results_dir"`
}

// FSStore keeps run history as one JSON file per run, named
// run_<timestamp>_<id>.json.
type FSStore struct {
	dir    string
	logger *zap.Logger
}

// NewFSStore creates a filesystem-backed run store, creating the directory
// if needed.
func NewFSStore(cfg FSConfig, logger *zap.Logger) (*FSStore, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("results directory is required")
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat results directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.Dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create results directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("results path is not a directory")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FSStore{dir: cfg.Dir, logger: logger}, nil
}

func (s *FSStore) filename(run RunRecord) string {
	return fmt.Sprintf("run_%s_%s.json", run.Timestamp.UTC().Format("20060102_150405"), run.ID)
}

// Save writes the run to disk and returns the filename.
func (s *FSStore) Save(_ context.Context, run RunRecord) (string, error) {
	if run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal run: %w", err)
	}
	name := s.filename(run)
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o600); err != nil {
		return "", fmt.Errorf("write run file: %w", err)
	}
	return name, nil
}

// List loads up to limit runs from disk, most recent first. Unreadable files
// are logged and skipped rather than failing the whole listing.
func (s *FSStore) List(_ context.Context, limit int) ([]RunRecord, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "run_*.json"))
	if err != nil {
		return nil, fmt.Errorf("list run files: %w", err)
	}
	runs := make([]RunRecord, 0, len(paths))
	for _, path := range paths {
		run, err := s.readFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable run file", zap.String("path", path), zap.Error(err))
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Get returns one run by id.
func (s *FSStore) Get(_ context.Context, id string) (RunRecord, error) {
	path, err := s.pathFor(id)
	if err != nil {
		return RunRecord{}, err
	}
	return s.readFile(path)
}

// Delete removes one run by id.
func (s *FSStore) Delete(_ context.Context, id string) error {
	path, err := s.pathFor(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete run file: %w", err)
	}
	return nil
}

func (s *FSStore) pathFor(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("run id is required")
	}
	paths, err := filepath.Glob(filepath.Join(s.dir, "run_*_"+id+".json"))
	if err != nil {
		return "", fmt.Errorf("list run files: %w", err)
	}
	if len(paths) == 0 {
		return "", ErrNotFound
	}
	return paths[0], nil
}

func (s *FSStore) readFile(path string) (RunRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RunRecord{}, fmt.Errorf("read run file: %w", err)
	}
	var run RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return RunRecord{}, fmt.Errorf("decode run file: %w", err)
	}
	return run, nil
}
