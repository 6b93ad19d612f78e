// Package filestate keeps small pieces of run state in JSON files under the data directory.
package filestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

type securitySkipFile struct {
	Hits map[string]int `json:"hits"`
}

// SecuritySkipImpl stores checkpoint hit counts in a JSON file.
// A missing or unreadable file is treated as empty state.
type SecuritySkipImpl struct {
	mu     sync.Mutex
	path   string
	hits   map[string]int
	logger *zap.Logger
}

// NewSecuritySkipRepo loads the state at path.
func NewSecuritySkipRepo(path string, logger *zap.Logger) *SecuritySkipImpl {
	r := &SecuritySkipImpl{path: path, hits: make(map[string]int), logger: logger}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return r
	case err != nil:
		logger.Warn("could not read security skip state, starting empty", zap.String("path", path), zap.Error(err))
		return r
	}

	var state securitySkipFile
	if err := json.Unmarshal(data, &state); err != nil {
		logger.Warn("security skip state is corrupt, starting empty", zap.String("path", path), zap.Error(err))
		return r
	}
	for k, v := range state.Hits {
		r.hits[k] = v
	}
	return r
}

func (r *SecuritySkipImpl) Hits(ctx context.Context, fingerprint string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[fingerprint], nil
}

// RecordHit bumps the counter and rewrites the file through a temp file + rename.
func (r *SecuritySkipImpl) RecordHit(ctx context.Context, fingerprint string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hits[fingerprint]++
	n := r.hits[fingerprint]
	if err := r.flush(); err != nil {
		return n, err
	}
	return n, nil
}

// Clear drops the counter for fingerprint. The file is only rewritten when
// there was something to drop.
func (r *SecuritySkipImpl) Clear(ctx context.Context, fingerprint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.hits[fingerprint]; !ok {
		return nil
	}
	delete(r.hits, fingerprint)
	return r.flush()
}

func (r *SecuritySkipImpl) flush() error {
	data, err := json.Marshal(securitySkipFile{Hits: r.hits})
	if err != nil {
		return fmt.Errorf("filestate: encode security skip state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("filestate: create state dir: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("filestate: write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("filestate: replace %q: %w", r.path, err)
	}
	return nil
}
