// Package dedup rebuilds the set of already captured listings from the
// append-only log and answers membership questions for the current run.
package dedup

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/user/listing-harvester/pkg/utils"
)

// Store is an in-memory fingerprint set. MarkSeen has no durable effect;
// durability comes from the append log write that precedes it.
type Store struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// LoadStats describes one pass over the log.
type LoadStats struct {
	Lines     int
	Malformed int
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{seen: make(map[string]struct{})}
}

// Load reads the log at path. A missing file yields an empty store.
func Load(path string) (*Store, LoadStats, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewStore(), LoadStats{}, nil
	}
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("dedup: open %q: %w", path, err)
	}
	defer f.Close()

	s, stats, err := LoadFrom(f)
	if err != nil {
		return nil, stats, fmt.Errorf("dedup: read %q: %w", path, err)
	}
	return s, stats, nil
}

// LoadFrom reads JSON lines from r. Lines that do not decode or carry no
// identifier are counted as malformed and skipped.
func LoadFrom(r io.Reader) (*Store, LoadStats, error) {
	s := NewStore()
	var stats LoadStats

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			stats.Lines++
			if fp, ok := fingerprintOf(line); ok {
				s.seen[fp] = struct{}{}
			} else {
				stats.Malformed++
			}
		}
		if errors.Is(err, io.EOF) {
			return s, stats, nil
		}
		if err != nil {
			return s, stats, err
		}
	}
}

// logLine covers current records and lines written before the format had a
// fingerprint field ("Link").
type logLine struct {
	Fingerprint string `json:"fingerprint"`
	URL         string `json:"url"`
	Link        string `json:"Link"`
}

func fingerprintOf(line []byte) (string, bool) {
	var l logLine
	if err := json.Unmarshal(line, &l); err != nil {
		return "", false
	}
	if l.Fingerprint != "" {
		return l.Fingerprint, true
	}
	raw := l.URL
	if raw == "" {
		raw = l.Link
	}
	if raw == "" {
		return "", false
	}
	canonical, err := utils.CanonicalURL(nil, raw)
	if err != nil {
		return "", false
	}
	return utils.HashURL(canonical), true
}

func (s *Store) Contains(fingerprint string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[fingerprint]
	return ok
}

// MarkSeen returns true if the fingerprint was newly added.
func (s *Store) MarkSeen(fingerprint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[fingerprint]; ok {
		return false
	}
	s.seen[fingerprint] = struct{}{}
	return true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
