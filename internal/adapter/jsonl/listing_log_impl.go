package jsonl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/listing-harvester/internal/entity"
)

// ListingLogImpl appends ListingRecords to a JSON-lines file.
// Each record is written with a single write call on a file opened in append mode.
type ListingLogImpl struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewListingLog opens (or creates) the log at path for appending.
// Intermediate directories are created automatically.
func NewListingLog(path string) (*ListingLogImpl, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("jsonl: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("jsonl: open %q: %w", path, err)
	}
	return &ListingLogImpl{path: path, file: f}, nil
}

// Append writes one record as a single line.
func (l *ListingLogImpl) Append(ctx context.Context, record entity.ListingRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.Version == 0 {
		record.Version = entity.RecordVersion
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(record); err != nil {
		return fmt.Errorf("jsonl: encode record %s: %w", record.URL, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return fmt.Errorf("jsonl: %s is closed", l.path)
	}
	if _, err := l.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("jsonl: append to %q: %w", l.path, err)
	}
	return nil
}

// Close closes the underlying file. Further appends fail.
func (l *ListingLogImpl) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
