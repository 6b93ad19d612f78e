// Package memory holds process-local repository implementations used when no
// external store is configured.
package memory

import (
	"context"
	"sync"

	"github.com/user/listing-harvester/internal/entity"
	"github.com/user/listing-harvester/internal/repository"
)

// RunStatusRepoImpl keeps run records for the lifetime of the process.
type RunStatusRepoImpl struct {
	mu     sync.RWMutex
	runs   map[string]entity.RunStatus
	latest string
}

func NewRunStatusRepo() *RunStatusRepoImpl {
	return &RunStatusRepoImpl{runs: make(map[string]entity.RunStatus)}
}

func (r *RunStatusRepoImpl) Save(_ context.Context, status *entity.RunStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *status
	if status.FinishedAt != nil {
		t := *status.FinishedAt
		cp.FinishedAt = &t
	}
	r.runs[cp.ID] = cp

	if cur, ok := r.runs[r.latest]; !ok || !cp.StartedAt.Before(cur.StartedAt) {
		r.latest = cp.ID
	}
	return nil
}

func (r *RunStatusRepoImpl) FindByID(_ context.Context, id string) (*entity.RunStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status, ok := r.runs[id]
	if !ok {
		return nil, repository.ErrRunNotFound
	}
	return &status, nil
}

func (r *RunStatusRepoImpl) Latest(ctx context.Context) (*entity.RunStatus, error) {
	r.mu.RLock()
	id := r.latest
	r.mu.RUnlock()
	if id == "" {
		return nil, repository.ErrRunNotFound
	}
	return r.FindByID(ctx, id)
}
