package repository

import (
	"context"
	"errors"

	"github.com/user/listing-harvester/internal/entity"
)

var ErrRunNotFound = errors.New("run not found")

// RunStatusRepository stores the queryable outcome of each harvest run.
type RunStatusRepository interface {
	// Save creates or updates the record for status.ID.
	Save(ctx context.Context, status *entity.RunStatus) error
	// FindByID returns ErrRunNotFound when no run has that id.
	FindByID(ctx context.Context, id string) (*entity.RunStatus, error)
	// Latest returns the most recently started run, or ErrRunNotFound.
	Latest(ctx context.Context) (*entity.RunStatus, error)
}
