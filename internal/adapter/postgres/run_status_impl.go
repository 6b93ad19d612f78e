package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/listing-harvester/internal/entity"
	"github.com/user/listing-harvester/internal/repository"
)

const runStatusSchema = `
	CREATE TABLE IF NOT EXISTS harvest_runs (
		id                    TEXT PRIMARY KEY,
		state                 TEXT        NOT NULL,
		started_at            TIMESTAMPTZ NOT NULL,
		finished_at           TIMESTAMPTZ,
		error                 TEXT        NOT NULL DEFAULT '',
		regions               INT         NOT NULL DEFAULT 0,
		regions_skipped       INT         NOT NULL DEFAULT 0,
		discovered            INT         NOT NULL DEFAULT 0,
		known                 INT         NOT NULL DEFAULT 0,
		security_skipped      INT         NOT NULL DEFAULT 0,
		saved                 INT         NOT NULL DEFAULT 0,
		rejected_too_old      INT         NOT NULL DEFAULT 0,
		rejected_no_timestamp INT         NOT NULL DEFAULT 0,
		rejected_price        INT         NOT NULL DEFAULT 0,
		interstitials         INT         NOT NULL DEFAULT 0,
		failures              INT         NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_harvest_runs_started_at ON harvest_runs(started_at DESC);
`

const runStatusColumns = `id, state, started_at, finished_at, error, regions, regions_skipped, discovered, known,
	security_skipped, saved, rejected_too_old, rejected_no_timestamp, rejected_price, interstitials, failures`

// RunStatusRepoImpl provides a concrete implementation for the RunStatusRepository interface using PostgreSQL.
type RunStatusRepoImpl struct {
	db *pgxpool.Pool
}

// NewRunStatusRepo creates the harvest_runs table if needed and returns the repository.
func NewRunStatusRepo(ctx context.Context, db *pgxpool.Pool) (*RunStatusRepoImpl, error) {
	if _, err := db.Exec(ctx, runStatusSchema); err != nil {
		return nil, fmt.Errorf("postgres: migrate harvest_runs: %w", err)
	}
	return &RunStatusRepoImpl{db: db}, nil
}

// Save stores or updates the run record.
func (r *RunStatusRepoImpl) Save(ctx context.Context, status *entity.RunStatus) error {
	query := `
		INSERT INTO harvest_runs (` + runStatusColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			finished_at = EXCLUDED.finished_at,
			error = EXCLUDED.error,
			regions = EXCLUDED.regions,
			regions_skipped = EXCLUDED.regions_skipped,
			discovered = EXCLUDED.discovered,
			known = EXCLUDED.known,
			security_skipped = EXCLUDED.security_skipped,
			saved = EXCLUDED.saved,
			rejected_too_old = EXCLUDED.rejected_too_old,
			rejected_no_timestamp = EXCLUDED.rejected_no_timestamp,
			rejected_price = EXCLUDED.rejected_price,
			interstitials = EXCLUDED.interstitials,
			failures = EXCLUDED.failures;
	`

	s := status.Stats
	_, err := r.db.Exec(ctx, query,
		status.ID,
		string(status.State),
		status.StartedAt,
		status.FinishedAt,
		status.Error,
		s.Regions,
		s.RegionsSkipped,
		s.Discovered,
		s.Known,
		s.SecuritySkipped,
		s.Saved,
		s.RejectedTooOld,
		s.RejectedNoTimestamp,
		s.RejectedPrice,
		s.Interstitials,
		s.Failures,
	)
	return err
}

// FindByID retrieves one run.
func (r *RunStatusRepoImpl) FindByID(ctx context.Context, id string) (*entity.RunStatus, error) {
	row := r.db.QueryRow(ctx, `SELECT `+runStatusColumns+` FROM harvest_runs WHERE id = $1;`, id)
	return scanRunStatus(row)
}

// Latest retrieves the most recently started run.
func (r *RunStatusRepoImpl) Latest(ctx context.Context) (*entity.RunStatus, error) {
	row := r.db.QueryRow(ctx, `SELECT `+runStatusColumns+` FROM harvest_runs ORDER BY started_at DESC LIMIT 1;`)
	return scanRunStatus(row)
}

func scanRunStatus(row pgx.Row) (*entity.RunStatus, error) {
	var (
		status entity.RunStatus
		state  string
	)
	s := &status.Stats
	err := row.Scan(
		&status.ID,
		&state,
		&status.StartedAt,
		&status.FinishedAt,
		&status.Error,
		&s.Regions,
		&s.RegionsSkipped,
		&s.Discovered,
		&s.Known,
		&s.SecuritySkipped,
		&s.Saved,
		&s.RejectedTooOld,
		&s.RejectedNoTimestamp,
		&s.RejectedPrice,
		&s.Interstitials,
		&s.Failures,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	status.State = entity.RunState(state)
	return &status, nil
}
