package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/listing-harvester/internal/dedup"
	"github.com/user/listing-harvester/internal/entity"
	"github.com/user/listing-harvester/internal/repository"
	"github.com/user/listing-harvester/pkg/metrics"
)

var ErrRunInProgress = errors.New("a harvest run is already in progress")

// LogOpener opens the append-only listings log for one run.
type LogOpener func(path string) (repository.ListingLogRepository, error)

// RunnerConfig is what a run needs beyond its collaborators.
type RunnerConfig struct {
	LogPath string
	Regions []entity.Region
}

// Runner owns the run lifecycle. At most one run is active at a time, which
// keeps the listings log single-writer.
type Runner struct {
	cfg          RunnerConfig
	launcher     repository.BrowserLauncher
	openLog      LogOpener
	orchestrator *Orchestrator
	statuses     repository.RunStatusRepository
	metrics      *metrics.Metrics
	logger       *zap.Logger

	newID func() string
	now   func() time.Time

	mu       sync.Mutex
	activeID string
	closed   bool
	wg       sync.WaitGroup
	baseCtx  context.Context
	cancel   context.CancelFunc
}

func NewRunner(
	cfg RunnerConfig,
	launcher repository.BrowserLauncher,
	openLog LogOpener,
	orchestrator *Orchestrator,
	statuses repository.RunStatusRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Runner {
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cfg:          cfg,
		launcher:     launcher,
		openLog:      openLog,
		orchestrator: orchestrator,
		statuses:     statuses,
		metrics:      m,
		logger:       logger,
		newID:        uuid.NewString,
		now:          time.Now,
		baseCtx:      baseCtx,
		cancel:       cancel,
	}
}

// RunScraper performs one complete run and blocks until it ends. The
// returned status is also recorded in the run status store.
func (r *Runner) RunScraper(ctx context.Context) (*entity.RunStatus, error) {
	id, ok := r.acquire()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, id)
	}
	defer r.release()
	return r.run(ctx, id)
}

// Start launches a run in the background and returns immediately. When a run
// is already active its id is returned with started=false. After Shutdown it
// returns an empty id with started=false.
func (r *Runner) Start() (runID string, started bool) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", false
	}
	if r.activeID != "" {
		id := r.activeID
		r.mu.Unlock()
		return id, false
	}
	id := r.newID()
	r.activeID = id
	// Added under mu so Shutdown's Wait never races a late Add.
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer r.release()
		// The outcome is logged and recorded by run.
		_, _ = r.run(r.baseCtx, id)
	}()
	return id, true
}

// Active returns the id of the run in progress, if any.
func (r *Runner) Active() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID, r.activeID != ""
}

func (r *Runner) Latest(ctx context.Context) (*entity.RunStatus, error) {
	return r.statuses.Latest(ctx)
}

func (r *Runner) Status(ctx context.Context, id string) (*entity.RunStatus, error) {
	return r.statuses.FindByID(ctx, id)
}

// Shutdown stops accepting background runs and waits for the active one to
// finish. If ctx ends first the run is cancelled and Shutdown still waits for
// it to record its status.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}

func (r *Runner) acquire() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeID != "" {
		return r.activeID, false
	}
	r.activeID = r.newID()
	return r.activeID, true
}

func (r *Runner) release() {
	r.mu.Lock()
	r.activeID = ""
	r.mu.Unlock()
}

func (r *Runner) run(ctx context.Context, id string) (*entity.RunStatus, error) {
	log := r.logger.With(zap.String("run_id", id))
	status := &entity.RunStatus{
		ID:        id,
		State:     entity.RunStateRunning,
		StartedAt: r.now(),
	}
	r.saveStatus(ctx, status, log)
	log.Info("run started", zap.Int("regions", len(r.cfg.Regions)))

	stats, err := r.execute(ctx, log)

	finished := r.now()
	status.FinishedAt = &finished
	status.Stats = stats
	duration := finished.Sub(status.StartedAt)
	r.metrics.RunDuration.Observe(duration.Seconds())

	if err != nil {
		status.State = entity.RunStateFailed
		status.Error = err.Error()
		r.metrics.RunsTotal.WithLabelValues(string(entity.RunStateFailed)).Inc()
		log.Error("run failed", zap.Error(err), zap.Duration("duration", duration))
	} else {
		status.State = entity.RunStateSucceeded
		r.metrics.RunsTotal.WithLabelValues(string(entity.RunStateSucceeded)).Inc()
		log.Info("run finished",
			zap.Duration("duration", duration),
			zap.Int("regions", stats.Regions),
			zap.Int("regions_skipped", stats.RegionsSkipped),
			zap.Int("discovered", stats.Discovered),
			zap.Int("saved", stats.Saved),
			zap.Int("failures", stats.Failures),
		)
	}
	r.saveStatus(context.WithoutCancel(ctx), status, log)
	return status, err
}

// execute holds the fatal preconditions: if any of them fails no region is
// attempted.
func (r *Runner) execute(ctx context.Context, log *zap.Logger) (entity.RunStats, error) {
	index, loadStats, err := dedup.Load(r.cfg.LogPath)
	if err != nil {
		return entity.RunStats{}, fmt.Errorf("load dedup index: %w", err)
	}
	if loadStats.Malformed > 0 {
		log.Warn("skipped malformed lines in listings log",
			zap.String("path", r.cfg.LogPath),
			zap.Int("malformed", loadStats.Malformed),
			zap.Int("lines", loadStats.Lines),
		)
	}
	log.Info("dedup index loaded", zap.Int("known", index.Len()))

	listings, err := r.openLog(r.cfg.LogPath)
	if err != nil {
		return entity.RunStats{}, fmt.Errorf("open listings log: %w", err)
	}
	defer func() {
		if err := listings.Close(); err != nil {
			log.Warn("closing listings log failed", zap.Error(err))
		}
	}()

	browser, err := r.launcher.Launch(ctx)
	if err != nil {
		return entity.RunStats{}, fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			log.Warn("closing browser failed", zap.Error(err))
		}
	}()

	sink := func(ctx context.Context, record entity.ListingRecord) error {
		if err := listings.Append(ctx, record); err != nil {
			return err
		}
		index.MarkSeen(record.Fingerprint)
		return nil
	}
	return r.orchestrator.Run(ctx, browser, r.cfg.Regions, index, sink)
}

func (r *Runner) saveStatus(ctx context.Context, status *entity.RunStatus, log *zap.Logger) {
	if err := r.statuses.Save(ctx, status); err != nil {
		log.Warn("saving run status failed", zap.String("state", string(status.State)), zap.Error(err))
	}
}
