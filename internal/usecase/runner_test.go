package usecase

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/user/listing-harvester/internal/adapter/filestate"
	"github.com/user/listing-harvester/internal/adapter/jsonl"
	"github.com/user/listing-harvester/internal/adapter/memory"
	"github.com/user/listing-harvester/internal/entity"
	"github.com/user/listing-harvester/internal/repository"
	"github.com/user/listing-harvester/pkg/metrics"
	"github.com/user/listing-harvester/pkg/utils"
)

const quebecSurfaceURL = "https://www.facebook.com/marketplace/quebec/vehicles/"

type runnerFixture struct {
	browser  *fakeBrowser
	launcher *fakeLauncher
	logPath  string
	statuses *memory.RunStatusRepoImpl
	metrics  *metrics.Metrics
	logs     *observer.ObservedLogs
	runner   *Runner
}

func newRunnerFixture(t *testing.T, regions ...entity.Region) *runnerFixture {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	dir := t.TempDir()

	f := &runnerFixture{
		browser:  newFakeBrowser(),
		logPath:  filepath.Join(dir, "cars.jsonl"),
		statuses: memory.NewRunStatusRepo(),
		metrics:  metrics.New(prometheus.NewRegistry()),
		logs:     logs,
	}
	f.launcher = &fakeLauncher{browser: f.browser}

	skips := filestate.NewSecuritySkipRepo(filepath.Join(dir, "security_skip.json"), logger)
	extractor := NewExtractor(defaultExtractorConfig(), func() time.Time { return fixedNow })
	crawler := NewCityCrawler(testCrawlerConfig(), extractor, skips, f.metrics, logger)
	orchestrator := NewOrchestrator(crawler, logger)
	openLog := func(path string) (repository.ListingLogRepository, error) {
		l, err := jsonl.NewListingLog(path)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	f.runner = NewRunner(RunnerConfig{LogPath: f.logPath, Regions: regions},
		f.launcher, openLog, orchestrator, f.statuses, f.metrics, logger)
	return f
}

func (f *runnerFixture) seedLog(t *testing.T, lines ...string) {
	t.Helper()
	body := ""
	for _, l := range lines {
		body += l + "\n"
	}
	require.NoError(t, os.WriteFile(f.logPath, []byte(body), 0o644))
}

func readRecords(t *testing.T, path string) []map[string]any {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var out []map[string]any
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		var m map[string]any
		if json.Unmarshal(sc.Bytes(), &m) == nil {
			out = append(out, m)
		}
	}
	require.NoError(t, sc.Err())
	return out
}

func TestRunScraperEndToEnd(t *testing.T) {
	f := newRunnerFixture(t, montreal)

	// L1 was captured by an earlier run in the legacy line format.
	f.seedLog(t,
		fmt.Sprintf(`{"City":"montreal","Title":"Old","Price":"$1","CreationTime":"2026-10-16 09:00","Link":%q,"_key":"x"}`, itemURL("1")),
		`{"truncated":`,
	)
	f.browser.pages[testSurfaceURL] = searchHTML("/marketplace/item/1/", "/marketplace/item/2/", "/marketplace/item/3/")
	f.browser.pages[itemURL("2")] = listingHTML("2019 Mazda 3", "CA$12,000", "2 minutes ago")
	f.browser.pages[itemURL("3")] = listingHTML("2008 Civic", "$2,500", "45 minutes ago")

	status, err := f.runner.RunScraper(context.Background())
	require.NoError(t, err)

	assert.Equal(t, entity.RunStateSucceeded, status.State)
	require.NotNil(t, status.FinishedAt)
	assert.Equal(t, entity.RunStats{
		Regions:        1,
		Discovered:     3,
		Known:          1,
		Saved:          1,
		RejectedTooOld: 1,
	}, status.Stats)

	assert.NotContains(t, f.browser.openedURLs(), itemURL("1"))
	assert.True(t, f.browser.closed)

	records := readRecords(t, f.logPath)
	require.Len(t, records, 2)
	saved := records[1]
	assert.Equal(t, itemURL("2"), saved["url"])
	assert.Equal(t, utils.HashURL(itemURL("2")), saved["fingerprint"])
	assert.Equal(t, "2019 Mazda 3", saved["title"])
	assert.Equal(t, "CA$12,000", saved["price"])
	assert.Equal(t, "montreal", saved["region"])
	assert.Equal(t, float64(entity.RecordVersion), saved["v"])

	corrupt := f.logs.FilterMessage("skipped malformed lines in listings log").All()
	require.Len(t, corrupt, 1)
	assert.Equal(t, int64(1), corrupt[0].ContextMap()["malformed"])

	latest, err := f.runner.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.ID, latest.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RunsTotal.WithLabelValues("succeeded")))
}

func TestRunScraperIsIdempotentAcrossRuns(t *testing.T) {
	f := newRunnerFixture(t, montreal)
	f.browser.pages[testSurfaceURL] = searchHTML("/marketplace/item/2/")
	f.browser.pages[itemURL("2")] = listingHTML("Mazda", "$12,000", "just now")

	first, err := f.runner.RunScraper(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Stats.Saved)

	second, err := f.runner.RunScraper(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Stats.Saved)
	assert.Equal(t, 1, second.Stats.Known)

	assert.Len(t, readRecords(t, f.logPath), 1)
}

func TestRunScraperDedupesAcrossRegions(t *testing.T) {
	quebec := entity.Region{ID: "quebec", URL: quebecSurfaceURL}
	f := newRunnerFixture(t, montreal, quebec)
	f.browser.pages[testSurfaceURL] = searchHTML("/marketplace/item/2/")
	f.browser.pages[quebecSurfaceURL] = searchHTML("/marketplace/item/2/", "/marketplace/item/5/")
	f.browser.pages[itemURL("2")] = listingHTML("Mazda", "$12,000", "just now")
	f.browser.pages[itemURL("5")] = listingHTML("Corolla", "$9,000", "1 hour ago")

	status, err := f.runner.RunScraper(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, status.Stats.Regions)
	assert.Equal(t, 1, status.Stats.Saved)
	assert.Equal(t, 1, status.Stats.Known)
	assert.Equal(t, 1, status.Stats.RejectedTooOld)
	assert.Len(t, readRecords(t, f.logPath), 1)
}

func TestRunScraperSkipsBlockedRegion(t *testing.T) {
	quebec := entity.Region{ID: "quebec", URL: quebecSurfaceURL}
	f := newRunnerFixture(t, montreal, quebec)
	f.browser.pages[testSurfaceURL] = `<html><body>We noticed an unusual login attempt.</body></html>`
	f.browser.pages[quebecSurfaceURL] = searchHTML("/marketplace/item/5/")
	f.browser.pages[itemURL("5")] = listingHTML("Corolla", "$9,000", "just now")

	status, err := f.runner.RunScraper(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, status.Stats.Regions)
	assert.Equal(t, 1, status.Stats.RegionsSkipped)
	assert.Equal(t, 1, status.Stats.Saved)

	skipped := f.logs.FilterMessage("region skipped").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, "montreal", skipped[0].ContextMap()["region"])
}

func TestRunScraperContinuesAfterRegionFailure(t *testing.T) {
	quebec := entity.Region{ID: "quebec", URL: quebecSurfaceURL}
	f := newRunnerFixture(t, montreal, quebec)
	f.browser.errs[testSurfaceURL] = repository.ErrNavigationTimeout
	f.browser.pages[quebecSurfaceURL] = searchHTML("/marketplace/item/5/")
	f.browser.pages[itemURL("5")] = listingHTML("Corolla", "$9,000", "just now")

	status, err := f.runner.RunScraper(context.Background())
	require.NoError(t, err)

	assert.Equal(t, entity.RunStateSucceeded, status.State)
	assert.Equal(t, 2, status.Stats.Regions)
	assert.Equal(t, 1, status.Stats.RegionsSkipped)
	assert.Equal(t, 1, status.Stats.Saved)
	assert.Len(t, readRecords(t, f.logPath), 1)

	failed := f.logs.FilterMessage("region failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "montreal", failed[0].ContextMap()["region"])
	assert.Equal(t, 0, f.logs.FilterMessage("region skipped").Len())
}

func TestRunScraperRetriesInterstitialOnNextRun(t *testing.T) {
	f := newRunnerFixture(t, montreal)
	f.browser.pages[testSurfaceURL] = searchHTML("/marketplace/item/2/")
	f.browser.pages[itemURL("2")] = `<html><body><h2>Security check</h2><p>Confirm it's you.</p></body></html>`

	first, err := f.runner.RunScraper(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Stats.Interstitials)
	assert.Equal(t, 0, first.Stats.Saved)

	f.browser.pages[itemURL("2")] = listingHTML("Mazda", "$12,000", "just now")
	f.browser.resetOpened()

	second, err := f.runner.RunScraper(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Stats.SecuritySkipped)
	assert.Equal(t, 1, second.Stats.Saved)
	assert.Contains(t, f.browser.openedURLs(), itemURL("2"))

	records := readRecords(t, f.logPath)
	require.Len(t, records, 1)
	assert.Equal(t, itemURL("2"), records[0]["url"])
}

func TestRunScraperFatalSessionFailure(t *testing.T) {
	f := newRunnerFixture(t, montreal)
	f.launcher.err = fmt.Errorf("%w: read fb_state.json: no such file", repository.ErrSessionUnavailable)

	status, err := f.runner.RunScraper(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrSessionUnavailable)

	assert.Equal(t, entity.RunStateFailed, status.State)
	assert.Contains(t, status.Error, "launch browser")
	assert.Empty(t, f.browser.openedURLs())

	latest, err := f.runner.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entity.RunStateFailed, latest.State)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RunsTotal.WithLabelValues("failed")))
}

func TestStartAllowsOneActiveRun(t *testing.T) {
	f := newRunnerFixture(t, montreal)
	f.browser.pages[testSurfaceURL] = searchHTML()
	f.launcher.gate = make(chan struct{})

	id, started := f.runner.Start()
	require.True(t, started)
	require.NotEmpty(t, id)

	again, started := f.runner.Start()
	assert.False(t, started)
	assert.Equal(t, id, again)

	_, err := f.runner.RunScraper(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(f.launcher.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.runner.Shutdown(ctx))

	_, active := f.runner.Active()
	assert.False(t, active)

	status, err := f.runner.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, entity.RunStateSucceeded, status.State)
	assert.Equal(t, 1, f.launcher.launched)
}

func TestStartRejectedAfterShutdown(t *testing.T) {
	f := newRunnerFixture(t, montreal)
	f.browser.pages[testSurfaceURL] = searchHTML()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.runner.Shutdown(ctx))

	id, started := f.runner.Start()
	assert.False(t, started)
	assert.Empty(t, id)
	assert.Equal(t, 0, f.launcher.launched)

	_, active := f.runner.Active()
	assert.False(t, active)
}

func TestStartConcurrentWithShutdown(t *testing.T) {
	f := newRunnerFixture(t, montreal)
	f.browser.pages[testSurfaceURL] = searchHTML()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.runner.Start()
		}()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.runner.Shutdown(ctx))
	wg.Wait()

	_, active := f.runner.Active()
	assert.False(t, active)
	id, started := f.runner.Start()
	assert.False(t, started)
	assert.Empty(t, id)
}

func TestShutdownCancelsRunAfterDeadline(t *testing.T) {
	f := newRunnerFixture(t, montreal)
	f.launcher.gate = make(chan struct{})

	id, started := f.runner.Start()
	require.True(t, started)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.runner.Shutdown(ctx), context.DeadlineExceeded)

	status, err := f.runner.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, entity.RunStateFailed, status.State)
}
