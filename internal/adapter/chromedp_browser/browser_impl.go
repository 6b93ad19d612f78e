// Package chromedp_browser drives a real Chrome instance through chromedp.
// Pages are rendered in their own tab, then snapshotted and queried with
// goquery through dompage.
package chromedp_browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/listing-harvester/internal/adapter/dompage"
	"github.com/user/listing-harvester/internal/repository"
	"github.com/user/listing-harvester/pkg/utils"
)

// Options configures the browser process and page loading.
type Options struct {
	StatePath       string
	Headless        bool
	ChromeBin       string
	ViewportWidth   int
	ViewportHeight  int
	Locale          string
	UserAgent       string
	PageLoadTimeout time.Duration
	SettleMin       time.Duration
	SettleMax       time.Duration
}

// Launcher starts one authenticated browser session per call.
type Launcher struct {
	opts   Options
	logger *zap.Logger
}

// NewLauncher creates a new launcher implementation using chromedp.
func NewLauncher(opts Options, logger *zap.Logger) *Launcher {
	return &Launcher{opts: opts, logger: logger}
}

// Launch loads the session state, starts Chrome and installs the stored
// cookies. A missing or unreadable state file fails before Chrome starts.
func (l *Launcher) Launch(ctx context.Context) (repository.BrowserRepository, error) {
	state, err := LoadStorageState(l.opts.StatePath)
	if err != nil {
		return nil, err
	}
	seedScript, err := state.LocalStorageScript()
	if err != nil {
		return nil, fmt.Errorf("%w: local storage: %v", repository.ErrSessionUnavailable, err)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(l.opts.ViewportWidth, l.opts.ViewportHeight),
	)
	if l.opts.Locale != "" {
		allocOpts = append(allocOpts, chromedp.Flag("lang", l.opts.Locale))
	}
	if l.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(l.opts.UserAgent))
	}
	if l.opts.ChromeBin != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.opts.ChromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(l.logger.Sugar().Debugf))

	cookies := state.CookieParams()
	if err := chromedp.Run(browserCtx, network.SetCookies(cookies)); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("%w: start browser: %v", repository.ErrSessionUnavailable, err)
	}
	l.logger.Info("browser session started",
		zap.Int("cookies", len(cookies)),
		zap.Bool("headless", l.opts.Headless),
	)

	return &Browser{
		ctx:           browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		seedScript:    seedScript,
		opts:          l.opts,
		logger:        l.logger,
	}, nil
}

// Browser is one running Chrome with the session applied.
type Browser struct {
	ctx           context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	seedScript    string
	opts          Options
	logger        *zap.Logger
}

// Open loads url in a new tab, waits for the body, lets the page settle and
// takes a DOM snapshot.
func (b *Browser) Open(ctx context.Context, url string) (repository.Page, error) {
	tabCtx, cancelTab := chromedp.NewContext(b.ctx)
	// Allocate the tab outside of any deadline so a timeout only aborts the load.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		return nil, fmt.Errorf("%w: open tab: %v", repository.ErrNavigationFailed, err)
	}

	p := &Page{url: url, tabCtx: tabCtx, cancelTab: cancelTab, opts: b.opts}

	err := p.run(ctx, func(runCtx context.Context) error {
		actions := []chromedp.Action{}
		if b.seedScript != "" {
			actions = append(actions, chromedp.ActionFunc(func(c context.Context) error {
				_, err := page.AddScriptToEvaluateOnNewDocument(b.seedScript).Do(c)
				return err
			}))
		}
		actions = append(actions,
			chromedp.Navigate(url),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)
		return chromedp.Run(runCtx, actions...)
	})
	if err == nil {
		err = p.settleAndSnapshot(ctx)
	}
	if err != nil {
		cancelTab()
		return nil, err
	}
	return p, nil
}

func (b *Browser) Close() error {
	b.cancelBrowser()
	b.cancelAlloc()
	b.logger.Info("browser session closed")
	return nil
}

// Page is a live tab plus the latest snapshot of its DOM.
type Page struct {
	url       string
	tabCtx    context.Context
	cancelTab context.CancelFunc
	opts      Options
	snapshot  *dompage.Page
}

func (p *Page) URL() string {
	return p.url
}

func (p *Page) BodyText(ctx context.Context) (string, error) {
	return p.snapshot.BodyText(ctx)
}

func (p *Page) FirstText(ctx context.Context, selector string) (string, error) {
	return p.snapshot.FirstText(ctx, selector)
}

func (p *Page) Texts(ctx context.Context, selector string, limit int) ([]string, error) {
	return p.snapshot.Texts(ctx, selector, limit)
}

func (p *Page) Attrs(ctx context.Context, selector, attr string) ([]string, error) {
	return p.snapshot.Attrs(ctx, selector, attr)
}

// Scroll scrolls the live tab and refreshes the snapshot.
func (p *Page) Scroll(ctx context.Context, pixels int) error {
	err := p.run(ctx, func(runCtx context.Context) error {
		return chromedp.Run(runCtx, chromedp.Evaluate("window.scrollBy(0, "+strconv.Itoa(pixels)+");", nil))
	})
	if err != nil {
		return err
	}
	return p.settleAndSnapshot(ctx)
}

func (p *Page) Close() error {
	p.cancelTab()
	return nil
}

func (p *Page) settleAndSnapshot(ctx context.Context) error {
	if err := utils.Sleep(ctx, utils.RandomDuration(p.opts.SettleMin, p.opts.SettleMax)); err != nil {
		return err
	}
	var markup string
	err := p.run(ctx, func(runCtx context.Context) error {
		return chromedp.Run(runCtx, chromedp.OuterHTML("html", &markup, chromedp.ByQuery))
	})
	if err != nil {
		return err
	}
	snapshot, err := dompage.New(p.url, markup)
	if err != nil {
		return fmt.Errorf("%w: %v", repository.ErrNavigationFailed, err)
	}
	p.snapshot = snapshot
	return nil
}

// run executes fn on the tab bounded by the page-load timeout and by ctx.
func (p *Page) run(ctx context.Context, fn func(context.Context) error) error {
	runCtx, cancel := context.WithTimeout(p.tabCtx, p.opts.PageLoadTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := fn(runCtx)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", repository.ErrNavigationTimeout, p.url, p.opts.PageLoadTimeout)
	}
	return fmt.Errorf("%w: %s: %v", repository.ErrNavigationFailed, p.url, err)
}
