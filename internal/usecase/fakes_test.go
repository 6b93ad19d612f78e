package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/user/listing-harvester/internal/adapter/dompage"
	"github.com/user/listing-harvester/internal/repository"
)

const (
	testBaseURL    = "https://www.facebook.com"
	testSurfaceURL = "https://www.facebook.com/marketplace/montreal/vehicles/?sortBy=creation_time_descend"
)

func itemURL(id string) string {
	return testBaseURL + "/marketplace/item/" + id + "/"
}

func searchHTML(hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><div role=\"main\">")
	for _, h := range hrefs {
		fmt.Fprintf(&b, `<a href="%s"><span>car</span></a>`, h)
	}
	b.WriteString("</div></body></html>")
	return b.String()
}

func listingHTML(title, price, age string) string {
	return fmt.Sprintf(`<html><head><title>Marketplace</title><script>var x = "5 minutes";</script></head>
<body>
  <h1> %s </h1>
  <div><span>%s</span></div>
  <div><span>Montreal, QC</span><span>%s</span></div>
</body></html>`, title, price, age)
}

// fakeBrowser serves canned markup through dompage, the same page
// implementation the chromedp adapter queries.
type fakeBrowser struct {
	mu      sync.Mutex
	pages   map[string]string
	scrolls map[string][]string
	errs    map[string]error
	opened  []string
	closed  bool
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		pages:   make(map[string]string),
		scrolls: make(map[string][]string),
		errs:    make(map[string]error),
	}
}

func (b *fakeBrowser) Open(ctx context.Context, url string) (repository.Page, error) {
	b.mu.Lock()
	b.opened = append(b.opened, url)
	err, failing := b.errs[url]
	markup, ok := b.pages[url]
	snaps := b.scrolls[url]
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failing {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no page for %s", repository.ErrNavigationFailed, url)
	}
	p, err := dompage.New(url, markup)
	if err != nil {
		return nil, err
	}
	if len(snaps) > 0 {
		return &scrollingPage{Page: p, snaps: append([]string(nil), snaps...)}, nil
	}
	return p, nil
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func (b *fakeBrowser) openedURLs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.opened...)
}

func (b *fakeBrowser) resetOpened() {
	b.mu.Lock()
	b.opened = nil
	b.mu.Unlock()
}

// scrollingPage reveals the next snapshot on every Scroll, like an
// infinite-scroll result list.
type scrollingPage struct {
	*dompage.Page
	snaps []string
}

func (p *scrollingPage) Scroll(ctx context.Context, _ int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(p.snaps) == 0 {
		return nil
	}
	next, err := dompage.New(p.URL(), p.snaps[0])
	if err != nil {
		return err
	}
	p.Page = next
	p.snaps = p.snaps[1:]
	return nil
}

type fakeLauncher struct {
	browser  *fakeBrowser
	err      error
	gate     chan struct{}
	launched int
}

func (l *fakeLauncher) Launch(ctx context.Context) (repository.BrowserRepository, error) {
	l.launched++
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.browser, nil
}
