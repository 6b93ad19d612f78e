package repository

import (
	"context"
	"errors"
)

var (
	ErrNavigationTimeout  = errors.New("navigation timed out")
	ErrNavigationFailed   = errors.New("navigation failed")
	ErrElementNotFound    = errors.New("element not found")
	ErrSessionUnavailable = errors.New("browser session unavailable")
)

// Page is a rendered page the harvester can read from.
type Page interface {
	// URL returns the address the page was opened with.
	URL() string
	// BodyText returns the visible text of the document body.
	BodyText(ctx context.Context) (string, error)
	// FirstText returns the trimmed text of the first element matching selector,
	// or ErrElementNotFound.
	FirstText(ctx context.Context, selector string) (string, error)
	// Texts returns the text of up to limit elements matching selector in document order.
	Texts(ctx context.Context, selector string, limit int) ([]string, error)
	// Attrs returns the attribute value of every element matching selector that carries it.
	Attrs(ctx context.Context, selector, attr string) ([]string, error)
	// Scroll moves the viewport down by pixels and waits for the page to settle.
	Scroll(ctx context.Context, pixels int) error
	Close() error
}

// BrowserRepository opens pages inside one authenticated browsing session.
type BrowserRepository interface {
	Open(ctx context.Context, url string) (Page, error)
	Close() error
}

// BrowserLauncher acquires a browsing session for one run.
type BrowserLauncher interface {
	Launch(ctx context.Context) (BrowserRepository, error)
}
