// Package dompage implements repository.Page over a static HTML snapshot.
package dompage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/user/listing-harvester/internal/repository"
)

// Page answers queries against one parsed document.
type Page struct {
	url string
	doc *goquery.Document
}

// New parses markup captured for url.
func New(url, markup string) (*Page, error) {
	return NewFromReader(url, strings.NewReader(markup))
}

// NewFromReader parses the HTML read from r.
func NewFromReader(url string, r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html for %s: %w", url, err)
	}
	return &Page{url: url, doc: doc}, nil
}

func (p *Page) URL() string {
	return p.url
}

// BodyText approximates the rendered text of <body>: one line per text node,
// whitespace collapsed, script and style content left out.
func (p *Page) BodyText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	body := p.doc.Find("body")
	if body.Length() == 0 {
		return "", nil
	}
	var lines []string
	for _, n := range body.Nodes {
		collectText(n, &lines)
	}
	return strings.Join(lines, "\n"), nil
}

func (p *Page) FirstText(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("%q: %w", selector, repository.ErrElementNotFound)
	}
	return strings.TrimSpace(sel.Text()), nil
}

func (p *Page) Texts(ctx context.Context, selector string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	p.doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if limit > 0 && i >= limit {
			return false
		}
		out = append(out, strings.TrimSpace(s.Text()))
		return true
	})
	return out, nil
}

func (p *Page) Attrs(ctx context.Context, selector, attr string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(attr); ok {
			out = append(out, v)
		}
	})
	return out, nil
}

// Scroll is a no-op on a static snapshot.
func (p *Page) Scroll(ctx context.Context, _ int) error {
	return ctx.Err()
}

func (p *Page) Close() error {
	return nil
}

func collectText(n *html.Node, lines *[]string) {
	switch n.Type {
	case html.TextNode:
		if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
			*lines = append(*lines, t)
		}
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, lines)
	}
}
