// Package pagetest provides a scripted in-memory supplier site for tests.
package pagetest

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"shopify-catalog-scraper/internal/types"
)

// Site serves HTML fixtures. Listings are paginated pages reached by
// clicking pagination controls, index 0 being page 1.
type Site struct {
	mu sync.Mutex

	Pages    map[string]string
	Listings map[string][]string
	// Redirects maps a clicked selector to the page it lands on
	Redirects map[string]string

	// Kill is consulted before every operation; returning true kills the
	// session serving it.
	Kill func(op, url string, page int) bool
	// Heights is consumed by successive ScrollHeight calls, then the last value repeats
	Heights []int64

	Reads    []string
	Filled   map[string]string
	Sessions int
}

// NewSite returns an empty site
func NewSite() *Site {
	return &Site{
		Pages:     map[string]string{},
		Listings:  map[string][]string{},
		Redirects: map[string]string{},
		Filled:    map[string]string{},
	}
}

// NewPage opens a new session on the site
func (s *Site) NewPage() *Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sessions++
	return &Page{site: s}
}

// Factory adapts NewPage to the browser factory signature
func (s *Site) Factory() func(ctx context.Context, headless bool) (types.Page, error) {
	return func(ctx context.Context, headless bool) (types.Page, error) {
		return s.NewPage(), nil
	}
}

// ReadLog returns a copy of the pages read so far, as "url" or "url#page"
func (s *Site) ReadLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Reads...)
}

// Page is one session on a Site
type Page struct {
	site   *Site
	url    string
	page   int
	dead   bool
	closed bool
	scroll int
}

func (p *Page) check(op string) error {
	if p.dead || p.closed {
		return fmt.Errorf("%s: %w", op, types.ErrSessionInvalid)
	}
	if p.site.Kill != nil && p.site.Kill(op, p.url, p.page) {
		p.dead = true
		return fmt.Errorf("%s: %w", op, types.ErrSessionInvalid)
	}
	return nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	if err := p.check("navigate"); err != nil {
		return err
	}
	_, static := p.site.Pages[url]
	_, listing := p.site.Listings[url]
	if !static && !listing {
		return fmt.Errorf("unexpected status code: 404 for %s", url)
	}
	p.url = url
	p.page = 1
	p.scroll = 0
	return nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	if err := p.check("html"); err != nil {
		return "", err
	}
	if pages, ok := p.site.Listings[p.url]; ok {
		p.site.Reads = append(p.site.Reads, fmt.Sprintf("%s#%d", p.url, p.page))
		return pages[p.page-1], nil
	}
	p.site.Reads = append(p.site.Reads, p.url)
	return p.site.Pages[p.url], nil
}

func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	if p.dead || p.closed {
		return "", types.ErrSessionInvalid
	}
	return p.url, nil
}

func (p *Page) ScrollHeight(ctx context.Context) (int64, error) {
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	if err := p.check("scroll"); err != nil {
		return 0, err
	}
	if len(p.site.Heights) == 0 {
		return 1000, nil
	}
	i := p.scroll
	if i >= len(p.site.Heights) {
		i = len(p.site.Heights) - 1
	}
	p.scroll++
	return p.site.Heights[i], nil
}

func (p *Page) ScrollToBottom(ctx context.Context) error { return nil }

func (p *Page) ScrollToTop(ctx context.Context) error { return nil }

// Click moves a listing to the control's page, or to the next page when the
// control does not name one.
func (p *Page) Click(ctx context.Context, control types.Control) error {
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	if err := p.check("click"); err != nil {
		return err
	}
	pages, ok := p.site.Listings[p.url]
	if !ok {
		target, found := p.site.Redirects[control.Selector]
		if !found {
			return fmt.Errorf("click %s: %w", control.Selector, types.ErrElementNotFound)
		}
		p.url = target
		p.page = 1
		return nil
	}
	next := p.page + 1
	if control.Page > 0 {
		next = control.Page
	}
	if next > len(pages) {
		return fmt.Errorf("click %s: %w", control.Selector, types.ErrElementNotFound)
	}
	p.page = next
	p.scroll = 0
	return nil
}

func (p *Page) Fill(ctx context.Context, selector, value string) error {
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	if err := p.check("fill"); err != nil {
		return err
	}
	p.site.Filled[selector] = value
	return nil
}

func (p *Page) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	return []*http.Cookie{{Name: "session", Value: "fake"}}, nil
}

func (p *Page) Close() error {
	p.closed = true
	return nil
}

// Dead reports whether the session was killed
func (p *Page) Dead() bool {
	return p.dead
}
