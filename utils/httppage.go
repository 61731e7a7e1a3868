package utils

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"shopify-catalog-scraper/internal/types"
)

// HTTPPage drives a supplier site through the HTTP session only. Pages are
// read as served, so JavaScript-rendered content is missing and controls can
// only be followed when they are real links.
type HTTPPage struct {
	client *HTTPClient
	url    string
	html   string
}

// NewHTTPPage wraps an HTTP session as a Page
func NewHTTPPage(client *HTTPClient) *HTTPPage {
	return &HTTPPage{client: client}
}

func (p *HTTPPage) Navigate(ctx context.Context, rawURL string) error {
	body, final, err := p.client.Fetch(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", rawURL, err)
	}
	p.url = final
	p.html = string(body)
	return nil
}

func (p *HTTPPage) HTML(ctx context.Context) (string, error) {
	if p.url == "" {
		return "", fmt.Errorf("no page loaded")
	}
	return p.html, nil
}

func (p *HTTPPage) CurrentURL(ctx context.Context) (string, error) {
	return p.url, nil
}

func (p *HTTPPage) ScrollHeight(ctx context.Context) (int64, error) {
	return int64(len(p.html)), nil
}

func (p *HTTPPage) ScrollToBottom(ctx context.Context) error { return nil }

func (p *HTTPPage) ScrollToTop(ctx context.Context) error { return nil }

// Click follows the control's link
func (p *HTTPPage) Click(ctx context.Context, control types.Control) error {
	href := strings.TrimSpace(control.Href)
	if href == "" || href == "#" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return fmt.Errorf("control %q has no link to follow: %w", control.Selector, types.ErrUnsupported)
	}
	return p.Navigate(ctx, ResolveURL(p.url, href))
}

func (p *HTTPPage) Fill(ctx context.Context, selector, value string) error {
	return fmt.Errorf("fill %s: %w", selector, types.ErrUnsupported)
}

func (p *HTTPPage) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	return p.client.Cookies(p.url), nil
}

// Close is a no-op, the HTTP session is owned by the session manager
func (p *HTTPPage) Close() error { return nil }

// ResolveURL resolves href against base. Unparseable input is returned as is.
func ResolveURL(base, href string) string {
	h, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}
