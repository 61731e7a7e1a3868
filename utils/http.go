package utils

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"

	"shopify-catalog-scraper/internal/types"
)

// HTTPClient is the plain HTTP session used next to the browser, and on its
// own when no browser is available. It keeps cookies across requests and
// applies rate limiting and retries.
type HTTPClient struct {
	client  *resty.Client
	jar     http.CookieJar
	config  *types.Config
	logger  types.Logger
	limiter *time.Ticker
}

// NewHTTPClient creates a new HTTP session with the given configuration
func NewHTTPClient(config *types.Config, logger types.Logger) *HTTPClient {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	client := resty.New().
		SetTimeout(config.Timeout).
		SetCookieJar(jar).
		SetHeaders(map[string]string{
			"User-Agent":                config.UserAgent,
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language":           "fr-FR,fr;q=0.9,en;q=0.5",
			"Upgrade-Insecure-Requests": "1",
		})

	delay := config.RequestDelay
	if delay <= 0 {
		delay = time.Millisecond
	}

	return &HTTPClient{
		client:  client,
		jar:     jar,
		config:  config,
		logger:  logger,
		limiter: time.NewTicker(delay),
	}
}

// Get performs a GET request with rate limiting and retries
func (h *HTTPClient) Get(ctx context.Context, rawURL string) ([]byte, error) {
	body, _, err := h.Fetch(ctx, rawURL)
	return body, err
}

// Fetch is Get that also returns the final URL after redirects
func (h *HTTPClient) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	resp, err := h.do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	return resp.Body(), finalURL(resp, rawURL), nil
}

// PostForm submits a urlencoded form and returns the response body
func (h *HTTPClient) PostForm(ctx context.Context, rawURL string, form map[string]string) ([]byte, string, error) {
	resp, err := h.do(ctx, http.MethodPost, rawURL, form)
	if err != nil {
		return nil, "", err
	}
	return resp.Body(), finalURL(resp, rawURL), nil
}

// Ping performs a single GET without retries and reports whether the site answered
func (h *HTTPClient) Ping(ctx context.Context, rawURL string) error {
	resp, err := h.client.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return fmt.Errorf("site unreachable: %w", err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return fmt.Errorf("site unavailable: status %d", resp.StatusCode())
	}
	return nil
}

func (h *HTTPClient) do(ctx context.Context, method, rawURL string, form map[string]string) (*resty.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= h.config.MaxRetries; attempt++ {
		select {
		case <-h.limiter.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		req := h.client.R().SetContext(ctx)
		if form != nil {
			req.SetFormData(form)
		}

		h.logger.Debugf("%s %s (attempt %d/%d)", method, rawURL, attempt+1, h.config.MaxRetries+1)

		resp, err := req.Execute(method, rawURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			h.logger.Warnf("Request failed (attempt %d): %v", attempt+1, err)
			continue
		}

		if resp.StatusCode() != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode())
			h.logger.Warnf("Unexpected status code %d (attempt %d)", resp.StatusCode(), attempt+1)
			continue
		}

		h.logger.Debugf("Retrieved %d bytes from %s", len(resp.Body()), rawURL)
		return resp, nil
	}

	return nil, fmt.Errorf("all retry attempts failed: %w", lastErr)
}

// SetCookies stores cookies for the host of rawURL, e.g. ones copied from the browser
func (h *HTTPClient) SetCookies(rawURL string, cookies []*http.Cookie) {
	u, err := url.Parse(rawURL)
	if err != nil {
		h.logger.Warnf("Cannot set cookies for %q: %v", rawURL, err)
		return
	}
	h.jar.SetCookies(u, cookies)
}

// Cookies returns the cookies the session would send to rawURL
func (h *HTTPClient) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return h.jar.Cookies(u)
}

// Close cleans up resources
func (h *HTTPClient) Close() {
	if h.limiter != nil {
		h.limiter.Stop()
	}
}

func finalURL(resp *resty.Response, fallback string) string {
	if resp.RawResponse != nil && resp.RawResponse.Request != nil && resp.RawResponse.Request.URL != nil {
		return resp.RawResponse.Request.URL.String()
	}
	return fallback
}
