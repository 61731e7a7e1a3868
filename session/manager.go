package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shopify-catalog-scraper/internal/types"
	"shopify-catalog-scraper/utils"
)

// Manager owns the live session of one supplier: a browser tab paired with
// an HTTP session. It recreates both when the tab stops answering.
type Manager struct {
	mu       sync.Mutex
	auth     *Authenticator
	config   *types.Config
	logger   types.Logger
	baseURL  string
	headless bool

	login    *Login
	httpPage *utils.HTTPPage
	recycled int
}

// NewManager creates a session manager. No session is opened until the first Ensure.
func NewManager(auth *Authenticator, config *types.Config, logger types.Logger, headless bool) *Manager {
	return &Manager{
		auth:     auth,
		config:   config,
		logger:   logger,
		baseURL:  auth.adapter.BaseURL(),
		headless: headless,
	}
}

// Ensure checks that the session still answers and authenticates again when
// it does not. An HTTP-only session has no tab to probe and is always opened
// again, which also gives the browser another chance to start. It reports
// whether a new session was opened.
func (m *Manager) Ensure(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.login != nil {
		if m.login.Page != nil {
			_, err := m.login.Page.CurrentURL(ctx)
			if err == nil {
				return false, nil
			}
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			m.logger.Warnf("Browser session no longer answers, opening a new one: %v", err)
		} else {
			m.logger.Warnf("Opening a new HTTP session on %s", m.baseURL)
		}
		m.login.Close()
		m.login = nil
		m.recycled++
	}

	login, err := m.auth.Authenticate(ctx, m.headless)
	if err != nil {
		return false, fmt.Errorf("failed to open session: %w", err)
	}
	m.login = login
	m.httpPage = utils.NewHTTPPage(login.HTTP)
	return true, nil
}

// EnsureLive returns a working page and HTTP session, opening new ones when
// the current pair is gone.
func (m *Manager) EnsureLive(ctx context.Context) (types.Page, *utils.HTTPClient, error) {
	if _, err := m.Ensure(ctx); err != nil {
		return nil, nil, err
	}
	return m.Page(), m.HTTP(), nil
}

// Page returns the browser tab, or a page over the HTTP session when no browser runs
func (m *Manager) Page() types.Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.login == nil {
		return nil
	}
	if m.login.Page != nil {
		return m.login.Page
	}
	return m.httpPage
}

// HTTP returns the HTTP session
func (m *Manager) HTTP() *utils.HTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.login == nil {
		return nil
	}
	return m.login.HTTP
}

// Verified reports whether the last login was confirmed by the site
func (m *Manager) Verified() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.login != nil && m.login.Verified
}

// BrowserAvailable reports whether the session runs a browser
func (m *Manager) BrowserAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.login != nil && m.login.Page != nil
}

// Recycled returns how many times a dead session was replaced
func (m *Manager) Recycled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recycled
}

// WaitForSite polls the supplier home page until it answers, pausing
// SiteCheckInterval between attempts.
func (m *Manager) WaitForSite(ctx context.Context) error {
	client := m.HTTP()
	if client == nil {
		client = utils.NewHTTPClient(m.config, m.logger)
		defer client.Close()
	}

	attempts := m.config.SiteCheckAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = client.Ping(ctx, m.baseURL); lastErr == nil {
			return nil
		}
		m.logger.Warnf("%s not accessible (attempt %d/%d): %v", m.baseURL, attempt, attempts, lastErr)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.config.SiteCheckInterval):
		}
	}
	return fmt.Errorf("%s not accessible after %d attempts: %w", m.baseURL, attempts, lastErr)
}

// Close releases the session
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.login != nil {
		m.login.Close()
		m.login = nil
	}
}
