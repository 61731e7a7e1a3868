package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"shopify-catalog-scraper/internal/types"
)

// BrowserFactory starts a browser tab
type BrowserFactory func(ctx context.Context, headless bool) (types.Page, error)

// BrowserPage is a long-lived chromedp tab. Every operation runs with the
// configured per-request timeout; a dead tab surfaces as types.ErrSessionInvalid.
type BrowserPage struct {
	config *types.Config
	logger types.Logger

	ctx         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	closeOnce   sync.Once
}

// NewBrowserFactory returns a factory launching chromedp tabs
func NewBrowserFactory(config *types.Config, logger types.Logger) BrowserFactory {
	return func(ctx context.Context, headless bool) (types.Page, error) {
		return NewBrowserPage(ctx, config, logger, headless)
	}
}

// NewBrowserPage launches a browser and opens one tab
func NewBrowserPage(ctx context.Context, config *types.Config, logger types.Logger, headless bool) (*BrowserPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(config.UserAgent),
		chromedp.WindowSize(1920, 1080),
	)

	// the browser outlives the caller's context, Close releases it
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Debugf),
		chromedp.WithErrorf(func(string, ...interface{}) {}),
	)

	// The first Run starts the browser and must not get a timeout context,
	// cancelling it would kill the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Debugf("Browser started (headless=%v)", headless)
	return &BrowserPage{
		config:      config,
		logger:      logger,
		ctx:         tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}, nil
}

func (b *BrowserPage) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.ctx.Err() != nil {
		return fmt.Errorf("%w: browser closed", types.ErrSessionInvalid)
	}

	runCtx, cancel := context.WithTimeout(b.ctx, b.config.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if b.isDead(err) {
		return fmt.Errorf("%w: %v", types.ErrSessionInvalid, err)
	}
	return err
}

func (b *BrowserPage) isDead(err error) bool {
	if b.ctx.Err() != nil {
		return true
	}
	if errors.Is(err, chromedp.ErrInvalidContext) || errors.Is(err, chromedp.ErrChannelClosed) || errors.Is(err, chromedp.ErrInvalidTarget) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"no target with given id", "session with given id not found", "target closed", "websocket: close"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Navigate loads url and waits for the body
func (b *BrowserPage) Navigate(ctx context.Context, url string) error {
	err := b.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.config.PageSettle),
	)
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// HTML returns the current DOM
func (b *BrowserPage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := b.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	return html, nil
}

// CurrentURL is the liveness probe used by the session manager
func (b *BrowserPage) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := b.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (b *BrowserPage) ScrollHeight(ctx context.Context) (int64, error) {
	var h float64
	if err := b.run(ctx, chromedp.Evaluate(`document.body ? document.body.scrollHeight : 0`, &h)); err != nil {
		return 0, fmt.Errorf("failed to read page height: %w", err)
	}
	return int64(h), nil
}

func (b *BrowserPage) ScrollToBottom(ctx context.Context) error {
	return b.run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
}

func (b *BrowserPage) ScrollToTop(ctx context.Context) error {
	return b.run(ctx, chromedp.Evaluate(`window.scrollTo(0, 0)`, nil))
}

// Click clicks the control through the DOM. When the element is gone but the
// control carries a real link, the link is followed instead.
func (b *BrowserPage) Click(ctx context.Context, control types.Control) error {
	sel, err := json.Marshal(control.Selector)
	if err != nil {
		return err
	}
	script := fmt.Sprintf(`(function() {
		var el = document.querySelector(%s);
		if (!el) { return false; }
		el.scrollIntoView({block: "center"});
		el.click();
		return true;
	})()`, sel)

	var clicked bool
	if err := b.run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return fmt.Errorf("failed to click %s: %w", control.Selector, err)
	}
	if !clicked {
		href := strings.TrimSpace(control.Href)
		if href != "" && !strings.HasPrefix(strings.ToLower(href), "javascript:") && href != "#" {
			return b.Navigate(ctx, href)
		}
		return fmt.Errorf("click %s: %w", control.Selector, types.ErrElementNotFound)
	}

	return b.run(ctx, chromedp.Sleep(b.config.PageSettle))
}

// Fill replaces the value of an input
func (b *BrowserPage) Fill(ctx context.Context, selector, value string) error {
	err := b.run(ctx,
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to fill %s: %w", selector, err)
	}
	return nil
}

// Cookies returns the browser cookies so they can be handed to the HTTP session
func (b *BrowserPage) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	var cookies []*http.Cookie
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		got, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range got {
			cookie := &http.Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Secure:   c.Secure,
				HttpOnly: c.HTTPOnly,
			}
			if c.Expires > 0 {
				cookie.Expires = time.Unix(int64(c.Expires), 0)
			}
			cookies = append(cookies, cookie)
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	return cookies, nil
}

// Close shuts the tab and the browser process
func (b *BrowserPage) Close() error {
	b.closeOnce.Do(func() {
		b.tabCancel()
		b.allocCancel()
	})
	return nil
}
