package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"shopify-catalog-scraper/adapters"
	"shopify-catalog-scraper/internal/types"
	"shopify-catalog-scraper/utils"
)

// Login is the outcome of an authentication attempt. Page is nil when no
// browser could be started, the HTTP session then carries the crawl alone.
type Login struct {
	Page     types.Page
	HTTP     *utils.HTTPClient
	Verified bool
}

// Close releases the browser tab and the HTTP session
func (l *Login) Close() {
	if l.Page != nil {
		_ = l.Page.Close()
	}
	if l.HTTP != nil {
		l.HTTP.Close()
	}
}

func (l *Login) dropBrowser() {
	if l.Page != nil {
		_ = l.Page.Close()
		l.Page = nil
	}
}

// Authenticator logs into a supplier site, through the browser first and
// through a plain form post when the browser login fails.
type Authenticator struct {
	adapter    types.SupplierAdapter
	config     *types.Config
	logger     types.Logger
	newBrowser utils.BrowserFactory
}

// NewAuthenticator creates an authenticator for one supplier
func NewAuthenticator(adapter types.SupplierAdapter, config *types.Config, logger types.Logger, newBrowser utils.BrowserFactory) *Authenticator {
	return &Authenticator{
		adapter:    adapter,
		config:     config,
		logger:     logger,
		newBrowser: newBrowser,
	}
}

// Authenticate opens a new session on the supplier site. A login that cannot
// be verified is not an error: the session is returned with Verified false.
func (a *Authenticator) Authenticate(ctx context.Context, headless bool) (*Login, error) {
	if a.adapter.RequiresAuth() && !a.adapter.Settings().HasCredentials() {
		return nil, fmt.Errorf("%s: %w", a.adapter.DisplayName(), types.ErrMissingCredentials)
	}

	login := &Login{HTTP: utils.NewHTTPClient(a.config, a.logger)}

	page, err := a.newBrowser(ctx, headless)
	if err != nil {
		if ctx.Err() != nil {
			login.HTTP.Close()
			return nil, ctx.Err()
		}
		a.logger.Warnf("Browser unavailable for %s, continuing over HTTP only: %v", a.adapter.DisplayName(), err)
	} else {
		login.Page = page
	}

	if !a.adapter.RequiresAuth() {
		login.Verified = true
		return login, nil
	}

	if login.Page != nil {
		ok, err := a.browserLogin(ctx, login.Page, login.HTTP)
		switch {
		case err != nil:
			a.logger.Warnf("Browser login to %s failed, continuing over HTTP only: %v", a.adapter.DisplayName(), err)
			login.dropBrowser()
		case ok:
			a.logger.Infof("Logged into %s", a.adapter.DisplayName())
			login.Verified = true
			return login, nil
		default:
			a.logger.Warnf("Browser login to %s could not be verified", a.adapter.DisplayName())
		}
	}

	ok, err := a.httpLogin(ctx, login.HTTP)
	if err != nil {
		if ctx.Err() != nil {
			login.Close()
			return nil, ctx.Err()
		}
		a.logger.Warnf("HTTP login to %s failed: %v", a.adapter.DisplayName(), err)
	}
	login.Verified = ok
	if ok && login.Page != nil {
		// the tab never logged in, the HTTP session carries the crawl
		login.dropBrowser()
	}
	if !ok {
		a.logger.Warnf("Continuing %s without a verified login, some pages may be hidden", a.adapter.DisplayName())
	}
	return login, nil
}

func (a *Authenticator) browserLogin(ctx context.Context, page types.Page, client *utils.HTTPClient) (bool, error) {
	form := a.adapter.LoginForm()
	settings := a.adapter.Settings()

	if err := page.Navigate(ctx, form.URL); err != nil {
		return false, err
	}
	doc, err := currentDocument(ctx, page)
	if err != nil {
		return false, err
	}

	username, okUser := adapters.FirstSelector(doc.Selection, form.UsernameSelectors)
	password, okPass := adapters.FirstSelector(doc.Selection, form.PasswordSelectors)
	submit, okSubmit := adapters.FirstSelector(doc.Selection, form.SubmitSelectors)
	if !okUser || !okPass || !okSubmit {
		return false, fmt.Errorf("login form: %w", types.ErrElementNotFound)
	}

	if err := page.Fill(ctx, username, settings.Username); err != nil {
		return false, err
	}
	if err := page.Fill(ctx, password, settings.Password); err != nil {
		return false, err
	}
	href, _ := doc.Find(submit).First().Attr("href")
	if err := page.Click(ctx, types.Control{Selector: submit, Href: href}); err != nil {
		return false, err
	}

	after, err := currentDocument(ctx, page)
	if err != nil {
		return false, err
	}
	current, _ := page.CurrentURL(ctx)

	cookies, err := page.Cookies(ctx)
	if err != nil {
		a.logger.Warnf("Failed to read browser cookies: %v", err)
	} else {
		client.SetCookies(a.adapter.BaseURL(), cookies)
		a.logger.Debugf("Copied %d browser cookies to the HTTP session", len(cookies))
	}

	return loggedIn(form, current, after), nil
}

// httpLogin posts the login form with its hidden fields over the HTTP session
func (a *Authenticator) httpLogin(ctx context.Context, client *utils.HTTPClient) (bool, error) {
	form := a.adapter.LoginForm()
	settings := a.adapter.Settings()

	body, final, err := client.Fetch(ctx, form.URL)
	if err != nil {
		return false, err
	}
	doc, err := adapters.ParseHTML(string(body))
	if err != nil {
		return false, err
	}

	formSel := doc.Find("form").FilterFunction(func(_ int, f *goquery.Selection) bool {
		return f.Find(`input[type="password"]`).Length() > 0
	}).First()

	fields := map[string]string{}
	formSel.Find(`input[type="hidden"][name]`).Each(func(_ int, input *goquery.Selection) {
		name, _ := input.Attr("name")
		value, _ := input.Attr("value")
		fields[name] = value
	})
	fields[form.UsernameField] = settings.Username
	fields[form.PasswordField] = settings.Password

	action := final
	if target, ok := formSel.Attr("action"); ok && strings.TrimSpace(target) != "" {
		action = utils.ResolveURL(final, target)
	}

	resp, landed, err := client.PostForm(ctx, action, fields)
	if err != nil {
		return false, err
	}
	after, err := adapters.ParseHTML(string(resp))
	if err != nil {
		return false, err
	}
	return loggedIn(form, landed, after), nil
}

// loggedIn applies the success heuristics to the page reached after submitting
func loggedIn(form types.LoginForm, currentURL string, doc *goquery.Document) bool {
	if form.LoggedInMarker != "" && doc.Find(form.LoggedInMarker).Length() > 0 {
		return true
	}
	if lo.SomeBy(form.SuccessURLParts, func(part string) bool { return strings.Contains(currentURL, part) }) {
		return true
	}
	// a page still asking for a password is the login page again
	if doc.Find(`input[type="password"]`).Length() > 0 {
		return false
	}
	text := strings.ToLower(doc.Text())
	if lo.SomeBy(form.SuccessKeywords, func(k string) bool { return strings.Contains(text, strings.ToLower(k)) }) {
		return true
	}
	return currentURL != "" && strings.TrimRight(currentURL, "/") != strings.TrimRight(form.URL, "/")
}

func currentDocument(ctx context.Context, page types.Page) (*goquery.Document, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return adapters.ParseHTML(html)
}
