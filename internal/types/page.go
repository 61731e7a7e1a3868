package types

import (
	"context"
	"net/http"

	"github.com/PuerkitoBio/goquery"
)

// Control identifies a clickable element on the current page. Selector is a
// CSS selector valid for both goquery and document.querySelector; Href is
// the resolved link target when the element is a plain link.
type Control struct {
	Selector string
	Href     string
	Page     int
}

// Page is a live handle on a supplier site, backed either by a browser tab
// or by the plain HTTP session.
type Page interface {
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	CurrentURL(ctx context.Context) (string, error)
	ScrollHeight(ctx context.Context) (int64, error)
	ScrollToBottom(ctx context.Context) error
	ScrollToTop(ctx context.Context) error
	Click(ctx context.Context, control Control) error
	Fill(ctx context.Context, selector, value string) error
	Cookies(ctx context.Context) ([]*http.Cookie, error)
	Close() error
}

// LoginForm describes how to log into a supplier site. Selector lists are
// tried in order and the first match wins.
type LoginForm struct {
	URL               string
	UsernameSelectors []string
	PasswordSelectors []string
	SubmitSelectors   []string
	UsernameField     string
	PasswordField     string
	SuccessKeywords   []string
	SuccessURLParts   []string
	// LoggedInMarker is a selector only present once logged in
	LoggedInMarker string
}

// PaginationMarkup describes a page-number indexed pagination control
type PaginationMarkup struct {
	Container     string
	Item          string
	PageAttr      string
	ActiveClass   string
	Link          string
	Next          []string
	DisabledClass string
}

// SupplierAdapter holds everything that is specific to one supplier site
type SupplierAdapter interface {
	Name() string
	DisplayName() string
	BaseURL() string
	RequiresAuth() bool
	HasSubcategoryLevel() bool
	Settings() SupplierSettings

	LoginForm() LoginForm
	Pagination() PaginationMarkup
	PlaceholderImages() []string

	// CategoriesURL is the page carrying the category menu
	CategoriesURL() string
	ParseCategories(doc *goquery.Document) []Category
	ParseSubcategories(doc *goquery.Document, category Category) []Collection
	ParseCollections(doc *goquery.Document, category Category) []Collection
	ParseProductRefs(doc *goquery.Document) []ProductRef
	ParseProductDetail(doc *goquery.Document, ref ProductRef) (ProductDetail, error)
	ParseVariantOptions(doc *goquery.Document) []VariantOption
	VariantURL(productURL, code string) string
	ParseVariant(doc *goquery.Document) (Variant, error)
}
