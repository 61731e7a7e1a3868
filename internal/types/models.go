package types

import "strings"

// Category is a root-level catalog section
type Category struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Code string `json:"code,omitempty"`
}

// Collection is a second-level grouping (gamme or subcategory) under a category
type Collection struct {
	Name           string `json:"name"`
	URL            string `json:"url"`
	ParentCategory string `json:"parent_category"`
}

// ProductRef is a product reference discovered on a listing page
type ProductRef struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	ImageURL string `json:"image_url,omitempty"`
}

// Variant is one purchasable configuration of a product
type Variant struct {
	Code           string `json:"code"`
	SKU            string `json:"sku"`
	Barcode        string `json:"barcode"`
	Size           string `json:"size"`
	Color          string `json:"color"`
	Material       string `json:"material"`
	Price          string `json:"price"`
	CompareAtPrice string `json:"compare_at_price"`
	Cost           string `json:"cost"`
	StockQty       int    `json:"stock_qty"`
	SourceURL      string `json:"source_url"`
}

// Product is a product merged from its listing reference, detail page and variant pages
type Product struct {
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	DescriptionHTML string    `json:"description_html"`
	Images          []string  `json:"images"`
	Variants        []Variant `json:"variants"`
	CategoryName    string    `json:"category_name"`
	CollectionName  string    `json:"collection_name"`
	URL             string    `json:"url"`
	IsNew           bool      `json:"is_new"`
}

// ProductDetail is what a product detail page yields before variants are attached
type ProductDetail struct {
	FullName        string
	DescriptionHTML string
	Images          []string
	IsNew           bool
}

// VariantOption is one entry of a variant-selector control
type VariantOption struct {
	Code  string
	Label string
}

// ItemType distinguishes products from variants in the status store
type ItemType string

const (
	ItemProduct ItemType = "product"
	ItemVariant ItemType = "variant"
)

// Status is the crawl status of an item
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"

	legacyStatusPartial = "partial"
)

// ParseStatus maps a stored status value to a Status. The legacy value
// "partial" is read as StatusError.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(StatusPending):
		return StatusPending
	case string(StatusProcessing):
		return StatusProcessing
	case string(StatusCompleted):
		return StatusCompleted
	case string(StatusError), legacyStatusPartial:
		return StatusError
	default:
		return Status(s)
	}
}

// LegacyPartialStatus returns the deprecated status value kept in old databases
func LegacyPartialStatus() string {
	return legacyStatusPartial
}

// CanTransition reports whether an item may move from one status to another.
// An empty from status means the item has never been seen.
func CanTransition(from, to Status) bool {
	switch from {
	case "":
		return to == StatusPending
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusError
	case StatusError, StatusCompleted:
		// retry and explicit re-crawl
		return to == StatusProcessing
	}
	return false
}

// ItemStatus is the persisted crawl status of a product or variant
type ItemStatus struct {
	Supplier     string
	Code         string
	Type         ItemType
	Status       Status
	ErrorMessage string
	Name         string
	URL          string
	Category     string
	Collection   string
	ParentCode   string
}

// Callbacks is the caller-facing progress, log and cancellation interface
type Callbacks struct {
	Progress func(message string, current, total int)
	Log      func(message string)
	Cancel   func() bool
}

// ReportProgress calls Progress when set
func (c Callbacks) ReportProgress(message string, current, total int) {
	if c.Progress != nil {
		c.Progress(message, current, total)
	}
}

// Logf calls Log when set
func (c Callbacks) Logf(message string) {
	if c.Log != nil {
		c.Log(message)
	}
}

// Cancelled polls the cancel check
func (c Callbacks) Cancelled() bool {
	return c.Cancel != nil && c.Cancel()
}

// ScrapeOptions tunes one scrape invocation
type ScrapeOptions struct {
	Limit            int    `json:"limit"`
	Headless         *bool  `json:"headless,omitempty"`
	RetryErrorsAfter bool   `json:"retry_errors_after"`
	SkipCompleted    bool   `json:"skip_completed"`
	Output           string `json:"output,omitempty"`
	CollectionURL    string `json:"collection_url,omitempty"`
}

// ScrapeRequest selects what to crawl. Subcategories are keyed by category name;
// a category absent from the map is crawled through all of its collections.
type ScrapeRequest struct {
	Categories    []Category              `json:"categories"`
	Subcategories map[string][]Collection `json:"subcategories,omitempty"`
	Options       ScrapeOptions           `json:"options"`
}
