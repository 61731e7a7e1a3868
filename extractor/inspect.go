package extractor

import (
	"context"
	"fmt"

	"shopify-catalog-scraper/internal/types"
)

// Inspection is what the supplier adapter finds on one page
type Inspection struct {
	URL            string                `json:"url"`
	Categories     []types.Category      `json:"categories,omitempty"`
	Collections    []types.Collection    `json:"collections,omitempty"`
	Products       []types.ProductRef    `json:"products,omitempty"`
	CurrentPage    int                   `json:"current_page"`
	NextPage       int                   `json:"next_page,omitempty"`
	NextControl    *types.Control        `json:"next_control,omitempty"`
	VariantOptions []types.VariantOption `json:"variant_options,omitempty"`
	Detail         *types.ProductDetail  `json:"detail,omitempty"`
	DetailError    string                `json:"detail_error,omitempty"`
}

// Inspect loads a page and runs every parser of the adapter over it. It is
// used to check selectors against a live page.
func (e *Extractor) Inspect(ctx context.Context, url string) (*Inspection, error) {
	doc, err := e.loadDocument(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", url, err)
	}

	page := types.Category{Name: url, URL: url}
	inspection := &Inspection{
		URL:            url,
		Categories:     e.adapter.ParseCategories(doc),
		Collections:    e.adapter.ParseCollections(doc, page),
		Products:       e.adapter.ParseProductRefs(doc),
		CurrentPage:    e.nav.CurrentPage(doc),
		VariantOptions: e.adapter.ParseVariantOptions(doc),
	}
	inspection.NextPage, inspection.NextControl = e.nav.NextPage(doc)

	detail, err := e.adapter.ParseProductDetail(doc, types.ProductRef{URL: url})
	if err != nil {
		inspection.DetailError = err.Error()
	} else {
		inspection.Detail = &detail
	}
	return inspection, nil
}
