// Package orchestrator ties the supplier adapters, sessions, extractor,
// status store and import file writer together.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"

	"shopify-catalog-scraper/extractor"
	"shopify-catalog-scraper/internal/store"
	"shopify-catalog-scraper/internal/types"
	"shopify-catalog-scraper/utils"
)

// Supplier describes a supplier for callers choosing what to crawl
type Supplier struct {
	Name                string `json:"name"`
	DisplayName         string `json:"display_name,omitempty"`
	RequiresAuth        bool   `json:"requires_auth"`
	HasSubcategoryLevel bool   `json:"has_subcategory_level"`
	Error               string `json:"error,omitempty"`
}

// Orchestrator is the entry point of every crawl operation
type Orchestrator struct {
	registry *Registry
	store    Store
	config   *types.Config
	logger   types.Logger
	browser  utils.BrowserFactory

	mu       sync.Mutex
	scrapers map[string]*Scraper
}

// New creates an orchestrator over the registry's suppliers
func New(registry *Registry, store Store, config *types.Config, logger types.Logger, browser utils.BrowserFactory) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		store:    store,
		config:   config,
		logger:   logger,
		browser:  browser,
		scrapers: map[string]*Scraper{},
	}
}

// Scraper returns the scraper of a supplier
func (o *Orchestrator) Scraper(supplier string) (*Scraper, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.scrapers[supplier]; ok {
		return s, nil
	}
	adapter, err := o.registry.Adapter(supplier)
	if err != nil {
		return nil, err
	}
	s := NewScraper(adapter, o.store, o.config, o.logger, o.browser)
	o.scrapers[supplier] = s
	return s, nil
}

// Suppliers describes every registered supplier
func (o *Orchestrator) Suppliers() []Supplier {
	var list []Supplier
	for _, name := range o.registry.Names() {
		adapter, err := o.registry.Adapter(name)
		if err != nil {
			list = append(list, Supplier{Name: name, Error: err.Error()})
			continue
		}
		list = append(list, Supplier{
			Name:                name,
			DisplayName:         adapter.DisplayName(),
			RequiresAuth:        adapter.RequiresAuth(),
			HasSubcategoryLevel: adapter.HasSubcategoryLevel(),
		})
	}
	return list
}

// GetCategories lists the root categories of a supplier
func (o *Orchestrator) GetCategories(ctx context.Context, supplier string, cb types.Callbacks) ([]types.Category, error) {
	s, err := o.Scraper(supplier)
	if err != nil {
		return nil, err
	}
	return s.GetCategories(ctx, cb)
}

// GetSubcategories lists the subcategories of one category of a supplier
func (o *Orchestrator) GetSubcategories(ctx context.Context, supplier string, category types.Category, cb types.Callbacks) ([]types.Collection, error) {
	s, err := o.Scraper(supplier)
	if err != nil {
		return nil, err
	}
	return s.GetSubcategories(ctx, category, cb)
}

// Scrape crawls a supplier and returns the path of the import file
func (o *Orchestrator) Scrape(ctx context.Context, supplier string, req types.ScrapeRequest, cb types.Callbacks) (string, error) {
	s, err := o.Scraper(supplier)
	if err != nil {
		return "", err
	}
	if len(req.Categories) == 0 && req.Options.CollectionURL == "" {
		return "", fmt.Errorf("no category selected for %s", supplier)
	}
	return s.Scrape(ctx, req, cb)
}

// Reprocess extracts again the stored products of a supplier in the given statuses
func (o *Orchestrator) Reprocess(ctx context.Context, supplier string, statuses []types.Status, opts types.ScrapeOptions, cb types.Callbacks) (string, error) {
	s, err := o.Scraper(supplier)
	if err != nil {
		return "", err
	}
	return s.Reprocess(ctx, statuses, opts, cb)
}

// Inspect runs the parsers of a supplier over one page
func (o *Orchestrator) Inspect(ctx context.Context, supplier, url string) (*extractor.Inspection, error) {
	s, err := o.Scraper(supplier)
	if err != nil {
		return nil, err
	}
	return s.Inspect(ctx, url)
}

// Summary counts the stored items of a supplier per status
func (o *Orchestrator) Summary(ctx context.Context, supplier string) (*store.Summary, error) {
	if err := o.known(supplier); err != nil {
		return nil, err
	}
	return o.store.Summary(ctx, supplier)
}

// Items lists the stored items of a supplier
func (o *Orchestrator) Items(ctx context.Context, filter store.Filter) ([]types.ItemStatus, error) {
	if err := o.known(filter.Supplier); err != nil {
		return nil, err
	}
	return o.store.List(ctx, filter)
}

// Runs lists the latest runs of a supplier
func (o *Orchestrator) Runs(ctx context.Context, supplier string, limit int) ([]store.Run, error) {
	if err := o.known(supplier); err != nil {
		return nil, err
	}
	return o.store.Runs(ctx, supplier, limit)
}

// known accepts any registered supplier, even one whose adapter failed to
// build, so stored state stays readable without credentials.
func (o *Orchestrator) known(supplier string) error {
	if !lo.Contains(o.registry.Names(), supplier) {
		return fmt.Errorf("%q: %w", supplier, types.ErrUnknownSupplier)
	}
	return nil
}
