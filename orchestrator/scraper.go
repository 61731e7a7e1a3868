package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"shopify-catalog-scraper/extractor"
	"shopify-catalog-scraper/internal/store"
	"shopify-catalog-scraper/internal/types"
	"shopify-catalog-scraper/session"
	"shopify-catalog-scraper/shopify"
	"shopify-catalog-scraper/utils"
)

// Store is the persistence the orchestrator needs
type Store interface {
	extractor.StatusStore
	Get(ctx context.Context, supplier string, itemType types.ItemType, code string) (*types.ItemStatus, error)
	List(ctx context.Context, filter store.Filter) ([]types.ItemStatus, error)
	Summary(ctx context.Context, supplier string) (*store.Summary, error)
	ResetProcessing(ctx context.Context, supplier string) (int64, error)
	StartRun(ctx context.Context, supplier string) (*store.Run, error)
	FinishRun(ctx context.Context, run *store.Run, runErr error) error
	Runs(ctx context.Context, supplier string, limit int) ([]store.Run, error)
}

// Scraper runs the crawl operations of one supplier. Every operation opens
// its own session and closes it before returning.
type Scraper struct {
	adapter types.SupplierAdapter
	store   Store
	config  *types.Config
	logger  types.Logger
	browser utils.BrowserFactory
	now     func() time.Time
}

// NewScraper creates the scraper of one supplier
func NewScraper(adapter types.SupplierAdapter, store Store, config *types.Config, logger types.Logger, browser utils.BrowserFactory) *Scraper {
	return &Scraper{
		adapter: adapter,
		store:   store,
		config:  config,
		logger:  logger,
		browser: browser,
		now:     time.Now,
	}
}

// Name returns the supplier name
func (s *Scraper) Name() string {
	return s.adapter.Name()
}

// HasSubcategoryLevel reports whether categories split into subcategories
func (s *Scraper) HasSubcategoryLevel() bool {
	return s.adapter.HasSubcategoryLevel()
}

func (s *Scraper) open(headless bool) (*session.Manager, *extractor.Extractor) {
	auth := session.NewAuthenticator(s.adapter, s.config, s.logger, s.browser)
	manager := session.NewManager(auth, s.config, s.logger, headless)
	return manager, extractor.NewExtractor(s.adapter, manager, s.store, s.config, s.logger)
}

// GetCategories lists the root categories. An empty list from a login that
// could not be verified is reported in the logs, not as an error.
func (s *Scraper) GetCategories(ctx context.Context, cb types.Callbacks) ([]types.Category, error) {
	cb = s.mirror(cb)
	manager, ext := s.open(s.config.Headless)
	defer manager.Close()

	cb.ReportProgress(fmt.Sprintf("Loading %s categories", s.adapter.DisplayName()), 0, 1)
	categories, err := ext.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s categories: %w", s.adapter.DisplayName(), err)
	}
	if len(categories) == 0 && !manager.Verified() {
		s.logger.Warnf("No %s category found: %v", s.adapter.DisplayName(), types.ErrNotAuthenticated)
		cb.Logf("No category found and the login could not be verified, check the credentials")
	}
	cb.ReportProgress(fmt.Sprintf("%d categories", len(categories)), 1, 1)
	return categories, nil
}

// GetSubcategories lists the subcategories of a category. Suppliers without
// a subcategory level return nothing without opening a session.
func (s *Scraper) GetSubcategories(ctx context.Context, category types.Category, cb types.Callbacks) ([]types.Collection, error) {
	if !s.adapter.HasSubcategoryLevel() {
		return nil, nil
	}
	cb = s.mirror(cb)
	manager, ext := s.open(s.config.Headless)
	defer manager.Close()

	cb.ReportProgress(fmt.Sprintf("Loading subcategories of %s", category.Name), 0, 1)
	subs, err := ext.Subcategories(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to get subcategories of %s: %w", category.Name, err)
	}
	cb.ReportProgress(fmt.Sprintf("%d subcategories", len(subs)), 1, 1)
	return subs, nil
}

// Inspect runs the adapter parsers over one page of the supplier site
func (s *Scraper) Inspect(ctx context.Context, url string) (*extractor.Inspection, error) {
	manager, ext := s.open(s.config.Headless)
	defer manager.Close()
	return ext.Inspect(ctx, url)
}

// Scrape crawls the request and writes the import file. It returns the file
// path, empty when nothing was extracted. A cancelled crawl still writes the
// products extracted so far and returns ErrCancelled with the path.
func (s *Scraper) Scrape(ctx context.Context, req types.ScrapeRequest, cb types.Callbacks) (path string, err error) {
	cb = s.mirror(cb)
	run, err := s.store.StartRun(ctx, s.Name())
	if err != nil {
		return "", fmt.Errorf("can't start %s crawl: %w", s.Name(), err)
	}
	var result *extractor.Result
	defer func() { s.finishRun(ctx, run, result, path, err) }()

	s.resetInterrupted(ctx)

	manager, ext := s.open(lo.FromPtrOr(req.Options.Headless, s.config.Headless))
	defer manager.Close()
	if err := s.waitForSite(ctx, manager); err != nil {
		return "", err
	}

	result, err = ext.Run(ctx, req, cb)
	if err == nil && req.Options.RetryErrorsAfter && result.NeedsRetry() {
		result, err = s.retryFailed(ctx, ext, result, req.Options, cb)
	}
	return s.export(result, req.Options.Output, err)
}

// Reprocess extracts again the products stored in the given statuses,
// error and pending by default, and writes an import file of them.
func (s *Scraper) Reprocess(ctx context.Context, statuses []types.Status, opts types.ScrapeOptions, cb types.Callbacks) (path string, err error) {
	if len(statuses) == 0 {
		statuses = []types.Status{types.StatusError, types.StatusPending}
	}
	cb = s.mirror(cb)
	run, err := s.store.StartRun(ctx, s.Name())
	if err != nil {
		return "", fmt.Errorf("can't start %s reprocessing: %w", s.Name(), err)
	}
	var result *extractor.Result
	defer func() { s.finishRun(ctx, run, result, path, err) }()

	s.resetInterrupted(ctx)

	items, err := s.reprocessItems(ctx, statuses, opts.Limit)
	if err != nil {
		return "", fmt.Errorf("failed to list products to reprocess: %w", err)
	}
	if len(items) == 0 {
		s.logger.Infof("Nothing to reprocess for %s", s.adapter.DisplayName())
		cb.Logf("Nothing to reprocess")
		return "", nil
	}
	s.logger.Infof("Reprocessing %d %s products in %v", len(items), s.adapter.DisplayName(), statuses)

	targets := lo.Map(items, func(item types.ItemStatus, _ int) extractor.Target {
		return extractor.Target{
			Ref:        types.ProductRef{Code: item.Code, Name: item.Name, URL: item.URL},
			Category:   item.Category,
			Collection: item.Collection,
		}
	})

	manager, ext := s.open(lo.FromPtrOr(opts.Headless, s.config.Headless))
	defer manager.Close()
	if err := s.waitForSite(ctx, manager); err != nil {
		return "", err
	}

	opts.SkipCompleted = false
	result, err = ext.ExtractTargets(ctx, targets, opts, cb)
	if err == nil && opts.RetryErrorsAfter && result.NeedsRetry() {
		result, err = s.retryFailed(ctx, ext, result, opts, cb)
	}
	return s.export(result, opts.Output, err)
}

// reprocessItems lists the products in the given statuses, then the products
// whose variants are in them.
func (s *Scraper) reprocessItems(ctx context.Context, statuses []types.Status, limit int) ([]types.ItemStatus, error) {
	products, err := s.store.List(ctx, store.Filter{Supplier: s.Name(), Type: types.ItemProduct, Statuses: statuses})
	if err != nil {
		return nil, err
	}
	variants, err := s.store.List(ctx, store.Filter{Supplier: s.Name(), Type: types.ItemVariant, Statuses: statuses})
	if err != nil {
		return nil, err
	}

	listed := lo.SliceToMap(products, func(item types.ItemStatus) (string, bool) { return item.Code, true })
	for _, parent := range lo.Uniq(lo.Map(variants, func(v types.ItemStatus, _ int) string { return v.ParentCode })) {
		if parent == "" || listed[parent] {
			continue
		}
		item, err := s.store.Get(ctx, s.Name(), types.ItemProduct, parent)
		if err != nil {
			return nil, err
		}
		if item != nil {
			products = append(products, *item)
			listed[parent] = true
		}
	}

	products = lo.Filter(products, func(item types.ItemStatus, _ int) bool { return item.URL != "" })
	if limit > 0 && len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

// retryFailed extracts once more the products that failed during the pass,
// and the products that kept variants in error. A retried product replaces
// its first extraction.
func (s *Scraper) retryFailed(ctx context.Context, ext *extractor.Extractor, first *extractor.Result, opts types.ScrapeOptions, cb types.Callbacks) (*extractor.Result, error) {
	targets := append(append([]extractor.Target{}, first.Failed...), first.Incomplete...)
	s.logger.Infof("Retrying %d failed %s products", len(targets), s.adapter.DisplayName())
	cb.Logf(fmt.Sprintf("Retrying %d failed products", len(targets)))

	opts.Limit = 0
	opts.SkipCompleted = false
	retry, err := ext.ExtractTargets(ctx, targets, opts, cb)

	retried := lo.KeyBy(retry.Products, func(p types.Product) string { return p.Code })
	products := lo.Map(first.Products, func(p types.Product, _ int) types.Product {
		if again, ok := retried[p.Code]; ok {
			delete(retried, p.Code)
			return again
		}
		return p
	})
	products = append(products, lo.Filter(retry.Products, func(p types.Product, _ int) bool {
		_, ok := retried[p.Code]
		return ok
	})...)

	return &extractor.Result{
		Products:   products,
		Failed:     retry.Failed,
		Incomplete: retry.Incomplete,
		Listed:     first.Listed,
		Reused:     first.Reused + retry.Reused,
	}, err
}

func (s *Scraper) export(result *extractor.Result, output string, runErr error) (string, error) {
	if len(result.Products) == 0 {
		if runErr == nil {
			s.logger.Warnf("No %s product extracted, no import file written", s.adapter.DisplayName())
		}
		return "", runErr
	}

	path := output
	if path == "" {
		path = shopify.OutputPath(s.config.OutputDir, s.Name(), s.now())
	}
	rows := shopify.BuildRows(result.Products, shopify.OptionsFor(s.adapter.DisplayName(), s.adapter.Settings()))
	if err := shopify.WriteFile(path, rows); err != nil {
		if runErr != nil {
			return "", fmt.Errorf("%w (import file not written: %v)", runErr, err)
		}
		return "", err
	}

	s.logger.Infof("Wrote %d rows for %d %s products to %s", len(rows), len(result.Products), s.adapter.DisplayName(), path)
	return path, runErr
}

func (s *Scraper) waitForSite(ctx context.Context, manager *session.Manager) error {
	if s.config.SiteCheckAttempts <= 0 {
		return nil
	}
	return manager.WaitForSite(ctx)
}

// resetInterrupted closes items a dead process left processing. The caller
// holds the run lease, so nothing else can be working on them.
func (s *Scraper) resetInterrupted(ctx context.Context) {
	n, err := s.store.ResetProcessing(ctx, s.Name())
	if err != nil {
		s.logger.Warnf("Failed to reset interrupted %s items: %v", s.Name(), err)
		return
	}
	if n > 0 {
		s.logger.Warnf("%d %s items were left processing by an interrupted run", n, s.Name())
	}
}

func (s *Scraper) finishRun(ctx context.Context, run *store.Run, result *extractor.Result, path string, runErr error) {
	if result != nil {
		run.Products = len(result.Products)
		run.Errors = len(result.Failed) + len(result.Incomplete)
	}
	run.OutputPath = path
	if err := s.store.FinishRun(ctx, run, runErr); err != nil {
		s.logger.Errorf("Failed to finish %s run %s: %v", s.Name(), run.ID, err)
	}
}

// mirror copies every caller log line into the logger
func (s *Scraper) mirror(cb types.Callbacks) types.Callbacks {
	log := cb.Log
	cb.Log = func(message string) {
		s.logger.Infof("[%s] %s", s.Name(), message)
		if log != nil {
			log(message)
		}
	}
	return cb
}
