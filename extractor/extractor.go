package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"shopify-catalog-scraper/adapters"
	"shopify-catalog-scraper/internal/types"
	"shopify-catalog-scraper/utils"
)

// Session is the live site session the extractor drives
type Session interface {
	// Page returns nil until the first Ensure
	Page() types.Page
	// Ensure probes the session and recreates it when it is gone. It reports
	// whether a new session was created.
	Ensure(ctx context.Context) (bool, error)
}

// StatusStore persists the crawl status of products and variants
type StatusStore interface {
	// Discover records a pending item unless it already exists, and returns its status
	Discover(ctx context.Context, item types.ItemStatus) (types.Status, error)
	Transition(ctx context.Context, supplier string, itemType types.ItemType, code string, to types.Status, message string) error
	SaveProduct(ctx context.Context, supplier string, product types.Product) error
	LoadProduct(ctx context.Context, supplier, code string) (*types.Product, error)
}

// Target is a product to extract along with where it was found
type Target struct {
	Ref        types.ProductRef
	Category   string
	Collection string
}

// Result is what one extraction run produced
type Result struct {
	Products []types.Product
	// Failed lists the products that ended in error during the run
	Failed []Target
	// Incomplete lists the products extracted with some variants in error
	Incomplete []Target
	Listed     int
	Reused     int
}

// NeedsRetry reports whether some product or variant ended in error
func (r *Result) NeedsRetry() bool {
	return len(r.Failed) > 0 || len(r.Incomplete) > 0
}

// Extractor walks a supplier catalog from categories down to variants
type Extractor struct {
	adapter types.SupplierAdapter
	session Session
	store   StatusStore
	config  *types.Config
	logger  types.Logger
	nav     *Navigator
}

// NewExtractor creates an extractor for one supplier
func NewExtractor(adapter types.SupplierAdapter, session Session, store StatusStore, config *types.Config, logger types.Logger) *Extractor {
	return &Extractor{
		adapter: adapter,
		session: session,
		store:   store,
		config:  config,
		logger:  logger,
		nav:     NewNavigator(adapter.Pagination()),
	}
}

// run holds the state of one extraction call
type run struct {
	opts      types.ScrapeOptions
	callbacks types.Callbacks
	seen      map[string]bool
	attempted int
	result    *Result
}

func (e *Extractor) newRun(opts types.ScrapeOptions, cb types.Callbacks) *run {
	return &run{opts: opts, callbacks: cb, seen: map[string]bool{}, result: &Result{}}
}

func (r *run) cancelled() bool {
	return r.callbacks.Cancelled()
}

func (r *run) limitReached() bool {
	return r.opts.Limit > 0 && r.attempted >= r.opts.Limit
}

// Categories reads the category menu of the supplier
func (e *Extractor) Categories(ctx context.Context) ([]types.Category, error) {
	doc, err := e.loadDocument(ctx, e.adapter.CategoriesURL())
	if err != nil {
		return nil, fmt.Errorf("failed to load categories page: %w", err)
	}
	return e.adapter.ParseCategories(doc), nil
}

// Subcategories reads the subcategories of a category, first from the menu
// page and then from the category page itself.
func (e *Extractor) Subcategories(ctx context.Context, category types.Category) ([]types.Collection, error) {
	if !e.adapter.HasSubcategoryLevel() {
		return nil, nil
	}

	var lastErr error
	for _, url := range lo.Uniq([]string{e.adapter.CategoriesURL(), category.URL}) {
		if url == "" {
			continue
		}
		doc, err := e.loadDocument(ctx, url)
		if err != nil {
			lastErr = err
			e.logger.Warnf("Failed to load %s for subcategories of %s: %v", url, category.Name, err)
			continue
		}
		if subs := e.adapter.ParseSubcategories(doc, category); len(subs) > 0 {
			return subs, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

// Run crawls the requested categories and returns every product extracted.
// On cancellation it returns what was extracted so far along with ErrCancelled.
func (e *Extractor) Run(ctx context.Context, req types.ScrapeRequest, cb types.Callbacks) (*Result, error) {
	r := e.newRun(req.Options, cb)
	startTime := time.Now()
	e.logger.Infof("Starting %s extraction of %d categories", e.adapter.DisplayName(), len(req.Categories))

	if req.Options.CollectionURL != "" {
		category := ""
		if len(req.Categories) > 0 {
			category = req.Categories[0].Name
		}
		collection := types.Collection{Name: category, URL: req.Options.CollectionURL, ParentCategory: category}
		if err := e.crawlCollection(ctx, r, collection); err != nil {
			return r.result, err
		}
		e.logger.Infof("Extraction finished in %v: %d products", time.Since(startTime), len(r.result.Products))
		return r.result, nil
	}

	for i, category := range req.Categories {
		if r.cancelled() {
			return r.result, types.ErrCancelled
		}
		if r.limitReached() {
			break
		}
		r.callbacks.ReportProgress(fmt.Sprintf("Category %s", category.Name), i+1, len(req.Categories))
		r.callbacks.Logf(fmt.Sprintf("Category %s", category.Name))

		collections, err := e.collections(ctx, r, category, req.Subcategories[category.Name])
		if err != nil {
			if errors.Is(err, types.ErrCancelled) {
				return r.result, err
			}
			e.logger.Errorf("Failed to list collections of %s: %v", category.Name, err)
			r.callbacks.Logf(fmt.Sprintf("Category %s skipped: %v", category.Name, err))
			continue
		}
		e.logger.Infof("Category %s: %d collections", category.Name, len(collections))

		for _, collection := range collections {
			if err := e.crawlCollection(ctx, r, collection); err != nil {
				if errors.Is(err, types.ErrCancelled) || ctx.Err() != nil {
					return r.result, err
				}
				e.logger.Errorf("Failed to crawl collection %s: %v", collection.Name, err)
				r.callbacks.Logf(fmt.Sprintf("Collection %s skipped: %v", collection.Name, err))
			}
			if r.limitReached() {
				break
			}
		}
	}

	e.logger.Infof("Extraction finished in %v: %d products, %d errors",
		time.Since(startTime), len(r.result.Products), len(r.result.Failed))
	return r.result, nil
}

// ExtractTargets extracts the given products directly, without walking listings
func (e *Extractor) ExtractTargets(ctx context.Context, targets []Target, opts types.ScrapeOptions, cb types.Callbacks) (*Result, error) {
	r := e.newRun(opts, cb)
	for i, target := range targets {
		if r.cancelled() {
			return r.result, types.ErrCancelled
		}
		if r.limitReached() {
			break
		}
		r.callbacks.ReportProgress(fmt.Sprintf("Product %s", target.Ref.Code), i+1, len(targets))
		if err := e.extractProduct(ctx, r, target); err != nil && (errors.Is(err, types.ErrCancelled) || ctx.Err() != nil) {
			return r.result, err
		}
	}
	return r.result, nil
}

// collections resolves the collections of a category: the caller's selection,
// then the subcategory menu or the collection cards, then the category itself.
func (e *Extractor) collections(ctx context.Context, r *run, category types.Category, selected []types.Collection) ([]types.Collection, error) {
	if len(selected) > 0 {
		return selected, nil
	}

	var collections []types.Collection
	if e.adapter.HasSubcategoryLevel() {
		subs, err := e.Subcategories(ctx, category)
		if err != nil {
			e.logger.Warnf("No subcategories for %s: %v", category.Name, err)
		}
		collections = subs
	} else {
		err := e.walkPages(ctx, r, category.URL, func(doc *goquery.Document, page int) {
			collections = append(collections, e.adapter.ParseCollections(doc, category)...)
		})
		if err != nil {
			return nil, err
		}
		collections = lo.UniqBy(collections, func(c types.Collection) string { return c.URL })
	}

	if len(collections) == 0 {
		return []types.Collection{{Name: category.Name, URL: category.URL, ParentCategory: category.Name}}, nil
	}
	return collections, nil
}

// crawlCollection lists the products of a collection and extracts each one
func (e *Extractor) crawlCollection(ctx context.Context, r *run, collection types.Collection) error {
	var refs []types.ProductRef
	listed := map[string]bool{}
	err := e.walkPages(ctx, r, collection.URL, func(doc *goquery.Document, page int) {
		found := 0
		for _, ref := range e.adapter.ParseProductRefs(doc) {
			if ref.Code == "" || listed[ref.Code] {
				continue
			}
			listed[ref.Code] = true
			refs = append(refs, ref)
			found++
			e.discover(ctx, types.ItemStatus{
				Code: ref.Code, Type: types.ItemProduct, Name: ref.Name, URL: ref.URL,
				Category: collection.ParentCategory, Collection: collection.Name,
			})
		}
		e.logger.Debugf("Collection %s page %d: %d new products", collection.Name, page, found)
	})
	if err != nil && (len(refs) == 0 || errors.Is(err, types.ErrCancelled)) {
		return err
	}
	if err != nil {
		e.logger.Warnf("Listing of %s stopped early, extracting the %d products found: %v", collection.Name, len(refs), err)
	}
	r.result.Listed += len(refs)
	e.logger.Infof("Collection %s: %d products", collection.Name, len(refs))

	for i, ref := range refs {
		if r.cancelled() {
			return types.ErrCancelled
		}
		if r.limitReached() {
			return nil
		}
		if r.seen[ref.Code] {
			continue
		}
		r.callbacks.ReportProgress(fmt.Sprintf("Product %s", ref.Code), i+1, len(refs))
		target := Target{Ref: ref, Category: collection.ParentCategory, Collection: collection.Name}
		if err := e.extractProduct(ctx, r, target); err != nil && (errors.Is(err, types.ErrCancelled) || ctx.Err() != nil) {
			return err
		}
	}
	return nil
}

// walkPages reads every page of a paginated listing in order and calls visit
// once per page. A session lost mid-listing is recreated and the listing is
// replayed up to the page being read, so no page is visited twice.
func (e *Extractor) walkPages(ctx context.Context, r *run, listingURL string, visit func(doc *goquery.Document, page int)) error {
	recoveries := 0
	resume := func(cause error, target int) error {
		for {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if recoveries >= e.config.MaxSessionRecoveries {
				return fmt.Errorf("giving up on %s after %d session recoveries: %w", listingURL, recoveries, cause)
			}
			recreated, err := e.session.Ensure(ctx)
			if err != nil {
				return fmt.Errorf("failed to recreate session: %w", err)
			}
			if !recreated {
				return cause
			}
			recoveries++
			e.logger.Warnf("Session lost on page %d of %s, replaying to resume", target, listingURL)
			if cause = e.replayTo(ctx, listingURL, target); cause == nil {
				return nil
			}
		}
	}

	if err := e.open(ctx, listingURL); err != nil {
		if err := resume(err, 1); err != nil {
			return err
		}
	}

	for page := 1; ; {
		if r.cancelled() {
			return types.ErrCancelled
		}
		doc, err := e.readListing(ctx)
		if err != nil {
			if err := resume(err, page); err != nil {
				return err
			}
			continue
		}
		visit(doc, page)

		next, control := e.nav.NextPage(doc)
		if control == nil {
			return nil
		}
		if page >= e.config.MaxPages {
			e.logger.Warnf("Stopping %s at the %d page cap", listingURL, e.config.MaxPages)
			return nil
		}
		if next != 0 && next != page+1 {
			return fmt.Errorf("pagination of %s jumped from page %d to %d", listingURL, page, next)
		}
		if err := e.session.Page().Click(ctx, *control); err != nil {
			if err := resume(err, page+1); err != nil {
				return err
			}
		}
		page++
	}
}

// replayTo reopens a listing and clicks through it until target is the current page
func (e *Extractor) replayTo(ctx context.Context, listingURL string, target int) error {
	if err := e.open(ctx, listingURL); err != nil {
		return err
	}
	for page := 1; page < target; page++ {
		doc, err := e.readListing(ctx)
		if err != nil {
			return err
		}
		_, control := e.nav.NextPage(doc)
		if control == nil {
			return fmt.Errorf("no control after page %d of %s", page, listingURL)
		}
		if control.Page == 0 {
			control.Page = page + 1
		}
		if err := e.session.Page().Click(ctx, *control); err != nil {
			return err
		}
	}
	return nil
}

// open navigates to url, opening the first session when none exists yet.
// A session lost later is recovered by the callers through Ensure.
func (e *Extractor) open(ctx context.Context, url string) error {
	if e.session.Page() == nil {
		if _, err := e.session.Ensure(ctx); err != nil {
			return err
		}
	}
	return e.session.Page().Navigate(ctx, url)
}

// readListing loads lazy content and parses the current page
func (e *Extractor) readListing(ctx context.Context) (*goquery.Document, error) {
	page := e.session.Page()
	if _, err := ScrollUntilStable(ctx, page, e.config.MaxScrollIterations, e.config.ScrollPause, e.logger); err != nil {
		return nil, err
	}
	return e.currentDocument(ctx)
}

func (e *Extractor) currentDocument(ctx context.Context) (*goquery.Document, error) {
	html, err := e.session.Page().HTML(ctx)
	if err != nil {
		return nil, err
	}
	return adapters.ParseHTML(html)
}

// loadDocument navigates to a page and parses it, recreating the session
// when it is lost on the way.
func (e *Extractor) loadDocument(ctx context.Context, url string) (*goquery.Document, error) {
	var lastErr error
	for attempt := 0; attempt <= e.config.MaxSessionRecoveries; attempt++ {
		err := e.open(ctx, url)
		if err == nil {
			var doc *goquery.Document
			if doc, err = e.currentDocument(ctx); err == nil {
				return doc, nil
			}
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		recreated, ensureErr := e.session.Ensure(ctx)
		if ensureErr != nil {
			return nil, fmt.Errorf("failed to recreate session: %w", ensureErr)
		}
		if !recreated {
			return nil, err
		}
		e.logger.Warnf("Session lost while loading %s, retrying", url)
	}
	return nil, lastErr
}

// extractProduct extracts one product with its variants and records its status
func (e *Extractor) extractProduct(ctx context.Context, r *run, target Target) error {
	ref := target.Ref
	r.seen[ref.Code] = true

	item := types.ItemStatus{
		Code: ref.Code, Type: types.ItemProduct, Name: ref.Name, URL: ref.URL,
		Category: target.Category, Collection: target.Collection,
	}
	status := e.discover(ctx, item)
	if r.opts.SkipCompleted && status == types.StatusCompleted {
		if p, err := e.store.LoadProduct(ctx, e.adapter.Name(), ref.Code); err == nil && p != nil {
			r.result.Products = append(r.result.Products, *p)
			r.result.Reused++
			return nil
		}
	}

	r.attempted++
	e.begin(ctx, item, status)

	product, failedVariants, err := e.buildProduct(ctx, r, target)
	if err != nil {
		e.finish(ctx, item, err)
		r.result.Failed = append(r.result.Failed, target)
		e.logger.Warnf("Product %s failed: %v", ref.Code, err)
		r.callbacks.Logf(fmt.Sprintf("Product %s failed: %v", ref.Code, err))
		return err
	}

	if err := e.store.SaveProduct(ctx, e.adapter.Name(), product); err != nil {
		e.logger.Warnf("Failed to save snapshot of %s: %v", ref.Code, err)
	}
	e.finish(ctx, item, nil)
	r.result.Products = append(r.result.Products, product)
	if failedVariants > 0 {
		r.result.Incomplete = append(r.result.Incomplete, target)
		r.callbacks.Logf(fmt.Sprintf("Product %s extracted with %d variants, %d failed", ref.Code, len(product.Variants), failedVariants))
		return nil
	}
	r.callbacks.Logf(fmt.Sprintf("Product %s extracted with %d variants", ref.Code, len(product.Variants)))
	return nil
}

func (e *Extractor) buildProduct(ctx context.Context, r *run, target Target) (types.Product, int, error) {
	ref := target.Ref
	doc, err := e.loadDocument(ctx, ref.URL)
	if err != nil {
		return types.Product{}, 0, err
	}
	detail, err := e.adapter.ParseProductDetail(doc, ref)
	if err != nil {
		return types.Product{}, 0, err
	}

	product := types.Product{
		Code:            ref.Code,
		Name:            utils.CleanName(detail.FullName),
		FullName:        utils.CleanFullName(detail.FullName),
		DescriptionHTML: detail.DescriptionHTML,
		Images:          detail.Images,
		CategoryName:    target.Category,
		CollectionName:  target.Collection,
		URL:             ref.URL,
		IsNew:           detail.IsNew,
	}
	if product.Name == "" {
		product.Name = utils.CleanName(ref.Name)
	}

	options := e.adapter.ParseVariantOptions(doc)
	if len(options) == 0 {
		variant, err := e.adapter.ParseVariant(doc)
		if err != nil {
			e.logger.Debugf("Product %s has no variant block: %v", ref.Code, err)
		}
		variant.Code = ref.Code
		variant.SourceURL = ref.URL
		item := e.variantItem(ref, variant.Code)
		e.begin(ctx, item, e.discover(ctx, item))
		e.finish(ctx, item, nil)
		product.Variants = []types.Variant{variant}
		return product, 0, nil
	}

	failed := 0
	for i, option := range options {
		if r.cancelled() {
			return types.Product{}, 0, types.ErrCancelled
		}
		r.callbacks.ReportProgress(fmt.Sprintf("Variant %s", option.Code), i+1, len(options))
		variant, err := e.extractVariant(ctx, ref, doc, option)
		if err != nil {
			if ctx.Err() != nil {
				return types.Product{}, 0, ctx.Err()
			}
			failed++
			continue
		}
		product.Variants = append(product.Variants, variant)
	}
	if len(product.Variants) == 0 {
		return types.Product{}, failed, types.ErrNoVariants
	}
	return product, failed, nil
}

func (e *Extractor) extractVariant(ctx context.Context, ref types.ProductRef, productDoc *goquery.Document, option types.VariantOption) (types.Variant, error) {
	item := e.variantItem(ref, option.Code)
	e.begin(ctx, item, e.discover(ctx, item))

	url := e.adapter.VariantURL(ref.URL, option.Code)
	doc := productDoc
	if url != ref.URL {
		var err error
		if doc, err = e.loadDocument(ctx, url); err != nil {
			e.finish(ctx, item, err)
			return types.Variant{}, err
		}
	}

	variant, err := e.adapter.ParseVariant(doc)
	if err != nil {
		e.finish(ctx, item, err)
		e.logger.Warnf("Variant %s of %s failed: %v", option.Code, ref.Code, err)
		return types.Variant{}, err
	}
	variant.Code = option.Code
	variant.SourceURL = url
	if variant.Size == "" {
		variant.Size = option.Label
	}
	e.finish(ctx, item, nil)
	return variant, nil
}

func (e *Extractor) variantItem(ref types.ProductRef, code string) types.ItemStatus {
	return types.ItemStatus{Code: code, Type: types.ItemVariant, URL: e.adapter.VariantURL(ref.URL, code), ParentCode: ref.Code}
}

// discover records the item as pending when first seen and returns its current status
func (e *Extractor) discover(ctx context.Context, item types.ItemStatus) types.Status {
	item.Supplier = e.adapter.Name()
	item.Status = types.StatusPending
	status, err := e.store.Discover(ctx, item)
	if err != nil {
		e.logger.Warnf("Failed to record %s %s: %v", item.Type, item.Code, err)
		return types.StatusPending
	}
	return status
}

// begin moves the item to processing. An item left processing by an
// interrupted run is closed as an error first.
func (e *Extractor) begin(ctx context.Context, item types.ItemStatus, current types.Status) {
	if current == types.StatusProcessing {
		e.transition(ctx, item, types.StatusError, "interrupted")
	}
	e.transition(ctx, item, types.StatusProcessing, "")
}

// finish records the outcome of an item
func (e *Extractor) finish(ctx context.Context, item types.ItemStatus, cause error) {
	if cause == nil {
		e.transition(ctx, item, types.StatusCompleted, "")
		return
	}
	e.transition(ctx, item, types.StatusError, cause.Error())
}

func (e *Extractor) transition(ctx context.Context, item types.ItemStatus, to types.Status, message string) {
	// status writes outlive a cancelled crawl context
	ctx = context.WithoutCancel(ctx)
	if err := e.store.Transition(ctx, e.adapter.Name(), item.Type, item.Code, to, message); err != nil {
		e.logger.Warnf("Failed to mark %s %s %s: %v", item.Type, item.Code, to, err)
	}
}
