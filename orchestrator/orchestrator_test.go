package orchestrator

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopify-catalog-scraper/adapters"
	"shopify-catalog-scraper/internal/store"
	"shopify-catalog-scraper/internal/types"
	"shopify-catalog-scraper/utils/pagetest"
)

const artigaBase = "https://artiga.test"

const artigaMenu = `<html><body><ul id="menu">
	<li class="li-niveau1"><a class="a-niveau1" data-type="category" href="/12-table">TABLE</a>
		<table class="columnWrapTable"><tr><td>
			<a data-type="category" href="/31-nappes">Nappes</a>
			<a data-type="category" href="/32-serviettes">Serviettes</a>
		</td></tr></table>
	</li>
	<li class="li-niveau1"><a class="a-niveau1" data-type="category" href="/14-cuisine">CUISINE</a></li>
	<li class="li-niveau1"><a class="a-niveau1" href="/contact">Contact</a></li>
</ul></body></html>`

func testConfig(t *testing.T) *types.Config {
	config := types.DefaultConfig()
	config.ScrollPause = 0
	config.PageSettle = 0
	config.MaxScrollIterations = 2
	config.SiteCheckAttempts = 0
	config.MaxRetries = 0
	config.OutputDir = t.TempDir()
	return config
}

// artigaListing renders one page of a PrestaShop listing
func artigaListing(current, total int, codes ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="page-list">`)
	for i := 1; i <= total; i++ {
		class := ""
		if i == current {
			class = ` class="current"`
		}
		fmt.Fprintf(&b, `<li%s><a href="?page=%d">%d</a></li>`, class, i, i)
	}
	b.WriteString(`</ul>`)
	for _, code := range codes {
		fmt.Fprintf(&b, `<article class="product-miniature"><a class="product-thumbnail" href="/%s-nappe-%s.html"><img src="/img/%s.jpg"></a><h2 class="product-title"><a>Nappe %s</a></h2></article>`, code, code, code, code)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func artigaProductURL(code string) string {
	return fmt.Sprintf("%s/%s-nappe-%s.html", artigaBase, code, code)
}

func artigaProduct(code string) string {
	return fmt.Sprintf(`<html><body><h1>Nappe %s</h1>
		<div class="product-images"><img src="/img/%s.jpg"></div>
		<div class="current-price"><span itemprop="price" content="39.90">39,90 €</span></div>
		<div class="product-reference"><span itemprop="sku">ART-%s</span></div>
	</body></html>`, code, code, code)
}

// artigaProductWithSizes serves a product page listing sizes and one page per size
func artigaProductWithSizes(site *pagetest.Site, code string, sizes ...string) {
	var b strings.Builder
	fmt.Fprintf(&b, `<html><body><h1>Nappe %s</h1><div class="product-images"><img src="/img/%s.jpg"></div>`, code, code)
	b.WriteString(`<div class="product-variants"><select name="group[1]">`)
	for _, size := range sizes {
		fmt.Fprintf(&b, `<option value="%s">T%s</option>`, size, size)
		site.Pages[artigaVariantURL(code, size)] = artigaProduct(code + "-" + size)
	}
	b.WriteString(`</select></div></body></html>`)
	site.Pages[artigaProductURL(code)] = b.String()
}

func artigaVariantURL(code, size string) string {
	return adapters.SetQueryParam(artigaProductURL(code), "id_product_attribute", size)
}

func handleRows(rows []map[string]string, handle string) int {
	return len(lo.Filter(rows, func(row map[string]string, _ int) bool { return row["Handle"] == handle }))
}

type fixture struct {
	site   *pagetest.Site
	store  *store.Store
	config *types.Config
	orch   *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	config := testConfig(t)
	logger := logrus.New()

	st, err := store.Open(":memory:", config, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	artiga, err := adapters.NewArtigaAdapter(types.SupplierSettings{BaseURL: artigaBase, HandleSource: "title"}, logger)
	require.NoError(t, err)

	site := pagetest.NewSite()
	site.Pages[artigaBase] = artigaMenu
	site.Listings[artigaBase+"/14-cuisine"] = []string{
		artigaListing(1, 2, "101", "102"),
		artigaListing(2, 2, "102", "103"),
	}
	for _, code := range []string{"101", "102", "103"} {
		site.Pages[artigaProductURL(code)] = artigaProduct(code)
	}

	return &fixture{
		site:   site,
		store:  st,
		config: config,
		orch:   New(NewRegistryOf(artiga), st, config, logger, site.Factory()),
	}
}

func cuisine() types.ScrapeRequest {
	return types.ScrapeRequest{Categories: []types.Category{{Name: "CUISINE", URL: artigaBase + "/14-cuisine"}}}
}

func readCSV(t *testing.T, path string) []map[string]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)

	var rows []map[string]string
	for _, record := range records[1:] {
		row := map[string]string{}
		for i, col := range records[0] {
			row[col] = record[i]
		}
		rows = append(rows, row)
	}
	return rows
}

func TestGetCategories(t *testing.T) {
	f := newFixture(t)
	categories, err := f.orch.GetCategories(context.Background(), "artiga", types.Callbacks{})

	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "TABLE", categories[0].Name)
	assert.Equal(t, artigaBase+"/12-table", categories[0].URL)
	assert.Equal(t, "CUISINE", categories[1].Name)
}

func TestGetSubcategories(t *testing.T) {
	f := newFixture(t)
	subs, err := f.orch.GetSubcategories(context.Background(), "artiga", types.Category{Name: "TABLE", URL: artigaBase + "/12-table"}, types.Callbacks{})

	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "Nappes", subs[0].Name)
	assert.Equal(t, artigaBase+"/31-nappes", subs[0].URL)
	assert.Equal(t, "TABLE", subs[0].ParentCategory)
}

func TestScrape_WritesImportFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var logs []string
	path, err := f.orch.Scrape(ctx, "artiga", cuisine(), types.Callbacks{Log: func(m string) { logs = append(logs, m) }})

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.config.OutputDir, "artiga"), filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "shopify_import_artiga_"))
	assert.NotEmpty(t, logs)

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, "nappe-101", rows[0]["Handle"])
	assert.Equal(t, "Nappe 101", rows[0]["Title"])
	assert.Equal(t, "ARTIGA", rows[0]["Vendor"])
	assert.Equal(t, "CUISINE", rows[0]["Type"])
	assert.Equal(t, "39.90", rows[0]["Variant Price"])
	assert.Equal(t, "ART-101", rows[0]["Variant SKU"])
	assert.Equal(t, artigaBase+"/img/101.jpg", rows[0]["Image Src"])
	assert.Equal(t, "nappe-103", rows[2]["Handle"])

	summary, err := f.orch.Summary(ctx, "artiga")
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.Products[types.StatusCompleted])
	assert.Equal(t, int64(3), summary.Variants[types.StatusCompleted])

	runs, err := f.store.Runs(ctx, "artiga", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].Success)
	assert.True(t, *runs[0].Success)
	assert.Equal(t, 3, runs[0].Products)
	assert.Equal(t, path, runs[0].OutputPath)
}

func TestScrape_ExplicitOutputAndLimit(t *testing.T) {
	f := newFixture(t)
	req := cuisine()
	req.Options.Limit = 1
	req.Options.Output = filepath.Join(t.TempDir(), "out", "import.csv")

	path, err := f.orch.Scrape(context.Background(), "artiga", req, types.Callbacks{})

	require.NoError(t, err)
	assert.Equal(t, req.Options.Output, path)
	assert.Len(t, readCSV(t, path), 1)
}

func TestScrape_CancelledWritesPartialFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var mu sync.Mutex
	started := 0
	cb := types.Callbacks{
		Progress: func(message string, _, _ int) {
			mu.Lock()
			defer mu.Unlock()
			if strings.HasPrefix(message, "Product") {
				started++
			}
		},
		Cancel: func() bool {
			mu.Lock()
			defer mu.Unlock()
			return started >= 2
		},
	}

	path, err := f.orch.Scrape(ctx, "artiga", cuisine(), cb)

	assert.ErrorIs(t, err, types.ErrCancelled)
	require.NotEmpty(t, path)
	assert.Len(t, readCSV(t, path), 2)

	third, err := f.store.Get(ctx, "artiga", types.ItemProduct, "103")
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Equal(t, types.StatusPending, third.Status)

	processing, err := f.store.List(ctx, store.Filter{Supplier: "artiga", Statuses: []types.Status{types.StatusProcessing}})
	require.NoError(t, err)
	assert.Empty(t, processing)

	// the lease was released
	run, err := f.store.StartRun(ctx, "artiga")
	require.NoError(t, err)
	require.NoError(t, f.store.FinishRun(ctx, run, nil))
}

func TestScrape_AlreadyRunning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.StartRun(ctx, "artiga")
	require.NoError(t, err)

	_, err = f.orch.Scrape(ctx, "artiga", cuisine(), types.Callbacks{})

	assert.ErrorIs(t, err, types.ErrAlreadyRunning)
	assert.Empty(t, f.site.ReadLog())
}

func TestScrape_RetryErrorsAfter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// product 102 has no title on its first read only
	broken := artigaProductURL("102")
	f.site.Pages[broken] = `<html><body><p>Erreur temporaire</p></body></html>`
	reads := 0
	f.site.Kill = func(op, url string, _ int) bool {
		if op == "html" && url == broken {
			reads++
			if reads == 2 {
				f.site.Pages[broken] = artigaProduct("102")
			}
		}
		return false
	}

	req := cuisine()
	req.Options.RetryErrorsAfter = true
	path, err := f.orch.Scrape(ctx, "artiga", req, types.Callbacks{})

	require.NoError(t, err)
	assert.Len(t, readCSV(t, path), 3)
	item, err := f.store.Get(ctx, "artiga", types.ItemProduct, "102")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, item.Status)
}

func TestScrape_RetryErrorsAfter_FailedVariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	artigaProductWithSizes(f.site, "103", "7", "8")

	// size 8 has no price block on its first read only
	broken := artigaVariantURL("103", "8")
	fixed := f.site.Pages[broken]
	f.site.Pages[broken] = `<html><body><p>Erreur temporaire</p></body></html>`
	reads := 0
	f.site.Kill = func(op, url string, _ int) bool {
		if op == "html" && url == broken {
			reads++
			if reads == 2 {
				f.site.Pages[broken] = fixed
			}
		}
		return false
	}

	req := cuisine()
	req.Options.RetryErrorsAfter = true
	path, err := f.orch.Scrape(ctx, "artiga", req, types.Callbacks{})

	require.NoError(t, err)
	rows := readCSV(t, path)
	assert.Len(t, rows, 4)
	assert.Equal(t, 2, handleRows(rows, "nappe-103"))

	variant, err := f.store.Get(ctx, "artiga", types.ItemVariant, "8")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, variant.Status)
	runs, err := f.store.Runs(ctx, "artiga", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, runs[0].Errors)
}

func TestScrape_FailedVariantStaysInError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	artigaProductWithSizes(f.site, "103", "7", "8")
	f.site.Pages[artigaVariantURL("103", "8")] = `<html><body><p>Erreur</p></body></html>`

	path, err := f.orch.Scrape(ctx, "artiga", cuisine(), types.Callbacks{})

	require.NoError(t, err)
	assert.Equal(t, 1, handleRows(readCSV(t, path), "nappe-103"))
	variant, err := f.store.Get(ctx, "artiga", types.ItemVariant, "8")
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, variant.Status)
	assert.Equal(t, "103", variant.ParentCode)
	runs, err := f.store.Runs(ctx, "artiga", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, runs[0].Errors)
}

func TestScrape_FailedProductStaysInError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.site.Pages[artigaProductURL("102")] = `<html><body><p>Erreur</p></body></html>`

	path, err := f.orch.Scrape(ctx, "artiga", cuisine(), types.Callbacks{})

	require.NoError(t, err)
	assert.Len(t, readCSV(t, path), 2)
	item, err := f.store.Get(ctx, "artiga", types.ItemProduct, "102")
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, item.Status)
	assert.NotEmpty(t, item.ErrorMessage)
}

func TestReprocess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, code := range []string{"101", "102"} {
		_, err := f.store.Discover(ctx, types.ItemStatus{
			Supplier: "artiga", Code: code, Type: types.ItemProduct,
			URL: artigaProductURL(code), Category: "CUISINE",
		})
		require.NoError(t, err)
	}
	require.NoError(t, f.store.Transition(ctx, "artiga", types.ItemProduct, "101", types.StatusProcessing, ""))
	require.NoError(t, f.store.Transition(ctx, "artiga", types.ItemProduct, "101", types.StatusCompleted, ""))

	path, err := f.orch.Reprocess(ctx, "artiga", nil, types.ScrapeOptions{}, types.Callbacks{})

	require.NoError(t, err)
	rows := readCSV(t, path)
	require.Len(t, rows, 1)
	assert.Equal(t, "nappe-102", rows[0]["Handle"])
	assert.NotContains(t, f.site.ReadLog(), artigaProductURL("101"))

	item, err := f.store.Get(ctx, "artiga", types.ItemProduct, "102")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, item.Status)
}

func TestReprocess_ProductWithFailedVariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	artigaProductWithSizes(f.site, "103", "7", "8")

	product := types.ItemStatus{Supplier: "artiga", Code: "103", Type: types.ItemProduct, URL: artigaProductURL("103"), Category: "CUISINE"}
	variant := types.ItemStatus{Supplier: "artiga", Code: "8", Type: types.ItemVariant, URL: artigaVariantURL("103", "8"), ParentCode: "103"}
	for _, item := range []types.ItemStatus{product, variant} {
		_, err := f.store.Discover(ctx, item)
		require.NoError(t, err)
		require.NoError(t, f.store.Transition(ctx, "artiga", item.Type, item.Code, types.StatusProcessing, ""))
	}
	require.NoError(t, f.store.Transition(ctx, "artiga", types.ItemProduct, "103", types.StatusCompleted, ""))
	require.NoError(t, f.store.Transition(ctx, "artiga", types.ItemVariant, "8", types.StatusError, "price block"))

	path, err := f.orch.Reprocess(ctx, "artiga", []types.Status{types.StatusError}, types.ScrapeOptions{SkipCompleted: true}, types.Callbacks{})

	require.NoError(t, err)
	rows := readCSV(t, path)
	assert.Len(t, rows, 2)
	assert.Equal(t, 2, handleRows(rows, "nappe-103"))

	item, err := f.store.Get(ctx, "artiga", types.ItemVariant, "8")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, item.Status)
}

func TestReprocess_NothingToDo(t *testing.T) {
	f := newFixture(t)
	path, err := f.orch.Reprocess(context.Background(), "artiga", []types.Status{types.StatusError}, types.ScrapeOptions{}, types.Callbacks{})

	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, 0, f.site.Sessions)
}

func TestScrape_RequiresSelection(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Scrape(context.Background(), "artiga", types.ScrapeRequest{}, types.Callbacks{})
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry(types.DefaultConfig(), logrus.New())

	_, err := registry.Adapter(adapters.GarnierName)
	assert.ErrorIs(t, err, types.ErrMissingCredentials)

	artiga, err := registry.Adapter(adapters.ArtigaName)
	require.NoError(t, err)
	assert.Equal(t, "artiga", artiga.Name())

	_, err = registry.Adapter("westwing")
	assert.ErrorIs(t, err, types.ErrUnknownSupplier)

	assert.Equal(t, []string{"garnier", "artiga", "cristel"}, registry.Names())
	assert.Equal(t, []string{"artiga", "cristel"}, registry.Available())
}

func TestOrchestrator_MissingCredentialsFailBeforeNetwork(t *testing.T) {
	config := testConfig(t)
	site := pagetest.NewSite()
	orch := New(NewRegistry(config, logrus.New()), nil, config, logrus.New(), site.Factory())

	_, err := orch.GetCategories(context.Background(), "garnier", types.Callbacks{})
	assert.ErrorIs(t, err, types.ErrMissingCredentials)
	assert.Equal(t, 0, site.Sessions)

	suppliers := orch.Suppliers()
	require.Len(t, suppliers, 3)
	assert.NotEmpty(t, suppliers[0].Error)
	assert.True(t, suppliers[1].HasSubcategoryLevel)
}

func TestInspect(t *testing.T) {
	f := newFixture(t)
	inspection, err := f.orch.Inspect(context.Background(), "artiga", artigaBase+"/14-cuisine")

	require.NoError(t, err)
	assert.Len(t, inspection.Products, 2)
	assert.Equal(t, 1, inspection.CurrentPage)
	assert.Equal(t, 2, inspection.NextPage)
	assert.Equal(t, 1, f.site.Sessions)
}

func TestItemsAndRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.orch.Scrape(ctx, "artiga", cuisine(), types.Callbacks{})
	require.NoError(t, err)

	items, err := f.orch.Items(ctx, store.Filter{Supplier: "artiga", Type: types.ItemProduct})
	require.NoError(t, err)
	assert.Len(t, items, 3)

	runs, err := f.orch.Runs(ctx, "artiga", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = f.orch.Runs(ctx, "westwing", 10)
	assert.ErrorIs(t, err, types.ErrUnknownSupplier)
	_, err = f.orch.Items(ctx, store.Filter{Supplier: "westwing"})
	assert.ErrorIs(t, err, types.ErrUnknownSupplier)
}
