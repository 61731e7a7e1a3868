package extractor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"shopify-catalog-scraper/adapters"
	"shopify-catalog-scraper/internal/types"
	"shopify-catalog-scraper/utils"
	"shopify-catalog-scraper/utils/pagetest"
)

const shopBase = "https://shop.test"

// shopAdapter understands the markup produced by the fixture helpers below
type shopAdapter struct {
	*adapters.BaseAdapter
}

func newShopAdapter() *shopAdapter {
	return &shopAdapter{adapters.NewBaseAdapter("shop", "Shop", shopBase, types.SupplierSettings{}, logrus.New())}
}

func (a *shopAdapter) RequiresAuth() bool            { return false }
func (a *shopAdapter) HasSubcategoryLevel() bool     { return false }
func (a *shopAdapter) LoginForm() types.LoginForm    { return types.LoginForm{} }
func (a *shopAdapter) PlaceholderImages() []string   { return []string{"placeholder"} }
func (a *shopAdapter) VariantURL(u, c string) string { return u + "?v=" + c }

func (a *shopAdapter) Pagination() types.PaginationMarkup {
	return types.PaginationMarkup{
		Container:     "ul.pages",
		Item:          "li",
		ActiveClass:   "active",
		Link:          "a",
		Next:          []string{"a.next"},
		DisabledClass: "disabled",
	}
}

func (a *shopAdapter) ParseCategories(doc *goquery.Document) []types.Category {
	var cats []types.Category
	doc.Find("a.cat").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		cats = append(cats, types.Category{Name: s.Text(), URL: a.AbsoluteURL(href)})
	})
	return cats
}

func (a *shopAdapter) ParseSubcategories(*goquery.Document, types.Category) []types.Collection {
	return nil
}

func (a *shopAdapter) ParseCollections(doc *goquery.Document, category types.Category) []types.Collection {
	var cols []types.Collection
	doc.Find("a.gamme").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		cols = append(cols, types.Collection{Name: s.Text(), URL: a.AbsoluteURL(href), ParentCategory: category.Name})
	})
	return cols
}

func (a *shopAdapter) ParseProductRefs(doc *goquery.Document) []types.ProductRef {
	var refs []types.ProductRef
	doc.Find("a.product").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		code, _ := s.Attr("data-code")
		refs = append(refs, types.ProductRef{Code: code, Name: s.Text(), URL: a.AbsoluteURL(href)})
	})
	return refs
}

func (a *shopAdapter) ParseProductDetail(doc *goquery.Document, ref types.ProductRef) (types.ProductDetail, error) {
	title := utils.CollapseSpaces(doc.Find("h1").First().Text())
	if title == "" {
		return types.ProductDetail{}, types.ErrElementNotFound
	}
	var images []string
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		images = append(images, adapters.ImageSource(img))
	})
	return types.ProductDetail{FullName: title, Images: a.FilterImages(images, a.PlaceholderImages())}, nil
}

func (a *shopAdapter) ParseVariantOptions(doc *goquery.Document) []types.VariantOption {
	var options []types.VariantOption
	doc.Find("select#v option").Each(func(_ int, s *goquery.Selection) {
		value, _ := s.Attr("value")
		options = append(options, types.VariantOption{Code: value, Label: s.Text()})
	})
	return options
}

func (a *shopAdapter) ParseVariant(doc *goquery.Document) (types.Variant, error) {
	price := utils.ParsePrice(doc.Find(".price").First().Text())
	if price == "" {
		return types.Variant{}, types.ErrElementNotFound
	}
	return types.Variant{Price: price, SKU: doc.Find(".sku").First().Text(), Size: doc.Find(".size").First().Text()}, nil
}

func productURL(code string) string {
	return shopBase + "/p/" + code
}

// listingPage renders page current of total with the given product codes
func listingPage(current, total int, codes ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="pages">`)
	for i := 1; i <= total; i++ {
		class := ""
		if i == current {
			class = ` class="active"`
		}
		fmt.Fprintf(&b, `<li%s><a href="#page-%d">%d</a></li>`, class, i, i)
	}
	b.WriteString(`</ul>`)
	for _, code := range codes {
		fmt.Fprintf(&b, `<a class="product" data-code="%s" href="/p/%s">Produit %s</a>`, code, code, code)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

// addProduct serves a product page and one page per variant code
func addProduct(site *pagetest.Site, code string, variants ...string) {
	var b strings.Builder
	fmt.Fprintf(&b, `<html><body><h1>4100 - NAPPE %s newPA...</h1>`, strings.ToUpper(code))
	fmt.Fprintf(&b, `<img src="/img/%s.jpg"><img src="/img/placeholder.png">`, code)
	if len(variants) > 0 {
		b.WriteString(`<select id="v">`)
		for _, v := range variants {
			fmt.Fprintf(&b, `<option value="%s">Taille %s</option>`, v, v)
			site.Pages[productURL(code)+"?v="+v] = fmt.Sprintf(`<span class="price">12,50 €</span><span class="sku">SKU-%s</span>`, v)
		}
		b.WriteString(`</select>`)
	} else {
		b.WriteString(`<span class="price">9,90 €</span>`)
	}
	b.WriteString(`</body></html>`)
	site.Pages[productURL(code)] = b.String()
}

// siteSession recreates a page on the fake site whenever the current one died
type siteSession struct {
	site *pagetest.Site
	page *pagetest.Page
}

func newSiteSession(site *pagetest.Site) *siteSession {
	return &siteSession{site: site, page: site.NewPage()}
}

func (s *siteSession) Page() types.Page { return s.page }

func (s *siteSession) Ensure(ctx context.Context) (bool, error) {
	if _, err := s.page.CurrentURL(ctx); err == nil {
		return false, nil
	}
	s.page.Close()
	s.page = s.site.NewPage()
	return true, nil
}

// memStore is an in-memory StatusStore enforcing the status transitions
type memStore struct {
	mu       sync.Mutex
	items    map[string]types.ItemStatus
	products map[string]types.Product
	invalid  []string
}

func newMemStore() *memStore {
	return &memStore{items: map[string]types.ItemStatus{}, products: map[string]types.Product{}}
}

func itemKey(t types.ItemType, code string) string {
	return string(t) + ":" + code
}

func (m *memStore) Discover(ctx context.Context, item types.ItemStatus) (types.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.items[itemKey(item.Type, item.Code)]; ok {
		return cur.Status, nil
	}
	item.Status = types.StatusPending
	m.items[itemKey(item.Type, item.Code)] = item
	return types.StatusPending, nil
}

func (m *memStore) Transition(ctx context.Context, supplier string, itemType types.ItemType, code string, to types.Status, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.items[itemKey(itemType, code)]
	if !types.CanTransition(cur.Status, to) {
		m.invalid = append(m.invalid, fmt.Sprintf("%s %s: %s -> %s", itemType, code, cur.Status, to))
		return fmt.Errorf("invalid transition %s -> %s", cur.Status, to)
	}
	cur.Code, cur.Type, cur.Status, cur.ErrorMessage = code, itemType, to, message
	m.items[itemKey(itemType, code)] = cur
	return nil
}

func (m *memStore) SaveProduct(ctx context.Context, supplier string, product types.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[product.Code] = product
	return nil
}

func (m *memStore) LoadProduct(ctx context.Context, supplier, code string) (*types.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[code]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memStore) status(t types.ItemType, code string) types.ItemStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[itemKey(t, code)]
}

func (m *memStore) count(t types.ItemType, status types.Status) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, item := range m.items {
		if item.Type == t && item.Status == status {
			n++
		}
	}
	return n
}

func testConfig() *types.Config {
	config := types.DefaultConfig()
	config.ScrollPause = 0
	config.PageSettle = 0
	config.MaxScrollIterations = 5
	return config
}

func newTestExtractor(site *pagetest.Site, store *memStore) (*Extractor, *siteSession) {
	session := newSiteSession(site)
	return NewExtractor(newShopAdapter(), session, store, testConfig(), logrus.New()), session
}

func codes(products []types.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.Code)
	}
	return out
}
