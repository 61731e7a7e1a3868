package adapters

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"shopify-catalog-scraper/internal/types"
	"shopify-catalog-scraper/utils"
)

// BaseAdapter provides common functionality for supplier adapters.
// Supplier adapters embed it and only describe their own markup.
type BaseAdapter struct {
	name        string
	displayName string
	baseURL     string
	settings    types.SupplierSettings
	logger      types.Logger
}

// NewBaseAdapter creates a base adapter. The configured base URL wins over
// the supplier's default one.
func NewBaseAdapter(name, displayName, defaultBaseURL string, settings types.SupplierSettings, logger types.Logger) *BaseAdapter {
	base := strings.TrimRight(lo.Ternary(settings.BaseURL != "", settings.BaseURL, defaultBaseURL), "/")
	settings.BaseURL = base
	return &BaseAdapter{
		name:        name,
		displayName: displayName,
		baseURL:     base,
		settings:    settings,
		logger:      logger,
	}
}

func (b *BaseAdapter) Name() string                     { return b.name }
func (b *BaseAdapter) DisplayName() string              { return b.displayName }
func (b *BaseAdapter) BaseURL() string                  { return b.baseURL }
func (b *BaseAdapter) Settings() types.SupplierSettings { return b.settings }
func (b *BaseAdapter) CategoriesURL() string            { return b.baseURL }

// ParseHTML parses HTML content into a goquery document
func ParseHTML(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// AbsoluteURL resolves href against the supplier base URL
func (b *BaseAdapter) AbsoluteURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	return utils.ResolveURL(b.baseURL+"/", href)
}

// Strategy is one way of reading a field. Strategies for a field are kept in
// priority order and the first non-empty result wins.
type Strategy struct {
	Name    string
	Extract func(s *goquery.Selection) string
}

// TextAt reads the collapsed text of the first element matching selector
func TextAt(selector string) Strategy {
	return Strategy{
		Name: "text " + selector,
		Extract: func(s *goquery.Selection) string {
			return utils.CollapseSpaces(s.Find(selector).First().Text())
		},
	}
}

// AttrAt reads an attribute of the first element matching selector
func AttrAt(selector, attr string) Strategy {
	return Strategy{
		Name: selector + "@" + attr,
		Extract: func(s *goquery.Selection) string {
			v, _ := s.Find(selector).First().Attr(attr)
			return strings.TrimSpace(v)
		},
	}
}

// FirstMatch runs strategies in order and returns the first non-empty value
// together with the name of the strategy that produced it.
func FirstMatch(s *goquery.Selection, strategies []Strategy) (string, string) {
	for _, st := range strategies {
		if v := st.Extract(s); v != "" {
			return v, st.Name
		}
	}
	return "", ""
}

// FirstSelector returns the first selector of the list matching anything in s
func FirstSelector(s *goquery.Selection, selectors []string) (string, bool) {
	return lo.Find(selectors, func(sel string) bool {
		return s.Find(sel).Length() > 0
	})
}

// NormalizeLabel folds an attribute table label for lookups:
// "Matière :" -> "matiere"
func NormalizeLabel(label string) string {
	label = strings.ToLower(utils.RemoveAccents(utils.CollapseSpaces(label)))
	return strings.TrimSpace(strings.TrimRight(label, ": "))
}

// ExtractAttributeTable reads a two-column key/value table. Keys are
// normalized with NormalizeLabel; the first occurrence of a key wins.
func ExtractAttributeTable(s *goquery.Selection, rowSelector string) map[string]string {
	table := make(map[string]string)
	s.Find(rowSelector).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		if cells.Length() < 2 {
			return
		}
		key := NormalizeLabel(cells.Eq(0).Text())
		if key == "" {
			return
		}
		if _, seen := table[key]; !seen {
			table[key] = utils.CollapseSpaces(cells.Eq(1).Text())
		}
	})
	return table
}

// ExtractDefinitionList reads dt/dd pairs the same way as ExtractAttributeTable
func ExtractDefinitionList(s *goquery.Selection, listSelector string) map[string]string {
	table := make(map[string]string)
	s.Find(listSelector).Find("dt").Each(func(_ int, dt *goquery.Selection) {
		key := NormalizeLabel(dt.Text())
		dd := dt.NextFiltered("dd")
		if key == "" || dd.Length() == 0 {
			return
		}
		if _, seen := table[key]; !seen {
			table[key] = utils.CollapseSpaces(dd.Text())
		}
	})
	return table
}

// ImageSource returns the real source of an img, looking at lazy-load attributes too
func ImageSource(img *goquery.Selection) string {
	for _, attr := range []string{"data-image-large-src", "data-zoom-image", "data-src", "data-lazy-src", "data-original", "src"} {
		if v, ok := img.Attr(attr); ok {
			v = strings.TrimSpace(v)
			if v != "" && !strings.HasPrefix(v, "data:") {
				return v
			}
		}
	}
	return ""
}

// NearestImage looks for an image inside s, then inside up to depth ancestors
func NearestImage(s *goquery.Selection, depth int) string {
	cur := s
	for i := 0; i <= depth && cur.Length() > 0; i++ {
		var found string
		cur.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
			found = ImageSource(img)
			return found == ""
		})
		if found != "" {
			return found
		}
		cur = cur.Parent()
	}
	return ""
}

// IsPlaceholderImage reports whether the image file name matches one of the
// supplier's "no image available" assets.
func IsPlaceholderImage(rawURL string, placeholders []string) bool {
	name := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		name = path.Base(u.Path)
	}
	name = strings.ToLower(name)
	return lo.SomeBy(placeholders, func(p string) bool {
		return strings.Contains(name, strings.ToLower(p))
	})
}

// FilterImages resolves image URLs, drops placeholders and duplicates and
// keeps the original order.
func (b *BaseAdapter) FilterImages(images []string, placeholders []string) []string {
	resolved := lo.FilterMap(images, func(src string, _ int) (string, bool) {
		abs := b.AbsoluteURL(src)
		return abs, abs != "" && !IsPlaceholderImage(abs, placeholders)
	})
	return RemoveDuplicateURLs(resolved)
}

// RemoveDuplicateURLs removes duplicate URLs from a slice
func RemoveDuplicateURLs(urls []string) []string {
	return lo.Uniq(urls)
}

var nonNavigational = []string{"/cart", "/panier", "/checkout", "/commande", "/account", "/mon-compte", "/search", "/recherche", "/contact", "/about", "/blog", "/login", "/connexion"}

// IsNavigationLink reports whether href can lead to catalog content
func IsNavigationLink(href string) bool {
	h := strings.ToLower(strings.TrimSpace(href))
	if h == "" || h == "#" || strings.HasPrefix(h, "#") || strings.HasPrefix(h, "javascript:") || strings.HasPrefix(h, "mailto:") || strings.HasPrefix(h, "tel:") {
		return false
	}
	return !lo.SomeBy(nonNavigational, func(p string) bool {
		return strings.Contains(h, p)
	})
}

// SameName compares names ignoring case, accents and spacing
func SameName(a, b string) bool {
	return NormalizeLabel(a) == NormalizeLabel(b)
}

// CodeFromURL returns the first capture group of re in rawURL
func CodeFromURL(rawURL string, re *regexp.Regexp) string {
	m := re.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// SetQueryParam returns rawURL with key=value set in its query string
func SetQueryParam(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// JSONLDProduct is the subset of a schema.org Product we read
type JSONLDProduct struct {
	Name        string
	Description string
	Images      []string
	SKU         string
	GTIN        string
	Price       string
}

// ExtractJSONLDProduct finds the first schema.org Product in the page's ld+json blocks
func ExtractJSONLDProduct(doc *goquery.Document) (JSONLDProduct, bool) {
	var (
		product JSONLDProduct
		found   bool
	)
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var raw interface{}
		if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
			return true
		}
		obj, ok := findJSONLDProduct(raw)
		if !ok {
			return true
		}
		product = JSONLDProduct{
			Name:        jsonString(obj["name"]),
			Description: jsonString(obj["description"]),
			Images:      jsonStrings(obj["image"]),
			SKU:         jsonString(obj["sku"]),
			GTIN:        jsonString(obj["gtin13"]),
		}
		if product.GTIN == "" {
			product.GTIN = jsonString(obj["gtin"])
		}
		if offers, ok := obj["offers"]; ok {
			if o, ok := firstObject(offers); ok {
				product.Price = utils.ParsePrice(jsonString(o["price"]))
			}
		}
		found = true
		return false
	})
	return product, found
}

func findJSONLDProduct(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		for _, item := range t {
			if obj, ok := findJSONLDProduct(item); ok {
				return obj, true
			}
		}
	case map[string]interface{}:
		if lo.Contains(jsonStrings(t["@type"]), "Product") {
			return t, true
		}
		if graph, ok := t["@graph"]; ok {
			return findJSONLDProduct(graph)
		}
	}
	return nil, false
}

func firstObject(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		return t, true
	case []interface{}:
		if len(t) > 0 {
			return firstObject(t[0])
		}
	}
	return nil, false
}

func jsonString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return fmt.Sprintf("%v", t)
	case map[string]interface{}:
		return jsonString(t["url"])
	}
	return ""
}

func jsonStrings(v interface{}) []string {
	switch t := v.(type) {
	case []interface{}:
		return lo.Compact(lo.Map(t, func(item interface{}, _ int) string { return jsonString(item) }))
	case nil:
		return nil
	}
	if s := jsonString(v); s != "" {
		return []string{s}
	}
	return nil
}

// InnerHTMLOf joins the outer HTML of every element matching selector
func InnerHTMLOf(s *goquery.Selection, selector string) string {
	var parts []string
	s.Find(selector).Each(func(_ int, el *goquery.Selection) {
		if strings.TrimSpace(el.Text()) == "" {
			return
		}
		if html, err := goquery.OuterHtml(el); err == nil {
			parts = append(parts, strings.TrimSpace(html))
		}
	})
	return strings.Join(parts, "\n")
}
