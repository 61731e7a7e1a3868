package adapters

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"shopify-catalog-scraper/internal/types"
	"shopify-catalog-scraper/utils"
)

const (
	ArtigaName           = "artiga"
	artigaDisplayName    = "Artiga"
	artigaDefaultBaseURL = "https://www.artiga.fr"
)

var (
	// PrestaShop product URLs end in /<id>-<slug>.html
	artigaCodeRe = regexp.MustCompile(`/(\d+)-[^/]*\.html`)

	artigaCategoryNames = []string{
		"TOILES AU MÈTRE", "TABLE", "CUISINE", "DÉCO", "BAGAGERIE",
		"ACCESSOIRES", "BAIN & PLAGE", "EXTERIEUR & JARDIN",
	}

	artigaTitleStrategies = []Strategy{
		TextAt(`h1[itemprop="name"]`),
		TextAt("h1.h1"),
		TextAt("h1.product-title"),
		TextAt("h1"),
	}

	artigaDescriptionSelectors = []string{
		"#description .product-description",
		".product-description-short",
		`[itemprop="description"]`,
	}

	artigaPriceStrategies = []Strategy{
		AttrAt(`.current-price [itemprop="price"]`, "content"),
		AttrAt(".current-price span[content]", "content"),
		TextAt("div.current-price span.current-price-display"),
		TextAt(".current-price"),
	}
)

// ArtigaAdapter handles the Artiga PrestaShop catalog. It is public and has a
// subcategory level inside its mega menu.
type ArtigaAdapter struct {
	*BaseAdapter
}

// NewArtigaAdapter creates the Artiga adapter
func NewArtigaAdapter(settings types.SupplierSettings, logger types.Logger) (*ArtigaAdapter, error) {
	return &ArtigaAdapter{
		BaseAdapter: NewBaseAdapter(ArtigaName, artigaDisplayName, artigaDefaultBaseURL, settings, logger),
	}, nil
}

func (a *ArtigaAdapter) RequiresAuth() bool        { return false }
func (a *ArtigaAdapter) HasSubcategoryLevel() bool { return true }

func (a *ArtigaAdapter) LoginForm() types.LoginForm {
	return types.LoginForm{URL: a.BaseURL()}
}

func (a *ArtigaAdapter) Pagination() types.PaginationMarkup {
	return types.PaginationMarkup{
		Container:     "ul.page-list",
		Item:          "li",
		ActiveClass:   "current",
		Link:          "a",
		Next:          []string{`ul.page-list a[rel="next"]`, "ul.page-list a.next"},
		DisabledClass: "disabled",
	}
}

func (a *ArtigaAdapter) PlaceholderImages() []string {
	return []string{"default-large_default", "-default-", "no-image"}
}

// ParseCategories reads the first level of the mega menu, keeping the known sections
func (a *ArtigaAdapter) ParseCategories(doc *goquery.Document) []types.Category {
	var all []types.Category
	doc.Find(`ul#menu li[class*="li-niveau1"]`).Each(func(_ int, li *goquery.Selection) {
		link := li.Find(`a.a-niveau1[data-type="category"]`).First()
		if link.Length() == 0 {
			link = li.Find("a.a-niveau1").First()
		}
		href, _ := link.Attr("href")
		name := utils.CollapseSpaces(link.Text())
		if name == "" || !IsNavigationLink(href) {
			return
		}
		all = append(all, types.Category{Name: name, URL: a.AbsoluteURL(href)})
	})
	all = lo.UniqBy(all, func(c types.Category) string { return c.URL })

	known := lo.Filter(all, func(c types.Category, _ int) bool {
		return lo.SomeBy(artigaCategoryNames, func(n string) bool { return SameName(n, c.Name) })
	})
	if len(known) == 0 && len(all) > 0 {
		a.logger.Warnf("None of the known Artiga sections found in the menu, keeping all %d entries", len(all))
		return all
	}
	return known
}

// ParseSubcategories reads the subcategory columns of the category's menu entry
func (a *ArtigaAdapter) ParseSubcategories(doc *goquery.Document, category types.Category) []types.Collection {
	entry := doc.Find(`ul#menu li[class*="li-niveau1"]`).FilterFunction(func(_ int, li *goquery.Selection) bool {
		link := li.Find("a.a-niveau1").First()
		href, _ := link.Attr("href")
		return SameName(link.Text(), category.Name) || (href != "" && a.AbsoluteURL(href) == category.URL)
	}).First()
	if entry.Length() == 0 {
		return nil
	}

	links := entry.Find(`table.columnWrapTable a[data-type="category"]`)
	if links.Length() == 0 {
		links = entry.Find("table.columnWrapTable a[href]")
	}

	var subs []types.Collection
	links.Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		name := utils.CollapseSpaces(link.Text())
		if name == "" || !IsNavigationLink(href) {
			return
		}
		subs = append(subs, types.Collection{Name: name, URL: a.AbsoluteURL(href), ParentCategory: category.Name})
	})
	return lo.UniqBy(subs, func(c types.Collection) string { return c.URL })
}

// ParseCollections returns nothing, collections come from the menu
func (a *ArtigaAdapter) ParseCollections(doc *goquery.Document, category types.Category) []types.Collection {
	return nil
}

// ParseProductRefs reads the product miniatures of a listing page
func (a *ArtigaAdapter) ParseProductRefs(doc *goquery.Document) []types.ProductRef {
	cards := doc.Find("article.product-miniature")
	if cards.Length() == 0 {
		cards = doc.Find("[data-product-id], [data-id-product]")
	}

	var refs []types.ProductRef
	cards.Each(func(_ int, card *goquery.Selection) {
		link := card.Find("a.product-thumbnail").First()
		if link.Length() == 0 {
			link = card.Find("a[href]").First()
		}
		href, _ := link.Attr("href")
		if href == "" {
			return
		}
		url := a.AbsoluteURL(href)

		code := CodeFromURL(url, artigaCodeRe)
		if code == "" {
			code = lo.Ternary(attr(card, "data-id-product") != "", attr(card, "data-id-product"), attr(card, "data-product-id"))
		}
		if code == "" {
			return
		}

		name, _ := FirstMatch(card, []Strategy{TextAt(".product-title a"), TextAt(".product-title"), AttrAt("img", "alt")})
		image := a.AbsoluteURL(NearestImage(card, 0))
		if IsPlaceholderImage(image, a.PlaceholderImages()) {
			image = ""
		}
		refs = append(refs, types.ProductRef{Code: code, Name: name, URL: url, ImageURL: image})
	})
	return lo.UniqBy(refs, func(r types.ProductRef) string { return r.Code })
}

// ParseProductDetail prefers the JSON-LD block and falls back to the visible markup
func (a *ArtigaAdapter) ParseProductDetail(doc *goquery.Document, ref types.ProductRef) (types.ProductDetail, error) {
	ld, hasLD := ExtractJSONLDProduct(doc)

	title := ld.Name
	if title == "" {
		title, _ = FirstMatch(doc.Selection, artigaTitleStrategies)
	}
	if title == "" {
		return types.ProductDetail{}, fmt.Errorf("product %s: title: %w", ref.Code, types.ErrElementNotFound)
	}

	var description string
	if sel, ok := FirstSelector(doc.Selection, artigaDescriptionSelectors); ok {
		description, _ = doc.Find(sel).First().Html()
		description = strings.TrimSpace(description)
	}
	if description == "" && hasLD {
		description = ld.Description
	}

	var images []string
	doc.Find(".product-images img, .images-container img, .product-cover img").Each(func(_ int, img *goquery.Selection) {
		images = append(images, ImageSource(img))
	})
	if len(images) == 0 {
		images = ld.Images
	}

	return types.ProductDetail{
		FullName:        title,
		DescriptionHTML: description,
		Images:          a.FilterImages(images, a.PlaceholderImages()),
		IsNew:           doc.Find(".product-flags .new, li.product-flag.new").Length() > 0,
	}, nil
}

// ParseVariantOptions reads the first attribute group select
func (a *ArtigaAdapter) ParseVariantOptions(doc *goquery.Document) []types.VariantOption {
	sel := doc.Find(`.product-variants select[name*="group"]`).First()
	if sel.Length() == 0 {
		sel = doc.Find(".product-variants select").First()
	}

	var options []types.VariantOption
	sel.Find("option[value]").Each(func(_ int, opt *goquery.Selection) {
		value := strings.TrimSpace(attr(opt, "value"))
		if value == "" || value == "0" {
			return
		}
		options = append(options, types.VariantOption{Code: value, Label: utils.CollapseSpaces(opt.Text())})
	})
	return lo.UniqBy(options, func(o types.VariantOption) string { return o.Code })
}

// VariantURL selects the combination through the query string
func (a *ArtigaAdapter) VariantURL(productURL, code string) string {
	return SetQueryParam(productURL, "id_product_attribute", code)
}

// ParseVariant reads the price block, references and data sheet of a product page
func (a *ArtigaAdapter) ParseVariant(doc *goquery.Document) (types.Variant, error) {
	price, _ := FirstMatch(doc.Selection, artigaPriceStrategies)
	sku, _ := FirstMatch(doc.Selection, []Strategy{
		TextAt(`.product-reference [itemprop="sku"]`),
		TextAt(".product-reference span"),
		AttrAt(`[itemprop="sku"]`, "content"),
	})
	if price == "" && sku == "" {
		return types.Variant{}, fmt.Errorf("price block: %w", types.ErrElementNotFound)
	}

	sheet := ExtractDefinitionList(doc.Selection, "dl.data-sheet")
	ld, _ := ExtractJSONLDProduct(doc)

	stock := attr(doc.Find(".product-quantities span[data-stock]").First(), "data-stock")

	return types.Variant{
		SKU:            sku,
		Barcode:        lo.Ternary(ld.GTIN != "", ld.GTIN, attr(doc.Find(`[itemprop="gtin13"]`).First(), "content")),
		Price:          utils.ParsePrice(price),
		CompareAtPrice: utils.ParsePrice(doc.Find(".product-discount .regular-price").First().Text()),
		StockQty:       utils.ParseInt(stock),
		Size:           utils.CollapseSpaces(doc.Find(".product-variants select option[selected]").First().Text()),
		Color:          lo.Ternary(sheet["couleur"] != "", sheet["couleur"], sheet["coloris"]),
		Material:       lo.Ternary(sheet["composition"] != "", sheet["composition"], sheet["matiere"]),
	}, nil
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}
