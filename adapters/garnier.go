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
	GarnierName           = "garnier"
	garnierDisplayName    = "Garnier-Thiebaut"
	garnierDefaultBaseURL = "https://garnier-thiebaut.adsi.me"

	// ancestors searched around the "Catalogue" menu entry
	garnierMenuDepth = 10
	// ancestors searched around a product link for its image
	garnierImageDepth = 5
)

var (
	garnierCodeRe     = regexp.MustCompile(`code_vl=(\d+)`)
	garnierCategoryRe = regexp.MustCompile(`/products/([A-Za-z]\d+),`)
	digitsOnlyRe      = regexp.MustCompile(`^\d+$`)

	// known catalog sections, used when the menu cannot be read
	garnierKnownCategories = []types.Category{
		{Code: "A1", Name: "Linge de table"},
		{Code: "A2", Name: "Linge de lit"},
		{Code: "A3", Name: "Linge de bain"},
		{Code: "A4", Name: "Accessoire"},
		{Code: "A5", Name: "Linge d'office"},
		{Code: "A6", Name: "Literie"},
		{Code: "A7", Name: "Linge enfant"},
		{Code: "A8", Name: "Décoration"},
		{Code: "A9", Name: "Homewear"},
		{Code: "A10", Name: "Non reconduit"},
	}

	garnierCardSelector = strings.Join([]string{
		`article[class*="card"]`, `article[class*="gamme"]`, `article[class*="product"]`, `article[class*="item"]`,
		`div[class*="card"]`, `div[class*="gamme"]`, `div[class*="product"]`, `div[class*="item"]`,
	}, ", ")

	garnierTitleStrategies = []Strategy{
		TextAt("div.product-body h3"),
		TextAt("div.product-body h1"),
		TextAt("h1.product-title"),
	}

	garnierCardNameStrategies = []Strategy{
		TextAt("h2"),
		TextAt("h3"),
		TextAt("h4"),
		TextAt(".title"),
		TextAt(".name"),
	}
)

// GarnierAdapter handles the Garnier-Thiebaut B2B catalog. The site needs a
// customer login; categories hold gammes, gammes hold products, and every
// product page lists its variants (sizes) in a select.
type GarnierAdapter struct {
	*BaseAdapter
}

// NewGarnierAdapter creates the Garnier-Thiebaut adapter. It fails when the
// customer credentials are not configured.
func NewGarnierAdapter(settings types.SupplierSettings, logger types.Logger) (*GarnierAdapter, error) {
	if !settings.HasCredentials() {
		return nil, fmt.Errorf("%s: GARNIER_USERNAME and GARNIER_PASSWORD must be set: %w", GarnierName, types.ErrMissingCredentials)
	}
	return &GarnierAdapter{
		BaseAdapter: NewBaseAdapter(GarnierName, garnierDisplayName, garnierDefaultBaseURL, settings, logger),
	}, nil
}

func (g *GarnierAdapter) RequiresAuth() bool        { return true }
func (g *GarnierAdapter) HasSubcategoryLevel() bool { return false }

// LoginForm describes the customer login form
func (g *GarnierAdapter) LoginForm() types.LoginForm {
	return types.LoginForm{
		URL: g.BaseURL(),
		UsernameSelectors: []string{
			`input[placeholder*="Code client"]`,
			`input[placeholder*="email"]`,
			`input[name="code_client"]`,
			`input[name="email"]`,
			`input[type="email"]`,
			`input[type="text"]`,
		},
		PasswordSelectors: []string{`input[type="password"]`},
		SubmitSelectors: []string{
			`button[type="submit"]`,
			`input[type="submit"]`,
			`form button`,
		},
		UsernameField:   "code_client",
		PasswordField:   "password",
		SuccessKeywords: []string{"catalogue", "produit", "déconnexion", "logout"},
		SuccessURLParts: []string{"/products/"},
		LoggedInMarker:  `a[href*="logout"], a[href*="deconnexion"]`,
	}
}

// Pagination describes the bootpag control used on gamme and category pages
func (g *GarnierAdapter) Pagination() types.PaginationMarkup {
	return types.PaginationMarkup{
		Container:     "#page-selection ul.pagination.bootpag",
		Item:          "li[data-lp]:not(.prev):not(.next)",
		PageAttr:      "data-lp",
		ActiveClass:   "active",
		Link:          "a",
		Next:          []string{"#page-selection li.next", "ul.pagination li.next"},
		DisabledClass: "disabled",
	}
}

func (g *GarnierAdapter) PlaceholderImages() []string {
	return []string{"product-default.jpg"}
}

// CategoryURL builds the listing URL of a catalog section code
func (g *GarnierAdapter) CategoryURL(code string) string {
	return fmt.Sprintf("%s/products/%s,/", g.BaseURL(), code)
}

// ParseCategories reads the known sections from the "Catalogue" menu and
// falls back to the static table when the menu markup is not found.
func (g *GarnierAdapter) ParseCategories(doc *goquery.Document) []types.Category {
	anchor := doc.Find("a").FilterFunction(func(_ int, a *goquery.Selection) bool {
		return strings.Contains(NormalizeLabel(a.Text()), "catalogue")
	}).First()

	var found []types.Category
	if anchor.Length() > 0 {
		scope := anchor.Parent()
		for depth := 0; depth < garnierMenuDepth && scope.Length() > 0 && len(found) == 0; depth++ {
			found = g.matchKnownCategories(scope)
			scope = scope.Parent()
		}
	}

	if len(found) == 0 {
		g.logger.Warnf("Catalogue menu not found, using the %d known categories", len(garnierKnownCategories))
		return lo.Map(garnierKnownCategories, func(c types.Category, _ int) types.Category {
			return types.Category{Code: c.Code, Name: c.Name, URL: g.CategoryURL(c.Code)}
		})
	}
	return found
}

func (g *GarnierAdapter) matchKnownCategories(scope *goquery.Selection) []types.Category {
	var found []types.Category
	scope.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		text := utils.CollapseSpaces(a.Text())
		known, ok := lo.Find(garnierKnownCategories, func(c types.Category) bool {
			return SameName(c.Name, text)
		})
		if !ok {
			return
		}
		href, _ := a.Attr("href")
		if !IsNavigationLink(href) {
			return
		}
		code := lo.Ternary(CodeFromURL(href, garnierCategoryRe) != "", CodeFromURL(href, garnierCategoryRe), known.Code)
		found = append(found, types.Category{Code: code, Name: known.Name, URL: g.AbsoluteURL(href)})
	})
	return lo.UniqBy(found, func(c types.Category) string { return c.URL })
}

// ParseSubcategories returns nothing, gammes are read with ParseCollections
func (g *GarnierAdapter) ParseSubcategories(doc *goquery.Document, category types.Category) []types.Collection {
	return nil
}

// ParseCollections reads the gamme cards of a category page
func (g *GarnierAdapter) ParseCollections(doc *goquery.Document, category types.Category) []types.Collection {
	var collections []types.Collection
	doc.Find(garnierCardSelector).Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if garnierCodeRe.MatchString(href) || !(strings.Contains(href, "/products/") || strings.Contains(href, "/product/")) {
			return
		}
		link := g.AbsoluteURL(href)
		if link == category.URL {
			return
		}
		// innermost card around the link
		card := a.Closest(garnierCardSelector)
		raw, _ := FirstMatch(card, garnierCardNameStrategies)
		if raw == "" {
			raw = a.Text()
		}
		name := utils.CleanName(raw)
		if name == "" {
			return
		}
		collections = append(collections, types.Collection{Name: name, URL: link, ParentCategory: category.Name})
	})
	return lo.UniqBy(collections, func(c types.Collection) string { return c.URL })
}

// ParseProductRefs reads the product links of a gamme page
func (g *GarnierAdapter) ParseProductRefs(doc *goquery.Document) []types.ProductRef {
	var refs []types.ProductRef
	doc.Find(`a[href*="/product-page/"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		code := CodeFromURL(href, garnierCodeRe)
		if code == "" {
			return
		}

		name := utils.CollapseSpaces(a.Find("b").First().Text())
		if i := strings.Index(name, " - "); i >= 0 {
			name = strings.TrimSpace(name[i+3:])
		}
		if name == "" {
			name = utils.CleanFullName(a.Text())
		}
		if name == "" {
			name = "Produit " + code
		}

		image := NearestImage(a, garnierImageDepth)
		if image != "" {
			image = g.AbsoluteURL(image)
			if IsPlaceholderImage(image, g.PlaceholderImages()) {
				image = ""
			}
		}

		refs = append(refs, types.ProductRef{Code: code, Name: name, URL: g.AbsoluteURL(href), ImageURL: image})
	})
	return lo.UniqBy(refs, func(r types.ProductRef) string { return r.Code })
}

// ParseProductDetail reads the title, description, images and "new" label of a product page
func (g *GarnierAdapter) ParseProductDetail(doc *goquery.Document, ref types.ProductRef) (types.ProductDetail, error) {
	title, _ := FirstMatch(doc.Selection, garnierTitleStrategies)
	if title == "" {
		return types.ProductDetail{}, fmt.Errorf("product %s: title: %w", ref.Code, types.ErrElementNotFound)
	}

	var images []string
	doc.Find(`div#product-carousel img[name="imgzoom"]`).Each(func(_ int, img *goquery.Selection) {
		images = append(images, ImageSource(img))
	})
	if len(images) == 0 && ref.ImageURL != "" {
		images = append(images, ref.ImageURL)
	}

	isNew := doc.Find("div.product-labels span.label").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return NormalizeLabel(s.Text()) == "new"
	}).Length() > 0

	return types.ProductDetail{
		FullName:        title,
		DescriptionHTML: InnerHTMLOf(doc.Selection, "div.product-body p"),
		Images:          g.FilterImages(images, g.PlaceholderImages()),
		IsNew:           isNew,
	}, nil
}

// ParseVariantOptions reads every variant code of the size select
func (g *GarnierAdapter) ParseVariantOptions(doc *goquery.Document) []types.VariantOption {
	var options []types.VariantOption
	doc.Find("select#code_vl_select option").Each(func(_ int, opt *goquery.Selection) {
		value, _ := opt.Attr("value")
		code := CodeFromURL(value, garnierCodeRe)
		if code == "" && digitsOnlyRe.MatchString(strings.TrimSpace(value)) {
			code = strings.TrimSpace(value)
		}
		if code == "" {
			return
		}
		options = append(options, types.VariantOption{Code: code, Label: utils.CollapseSpaces(opt.Text())})
	})
	return lo.UniqBy(options, func(o types.VariantOption) string { return o.Code })
}

// VariantURL substitutes the variant code in the product URL
func (g *GarnierAdapter) VariantURL(productURL, code string) string {
	return SetQueryParam(productURL, "code_vl", code)
}

// ParseVariant reads the attribute table of a variant page
func (g *GarnierAdapter) ParseVariant(doc *goquery.Document) (types.Variant, error) {
	table := ExtractAttributeTable(doc.Selection, "div.tabs.product-tabs table tbody tr")
	if len(table) == 0 {
		return types.Variant{}, fmt.Errorf("attribute table: %w", types.ErrElementNotFound)
	}

	return types.Variant{
		SKU:      table["reference"],
		Barcode:  table["code ean13"],
		Price:    utils.ParsePrice(table["tarif client conseille"]),
		Cost:     utils.ParsePrice(table["tarif distributeur"]),
		StockQty: utils.ParseInt(table["stock dispo"]),
		Size:     lo.Ternary(table["dimensions"] != "", table["dimensions"], table["taille"]),
		Color:    table["couleur"],
		Material: table["matiere"],
	}, nil
}
