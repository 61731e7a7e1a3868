package adapters

import (
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

const (
	CristelName           = "cristel"
	cristelDisplayName    = "Cristel"
	cristelDefaultBaseURL = "https://www.cristel.fr"
)

var (
	cristelCodeRe = regexp.MustCompile(`(\d{3,})(?:\.html?)?/?(?:\?.*)?$`)

	cristelTitleStrategies = []Strategy{
		TextAt("h1.nom_produit"),
		TextAt(`h1[itemprop="name"]`),
		TextAt("h1"),
	}

	cristelCardNameStrategies = []Strategy{
		TextAt(".libelle"),
		TextAt(".nom"),
		TextAt("h2"),
		TextAt("h3"),
		AttrAt("img", "alt"),
	}
)

// CristelAdapter handles the Cristel cookware catalog: public, categories with
// subcategories, listing cards that redirect through a data attribute.
type CristelAdapter struct {
	*BaseAdapter
}

// NewCristelAdapter creates the Cristel adapter
func NewCristelAdapter(settings types.SupplierSettings, logger types.Logger) (*CristelAdapter, error) {
	return &CristelAdapter{
		BaseAdapter: NewBaseAdapter(CristelName, cristelDisplayName, cristelDefaultBaseURL, settings, logger),
	}, nil
}

func (c *CristelAdapter) RequiresAuth() bool        { return false }
func (c *CristelAdapter) HasSubcategoryLevel() bool { return true }

func (c *CristelAdapter) LoginForm() types.LoginForm {
	return types.LoginForm{URL: c.BaseURL()}
}

func (c *CristelAdapter) Pagination() types.PaginationMarkup {
	return types.PaginationMarkup{
		Container:     ".pagination",
		Item:          "li",
		ActiveClass:   "active",
		Link:          "a",
		Next:          []string{`.pagination a[rel="next"]`, ".pagination li.next", ".pagination a.next", "a.suivant"},
		DisabledClass: "disabled",
	}
}

func (c *CristelAdapter) PlaceholderImages() []string {
	return []string{"no-image", "noimage", "image-defaut"}
}

// ParseCategories reads the category list of the main menu
func (c *CristelAdapter) ParseCategories(doc *goquery.Document) []types.Category {
	var categories []types.Category
	doc.Find("ul.liste li.categorie").Each(func(_ int, li *goquery.Selection) {
		link := li.ChildrenFiltered("a").First()
		if link.Length() == 0 {
			link = li.Find("a").First()
		}
		href, _ := link.Attr("href")
		name := utils.CollapseSpaces(link.Text())
		if name == "" || !IsNavigationLink(href) {
			return
		}
		categories = append(categories, types.Category{Name: name, URL: c.AbsoluteURL(href)})
	})
	return lo.UniqBy(categories, func(cat types.Category) string { return cat.URL })
}

// ParseSubcategories reads the subcategory links under the category's menu
// entry, or anywhere on the page when the page is the category page itself.
func (c *CristelAdapter) ParseSubcategories(doc *goquery.Document, category types.Category) []types.Collection {
	scope := doc.Find("ul.liste li.categorie").FilterFunction(func(_ int, li *goquery.Selection) bool {
		link := li.Find("a").First()
		href, _ := link.Attr("href")
		return SameName(link.Text(), category.Name) || (href != "" && c.AbsoluteURL(href) == category.URL)
	}).First()
	if scope.Length() == 0 {
		scope = doc.Selection
	}

	var subs []types.Collection
	scope.Find("ul.sous_categorie a.link_produit").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		name := utils.CollapseSpaces(link.Find("span.libelle").First().Text())
		if name == "" {
			name = utils.CollapseSpaces(link.Text())
		}
		if name == "" || !IsNavigationLink(href) {
			return
		}
		subs = append(subs, types.Collection{Name: name, URL: c.AbsoluteURL(href), ParentCategory: category.Name})
	})
	return lo.UniqBy(subs, func(s types.Collection) string { return s.URL })
}

// ParseCollections returns nothing, collections come from the subcategory lists
func (c *CristelAdapter) ParseCollections(doc *goquery.Document, category types.Category) []types.Collection {
	return nil
}

// ParseProductRefs reads the product cards of a listing page
func (c *CristelAdapter) ParseProductRefs(doc *goquery.Document) []types.ProductRef {
	var refs []types.ProductRef
	doc.Find("div#liste_produits div[data-redirect-url]").Each(func(_ int, card *goquery.Selection) {
		link := c.AbsoluteURL(attr(card, "data-redirect-url"))
		if link == "" {
			return
		}
		code := c.codeFromURL(link)
		if code == "" {
			return
		}
		name, _ := FirstMatch(card, cristelCardNameStrategies)
		image := c.AbsoluteURL(NearestImage(card, 0))
		if IsPlaceholderImage(image, c.PlaceholderImages()) {
			image = ""
		}
		refs = append(refs, types.ProductRef{Code: code, Name: name, URL: link, ImageURL: image})
	})
	return lo.UniqBy(refs, func(r types.ProductRef) string { return r.Code })
}

// codeFromURL uses the trailing reference number, or the last path segment
// when the URL carries none.
func (c *CristelAdapter) codeFromURL(rawURL string) string {
	if code := CodeFromURL(rawURL, cristelCodeRe); code != "" {
		return code
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	seg := path.Base(strings.TrimRight(u.Path, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	return strings.TrimSuffix(seg, path.Ext(seg))
}

func (c *CristelAdapter) ParseProductDetail(doc *goquery.Document, ref types.ProductRef) (types.ProductDetail, error) {
	ld, _ := ExtractJSONLDProduct(doc)

	title := ld.Name
	if title == "" {
		title, _ = FirstMatch(doc.Selection, cristelTitleStrategies)
	}
	if title == "" {
		return types.ProductDetail{}, fmt.Errorf("product %s: title: %w", ref.Code, types.ErrElementNotFound)
	}

	description := InnerHTMLOf(doc.Selection, ".description p, #description p")
	if description == "" {
		description = ld.Description
	}

	var images []string
	doc.Find(".fotorama img, .product-images img, .galerie img, #zoom img").Each(func(_ int, img *goquery.Selection) {
		images = append(images, ImageSource(img))
	})
	images = append(images, ld.Images...)

	return types.ProductDetail{
		FullName:        title,
		DescriptionHTML: description,
		Images:          c.FilterImages(images, c.PlaceholderImages()),
		IsNew:           doc.Find(".nouveau, .badge-new").Length() > 0,
	}, nil
}

func (c *CristelAdapter) ParseVariantOptions(doc *goquery.Document) []types.VariantOption {
	sel := doc.Find(`select#declinaison, select[name*="declinaison"]`).First()

	var options []types.VariantOption
	sel.Find("option[value]").Each(func(_ int, opt *goquery.Selection) {
		value := attr(opt, "value")
		if value == "" {
			return
		}
		options = append(options, types.VariantOption{Code: value, Label: utils.CollapseSpaces(opt.Text())})
	})
	return lo.UniqBy(options, func(o types.VariantOption) string { return o.Code })
}

func (c *CristelAdapter) VariantURL(productURL, code string) string {
	return SetQueryParam(productURL, "declinaison", code)
}

// ParseVariant reads the price, references and the characteristics table
func (c *CristelAdapter) ParseVariant(doc *goquery.Document) (types.Variant, error) {
	ld, _ := ExtractJSONLDProduct(doc)
	table := ExtractAttributeTable(doc.Selection, "table.caracteristiques tr")

	price := ld.Price
	if price == "" {
		raw, _ := FirstMatch(doc.Selection, []Strategy{AttrAt(`[itemprop="price"]`, "content"), TextAt(".prix"), TextAt(".price")})
		price = utils.ParsePrice(raw)
	}
	sku := lo.Ternary(ld.SKU != "", ld.SKU, table["reference"])
	if price == "" && sku == "" && len(table) == 0 {
		return types.Variant{}, fmt.Errorf("price block: %w", types.ErrElementNotFound)
	}

	return types.Variant{
		SKU:      sku,
		Barcode:  lo.Ternary(ld.GTIN != "", ld.GTIN, table["ean"]),
		Price:    price,
		Size:     lo.Ternary(table["dimensions"] != "", table["dimensions"], table["diametre"]),
		Color:    table["couleur"],
		Material: lo.Ternary(table["matiere"] != "", table["matiere"], table["materiau"]),
		StockQty: utils.ParseInt(table["stock"]),
	}, nil
}
