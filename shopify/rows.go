// Package shopify turns extracted products into Shopify product import rows.
package shopify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"shopify-catalog-scraper/internal/types"
	"shopify-catalog-scraper/utils"
)

const (
	ColHandle          = "Handle"
	ColTitle           = "Title"
	ColBody            = "Body (HTML)"
	ColVendor          = "Vendor"
	ColProductCategory = "Product Category"
	ColType            = "Type"
	ColTags            = "Tags"
	ColPublished       = "Published"
	ColOption1Name     = "Option1 Name"
	ColOption1Value    = "Option1 Value"
	ColOption2Name     = "Option2 Name"
	ColOption2Value    = "Option2 Value"
	ColOption3Name     = "Option3 Name"
	ColOption3Value    = "Option3 Value"
	ColSKU             = "Variant SKU"
	ColGrams           = "Variant Grams"
	ColTracker         = "Variant Inventory Tracker"
	ColInventoryQty    = "Variant Inventory Qty"
	ColPolicy          = "Variant Inventory Policy"
	ColFulfillment     = "Variant Fulfillment Service"
	ColPrice           = "Variant Price"
	ColCompareAtPrice  = "Variant Compare At Price"
	ColRequiresShip    = "Variant Requires Shipping"
	ColTaxable         = "Variant Taxable"
	ColBarcode         = "Variant Barcode"
	ColImageSrc        = "Image Src"
	ColImagePosition   = "Image Position"
	ColImageAlt        = "Image Alt Text"
	ColGiftCard        = "Gift Card"
	ColSEOTitle        = "SEO Title"
	ColSEODescription  = "SEO Description"
	ColWeightUnit      = "Variant Weight Unit"
	ColCost            = "Cost per item"
	ColStatus          = "Status"
	ColLocation        = "location"
	ColOnHandNew       = "On hand (new)"
)

// Columns is the Shopify product import header. Extra image columns
// ("Image Src 2", ...) are inserted after "Image Alt Text" when needed.
var Columns = []string{
	ColHandle, ColTitle, ColBody, ColVendor, ColProductCategory, ColType, ColTags, ColPublished,
	ColOption1Name, ColOption1Value, ColOption2Name, ColOption2Value, ColOption3Name, ColOption3Value,
	ColSKU, ColGrams, ColTracker, ColInventoryQty, ColPolicy, ColFulfillment,
	ColPrice, ColCompareAtPrice, ColRequiresShip, ColTaxable, ColBarcode,
	ColImageSrc, ColImagePosition, ColImageAlt,
	ColGiftCard, ColSEOTitle, ColSEODescription,
	"Google Shopping / Google Product Category",
	"Google Shopping / Gender",
	"Google Shopping / Age Group",
	"Google Shopping / MPN",
	"Google Shopping / Condition",
	"Google Shopping / Custom Product",
	"Variant Image", ColWeightUnit, "Variant Tax Code", ColCost,
	"Included / United States", "Price / United States", "Compare At Price / United States",
	"Included / International", "Price / International", "Compare At Price / International",
	ColStatus, ColLocation, ColOnHandNew, "On hand (current)",
}

// Handle sources
const (
	HandleFromTitle   = "title"
	HandleFromSKU     = "sku"
	HandleFromBarcode = "barcode"
	HandleFromCode    = "code"
)

// Row is one line of the import file, keyed by column name
type Row map[string]string

// Options holds the per-supplier export settings
type Options struct {
	Vendor       string
	HandleSource string
	Location     string
}

// OptionsFor derives the export options of a supplier. The vendor defaults
// to the display name upper-cased with hyphens turned into spaces.
func OptionsFor(displayName string, settings types.SupplierSettings) Options {
	vendor := settings.Vendor
	if vendor == "" {
		vendor = strings.ToUpper(strings.ReplaceAll(displayName, "-", " "))
	}
	return Options{
		Vendor:       vendor,
		HandleSource: settings.HandleSource,
		Location:     "Dropshipping " + displayName,
	}
}

// ImageColumns returns the Src, Position and Alt Text columns of the nth image (1-based)
func ImageColumns(n int) (src, position, alt string) {
	if n <= 1 {
		return ColImageSrc, ColImagePosition, ColImageAlt
	}
	return fmt.Sprintf("%s %d", ColImageSrc, n), fmt.Sprintf("%s %d", ColImagePosition, n), fmt.Sprintf("%s %d", ColImageAlt, n)
}

// BuildRows flattens products into import rows: one row per variant, all
// rows of a product sharing its handle. The first row of a product carries
// the product fields and every image, the following rows only the variant
// fields.
func BuildRows(products []types.Product, opts Options) []Row {
	var rows []Row
	handles := map[string]int{}

	for _, product := range products {
		handle := uniqueHandle(handles, Handle(product, opts.HandleSource), product.Code)
		variants := product.Variants
		if len(variants) == 0 {
			variants = []types.Variant{{Code: product.Code}}
		}
		names := optionNames(variants)

		for i, variant := range variants {
			row := variantRow(handle, variant, names, opts)
			if i == 0 {
				fillProduct(row, product, names, opts)
			}
			rows = append(rows, row)
		}
	}
	return NormalizeNulls(rows)
}

// Handle builds the product handle from the chosen source. Any source that
// yields nothing falls back to the product code.
func Handle(product types.Product, source string) string {
	var handle string
	switch strings.ToLower(source) {
	case HandleFromSKU:
		if v, ok := lo.Find(product.Variants, func(v types.Variant) bool { return strings.TrimSpace(v.SKU) != "" }); ok {
			handle = Slugify(v.SKU)
		}
	case HandleFromBarcode:
		if v, ok := lo.Find(product.Variants, func(v types.Variant) bool { return strings.TrimSpace(v.Barcode) != "" }); ok {
			handle = strings.TrimSpace(v.Barcode)
		}
	case HandleFromCode:
	default:
		handle = Slugify(lo.Ternary(product.FullName != "", product.FullName, product.Name))
	}
	if handle == "" {
		handle = Slugify(product.Code)
	}
	return handle
}

// Slugify builds a Shopify handle
func Slugify(s string) string {
	return utils.Slugify(s)
}

// uniqueHandle suffixes a handle already taken with the product code, then
// with a counter until it is unused.
func uniqueHandle(seen map[string]int, handle, code string) string {
	seen[handle]++
	if seen[handle] == 1 {
		return handle
	}
	base := handle + "-" + Slugify(code)
	alt := base
	for n := 2; seen[alt] > 0; n++ {
		alt = fmt.Sprintf("%s-%d", base, n)
	}
	seen[alt]++
	return alt
}

type options struct {
	size, color, material bool
}

func optionNames(variants []types.Variant) options {
	return options{
		size:     lo.SomeBy(variants, func(v types.Variant) bool { return v.Size != "" }),
		color:    lo.SomeBy(variants, func(v types.Variant) bool { return v.Color != "" }),
		material: lo.SomeBy(variants, func(v types.Variant) bool { return v.Material != "" }),
	}
}

// slots lists the option columns in use, in Option1..Option3 order
func (o options) slots() []string {
	var names []string
	if o.size {
		names = append(names, "Taille")
	}
	if o.color {
		names = append(names, "Couleur")
	}
	if o.material {
		names = append(names, "Matière")
	}
	return names
}

var optionColumns = [][2]string{
	{ColOption1Name, ColOption1Value},
	{ColOption2Name, ColOption2Value},
	{ColOption3Name, ColOption3Value},
}

func variantRow(handle string, v types.Variant, names options, opts Options) Row {
	row := Row{
		ColHandle:         handle,
		ColSKU:            lo.Ternary(v.SKU != "", v.SKU, v.Code),
		ColTracker:        "shopify",
		ColPolicy:         "deny",
		ColFulfillment:    "manual",
		ColPrice:          v.Price,
		ColCompareAtPrice: v.CompareAtPrice,
		ColRequiresShip:   "TRUE",
		ColTaxable:        "TRUE",
		ColBarcode:        v.Barcode,
		ColWeightUnit:     "kg",
		ColCost:           v.Cost,
		ColLocation:       opts.Location,
		ColOnHandNew:      strconv.Itoa(v.StockQty),
	}

	values := map[string]string{"Taille": v.Size, "Couleur": v.Color, "Matière": v.Material}
	slots := names.slots()
	if len(slots) == 0 {
		row[ColOption1Value] = "Default Title"
	}
	for i, name := range slots {
		row[optionColumns[i][1]] = values[name]
	}
	return row
}

func fillProduct(row Row, p types.Product, names options, opts Options) {
	title := utils.FormatTitle(lo.Ternary(p.FullName != "", p.FullName, lo.Ternary(p.Name != "", p.Name, p.Code)))

	row[ColTitle] = title
	row[ColBody] = p.DescriptionHTML
	row[ColVendor] = opts.Vendor
	row[ColProductCategory] = p.CollectionName
	row[ColType] = utils.NormalizeType(p.CategoryName)
	row[ColTags] = strings.Join(lo.Compact([]string{p.CategoryName, p.CollectionName}), ", ")
	row[ColPublished] = lo.Ternary(p.IsNew, "FALSE", "TRUE")
	row[ColGiftCard] = "FALSE"
	row[ColStatus] = "active"

	slots := names.slots()
	if len(slots) == 0 {
		row[ColOption1Name] = "Title"
	}
	for i, name := range slots {
		row[optionColumns[i][0]] = name
	}

	for i, image := range p.Images {
		src, position, alt := ImageColumns(i + 1)
		row[src] = image
		row[position] = strconv.Itoa(i + 1)
		row[alt] = title
	}
}

// NormalizeNulls replaces null-like values ("None", "nan", ...) with the
// empty string so the importer never reads them as data.
func NormalizeNulls(rows []Row) []Row {
	for _, row := range rows {
		for col, value := range row {
			row[col] = utils.NormalizeNull(value)
		}
	}
	return rows
}

// Header returns the columns needed for rows: Columns plus the numbered
// image columns of the product with the most images.
func Header(rows []Row) []string {
	maxImages := 1
	for _, row := range rows {
		for n := maxImages + 1; ; n++ {
			src, _, _ := ImageColumns(n)
			if _, ok := row[src]; !ok {
				break
			}
			maxImages = n
		}
	}

	header := make([]string, 0, len(Columns)+3*(maxImages-1))
	for _, col := range Columns {
		header = append(header, col)
		if col != ColImageAlt {
			continue
		}
		for n := 2; n <= maxImages; n++ {
			src, position, alt := ImageColumns(n)
			header = append(header, src, position, alt)
		}
	}
	return header
}
