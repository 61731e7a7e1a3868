package adapters

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopify-catalog-scraper/internal/types"
)

const artigaMenu = `<ul id="menu">
	<li class="li-niveau1 advtm_menu_1"><a class="a-niveau1" data-type="category" href="/12-table">Table</a>
		<table class="columnWrapTable"><tr><td>
			<a data-type="category" href="/31-nappes">Nappes</a>
			<a data-type="category" href="/32-serviettes">Serviettes</a>
			<a data-type="cms" href="/content/guide">Guide</a>
		</td></tr></table>
	</li>
	<li class="li-niveau1 advtm_menu_2"><a class="a-niveau1" data-type="category" href="/14-deco">Déco</a></li>
	<li class="li-niveau1 advtm_menu_3"><a class="a-niveau1" data-type="category" href="/15-soldes">Soldes</a></li>
	<li class="li-niveau1 advtm_menu_4"><a class="a-niveau1" data-type="category" href="/panier">Cuisine</a></li>
</ul>`

func newArtiga(t *testing.T) *ArtigaAdapter {
	t.Helper()
	a, err := NewArtigaAdapter(types.SupplierSettings{BaseURL: "https://artiga.test/"}, logrus.New())
	require.NoError(t, err)
	return a
}

func TestArtiga_Capabilities(t *testing.T) {
	a := newArtiga(t)
	assert.False(t, a.RequiresAuth())
	assert.True(t, a.HasSubcategoryLevel())
	assert.Equal(t, "https://artiga.test", a.BaseURL())
}

func TestArtiga_ParseCategories(t *testing.T) {
	a := newArtiga(t)
	cats := a.ParseCategories(mustParse(t, artigaMenu))

	require.Len(t, cats, 2)
	assert.Equal(t, types.Category{Name: "Table", URL: "https://artiga.test/12-table"}, cats[0])
	assert.Equal(t, "Déco", cats[1].Name)
}

func TestArtiga_ParseSubcategories(t *testing.T) {
	a := newArtiga(t)
	subs := a.ParseSubcategories(mustParse(t, artigaMenu), types.Category{Name: "TABLE", URL: "https://artiga.test/12-table"})

	require.Len(t, subs, 2)
	assert.Equal(t, types.Collection{Name: "Nappes", URL: "https://artiga.test/31-nappes", ParentCategory: "TABLE"}, subs[0])

	assert.Empty(t, a.ParseSubcategories(mustParse(t, artigaMenu), types.Category{Name: "Inconnue"}))
}

func TestArtiga_ParseProductRefs(t *testing.T) {
	a := newArtiga(t)
	doc := mustParse(t, `<div id="products">
		<article class="product-miniature" data-id-product="301">
			<a class="product-thumbnail" href="/nappes/301-nappe-pampelune.html"><img src="/301-home_default/nappe.jpg" alt="Nappe"></a>
			<h2 class="product-title"><a href="/nappes/301-nappe-pampelune.html">Nappe Pampelune</a></h2>
		</article>
		<article class="product-miniature" data-id-product="302">
			<a class="product-thumbnail" href="/nappes/nappe-sans-id"><img src="/img/p/fr-default-home_default.jpg"></a>
			<h2 class="product-title"><a href="#">Nappe Biarritz</a></h2>
		</article>
	</div>`)

	refs := a.ParseProductRefs(doc)

	require.Len(t, refs, 2)
	assert.Equal(t, "301", refs[0].Code)
	assert.Equal(t, "Nappe Pampelune", refs[0].Name)
	assert.Equal(t, "https://artiga.test/301-home_default/nappe.jpg", refs[0].ImageURL)
	assert.Equal(t, "302", refs[1].Code)
	assert.Empty(t, refs[1].ImageURL)
}

func TestArtiga_ProductFromJSONLD(t *testing.T) {
	a := newArtiga(t)
	doc := mustParse(t, `<html><head><script type="application/ld+json">
		{"@context":"https://schema.org","@graph":[{"@type":"BreadcrumbList"},
		{"@type":"Product","name":"Nappe Pampelune","description":"Lin lavé","image":["https://artiga.test/1.jpg"],
		 "sku":"PAMP-150","gtin13":"3700000000011","offers":{"@type":"Offer","price":"89.00"}}]}
	</script></head><body>
		<div class="product-prices"><div class="current-price"><span itemprop="price" content="89">89,00 €</span></div></div>
		<div class="product-reference"><span itemprop="sku">PAMP-150</span></div>
		<div class="product-variants"><select name="group[1]">
			<option value="11" selected>150x150</option><option value="12">150x250</option></select></div>
		<dl class="data-sheet"><dt>Composition</dt><dd>100% lin</dd><dt>Couleur</dt><dd>Bleu</dd></dl>
	</body></html>`)

	detail, err := a.ParseProductDetail(doc, types.ProductRef{Code: "301"})
	require.NoError(t, err)
	assert.Equal(t, "Nappe Pampelune", detail.FullName)
	assert.Equal(t, []string{"https://artiga.test/1.jpg"}, detail.Images)

	options := a.ParseVariantOptions(doc)
	assert.Equal(t, []types.VariantOption{{Code: "11", Label: "150x150"}, {Code: "12", Label: "150x250"}}, options)

	variant, err := a.ParseVariant(doc)
	require.NoError(t, err)
	assert.Equal(t, "89", variant.Price)
	assert.Equal(t, "PAMP-150", variant.SKU)
	assert.Equal(t, "3700000000011", variant.Barcode)
	assert.Equal(t, "150x150", variant.Size)
	assert.Equal(t, "100% lin", variant.Material)
	assert.Equal(t, "Bleu", variant.Color)

	assert.Equal(t, "https://artiga.test/p/301.html?id_product_attribute=12", a.VariantURL("https://artiga.test/p/301.html", "12"))
}
