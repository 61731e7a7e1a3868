package adapters

import (
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopify-catalog-scraper/internal/types"
)

const garnierBase = "https://garnier.test"

func newGarnier(t *testing.T) *GarnierAdapter {
	t.Helper()
	g, err := NewGarnierAdapter(types.SupplierSettings{BaseURL: garnierBase, Username: "C42", Password: "pw"}, logrus.New())
	require.NoError(t, err)
	return g
}

func mustParse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := ParseHTML(html)
	require.NoError(t, err)
	return doc
}

func TestNewGarnierAdapter_MissingCredentials(t *testing.T) {
	_, err := NewGarnierAdapter(types.SupplierSettings{Username: "C42"}, logrus.New())
	assert.ErrorIs(t, err, types.ErrMissingCredentials)
}

func TestGarnier_ParseCategories_FromMenu(t *testing.T) {
	g := newGarnier(t)
	doc := mustParse(t, `<nav><ul>
		<li class="dropdown"><a href="#">Catalogue</a>
			<ul class="dropdown-menu">
				<li><a href="/products/A2,/">Linge de lit</a></li>
				<li><a href="/products/A1,/">LINGE DE TABLE</a></li>
				<li><a href="/panier">Linge de bain</a></li>
				<li><a href="/promo">Promotions</a></li>
			</ul>
		</li></ul></nav>`)

	cats := g.ParseCategories(doc)

	require.Len(t, cats, 2)
	assert.Equal(t, types.Category{Code: "A2", Name: "Linge de lit", URL: garnierBase + "/products/A2,/"}, cats[0])
	assert.Equal(t, "Linge de table", cats[1].Name)
}

func TestGarnier_ParseCategories_Fallback(t *testing.T) {
	g := newGarnier(t)
	cats := g.ParseCategories(mustParse(t, `<html><body><p>maintenance</p></body></html>`))

	require.Len(t, cats, 10)
	assert.Equal(t, "Linge de table", cats[0].Name)
	assert.Equal(t, garnierBase+"/products/A10,/", cats[9].URL)
}

func TestGarnier_ParseCollections(t *testing.T) {
	g := newGarnier(t)
	category := types.Category{Name: "Linge de table", URL: garnierBase + "/products/A1,/"}
	doc := mustParse(t, `<div class="products-grid">
		<div class="card"><h4>51469 - NAPPE MILLE WAX newPA...</h4><a href="/products/A1,G51469/">voir</a></div>
		<div class="card"><h4>TORCHON ALPAGA</h4><a href="/products/A1,G1200/">voir</a>
			<a href="/product-page/?code_vl=99">produit</a></div>
		<div class="card"><a href="/products/A1,/">retour</a></div>
	</div>`)

	cols := g.ParseCollections(doc, category)

	require.Len(t, cols, 2)
	assert.Equal(t, "MILLE WAX", cols[0].Name)
	assert.Equal(t, garnierBase+"/products/A1,G51469/", cols[0].URL)
	assert.Equal(t, "ALPAGA", cols[1].Name)
	assert.Equal(t, "Linge de table", cols[1].ParentCategory)
}

func TestGarnier_ParseProductRefs(t *testing.T) {
	g := newGarnier(t)
	doc := mustParse(t, `<div class="list">
		<div class="item"><img src="/img/51469.jpg">
			<a href="/product-page/?code_vl=51469"><b>51469 - NAPPE MILLE WAX</b></a></div>
		<div class="item"><img src="/img/product-default.jpg">
			<a href="/product-page/?code_vl=51470">Chemin de table</a></div>
		<div class="item"><a href="/product-page/?code_vl=51469">doublon</a></div>
		<div class="item"><a href="/product-page/?code_vl=51471"></a></div>
	</div>`)

	refs := g.ParseProductRefs(doc)

	require.Len(t, refs, 3)
	assert.Equal(t, types.ProductRef{
		Code:     "51469",
		Name:     "NAPPE MILLE WAX",
		URL:      garnierBase + "/product-page/?code_vl=51469",
		ImageURL: garnierBase + "/img/51469.jpg",
	}, refs[0])
	assert.Equal(t, "Chemin de table", refs[1].Name)
	assert.Empty(t, refs[1].ImageURL)
	assert.Equal(t, "Produit 51471", refs[2].Name)
}

const garnierProductPage = `<html><body>
	<div class="product-labels"><span class="label">NEW</span></div>
	<div id="product-carousel">
		<img name="imgzoom" src="/photos/51469-1.jpg">
		<img name="imgzoom" src="/photos/product-default.jpg">
		<img name="imgzoom" src="/photos/51469-1.jpg">
		<img name="imgzoom" data-src="/photos/51469-2.jpg" src="data:image/gif;base64,R0l">
	</div>
	<div class="product-body"><h3>51469 - NAPPE MILLE WAX newPA 45,00 €</h3><p>Nappe en coton.</p><p> </p></div>
	<select id="code_vl_select">
		<option value="/product-page/?code_vl=51469">150x150</option>
		<option value="/product-page/?code_vl=51470">150x250</option>
		<option value="51471">170x300</option>
		<option value="">Choisir</option>
	</select>
	<div class="tabs product-tabs"><table><tbody>
		<tr><td>Référence</td><td>51469-150</td></tr>
		<tr><td>Code EAN13</td><td>3609080000012</td></tr>
		<tr><td>Tarif client conseillé</td><td>59,90 €</td></tr>
		<tr><td>Tarif distributeur :</td><td>29,95 €</td></tr>
		<tr><td>Stock dispo</td><td>12</td></tr>
		<tr><td>Dimensions</td><td>150 x 150 cm</td></tr>
		<tr><td>Couleur</td><td>Multicolore</td></tr>
		<tr><td>Matière</td><td>100% coton</td></tr>
	</tbody></table></div>
</body></html>`

func TestGarnier_ParseProductDetail(t *testing.T) {
	g := newGarnier(t)
	doc := mustParse(t, garnierProductPage)

	detail, err := g.ParseProductDetail(doc, types.ProductRef{Code: "51469"})

	require.NoError(t, err)
	assert.Equal(t, "51469 - NAPPE MILLE WAX newPA 45,00 €", detail.FullName)
	assert.Equal(t, "<p>Nappe en coton.</p>", detail.DescriptionHTML)
	assert.Equal(t, []string{garnierBase + "/photos/51469-1.jpg", garnierBase + "/photos/51469-2.jpg"}, detail.Images)
	assert.True(t, detail.IsNew)
}

func TestGarnier_ParseProductDetail_PlaceholderOnly(t *testing.T) {
	g := newGarnier(t)
	doc := mustParse(t, `<div id="product-carousel"><img name="imgzoom" src="/photos/product-default.jpg"></div>
		<div class="product-body"><h3>TORCHON</h3></div>`)

	detail, err := g.ParseProductDetail(doc, types.ProductRef{Code: "1"})

	require.NoError(t, err)
	assert.Empty(t, detail.Images)
	assert.False(t, detail.IsNew)
}

func TestGarnier_ParseProductDetail_MissingTitle(t *testing.T) {
	g := newGarnier(t)
	_, err := g.ParseProductDetail(mustParse(t, `<div class="product-body"></div>`), types.ProductRef{Code: "1"})
	assert.ErrorIs(t, err, types.ErrElementNotFound)
}

func TestGarnier_Variants(t *testing.T) {
	g := newGarnier(t)
	doc := mustParse(t, garnierProductPage)

	options := g.ParseVariantOptions(doc)
	assert.Equal(t, []types.VariantOption{
		{Code: "51469", Label: "150x150"},
		{Code: "51470", Label: "150x250"},
		{Code: "51471", Label: "170x300"},
	}, options)

	assert.Equal(t, garnierBase+"/product-page/?code_vl=51470",
		g.VariantURL(garnierBase+"/product-page/?code_vl=51469", "51470"))

	variant, err := g.ParseVariant(doc)
	require.NoError(t, err)
	assert.Equal(t, types.Variant{
		SKU:      "51469-150",
		Barcode:  "3609080000012",
		Price:    "59.90",
		Cost:     "29.95",
		StockQty: 12,
		Size:     "150 x 150 cm",
		Color:    "Multicolore",
		Material: "100% coton",
	}, variant)
}

func TestGarnier_ParseVariant_MissingTable(t *testing.T) {
	g := newGarnier(t)
	_, err := g.ParseVariant(mustParse(t, `<div class="product-body"><h3>X</h3></div>`))
	assert.ErrorIs(t, err, types.ErrElementNotFound)
}

func TestGarnier_TitleStrategiesInOrder(t *testing.T) {
	doc := mustParse(t, `<h1 class="product-title">fallback</h1><div class="product-body"><h3>primary</h3></div>`)
	value, strategy := FirstMatch(doc.Selection, garnierTitleStrategies)
	assert.Equal(t, "primary", value)
	assert.Equal(t, "text div.product-body h3", strategy)

	doc = mustParse(t, `<h1 class="product-title">fallback</h1>`)
	value, _ = FirstMatch(doc.Selection, garnierTitleStrategies)
	assert.Equal(t, "fallback", value)
}

func TestFilterImages(t *testing.T) {
	g := newGarnier(t)
	images := g.FilterImages([]string{
		"/img/a.jpg",
		garnierBase + "/img/a.jpg",
		"",
		"/img/no_image.jpg",
		"/img/b.jpg",
	}, []string{"no_image"})

	assert.Equal(t, []string{garnierBase + "/img/a.jpg", garnierBase + "/img/b.jpg"}, images)
	assert.Equal(t, []string{"x", "y"}, RemoveDuplicateURLs([]string{"x", "y", "x"}))
}
