package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopify-catalog-scraper/internal/types"
)

var garnierCategories = []types.Category{
	{Name: "Linge de table", URL: "https://shop.test/products/A1,/", Code: "A1"},
	{Name: "Linge de lit", URL: "https://shop.test/products/A2,/", Code: "A2"},
	{Name: "Décoration", URL: "https://shop.test/products/A8,/", Code: "A8"},
}

func TestSelectCategories(t *testing.T) {
	selected, err := selectCategories(garnierCategories, []string{"linge de TABLE", "decoration", "a2", "Linge de table"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Linge de table", "Décoration", "Linge de lit"}, categoryNames(selected))

	all, err := selectCategories(garnierCategories, nil, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = selectCategories(garnierCategories, []string{"Homewear"}, false)
	assert.ErrorContains(t, err, "Linge de table, Linge de lit, Décoration")
}

func TestFindCategory(t *testing.T) {
	category, err := findCategory(garnierCategories, "Linge de lit")
	require.NoError(t, err)
	assert.Equal(t, "A2", category.Code)

	category, err = findCategory(nil, "https://shop.test/12-table")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.test/12-table", category.URL)
}

func TestParseSubcategoryFlags(t *testing.T) {
	grouped, err := parseSubcategoryFlags([]string{"TABLE/Nappes", " TABLE / Serviettes ", "CUISINE/Tabliers"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"TABLE":   {"Nappes", "Serviettes"},
		"CUISINE": {"Tabliers"},
	}, grouped)

	_, err = parseSubcategoryFlags([]string{"Nappes"})
	assert.Error(t, err)
	_, err = parseSubcategoryFlags([]string{"TABLE/"})
	assert.Error(t, err)
}

func TestSelectSubcategories(t *testing.T) {
	available := []types.Collection{
		{Name: "Nappes", URL: "https://shop.test/31-nappes", ParentCategory: "TABLE"},
		{Name: "Serviettes", URL: "https://shop.test/32-serviettes", ParentCategory: "TABLE"},
	}
	selected, err := selectSubcategories(available, []string{"serviettes"})
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "https://shop.test/32-serviettes", selected[0].URL)

	_, err = selectSubcategories(available, []string{"Plaids"})
	assert.Error(t, err)
}

func TestParseStatuses(t *testing.T) {
	statuses, err := parseStatuses([]string{"error", "partial", "PENDING"})
	require.NoError(t, err)
	assert.Equal(t, []types.Status{types.StatusError, types.StatusPending}, statuses)

	_, err = parseStatuses([]string{"done"})
	assert.Error(t, err)
}
