package main

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"shopify-catalog-scraper/adapters"
	"shopify-catalog-scraper/internal/types"
)

var knownStatuses = []types.Status{types.StatusPending, types.StatusProcessing, types.StatusCompleted, types.StatusError}

// selectCategories picks categories by name or code, every one when all is set
func selectCategories(available []types.Category, names []string, all bool) ([]types.Category, error) {
	if all {
		return available, nil
	}
	var selected []types.Category
	for _, name := range names {
		category, ok := lo.Find(available, func(c types.Category) bool {
			return adapters.SameName(c.Name, name) || (c.Code != "" && strings.EqualFold(c.Code, name))
		})
		if !ok {
			return nil, fmt.Errorf("unknown category %q, available: %s", name, strings.Join(categoryNames(available), ", "))
		}
		selected = append(selected, category)
	}
	return lo.UniqBy(selected, func(c types.Category) string { return c.URL }), nil
}

func categoryNames(categories []types.Category) []string {
	return lo.Map(categories, func(c types.Category, _ int) string { return c.Name })
}

// findCategory resolves a category argument, either a name from the list or a URL
func findCategory(available []types.Category, arg string) (types.Category, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return types.Category{Name: arg, URL: arg}, nil
	}
	selected, err := selectCategories(available, []string{arg}, false)
	if err != nil {
		return types.Category{}, err
	}
	return selected[0], nil
}

// parseSubcategoryFlags groups CATEGORY/SUBCATEGORY selections by category
func parseSubcategoryFlags(values []string) (map[string][]string, error) {
	grouped := map[string][]string{}
	for _, value := range values {
		category, sub, ok := strings.Cut(value, "/")
		category, sub = strings.TrimSpace(category), strings.TrimSpace(sub)
		if !ok || category == "" || sub == "" {
			return nil, fmt.Errorf("subcategory %q must be written CATEGORY/SUBCATEGORY", value)
		}
		grouped[category] = append(grouped[category], sub)
	}
	return grouped, nil
}

// selectSubcategories picks subcategories by name
func selectSubcategories(available []types.Collection, names []string) ([]types.Collection, error) {
	var selected []types.Collection
	for _, name := range names {
		sub, ok := lo.Find(available, func(c types.Collection) bool { return adapters.SameName(c.Name, name) })
		if !ok {
			return nil, fmt.Errorf("unknown subcategory %q", name)
		}
		selected = append(selected, sub)
	}
	return lo.UniqBy(selected, func(c types.Collection) string { return c.URL }), nil
}

// parseStatuses reads status names; "partial" is read as error
func parseStatuses(values []string) ([]types.Status, error) {
	var statuses []types.Status
	for _, value := range values {
		status := types.ParseStatus(value)
		if !lo.Contains(knownStatuses, status) {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return lo.Uniq(statuses), nil
}
