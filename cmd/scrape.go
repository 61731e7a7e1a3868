package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"shopify-catalog-scraper/adapters"
	"shopify-catalog-scraper/internal/types"
)

var scrapeFlags struct {
	categories    []string
	subcategories []string
	all           bool
	collectionURL string
	limit         int
	headless      bool
	retryErrors   bool
	skipCompleted bool
	output        string
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape SUPPLIER",
	Short: "Crawl categories of a supplier and write a Shopify import file",
	Example: `  catalog-scraper scrape garnier --category "Linge de table"
  catalog-scraper scrape artiga --category TABLE --subcategory TABLE/Nappes --limit 20
  catalog-scraper scrape cristel --collection-url https://www.cristel.com/fr/poeles --category Cuisson`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		supplier := args[0]
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stopping, stop := a.interrupts()
		defer stop()
		cb := a.callbacks(stopping)

		req := types.ScrapeRequest{Options: types.ScrapeOptions{
			Limit:            scrapeFlags.limit,
			RetryErrorsAfter: scrapeFlags.retryErrors,
			SkipCompleted:    scrapeFlags.skipCompleted,
			Output:           scrapeFlags.output,
			CollectionURL:    scrapeFlags.collectionURL,
		}}
		if cmd.Flags().Changed("headless") {
			req.Options.Headless = lo.ToPtr(scrapeFlags.headless)
		}

		if scrapeFlags.collectionURL != "" {
			// the category only names the collection, no menu lookup is needed
			if len(scrapeFlags.categories) > 0 {
				req.Categories = []types.Category{{Name: scrapeFlags.categories[0]}}
			}
		} else if err := selectRequest(ctx, a, supplier, &req, cb); err != nil {
			return err
		}

		path, err := a.orch.Scrape(ctx, supplier, req, cb)
		return reportOutput(cmd, a, path, err)
	},
}

// selectRequest resolves the category and subcategory flags against the site
func selectRequest(ctx context.Context, a *app, supplier string, req *types.ScrapeRequest, cb types.Callbacks) error {
	if !scrapeFlags.all && len(scrapeFlags.categories) == 0 {
		return errors.New("select categories with --category or --all")
	}
	available, err := a.orch.GetCategories(ctx, supplier, cb)
	if err != nil {
		return err
	}
	req.Categories, err = selectCategories(available, scrapeFlags.categories, scrapeFlags.all)
	if err != nil {
		return err
	}
	if len(req.Categories) == 0 {
		return fmt.Errorf("no %s category found", supplier)
	}

	grouped, err := parseSubcategoryFlags(scrapeFlags.subcategories)
	if err != nil {
		return err
	}
	for name, subs := range grouped {
		category, ok := lo.Find(req.Categories, func(c types.Category) bool { return adapters.SameName(c.Name, name) })
		if !ok {
			return fmt.Errorf("subcategories given for %q which is not selected", name)
		}
		available, err := a.orch.GetSubcategories(ctx, supplier, category, cb)
		if err != nil {
			return err
		}
		selected, err := selectSubcategories(available, subs)
		if err != nil {
			return fmt.Errorf("%s: %w", category.Name, err)
		}
		if req.Subcategories == nil {
			req.Subcategories = map[string][]types.Collection{}
		}
		req.Subcategories[category.Name] = selected
	}
	return nil
}

// reportOutput prints the import file path, also when a cancelled crawl
// still wrote the products extracted so far.
func reportOutput(cmd *cobra.Command, a *app, path string, err error) error {
	if path != "" {
		fmt.Fprintln(cmd.OutOrStdout(), path)
	}
	if errors.Is(err, types.ErrCancelled) {
		a.logger.Warnf("Crawl cancelled, %s", lo.Ternary(path == "", "nothing written", "partial import file written"))
	}
	return err
}

func init() {
	f := scrapeCmd.Flags()
	f.StringSliceVarP(&scrapeFlags.categories, "category", "c", nil, "Category name or code to crawl (repeatable)")
	f.StringSliceVarP(&scrapeFlags.subcategories, "subcategory", "s", nil, "Only crawl this CATEGORY/SUBCATEGORY (repeatable)")
	f.BoolVar(&scrapeFlags.all, "all", false, "Crawl every category")
	f.StringVar(&scrapeFlags.collectionURL, "collection-url", "", "Crawl a single collection or subcategory URL")
	f.IntVarP(&scrapeFlags.limit, "limit", "n", 0, "Stop after this many products (0 for no limit)")
	f.BoolVar(&scrapeFlags.headless, "headless", true, "Run the browser headless (defaults to HEADLESS)")
	f.BoolVar(&scrapeFlags.retryErrors, "retry-errors", false, "Retry failed products once at the end of the crawl")
	f.BoolVar(&scrapeFlags.skipCompleted, "skip-completed", false, "Reuse products completed by an earlier run instead of crawling them again")
	f.StringVarP(&scrapeFlags.output, "output", "o", "", "Import file path (default OUTPUT_DIR/<supplier>/shopify_import_<supplier>_<time>.csv)")
	rootCmd.AddCommand(scrapeCmd)
}
