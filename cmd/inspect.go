package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"shopify-catalog-scraper/extractor"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect SUPPLIER URL",
	Short: "Show what the supplier parsers find on one page",
	Long: `inspect loads one page through the supplier session (logging in when the
supplier requires it) and prints the categories, collections, product links,
pagination and product details the adapter finds there. Use it to check the
selectors after a site change.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, _, stop := a.interrupts()
		defer stop()

		inspection, err := a.orch.Inspect(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if inspectJSON {
			return printJSON(cmd.OutOrStdout(), inspection)
		}
		printInspection(cmd.OutOrStdout(), inspection)
		return nil
	},
}

func printInspection(w io.Writer, in *extractor.Inspection) {
	fmt.Fprintf(w, "=== %s ===\n", in.URL)

	fmt.Fprintf(w, "Categories: %d\n", len(in.Categories))
	for i, c := range in.Categories {
		fmt.Fprintf(w, "  %d: %s -> %s\n", i+1, c.Name, c.URL)
	}
	fmt.Fprintf(w, "Collections: %d\n", len(in.Collections))
	for i, c := range in.Collections {
		fmt.Fprintf(w, "  %d: %s -> %s\n", i+1, c.Name, c.URL)
	}
	fmt.Fprintf(w, "Products: %d\n", len(in.Products))
	for i, p := range in.Products {
		fmt.Fprintf(w, "  %d: [%s] %s -> %s\n", i+1, p.Code, p.Name, p.URL)
	}

	fmt.Fprintf(w, "Pagination: page %d", in.CurrentPage)
	if in.NextControl != nil {
		fmt.Fprintf(w, ", next %d via %q", in.NextPage, in.NextControl.Selector)
	}
	fmt.Fprintln(w)

	if len(in.VariantOptions) > 0 {
		fmt.Fprintf(w, "Variant options: %d\n", len(in.VariantOptions))
		for _, o := range in.VariantOptions {
			fmt.Fprintf(w, "  %s: %s\n", o.Code, o.Label)
		}
	}
	if in.Detail != nil {
		fmt.Fprintf(w, "Product: %s (%d images, new: %t)\n", in.Detail.FullName, len(in.Detail.Images), in.Detail.IsNew)
	} else {
		fmt.Fprintf(w, "Product: %s\n", in.DetailError)
	}
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Print JSON")
	rootCmd.AddCommand(inspectCmd)
}
