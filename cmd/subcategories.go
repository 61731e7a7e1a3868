package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var subcategoriesJSON bool

var subcategoriesCmd = &cobra.Command{
	Use:   "subcategories SUPPLIER CATEGORY",
	Short: "List the subcategories of a category, given by name or URL",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stopping, stop := a.interrupts()
		defer stop()
		cb := a.callbacks(stopping)

		categories, err := a.orch.GetCategories(ctx, args[0], cb)
		if err != nil {
			return err
		}
		category, err := findCategory(categories, args[1])
		if err != nil {
			return err
		}

		subs, err := a.orch.GetSubcategories(ctx, args[0], category, cb)
		if err != nil {
			return err
		}
		if subcategoriesJSON {
			return printJSON(cmd.OutOrStdout(), subs)
		}
		if len(subs) == 0 {
			a.logger.Infof("%s has no subcategory", category.Name)
		}
		for _, s := range subs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s.Name, s.URL)
		}
		return nil
	},
}

func init() {
	subcategoriesCmd.Flags().BoolVar(&subcategoriesJSON, "json", false, "Print JSON")
	rootCmd.AddCommand(subcategoriesCmd)
}
