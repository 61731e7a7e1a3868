package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var categoriesJSON bool

var categoriesCmd = &cobra.Command{
	Use:   "categories SUPPLIER",
	Short: "List the root categories of a supplier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stopping, stop := a.interrupts()
		defer stop()

		categories, err := a.orch.GetCategories(ctx, args[0], a.callbacks(stopping))
		if err != nil {
			return err
		}
		if categoriesJSON {
			return printJSON(cmd.OutOrStdout(), categories)
		}
		for _, c := range categories {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.Name, c.URL)
		}
		return nil
	},
}

func init() {
	categoriesCmd.Flags().BoolVar(&categoriesJSON, "json", false, "Print JSON")
	rootCmd.AddCommand(categoriesCmd)
}
