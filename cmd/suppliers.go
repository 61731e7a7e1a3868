package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var suppliersJSON bool

var suppliersCmd = &cobra.Command{
	Use:   "suppliers",
	Short: "List the registered suppliers",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		suppliers := a.orch.Suppliers()
		if suppliersJSON {
			return printJSON(cmd.OutOrStdout(), suppliers)
		}
		for _, s := range suppliers {
			if s.Error != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s unavailable: %s\n", s.Name, s.Error)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s (auth: %t, subcategories: %t)\n", s.Name, s.DisplayName, s.RequiresAuth, s.HasSubcategoryLevel)
		}
		return nil
	},
}

func init() {
	suppliersCmd.Flags().BoolVar(&suppliersJSON, "json", false, "Print JSON")
	rootCmd.AddCommand(suppliersCmd)
}
