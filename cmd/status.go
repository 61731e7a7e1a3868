package main

import (
	"fmt"
	"io"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"shopify-catalog-scraper/internal/store"
	"shopify-catalog-scraper/internal/types"
)

var statusFlags struct {
	list  []string
	limit int
	runs  int
	json  bool
}

var statusCmd = &cobra.Command{
	Use:   "status SUPPLIER",
	Short: "Show the stored crawl status of a supplier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		supplier := args[0]
		listed, err := parseStatuses(statusFlags.list)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		ctx := cmd.Context()

		summary, err := a.orch.Summary(ctx, supplier)
		if err != nil {
			return err
		}
		runs, err := a.orch.Runs(ctx, supplier, statusFlags.runs)
		if err != nil {
			return err
		}
		var items []types.ItemStatus
		if len(listed) > 0 {
			items, err = a.orch.Items(ctx, store.Filter{Supplier: supplier, Type: types.ItemProduct, Statuses: listed, Limit: statusFlags.limit})
			if err != nil {
				return err
			}
		}

		if statusFlags.json {
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"summary": summary,
				"runs":    runs,
				"items":   items,
			})
		}
		printStatus(cmd.OutOrStdout(), summary, runs, items)
		return nil
	},
}

func printStatus(w io.Writer, summary *store.Summary, runs []store.Run, items []types.ItemStatus) {
	fmt.Fprintln(w, "Products:")
	for _, status := range knownStatuses {
		fmt.Fprintf(w, "  %-10s %d\n", status, summary.Products[status])
	}
	fmt.Fprintln(w, "Variants:")
	for _, status := range knownStatuses {
		fmt.Fprintf(w, "  %-10s %d\n", status, summary.Variants[status])
	}

	if len(runs) > 0 {
		fmt.Fprintln(w, "Runs:")
	}
	for _, run := range runs {
		state := "running"
		if run.Success != nil {
			state = lo.Ternary(*run.Success, "ok", "failed")
		}
		fmt.Fprintf(w, "  %s  %-7s %4d products %4d errors  %s %s\n",
			run.StartedAt.Format(time.DateTime), state, run.Products, run.Errors, run.OutputPath, run.Message)
	}

	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.Code, item.Status, item.Name, item.ErrorMessage)
	}
}

func init() {
	f := statusCmd.Flags()
	f.StringSliceVar(&statusFlags.list, "list", nil, "Also list the products in these statuses")
	f.IntVarP(&statusFlags.limit, "limit", "n", 50, "Maximum number of products listed")
	f.IntVar(&statusFlags.runs, "runs", 5, "Number of recent runs shown")
	f.BoolVar(&statusFlags.json, "json", false, "Print JSON")
	rootCmd.AddCommand(statusCmd)
}
