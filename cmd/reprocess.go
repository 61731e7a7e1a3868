package main

import (
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"shopify-catalog-scraper/internal/types"
)

var reprocessFlags struct {
	statuses    []string
	limit       int
	headless    bool
	retryErrors bool
	output      string
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess SUPPLIER",
	Short: "Extract again the stored products in error or pending",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		statuses, err := parseStatuses(reprocessFlags.statuses)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stopping, stop := a.interrupts()
		defer stop()

		opts := types.ScrapeOptions{
			Limit:            reprocessFlags.limit,
			RetryErrorsAfter: reprocessFlags.retryErrors,
			Output:           reprocessFlags.output,
		}
		if cmd.Flags().Changed("headless") {
			opts.Headless = lo.ToPtr(reprocessFlags.headless)
		}

		path, err := a.orch.Reprocess(ctx, args[0], statuses, opts, a.callbacks(stopping))
		return reportOutput(cmd, a, path, err)
	},
}

func init() {
	f := reprocessCmd.Flags()
	f.StringSliceVar(&reprocessFlags.statuses, "status", []string{"error", "pending"}, "Statuses to reprocess")
	f.IntVarP(&reprocessFlags.limit, "limit", "n", 0, "Stop after this many products (0 for no limit)")
	f.BoolVar(&reprocessFlags.headless, "headless", true, "Run the browser headless (defaults to HEADLESS)")
	f.BoolVar(&reprocessFlags.retryErrors, "retry-errors", false, "Retry failed products once at the end")
	f.StringVarP(&reprocessFlags.output, "output", "o", "", "Import file path")
	rootCmd.AddCommand(reprocessCmd)
}
