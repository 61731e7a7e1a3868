package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	verbose bool
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "catalog-scraper",
	Short: "Crawl supplier catalogs into Shopify product import files",
	Long: `catalog-scraper logs into supplier B2B sites, walks their catalogs from
categories down to variants and writes Shopify product import CSV files.
Crawl progress is kept in a local database so interrupted or failed items
can be reprocessed without crawling everything again.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Environment file to load instead of .env")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
