package adapters

import (
	"fmt"

	"shopify-catalog-scraper/internal/types"
)

var (
	_ types.SupplierAdapter = (*GarnierAdapter)(nil)
	_ types.SupplierAdapter = (*ArtigaAdapter)(nil)
	_ types.SupplierAdapter = (*CristelAdapter)(nil)
)

// Names lists the supported suppliers
func Names() []string {
	return []string{GarnierName, ArtigaName, CristelName}
}

// New creates the adapter of a supplier from the configuration
func New(name string, cfg *types.Config, logger types.Logger) (types.SupplierAdapter, error) {
	var (
		adapter types.SupplierAdapter
		err     error
	)
	switch name {
	case GarnierName:
		var g *GarnierAdapter
		if g, err = NewGarnierAdapter(cfg.Garnier, logger); err == nil {
			adapter = g
		}
	case ArtigaName:
		var a *ArtigaAdapter
		if a, err = NewArtigaAdapter(cfg.Artiga, logger); err == nil {
			adapter = a
		}
	case CristelName:
		var c *CristelAdapter
		if c, err = NewCristelAdapter(cfg.Cristel, logger); err == nil {
			adapter = c
		}
	default:
		err = fmt.Errorf("%q: %w", name, types.ErrUnknownSupplier)
	}
	if err != nil {
		return nil, err
	}
	return adapter, nil
}
