package orchestrator

import (
	"fmt"

	"shopify-catalog-scraper/adapters"
	"shopify-catalog-scraper/internal/types"
)

// Registry holds the adapter of every configured supplier. Construction
// errors (missing credentials) are kept and returned on every lookup of that
// supplier, before any network activity.
type Registry struct {
	names    []string
	adapters map[string]types.SupplierAdapter
	errs     map[string]error
}

// NewRegistry builds the adapters of all known suppliers
func NewRegistry(config *types.Config, logger types.Logger) *Registry {
	r := &Registry{
		adapters: map[string]types.SupplierAdapter{},
		errs:     map[string]error{},
	}
	for _, name := range adapters.Names() {
		adapter, err := adapters.New(name, config, logger)
		if err != nil {
			logger.Debugf("Supplier %s unavailable: %v", name, err)
			r.add(name, nil, err)
			continue
		}
		r.add(name, adapter, nil)
	}
	return r
}

// NewRegistryOf builds a registry from ready adapters
func NewRegistryOf(list ...types.SupplierAdapter) *Registry {
	r := &Registry{
		adapters: map[string]types.SupplierAdapter{},
		errs:     map[string]error{},
	}
	for _, adapter := range list {
		r.add(adapter.Name(), adapter, nil)
	}
	return r
}

func (r *Registry) add(name string, adapter types.SupplierAdapter, err error) {
	r.names = append(r.names, name)
	if err != nil {
		r.errs[name] = err
		return
	}
	r.adapters[name] = adapter
}

// Adapter returns the adapter of a supplier
func (r *Registry) Adapter(name string) (types.SupplierAdapter, error) {
	if err, ok := r.errs[name]; ok {
		return nil, err
	}
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, types.ErrUnknownSupplier)
	}
	return adapter, nil
}

// Names lists every supplier, usable or not, in registration order
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Available lists the suppliers whose adapter could be built
func (r *Registry) Available() []string {
	var names []string
	for _, name := range r.names {
		if _, ok := r.adapters[name]; ok {
			names = append(names, name)
		}
	}
	return names
}
