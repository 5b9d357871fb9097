// Package providers defines the polymorphic provider contract, the typed
// error taxonomy and the guard every upstream adapter runs behind.
package providers

import (
	"context"

	"github.com/tickerlens/tickerlens/internal/finance"
	"github.com/tickerlens/tickerlens/internal/query"
)

// Provider is the capability contract for one upstream. The federation
// engine never consults a provider whose Supports or Enabled says no.
type Provider interface {
	ID() string
	DisplayName() string
	Supports(intent finance.Intent) bool
	Enabled() bool
	Fetch(ctx context.Context, q query.Query) (*finance.Result, error)
}

// Registry holds providers in federation order.
type Registry struct {
	ordered []Provider
	byID    map[string]Provider
}

// NewRegistry builds a registry preserving the given order.
func NewRegistry(list ...Provider) *Registry {
	r := &Registry{byID: make(map[string]Provider, len(list))}
	for _, p := range list {
		if p == nil {
			continue
		}
		r.ordered = append(r.ordered, p)
		r.byID[p.ID()] = p
	}
	return r
}

// All returns providers in federation order.
func (r *Registry) All() []Provider {
	return append([]Provider(nil), r.ordered...)
}

// Get looks up a provider by id.
func (r *Registry) Get(id string) (Provider, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Eligible filters to providers that support the intent and are enabled,
// preserving order.
func (r *Registry) Eligible(intent finance.Intent) []Provider {
	var out []Provider
	for _, p := range r.ordered {
		if p.Supports(intent) && p.Enabled() {
			out = append(out, p)
		}
	}
	return out
}
