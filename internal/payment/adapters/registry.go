package adapters

import (
	"sort"
	"strings"

	"github.com/smallbiznis/carebill/internal/payment/adapters/flutterwave"
	"github.com/smallbiznis/carebill/internal/payment/adapters/paystack"
	"github.com/smallbiznis/carebill/internal/payment/domain"
)

// Registry resolves gateway adapters by provider name.
type Registry struct {
	factories map[string]domain.AdapterFactory
}

// NewDefaultRegistry registers every supported gateway.
func NewDefaultRegistry() *Registry {
	return NewRegistry(paystack.NewFactory(), flutterwave.NewFactory())
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{factories: map[string]domain.AdapterFactory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := normalize(factory.Provider())
		if provider == "" {
			continue
		}
		registry.factories[provider] = factory
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[normalize(provider)]
	return ok
}

// Providers lists registered gateways in name order.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) NewAdapter(provider string, cfg domain.AdapterConfig) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	factory, ok := r.factories[normalize(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return factory.NewAdapter(cfg)
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
