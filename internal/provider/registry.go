// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package provider

import (
	"context"
	"slices"
	"strings"
	"sync"

	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// Router picks the provider and model that should answer the next request.
type Router interface {
	Route(ctx context.Context) (Provider, string, error)
}

// Registry holds the configured providers and routes requests to the
// default "provider/model" reference, falling back along the failover
// chain while a provider is cooling down.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider

	defaultRef string
	failover   []string
}

var _ Router = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, nyayaerr.New(nyayaerr.CodeProviderNotFound, "provider not found: "+name, nyayaerr.FieldProvider(name))
	}
	return p, nil
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// SetDefault sets the primary "provider/model" reference.
func (r *Registry) SetDefault(ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkRef(ref); err != nil {
		return err
	}
	r.defaultRef = ref
	return nil
}

// SetFailover sets the ordered references tried when the default is
// unavailable.
func (r *Registry) SetFailover(chain []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ref := range chain {
		if err := r.checkRef(ref); err != nil {
			return err
		}
	}
	r.failover = slices.Clone(chain)
	return nil
}

func (r *Registry) Route(ctx context.Context) (Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultRef == "" {
		return nil, "", nyayaerr.New(nyayaerr.CodeProviderNotFound, "no default provider configured")
	}

	for _, ref := range append([]string{r.defaultRef}, r.failover...) {
		name, model := ParseRef(ref)
		p := r.providers[name]
		if p != nil && p.Available(ctx) {
			return p, model, nil
		}
	}

	return nil, "", nyayaerr.New(nyayaerr.CodeProviderUpstreamFailure,
		"all providers unavailable", nyayaerr.FieldProvider(r.defaultRef))
}

// Statuses reports every registered provider, sorted by name.
func (r *Registry) Statuses(ctx context.Context) []ProviderStatus {
	out := make([]ProviderStatus, 0)
	for _, name := range r.Names() {
		p, err := r.Get(name)
		if err != nil {
			continue
		}
		st, err := p.Status(ctx)
		if err != nil {
			st = ProviderStatus{Provider: name, Message: err.Error()}
		}
		out = append(out, st)
	}
	return out
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nyayaerr.Join(errs...)
	}
	return nil
}

// caller holds r.mu
func (r *Registry) checkRef(ref string) error {
	name, model := ParseRef(ref)
	if model == "" {
		return nyayaerr.Errorf(nyayaerr.CodeProviderRequestInvalid, "model reference %q must use provider/model format", ref)
	}
	if _, ok := r.providers[name]; !ok {
		return nyayaerr.New(nyayaerr.CodeProviderNotFound, "provider not registered: "+name, nyayaerr.FieldProvider(name))
	}
	return nil
}

// ParseRef splits "provider/model" on the first slash.
func ParseRef(ref string) (name, model string) {
	name, model, _ = strings.Cut(ref, "/")
	return name, model
}
