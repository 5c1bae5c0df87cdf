// Package registry holds the set of available provider clients and
// resolves a request's model hint to the client that should serve it.
// The registry is built once at startup from static configuration and
// is read-only afterwards; resolution never depends on provider health.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hearthly/hearth/internal/domain"
)

// AliasRule routes model hints containing Keyword to Provider. Rules
// are applied in order, first match wins. This replaces the legacy
// hard-coded substring check with explicit, configurable policy.
type AliasRule struct {
	Keyword  string
	Provider string
}

// Registry implements domain.ProviderResolver.
type Registry struct {
	mu              sync.RWMutex
	providers       map[string]domain.Provider
	defaultProvider string
	aliases         []AliasRule
}

// NewRegistry creates a registry with the given default provider and
// alias rules. The default must be registered before the first Resolve.
func NewRegistry(defaultProvider string, aliases []AliasRule) *Registry {
	return &Registry{
		providers:       make(map[string]domain.Provider),
		defaultProvider: defaultProvider,
		aliases:         aliases,
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(provider domain.Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	name := provider.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}

	r.providers[name] = provider
	return nil
}

// Resolve maps a model hint to a client. An empty hint or a hint
// matching no known naming convention resolves to the configured
// default; a resolved name with no registered client is a
// configuration error and is never retried.
func (r *Registry) Resolve(modelHint string) (domain.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lookup(r.resolveName(modelHint))
}

// Provider returns a registered client by exact name.
func (r *Registry) Provider(name string) (domain.Provider, error) {
	if name == "" {
		return nil, errors.New("provider name cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lookup(name)
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveName applies the selection rule: exact provider name first,
// then alias keywords in order, then the default.
func (r *Registry) resolveName(modelHint string) string {
	hint := strings.ToLower(strings.TrimSpace(modelHint))
	if hint == "" {
		return r.defaultProvider
	}

	if _, exists := r.providers[hint]; exists {
		return hint
	}

	for _, rule := range r.aliases {
		if strings.Contains(hint, strings.ToLower(rule.Keyword)) {
			return rule.Provider
		}
	}

	return r.defaultProvider
}

func (r *Registry) lookup(name string) (domain.Provider, error) {
	provider, exists := r.providers[name]
	if !exists {
		return nil, &domain.UnknownProviderError{Name: name}
	}
	return provider, nil
}

// ParseAliases parses "keyword=provider,keyword=provider" into ordered
// alias rules, skipping malformed entries.
func ParseAliases(spec string) []AliasRule {
	var rules []AliasRule
	for _, entry := range strings.Split(spec, ",") {
		keyword, provider, found := strings.Cut(strings.TrimSpace(entry), "=")
		if !found || keyword == "" || provider == "" {
			continue
		}
		rules = append(rules, AliasRule{
			Keyword:  strings.TrimSpace(keyword),
			Provider: strings.TrimSpace(provider),
		})
	}
	return rules
}
