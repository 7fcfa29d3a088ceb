package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Canonical provider ids.
const (
	Across    = "across"
	Bungee    = "bungee"
	Hop       = "hop"
	LiFi      = "lifi"
	Orbiter   = "orbiter"
	Synapse   = "synapse"
	Axelar    = "axelar"
	Stargate  = "stargate"
	Reservoir = "reservoir"
	Debridge  = "debridge"
)

var known = map[string]bool{
	Across: true, Bungee: true, Hop: true, LiFi: true, Orbiter: true,
	Synapse: true, Axelar: true, Stargate: true, Reservoir: true, Debridge: true,
}

var aliases = map[string]string{
	"socket": Bungee,
	"squid":  Axelar,
	"jumper": LiFi,
	"relay":  Reservoir,
}

// Synapse and orbiter are left out of the default set.
var defaultSet = []string{Bungee, Hop, LiFi, Axelar, Stargate, Across, Debridge}

// ErrAllAmountUnsupported is returned when reservoir is pinned for an all-amount bridge.
var ErrAllAmountUnsupported = errors.New("reservoir relay bridges don't work when using all amount")

// UnsupportedProtocolError reports a pinned provider name that cannot be served.
type UnsupportedProtocolError struct {
	Name      string
	Supported []string
}

func (e *UnsupportedProtocolError) Error() string {
	return fmt.Sprintf("protocol %q is not supported for bridge, supported protocols: %s",
		e.Name, strings.Join(e.Supported, ", "))
}

// Canonical maps a name or alias to its canonical id.
func Canonical(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if id, ok := aliases[name]; ok {
		return id, true
	}
	return name, known[name]
}

// Registry holds the provider implementations available to an aggregation.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]QuoteProvider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]QuoteProvider)}
}

// Register binds an implementation to a canonical id or alias.
func (r *Registry) Register(name string, p QuoteProvider) error {
	id, ok := Canonical(name)
	if !ok {
		return fmt.Errorf("unknown provider %q", name)
	}
	r.mu.Lock()
	r.providers[id] = p
	r.mu.Unlock()
	return nil
}

// Supported returns the sorted ids that have an implementation.
func (r *Registry) Supported() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Select returns the providers to query. A pinned name yields exactly that
// provider; otherwise the default set is used, reservoir included only when
// the whole balance is not being bridged.
func (r *Registry) Select(pinned string, isAllAmount bool) ([]Named, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if strings.TrimSpace(pinned) != "" {
		id, ok := Canonical(pinned)
		if ok && id == Reservoir && isAllAmount {
			return nil, ErrAllAmountUnsupported
		}
		p, registered := r.providers[id]
		if !ok || !registered {
			supported := make([]string, 0, len(r.providers))
			for name := range r.providers {
				supported = append(supported, name)
			}
			sort.Strings(supported)
			return nil, &UnsupportedProtocolError{Name: pinned, Supported: supported}
		}
		return []Named{{ID: id, Provider: p}}, nil
	}

	ids := defaultSet
	if !isAllAmount {
		ids = append(append([]string{}, defaultSet...), Reservoir)
	}
	selected := make([]Named, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.providers[id]; ok {
			selected = append(selected, Named{ID: id, Provider: p})
		}
	}
	return selected, nil
}
