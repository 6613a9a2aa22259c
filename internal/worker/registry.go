package worker

import (
	"context"
	"fmt"
	"sort"

	"github.com/ppiankov/mergertracker/internal/model"
)

// Registry holds exactly one RateGate per source. It is built once and
// read-only afterwards, so lookups need no locking.
type Registry struct {
	gates map[string]*RateGate
}

// RegistryOptions configures every gate in a registry
type RegistryOptions struct {
	Clock         Clock
	Seed          uint64
	NoJitter      bool
	OnStateChange func(sourceID string, from, to State)
}

// NewRegistry builds a gate for each source
func NewRegistry(sources []model.SourceConfig, bcfg model.BreakerConfig, opts RegistryOptions) *Registry {
	r := &Registry{gates: make(map[string]*RateGate, len(sources))}
	for i, src := range sources {
		gopts := GateOptions{
			Clock:    opts.Clock,
			Seed:     opts.Seed + uint64(i),
			NoJitter: opts.NoJitter,
		}
		if opts.OnStateChange != nil {
			id := src.ID
			hook := opts.OnStateChange
			gopts.OnStateChange = func(from, to State) { hook(id, from, to) }
		}
		r.gates[src.ID] = NewRateGate(src, bcfg, gopts)
	}
	return r
}

// Acquire blocks until sourceID may issue a request
func (r *Registry) Acquire(ctx context.Context, sourceID string) (*Permit, error) {
	g, ok := r.gates[sourceID]
	if !ok {
		return nil, fmt.Errorf("acquire: unknown source %q", sourceID)
	}
	return g.Acquire(ctx)
}

// Gate returns the gate of a source
func (r *Registry) Gate(sourceID string) (*RateGate, bool) {
	g, ok := r.gates[sourceID]
	return g, ok
}

// BreakerSnapshot is the reportable state of one source's breaker
type BreakerSnapshot struct {
	State State
	Opens int
}

// Snapshot returns breaker state for every source, keyed by source id
func (r *Registry) Snapshot() map[string]BreakerSnapshot {
	out := make(map[string]BreakerSnapshot, len(r.gates))
	for id, g := range r.gates {
		out[id] = BreakerSnapshot{State: g.breaker.State(), Opens: g.breaker.Opens()}
	}
	return out
}

// SourceIDs returns the registered source ids in stable order
func (r *Registry) SourceIDs() []string {
	ids := make([]string, 0, len(r.gates))
	for id := range r.gates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
