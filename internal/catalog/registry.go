package catalog

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/mn-exchange/engine/pkg/xerrors"
)

// Registry is the thread-safe symbol table, grounded on the teacher's
// market.MarketRegistry.
type Registry struct {
	mu      sync.RWMutex
	symbols map[string]*Symbol
}

func NewRegistry() *Registry {
	return &Registry{symbols: make(map[string]*Symbol)}
}

// Register adds a new symbol. Returns an error if the id is already taken.
func (r *Registry) Register(s *Symbol) error {
	if s == nil {
		return errors.New("catalog: cannot register nil symbol")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.symbols[s.ID]; exists {
		return errors.Newf("catalog: symbol %s already registered", s.ID)
	}
	r.symbols[s.ID] = s
	return nil
}

// Get returns the symbol or a CodeUnknownSymbol error.
func (r *Registry) Get(id string) (*Symbol, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.symbols[id]
	if !ok {
		return nil, xerrors.New(xerrors.CodeUnknownSymbol, "unknown symbol %s", id)
	}
	return s, nil
}

// List returns all symbols sorted by id for deterministic iteration.
func (r *Registry) List() []*Symbol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Symbol, 0, len(r.symbols))
	for _, s := range r.symbols {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Hedgeable returns all symbols whose hedge policy requires delta-neutral
// reconciliation against the external venue.
func (r *Registry) Hedgeable() []*Symbol {
	all := r.List()
	out := all[:0:0]
	for _, s := range all {
		if s.HedgePolicy == HedgeDeltaNeutral {
			out = append(out, s)
		}
	}
	return out
}
