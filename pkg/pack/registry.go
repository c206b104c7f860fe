package pack

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/tripnara/readiness/pkg/condition"
)

// Registry holds loaded packs in load order. It is read-only once built,
// so it may be shared by concurrent evaluations without locking.
type Registry struct {
	packs  []CapabilityPack
	byType map[string]int
}

// NewRegistry builds a registry. Pack types must be unique.
func NewRegistry(packs ...CapabilityPack) (*Registry, error) {
	r := &Registry{byType: make(map[string]int, len(packs))}
	for _, p := range packs {
		if _, dup := r.byType[p.Type]; dup {
			return nil, fmt.Errorf("%w: duplicate pack type %q", ErrInvalidPack, p.Type)
		}
		r.byType[p.Type] = len(r.packs)
		r.packs = append(r.packs, p)
	}
	return r, nil
}

// LoadRegistry loads the built-in packs and, when dir is set, every pack in dir.
// A pack in dir replaces a built-in of the same type in place.
// Any malformed document fails the whole load.
func LoadRegistry(dir string, ev *condition.Evaluator) (*Registry, error) {
	logger := slog.Default().With("component", "pack_registry")

	packs, err := LoadBuiltin(ev)
	if err != nil {
		return nil, fmt.Errorf("builtin packs: %w", err)
	}
	if dir != "" {
		extra, err := LoadDir(dir, ev)
		if err != nil {
			return nil, err
		}
		index := make(map[string]int, len(packs))
		for i, p := range packs {
			index[p.Type] = i
		}
		for _, p := range extra {
			if i, ok := index[p.Type]; ok {
				logger.Info("pack overridden from directory", "type", p.Type, "dir", dir)
				packs[i] = p
				continue
			}
			index[p.Type] = len(packs)
			packs = append(packs, p)
		}
	}

	r, err := NewRegistry(packs...)
	if err != nil {
		return nil, err
	}
	logger.Info("capability packs loaded", "count", len(r.packs))
	return r, nil
}

// Packs returns the packs in registry order.
func (r *Registry) Packs() []CapabilityPack {
	return append([]CapabilityPack(nil), r.packs...)
}

// Get looks a pack up by type.
func (r *Registry) Get(packType string) (CapabilityPack, bool) {
	i, ok := r.byType[packType]
	if !ok {
		return CapabilityPack{}, false
	}
	return r.packs[i], true
}

// List returns the pack catalogue in registry order.
func (r *Registry) List() []Info {
	out := make([]Info, 0, len(r.packs))
	for _, p := range r.packs {
		out = append(out, InfoOf(p))
	}
	return out
}

// InfoOf builds the catalogue entry of p, including the context fields its
// structured conditions read.
func InfoOf(p CapabilityPack) Info {
	seen := map[string]bool{}
	fields := []string{}
	for _, r := range p.Rules {
		for _, f := range r.Trigger.Fields() {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	sort.Strings(fields)
	return Info{
		Type:        p.Type,
		DisplayName: p.DisplayName,
		Description: p.Description,
		RuleCount:   len(p.Rules),
		Fields:      fields,
	}
}

// Len returns the number of packs.
func (r *Registry) Len() int { return len(r.packs) }
