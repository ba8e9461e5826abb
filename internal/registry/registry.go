// Package registry holds the closed set of categories and the strategy bound
// to each. The registry is built once at startup and is read-only afterwards.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/straja-ai/piiscan/internal/recognize"
)

// Shape is the legacy entity_type shape of a category result.
type Shape int

const (
	ShapeList Shape = iota
	ShapeScalar
)

// Finder resolves a category without going through the recognition engine.
type Finder func(ctx context.Context, text string) ([]recognize.Match, error)

// Binding ties a category to how it is resolved. Exactly one of Strategy and
// Finder is set.
type Binding struct {
	Name     string
	Label    string
	Legacy   Shape
	Strategy recognize.Strategy
	Finder   Finder
}

// Variant names the resolution mechanism for listings.
func (b *Binding) Variant() string {
	if b.Strategy != nil {
		return b.Strategy.Kind().String()
	}
	return "bespoke"
}

// Options customizes registry construction.
type Options struct {
	// DenyLists replaces the built-in terms of the named deny-list categories.
	DenyLists map[string][]string
	// CaseSensitiveDenyLists switches deny-list matching to exact case.
	CaseSensitiveDenyLists bool
	// FoldNames makes Resolve ignore the case of category names and aliases.
	FoldNames bool
}

// Registry maps category names to bindings.
type Registry struct {
	bindings map[string]*Binding
	aliases  map[string]string
	order    []string
	fold     bool
}

// New builds the registry from the static category table.
func New(opts Options) (*Registry, error) {
	terms, err := builtinDenyLists()
	if err != nil {
		return nil, err
	}
	if err := ValidateDenyLists(opts.DenyLists); err != nil {
		return nil, err
	}
	for name, list := range opts.DenyLists {
		terms[canonical(name)] = list
	}

	r := &Registry{
		bindings: make(map[string]*Binding, len(table)),
		aliases:  make(map[string]string),
		fold:     opts.FoldNames,
	}
	for _, def := range table {
		b := &Binding{Name: def.name, Label: def.label, Legacy: def.legacy}
		switch {
		case def.finder != nil:
			b.Finder = def.finder
		case def.pattern != "":
			p, err := recognize.NewPattern(def.label, strings.ToLower(def.name)+"_pattern", def.pattern, def.score)
			if err != nil {
				return nil, err
			}
			b.Strategy = p
		case def.model != "":
			m, err := recognize.NewModel(def.label, def.model)
			if err != nil {
				return nil, err
			}
			b.Strategy = m
		case def.denyList:
			d, err := recognize.NewDenyList(def.label, terms[def.name], opts.CaseSensitiveDenyLists)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", def.name, err)
			}
			b.Strategy = d
		default:
			return nil, fmt.Errorf("category %s has no strategy", def.name)
		}
		r.bindings[def.name] = b
		r.order = append(r.order, def.name)
		for _, alias := range def.aliases {
			r.aliases[alias] = def.name
		}
	}
	return r, nil
}

// Resolve looks up a category by name or alias. Surrounding whitespace is
// ignored; case only when the registry was built with FoldNames.
func (r *Registry) Resolve(name string) (*Binding, bool) {
	key := strings.TrimSpace(name)
	if r.fold {
		key = canonical(key)
	}
	if target, ok := r.aliases[key]; ok {
		key = target
	}
	b, ok := r.bindings[key]
	return b, ok
}

// Names returns the canonical category names in table order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Aliases returns alias → canonical name.
func (r *Registry) Aliases() map[string]string {
	out := make(map[string]string, len(r.aliases))
	for k, v := range r.aliases {
		out[k] = v
	}
	return out
}

// Known reports whether every name resolves and returns the ones that don't,
// sorted.
func (r *Registry) Known(names []string) (bool, []string) {
	var unknown []string
	for _, n := range names {
		if _, ok := r.Resolve(n); !ok {
			unknown = append(unknown, n)
		}
	}
	sort.Strings(unknown)
	return len(unknown) == 0, unknown
}

func canonical(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
