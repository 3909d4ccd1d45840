package mixin

import (
	"slices"

	"github.com/olehluchkiv/classweave/internal/classfile"
	"github.com/olehluchkiv/classweave/internal/scanner"
)

// Registry holds every mixin for the life of the process. It is read-only
// after construction.
type Registry struct {
	defs      []*Definition
	hierarchy scanner.Hierarchy
}

// NewRegistry builds a registry. hierarchy may be nil, in which case only
// the class's own name and declared supertypes are considered.
func NewRegistry(hierarchy scanner.Hierarchy, defs ...*Definition) *Registry {
	return &Registry{defs: slices.Clone(defs), hierarchy: hierarchy}
}

// All returns every mixin in registration order.
func (r *Registry) All() []*Definition {
	return slices.Clone(r.defs)
}

// DefinitionsFor returns the mixins whose targets name the class, a
// superclass or an implemented interface. Interfaces never receive mixins.
func (r *Registry) DefinitionsFor(s *scanner.ClassSummary) []*Definition {
	if len(r.defs) == 0 || s.Access&classfile.AccInterface != 0 {
		return nil
	}
	types := scanner.TypeClosure(s, r.hierarchy)
	var out []*Definition
	for _, d := range r.defs {
		for _, t := range d.targets {
			if types[t] {
				out = append(out, d)
				break
			}
		}
	}
	return out
}
