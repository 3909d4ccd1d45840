package scanner

import "slices"

// ClassSummary is the declaration-level view of one class. It is produced
// once per scan and must be treated as read-only.
type ClassSummary struct {
	Access           int
	Name             string
	SuperName        string // empty for java/lang/Object
	Interfaces       []string
	Annotations      []string // annotation descriptors, first-seen order, no duplicates
	NonBridgeMethods []MethodSummary
	BridgeMethods    []MethodSummary
	MajorVersion     int
}

// MethodSummary captures a method declaration without its body.
type MethodSummary struct {
	Access      int
	Name        string
	Desc        string
	Signature   string // generic signature, empty when absent
	Exceptions  []string
	Annotations []string
}

// HasAnnotation reports whether the class carries the annotation descriptor.
func (c *ClassSummary) HasAnnotation(desc string) bool {
	return slices.Contains(c.Annotations, desc)
}

// Supertypes returns the superclass followed by the declared interfaces.
func (c *ClassSummary) Supertypes() []string {
	out := make([]string, 0, len(c.Interfaces)+1)
	if c.SuperName != "" {
		out = append(out, c.SuperName)
	}
	return append(out, c.Interfaces...)
}

// Methods returns every method, non-bridge methods first, each partition in
// declaration order.
func (c *ClassSummary) Methods() []MethodSummary {
	out := make([]MethodSummary, 0, len(c.NonBridgeMethods)+len(c.BridgeMethods))
	out = append(out, c.NonBridgeMethods...)
	return append(out, c.BridgeMethods...)
}

// Equal reports whether two summaries describe the same class declaration.
// Nil and empty lists compare equal.
func (c *ClassSummary) Equal(o *ClassSummary) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.Access == o.Access &&
		c.Name == o.Name &&
		c.SuperName == o.SuperName &&
		c.MajorVersion == o.MajorVersion &&
		slices.Equal(c.Interfaces, o.Interfaces) &&
		slices.Equal(c.Annotations, o.Annotations) &&
		slices.EqualFunc(c.NonBridgeMethods, o.NonBridgeMethods, MethodSummary.Equal) &&
		slices.EqualFunc(c.BridgeMethods, o.BridgeMethods, MethodSummary.Equal)
}

// Equal reports whether two method summaries are identical.
func (m MethodSummary) Equal(o MethodSummary) bool {
	return m.Access == o.Access &&
		m.Name == o.Name &&
		m.Desc == o.Desc &&
		m.Signature == o.Signature &&
		slices.Equal(m.Exceptions, o.Exceptions) &&
		slices.Equal(m.Annotations, o.Annotations)
}

// HasAnnotation reports whether the method carries the annotation descriptor.
func (m *MethodSummary) HasAnnotation(desc string) bool {
	return slices.Contains(m.Annotations, desc)
}

func addUnique(set []string, s string) []string {
	if slices.Contains(set, s) {
		return set
	}
	return append(set, s)
}
