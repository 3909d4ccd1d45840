package scanner

// Hierarchy returns the declared supertypes (superclass first, then
// interfaces) of a class known to the loading environment, or nil.
type Hierarchy interface {
	Supertypes(className string) []string
}

// HierarchyFunc adapts a function to Hierarchy.
type HierarchyFunc func(className string) []string

func (f HierarchyFunc) Supertypes(className string) []string { return f(className) }

// TypeClosure returns the internal names of s and every type it extends or
// implements, directly or through h. A nil h limits the closure to the
// declared supertypes of s. Cycles in h are tolerated.
func TypeClosure(s *ClassSummary, h Hierarchy) map[string]bool {
	seen := map[string]bool{s.Name: true}
	queue := s.Supertypes()
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if h != nil {
			queue = append(queue, h.Supertypes(name)...)
		}
	}
	return seen
}
