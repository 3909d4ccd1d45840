package advice

import (
	"log/slog"
	"slices"
	"strconv"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"github.com/olehluchkiv/classweave/internal/classfile"
	"github.com/olehluchkiv/classweave/internal/metric"
	"github.com/olehluchkiv/classweave/internal/scanner"
)

// Registry holds every advice for the life of the process. It is built once
// and then only read, so concurrent lookups need no locking. Usage counters
// are atomic.
type Registry struct {
	defs    []*Definition
	hits    map[*Definition]*atomic.Int64
	metrics map[*Definition]*metric.Name
	// hierarchy resolves supertypes for inherited pointcuts; may be nil.
	hierarchy scanner.Hierarchy
	logger    *slog.Logger
}

// NewRegistry orders defs by metric name, case-insensitively, keeping
// declaration order among equal names. Inherited pointcuts are matched
// against the full supertype closure known to hierarchy; with a nil
// hierarchy only declared supertypes are considered.
func NewRegistry(logger *slog.Logger, hierarchy scanner.Hierarchy, defs ...*Definition) *Registry {
	sorted := slices.Clone(defs)
	slices.SortStableFunc(sorted, func(a, b *Definition) int {
		return compareFold(a.pointcut.MetricName, b.pointcut.MetricName)
	})
	r := &Registry{
		defs:      sorted,
		hits:      make(map[*Definition]*atomic.Int64, len(sorted)),
		metrics:   make(map[*Definition]*metric.Name, len(sorted)),
		hierarchy: hierarchy,
		logger:    logger.With("component", "advice-registry"),
	}
	var names metric.Cache
	for _, d := range sorted {
		r.hits[d] = new(atomic.Int64)
		r.metrics[d] = names.Get(d.pointcut.MetricName)
	}
	r.logger.Info("advice registry built", "advice", len(sorted))
	return r
}

// compareFold compares rune by rune after case folding, like Java's
// String.compareToIgnoreCase.
func compareFold(a, b string) int {
	for a != "" && b != "" {
		ra, na := utf8.DecodeRuneInString(a)
		rb, nb := utf8.DecodeRuneInString(b)
		if ra != rb {
			ra = unicode.ToLower(unicode.ToUpper(ra))
			rb = unicode.ToLower(unicode.ToUpper(rb))
			if ra != rb {
				if ra < rb {
					return -1
				}
				return 1
			}
		}
		a, b = a[na:], b[nb:]
	}
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	}
	return 1
}

// All returns every definition in registry order.
func (r *Registry) All() []*Definition {
	return slices.Clone(r.defs)
}

func (r *Registry) Len() int { return len(r.defs) }

// Metric returns the shared metric identity of d's label. Advice with the
// same label share one identity and ordinal.
func (r *Registry) Metric(d *Definition) *metric.Name {
	return r.metrics[d]
}

// Candidates returns, in registry order, the definitions whose class
// pattern matches s. The type closure of s is walked at most once, and only
// when an inherited pointcut needs it.
func (r *Registry) Candidates(s *scanner.ClassSummary) []*Definition {
	var types map[string]bool
	closure := func() map[string]bool {
		if types == nil {
			types = scanner.TypeClosure(s, r.hierarchy)
		}
		return types
	}
	var out []*Definition
	for _, d := range r.defs {
		if d.matchesClass(s.Name, closure) {
			out = append(out, d)
		}
	}
	return out
}

// MethodMatch lists the methods of one class an advice applies to.
type MethodMatch struct {
	Advice    *Definition
	NonBridge []scanner.MethodSummary
	// Bridge holds bridge methods matched only because no non-bridge
	// method with the same name and arity matched; weaving both would
	// intercept a single call twice.
	Bridge []scanner.MethodSummary
}

// Empty reports whether the advice matched no method.
func (m MethodMatch) Empty() bool {
	return len(m.NonBridge) == 0 && len(m.Bridge) == 0
}

// MatchMethods filters the methods of s against d.
func MatchMethods(d *Definition, s *scanner.ClassSummary) MethodMatch {
	match := MethodMatch{Advice: d}
	covered := map[string]bool{}
	for i := range s.NonBridgeMethods {
		m := &s.NonBridgeMethods[i]
		if d.MatchesMethod(m) {
			match.NonBridge = append(match.NonBridge, *m)
			covered[arityKey(m)] = true
		}
	}
	for i := range s.BridgeMethods {
		m := &s.BridgeMethods[i]
		if !covered[arityKey(m)] && d.MatchesMethod(m) {
			match.Bridge = append(match.Bridge, *m)
		}
	}
	return match
}

func arityKey(m *scanner.MethodSummary) string {
	md, err := classfile.ParseMethodDescriptor(m.Desc)
	if err != nil {
		return m.Name + "/" + m.Desc
	}
	return m.Name + "/" + strconv.Itoa(len(md.Params))
}

// MarkUsed records that d was applied to at least one join point.
func (r *Registry) MarkUsed(d *Definition) {
	if c, ok := r.hits[d]; ok {
		c.Add(1)
	}
}

// Uses returns how many times d was marked used.
func (r *Registry) Uses(d *Definition) int64 {
	if c, ok := r.hits[d]; ok {
		return c.Load()
	}
	return 0
}

// Unused returns, in registry order, definitions never marked used. A
// positive limit caps the result; the returned slice length is the only
// count reported.
func (r *Registry) Unused(limit int) []*Definition {
	var out []*Definition
	for _, d := range r.defs {
		if r.hits[d].Load() == 0 {
			out = append(out, d)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit:limit]
	}
	return out
}
