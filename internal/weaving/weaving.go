package weaving

import (
	"log/slog"

	"github.com/olehluchkiv/classweave/internal/advice"
	"github.com/olehluchkiv/classweave/internal/mixin"
	"github.com/olehluchkiv/classweave/internal/scanner"
)

// Decision is the outcome of pre-matching one class against the registries.
type Decision struct {
	ClassName    string
	MajorVersion int
	// PointcutAnnotated is set for advice classes. They are never woven.
	PointcutAnnotated   bool
	ConstructorPointcut bool
	Advice              []advice.MethodMatch
	Mixins              []*mixin.Definition
	NeedsWeaving        bool
}

// Decider pre-matches classes against the advice and mixin registries.
// A Decider is safe for concurrent use.
type Decider struct {
	Advice *advice.Registry
	Mixins *mixin.Registry
	Logger *slog.Logger
}

// Decide scans raw and reports which advice and mixins apply to it.
func (d *Decider) Decide(raw []byte) (Decision, error) {
	res, err := scanner.Scan(raw)
	if err != nil {
		return Decision{}, err
	}
	return d.DecideScanned(res), nil
}

// DecideScanned reports which advice and mixins apply to an already scanned
// class. Advice that matched at least one method is marked used in the
// registry.
func (d *Decider) DecideScanned(res scanner.Result) Decision {
	s := res.Summary
	dec := Decision{
		ClassName:           s.Name,
		MajorVersion:        res.MajorVersion,
		PointcutAnnotated:   res.PointcutAnnotated,
		ConstructorPointcut: res.ConstructorPointcut,
	}
	if res.PointcutAnnotated {
		d.logger().Debug("skipping advice class", "class", s.Name)
		return dec
	}

	if d.Advice != nil {
		for _, def := range d.Advice.Candidates(s) {
			m := advice.MatchMethods(def, s)
			if m.Empty() {
				continue
			}
			d.Advice.MarkUsed(def)
			dec.Advice = append(dec.Advice, m)
		}
	}
	if d.Mixins != nil {
		dec.Mixins = d.Mixins.DefinitionsFor(s)
	}
	dec.NeedsWeaving = len(dec.Advice) > 0 || len(dec.Mixins) > 0

	d.logger().Debug("class pre-matched",
		"class", s.Name,
		"advice", len(dec.Advice),
		"mixins", len(dec.Mixins),
		"needs_weaving", dec.NeedsWeaving,
	)
	return dec
}

func (d *Decider) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
