package advice

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/olehluchkiv/classweave/internal/classfile"
	"github.com/olehluchkiv/classweave/internal/scanner"
)

// Modifier constrains the access flags of matched methods.
type Modifier string

const (
	Public    Modifier = "public"
	Static    Modifier = "static"
	NotStatic Modifier = "not_static"
)

// anyRemaining in MethodParameterTypes matches zero or more trailing
// parameters.
const anyRemaining = ".."

// Pointcut selects join points. Class and type names use the dotted Java
// form; internal names with '/' are accepted and normalized.
type Pointcut struct {
	ClassName string
	// Inherited makes ClassName match any supertype as well, transitively
	// when the registry knows the class hierarchy.
	Inherited  bool
	MethodName string
	// MethodParameterTypes lists Java type names; an empty list matches
	// only no-arg methods and ".." matches any remaining parameters.
	MethodParameterTypes []string
	// MethodReturnType is a Java type name; empty matches any.
	MethodReturnType string
	MethodModifiers  []Modifier
	MetricName       string
	TransactionType  string
	IgnoreSelfNested bool
}

// Hook references one advice method and the arguments the weaver must supply.
type Hook struct {
	Name   string
	Desc   string
	Params []ParameterBinding
}

// ParameterBinding pairs a binding kind with the parameter's declared type
// descriptor.
type ParameterBinding struct {
	Kind Kind
	Type string
}

// Builder carries the static declaration of one advice.
type Builder struct {
	Pointcut   Pointcut
	AdviceType string // internal name of the class hosting the hooks
	IsEnabled  *Hook
	OnBefore   *Hook
	OnReturn   *Hook
	OnThrow    *Hook
	OnAfter    *Hook
	Reweavable bool
}

// BindingError reports a hook whose bindings violate its role.
type BindingError struct {
	AdviceType string
	Role       Role
	Index      int // parameter index, -1 for hook-level problems
	Reason     string
}

func (e *BindingError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("advice %s %s: %s", e.AdviceType, e.Role, e.Reason)
	}
	return fmt.Sprintf("advice %s %s parameter %d: %s", e.AdviceType, e.Role, e.Index, e.Reason)
}

var ErrInvalidPointcut = errors.New("invalid pointcut")

// Definition is an immutable, validated advice. It is safe for concurrent
// use.
type Definition struct {
	pointcut      Pointcut
	adviceType    string
	classPattern  namePattern
	methodPattern namePattern
	paramPatterns []namePattern
	returnPattern *namePattern
	hooks         [len(Roles)]*Hook
	travelerType  string
	reweavable    bool

	metaOnce        sync.Once
	classMetaTypes  []string
	methodMetaTypes []string
}

// New validates b and compiles its patterns.
func New(b Builder) (*Definition, error) {
	pc := b.Pointcut
	if pc.ClassName == "" {
		return nil, fmt.Errorf("%w: advice %s has no class name", ErrInvalidPointcut, b.AdviceType)
	}
	if pc.MethodName == "" {
		return nil, fmt.Errorf("%w: advice %s has no method name", ErrInvalidPointcut, b.AdviceType)
	}
	pc.ClassName = normalizePattern(pc.ClassName)
	pc.MethodParameterTypes = slices.Clone(pc.MethodParameterTypes)
	pc.MethodModifiers = slices.Clone(pc.MethodModifiers)

	d := &Definition{
		pointcut:   pc,
		adviceType: b.AdviceType,
		reweavable: b.Reweavable,
	}
	var err error
	if d.classPattern, err = compilePattern(pc.ClassName); err != nil {
		return nil, fmt.Errorf("%w: class name: %w", ErrInvalidPointcut, err)
	}
	if d.methodPattern, err = compilePattern(pc.MethodName); err != nil {
		return nil, fmt.Errorf("%w: method name: %w", ErrInvalidPointcut, err)
	}
	for i, t := range pc.MethodParameterTypes {
		if t == anyRemaining {
			if i != len(pc.MethodParameterTypes)-1 {
				return nil, fmt.Errorf("%w: %q must be the last parameter type", ErrInvalidPointcut, anyRemaining)
			}
			break
		}
		p, err := compilePattern(normalizePattern(t))
		if err != nil {
			return nil, fmt.Errorf("%w: parameter type: %w", ErrInvalidPointcut, err)
		}
		d.paramPatterns = append(d.paramPatterns, p)
	}
	if pc.MethodReturnType != "" {
		p, err := compilePattern(normalizePattern(pc.MethodReturnType))
		if err != nil {
			return nil, fmt.Errorf("%w: return type: %w", ErrInvalidPointcut, err)
		}
		d.returnPattern = &p
	}
	for _, m := range pc.MethodModifiers {
		if m != Public && m != Static && m != NotStatic {
			return nil, fmt.Errorf("%w: unknown method modifier %q", ErrInvalidPointcut, m)
		}
	}

	for role, h := range [len(Roles)]*Hook{b.IsEnabled, b.OnBefore, b.OnReturn, b.OnThrow, b.OnAfter} {
		if h == nil {
			continue
		}
		cp := *h
		cp.Params = slices.Clone(h.Params)
		d.hooks[role] = &cp
	}
	if err := d.validateHooks(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Definition) validateHooks() error {
	if before := d.hooks[OnBefore]; before != nil {
		md, err := classfile.ParseMethodDescriptor(before.Desc)
		if err == nil && md.Return != "V" {
			d.travelerType = md.Return
		}
	}
	for _, role := range Roles {
		h := d.hooks[role]
		if h == nil {
			continue
		}
		fail := func(index int, format string, args ...any) error {
			return &BindingError{
				AdviceType: d.adviceType,
				Role:       role,
				Index:      index,
				Reason:     fmt.Sprintf(format, args...),
			}
		}
		if h.Name == "" {
			return fail(-1, "hook has no method name")
		}
		md, err := classfile.ParseMethodDescriptor(h.Desc)
		if err != nil {
			return fail(-1, "%v", err)
		}
		if len(md.Params) != len(h.Params) {
			return fail(-1, "descriptor %s declares %d parameters, %d bound", h.Desc, len(md.Params), len(h.Params))
		}
		if role == IsEnabled && md.Return != "Z" {
			return fail(-1, "must return boolean")
		}
		returns, travelers := 0, 0
		for i, p := range h.Params {
			if p.Kind < Receiver || p.Kind > MethodMeta {
				return fail(i, "unknown binding kind %d", int(p.Kind))
			}
			if !p.Kind.allowedOn(role) {
				return fail(i, "%s binding not allowed on %s", p.Kind, role)
			}
			if p.Type != md.Params[i] {
				return fail(i, "binding type %s does not match descriptor type %s", p.Type, md.Params[i])
			}
			switch p.Kind {
			case ReturnValue, OptionalReturnValue:
				returns++
			case Traveler:
				travelers++
				if d.travelerType == "" {
					return fail(i, "traveler bound but %s returns void", OnBefore)
				}
			case ClassMeta, MethodMeta:
				if !strings.HasPrefix(p.Type, "L") {
					return fail(i, "%s type must be a class, got %s", p.Kind, p.Type)
				}
			}
		}
		if returns > 1 {
			return fail(-1, "more than one return value binding")
		}
		if travelers > 1 {
			return fail(-1, "more than one traveler binding")
		}
	}
	return nil
}

func (d *Definition) Pointcut() Pointcut {
	pc := d.pointcut
	pc.MethodParameterTypes = slices.Clone(pc.MethodParameterTypes)
	pc.MethodModifiers = slices.Clone(pc.MethodModifiers)
	return pc
}

func (d *Definition) MetricName() string { return d.pointcut.MetricName }

// AdviceType is the internal name of the class hosting the hook methods.
func (d *Definition) AdviceType() string { return d.adviceType }

// Hook returns the hook for role, or nil when the advice does not define it.
// Callers must not modify the returned hook.
func (d *Definition) Hook(role Role) *Hook {
	if role < 0 || int(role) >= len(d.hooks) {
		return nil
	}
	return d.hooks[role]
}

// TravelerType is the descriptor returned by the before hook, empty when it
// returns void or is absent.
func (d *Definition) TravelerType() string { return d.travelerType }

func (d *Definition) Reweavable() bool { return d.reweavable }

// ClassMetaTypes returns the distinct descriptors bound as ClassMeta across
// all hooks, sorted. Computed once.
func (d *Definition) ClassMetaTypes() []string {
	d.metaOnce.Do(d.computeMetaTypes)
	return slices.Clone(d.classMetaTypes)
}

// MethodMetaTypes returns the distinct descriptors bound as MethodMeta
// across all hooks, sorted. Computed once.
func (d *Definition) MethodMetaTypes() []string {
	d.metaOnce.Do(d.computeMetaTypes)
	return slices.Clone(d.methodMetaTypes)
}

func (d *Definition) computeMetaTypes() {
	classTypes := map[string]struct{}{}
	methodTypes := map[string]struct{}{}
	for _, h := range d.hooks {
		if h == nil {
			continue
		}
		for _, p := range h.Params {
			switch p.Kind {
			case ClassMeta:
				classTypes[p.Type] = struct{}{}
			case MethodMeta:
				methodTypes[p.Type] = struct{}{}
			}
		}
	}
	d.classMetaTypes = sortedKeys(classTypes)
	d.methodMetaTypes = sortedKeys(methodTypes)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// MatchesClass reports whether the class, or when the pointcut is
// inherited one of its declared supertypes, matches the class pattern.
func (d *Definition) MatchesClass(s *scanner.ClassSummary) bool {
	return d.matchesClass(s.Name, func() map[string]bool { return scanner.TypeClosure(s, nil) })
}

// matchesClass tests name and, for inherited pointcuts only, the type
// closure returned by types.
func (d *Definition) matchesClass(name string, types func() map[string]bool) bool {
	if d.classPattern.match(javaClassName(name)) {
		return true
	}
	if !d.pointcut.Inherited {
		return false
	}
	for t := range types() {
		if t != name && d.classPattern.match(javaClassName(t)) {
			return true
		}
	}
	return false
}

// MatchesMethod applies the method name, parameter, return type and
// modifier constraints. Abstract and native methods have no body to weave
// and never match. Constructors and static initializers match only a literal
// pattern naming them.
func (d *Definition) MatchesMethod(m *scanner.MethodSummary) bool {
	if m.Access&(classfile.AccAbstract|classfile.AccNative) != 0 {
		return false
	}
	if strings.HasPrefix(m.Name, "<") {
		if !d.methodPattern.isLiteral() || d.methodPattern.literal != m.Name {
			return false
		}
	} else if !d.methodPattern.match(m.Name) {
		return false
	}
	md, err := classfile.ParseMethodDescriptor(m.Desc)
	if err != nil {
		return false
	}
	if !d.matchesParams(md.Params) {
		return false
	}
	if d.returnPattern != nil && !d.returnPattern.match(classfile.JavaName(md.Return)) {
		return false
	}
	for _, mod := range d.pointcut.MethodModifiers {
		switch mod {
		case Public:
			if m.Access&classfile.AccPublic == 0 {
				return false
			}
		case Static:
			if m.Access&classfile.AccStatic == 0 {
				return false
			}
		case NotStatic:
			if m.Access&classfile.AccStatic != 0 {
				return false
			}
		}
	}
	return true
}

func (d *Definition) matchesParams(params []string) bool {
	open := len(d.pointcut.MethodParameterTypes) > 0 &&
		d.pointcut.MethodParameterTypes[len(d.pointcut.MethodParameterTypes)-1] == anyRemaining
	if len(params) < len(d.paramPatterns) || (!open && len(params) != len(d.paramPatterns)) {
		return false
	}
	for i, p := range d.paramPatterns {
		if !p.match(classfile.JavaName(params[i])) {
			return false
		}
	}
	return true
}
