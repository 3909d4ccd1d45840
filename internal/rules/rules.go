package rules

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/olehluchkiv/classweave/internal/advice"
	"github.com/olehluchkiv/classweave/internal/mixin"
)

// document is the on-disk form of a rule file.
type document struct {
	Pointcuts []pointcutRule `yaml:"pointcuts"`
	Mixins    []mixinRule    `yaml:"mixins"`
}

type pointcutRule struct {
	AdviceType           string    `yaml:"adviceType"`
	ClassName            string    `yaml:"className"`
	Inherited            bool      `yaml:"inherited"`
	MethodName           string    `yaml:"methodName"`
	MethodParameterTypes []string  `yaml:"methodParameterTypes"`
	MethodReturnType     string    `yaml:"methodReturnType"`
	MethodModifiers      []string  `yaml:"methodModifiers"`
	MetricName           string    `yaml:"metricName"`
	TransactionType      string    `yaml:"transactionType"`
	IgnoreSelfNested     bool      `yaml:"ignoreSelfNested"`
	Reweavable           bool      `yaml:"reweavable"`
	IsEnabled            *hookRule `yaml:"isEnabled"`
	OnBefore             *hookRule `yaml:"onBefore"`
	OnReturn             *hookRule `yaml:"onReturn"`
	OnThrow              *hookRule `yaml:"onThrow"`
	OnAfter              *hookRule `yaml:"onAfter"`
}

type hookRule struct {
	Name       string      `yaml:"name"`
	Descriptor string      `yaml:"descriptor"`
	Params     []paramRule `yaml:"params"`
}

type paramRule struct {
	Kind string `yaml:"kind"`
	Type string `yaml:"type"`
}

type mixinRule struct {
	Targets        []string `yaml:"targets"`
	Implementation string   `yaml:"implementation"`
}

// Rules are the validated contents of one or more rule files.
type Rules struct {
	Advice []*advice.Definition
	Mixins []mixin.Declaration
}

// Load decodes and validates a rule document. Unknown keys are rejected.
// An empty document yields empty rules.
func Load(r io.Reader) (*Rules, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc document
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding rules: %w", err)
	}

	out := &Rules{}
	for i, pr := range doc.Pointcuts {
		d, err := pr.definition()
		if err != nil {
			return nil, fmt.Errorf("pointcuts[%d]: %w", i, err)
		}
		out.Advice = append(out.Advice, d)
	}
	for i, mr := range doc.Mixins {
		if mr.Implementation == "" || len(mr.Targets) == 0 {
			return nil, fmt.Errorf("mixins[%d]: implementation and targets are required", i)
		}
		out.Mixins = append(out.Mixins, mixin.Declaration{
			Targets:        mr.Targets,
			Implementation: mr.Implementation,
		})
	}
	return out, nil
}

// LoadFile loads the rule file at path.
func LoadFile(path string) (*Rules, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rules: %w", err)
	}
	defer f.Close()
	rules, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

func (pr pointcutRule) definition() (*advice.Definition, error) {
	b := advice.Builder{
		Pointcut: advice.Pointcut{
			ClassName:            pr.ClassName,
			Inherited:            pr.Inherited,
			MethodName:           pr.MethodName,
			MethodParameterTypes: pr.MethodParameterTypes,
			MethodReturnType:     pr.MethodReturnType,
			MetricName:           pr.MetricName,
			TransactionType:      pr.TransactionType,
			IgnoreSelfNested:     pr.IgnoreSelfNested,
		},
		AdviceType: pr.AdviceType,
		Reweavable: pr.Reweavable,
	}
	for _, m := range pr.MethodModifiers {
		b.Pointcut.MethodModifiers = append(b.Pointcut.MethodModifiers, advice.Modifier(m))
	}
	hooks := []struct {
		role advice.Role
		rule *hookRule
		dst  **advice.Hook
	}{
		{advice.IsEnabled, pr.IsEnabled, &b.IsEnabled},
		{advice.OnBefore, pr.OnBefore, &b.OnBefore},
		{advice.OnReturn, pr.OnReturn, &b.OnReturn},
		{advice.OnThrow, pr.OnThrow, &b.OnThrow},
		{advice.OnAfter, pr.OnAfter, &b.OnAfter},
	}
	for _, h := range hooks {
		if h.rule == nil {
			continue
		}
		hook := &advice.Hook{Name: h.rule.Name, Desc: h.rule.Descriptor}
		for j, p := range h.rule.Params {
			kind, err := advice.ParseKind(p.Kind)
			if err != nil {
				return nil, fmt.Errorf("%s.params[%d]: %w", h.role, j, err)
			}
			hook.Params = append(hook.Params, advice.ParameterBinding{Kind: kind, Type: p.Type})
		}
		*h.dst = hook
	}
	return advice.New(b)
}
