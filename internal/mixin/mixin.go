package mixin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/olehluchkiv/classweave/internal/classfile"
	"github.com/olehluchkiv/classweave/internal/scanner"
)

// ErrResourceNotFound is returned by a ResourceLoader when it has no class
// file for the requested name.
var ErrResourceNotFound = errors.New("class resource not found")

// ResourceLoader resolves a class's compiled bytes from the loading
// environment. className is an internal name such as "com/example/Foo".
type ResourceLoader interface {
	Resource(ctx context.Context, className string) ([]byte, error)
}

// Declaration is the static form of a mixin: the classes it attaches to and
// the class providing its members.
type Declaration struct {
	Targets        []string
	Implementation string
}

// Definition is an immutable, registered mixin.
type Definition struct {
	targets        []string
	implementation string
	interfaces     []string
	initMethodName string
	implBytes      []byte
	warnings       []string
}

// Create loads the implementation's class file and validates its init
// method. A missing implementation is fatal and is not retried. A malformed
// init method is skipped with a warning and the mixin is still created.
func Create(ctx context.Context, decl Declaration, loader ResourceLoader, logger *slog.Logger) (*Definition, error) {
	impl := internalName(decl.Implementation)
	if impl == "" {
		return nil, errors.New("mixin declaration has no implementation")
	}
	if len(decl.Targets) == 0 {
		return nil, fmt.Errorf("mixin %s declares no targets", impl)
	}
	logger = logger.With("component", "mixin", "mixin", impl)

	raw, err := loader.Resource(ctx, impl)
	if err != nil {
		return nil, fmt.Errorf("loading mixin %s: %w", impl, err)
	}
	res, err := scanner.Scan(raw)
	if err != nil {
		return nil, fmt.Errorf("mixin %s: %w", impl, err)
	}
	if res.Summary.Name != impl {
		return nil, fmt.Errorf("mixin %s: resource holds class %s", impl, res.Summary.Name)
	}

	d := &Definition{
		implementation: impl,
		interfaces:     slices.Clone(res.Summary.Interfaces),
		implBytes:      raw,
	}
	for _, t := range decl.Targets {
		d.targets = append(d.targets, internalName(t))
	}

	warn := func(msg string, method string) {
		d.warnings = append(d.warnings, fmt.Sprintf("%s: %s", msg, method))
		logger.Warn(msg, "method", method)
	}
	methods := append(slices.Clone(res.Summary.NonBridgeMethods), res.Summary.BridgeMethods...)
	for _, m := range methods {
		if !m.HasAnnotation(scanner.MixinInitDesc) {
			continue
		}
		if d.initMethodName != "" {
			warn("mixin has more than one init method", m.Name)
			continue
		}
		md, err := classfile.ParseMethodDescriptor(m.Desc)
		if err != nil {
			warn("mixin init method has a malformed descriptor", m.Name)
			continue
		}
		if len(md.Params) > 0 {
			warn("mixin init method cannot have any parameters", m.Name)
			continue
		}
		if md.Return != "V" {
			warn("mixin init method must return void", m.Name)
			continue
		}
		d.initMethodName = m.Name
	}

	logger.Debug("mixin created",
		"targets", d.targets,
		"interfaces", d.interfaces,
		"init_method", d.initMethodName)
	return d, nil
}

func internalName(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

// Targets are the internal names of classes and interfaces the mixin
// attaches to.
func (d *Definition) Targets() []string { return slices.Clone(d.targets) }

// Implementation is the internal name of the class providing the members.
func (d *Definition) Implementation() string { return d.implementation }

// Interfaces are added to each target's declared interfaces.
func (d *Definition) Interfaces() []string { return slices.Clone(d.interfaces) }

// InitMethodName is the zero-arg void method to run once per new target
// instance, after mixin fields are initialized and before the target's
// constructor body. Empty when the mixin has none.
func (d *Definition) InitMethodName() string { return d.initMethodName }

// ImplementationBytes is the mixin's own class file, kept so members can be
// copied into targets without loading it again. Callers must not modify it.
func (d *Definition) ImplementationBytes() []byte { return d.implBytes }

// Warnings lists declaration defects found while creating the mixin.
func (d *Definition) Warnings() []string { return slices.Clone(d.warnings) }
