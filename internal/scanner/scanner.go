package scanner

import (
	"errors"
	"fmt"

	"github.com/olehluchkiv/classweave/internal/classfile"
)

// Annotation descriptors recognized while scanning.
const (
	PointcutDesc  = "Lorg/glowroot/agent/plugin/api/weaving/Pointcut;"
	MixinDesc     = "Lorg/glowroot/agent/plugin/api/weaving/Mixin;"
	MixinInitDesc = "Lorg/glowroot/agent/plugin/api/weaving/MixinInit;"

	constructorName = "<init>"
)

// ErrIncomplete is returned when a summary is requested before the class
// walk reached VisitEnd. It signals a caller bug, not bad input.
var ErrIncomplete = errors.New("scanner: summary requested before scan completed")

// Scanner accumulates a ClassSummary from visitor callbacks. A Scanner holds
// private mutable state and serves exactly one class; create one per scan.
type Scanner struct {
	draft               ClassSummary
	sealed              *ClassSummary
	pointcut            bool
	constructorPointcut bool
}

var _ classfile.ClassVisitor = (*Scanner)(nil)

// New returns a scanner ready for a single class walk.
func New() *Scanner {
	return &Scanner{}
}

func (s *Scanner) Visit(version, access int, name, superName string, interfaces []string) {
	s.draft.MajorVersion = classfile.MajorVersion(version)
	s.draft.Access = access
	s.draft.Name = name
	s.draft.SuperName = superName
	s.draft.Interfaces = append(s.draft.Interfaces, interfaces...)
}

func (s *Scanner) VisitAnnotation(desc string, visible bool) classfile.AnnotationVisitor {
	s.draft.Annotations = addUnique(s.draft.Annotations, desc)
	if desc == PointcutDesc {
		s.pointcut = true
		return pointcutVisitor{s: s}
	}
	return nil
}

func (s *Scanner) VisitMethod(access int, name, desc, signature string, exceptions []string) classfile.MethodVisitor {
	return &methodScanner{
		s: s,
		m: MethodSummary{
			Access:     access,
			Name:       name,
			Desc:       desc,
			Signature:  signature,
			Exceptions: exceptions,
		},
	}
}

// VisitEnd seals the draft. Later callbacks do not affect the sealed summary.
func (s *Scanner) VisitEnd() {
	sealed := s.draft
	s.sealed = &sealed
	s.draft = ClassSummary{}
}

// Summary returns the sealed summary, or ErrIncomplete before VisitEnd.
func (s *Scanner) Summary() (*ClassSummary, error) {
	if s.sealed == nil {
		return nil, ErrIncomplete
	}
	return s.sealed, nil
}

// MajorVersion is the class file major version, valid once Visit ran.
func (s *Scanner) MajorVersion() int {
	if s.sealed != nil {
		return s.sealed.MajorVersion
	}
	return s.draft.MajorVersion
}

// PointcutAnnotated reports whether the class carries the pointcut
// annotation, i.e. it is an advice implementation.
func (s *Scanner) PointcutAnnotated() bool {
	return s.pointcut
}

// ConstructorPointcut reports whether the pointcut annotation targets
// constructors.
func (s *Scanner) ConstructorPointcut() bool {
	return s.constructorPointcut
}

type pointcutVisitor struct {
	s *Scanner
}

func (v pointcutVisitor) Visit(name string, value any) {
	if name == "methodName" && value == constructorName {
		v.s.constructorPointcut = true
	}
}

func (pointcutVisitor) VisitEnd() {}

type methodScanner struct {
	s *Scanner
	m MethodSummary
}

func (ms *methodScanner) VisitAnnotation(desc string, visible bool) classfile.AnnotationVisitor {
	ms.m.Annotations = addUnique(ms.m.Annotations, desc)
	return nil
}

func (ms *methodScanner) VisitEnd() {
	d := &ms.s.draft
	if classfile.IsBridge(ms.m.Access) {
		d.BridgeMethods = append(d.BridgeMethods, ms.m)
	} else {
		d.NonBridgeMethods = append(d.NonBridgeMethods, ms.m)
	}
}

// Result bundles a sealed summary with the side signals of a scan.
type Result struct {
	Summary             *ClassSummary
	MajorVersion        int
	PointcutAnnotated   bool
	ConstructorPointcut bool
}

// Scan walks raw once with a fresh Scanner.
func Scan(raw []byte) (Result, error) {
	s := New()
	if err := classfile.NewReader(raw).Accept(s); err != nil {
		return Result{}, fmt.Errorf("scanning class: %w", err)
	}
	summary, err := s.Summary()
	if err != nil {
		return Result{}, err
	}
	return Result{
		Summary:             summary,
		MajorVersion:        s.MajorVersion(),
		PointcutAnnotated:   s.PointcutAnnotated(),
		ConstructorPointcut: s.ConstructorPointcut(),
	}, nil
}
