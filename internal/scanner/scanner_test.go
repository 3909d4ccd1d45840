package scanner

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olehluchkiv/classweave/internal/classfile"
	"github.com/olehluchkiv/classweave/internal/classfile/classfiletest"
)

func genericRepository() classfiletest.Class {
	return classfiletest.Class{
		Major:      55,
		Access:     classfile.AccPublic | classfile.AccSuper,
		Name:       "com/example/StringRepository",
		Super:      "com/example/AbstractRepository",
		Interfaces: []string{"com/example/Repository", "java/io/Serializable"},
		Annotations: []classfiletest.Annotation{
			{Desc: "Lcom/example/Managed;"},
			{Desc: "Lcom/example/Audit;", Invisible: true},
		},
		Methods: []classfiletest.Method{
			{Access: classfile.AccPublic, Name: "<init>", Desc: "()V"},
			{
				Access:      classfile.AccPublic,
				Name:        "find",
				Desc:        "(Ljava/lang/String;)Ljava/lang/String;",
				Exceptions:  []string{"java/io/IOException"},
				Annotations: []classfiletest.Annotation{{Desc: "Lcom/example/Timed;"}, {Desc: "Lcom/example/Timed;"}},
			},
			{
				Access: classfile.AccPublic | classfile.AccBridge | classfile.AccSynthetic,
				Name:   "find",
				Desc:   "(Ljava/lang/Object;)Ljava/lang/Object;",
			},
			{
				Access:    classfile.AccPublic,
				Name:      "all",
				Desc:      "()Ljava/util/List;",
				Signature: "()Ljava/util/List<Ljava/lang/String;>;",
			},
		},
	}
}

func TestScan_Summary(t *testing.T) {
	res, err := Scan(genericRepository().Bytes())
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, 55, res.MajorVersion)
	assert.Equal(t, 55, s.MajorVersion)
	assert.Equal(t, classfile.AccPublic|classfile.AccSuper, s.Access)
	assert.Equal(t, "com/example/StringRepository", s.Name)
	assert.Equal(t, "com/example/AbstractRepository", s.SuperName)
	assert.Equal(t, []string{"com/example/Repository", "java/io/Serializable"}, s.Interfaces)
	assert.Equal(t, []string{"Lcom/example/Managed;", "Lcom/example/Audit;"}, s.Annotations)
	assert.True(t, s.HasAnnotation("Lcom/example/Audit;"))
	assert.False(t, res.PointcutAnnotated)
	assert.False(t, res.ConstructorPointcut)

	require.Len(t, s.NonBridgeMethods, 3)
	require.Len(t, s.BridgeMethods, 1)

	find := s.NonBridgeMethods[1]
	assert.Equal(t, "find", find.Name)
	assert.Equal(t, []string{"java/io/IOException"}, find.Exceptions)
	assert.Equal(t, []string{"Lcom/example/Timed;"}, find.Annotations)
	assert.True(t, find.HasAnnotation("Lcom/example/Timed;"))

	all := s.NonBridgeMethods[2]
	assert.Equal(t, "()Ljava/util/List<Ljava/lang/String;>;", all.Signature)
	assert.Empty(t, s.NonBridgeMethods[0].Signature)

	assert.Equal(t, "(Ljava/lang/Object;)Ljava/lang/Object;", s.BridgeMethods[0].Desc)
	assert.Equal(t, []string{"com/example/AbstractRepository", "com/example/Repository", "java/io/Serializable"}, s.Supertypes())
}

func TestScan_Deterministic(t *testing.T) {
	raw := genericRepository().Bytes()
	first, err := Scan(raw)
	require.NoError(t, err)
	second, err := Scan(raw)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, first.Summary.Equal(second.Summary))
	assert.NotSame(t, first.Summary, second.Summary)
}

func TestClassSummary_Methods(t *testing.T) {
	res, err := Scan(genericRepository().Bytes())
	require.NoError(t, err)

	var names []string
	for _, m := range res.Summary.Methods() {
		names = append(names, m.Name+m.Desc)
	}
	assert.Equal(t, []string{
		"<init>()V",
		"find(Ljava/lang/String;)Ljava/lang/String;",
		"all()Ljava/util/List;",
		"find(Ljava/lang/Object;)Ljava/lang/Object;",
	}, names)
}

func TestClassSummary_Equal(t *testing.T) {
	res, err := Scan(genericRepository().Bytes())
	require.NoError(t, err)
	s := res.Summary

	same := *s
	same.Interfaces = slices.Clone(s.Interfaces)
	assert.True(t, s.Equal(&same))

	renamed := *s
	renamed.Name = "com/example/Other"
	assert.False(t, s.Equal(&renamed))

	methods := *s
	methods.NonBridgeMethods = slices.Clone(s.NonBridgeMethods)
	methods.NonBridgeMethods[1].Exceptions = nil
	assert.False(t, s.Equal(&methods))

	moved := *s
	moved.NonBridgeMethods = s.NonBridgeMethods[:2]
	moved.BridgeMethods = append(slices.Clone(s.BridgeMethods), s.NonBridgeMethods[2])
	assert.False(t, s.Equal(&moved))

	assert.False(t, s.Equal(nil))
	assert.True(t, (*ClassSummary)(nil).Equal(nil))
	assert.True(t, (&ClassSummary{}).Equal(&ClassSummary{Interfaces: []string{}}))
}

func TestTypeClosure(t *testing.T) {
	s := &ClassSummary{Name: "a/C", SuperName: "a/B", Interfaces: []string{"a/I"}}
	h := HierarchyFunc(func(name string) []string {
		switch name {
		case "a/B":
			return []string{"a/A", "a/J"}
		case "a/A":
			return []string{"a/B"}
		}
		return nil
	})
	assert.Equal(t, map[string]bool{"a/C": true, "a/B": true, "a/I": true, "a/A": true, "a/J": true}, TypeClosure(s, h))
	assert.Equal(t, map[string]bool{"a/C": true, "a/B": true, "a/I": true}, TypeClosure(s, nil))
}

func TestScan_BridgePartitionIsTotalAndDisjoint(t *testing.T) {
	c := classfiletest.Class{Name: "p/C", Super: "java/lang/Object"}
	for i := 0; i < 20; i++ {
		access := classfile.AccPublic
		if i%3 == 0 {
			access |= classfile.AccBridge
		}
		if i%4 == 0 {
			access |= classfile.AccSynthetic
		}
		c.Methods = append(c.Methods, classfiletest.Method{
			Access: uint16(access),
			Name:   fmt.Sprintf("m%d", i),
			Desc:   "()V",
		})
	}

	res, err := Scan(c.Bytes())
	require.NoError(t, err)

	seen := map[string]int{}
	for _, m := range res.Summary.BridgeMethods {
		assert.True(t, classfile.IsBridge(m.Access), m.Name)
		seen[m.Name]++
	}
	for _, m := range res.Summary.NonBridgeMethods {
		assert.False(t, classfile.IsBridge(m.Access), m.Name)
		seen[m.Name]++
	}
	assert.Len(t, seen, 20)
	for name, n := range seen {
		assert.Equal(t, 1, n, name)
	}
	assert.Len(t, res.Summary.BridgeMethods, 7)
}

func TestSummary_IncompleteBeforeVisitEnd(t *testing.T) {
	for _, n := range []int{0, 1, 50} {
		t.Run(fmt.Sprintf("%d methods", n), func(t *testing.T) {
			s := New()
			s.Visit(52, classfile.AccPublic, "p/C", "java/lang/Object", nil)
			for i := 0; i < n; i++ {
				mv := s.VisitMethod(classfile.AccPublic, fmt.Sprintf("m%d", i), "()V", "", nil)
				mv.VisitEnd()
			}

			summary, err := s.Summary()
			assert.Nil(t, summary)
			assert.ErrorIs(t, err, ErrIncomplete)

			s.VisitEnd()
			summary, err = s.Summary()
			require.NoError(t, err)
			assert.Len(t, summary.NonBridgeMethods, n)
		})
	}
}

func TestSummary_SealedAgainstLaterCallbacks(t *testing.T) {
	s := New()
	s.Visit(52, 0, "p/C", "java/lang/Object", nil)
	s.VisitEnd()
	s.VisitMethod(0, "late", "()V", "", nil).VisitEnd()

	summary, err := s.Summary()
	require.NoError(t, err)
	assert.Empty(t, summary.NonBridgeMethods)
	assert.Equal(t, 52, s.MajorVersion())
}

func pointcutClass(values ...classfiletest.Element) []byte {
	return classfiletest.Class{
		Name:  "org/example/plugin/ServletAspect$ServiceAdvice",
		Super: "java/lang/Object",
		Annotations: []classfiletest.Annotation{{
			Desc:   PointcutDesc,
			Values: values,
		}},
	}.Bytes()
}

func TestScan_ConstructorPointcut(t *testing.T) {
	tests := []struct {
		name   string
		values []classfiletest.Element
		want   bool
	}{
		{"constructor", []classfiletest.Element{
			{Name: "className", Value: "javax.servlet.Servlet"},
			{Name: "methodName", Value: "<init>"},
		}, true},
		{"regular method", []classfiletest.Element{{Name: "methodName", Value: "service"}}, false},
		{"wildcard", []classfiletest.Element{{Name: "methodName", Value: "*"}}, false},
		{"absent", nil, false},
		{"other element", []classfiletest.Element{{Name: "metricName", Value: "<init>"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Scan(pointcutClass(tt.values...))
			require.NoError(t, err)
			assert.True(t, res.PointcutAnnotated)
			assert.Equal(t, tt.want, res.ConstructorPointcut)
			assert.True(t, res.Summary.HasAnnotation(PointcutDesc))
		})
	}
}

func TestScan_MalformedInput(t *testing.T) {
	_, err := Scan([]byte("not a class"))
	assert.ErrorIs(t, err, classfile.ErrBadMagic)
}
