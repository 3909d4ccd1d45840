package advice

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olehluchkiv/classweave/internal/classfile"
	"github.com/olehluchkiv/classweave/internal/scanner"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustNew(t *testing.T, b Builder) *Definition {
	t.Helper()
	d, err := New(b)
	require.NoError(t, err)
	return d
}

func labeled(t *testing.T, label string) *Definition {
	return mustNew(t, Builder{
		Pointcut:   Pointcut{ClassName: "com.example.Service", MethodName: "*", MetricName: label},
		AdviceType: "plugin/" + label + "Advice",
	})
}

func metricNames(defs []*Definition) []string {
	var out []string
	for _, d := range defs {
		out = append(out, d.MetricName())
	}
	return out
}

func TestRegistry_OrdersByMetricNameIgnoringCase(t *testing.T) {
	r := NewRegistry(discardLogger(), nil, labeled(t, "Zeta"), labeled(t, "alpha"), labeled(t, "Beta"))
	assert.Equal(t, []string{"alpha", "Beta", "Zeta"}, metricNames(r.All()))
}

func TestRegistry_StableForEqualLabels(t *testing.T) {
	first := labeled(t, "jdbc")
	second := labeled(t, "JDBC")
	third := labeled(t, "jdbc")
	r := NewRegistry(discardLogger(), nil, labeled(t, "zz"), first, second, third, labeled(t, "aa"))

	all := r.All()
	require.Len(t, all, 5)
	assert.Same(t, first, all[1])
	assert.Same(t, second, all[2])
	assert.Same(t, third, all[3])
}

func TestRegistry_AllReturnsCopy(t *testing.T) {
	r := NewRegistry(discardLogger(), nil, labeled(t, "a"), labeled(t, "b"))
	all := r.All()
	all[0] = nil
	assert.NotNil(t, r.All()[0])
}

func TestRegistry_SharedMetricIdentity(t *testing.T) {
	a, b, c := labeled(t, "servlet"), labeled(t, "servlet"), labeled(t, "jdbc")
	r := NewRegistry(discardLogger(), nil, a, b, c)
	assert.Same(t, r.Metric(a), r.Metric(b))
	assert.NotSame(t, r.Metric(a), r.Metric(c))
}

func TestCompareFold(t *testing.T) {
	assert.Equal(t, 0, compareFold("Servlet", "sERVLET"))
	assert.Equal(t, -1, compareFold("abc", "ABCD"))
	assert.Equal(t, 1, compareFold("b", "A"))
	assert.Equal(t, 0, compareFold("", ""))
}

func TestMetaTypes_EmptyWithoutMetaBindings(t *testing.T) {
	d := mustNew(t, Builder{
		Pointcut:   Pointcut{ClassName: "a.B", MethodName: "run"},
		AdviceType: "p/A",
		OnBefore: &Hook{Name: "onBefore", Desc: "(Ljava/lang/Object;)V", Params: []ParameterBinding{
			{Kind: Receiver, Type: "Ljava/lang/Object;"},
		}},
	})
	assert.Empty(t, d.ClassMetaTypes())
	assert.Empty(t, d.MethodMetaTypes())
}

func TestMetaTypes_DeduplicatedAcrossHooks(t *testing.T) {
	const classMeta, methodMeta = "Lp/ServletClassMeta;", "Lp/ServletMethodMeta;"
	both := func(name string) *Hook {
		return &Hook{
			Name: name,
			Desc: "(" + classMeta + methodMeta + ")V",
			Params: []ParameterBinding{
				{Kind: ClassMeta, Type: classMeta},
				{Kind: MethodMeta, Type: methodMeta},
			},
		}
	}
	d := mustNew(t, Builder{
		Pointcut:   Pointcut{ClassName: "a.B", MethodName: "run"},
		AdviceType: "p/A",
		OnBefore:   both("onBefore"),
		OnReturn:   both("onReturn"),
		OnThrow:    both("onThrow"),
		OnAfter:    both("onAfter"),
	})
	assert.Equal(t, []string{classMeta}, d.ClassMetaTypes())
	assert.Equal(t, []string{methodMeta}, d.MethodMetaTypes())

	got := d.ClassMetaTypes()
	got[0] = "mutated"
	assert.Equal(t, []string{classMeta}, d.ClassMetaTypes())
}

func TestNew_RoleInvariants(t *testing.T) {
	base := Pointcut{ClassName: "a.B", MethodName: "run"}
	tests := []struct {
		name string
		b    Builder
		role Role
	}{
		{"return value on before", Builder{Pointcut: base, OnBefore: &Hook{
			Name: "onBefore", Desc: "(Ljava/lang/Object;)V",
			Params: []ParameterBinding{{Kind: ReturnValue, Type: "Ljava/lang/Object;"}},
		}}, OnBefore},
		{"optional return on after", Builder{Pointcut: base, OnAfter: &Hook{
			Name: "onAfter", Desc: "(Ljava/lang/Object;)V",
			Params: []ParameterBinding{{Kind: OptionalReturnValue, Type: "Ljava/lang/Object;"}},
		}}, OnAfter},
		{"thrown on return", Builder{Pointcut: base, OnReturn: &Hook{
			Name: "onReturn", Desc: "(Ljava/lang/Throwable;)V",
			Params: []ParameterBinding{{Kind: Thrown, Type: "Ljava/lang/Throwable;"}},
		}}, OnReturn},
		{"traveler without before", Builder{Pointcut: base, OnAfter: &Hook{
			Name: "onAfter", Desc: "(Ljava/lang/Object;)V",
			Params: []ParameterBinding{{Kind: Traveler, Type: "Ljava/lang/Object;"}},
		}}, OnAfter},
		{"traveler on before", Builder{Pointcut: base, OnBefore: &Hook{
			Name: "onBefore", Desc: "(Ljava/lang/Object;)Ljava/lang/Object;",
			Params: []ParameterBinding{{Kind: Traveler, Type: "Ljava/lang/Object;"}},
		}}, OnBefore},
		{"is enabled not boolean", Builder{Pointcut: base, IsEnabled: &Hook{
			Name: "isEnabled", Desc: "()V",
		}}, IsEnabled},
		{"arity mismatch", Builder{Pointcut: base, OnBefore: &Hook{
			Name: "onBefore", Desc: "(II)V",
			Params: []ParameterBinding{{Kind: MethodArg, Type: "I"}},
		}}, OnBefore},
		{"type mismatch", Builder{Pointcut: base, OnBefore: &Hook{
			Name: "onBefore", Desc: "(I)V",
			Params: []ParameterBinding{{Kind: MethodArg, Type: "J"}},
		}}, OnBefore},
		{"primitive class meta", Builder{Pointcut: base, OnBefore: &Hook{
			Name: "onBefore", Desc: "(I)V",
			Params: []ParameterBinding{{Kind: ClassMeta, Type: "I"}},
		}}, OnBefore},
		{"two return values", Builder{Pointcut: base, OnReturn: &Hook{
			Name: "onReturn", Desc: "(Ljava/lang/Object;Ljava/lang/Object;)V",
			Params: []ParameterBinding{
				{Kind: ReturnValue, Type: "Ljava/lang/Object;"},
				{Kind: OptionalReturnValue, Type: "Ljava/lang/Object;"},
			},
		}}, OnReturn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.b)
			var be *BindingError
			require.True(t, errors.As(err, &be), "got %v", err)
			assert.Equal(t, tt.role, be.Role)
		})
	}
}

func TestNew_ValidLifecycle(t *testing.T) {
	d := mustNew(t, Builder{
		Pointcut:   Pointcut{ClassName: "javax/servlet/Servlet", Inherited: true, MethodName: "service", MethodParameterTypes: []string{".."}, MetricName: "http request"},
		AdviceType: "plugin/ServletAdvice",
		IsEnabled:  &Hook{Name: "isEnabled", Desc: "()Z"},
		OnBefore: &Hook{Name: "onBefore", Desc: "(Ljava/lang/Object;Ljava/lang/String;)Lplugin/Span;", Params: []ParameterBinding{
			{Kind: Receiver, Type: "Ljava/lang/Object;"},
			{Kind: MethodName, Type: "Ljava/lang/String;"},
		}},
		OnReturn: &Hook{Name: "onReturn", Desc: "(Ljava/lang/Object;Lplugin/Span;)V", Params: []ParameterBinding{
			{Kind: OptionalReturnValue, Type: "Ljava/lang/Object;"},
			{Kind: Traveler, Type: "Lplugin/Span;"},
		}},
		OnThrow: &Hook{Name: "onThrow", Desc: "(Ljava/lang/Throwable;Lplugin/Span;)V", Params: []ParameterBinding{
			{Kind: Thrown, Type: "Ljava/lang/Throwable;"},
			{Kind: Traveler, Type: "Lplugin/Span;"},
		}},
		Reweavable: true,
	})

	assert.Equal(t, "Lplugin/Span;", d.TravelerType())
	assert.True(t, d.Reweavable())
	assert.Equal(t, "javax.servlet.Servlet", d.Pointcut().ClassName)
	assert.Nil(t, d.Hook(OnAfter))
	assert.Equal(t, "onThrow", d.Hook(OnThrow).Name)
	assert.Nil(t, d.Hook(Role(42)))
}

func TestNew_InvalidPointcut(t *testing.T) {
	for _, pc := range []Pointcut{
		{MethodName: "run"},
		{ClassName: "a.B"},
		{ClassName: "/a(/", MethodName: "run"},
		{ClassName: "a.B", MethodName: "run", MethodParameterTypes: []string{"..", "int"}},
		{ClassName: "a.B", MethodName: "run", MethodModifiers: []Modifier{"volatile"}},
	} {
		_, err := New(Builder{Pointcut: pc})
		assert.ErrorIs(t, err, ErrInvalidPointcut, "%+v", pc)
	}
}

func TestKind_RoundTripNames(t *testing.T) {
	for k := Receiver; k <= MethodMeta; k++ {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("bogus")
	assert.Error(t, err)
	assert.Equal(t, "Kind(99)", Kind(99).String())
	assert.Equal(t, "onReturn", OnReturn.String())
}

func serviceClass() *scanner.ClassSummary {
	return &scanner.ClassSummary{
		Name:       "com/example/OrderService",
		SuperName:  "com/example/BaseService",
		Interfaces: []string{"com/example/Service"},
		NonBridgeMethods: []scanner.MethodSummary{
			{Access: classfile.AccPublic, Name: "<init>", Desc: "()V"},
			{Access: classfile.AccPublic, Name: "execute", Desc: "(Ljava/lang/String;I)Ljava/lang/String;"},
			{Access: classfile.AccPublic | classfile.AccStatic, Name: "executeAll", Desc: "([Ljava/lang/String;)V"},
			{Access: classfile.AccPrivate, Name: "helper", Desc: "()V"},
			{Access: classfile.AccPublic | classfile.AccAbstract, Name: "executeLater", Desc: "()V"},
		},
		BridgeMethods: []scanner.MethodSummary{
			{Access: classfile.AccPublic | classfile.AccBridge, Name: "execute", Desc: "(Ljava/lang/Object;I)Ljava/lang/Object;"},
			{Access: classfile.AccPublic | classfile.AccBridge, Name: "compareTo", Desc: "(Ljava/lang/Object;)I"},
		},
	}
}

func methodNames(ms []scanner.MethodSummary) []string {
	var out []string
	for _, m := range ms {
		out = append(out, m.Name)
	}
	return out
}

func TestMatchesClass(t *testing.T) {
	s := serviceClass()
	direct := mustNew(t, Builder{Pointcut: Pointcut{ClassName: "com.example.OrderService", MethodName: "*"}})
	wildcard := mustNew(t, Builder{Pointcut: Pointcut{ClassName: "com.example.*Service", MethodName: "*"}})
	iface := mustNew(t, Builder{Pointcut: Pointcut{ClassName: "com.example.Service", MethodName: "*"}})
	ifaceInherited := mustNew(t, Builder{Pointcut: Pointcut{ClassName: "com.example.Service", Inherited: true, MethodName: "*"}})
	regex := mustNew(t, Builder{Pointcut: Pointcut{ClassName: "/com\\.example\\.(Order|Payment)Service/", MethodName: "*"}})

	assert.True(t, direct.MatchesClass(s))
	assert.True(t, wildcard.MatchesClass(s))
	assert.False(t, iface.MatchesClass(s))
	assert.True(t, ifaceInherited.MatchesClass(s))
	assert.True(t, regex.MatchesClass(s))

	r := NewRegistry(discardLogger(), nil, direct, iface, ifaceInherited)
	assert.Len(t, r.Candidates(s), 2)
}

func TestCandidates_InheritedThroughHierarchy(t *testing.T) {
	s := &scanner.ClassSummary{Name: "com/example/OrderService", SuperName: "com/example/BaseService"}
	hierarchy := scanner.HierarchyFunc(func(name string) []string {
		switch name {
		case "com/example/BaseService":
			return []string{"com/example/AbstractService"}
		case "com/example/AbstractService":
			return []string{"java/lang/Object", "com/example/Service"}
		}
		return nil
	})
	inherited := mustNew(t, Builder{Pointcut: Pointcut{ClassName: "com.example.Service", Inherited: true, MethodName: "*", MetricName: "a"}})
	notInherited := mustNew(t, Builder{Pointcut: Pointcut{ClassName: "com.example.Service", MethodName: "*", MetricName: "b"}})

	assert.False(t, inherited.MatchesClass(s), "declared supertypes only")
	assert.Empty(t, NewRegistry(discardLogger(), nil, inherited, notInherited).Candidates(s))

	r := NewRegistry(discardLogger(), hierarchy, inherited, notInherited)
	assert.Equal(t, []*Definition{inherited}, r.Candidates(s))
}

func TestCandidates_CyclicHierarchyTerminates(t *testing.T) {
	cyclic := scanner.HierarchyFunc(func(name string) []string {
		if name == "a/A" {
			return []string{"a/B"}
		}
		return []string{"a/A"}
	})
	d := mustNew(t, Builder{Pointcut: Pointcut{ClassName: "a.Z", Inherited: true, MethodName: "*"}})
	r := NewRegistry(discardLogger(), cyclic, d)
	assert.Empty(t, r.Candidates(&scanner.ClassSummary{Name: "a/C", SuperName: "a/A"}))
}

func TestMatchMethods(t *testing.T) {
	s := serviceClass()
	tests := []struct {
		name      string
		pc        Pointcut
		nonBridge []string
		bridge    []string
	}{
		{"wildcard skips constructors and abstract", Pointcut{MethodName: "*", MethodParameterTypes: []string{".."}},
			[]string{"execute", "executeAll", "helper"}, []string{"compareTo"}},
		{"no-arg by default", Pointcut{MethodName: "*"}, []string{"helper"}, nil},
		{"constructor literal", Pointcut{MethodName: "<init>"}, []string{"<init>"}, nil},
		{"typed params", Pointcut{MethodName: "exec*", MethodParameterTypes: []string{"java.lang.String", "int"}},
			[]string{"execute"}, nil},
		{"array param", Pointcut{MethodName: "exec*", MethodParameterTypes: []string{"java.lang.String[]"}},
			[]string{"executeAll"}, nil},
		{"return type", Pointcut{MethodName: "*", MethodParameterTypes: []string{".."}, MethodReturnType: "void"},
			[]string{"executeAll", "helper"}, nil},
		{"modifiers", Pointcut{MethodName: "*", MethodParameterTypes: []string{".."}, MethodModifiers: []Modifier{Public, NotStatic}},
			[]string{"execute"}, []string{"compareTo"}},
		{"static", Pointcut{MethodName: "*", MethodParameterTypes: []string{".."}, MethodModifiers: []Modifier{Static}},
			[]string{"executeAll"}, nil},
		{"bridge only when erased types match", Pointcut{MethodName: "execute", MethodParameterTypes: []string{"java.lang.Object", ".."}},
			nil, []string{"execute"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.pc.ClassName = "com.example.OrderService"
			m := MatchMethods(mustNew(t, Builder{Pointcut: tt.pc}), s)
			assert.Equal(t, tt.nonBridge, methodNames(m.NonBridge))
			assert.Equal(t, tt.bridge, methodNames(m.Bridge))
		})
	}
}

func TestRegistry_Unused(t *testing.T) {
	a, b, c, d := labeled(t, "a"), labeled(t, "b"), labeled(t, "c"), labeled(t, "d")
	r := NewRegistry(discardLogger(), nil, a, b, c, d)
	r.MarkUsed(b)
	r.MarkUsed(b)

	assert.Equal(t, int64(2), r.Uses(b))
	assert.Equal(t, []*Definition{a, c, d}, r.Unused(0))

	capped := r.Unused(2)
	assert.Equal(t, []*Definition{a, c}, capped)
	assert.Equal(t, 2, cap(capped))

	r.MarkUsed(labeled(t, "foreign"))
	assert.Len(t, r.Unused(0), 3)
}
