package searcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/classindex-mcp/pkg/types"
)

// hierarchy stores a/A <- a/B <- a/C, with a/C also implementing a/I
func hierarchy(f *fixture) {
	empty := make(types.Index)
	f.addClass("a/A.class", "a/A", "java/lang/Object", empty)
	f.addClass("a/B.class", "a/B", "a/A", empty)
	f.addClass("a/C.class", "a/C", "a/B", empty, "a/I")
}

func TestInheritors(t *testing.T) {
	f := newFixture(t)
	hierarchy(f)
	ctx := context.Background()

	got, err := f.s.Inheritors(ctx, f.project.ID, "a/A")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/B", "a/C"}, got)

	got, err = f.s.Inheritors(ctx, f.project.ID, "a/I")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/C"}, got)

	got, err = f.s.Inheritors(ctx, f.project.ID, "a/C")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindClassReferences(t *testing.T) {
	f := newFixture(t)
	f.addClass("a/B.class", "a/B", "a/A", index(func(idx types.Index) {
		idx.Add("a/A", types.ClassKey{}, types.ClassLocation, 1)
		idx.Add("a/A", types.ClassKey{}, "make:()La/A;", 2)
		idx.Add("a/A", types.ImplicitToStringKey{}, "show:()V", 1)
	}))

	hits, err := f.s.FindClassReferences(context.Background(), "a/A", f.scope())
	require.NoError(t, err)
	assert.Equal(t, FileHits{"a/B.class": {"": 1, "make:()La/A;": 2}}, hits)
}

func TestFindFieldReferences(t *testing.T) {
	f := newFixture(t)
	hierarchy(f)
	f.addClass("x/User.class", "x/User", "java/lang/Object", index(func(idx types.Index) {
		idx.Add("count", types.FieldKey{Owner: "a/A"}, "read:()I", 1)
		idx.Add("count", types.FieldKey{Owner: "a/C"}, "read:()I", 2)
		idx.Add("count", types.FieldKey{Owner: "a/B", IsWrite: true}, "reset:()V", 1)
		idx.Add("count", types.FieldKey{Owner: "x/Other"}, "read:()I", 9)
	}))

	hits, err := f.s.FindFieldReferences(context.Background(), "a/A", "count", f.scope())
	require.NoError(t, err)
	assert.Equal(t, FileHits{"x/User.class": {"read:()I": 3}}, hits.Reads)
	assert.Equal(t, FileHits{"x/User.class": {"reset:()V": 1}}, hits.Writes)

	// Accesses qualified by a superclass are not references to the subclass field
	sub, err := f.s.FindFieldReferences(context.Background(), "a/C", "count", f.scope())
	require.NoError(t, err)
	assert.Equal(t, FileHits{"x/User.class": {"read:()I": 2}}, sub.Reads)
	assert.Empty(t, sub.Writes)
}

func TestFindMethodReferences(t *testing.T) {
	f := newFixture(t)
	hierarchy(f)
	f.addClass("x/User.class", "x/User", "java/lang/Object", index(func(idx types.Index) {
		idx.Add("run", types.MethodKey{Owner: "a/A", Desc: "()V"}, "main:()V", 1)
		idx.Add("run", types.MethodKey{Owner: "a/B", Desc: "()V"}, "main:()V", 1)
		idx.Add("run", types.MethodKey{Owner: "a/A", Desc: "(I)V"}, "other:()V", 1)
		idx.Add("<init>", types.MethodKey{Owner: "a/A", Desc: "()V"}, "main:()V", 1)
		idx.Add("<init>", types.MethodKey{Owner: "a/B", Desc: "()V"}, "main:()V", 1)
	}))
	ctx := context.Background()

	tests := []struct {
		name  string
		query MethodQuery
		want  FileHits
	}{
		{
			name:  "any descriptor through inheritors",
			query: MethodQuery{Owner: "a/A", Name: "run", Desc: "()V"},
			want:  FileHits{"x/User.class": {"main:()V": 2, "other:()V": 1}},
		},
		{
			name:  "strict descriptor",
			query: MethodQuery{Owner: "a/A", Name: "run", Desc: "()V", Strict: true},
			want:  FileHits{"x/User.class": {"main:()V": 2}},
		},
		{
			name:  "declaring class only",
			query: MethodQuery{Owner: "a/A", Name: "run", Desc: "()V", Strict: true, DeclaringOnly: true},
			want:  FileHits{"x/User.class": {"main:()V": 1}},
		},
		{
			name:  "constructor ignores subclasses",
			query: MethodQuery{Owner: "a/A", Name: "<init>", Desc: "()V", Strict: true},
			want:  FileHits{"x/User.class": {"main:()V": 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := f.s.FindMethodReferences(ctx, tt.query, f.scope())
			require.NoError(t, err)
			assert.Equal(t, tt.want, hits)
		})
	}
}

func TestFindImplicitToString(t *testing.T) {
	f := newFixture(t)
	hierarchy(f)
	f.addClass("x/User.class", "x/User", "java/lang/Object", index(func(idx types.Index) {
		idx.Add("a/B", types.ImplicitToStringKey{}, "log:()V", 1)
		idx.Add("a/C", types.ImplicitToStringKey{}, "log:()V", 2)
		idx.Add("a/A", types.ClassKey{}, "log:()V", 5)
	}))

	hits, err := f.s.FindImplicitToString(context.Background(), "a/B", f.scope())
	require.NoError(t, err)
	assert.Equal(t, FileHits{"x/User.class": {"log:()V": 3}}, hits)

	none, err := f.s.FindImplicitToString(context.Background(), "a/A", f.scope("nothing/**"))
	require.NoError(t, err)
	assert.Empty(t, none)
}
