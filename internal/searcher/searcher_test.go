package searcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/classindex-mcp/internal/codec"
	"github.com/dshills/classindex-mcp/internal/storage"
	"github.com/dshills/classindex-mcp/pkg/types"
)

type fixture struct {
	t       *testing.T
	store   *storage.SQLiteStorage
	codec   *codec.Codec
	project *storage.Project
	s       *Searcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	project := &storage.Project{RootPath: "/classes", IndexVersion: codec.FormatVersion}
	require.NoError(t, store.CreateProject(context.Background(), project))

	c := codec.New(codec.RawStrings{})
	return &fixture{t: t, store: store, codec: c, project: project, s: NewSearcher(store, c, 16)}
}

func (f *fixture) scope(patterns ...string) Scope {
	return Scope{ProjectID: f.project.ID, Patterns: patterns}
}

// addClass stores idx as the index of one class file
func (f *fixture) addClass(path, className, superName string, idx types.Index, interfaces ...string) {
	f.t.Helper()
	ctx := context.Background()
	file := &storage.File{
		ProjectID:   f.project.ID,
		Path:        path,
		ClassName:   className,
		SuperName:   superName,
		ContentHash: uint64(len(path)),
		ModTime:     time.Now(),
	}
	require.NoError(f.t, f.store.UpsertFile(ctx, file))

	entries := make(map[string][]byte, len(idx))
	for name, v := range idx {
		b, err := f.codec.EncodeValue(v)
		require.NoError(f.t, err)
		entries[name] = b
	}
	require.NoError(f.t, f.store.ReplaceEntries(ctx, file.ID, entries))

	supertypes := append([]string{superName}, interfaces...)
	require.NoError(f.t, f.store.ReplaceSupertypes(ctx, file.ID, supertypes))
}

func index(add func(types.Index)) types.Index {
	idx := make(types.Index)
	add(idx)
	return idx
}

func TestSearch_DirectHits(t *testing.T) {
	f := newFixture(t)
	read := types.FieldKey{Owner: "a/A"}
	f.addClass("a/B.class", "a/B", "java/lang/Object", index(func(idx types.Index) {
		idx.Add("x", read, "run:()V", 2)
		idx.Add("x", types.FieldKey{Owner: "a/A", IsWrite: true}, "set:()V", 1)
		idx.Add("y", read, "run:()V", 5)
	}))
	f.addClass("a/C.class", "a/C", "java/lang/Object", index(func(idx types.Index) {
		idx.Add("x", read, "<clinit>:()V", 1)
	}))

	hits, err := f.s.Search(context.Background(), "x", read, f.scope())
	require.NoError(t, err)
	assert.Equal(t, FileHits{
		"a/B.class": {"run:()V": 2},
		"a/C.class": {"<clinit>:()V": 1},
	}, hits)
	assert.Equal(t, 3, hits.Total())
	assert.Equal(t, []string{"a/B.class", "a/C.class"}, hits.Files())

	none, err := f.s.Search(context.Background(), "missing", read, f.scope())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearch_FollowsAccessor(t *testing.T) {
	f := newFixture(t)
	read := types.FieldKey{Owner: "a/A"}
	accessor := types.MethodKey{Owner: "a/A", Desc: "(La/A;)I"}

	// a/A.access$000 returns a.x
	f.addClass("a/A.class", "a/A", "java/lang/Object", index(func(idx types.Index) {
		idx.Add("x", types.DelegateKey{Inner: read}, "access$000:(La/A;)I", 1)
	}))
	f.addClass("a/A$Inner.class", "a/A$Inner", "java/lang/Object", index(func(idx types.Index) {
		idx.Add("access$000", accessor, "run:()V", 3)
		idx.Add("x", read, "run:()V", 1)
	}))

	hits, err := f.s.Search(context.Background(), "x", read, f.scope())
	require.NoError(t, err)
	assert.Equal(t, FileHits{"a/A$Inner.class": {"run:()V": 4}}, hits)

	// The write key has no accessor
	writes, err := f.s.Search(context.Background(), "x", types.FieldKey{Owner: "a/A", IsWrite: true}, f.scope())
	require.NoError(t, err)
	assert.Empty(t, writes)
}

func TestSearch_AccessorAtFieldLocation(t *testing.T) {
	f := newFixture(t)
	target := types.MethodKey{Owner: "a/T", Desc: "()V"}
	f.addClass("a/A.class", "a/A", "java/lang/Object", index(func(idx types.Index) {
		idx.Add("go", types.DelegateKey{Inner: target}, "y:I", 1)
	}))
	f.addClass("a/B.class", "a/B", "java/lang/Object", index(func(idx types.Index) {
		idx.Add("y", types.FieldKey{Owner: "a/A"}, "r:()V", 1)
		idx.Add("y", types.FieldKey{Owner: "a/A", IsWrite: true}, "w:()V", 2)
	}))

	hits, err := f.s.Search(context.Background(), "go", target, f.scope())
	require.NoError(t, err)
	assert.Equal(t, FileHits{"a/B.class": {"r:()V": 1, "w:()V": 2}}, hits)
}

func TestSearch_AccessorCycles(t *testing.T) {
	t.Run("mutual delegation", func(t *testing.T) {
		f := newFixture(t)
		read := types.FieldKey{Owner: "a/A"}
		call := types.MethodKey{Owner: "a/A", Desc: "()I"}
		f.addClass("a/A.class", "a/A", "java/lang/Object", index(func(idx types.Index) {
			idx.Add("x", types.DelegateKey{Inner: read}, "acc1:()I", 1)
			idx.Add("acc1", types.DelegateKey{Inner: call}, "acc2:()I", 1)
			idx.Add("acc2", types.DelegateKey{Inner: call}, "acc1:()I", 1)
		}))
		f.addClass("a/B.class", "a/B", "java/lang/Object", index(func(idx types.Index) {
			idx.Add("acc1", call, "main:()V", 1)
		}))

		hits, err := f.s.Search(context.Background(), "x", read, f.scope())
		require.NoError(t, err)
		assert.Equal(t, FileHits{"a/B.class": {"main:()V": 1}}, hits)
	})

	t.Run("self delegation", func(t *testing.T) {
		f := newFixture(t)
		call := types.MethodKey{Owner: "a/A", Desc: "()V"}
		f.addClass("a/A.class", "a/A", "java/lang/Object", index(func(idx types.Index) {
			idx.Add("acc", types.DelegateKey{Inner: call}, "acc:()V", 1)
		}))

		hits, err := f.s.Search(context.Background(), "acc", call, f.scope())
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("barrier does not leak across calls", func(t *testing.T) {
		f := newFixture(t)
		read := types.FieldKey{Owner: "a/A"}
		call := types.MethodKey{Owner: "a/A", Desc: "()I"}
		f.addClass("a/A.class", "a/A", "java/lang/Object", index(func(idx types.Index) {
			idx.Add("x", types.DelegateKey{Inner: read}, "get:()I", 1)
		}))
		f.addClass("a/B.class", "a/B", "java/lang/Object", index(func(idx types.Index) {
			idx.Add("get", call, "main:()V", 1)
		}))

		for i := 0; i < 2; i++ {
			hits, err := f.s.Search(context.Background(), "x", read, f.scope())
			require.NoError(t, err)
			assert.Equal(t, 1, hits.Total())
		}
	})
}

func TestSearchReturnKeys(t *testing.T) {
	f := newFixture(t)
	read := types.FieldKey{Owner: "a/A"}
	write := types.FieldKey{Owner: "a/A", IsWrite: true}
	f.addClass("a/A.class", "a/A", "java/lang/Object", index(func(idx types.Index) {
		idx.Add("x", types.DelegateKey{Inner: write}, "access$002:(La/A;I)I", 1)
	}))
	f.addClass("a/B.class", "a/B", "java/lang/Object", index(func(idx types.Index) {
		idx.Add("x", read, "run:()V", 2)
		idx.Add("x", types.ClassKey{}, "run:()V", 7)
		idx.Add("access$002", types.MethodKey{Owner: "a/A", Desc: "(La/A;I)I"}, "run:()V", 1)
	}))

	isField := func(k types.Key) bool {
		_, ok := k.(types.FieldKey)
		return ok
	}

	hits, err := f.s.SearchReturnKeys(context.Background(), "x", isField, f.scope())
	require.NoError(t, err)
	assert.Equal(t, KeyHits{
		"a/B.class": {
			read:  {"run:()V": 2},
			write: {"run:()V": 1},
		},
	}, hits)

	flat, err := f.s.SearchMatching(context.Background(), "x", isField, f.scope())
	require.NoError(t, err)
	assert.Equal(t, FileHits{"a/B.class": {"run:()V": 3}}, flat)
}

func TestSearch_Scope(t *testing.T) {
	f := newFixture(t)
	key := types.ClassKey{}
	f.addClass("classes/a/B.class", "a/B", "java/lang/Object", index(func(idx types.Index) {
		idx.Add("a/A", key, "", 1)
	}))
	f.addClass("lib/dep.jar!/c/C.class", "c/C", "java/lang/Object", index(func(idx types.Index) {
		idx.Add("a/A", key, "", 1)
	}))

	hits, err := f.s.Search(context.Background(), "a/A", key, f.scope("lib/*.jar!/**"))
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/dep.jar!/c/C.class"}, hits.Files())

	second := &storage.Project{RootPath: "/other", IndexVersion: codec.FormatVersion}
	require.NoError(t, f.store.CreateProject(context.Background(), second))
	other, err := f.s.Search(context.Background(), "a/A", key, Scope{ProjectID: second.ID})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSearch_ProjectGate(t *testing.T) {
	ctx := context.Background()
	key := types.ClassKey{}
	all := func(types.Key) bool { return true }

	t.Run("needs rebuild", func(t *testing.T) {
		f := newFixture(t)
		f.addClass("a/B.class", "a/B", "java/lang/Object", index(func(idx types.Index) {
			idx.Add("a/A", key, "", 1)
		}))
		require.NoError(t, f.store.MarkRebuild(ctx, f.project.ID, true))

		hits, err := f.s.Search(ctx, "a/A", key, f.scope())
		assert.ErrorIs(t, err, ErrRebuildPending)
		assert.Nil(t, hits)
		_, err = f.s.SearchReturnKeys(ctx, "a/A", all, f.scope())
		assert.ErrorIs(t, err, ErrRebuildPending)
		assert.Zero(t, f.s.cache.Len(), "nothing decoded")

		require.NoError(t, f.store.MarkRebuild(ctx, f.project.ID, false))
		hits, err = f.s.Search(ctx, "a/A", key, f.scope())
		require.NoError(t, err)
		assert.Equal(t, 1, hits.Total())
	})

	t.Run("older format", func(t *testing.T) {
		f := newFixture(t)
		f.project.IndexVersion = codec.FormatVersion - 1
		require.NoError(t, f.store.UpdateProject(ctx, f.project))

		_, err := f.s.Search(ctx, "a/A", key, f.scope())
		assert.ErrorIs(t, err, ErrRebuildPending)
		_, err = f.s.FindClassReferences(ctx, "a/A", f.scope())
		assert.ErrorIs(t, err, ErrRebuildPending)
	})

	t.Run("unknown project", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.s.Search(ctx, "a/A", key, Scope{ProjectID: f.project.ID + 1})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestSearch_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.addClass("a/B.class", "a/B", "java/lang/Object", index(func(idx types.Index) {
		idx.Add("a/A", types.ClassKey{}, "", 1)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hits, err := f.s.Search(ctx, "a/A", types.ClassKey{}, f.scope())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, hits)
}

func TestSearch_UnknownKeyTag(t *testing.T) {
	f := newFixture(t)
	f.addClass("a/B.class", "a/B", "java/lang/Object", index(func(idx types.Index) {
		idx.Add("a/A", types.ClassKey{}, "", 1)
	}))
	file, err := f.store.GetFile(context.Background(), f.project.ID, "a/B.class")
	require.NoError(t, err)
	// One key with tag 9
	require.NoError(t, f.store.ReplaceEntries(context.Background(), file.ID, map[string][]byte{"a/A": {1, 9}}))

	var reported []error
	f.s.OnCorrupt = func(_ context.Context, projectID int64, cause error) error {
		assert.Equal(t, f.project.ID, projectID)
		reported = append(reported, cause)
		return errors.New("ignored")
	}

	_, err = f.s.Search(context.Background(), "a/A", types.ClassKey{}, f.scope())
	require.Error(t, err)
	assert.ErrorIs(t, err, codec.ErrUnknownKeyTag)
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], codec.ErrUnknownKeyTag)
}

func TestSearch_Cache(t *testing.T) {
	f := newFixture(t)
	f.addClass("a/B.class", "a/B", "java/lang/Object", index(func(idx types.Index) {
		idx.Add("a/A", types.ClassKey{}, "", 1)
	}))

	_, err := f.s.Search(context.Background(), "a/A", types.ClassKey{}, f.scope())
	require.NoError(t, err)
	assert.Equal(t, 1, f.s.cache.Len())

	// Replacing the value must not serve the stale decode
	f.addClass("a/B.class", "a/B", "java/lang/Object", index(func(idx types.Index) {
		idx.Add("a/A", types.ClassKey{}, "", 4)
	}))
	hits, err := f.s.Search(context.Background(), "a/A", types.ClassKey{}, f.scope())
	require.NoError(t, err)
	assert.Equal(t, 4, hits.Total())

	f.s.Purge()
	assert.Zero(t, f.s.cache.Len())
}

func TestSearch_InvalidArguments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.s.Search(ctx, "", types.ClassKey{}, f.scope())
	assert.ErrorIs(t, err, types.ErrEmptyName)

	_, err = f.s.Search(ctx, "a/A", nil, f.scope())
	assert.ErrorIs(t, err, types.ErrNilKey)

	_, err = f.s.SearchReturnKeys(ctx, "", func(types.Key) bool { return true }, f.scope())
	assert.ErrorIs(t, err, types.ErrEmptyName)
}
