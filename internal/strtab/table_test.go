package strtab

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEnumerateStableIDs(t *testing.T) {
	table, err := Open(&MemoryStore{})
	require.NoError(t, err)
	defer table.Close()

	a, err := table.Enumerate("java/lang/String")
	require.NoError(t, err)
	b, err := table.Enumerate("run:()V")
	require.NoError(t, err)
	again, err := table.Enumerate("java/lang/String")
	require.NoError(t, err)

	assert.Equal(t, uint32(0), a)
	assert.Equal(t, uint32(1), b)
	assert.Equal(t, a, again)
	assert.Equal(t, 2, table.Len())

	s, err := table.ValueOf(b)
	require.NoError(t, err)
	assert.Equal(t, "run:()V", s)

	_, err = table.ValueOf(7)
	assert.ErrorIs(t, err, ErrUnknownID)
}

func TestFileStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.strings")

	store, err := OpenFileStore(path)
	require.NoError(t, err)
	table, err := Open(store)
	require.NoError(t, err)
	for _, s := range []string{"", "a/B", "héllo", "x:I"} {
		_, err := table.Enumerate(s)
		require.NoError(t, err)
	}
	require.NoError(t, table.Close())

	store, err = OpenFileStore(path)
	require.NoError(t, err)
	table, err = Open(store)
	require.NoError(t, err)
	defer table.Close()

	assert.False(t, table.Recovered())
	assert.Equal(t, 4, table.Len())
	id, err := table.Enumerate("héllo")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), id)
}

func TestFileStoreTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.strings")
	// one complete record, then a record claiming 5 bytes with only 2 present
	require.NoError(t, os.WriteFile(path, []byte{3, 'a', '/', 'B', 5, 'x', 'y'}, 0o644))

	store, err := OpenFileStore(path)
	require.NoError(t, err)
	table, err := Open(store)
	require.NoError(t, err)
	defer table.Close()

	assert.True(t, table.Recovered())
	assert.Zero(t, table.Len())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestBrokenUntilRebuild(t *testing.T) {
	store := &MemoryStore{}
	table, err := Open(store)
	require.NoError(t, err)
	defer table.Close()

	_, err = table.Enumerate("kept")
	require.NoError(t, err)

	store.SetFail(errors.New("disk full"))
	_, err = table.Enumerate("lost")
	require.Error(t, err)

	store.SetFail(nil)
	_, err = table.Enumerate("later")
	assert.ErrorIs(t, err, ErrBroken)

	id, err := table.Enumerate("kept")
	require.NoError(t, err, "known strings still resolve")
	assert.Zero(t, id)

	require.NoError(t, table.Rebuild())
	assert.Zero(t, table.Len())
	id, err = table.Enumerate("later")
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestClosed(t *testing.T) {
	table, err := Open(&MemoryStore{})
	require.NoError(t, err)
	require.NoError(t, table.Close())
	require.NoError(t, table.Close())

	_, err = table.Enumerate("x")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = table.ValueOf(0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConcurrentEnumerate(t *testing.T) {
	table, err := Open(&MemoryStore{})
	require.NoError(t, err)
	defer table.Close()

	const workers, names = 8, 200
	results := make([][]uint32, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ids := make([]uint32, names)
			_ = table.View(func() error {
				for i := 0; i < names; i++ {
					id, err := table.Enumerate(fmt.Sprintf("name-%d", i))
					if err != nil {
						return err
					}
					ids[i] = id
				}
				return nil
			})
			results[w] = ids
		}(w)
	}
	wg.Wait()

	assert.Equal(t, names, table.Len())
	for w := 1; w < workers; w++ {
		assert.Equal(t, results[0], results[w])
	}
}
