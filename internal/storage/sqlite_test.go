package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	return storage
}

func setupProject(t *testing.T, storage *SQLiteStorage) *Project {
	project := &Project{RootPath: "/test", IndexVersion: 3}
	require.NoError(t, storage.CreateProject(context.Background(), project))
	return project
}

func setupFile(t *testing.T, storage *SQLiteStorage, projectID int64, path, className string) *File {
	file := &File{
		ProjectID:   projectID,
		Path:        path,
		ClassName:   className,
		SuperName:   "java/lang/Object",
		ContentHash: 0xfeedfacecafebeef,
		ModTime:     time.Now(),
		SizeBytes:   100,
	}
	require.NoError(t, storage.UpsertFile(context.Background(), file))
	return file
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	assert.NotNil(t, storage)
	assert.NotNil(t, storage.db)
}

func TestClose(t *testing.T) {
	storage := setupTestDB(t)
	err := storage.Close()
	assert.NoError(t, err)
}

func TestMigrations_Applied(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	v, err := currentVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())

	// Re-applying is a no-op
	require.NoError(t, ApplyMigrations(ctx, storage.db))

	var name string
	err = storage.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='supertypes'").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "supertypes", name)
}

func TestRollbackMigration(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, RollbackMigration(ctx, storage.db))

	v, err := currentVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v.String())

	var count int
	err = storage.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='supertypes'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, ApplyMigrations(ctx, storage.db))
	v, err = currentVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())
}

func TestCreateProject(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	project := &Project{RootPath: "/test/path", IndexVersion: 3}

	err := storage.CreateProject(ctx, project)
	require.NoError(t, err)
	assert.Greater(t, project.ID, int64(0))

	// Try to create duplicate - should fail
	duplicate := &Project{RootPath: "/test/path"}
	err = storage.CreateProject(ctx, duplicate)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGetProject(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	project := setupProject(t, storage)

	retrieved, err := storage.GetProject(ctx, "/test")
	require.NoError(t, err)
	assert.Equal(t, project.ID, retrieved.ID)
	assert.Equal(t, 3, retrieved.IndexVersion)
	assert.False(t, retrieved.NeedsRebuild)

	byID, err := storage.GetProjectByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "/test", byID.RootPath)
}

func TestListProjects(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, storage.CreateProject(ctx, &Project{RootPath: "/b"}))
	require.NoError(t, storage.CreateProject(ctx, &Project{RootPath: "/a"}))

	projects, err := storage.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "/a", projects[0].RootPath)
	assert.Equal(t, "/b", projects[1].RootPath)
}

func TestGetProject_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	_, err := storage.GetProject(context.Background(), "/nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = storage.GetProjectByID(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateProject(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	project := setupProject(t, storage)

	project.TotalFiles = 10
	project.TotalEntries = 250
	project.LastIndexedAt = time.Now()
	require.NoError(t, storage.UpdateProject(ctx, project))

	retrieved, err := storage.GetProject(ctx, "/test")
	require.NoError(t, err)
	assert.Equal(t, 10, retrieved.TotalFiles)
	assert.Equal(t, 250, retrieved.TotalEntries)
	assert.False(t, retrieved.LastIndexedAt.IsZero())
}

func TestMarkRebuild(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	project := setupProject(t, storage)

	require.NoError(t, storage.MarkRebuild(ctx, project.ID, true))
	retrieved, err := storage.GetProjectByID(ctx, project.ID)
	require.NoError(t, err)
	assert.True(t, retrieved.NeedsRebuild)

	assert.ErrorIs(t, storage.MarkRebuild(ctx, 999, true), ErrNotFound)
}

func TestUpsertFile(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	project := setupProject(t, storage)
	file := setupFile(t, storage, project.ID, "a/B.class", "a/B")
	assert.Greater(t, file.ID, int64(0))

	// Upsert again with a new hash keeps the id
	firstID := file.ID
	file.ContentHash = 7
	require.NoError(t, storage.UpsertFile(ctx, file))
	assert.Equal(t, firstID, file.ID)

	retrieved, err := storage.GetFile(ctx, project.ID, "a/B.class")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), retrieved.ContentHash)
}

func TestGetFile(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	project := setupProject(t, storage)
	msg := "parse class file: bad magic"
	file := &File{
		ProjectID:   project.ID,
		Path:        "lib.jar!/a/C.class",
		ContentHash: 0xffffffffffffffff,
		ModTime:     time.Now(),
		ParseError:  &msg,
	}
	require.NoError(t, storage.UpsertFile(ctx, file))

	retrieved, err := storage.GetFile(ctx, project.ID, "lib.jar!/a/C.class")
	require.NoError(t, err)
	assert.Equal(t, file.ID, retrieved.ID)
	assert.Equal(t, uint64(0xffffffffffffffff), retrieved.ContentHash)
	require.NotNil(t, retrieved.ParseError)
	assert.Equal(t, msg, *retrieved.ParseError)
}

func TestGetFile_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	_, err := storage.GetFile(context.Background(), 1, "missing.class")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListFiles(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	project := setupProject(t, storage)
	setupFile(t, storage, project.ID, "b/B.class", "b/B")
	setupFile(t, storage, project.ID, "a/A.class", "a/A")

	files, err := storage.ListFiles(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a/A.class", files[0].Path)
	assert.Equal(t, "b/B.class", files[1].Path)
}

func TestDeleteFile_Cascades(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	project := setupProject(t, storage)
	file := setupFile(t, storage, project.ID, "a/B.class", "a/B")
	require.NoError(t, storage.ReplaceEntries(ctx, file.ID, map[string][]byte{"x/Y": {1}}))
	require.NoError(t, storage.ReplaceSupertypes(ctx, file.ID, []string{"x/Base"}))

	require.NoError(t, storage.DeleteFile(ctx, file.ID))

	_, err := storage.GetFile(ctx, project.ID, "a/B.class")
	assert.ErrorIs(t, err, ErrNotFound)

	status, err := storage.GetStatus(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, status.EntriesCount)

	subs, err := storage.ListSubtypes(ctx, project.ID, "x/Base")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestReplaceEntries_ProcessEntries(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	project := setupProject(t, storage)
	b := setupFile(t, storage, project.ID, "b/B.class", "b/B")
	a := setupFile(t, storage, project.ID, "a/A.class", "a/A")

	require.NoError(t, storage.ReplaceEntries(ctx, a.ID, map[string][]byte{
		"java/lang/String": {1, 2},
		"x/Other":          {9},
	}))
	require.NoError(t, storage.ReplaceEntries(ctx, b.ID, map[string][]byte{
		"java/lang/String": {3},
	}))

	var seen []*Entry
	err := storage.ProcessEntries(ctx, project.ID, "java/lang/String", func(e *Entry) error {
		seen = append(seen, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Equal(t, "a/A.class", seen[0].Path)
	assert.Equal(t, "a/A", seen[0].ClassName)
	assert.Equal(t, []byte{1, 2}, seen[0].Value)
	assert.Equal(t, "b/B.class", seen[1].Path)

	// Replacing drops names the file no longer references
	require.NoError(t, storage.ReplaceEntries(ctx, a.ID, map[string][]byte{"x/Other": {8}}))
	seen = nil
	err = storage.ProcessEntries(ctx, project.ID, "java/lang/String", func(e *Entry) error {
		seen = append(seen, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, "b/B.class", seen[0].Path)
}

func TestProcessEntries_StopsOnError(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	project := setupProject(t, storage)
	for _, p := range []string{"a/A.class", "b/B.class"} {
		f := setupFile(t, storage, project.ID, p, p[:3])
		require.NoError(t, storage.ReplaceEntries(ctx, f.ID, map[string][]byte{"n": {0}}))
	}

	stop := errors.New("stop")
	calls := 0
	err := storage.ProcessEntries(ctx, project.ID, "n", func(*Entry) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestProcessEntries_NestedQuery(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	project := setupProject(t, storage)
	f := setupFile(t, storage, project.ID, "a/A.class", "a/A")
	require.NoError(t, storage.ReplaceEntries(ctx, f.ID, map[string][]byte{"n": {0}, "m": {1}}))

	// The callback may query storage again on the single connection
	var inner int
	err := storage.ProcessEntries(ctx, project.ID, "n", func(*Entry) error {
		return storage.ProcessEntries(ctx, project.ID, "m", func(*Entry) error {
			inner++
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inner)
}

func TestProcessEntries_Cancelled(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	project := setupProject(t, storage)
	f := setupFile(t, storage, project.ID, "a/A.class", "a/A")
	require.NoError(t, storage.ReplaceEntries(context.Background(), f.ID, map[string][]byte{"n": {0}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := storage.ProcessEntries(ctx, project.ID, "n", func(*Entry) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListSubtypes(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	project := setupProject(t, storage)
	impl := setupFile(t, storage, project.ID, "a/Impl.class", "a/Impl")
	other := setupFile(t, storage, project.ID, "a/Other.class", "a/Other")

	require.NoError(t, storage.ReplaceSupertypes(ctx, impl.ID, []string{"a/Base", "a/Iface", "a/Iface"}))
	require.NoError(t, storage.ReplaceSupertypes(ctx, other.ID, []string{"a/Iface"}))

	subs, err := storage.ListSubtypes(ctx, project.ID, "a/Iface")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/Impl", "a/Other"}, subs)

	subs, err = storage.ListSubtypes(ctx, project.ID, "a/Base")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/Impl"}, subs)
}

func TestResetProject(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	project := setupProject(t, storage)
	f := setupFile(t, storage, project.ID, "a/A.class", "a/A")
	require.NoError(t, storage.ReplaceEntries(ctx, f.ID, map[string][]byte{"n": {0}}))
	require.NoError(t, storage.MarkRebuild(ctx, project.ID, true))

	require.NoError(t, storage.ResetProject(ctx, project.ID, 4))

	files, err := storage.ListFiles(ctx, project.ID)
	require.NoError(t, err)
	assert.Empty(t, files)

	retrieved, err := storage.GetProjectByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, retrieved.IndexVersion)
	assert.False(t, retrieved.NeedsRebuild)
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	project := setupProject(t, storage)
	f := setupFile(t, storage, project.ID, "a/A.class", "a/A")
	require.NoError(t, storage.ReplaceEntries(ctx, f.ID, map[string][]byte{"n": {0}, "m": {1}}))

	msg := "truncated"
	broken := &File{ProjectID: project.ID, Path: "bad.class", ModTime: time.Now(), ParseError: &msg}
	require.NoError(t, storage.UpsertFile(ctx, broken))

	status, err := storage.GetStatus(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, status.FilesCount)
	assert.Equal(t, 2, status.EntriesCount)
	assert.Equal(t, 1, status.ParseErrors)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.False(t, status.Health.NeedsRebuild)
	assert.Greater(t, status.IndexSizeMB, 0.0)
}

func TestBeginTx_CommitRollback(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()

	// Test commit
	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)

	project := &Project{RootPath: "/test"}
	err = tx.CreateProject(ctx, project)
	require.NoError(t, err)

	file := &File{ProjectID: project.ID, Path: "a/A.class", ClassName: "a/A", ModTime: time.Now()}
	require.NoError(t, tx.UpsertFile(ctx, file))
	require.NoError(t, tx.ReplaceEntries(ctx, file.ID, map[string][]byte{"n": {1}}))

	err = tx.Commit()
	require.NoError(t, err)

	// Verify committed
	retrieved, err := storage.GetProject(ctx, "/test")
	require.NoError(t, err)
	assert.Equal(t, project.ID, retrieved.ID)

	// Test rollback
	tx2, err := storage.BeginTx(ctx)
	require.NoError(t, err)

	project2 := &Project{RootPath: "/test2"}
	err = tx2.CreateProject(ctx, project2)
	require.NoError(t, err)

	_, err = tx2.BeginTx(ctx)
	assert.Error(t, err)

	err = tx2.Rollback()
	require.NoError(t, err)

	// Verify not committed
	_, err = storage.GetProject(ctx, "/test2")
	assert.ErrorIs(t, err, ErrNotFound)
}
