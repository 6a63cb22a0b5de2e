package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// Project operations

const projectColumns = `id, root_path, index_version, needs_rebuild, total_files, total_entries,
		       last_indexed_at, created_at, updated_at`

func scanProject(row scanner) (*Project, error) {
	var project Project
	var lastIndexedAt sql.NullTime
	err := row.Scan(
		&project.ID, &project.RootPath, &project.IndexVersion, &project.NeedsRebuild,
		&project.TotalFiles, &project.TotalEntries,
		&lastIndexedAt, &project.CreatedAt, &project.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastIndexedAt.Valid {
		project.LastIndexedAt = lastIndexedAt.Time
	}
	return &project, nil
}

// createProjectWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) createProjectWithQuerier(ctx context.Context, q querier, project *Project) error {
	query := `
		INSERT INTO projects (root_path, index_version, needs_rebuild, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		project.RootPath, project.IndexVersion, project.NeedsRebuild, now, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("project %s: %w", project.RootPath, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	project.ID = id
	project.CreatedAt = now
	project.UpdatedAt = now
	return nil
}

// isUniqueViolation matches the constraint message both SQLite drivers report
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLiteStorage) CreateProject(ctx context.Context, project *Project) error {
	return s.createProjectWithQuerier(ctx, s.querier(), project)
}

// getProjectWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getProjectWithQuerier(ctx context.Context, q querier, rootPath string) (*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE root_path = ?`
	return scanProject(q.QueryRowContext(ctx, query, rootPath))
}

func (s *SQLiteStorage) GetProject(ctx context.Context, rootPath string) (*Project, error) {
	return s.getProjectWithQuerier(ctx, s.querier(), rootPath)
}

func (s *SQLiteStorage) getProjectByIDWithQuerier(ctx context.Context, q querier, projectID int64) (*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`
	return scanProject(q.QueryRowContext(ctx, query, projectID))
}

func (s *SQLiteStorage) GetProjectByID(ctx context.Context, projectID int64) (*Project, error) {
	return s.getProjectByIDWithQuerier(ctx, s.querier(), projectID)
}

func (s *SQLiteStorage) listProjectsWithQuerier(ctx context.Context, q querier) ([]*Project, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY root_path`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	projects := make([]*Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

func (s *SQLiteStorage) ListProjects(ctx context.Context) ([]*Project, error) {
	return s.listProjectsWithQuerier(ctx, s.querier())
}

// updateProjectWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) updateProjectWithQuerier(ctx context.Context, q querier, project *Project) error {
	query := `
		UPDATE projects
		SET index_version = ?, needs_rebuild = ?, total_files = ?, total_entries = ?,
		    last_indexed_at = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		project.IndexVersion, project.NeedsRebuild, project.TotalFiles, project.TotalEntries,
		project.LastIndexedAt, now, project.ID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	project.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpdateProject(ctx context.Context, project *Project) error {
	return s.updateProjectWithQuerier(ctx, s.querier(), project)
}

func (s *SQLiteStorage) markRebuildWithQuerier(ctx context.Context, q querier, projectID int64, needed bool) error {
	result, err := q.ExecContext(ctx,
		`UPDATE projects SET needs_rebuild = ?, updated_at = ? WHERE id = ?`,
		needed, time.Now(), projectID)
	if err != nil {
		return fmt.Errorf("failed to mark rebuild: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRebuild records that the project's index must be rebuilt before it is trusted again
func (s *SQLiteStorage) MarkRebuild(ctx context.Context, projectID int64, needed bool) error {
	return s.markRebuildWithQuerier(ctx, s.querier(), projectID, needed)
}

func (s *SQLiteStorage) resetProjectWithQuerier(ctx context.Context, q querier, projectID int64, indexVersion int) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM files WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("failed to reset project files: %w", err)
	}
	_, err := q.ExecContext(ctx, `
		UPDATE projects
		SET index_version = ?, needs_rebuild = 0, total_files = 0, total_entries = 0, updated_at = ?
		WHERE id = ?
	`, indexVersion, time.Now(), projectID)
	if err != nil {
		return fmt.Errorf("failed to reset project: %w", err)
	}
	return nil
}

// ResetProject drops every file, entry and supertype of the project and stamps the
// new index format version.
func (s *SQLiteStorage) ResetProject(ctx context.Context, projectID int64, indexVersion int) error {
	return s.resetProjectWithQuerier(ctx, s.querier(), projectID, indexVersion)
}

// File operations

const fileColumns = `id, project_id, path, class_name, super_name, content_hash, size_bytes,
		       mod_time, parse_error, last_indexed_at, created_at, updated_at`

func scanFile(row scanner) (*File, error) {
	var file File
	var hash int64
	var parseError sql.NullString
	err := row.Scan(
		&file.ID, &file.ProjectID, &file.Path, &file.ClassName, &file.SuperName,
		&hash, &file.SizeBytes, &file.ModTime, &parseError,
		&file.LastIndexedAt, &file.CreatedAt, &file.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	file.ContentHash = uint64(hash)
	if parseError.Valid {
		file.ParseError = &parseError.String
	}
	return &file, nil
}

// upsertFileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertFileWithQuerier(ctx context.Context, q querier, file *File) error {
	query := `
		INSERT INTO files (project_id, path, class_name, super_name, content_hash, size_bytes,
		                   mod_time, parse_error, last_indexed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, path) DO UPDATE SET
			class_name = excluded.class_name,
			super_name = excluded.super_name,
			content_hash = excluded.content_hash,
			size_bytes = excluded.size_bytes,
			mod_time = excluded.mod_time,
			parse_error = excluded.parse_error,
			last_indexed_at = excluded.last_indexed_at,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		file.ProjectID, file.Path, file.ClassName, file.SuperName, int64(file.ContentHash),
		file.SizeBytes, file.ModTime, file.ParseError, now, now, now).Scan(&file.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}

	file.LastIndexedAt = now
	file.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertFile(ctx context.Context, file *File) error {
	return s.upsertFileWithQuerier(ctx, s.querier(), file)
}

// getFileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getFileWithQuerier(ctx context.Context, q querier, projectID int64, path string) (*File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE project_id = ? AND path = ?`
	return scanFile(q.QueryRowContext(ctx, query, projectID, path))
}

func (s *SQLiteStorage) GetFile(ctx context.Context, projectID int64, path string) (*File, error) {
	return s.getFileWithQuerier(ctx, s.querier(), projectID, path)
}

// deleteFileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteFileWithQuerier(ctx context.Context, q querier, fileID int64) error {
	query := `DELETE FROM files WHERE id = ?`
	_, err := q.ExecContext(ctx, query, fileID)
	return err
}

func (s *SQLiteStorage) DeleteFile(ctx context.Context, fileID int64) error {
	return s.deleteFileWithQuerier(ctx, s.querier(), fileID)
}

// listFilesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listFilesWithQuerier(ctx context.Context, q querier, projectID int64) ([]*File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE project_id = ? ORDER BY path`
	rows, err := q.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	files := make([]*File, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *SQLiteStorage) ListFiles(ctx context.Context, projectID int64) ([]*File, error) {
	return s.listFilesWithQuerier(ctx, s.querier(), projectID)
}

// Entry operations

func (s *SQLiteStorage) replaceEntriesWithQuerier(ctx context.Context, q querier, fileID int64, entries map[string][]byte) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM entries WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		_, err := q.ExecContext(ctx,
			`INSERT INTO entries (file_id, name, value) VALUES (?, ?, ?)`,
			fileID, name, entries[name])
		if err != nil {
			return fmt.Errorf("failed to insert entry %q: %w", name, err)
		}
	}
	return nil
}

// ReplaceEntries swaps the file's stored index values for entries, keyed by referenced name
func (s *SQLiteStorage) ReplaceEntries(ctx context.Context, fileID int64, entries map[string][]byte) error {
	return s.replaceEntriesWithQuerier(ctx, s.querier(), fileID, entries)
}

func (s *SQLiteStorage) processEntriesWithQuerier(ctx context.Context, q querier, projectID int64, name string, fn func(*Entry) error) error {
	query := `
		SELECT e.id, e.file_id, f.path, f.class_name, e.value
		FROM entries e
		JOIN files f ON e.file_id = f.id
		WHERE f.project_id = ? AND e.name = ?
		ORDER BY f.path
	`
	rows, err := q.QueryContext(ctx, query, projectID, name)
	if err != nil {
		return err
	}

	// Rows are drained before fn runs so fn may query storage on the single connection.
	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.FileID, &e.Path, &e.ClassName, &e.Value); err != nil {
			_ = rows.Close()
			return err
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// ProcessEntries calls fn for every file of the project holding a value for name,
// in path order. An error from fn stops the walk and is returned.
func (s *SQLiteStorage) ProcessEntries(ctx context.Context, projectID int64, name string, fn func(*Entry) error) error {
	return s.processEntriesWithQuerier(ctx, s.querier(), projectID, name, fn)
}

// Hierarchy operations

func (s *SQLiteStorage) replaceSupertypesWithQuerier(ctx context.Context, q querier, fileID int64, names []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM supertypes WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("failed to clear supertypes: %w", err)
	}
	for _, name := range names {
		_, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO supertypes (file_id, name) VALUES (?, ?)`, fileID, name)
		if err != nil {
			return fmt.Errorf("failed to insert supertype %q: %w", name, err)
		}
	}
	return nil
}

// ReplaceSupertypes records the direct superclass and interfaces of a file's class
func (s *SQLiteStorage) ReplaceSupertypes(ctx context.Context, fileID int64, names []string) error {
	return s.replaceSupertypesWithQuerier(ctx, s.querier(), fileID, names)
}

func (s *SQLiteStorage) listSubtypesWithQuerier(ctx context.Context, q querier, projectID int64, name string) ([]string, error) {
	query := `
		SELECT DISTINCT f.class_name
		FROM supertypes st
		JOIN files f ON st.file_id = f.id
		WHERE f.project_id = ? AND st.name = ? AND f.class_name <> ''
		ORDER BY f.class_name
	`
	rows, err := q.QueryContext(ctx, query, projectID, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	names := make([]string, 0)
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// ListSubtypes returns the classes that directly extend or implement name
func (s *SQLiteStorage) ListSubtypes(ctx context.Context, projectID int64, name string) ([]string, error) {
	return s.listSubtypesWithQuerier(ctx, s.querier(), projectID, name)
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier, projectID int64) (*ProjectStatus, error) {
	project, err := s.getProjectByIDWithQuerier(ctx, q, projectID)
	if err != nil {
		return nil, err
	}

	status := &ProjectStatus{
		Project:       project,
		LastIndexedAt: project.LastIndexedAt,
	}

	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(parse_error) FROM files WHERE project_id = ?
	`, projectID).Scan(&status.FilesCount, &status.ParseErrors)
	if err != nil {
		return nil, err
	}

	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM entries e
		JOIN files f ON e.file_id = f.id
		WHERE f.project_id = ?
	`, projectID).Scan(&status.EntriesCount)
	if err != nil {
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	err = q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible: true,
		NeedsRebuild:       project.NeedsRebuild,
	}

	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error) {
	return s.getStatusWithQuerier(ctx, s.querier(), projectID)
}

// Transaction implementations route every call through the transaction's querier

func (t *sqliteTx) CreateProject(ctx context.Context, project *Project) error {
	return t.storage.createProjectWithQuerier(ctx, t.querier(), project)
}

func (t *sqliteTx) GetProject(ctx context.Context, rootPath string) (*Project, error) {
	return t.storage.getProjectWithQuerier(ctx, t.querier(), rootPath)
}

func (t *sqliteTx) GetProjectByID(ctx context.Context, projectID int64) (*Project, error) {
	return t.storage.getProjectByIDWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) ListProjects(ctx context.Context) ([]*Project, error) {
	return t.storage.listProjectsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) UpdateProject(ctx context.Context, project *Project) error {
	return t.storage.updateProjectWithQuerier(ctx, t.querier(), project)
}

func (t *sqliteTx) MarkRebuild(ctx context.Context, projectID int64, needed bool) error {
	return t.storage.markRebuildWithQuerier(ctx, t.querier(), projectID, needed)
}

func (t *sqliteTx) ResetProject(ctx context.Context, projectID int64, indexVersion int) error {
	return t.storage.resetProjectWithQuerier(ctx, t.querier(), projectID, indexVersion)
}

func (t *sqliteTx) UpsertFile(ctx context.Context, file *File) error {
	return t.storage.upsertFileWithQuerier(ctx, t.querier(), file)
}

func (t *sqliteTx) GetFile(ctx context.Context, projectID int64, path string) (*File, error) {
	return t.storage.getFileWithQuerier(ctx, t.querier(), projectID, path)
}

func (t *sqliteTx) ListFiles(ctx context.Context, projectID int64) ([]*File, error) {
	return t.storage.listFilesWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) DeleteFile(ctx context.Context, fileID int64) error {
	return t.storage.deleteFileWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) ReplaceEntries(ctx context.Context, fileID int64, entries map[string][]byte) error {
	return t.storage.replaceEntriesWithQuerier(ctx, t.querier(), fileID, entries)
}

func (t *sqliteTx) ProcessEntries(ctx context.Context, projectID int64, name string, fn func(*Entry) error) error {
	return t.storage.processEntriesWithQuerier(ctx, t.querier(), projectID, name, fn)
}

func (t *sqliteTx) ReplaceSupertypes(ctx context.Context, fileID int64, names []string) error {
	return t.storage.replaceSupertypesWithQuerier(ctx, t.querier(), fileID, names)
}

func (t *sqliteTx) ListSubtypes(ctx context.Context, projectID int64, name string) ([]string, error) {
	return t.storage.listSubtypesWithQuerier(ctx, t.querier(), projectID, name)
}

func (t *sqliteTx) GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
