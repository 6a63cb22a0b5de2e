package storage

import (
	"context"
	"time"
)

// Storage defines the interface for persisting and querying indexed class data
type Storage interface {
	// Project operations
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, rootPath string) (*Project, error)
	GetProjectByID(ctx context.Context, projectID int64) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	UpdateProject(ctx context.Context, project *Project) error
	MarkRebuild(ctx context.Context, projectID int64, needed bool) error
	ResetProject(ctx context.Context, projectID int64, indexVersion int) error

	// File operations
	UpsertFile(ctx context.Context, file *File) error
	GetFile(ctx context.Context, projectID int64, path string) (*File, error)
	ListFiles(ctx context.Context, projectID int64) ([]*File, error)
	DeleteFile(ctx context.Context, fileID int64) error

	// Index entry operations
	ReplaceEntries(ctx context.Context, fileID int64, entries map[string][]byte) error
	ProcessEntries(ctx context.Context, projectID int64, name string, fn func(*Entry) error) error

	// Hierarchy operations
	ReplaceSupertypes(ctx context.Context, fileID int64, names []string) error
	ListSubtypes(ctx context.Context, projectID int64, name string) ([]string, error)

	// Status operations
	GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Project represents an indexed class path root
type Project struct {
	ID            int64
	RootPath      string
	IndexVersion  int
	NeedsRebuild  bool
	TotalFiles    int
	TotalEntries  int
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// File represents one tracked class file. Classes inside archives use
// "archive.jar!/pkg/Name.class" paths.
type File struct {
	ID            int64
	ProjectID     int64
	Path          string // Relative to project root
	ClassName     string // Internal name, e.g. java/lang/String
	SuperName     string
	ContentHash   uint64
	SizeBytes     int64
	ModTime       time.Time
	ParseError    *string // Nullable
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Entry is one stored index value: the encoded references a file makes to one name.
type Entry struct {
	ID        int64
	FileID    int64
	Path      string
	ClassName string
	Value     []byte
}

// ProjectStatus contains statistics about an indexed project
type ProjectStatus struct {
	Project       *Project
	FilesCount    int
	EntriesCount  int
	ParseErrors   int
	IndexSizeMB   float64
	LastIndexedAt time.Time
	Health        HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible bool
	NeedsRebuild       bool
}
