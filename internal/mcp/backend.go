package mcp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/classindex-mcp/internal/indexer"
	"github.com/dshills/classindex-mcp/internal/searcher"
	"github.com/dshills/classindex-mcp/internal/storage"
	"github.com/dshills/classindex-mcp/internal/strtab"
)

const (
	dbFileName      = "classindex.db"
	stringsFileName = "classindex.strings"
)

// BackendOptions configures OpenBackend
type BackendOptions struct {
	// EnumerateStrings stores strings as ids into a table kept next to the database
	EnumerateStrings bool
	CacheSize        int
}

// Backend bundles the components sharing one index database
type Backend struct {
	Storage  *storage.SQLiteStorage
	Strings  *strtab.Table // nil when strings are stored inline
	Indexer  *indexer.Indexer
	Searcher *searcher.Searcher
}

// ExpandDBPath resolves a leading "~" and falls back to DefaultDBPath
func ExpandDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	if dbPath == "~" || strings.HasPrefix(dbPath, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, strings.TrimPrefix(dbPath, "~"))
	}
	return dbPath, nil
}

// OpenBackend opens or creates the index database in directory dbPath
func OpenBackend(dbPath string, opts BackendOptions) (*Backend, error) {
	dir, err := ExpandDBPath(dbPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(filepath.Join(dir, dbFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var table *strtab.Table
	if opts.EnumerateStrings {
		fs, err := strtab.OpenFileStore(filepath.Join(dir, stringsFileName))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		if table, err = strtab.Open(fs); err != nil {
			_ = fs.Close()
			_ = store.Close()
			return nil, err
		}
		if table.Recovered() {
			log.Printf("String table %s was truncated; indexed projects will be rebuilt", fs.Path())
		}
	}

	idx := indexer.New(store, table)
	srch := searcher.NewSearcher(store, idx.Codec(), opts.CacheSize)
	srch.OnCorrupt = idx.RequestRebuild

	return &Backend{
		Storage:  store,
		Strings:  table,
		Indexer:  idx,
		Searcher: srch,
	}, nil
}

// Index runs the indexer and drops cached lookups a rebuild made stale
func (b *Backend) Index(ctx context.Context, root string, config *indexer.Config) (*indexer.Statistics, error) {
	stats, err := b.Indexer.IndexProject(ctx, root, config)
	if err == nil && stats.Rebuilt {
		b.Searcher.Purge()
	}
	return stats, err
}

// Close releases the database and the string table
func (b *Backend) Close() error {
	var errs []error
	if b.Strings != nil {
		errs = append(errs, b.Strings.Close())
	}
	errs = append(errs, b.Storage.Close())
	return errors.Join(errs...)
}
