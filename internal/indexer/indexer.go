package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/classindex-mcp/internal/codec"
	"github.com/dshills/classindex-mcp/internal/extractor"
	"github.com/dshills/classindex-mcp/internal/storage"
	"github.com/dshills/classindex-mcp/internal/strtab"
)

// ErrIndexingInProgress is returned when another run holds the indexer
var ErrIndexingInProgress = errors.New("indexing already in progress")

// maxRuns bounds the automatic full re-scan after the string table fails mid-run
const maxRuns = 2

// Indexer coordinates the indexing pipeline: discover -> extract -> encode -> store
type Indexer struct {
	storage storage.Storage
	strings *strtab.Table
	codec   *codec.Codec
	lock    IndexLock

	// tableBroken is set from encode callbacks; it is acted on between runs
	tableBroken atomic.Bool
}

// Config contains configuration for the indexer
type Config struct {
	Workers              int      // Number of concurrent workers (default: runtime.NumCPU())
	BatchSize            int      // Number of files to commit per transaction (default: 50)
	Include              []string // doublestar patterns, empty means everything
	Exclude              []string
	MaxFileSize          int64 // Larger class files are skipped (default: 64MB)
	IndexStringConstants bool
	ForceReindex         bool // Drop the project's index and re-scan every file
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	FilesIndexed      int
	FilesSkipped      int
	FilesFailed       int
	FilesRemoved      int
	EntriesWritten    int
	References        int
	AccessorsInlined  int
	LambdasPropagated int
	Rebuilt           bool
	RebuildReason     string
	Duration          time.Duration
	ErrorMessages     []string
}

// counters are shared by workers during one run
type counters struct {
	skipped    atomic.Int64
	failed     atomic.Int64
	references atomic.Int64
	accessors  atomic.Int64
	lambdas    atomic.Int64

	mu     sync.Mutex
	errors []string
}

func (c *counters) fail(path string, err error) {
	c.failed.Add(1)
	c.mu.Lock()
	c.errors = append(c.errors, fmt.Sprintf("%s: %v", path, err))
	c.mu.Unlock()
}

// fileResult is what a worker hands to the writer for one class file
type fileResult struct {
	file       *storage.File
	entries    map[string][]byte
	supertypes []string
}

// New creates an Indexer. With a nil table, strings are stored inline in every value.
func New(store storage.Storage, table *strtab.Table) *Indexer {
	idx := &Indexer{storage: store, strings: table}
	if table == nil {
		idx.codec = codec.New(codec.RawStrings{})
		return idx
	}
	idx.codec = codec.New(&codec.EnumeratedStrings{
		Table: table,
		// Only flag here: the callback runs inside a table view
		OnFailure: func(error) { idx.tableBroken.Store(true) },
	})
	if table.Recovered() {
		idx.tableBroken.Store(true)
	}
	return idx
}

// Codec returns the codec values are stored with
func (idx *Indexer) Codec() *codec.Codec {
	return idx.codec
}

// Storage returns the backing store
func (idx *Indexer) Storage() storage.Storage {
	return idx.storage
}

// RequestRebuild marks the project for a full rebuild on its next run. Enumeration
// failures also schedule a string table reset.
func (idx *Indexer) RequestRebuild(ctx context.Context, projectID int64, cause error) error {
	log.Printf("Index rebuild requested for project %d: %v", projectID, cause)
	if errors.Is(cause, codec.ErrEnumeration) {
		idx.tableBroken.Store(true)
	}
	return idx.storage.MarkRebuild(ctx, projectID, true)
}

// IndexProject indexes every class file and jar under rootPath
func (idx *Indexer) IndexProject(ctx context.Context, rootPath string, config *Config) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	config = withDefaults(config)
	startTime := time.Now()

	project, err := idx.getOrCreateProject(ctx, rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create project: %w", err)
	}

	var stats *Statistics
	force := config.ForceReindex
	for run := 0; run < maxRuns; run++ {
		if err := idx.repairStrings(ctx); err != nil {
			return nil, err
		}
		// The flag may have been set by a repair or by a lookup
		if project, err = idx.storage.GetProjectByID(ctx, project.ID); err != nil {
			return nil, err
		}

		full, reason := needsRebuild(project, force)
		if full {
			log.Printf("Rebuilding index for %s: %s", rootPath, reason)
			if err := idx.storage.ResetProject(ctx, project.ID, codec.FormatVersion); err != nil {
				return nil, fmt.Errorf("failed to reset project: %w", err)
			}
		}

		stats, err = idx.indexOnce(ctx, project, rootPath, config)
		if err != nil {
			return nil, err
		}
		if full {
			stats.Rebuilt = true
			stats.RebuildReason = reason
		}

		if !idx.tableBroken.Load() {
			break
		}
		force = true
	}

	if err := idx.updateProjectStats(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to update project stats: %w", err)
	}

	stats.Duration = time.Since(startTime)
	return stats, nil
}

func withDefaults(config *Config) *Config {
	c := Config{}
	if config != nil {
		c = *config
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 64 * 1024 * 1024
	}
	return &c
}

// needsRebuild reports whether the project's stored entries can be kept
func needsRebuild(project *storage.Project, force bool) (bool, string) {
	switch {
	case force:
		return true, "forced"
	case project.IndexVersion != codec.FormatVersion:
		return true, fmt.Sprintf("index format %d, want %d", project.IndexVersion, codec.FormatVersion)
	case project.NeedsRebuild:
		return true, "rebuild requested"
	}
	return false, ""
}

// repairStrings resets a failed string table. Every project's entries hold ids from
// the old table, so all of them are marked for rebuild.
func (idx *Indexer) repairStrings(ctx context.Context) error {
	if idx.strings == nil || !idx.tableBroken.Load() {
		return nil
	}
	log.Printf("Resetting string table")
	if err := idx.strings.Rebuild(); err != nil {
		return fmt.Errorf("failed to rebuild string table: %w", err)
	}
	projects, err := idx.storage.ListProjects(ctx)
	if err != nil {
		return err
	}
	for _, p := range projects {
		if err := idx.storage.MarkRebuild(ctx, p.ID, true); err != nil {
			return err
		}
	}
	idx.tableBroken.Store(false)
	return nil
}

// getOrCreateProject retrieves an existing project or creates a new one
func (idx *Indexer) getOrCreateProject(ctx context.Context, rootPath string) (*storage.Project, error) {
	project, err := idx.storage.GetProject(ctx, rootPath)
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	project = &storage.Project{
		RootPath:     rootPath,
		IndexVersion: codec.FormatVersion,
	}
	err = idx.storage.CreateProject(ctx, project)
	if errors.Is(err, storage.ErrAlreadyExists) {
		// Created by a run for the same root on another indexer sharing the database
		return idx.storage.GetProject(ctx, rootPath)
	}
	if err != nil {
		return nil, err
	}
	return project, nil
}

// indexOnce runs discovery, extraction and storage once
func (idx *Indexer) indexOnce(ctx context.Context, project *storage.Project, rootPath string, config *Config) (*Statistics, error) {
	units, tooLarge, err := idx.discoverFiles(rootPath, config)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	existing, err := idx.storage.ListFiles(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]*storage.File, len(existing))
	for _, f := range existing {
		known[f.Path] = f
	}

	stats := &Statistics{ErrorMessages: make([]string, 0)}
	c := &counters{}
	c.skipped.Add(int64(tooLarge))

	indexed, entries, err := idx.indexFiles(ctx, project, units, known, config, c)
	if err != nil {
		return nil, fmt.Errorf("failed to index files: %w", err)
	}

	removed, err := idx.pruneFiles(ctx, units, known)
	if err != nil {
		return nil, fmt.Errorf("failed to prune files: %w", err)
	}

	stats.FilesIndexed = indexed
	stats.EntriesWritten = entries
	stats.FilesSkipped = int(c.skipped.Load())
	stats.FilesFailed = int(c.failed.Load())
	stats.FilesRemoved = removed
	stats.References = int(c.references.Load())
	stats.AccessorsInlined = int(c.accessors.Load())
	stats.LambdasPropagated = int(c.lambdas.Load())
	stats.ErrorMessages = append(stats.ErrorMessages, c.errors...)
	return stats, nil
}

// indexFiles extracts on a worker pool and stores through a single writer
func (idx *Indexer) indexFiles(ctx context.Context, project *storage.Project, units []unit,
	known map[string]*storage.File, config *Config, c *counters) (int, int, error) {

	ext := extractor.New(extractor.Options{
		IndexStringConstants: config.IndexStringConstants,
		Logf:                 log.Printf,
	})

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan *fileResult, config.BatchSize)
	type written struct {
		files, entries int
		err            error
	}
	done := make(chan written, 1)
	go func() {
		files, entries, err := idx.writeResults(wctx, results, config.BatchSize)
		if err != nil {
			cancel()
		}
		done <- written{files, entries, err}
	}()

	g, gctx := errgroup.WithContext(wctx)
	g.SetLimit(config.Workers)
	for _, u := range units {
		g.Go(func() error {
			return idx.processUnit(gctx, project, u, known, ext, results, c)
		})
	}
	gerr := g.Wait()
	close(results)
	w := <-done

	if w.err != nil {
		return 0, 0, w.err
	}
	if gerr != nil {
		return 0, 0, gerr
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	return w.files, w.entries, nil
}

// processUnit reads, extracts and encodes every source of u
func (idx *Indexer) processUnit(ctx context.Context, project *storage.Project, u unit,
	known map[string]*storage.File, ext *extractor.Extractor, results chan<- *fileResult, c *counters) error {

	err := readUnit(u, func(src source, data []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		hash := xxhash.Sum64(data)
		if prev, ok := known[src.Path]; ok && prev.ContentHash == hash {
			c.skipped.Add(1)
			return nil
		}

		r, err := idx.buildResult(project, src, data, hash, ext, c)
		if err != nil {
			c.fail(src.Path, err)
			return nil
		}

		select {
		case results <- r:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil && ctx.Err() == nil {
		// Unreadable file or archive: report and keep going
		name, _, _ := strings.Cut(u.sources[0].Path, JarSeparator)
		c.fail(name, err)
		return nil
	}
	return err
}

// buildResult extracts one class file. Parse failures are recorded on the file
// record with no entries; encode failures are returned.
func (idx *Indexer) buildResult(project *storage.Project, src source, data []byte, hash uint64,
	ext *extractor.Extractor, c *counters) (*fileResult, error) {

	file := &storage.File{
		ProjectID:   project.ID,
		Path:        src.Path,
		ContentHash: hash,
		SizeBytes:   int64(len(data)),
		ModTime:     src.ModTime,
	}

	res, err := ext.Extract(data)
	if err != nil {
		msg := err.Error()
		file.ParseError = &msg
		c.fail(src.Path, err)
		return &fileResult{file: file, entries: map[string][]byte{}}, nil
	}

	file.ClassName = res.ClassName
	file.SuperName = res.SuperName

	entries := make(map[string][]byte, len(res.Index))
	for name, value := range res.Index {
		b, err := idx.codec.EncodeValue(value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		entries[name] = b
	}

	c.references.Add(int64(res.Stats.References))
	c.accessors.Add(int64(res.Stats.AccessorsInlined))
	c.lambdas.Add(int64(res.Stats.LambdasPropagated))

	return &fileResult{file: file, entries: entries, supertypes: res.Supertypes()}, nil
}

// writeResults commits results in batches, one transaction per batch
func (idx *Indexer) writeResults(ctx context.Context, results <-chan *fileResult, batchSize int) (int, int, error) {
	batch := make([]*fileResult, 0, batchSize)
	files, entries := 0, 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := idx.writeBatch(ctx, batch)
		if err != nil {
			return err
		}
		files += len(batch)
		entries += n
		batch = batch[:0]
		return nil
	}

	for r := range results {
		batch = append(batch, r)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return 0, 0, err
			}
		}
	}
	if err := flush(); err != nil {
		return 0, 0, err
	}
	return files, entries, nil
}

// writeBatch stores a batch within a transaction
func (idx *Indexer) writeBatch(ctx context.Context, batch []*fileResult) (int, error) {
	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	entries := 0
	for _, r := range batch {
		if err := tx.UpsertFile(ctx, r.file); err != nil {
			return 0, err
		}
		if err := tx.ReplaceEntries(ctx, r.file.ID, r.entries); err != nil {
			return 0, err
		}
		if err := tx.ReplaceSupertypes(ctx, r.file.ID, r.supertypes); err != nil {
			return 0, err
		}
		entries += len(r.entries)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return entries, nil
}

// pruneFiles deletes stored files that discovery no longer finds
func (idx *Indexer) pruneFiles(ctx context.Context, units []unit, known map[string]*storage.File) (int, error) {
	seen := make(map[string]struct{}, len(known))
	for _, u := range units {
		for _, s := range u.sources {
			seen[s.Path] = struct{}{}
		}
	}

	var stale []*storage.File
	for path, f := range known {
		if _, ok := seen[path]; !ok {
			stale = append(stale, f)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	for _, f := range stale {
		if err := tx.DeleteFile(ctx, f.ID); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// updateProjectStats records totals and the format version after a run
func (idx *Indexer) updateProjectStats(ctx context.Context, project *storage.Project) error {
	status, err := idx.storage.GetStatus(ctx, project.ID)
	if err != nil {
		return err
	}

	current := status.Project
	current.IndexVersion = codec.FormatVersion
	current.TotalFiles = status.FilesCount
	current.TotalEntries = status.EntriesCount
	current.LastIndexedAt = time.Now()
	// NeedsRebuild keeps any request made while this run was in flight
	return idx.storage.UpdateProject(ctx, current)
}
