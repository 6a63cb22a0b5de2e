package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dshills/classindex-mcp/internal/config"
	"github.com/dshills/classindex-mcp/internal/indexer"
	"github.com/dshills/classindex-mcp/internal/mcp"
	"github.com/dshills/classindex-mcp/internal/searcher"
	"github.com/dshills/classindex-mcp/internal/storage"
	"github.com/dshills/classindex-mcp/pkg/types"
)

// rootArg returns the absolute project root from the first argument or the working directory
func rootArg(c *cli.Context) (string, error) {
	root := c.Args().First()
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root path %q: %w", root, err)
	}
	return abs, nil
}

// openBackend loads the project configuration and opens its database.
// An explicit --db wins over the project file.
func openBackend(c *cli.Context, root string) (*config.Config, *mcp.Backend, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	dbPath := c.String("db")
	if !c.IsSet("db") && cfg.Project.DBPath != "" {
		dbPath = cfg.Project.DBPath
	}
	backend, err := mcp.OpenBackend(dbPath, mcp.BackendOptions{
		EnumerateStrings: cfg.Index.EnumerateStrings && !c.Bool("inline-strings"),
		CacheSize:        cfg.Search.CacheSize,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, backend, nil
}

func indexCommand(c *cli.Context) error {
	root, err := rootArg(c)
	if err != nil {
		return err
	}
	cfg, backend, err := openBackend(c, root)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	if include := c.StringSlice("include"); len(include) > 0 {
		cfg.Include = include
	}
	if exclude := c.StringSlice("exclude"); len(exclude) > 0 {
		cfg.Exclude = append(cfg.Exclude, exclude...)
	}
	if c.Bool("strings") {
		cfg.Index.IndexStringConstants = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	idxConfig := mcp.IndexerConfig(cfg)
	idxConfig.ForceReindex = c.Bool("force")

	ctx, cancel := signalContext()
	defer cancel()

	stats, err := backend.Index(ctx, root, idxConfig)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	printStats(root, stats)
	return nil
}

func printStats(root string, stats *indexer.Statistics) {
	fmt.Printf("Indexed %s in %v\n", root, stats.Duration.Round(time.Millisecond))
	if stats.Rebuilt {
		fmt.Printf("  full rebuild: %s\n", stats.RebuildReason)
	}
	fmt.Printf("  files: %d indexed, %d unchanged, %d failed, %d removed\n",
		stats.FilesIndexed, stats.FilesSkipped, stats.FilesFailed, stats.FilesRemoved)
	fmt.Printf("  references: %d in %d entries (%d accessors, %d lambdas)\n",
		stats.References, stats.EntriesWritten, stats.AccessorsInlined, stats.LambdasPropagated)
	for _, msg := range stats.ErrorMessages {
		fmt.Printf("  error: %s\n", msg)
	}
}

func refsCommand(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return errors.New("name argument is required")
	}
	root, err := filepath.Abs(c.String("root"))
	if err != nil {
		return err
	}
	_, backend, err := openBackend(c, root)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	project, err := backend.Storage.GetProject(ctx, root)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s is not indexed, run 'classindex index %s' first", root, root)
	}
	if err != nil {
		return err
	}

	scope := searcher.Scope{ProjectID: project.ID, Patterns: c.StringSlice("files")}
	srch := backend.Searcher
	owner := c.String("owner")

	results := make(map[string]searcher.FileHits)
	switch kind := c.String("kind"); kind {
	case mcp.KindClass:
		results["references"], err = srch.FindClassReferences(ctx, name, scope)
	case mcp.KindToString:
		results["references"], err = srch.FindImplicitToString(ctx, name, scope)
	case mcp.KindStringConstant:
		results["references"], err = srch.Search(ctx, name, types.StringConstantKey{}, scope)
	case mcp.KindField:
		if owner == "" {
			return errors.New("--owner is required for field references")
		}
		var hits *searcher.FieldHits
		if hits, err = srch.FindFieldReferences(ctx, owner, name, scope); err == nil {
			results["reads"], results["writes"] = hits.Reads, hits.Writes
		}
	case mcp.KindMethod:
		if owner == "" {
			return errors.New("--owner is required for method references")
		}
		results["references"], err = srch.FindMethodReferences(ctx, searcher.MethodQuery{
			Owner:         owner,
			Name:          name,
			Desc:          c.String("desc"),
			Strict:        c.Bool("strict"),
			DeclaringOnly: c.Bool("declaring-only"),
		}, scope)
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}
	if err != nil {
		return err
	}

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for _, section := range []string{"references", "reads", "writes"} {
		hits, ok := results[section]
		if !ok {
			continue
		}
		fmt.Printf("%s: %d\n", section, hits.Total())
		for _, file := range hits.Files() {
			for _, loc := range hits[file].Sorted() {
				member, desc := types.SplitLocation(loc)
				if member == "" {
					member = "<class>"
				}
				fmt.Printf("  %s %s%s x%d\n", file, member, desc, hits[file][loc])
			}
		}
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	root, err := rootArg(c)
	if err != nil {
		return err
	}
	_, backend, err := openBackend(c, root)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	project, err := backend.Storage.GetProject(ctx, root)
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Printf("%s is not indexed\n", root)
		return nil
	}
	if err != nil {
		return err
	}
	status, err := backend.Storage.GetStatus(ctx, project.ID)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	fmt.Printf("Project: %s\n", project.RootPath)
	fmt.Printf("  last indexed: %s\n", project.LastIndexedAt.Format(time.RFC3339))
	fmt.Printf("  format version: %d\n", project.IndexVersion)
	fmt.Printf("  files: %d (%d with parse errors)\n", status.FilesCount, status.ParseErrors)
	fmt.Printf("  entries: %d\n", status.EntriesCount)
	if backend.Strings != nil {
		fmt.Printf("  strings: %d\n", backend.Strings.Len())
	}
	fmt.Printf("  size: %.2f MB\n", status.IndexSizeMB)
	fmt.Printf("  needs rebuild: %v\n", status.Health.NeedsRebuild)
	return nil
}

func watchCommand(c *cli.Context) error {
	root, err := rootArg(c)
	if err != nil {
		return err
	}
	cfg, backend, err := openBackend(c, root)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	idxConfig := mcp.IndexerConfig(cfg)
	stats, err := backend.Index(ctx, root, idxConfig)
	if err != nil {
		return fmt.Errorf("initial indexing failed: %w", err)
	}
	printStats(root, stats)

	debounce := time.Duration(cfg.Watch.DebounceMs) * time.Millisecond
	w, err := indexer.NewWatcher(backend.Indexer, root, idxConfig, debounce)
	if err != nil {
		return err
	}
	w.OnIndexed = func(stats *indexer.Statistics, err error) {
		if err != nil {
			log.Printf("re-index failed: %v", err)
			return
		}
		if stats.Rebuilt {
			backend.Searcher.Purge()
		}
		printStats(root, stats)
	}

	log.Printf("Watching %s for changes...", root)
	if err := w.Run(ctx); err != nil && !errors.Is(err, ctx.Err()) {
		return err
	}
	return nil
}
