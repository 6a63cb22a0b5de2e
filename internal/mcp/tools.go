package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/classindex-mcp/internal/codec"
	"github.com/dshills/classindex-mcp/internal/config"
	"github.com/dshills/classindex-mcp/internal/indexer"
	"github.com/dshills/classindex-mcp/internal/searcher"
	"github.com/dshills/classindex-mcp/internal/storage"
	"github.com/dshills/classindex-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound    = -32001 // Specified path contains no class files or jars
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // Project not indexed
	ErrorCodeEmptyName          = -32004 // Name parameter is empty
)

// maxReportedErrors bounds the per-file errors returned by index_classes
const maxReportedErrors = 5

// IndexerConfig converts project settings into indexer settings
func IndexerConfig(cfg *config.Config) *indexer.Config {
	return &indexer.Config{
		Workers:              cfg.Index.Workers,
		BatchSize:            cfg.Index.BatchSize,
		Include:              cfg.Include,
		Exclude:              cfg.Exclude,
		MaxFileSize:          cfg.Index.MaxFileSize,
		IndexStringConstants: cfg.Index.IndexStringConstants,
	}
}

// handleIndexClasses handles the index_classes tool invocation
func (s *Server) handleIndexClasses(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid project configuration", map[string]interface{}{
			"file":   config.FileName,
			"reason": err.Error(),
		})
	}

	// Arguments override the project file
	if include := getStringSlice(args, "include"); include != nil {
		cfg.Include = include
	}
	if exclude := getStringSlice(args, "exclude"); exclude != nil {
		cfg.Exclude = exclude
	}
	cfg.Index.IndexStringConstants = getBoolDefault(args, "index_string_constants", cfg.Index.IndexStringConstants)
	if err := cfg.Validate(); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid pattern", map[string]interface{}{
			"reason": err.Error(),
		})
	}

	idxConfig := IndexerConfig(cfg)
	idxConfig.ForceReindex = getBoolDefault(args, "force_reindex", false)

	stats, err := s.backend.Index(ctx, path, idxConfig)
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", map[string]interface{}{
			"path": path,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":            true,
		"files_indexed":      stats.FilesIndexed,
		"files_skipped":      stats.FilesSkipped,
		"files_failed":       stats.FilesFailed,
		"files_removed":      stats.FilesRemoved,
		"entries_written":    stats.EntriesWritten,
		"references":         stats.References,
		"accessors_inlined":  stats.AccessorsInlined,
		"lambdas_propagated": stats.LambdasPropagated,
		"rebuilt":            stats.Rebuilt,
		"duration_ms":        stats.Duration.Milliseconds(),
	}
	if stats.Rebuilt {
		response["rebuild_reason"] = stats.RebuildReason
	}

	if errorCount := len(stats.ErrorMessages); errorCount > 0 {
		if errorCount > maxReportedErrors {
			response["errors"] = stats.ErrorMessages[:maxReportedErrors]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleFindReferences handles the find_references tool invocation
func (s *Server) handleFindReferences(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	name := getStringDefault(args, "name", "")
	if name == "" {
		return nil, newMCPError(ErrorCodeEmptyName, "name parameter is required and cannot be empty", map[string]interface{}{
			"param":  "name",
			"reason": "missing or empty",
		})
	}

	kind := getStringDefault(args, "kind", KindClass)
	owner := getStringDefault(args, "owner", "")
	switch kind {
	case KindClass, KindToString, KindStringConstant:
	case KindField, KindMethod:
		if owner == "" {
			return nil, newMCPError(ErrorCodeInvalidParams, "owner parameter is required for "+kind, map[string]interface{}{
				"param":  "owner",
				"reason": "missing or empty",
			})
		}
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid kind", map[string]interface{}{
			"param":   "kind",
			"value":   kind,
			"allowed": referenceKinds,
		})
	}

	limit := getIntDefault(args, "limit", 100)
	if limit < 1 || limit > 1000 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 1000", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	patterns := getStringSlice(args, "file_patterns")
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid file pattern", map[string]interface{}{
				"param": "file_patterns",
				"value": p,
			})
		}
	}

	project, err := s.backend.Storage.GetProject(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeNotIndexed, "project not indexed", map[string]interface{}{
			"path": path,
			"hint": "use the index_classes tool first",
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get project", map[string]interface{}{
			"error": err.Error(),
		})
	}

	scope := searcher.Scope{ProjectID: project.ID, Patterns: patterns}
	response := map[string]interface{}{
		"kind": kind,
		"name": name,
	}

	srch := s.backend.Searcher
	switch kind {
	case KindField:
		hits, err := srch.FindFieldReferences(ctx, owner, name, scope)
		if err != nil {
			return nil, searchError(err)
		}
		response["owner"] = owner
		response["reads"] = formatHits(hits.Reads, limit)
		response["writes"] = formatHits(hits.Writes, limit)
		response["total"] = hits.Reads.Total() + hits.Writes.Total()
		return mcp.NewToolResultText(formatJSON(response)), nil

	case KindMethod:
		q := searcher.MethodQuery{
			Owner:         owner,
			Name:          name,
			Desc:          getStringDefault(args, "descriptor", ""),
			Strict:        getBoolDefault(args, "strict", false),
			DeclaringOnly: getBoolDefault(args, "declaring_only", false),
		}
		if q.Strict && q.Desc == "" {
			return nil, newMCPError(ErrorCodeInvalidParams, "descriptor parameter is required for a strict search", map[string]interface{}{
				"param": "descriptor",
			})
		}
		hits, err := srch.FindMethodReferences(ctx, q, scope)
		return hitsResult(response, hits, err, limit)

	case KindToString:
		hits, err := srch.FindImplicitToString(ctx, name, scope)
		return hitsResult(response, hits, err, limit)

	case KindStringConstant:
		hits, err := srch.Search(ctx, name, types.StringConstantKey{}, scope)
		return hitsResult(response, hits, err, limit)

	default:
		hits, err := srch.FindClassReferences(ctx, name, scope)
		return hitsResult(response, hits, err, limit)
	}
}

func hitsResult(response map[string]interface{}, hits searcher.FileHits, err error, limit int) (*mcp.CallToolResult, error) {
	if err != nil {
		return nil, searchError(err)
	}
	response["references"] = formatHits(hits, limit)
	response["total"] = hits.Total()
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// searchError maps lookup failures to MCP errors
func searchError(err error) error {
	if errors.Is(err, searcher.ErrRebuildPending) ||
		errors.Is(err, codec.ErrUnknownKeyTag) || errors.Is(err, codec.ErrCorrupt) || errors.Is(err, codec.ErrEnumeration) {
		return newMCPError(ErrorCodeNotIndexed, "index is out of date and will be rebuilt on the next index_classes run", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
		"error": err.Error(),
	})
}

// formatHits lists at most limit files, each with its locations in order
func formatHits(hits searcher.FileHits, limit int) []map[string]interface{} {
	files := hits.Files()
	if len(files) > limit {
		files = files[:limit]
	}
	out := make([]map[string]interface{}, 0, len(files))
	for _, file := range files {
		locs := hits[file]
		locations := make([]map[string]interface{}, 0, len(locs))
		for _, loc := range locs.Sorted() {
			name, desc := types.SplitLocation(loc)
			locations = append(locations, map[string]interface{}{
				"location":   loc,
				"member":     name,
				"descriptor": desc,
				"count":      locs[loc],
			})
		}
		out = append(out, map[string]interface{}{
			"file":      file,
			"count":     locs.Total(),
			"locations": locations,
		})
	}
	return out
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	path = filepath.Clean(path)

	project, err := s.backend.Storage.GetProject(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		response := map[string]interface{}{
			"indexed": false,
			"path":    path,
			"message": "Project not indexed. Use index_classes tool to index this directory.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get project status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	status, err := s.backend.Storage.GetStatus(ctx, project.ID)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	stringCount := 0
	if s.backend.Strings != nil {
		stringCount = s.backend.Strings.Len()
	}

	response := map[string]interface{}{
		"indexed": true,
		"project": map[string]interface{}{
			"path":            project.RootPath,
			"index_version":   project.IndexVersion,
			"last_indexed_at": project.LastIndexedAt.Format("2006-01-02T15:04:05Z07:00"),
		},
		"statistics": map[string]interface{}{
			"files_count":   status.FilesCount,
			"entries_count": status.EntriesCount,
			"parse_errors":  status.ParseErrors,
			"strings_count": stringCount,
			"index_size_mb": fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible": status.Health.DatabaseAccessible,
			"needs_rebuild":       status.Health.NeedsRebuild || project.IndexVersion != codec.FormatVersion,
			"format_version":      codec.FormatVersion,
			"indexing":            s.backend.Indexer.Indexing(),
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// requirePath extracts and validates the path argument
func requirePath(args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	path = filepath.Clean(path)

	if err := validatePath(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrNoClassFiles) {
			code = ErrorCodeProjectNotFound
		}
		return "", newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}
	return path, nil
}

// errFound stops the class file walk early
var errFound = errors.New("found")

// validatePath checks if a path exists, is accessible and holds compiled classes
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	// Check if path is absolute
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	// Check if path exists
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	// Check if it's a directory
	if !info.IsDir() {
		return ErrNotDirectory
	}

	// Check if directory is readable
	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && (strings.HasSuffix(p, ".class") || strings.HasSuffix(p, ".jar")) {
			return errFound
		}
		return nil
	})
	if !errors.Is(err, errFound) {
		return ErrNoClassFiles
	}

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter; nil when absent
func getStringSlice(args map[string]interface{}, key string) []string {
	switch val := args[key].(type) {
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, v := range val {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrNoClassFiles    = errors.New("directory does not contain .class files or jars")
)
