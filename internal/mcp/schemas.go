package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Reference kinds accepted by find_references
const (
	KindClass          = "class"
	KindField          = "field"
	KindMethod         = "method"
	KindToString       = "to_string"
	KindStringConstant = "string_constant"
)

var referenceKinds = []string{KindClass, KindField, KindMethod, KindToString, KindStringConstant}

// indexClassesTool returns the tool definition for index_classes
func indexClassesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_classes",
		Description: "Index the compiled classes (.class files and jars) under a directory so their references can be queried",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a directory containing .class files or jars",
				},
				"force_reindex": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, drop the stored index and re-index every class (full rebuild)",
					"default":     false,
				},
				"include": map[string]interface{}{
					"type":        "array",
					"description": "Glob patterns of files to index (e.g. 'build/classes/**', 'lib/*.jar'); default is everything",
					"items":       map[string]interface{}{"type": "string"},
				},
				"exclude": map[string]interface{}{
					"type":        "array",
					"description": "Glob patterns of files or directories to skip",
					"items":       map[string]interface{}{"type": "string"},
				},
				"index_string_constants": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, also index string literals",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// findReferencesTool returns the tool definition for find_references
func findReferencesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_references",
		Description: "Find where a class, field, method or string is used in indexed classes",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to an indexed directory",
				},
				"kind": map[string]interface{}{
					"type":        "string",
					"description": "What name refers to: class, field, method, to_string (values of the class converted by string concatenation) or string_constant",
					"enum":        referenceKinds,
					"default":     KindClass,
				},
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Internal class name (java/util/List), member name (size, <init>) or string literal",
				},
				"owner": map[string]interface{}{
					"type":        "string",
					"description": "Internal name of the declaring class; required for field and method",
				},
				"descriptor": map[string]interface{}{
					"type":        "string",
					"description": "Method descriptor, e.g. (Ljava/lang/String;)V",
				},
				"strict": map[string]interface{}{
					"type":        "boolean",
					"description": "Only report calls with exactly this descriptor",
					"default":     false,
				},
				"declaring_only": map[string]interface{}{
					"type":        "boolean",
					"description": "Skip calls made through subclasses of owner",
					"default":     false,
				},
				"file_patterns": map[string]interface{}{
					"type":        "array",
					"description": "Only report files matching one of these globs (e.g. 'lib/*.jar!/**')",
					"items":       map[string]interface{}{"type": "string"},
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of files to return (1-1000)",
					"default":     100,
					"minimum":     1,
					"maximum":     1000,
				},
			},
			Required: []string{"path", "name"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Query indexing status and statistics for a directory of compiled classes",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to an indexed directory",
				},
			},
			Required: []string{"path"},
		},
	}
}
