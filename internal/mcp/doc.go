// Package mcp implements the Model Context Protocol (MCP) server for classindex.
//
// The server exposes three tools over stdio:
//   - index_classes: index the .class files and jars under a directory
//   - find_references: find where a class, field, method or string is used
//   - get_status: report index statistics and health for a directory
//
// stdout carries the protocol, so diagnostics go to stderr.
//
// # Tool: index_classes
//
//	{
//	  "name": "index_classes",
//	  "arguments": {
//	    "path": "/work/app/build",
//	    "exclude": ["**/test/**"],
//	    "force_reindex": false
//	  }
//	}
//
// Settings from the directory's .classindex.kdl apply first; arguments
// override them. Unchanged files are skipped. A full rebuild runs when the
// stored format is outdated or a lookup found an unreadable value.
//
// # Tool: find_references
//
//	{
//	  "name": "find_references",
//	  "arguments": {
//	    "path": "/work/app/build",
//	    "kind": "method",
//	    "owner": "com/example/Cache",
//	    "name": "evict",
//	    "descriptor": "(Ljava/lang/Object;)V",
//	    "strict": true
//	  }
//	}
//
// Results list files with "member:descriptor" locations and counts. Field
// lookups report reads and writes separately. Calls through synthetic
// accessors are attributed to the accessor's callers.
//
// # Errors
//
// Failures are returned as MCPError with JSON-RPC codes: -32602 for bad
// parameters, -32001 for a directory without classes, -32002 while another
// index run is active, -32003 for a directory that is not indexed or is
// waiting for a rebuild and -32004 for an empty name.
package mcp
