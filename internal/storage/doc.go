// Package storage provides SQLite-based persistence for indexed class data.
//
// The storage layer manages:
//   - Project metadata and the index format version it was built with
//   - Class files, their content hashes and direct supertypes
//   - Encoded index entries, one per (file, referenced name)
//
// # Database Schema
//
// Tables:
//   - projects: root path, index version, rebuild flag, totals
//   - files: path (archive entries as "lib.jar!/a/B.class"), class name, xxhash
//   - entries: encoded reference values keyed by referenced name
//   - supertypes: superclass and interfaces per file
//
// Deleting a file cascades to its entries and supertypes.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.classindex/indices/project.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	file := &storage.File{ProjectID: projectID, Path: "a/B.class", ClassName: "a/B"}
//	if err := tx.UpsertFile(ctx, file); err != nil {
//	    return err
//	}
//	if err := tx.ReplaceEntries(ctx, file.ID, encoded); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// # Lookups
//
// ProcessEntries streams every stored value for a name across the project:
//
//	err := db.ProcessEntries(ctx, projectID, "java/lang/String", func(e *storage.Entry) error {
//	    value, err := codec.DecodeValue(e.Value)
//	    ...
//	})
//
// The callback runs after the result set is closed, so it may issue further queries.
//
// # Build Tags
//
// The default build uses modernc.org/sqlite and needs no C compiler.
// Building with -tags cgo_sqlite switches to github.com/mattn/go-sqlite3.
package storage
