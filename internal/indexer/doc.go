// Package indexer builds and maintains the reference index of a class path root.
//
// # Basic Usage
//
//	store, _ := storage.NewSQLiteStorage("/path/to/index.db")
//	fs, _ := strtab.OpenFileStore("/path/to/index.strings")
//	table, _ := strtab.Open(fs)
//	idx := indexer.New(store, table)
//
//	stats, err := idx.IndexProject(ctx, "/path/to/classes", &indexer.Config{
//	    Exclude: []string{"**/generated/**"},
//	})
//
// # Pipeline
//
//  1. Discovery: walk the root for .class files and jars, list jar class
//     entries, apply include and exclude globs, skip oversized files
//  2. Change detection: files whose xxhash matches the stored hash are skipped
//  3. Extraction: class files are parsed and indexed on a bounded worker pool
//  4. Encoding: every index value is encoded with the indexer's codec
//  5. Storage: a single writer commits results in batched transactions
//  6. Pruning: stored files no longer found on disk are deleted
//
// Files inside archives are tracked as "lib/a.jar!/pkg/Name.class".
//
// # Rebuilds
//
// A project is re-indexed from scratch when ForceReindex is set, when its
// stored format version differs from codec.FormatVersion, or when a lookup
// asked for it through RequestRebuild. If the shared string table fails, it is
// reset and every project in the database is marked for rebuild, since their
// stored values refer to the old ids.
//
// Parse failures are not fatal: the file is stored with its error and no
// entries, and appears in Statistics.ErrorMessages.
package indexer
