// Package searcher answers cross-reference queries against the stored index.
//
// Every stored value belongs to one file and one name, and maps keys to the
// locations using them. A lookup reads all values for a name, keeps the keys it
// was asked for and reports file -> location -> count:
//
//	s := searcher.NewSearcher(store, idx.Codec(), 4096)
//	hits, err := s.Search(ctx, "count", types.FieldKey{Owner: "a/Foo"}, searcher.Scope{ProjectID: id})
//
// # Accessors
//
// A synthetic accessor is stored as DelegateKey(inner) at the accessor's own
// location. When a lookup for inner meets one, it searches for the callers of
// the accessor instead and adds their locations to the result, summing counts.
// An accessor already being followed in the same lookup contributes nothing,
// so accessor cycles end.
//
// # Errors
//
// Cancellation is checked once per file and returned as is. A value that cannot
// be decoded fails the lookup and is passed to OnCorrupt, which normally asks
// the indexer for a rebuild.
//
// Decoded values are kept in an LRU cache keyed by entry id and content hash.
// Purge it after the string table is rebuilt.
package searcher
