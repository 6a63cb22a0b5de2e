package searcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/classindex-mcp/internal/codec"
	"github.com/dshills/classindex-mcp/internal/storage"
	"github.com/dshills/classindex-mcp/pkg/types"
)

// DefaultCacheSize is the number of decoded values kept when no size is given
const DefaultCacheSize = 4096

// ErrRebuildPending is returned for a project whose stored values cannot be trusted
// until it is indexed again: it is marked for rebuild or was written in an older format.
var ErrRebuildPending = errors.New("index rebuild pending")

// FileHits maps a file path to the locations inside it and their counts
type FileHits map[string]types.Locations

// KeyHits maps a file path to the matched keys and their locations
type KeyHits map[string]types.Value

// KeyPredicate selects keys for SearchMatching and SearchReturnKeys
type KeyPredicate func(types.Key) bool

// Scope limits a lookup to one project and, optionally, to files matching any of Patterns
type Scope struct {
	ProjectID int64
	Patterns  []string // doublestar globs over stored paths, e.g. "lib/*.jar!/**"
}

// RebuildHook is told about stored values that could not be decoded
type RebuildHook func(ctx context.Context, projectID int64, cause error) error

// cacheKey identifies a decoded value; the hash guards against reused row ids
type cacheKey struct {
	id  int64
	sum uint64
}

// Searcher answers cross-reference queries over stored index values
type Searcher struct {
	storage storage.Storage
	codec   *codec.Codec
	cache   *lru.Cache[cacheKey, types.Value]

	// OnCorrupt, when set, is called once per query that hit an undecodable value
	OnCorrupt RebuildHook
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store storage.Storage, c *codec.Codec, cacheSize int) *Searcher {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, types.Value](cacheSize)
	if err != nil {
		// This should never happen with valid size parameter
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	return &Searcher{
		storage: store,
		codec:   c,
		cache:   cache,
	}
}

// Purge drops every cached value. Call it after the string table is rebuilt.
func (s *Searcher) Purge() {
	s.cache.Purge()
}

// Total returns the number of hits across all files
func (h FileHits) Total() int {
	total := 0
	for _, locs := range h {
		total += locs.Total()
	}
	return total
}

// Files returns the hit files in lexical order
func (h FileHits) Files() []string {
	out := make([]string, 0, len(h))
	for f := range h {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (h FileHits) merge(path string, locs types.Locations) {
	target, ok := h[path]
	if !ok {
		target = make(types.Locations, len(locs))
		h[path] = target
	}
	target.Merge(locs)
}

// Flatten sums the locations of every key per file
func (h KeyHits) Flatten() FileHits {
	out := make(FileHits, len(h))
	for path, v := range h {
		for _, locs := range v {
			out.merge(path, locs)
		}
	}
	return out
}

func (h KeyHits) merge(path string, key types.Key, locs types.Locations) {
	v, ok := h[path]
	if !ok {
		v = make(types.Value)
		h[path] = v
	}
	for loc, n := range locs {
		v.Add(key, loc, n)
	}
}

// Search finds the uses of name under key. Synthetic accessors recorded as
// DelegateKey(key) are followed to their callers.
func (s *Searcher) Search(ctx context.Context, name string, key types.Key, scope Scope) (FileHits, error) {
	if name == "" {
		return nil, types.ErrEmptyName
	}
	if key == nil {
		return nil, types.ErrNilKey
	}
	if err := s.checkProject(ctx, scope.ProjectID); err != nil {
		return nil, err
	}
	return s.newLookup(scope).search(ctx, name, key)
}

// SearchMatching finds the uses of name under every key accepted by pred
func (s *Searcher) SearchMatching(ctx context.Context, name string, pred KeyPredicate, scope Scope) (FileHits, error) {
	hits, err := s.SearchReturnKeys(ctx, name, pred, scope)
	if err != nil {
		return nil, err
	}
	return hits.Flatten(), nil
}

// SearchReturnKeys is SearchMatching keeping the matched keys apart. Hits found
// through an accessor are reported under the key the accessor stands for.
func (s *Searcher) SearchReturnKeys(ctx context.Context, name string, pred KeyPredicate, scope Scope) (KeyHits, error) {
	if name == "" {
		return nil, types.ErrEmptyName
	}
	if err := s.checkProject(ctx, scope.ProjectID); err != nil {
		return nil, err
	}
	return s.newLookup(scope).searchReturnKeys(ctx, name, pred)
}

// checkProject refuses projects whose values may hold ids from a reset string table
func (s *Searcher) checkProject(ctx context.Context, projectID int64) error {
	project, err := s.storage.GetProjectByID(ctx, projectID)
	if err != nil {
		return err
	}
	switch {
	case project.IndexVersion != codec.FormatVersion:
		return fmt.Errorf("project %d has index format %d, want %d: %w",
			projectID, project.IndexVersion, codec.FormatVersion, ErrRebuildPending)
	case project.NeedsRebuild:
		return fmt.Errorf("project %d: %w", projectID, ErrRebuildPending)
	}
	return nil
}

// target is an accessor to chase: its location and the class declaring it
type target struct {
	location string
	owner    string
}

// keyedTarget is a target found by a predicate search, with the key it stands for
type keyedTarget struct {
	key types.Key
	target
}

// lookup holds the state of one top-level query
type lookup struct {
	s     *Searcher
	scope Scope

	// inProgress holds the accessors currently being chased
	inProgress map[target]struct{}
}

func (s *Searcher) newLookup(scope Scope) *lookup {
	return &lookup{s: s, scope: scope, inProgress: make(map[target]struct{})}
}

func (l *lookup) search(ctx context.Context, name string, key types.Key) (FileHits, error) {
	files := make(FileHits)
	var further []target
	seen := make(map[target]struct{})

	delegate := types.DelegateKey{Inner: key}
	err := l.scan(ctx, name, func(e *storage.Entry, v types.Value) {
		if locs, ok := v[key]; ok {
			files.merge(e.Path, locs)
		}
		if locs, ok := v[delegate]; ok {
			for _, loc := range locs.Sorted() {
				t := target{location: loc, owner: e.ClassName}
				if _, dup := seen[t]; !dup {
					seen[t] = struct{}{}
					further = append(further, t)
				}
			}
		}
	})
	if err != nil {
		return nil, err
	}

	for _, t := range further {
		err := l.searchLocation(ctx, t, func(path string, locs types.Locations) {
			files.merge(path, locs)
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func (l *lookup) searchReturnKeys(ctx context.Context, name string, pred KeyPredicate) (KeyHits, error) {
	files := make(KeyHits)
	var further []keyedTarget
	seen := make(map[keyedTarget]struct{})

	err := l.scan(ctx, name, func(e *storage.Entry, v types.Value) {
		for key, locs := range v {
			if pred(key) {
				files.merge(e.Path, key, locs)
				continue
			}
			inner := types.Unwrap(key)
			if inner == key || !pred(inner) {
				continue
			}
			for loc := range locs {
				t := keyedTarget{key: inner, target: target{location: loc, owner: e.ClassName}}
				if _, dup := seen[t]; !dup {
					seen[t] = struct{}{}
					further = append(further, t)
				}
			}
		}
	})
	if err != nil {
		return nil, err
	}

	// Map iteration above is unordered
	sort.Slice(further, func(i, j int) bool {
		a, b := further[i], further[j]
		if a.location != b.location {
			return a.location < b.location
		}
		if a.owner != b.owner {
			return a.owner < b.owner
		}
		return a.key.String() < b.key.String()
	})

	for _, t := range further {
		err := l.searchLocation(ctx, t.target, func(path string, locs types.Locations) {
			files.merge(path, t.key, locs)
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// searchLocation finds the callers of an accessor. A target already being chased
// yields nothing, which ends accessor cycles.
func (l *lookup) searchLocation(ctx context.Context, t target, consume func(string, types.Locations)) error {
	if _, busy := l.inProgress[t]; busy {
		return nil
	}
	l.inProgress[t] = struct{}{}
	defer delete(l.inProgress, t)

	name, desc := types.SplitLocation(t.location)
	var keys []types.Key
	if types.IsMethodLocation(t.location) {
		keys = []types.Key{types.MethodKey{Owner: t.owner, Desc: desc}}
	} else {
		keys = []types.Key{
			types.FieldKey{Owner: t.owner, IsWrite: false},
			types.FieldKey{Owner: t.owner, IsWrite: true},
		}
	}

	for _, key := range keys {
		hits, err := l.search(ctx, name, key)
		if err != nil {
			return err
		}
		for _, path := range hits.Files() {
			consume(path, hits[path])
		}
	}
	return nil
}

// scan decodes every stored value for name within the scope
func (l *lookup) scan(ctx context.Context, name string, fn func(*storage.Entry, types.Value)) error {
	err := l.s.storage.ProcessEntries(ctx, l.scope.ProjectID, name, func(e *storage.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !l.inScope(e.Path) {
			return nil
		}
		v, err := l.s.decode(e)
		if err != nil {
			return fmt.Errorf("decode %q in %s: %w", name, e.Path, err)
		}
		fn(e, v)
		return nil
	})
	if err != nil && isCorrupt(err) {
		l.s.reportCorrupt(ctx, l.scope.ProjectID, err)
	}
	return err
}

func (l *lookup) inScope(path string) bool {
	if len(l.scope.Patterns) == 0 {
		return true
	}
	for _, p := range l.scope.Patterns {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}

func (s *Searcher) decode(e *storage.Entry) (types.Value, error) {
	key := cacheKey{id: e.ID, sum: xxhash.Sum64(e.Value)}
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}
	v, err := s.codec.DecodeValue(e.Value)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, v)
	return v, nil
}

func isCorrupt(err error) bool {
	return errors.Is(err, codec.ErrUnknownKeyTag) ||
		errors.Is(err, codec.ErrCorrupt) ||
		errors.Is(err, codec.ErrEnumeration)
}

func (s *Searcher) reportCorrupt(ctx context.Context, projectID int64, cause error) {
	log.Printf("Undecodable index value in project %d: %v", projectID, cause)
	if s.OnCorrupt == nil {
		return
	}
	if err := s.OnCorrupt(ctx, projectID, cause); err != nil {
		log.Printf("Failed to request rebuild for project %d: %v", projectID, err)
	}
}
