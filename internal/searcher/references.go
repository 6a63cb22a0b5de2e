package searcher

import (
	"context"
	"sort"

	"github.com/dshills/classindex-mcp/pkg/types"
)

const (
	constructorName       = "<init>"
	staticInitializerName = "<clinit>"
)

// MethodQuery selects the calls FindMethodReferences reports
type MethodQuery struct {
	Owner string // internal name of the declaring class
	Name  string // "<init>" for constructors
	Desc  string

	// Strict requires an exact descriptor match
	Strict bool
	// DeclaringOnly skips calls made through subclasses, as for private or static methods
	DeclaringOnly bool
}

// FieldHits splits field accesses into reads and writes
type FieldHits struct {
	Reads  FileHits
	Writes FileHits
}

// Inheritors returns every class that directly or transitively extends or implements
// className, in lexical order
func (s *Searcher) Inheritors(ctx context.Context, projectID int64, className string) ([]string, error) {
	seen := map[string]struct{}{className: {}}
	queue := []string{className}
	var out []string

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := queue[0]
		queue = queue[1:]

		subtypes, err := s.storage.ListSubtypes(ctx, projectID, next)
		if err != nil {
			return nil, err
		}
		for _, sub := range subtypes {
			if _, ok := seen[sub]; ok {
				continue
			}
			seen[sub] = struct{}{}
			out = append(out, sub)
			queue = append(queue, sub)
		}
	}

	sort.Strings(out)
	return out, nil
}

// owners returns className and its inheritors as a set
func (s *Searcher) owners(ctx context.Context, projectID int64, className string) (map[string]struct{}, error) {
	inheritors, err := s.Inheritors(ctx, projectID, className)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(inheritors)+1)
	set[className] = struct{}{}
	for _, name := range inheritors {
		set[name] = struct{}{}
	}
	return set, nil
}

// FindClassReferences finds the places that name className
func (s *Searcher) FindClassReferences(ctx context.Context, className string, scope Scope) (FileHits, error) {
	return s.Search(ctx, className, types.ClassKey{}, scope)
}

// FindFieldReferences finds reads and writes of owner.field, including accesses
// qualified by a subclass of owner
func (s *Searcher) FindFieldReferences(ctx context.Context, owner, field string, scope Scope) (*FieldHits, error) {
	owners, err := s.owners(ctx, scope.ProjectID, owner)
	if err != nil {
		return nil, err
	}

	hits, err := s.SearchReturnKeys(ctx, field, func(k types.Key) bool {
		fk, ok := k.(types.FieldKey)
		if !ok {
			return false
		}
		_, ok = owners[fk.Owner]
		return ok
	}, scope)
	if err != nil {
		return nil, err
	}

	out := &FieldHits{Reads: make(FileHits), Writes: make(FileHits)}
	for path, v := range hits {
		for key, locs := range v {
			if key.(types.FieldKey).IsWrite {
				out.Writes.merge(path, locs)
			} else {
				out.Reads.merge(path, locs)
			}
		}
	}
	return out, nil
}

// FindMethodReferences finds calls of the method described by q
func (s *Searcher) FindMethodReferences(ctx context.Context, q MethodQuery, scope Scope) (FileHits, error) {
	owners := map[string]struct{}{q.Owner: {}}
	if !q.DeclaringOnly && q.Name != constructorName && q.Name != staticInitializerName {
		var err error
		if owners, err = s.owners(ctx, scope.ProjectID, q.Owner); err != nil {
			return nil, err
		}
	}

	return s.SearchMatching(ctx, q.Name, func(k types.Key) bool {
		mk, ok := k.(types.MethodKey)
		if !ok {
			return false
		}
		if _, ok := owners[mk.Owner]; !ok {
			return false
		}
		return !q.Strict || mk.Desc == q.Desc
	}, scope)
}

// FindImplicitToString finds values of className or any inheritor converted to
// strings by concatenation
func (s *Searcher) FindImplicitToString(ctx context.Context, className string, scope Scope) (FileHits, error) {
	inheritors, err := s.Inheritors(ctx, scope.ProjectID, className)
	if err != nil {
		return nil, err
	}

	out := make(FileHits)
	for _, name := range append([]string{className}, inheritors...) {
		hits, err := s.Search(ctx, name, types.ImplicitToStringKey{}, scope)
		if err != nil {
			return nil, err
		}
		for path, locs := range hits {
			out.merge(path, locs)
		}
	}
	return out, nil
}
