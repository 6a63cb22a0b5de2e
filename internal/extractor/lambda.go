package extractor

import (
	"sort"

	"github.com/dshills/classindex-mcp/pkg/types"
)

type movedRef struct {
	name  string
	key   types.Key
	count int
}

// propagateLambdaLocations moves references made inside lambda bodies to the locations
// that create the lambdas, multiplied by the number of creation sites. A lambda is moved
// only after every lambda created inside it has been moved into it. Lambdas left over
// (mutually recursive creation) are logged and their references dropped.
func (v *classVisitor) propagateLambdaLocations() {
	if len(v.lambdas) == 0 {
		return
	}
	// enclosing location -> lambdas created there that are still pending
	incoming := make(map[string]map[string]struct{})
	for lambda, targets := range v.lambdas {
		for outer := range targets {
			set, ok := incoming[outer]
			if !ok {
				set = make(map[string]struct{})
				incoming[outer] = set
			}
			set[lambda] = struct{}{}
		}
	}

	for changed := true; changed && len(v.lambdas) > 0; {
		changed = false
		for _, lambda := range sortedKeys(v.lambdas) {
			if len(incoming[lambda]) > 0 {
				continue
			}
			changed = true
			targets := v.lambdas[lambda]
			delete(v.lambdas, lambda)
			moved := v.takeLocation(lambda)
			for outer, weight := range targets {
				delete(incoming[outer], lambda)
				for _, ref := range moved {
					v.index.Add(ref.name, ref.key, outer, ref.count*weight)
				}
			}
			v.stats.LambdasPropagated++
		}
	}

	if len(v.lambdas) == 0 {
		return
	}
	pending := sortedKeys(v.lambdas)
	v.opts.Logf("%s: unable to propagate lambda locations %v", v.className, pending)
	for _, lambda := range pending {
		v.takeLocation(lambda)
		delete(v.lambdas, lambda)
		v.stats.LambdasDropped++
	}
}

// takeLocation removes every entry recorded at loc and returns them.
func (v *classVisitor) takeLocation(loc string) []movedRef {
	var moved []movedRef
	for name, value := range v.index {
		for key, locs := range value {
			n, ok := locs[loc]
			if !ok {
				continue
			}
			moved = append(moved, movedRef{name: name, key: key, count: n})
			delete(locs, loc)
			if len(locs) == 0 {
				delete(value, key)
			}
		}
		if len(value) == 0 {
			delete(v.index, name)
		}
	}
	return moved
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
