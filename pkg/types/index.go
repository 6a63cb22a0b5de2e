package types

import "sort"

// Locations counts occurrences per location. Counts are always positive.
type Locations map[string]int

// Value groups the locations of one name by key. It is the unit persisted per (file, name).
type Value map[Key]Locations

// Index maps names to their per-key locations for a single class file.
type Index map[string]Value

// Add records n occurrences of loc.
func (l Locations) Add(loc string, n int) {
	if n <= 0 {
		return
	}
	l[loc] += n
}

// Merge adds other's counts into l.
func (l Locations) Merge(other Locations) {
	for loc, n := range other {
		l.Add(loc, n)
	}
}

// Total returns the sum of all counts.
func (l Locations) Total() int {
	total := 0
	for _, n := range l {
		total += n
	}
	return total
}

// Sorted returns the locations in lexical order.
func (l Locations) Sorted() []string {
	out := make([]string, 0, len(l))
	for loc := range l {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}

// Add records n occurrences of key at loc.
func (v Value) Add(key Key, loc string, n int) {
	if n <= 0 {
		return
	}
	locs, ok := v[key]
	if !ok {
		locs = make(Locations)
		v[key] = locs
	}
	locs.Add(loc, n)
}

// Merge adds other's counts into v.
func (v Value) Merge(other Value) {
	for key, locs := range other {
		for loc, n := range locs {
			v.Add(key, loc, n)
		}
	}
}

// Add records n occurrences of (name, key) at loc.
func (idx Index) Add(name string, key Key, loc string, n int) {
	if n <= 0 {
		return
	}
	v, ok := idx[name]
	if !ok {
		v = make(Value)
		idx[name] = v
	}
	v.Add(key, loc, n)
}

// Remove deletes the entry for (name, key, loc) and returns its count.
// Emptied inner maps are pruned.
func (idx Index) Remove(name string, key Key, loc string) int {
	v, ok := idx[name]
	if !ok {
		return 0
	}
	locs, ok := v[key]
	if !ok {
		return 0
	}
	n := locs[loc]
	delete(locs, loc)
	if len(locs) == 0 {
		delete(v, key)
	}
	if len(v) == 0 {
		delete(idx, name)
	}
	return n
}

// Merge adds other's counts into idx.
func (idx Index) Merge(other Index) {
	for name, v := range other {
		for key, locs := range v {
			for loc, n := range locs {
				idx.Add(name, key, loc, n)
			}
		}
	}
}

// Count returns the count stored for (name, key, loc).
func (idx Index) Count(name string, key Key, loc string) int {
	return idx[name][key][loc]
}

// Names returns the indexed names in lexical order.
func (idx Index) Names() []string {
	out := make([]string, 0, len(idx))
	for name := range idx {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// References returns the total number of recorded occurrences.
func (idx Index) References() int {
	total := 0
	for _, v := range idx {
		for _, locs := range v {
			total += locs.Total()
		}
	}
	return total
}
