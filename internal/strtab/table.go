package strtab

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrClosed is returned by operations on a closed table.
	ErrClosed = errors.New("strtab: table closed")
	// ErrBroken is returned after a failed append until the table is rebuilt.
	ErrBroken = errors.New("strtab: table needs rebuild")
	// ErrUnknownID is returned for ids the table never issued.
	ErrUnknownID = errors.New("strtab: unknown id")
	// ErrCorrupt is returned by stores whose persisted data cannot be read back.
	ErrCorrupt = errors.New("strtab: corrupt store")
)

// Store persists the table's strings in id order.
type Store interface {
	// Load returns every stored string; the i-th string has id i.
	Load() ([]string, error)
	// Append persists the next string.
	Append(s string) error
	// Reset discards every stored string.
	Reset() error
	Close() error
}

// Table assigns stable uint32 ids to strings and persists them through a Store.
//
// Lookups run concurrently. Appends are serialised. View holds the table stable for the
// duration of a whole value encode or decode; Rebuild and Close wait for running views.
type Table struct {
	life sync.RWMutex
	mu   sync.RWMutex
	wmu  sync.Mutex

	store  Store
	ids    map[string]uint32
	values []string
	broken error
	closed bool

	recovered bool
}

// Open loads the table from store. A store whose tail is corrupt is reset; the table
// then reports Recovered so callers can rebuild everything that referenced old ids.
func Open(store Store) (*Table, error) {
	t := &Table{store: store, ids: make(map[string]uint32)}
	values, err := store.Load()
	if errors.Is(err, ErrCorrupt) {
		if rerr := store.Reset(); rerr != nil {
			return nil, fmt.Errorf("reset corrupt string table: %w", rerr)
		}
		t.recovered = true
		values = nil
	} else if err != nil {
		return nil, fmt.Errorf("load string table: %w", err)
	}
	for i, s := range values {
		if _, dup := t.ids[s]; !dup {
			t.ids[s] = uint32(i)
		}
	}
	t.values = values
	return t, nil
}

// Recovered reports whether Open had to discard corrupt data.
func (t *Table) Recovered() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.recovered
}

// Len returns the number of enumerated strings.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.values)
}

// Enumerate returns the id of s, assigning and persisting a new one if needed.
func (t *Table) Enumerate(s string) (uint32, error) {
	t.mu.RLock()
	id, ok := t.ids[s]
	closed, broken := t.closed, t.broken
	t.mu.RUnlock()
	switch {
	case closed:
		return 0, ErrClosed
	case ok:
		return id, nil
	case broken != nil:
		return 0, fmt.Errorf("%w: %v", ErrBroken, broken)
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()

	t.mu.RLock()
	id, ok = t.ids[s]
	closed, broken = t.closed, t.broken
	next := uint32(len(t.values))
	t.mu.RUnlock()
	switch {
	case closed:
		return 0, ErrClosed
	case ok:
		return id, nil
	case broken != nil:
		return 0, fmt.Errorf("%w: %v", ErrBroken, broken)
	}

	if err := t.store.Append(s); err != nil {
		t.mu.Lock()
		t.broken = err
		t.mu.Unlock()
		return 0, fmt.Errorf("append string: %w", err)
	}

	t.mu.Lock()
	t.ids[s] = next
	t.values = append(t.values, s)
	t.mu.Unlock()
	return next, nil
}

// ValueOf returns the string with the given id.
func (t *Table) ValueOf(id uint32) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return "", ErrClosed
	}
	if int(id) >= len(t.values) {
		return "", fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	return t.values[id], nil
}

// View runs fn with the table guaranteed not to be rebuilt or closed meanwhile.
func (t *Table) View(fn func() error) error {
	t.life.RLock()
	defer t.life.RUnlock()
	return fn()
}

// Rebuild discards every id and clears the broken state. Values encoded before the
// rebuild can no longer be decoded and must be re-indexed.
func (t *Table) Rebuild() error {
	t.life.Lock()
	defer t.life.Unlock()
	t.wmu.Lock()
	defer t.wmu.Unlock()

	if err := t.store.Reset(); err != nil {
		return fmt.Errorf("reset string table: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.ids = make(map[string]uint32)
	t.values = nil
	t.broken = nil
	t.recovered = false
	return nil
}

// Close releases the store. Further calls fail with ErrClosed.
func (t *Table) Close() error {
	t.life.Lock()
	defer t.life.Unlock()
	t.wmu.Lock()
	defer t.wmu.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	return t.store.Close()
}
