package indexer

import "sync/atomic"

// IndexLock guards an Indexer against overlapping runs. A second caller fails
// fast instead of queueing behind a run that may take minutes.
type IndexLock struct {
	held atomic.Bool
}

// TryAcquire takes the lock if it is free and reports whether it did.
func (l *IndexLock) TryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release frees the lock. Only the holder may call it.
func (l *IndexLock) Release() {
	l.held.Store(false)
}

// Held reports whether a run is in progress.
func (l *IndexLock) Held() bool {
	return l.held.Load()
}

// Indexing reports whether a run is in progress.
func (idx *Indexer) Indexing() bool {
	return idx.lock.Held()
}
