package usecase

import "sync"

// DocumentLocks serializes all mutations of a single document's
// version chain. One instance is shared by every use case that
// mutates chain state. Entries are reference counted so the map does
// not grow with every document ever touched.
type DocumentLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewDocumentLocks() *DocumentLocks {
	return &DocumentLocks{locks: make(map[string]*lockEntry)}
}

// Acquire blocks until the document's exclusive lock is held and
// returns the release function.
func (l *DocumentLocks) Acquire(documentID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[documentID]
	if !ok {
		entry = &lockEntry{}
		l.locks[documentID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, documentID)
		}
		l.mu.Unlock()
	}
}
