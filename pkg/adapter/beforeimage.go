package adapter

import "sync"

// BeforeImageStore holds the single most recent successful apply's
// before-image, guarded by its own mutex so a concurrent Read/Apply never
// observes a half-swapped snapshot. Concrete adapters embed this rather
// than re-implementing the mutex-guarded swap pattern individually.
type BeforeImageStore struct {
	mu  sync.Mutex
	doc Document
	has bool
}

// Capture atomically installs doc as the new before-image, replacing any
// prior one. Must be called before the adapter's mutating step so Rollback
// has somewhere to return to if that step fails.
func (s *BeforeImageStore) Capture(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	s.has = true
}

// Get returns the stored before-image and whether one exists.
func (s *BeforeImageStore) Get() (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc, s.has
}

// Clear discards the stored before-image.
func (s *BeforeImageStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = nil
	s.has = false
}
