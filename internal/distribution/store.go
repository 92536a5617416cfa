package distribution

import "sync"

// Store holds the published collection of a view. Publication replaces the
// pointer; readers keep whatever snapshot they loaded.
type Store struct {
	mu      sync.RWMutex
	current *Collection
}

func NewStore() *Store {
	return &Store{}
}

// Load returns the published snapshot, nil before the first publication.
// Callers must treat it as read-only.
func (s *Store) Load() *Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Publish runs fn under the store lock and installs its result when fn
// reports success. fn receives the currently published collection.
func (s *Store) Publish(fn func(current *Collection) (*Collection, bool)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := fn(s.current)
	if !ok {
		return false
	}
	s.current = next
	return true
}

// Staging is the private intermediate shared by the two halves of a staged
// update. It is bound to the viewport epoch the transaction was opened in.
type Staging struct {
	mu        sync.Mutex
	coll      *Collection
	epoch     uint64
	discarded bool
}

func NewStaging(epoch uint64) *Staging {
	return &Staging{epoch: epoch}
}

// Epoch returns the epoch the staging area was opened in
func (s *Staging) Epoch() uint64 {
	return s.epoch
}

// Take removes and returns the parked collection, nil when empty
func (s *Staging) Take() *Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.coll
	s.coll = nil
	return c
}

// Put parks a collection for the next half of the update
func (s *Staging) Put(c *Collection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coll = c
}

// Discard drops the parked collection and marks the transaction as unusable:
// the final half must rebuild from scratch
func (s *Staging) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coll = nil
	s.discarded = true
}

// Discarded reports whether Discard was called
func (s *Staging) Discarded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discarded
}
