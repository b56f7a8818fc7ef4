package constraint

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ppiankov/trustgate/internal/model"
)

// Store serves the active constraint set. Sets are immutable, so
// concurrent evaluations share the same *Set behind an atomic pointer;
// the only write is the pointer swap on reload. Reads past the TTL
// trigger a refresh from disk with one bounded retry; a refresh failure
// keeps serving the cached set rather than dropping to zero policy,
// and only a store that has never loaded anything fails closed.
type Store struct {
	path string
	ttl  time.Duration

	active   atomic.Pointer[Set]
	loadedAt atomic.Int64 // unix nanos of last successful load

	reloadMu sync.Mutex
}

// NewStore creates a constraint store reading from path. A zero ttl
// disables TTL-based refresh (reload happens only via Reload).
func NewStore(path string, ttl time.Duration) *Store {
	return &Store{path: path, ttl: ttl}
}

// Active returns the current constraint set, refreshing from disk when
// the TTL has lapsed. Returns ConstraintSetUnavailable only when no
// set has ever been loaded and the store is unreachable.
func (s *Store) Active() (*Set, error) {
	set := s.active.Load()
	fresh := set != nil && (s.ttl <= 0 || time.Since(time.Unix(0, s.loadedAt.Load())) < s.ttl)
	if fresh {
		return set, nil
	}

	if err := s.Reload(); err != nil {
		// One bounded retry before degrading.
		if err = s.Reload(); err != nil {
			if set != nil {
				return set, nil
			}
			return nil, &model.AvailabilityError{
				Code:    model.CodeConstraintSetUnavailable,
				Message: "no constraint set loaded",
				Err:     err,
			}
		}
	}
	return s.active.Load(), nil
}

// Reload loads the set from disk and swaps the active pointer.
// Invalid or unreadable files leave the current set in place.
func (s *Store) Reload() error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	set, err := Load(s.path)
	if err != nil {
		return fmt.Errorf("failed to reload constraint set: %w", err)
	}
	s.active.Store(set)
	s.loadedAt.Store(time.Now().UnixNano())
	return nil
}

// Replace installs an in-memory set directly. For tests and embedders.
func (s *Store) Replace(set *Set) {
	s.active.Store(set)
	s.loadedAt.Store(time.Now().UnixNano())
}
