package lww

// Set is a last-writer-wins element set. Each item carries at most one add
// timestamp and one remove timestamp; presence is decided by comparing the two,
// with ties resolved in favor of the add.
//
// A Set is not safe for concurrent use. The graph engine that owns it is only
// ever touched from a single goroutine.
type Set[T comparable] struct {
	added   map[T]Timestamp
	removed map[T]Timestamp
	clock   *Clock
}

func NewSet[T comparable](clock *Clock) *Set[T] {
	if clock == nil {
		clock = NewClock(nil)
	}
	return &Set[T]{
		added:   make(map[T]Timestamp),
		removed: make(map[T]Timestamp),
		clock:   clock,
	}
}

// Add records an add of item at the current clock reading.
func (s *Set[T]) Add(item T) Timestamp {
	ts := s.clock.Now()
	s.added[item] = ts
	return ts
}

// Remove records a tombstone for item at the current clock reading.
func (s *Set[T]) Remove(item T) Timestamp {
	ts := s.clock.Now()
	s.removed[item] = ts
	return ts
}

// Resolve reports whether item is present without touching either map.
// decided is false when there is no add entry, in which case nothing can be pruned.
func (s *Set[T]) Resolve(item T) (present, decided bool) {
	a, ok := s.added[item]
	if !ok {
		return false, false
	}
	r, ok := s.removed[item]
	if !ok {
		return true, true
	}
	return a >= r, true
}

// Prune evicts the losing entry of a decided item. Items that have only one
// side, or none at all, are left alone.
func (s *Set[T]) Prune(item T) {
	a, aok := s.added[item]
	r, rok := s.removed[item]
	if !aok || !rok {
		return
	}
	if a >= r {
		s.FreeRemoved(item)
	} else {
		s.FreeAdded(item)
	}
}

// Present resolves item and prunes the loser.
func (s *Set[T]) Present(item T) bool {
	present, decided := s.Resolve(item)
	if decided {
		s.Prune(item)
	}
	return present
}

func (s *Set[T]) FreeAdded(item T)   { delete(s.added, item) }
func (s *Set[T]) FreeRemoved(item T) { delete(s.removed, item) }

// Candidates returns every item that has an add entry, in map order.
func (s *Set[T]) Candidates() []T {
	out := make([]T, 0, len(s.added))
	for item := range s.added {
		out = append(out, item)
	}
	return out
}

// Added returns a copy of the add timestamps.
func (s *Set[T]) Added() map[T]Timestamp { return cloneMap(s.added) }

// Removed returns a copy of the remove timestamps.
func (s *Set[T]) Removed() map[T]Timestamp { return cloneMap(s.removed) }

// Merge takes the pointwise maximum of the local and incoming maps.
// Equal timestamps never overwrite, so re-merging the same state is a no-op.
func (s *Set[T]) Merge(added, removed map[T]Timestamp) {
	joinInto(s.added, added)
	joinInto(s.removed, removed)
}

// Len is the number of items with an add entry.
func (s *Set[T]) Len() int { return len(s.added) }

func joinInto[T comparable](dst, src map[T]Timestamp) {
	for item, ts := range src {
		if cur, ok := dst[item]; !ok || cur < ts {
			dst[item] = ts
		}
	}
}

func cloneMap[T comparable](m map[T]Timestamp) map[T]Timestamp {
	out := make(map[T]Timestamp, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
