// Package timeline holds the home timeline: an ordered, bounded, de-duplicated
// collection of entries shared between the poll consumer and user actions.
package timeline

import (
	"sort"
	"sync"

	"nestling/internal/model"
)

// Store is the newest-first home timeline. No two entries share an id.
// Every method is one critical section, so callers on different goroutines
// never observe a partial merge.
type Store struct {
	mu      sync.Mutex
	entries []model.Entry
}

// NewStore returns a store seeded with entries, typically a loaded snapshot.
// The seed is normalized to the store invariants.
func NewStore(seed []model.Entry) *Store {
	s := &Store{}
	s.entries = mergeDesc(nil, seed)
	return s
}

// MergeResult describes what a merge changed.
type MergeResult struct {
	// Added holds the entries that were not present before, newest first.
	Added []model.Entry
	// Evicted holds the entries dropped by the retention limit, newest first.
	Evicted []model.Entry
}

// Merge inserts batch into the store keeping id-descending order.
// An id that is already present keeps its existing entry, including its
// unread flag. It returns the entries actually added.
func (s *Store) Merge(batch []model.Entry) []model.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.merge(batch)
}

// Evict truncates the store to at most limit entries, dropping the oldest.
func (s *Store) Evict(limit int) []model.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evict(limit)
}

// MergeAndEvict merges batch and applies the retention limit atomically.
func (s *Store) MergeAndEvict(batch []model.Entry, limit int) MergeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := s.merge(batch)
	evicted := s.evict(limit)
	return MergeResult{Added: added, Evicted: evicted}
}

// AcknowledgeRead marks the entry with id as read. It reports whether the
// entry was found; an absent id (for example, already evicted) is a no-op.
func (s *Store) AcknowledgeRead(id model.TweetID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.entries[i].Unread = false
	return true
}

// AdoptRead marks as read every held entry that is read in other, typically
// a snapshot written by another process. It returns the ids it changed.
func (s *Store) AdoptRead(other []model.Entry) []model.TweetID {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed []model.TweetID
	for _, e := range other {
		if e.Unread {
			continue
		}
		if i := s.index(e.ID()); i >= 0 && s.entries[i].Unread {
			s.entries[i].Unread = false
			changed = append(changed, e.ID())
		}
	}
	return changed
}

// Snapshot returns a copy of all entries, newest first.
func (s *Store) Snapshot() []model.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Get returns the entry with id, if present.
func (s *Store) Get(id model.TweetID) (model.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return model.Entry{}, false
	}
	return s.entries[i], true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.Unread {
			n++
		}
	}
	return n
}

// Filter selects entries for display.
type Filter struct {
	UnreadOnly bool
	// Muted screen names are hidden. Matching is exact, as the API returns them.
	Muted []string
}

// View returns a filtered snapshot, newest first.
func (s *Store) View(f Filter) []model.Entry {
	muted := make(map[string]struct{}, len(f.Muted))
	for _, m := range f.Muted {
		muted[m] = struct{}{}
	}
	snap := s.Snapshot()
	out := snap[:0]
	for _, e := range snap {
		if f.UnreadOnly && !e.Unread {
			continue
		}
		if _, ok := muted[e.Tweet.User.ScreenName]; ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *Store) merge(batch []model.Entry) []model.Entry {
	if len(batch) == 0 {
		return nil
	}
	before := len(s.entries)
	merged := mergeDesc(s.entries, batch)
	if len(merged) == before {
		return nil
	}
	old := make(map[model.TweetID]struct{}, before)
	for _, e := range s.entries {
		old[e.ID()] = struct{}{}
	}
	added := make([]model.Entry, 0, len(merged)-before)
	for _, e := range merged {
		if _, ok := old[e.ID()]; !ok {
			added = append(added, e)
		}
	}
	s.entries = merged
	return added
}

func (s *Store) evict(limit int) []model.Entry {
	if limit < 0 {
		limit = 0
	}
	if len(s.entries) <= limit {
		return nil
	}
	evicted := make([]model.Entry, len(s.entries)-limit)
	copy(evicted, s.entries[limit:])
	clear(s.entries[limit:])
	s.entries = s.entries[:limit]
	return evicted
}

// index finds id by binary search over the id-descending entries.
func (s *Store) index(id model.TweetID) int {
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].ID() <= id })
	if i < len(s.entries) && s.entries[i].ID() == id {
		return i
	}
	return -1
}

// mergeDesc merges incoming into existing (already id-descending and unique)
// and returns a new slice. Existing entries win on equal ids; within incoming
// the first occurrence wins.
func mergeDesc(existing, incoming []model.Entry) []model.Entry {
	in := make([]model.Entry, len(incoming))
	copy(in, incoming)
	sort.SliceStable(in, func(i, j int) bool { return in[i].ID() > in[j].ID() })

	out := make([]model.Entry, 0, len(existing)+len(in))
	i, j := 0, 0
	for i < len(existing) || j < len(in) {
		var next model.Entry
		switch {
		case j >= len(in):
			next = existing[i]
			i++
		case i >= len(existing):
			next = in[j]
			j++
		case existing[i].ID() >= in[j].ID():
			next = existing[i]
			i++
		default:
			next = in[j]
			j++
		}
		if n := len(out); n > 0 && out[n-1].ID() == next.ID() {
			continue
		}
		out = append(out, next)
	}
	return out
}
