package interaction

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Store owns every tracked interaction. All methods are safe for concurrent
// use, and every read returns a copy detached from store state.
type Store struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	data    map[string]*Interaction
	nextSeq uint64
}

func NewStore(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		clock: clock,
		data:  make(map[string]*Interaction),
	}
}

// Create inserts entry as a new pending interaction and returns its id. The
// caller's ID, CreatedAt and Status are overwritten.
func (s *Store) Create(entry Interaction) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newIDLocked()
	e := entry.clone()
	e.ID = id
	e.CreatedAt = s.clock.Now()
	e.Status = StatusPending
	s.nextSeq++
	e.seq = s.nextSeq
	s.data[id] = &e
	return id
}

func (s *Store) Get(id string) (Interaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[id]
	if !ok {
		return Interaction{}, false
	}
	return e.clone(), true
}

// Update applies mutate to the stored interaction. Unknown ids are a no-op
// and report false.
func (s *Store) Update(id string, mutate func(*Interaction)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[id]
	if !ok {
		return false
	}
	mutate(e)
	e.ID = id
	return true
}

// FindByURL returns the id of the oldest pending interaction for url.
func (s *Store) FindByURL(url string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.oldestPendingLocked(url, false); e != nil {
		return e.ID, true
	}
	return "", false
}

// CompletePending correlates a response and mutates the match in one critical
// section. A pending entry whose RequestKey equals requestKey wins. Otherwise
// the oldest pending entry for url is used, restricted to entries without a
// RequestKey when requestKey is set, so a keyed response never completes a
// different keyed request. mutate may decline by returning false, in which
// case the entry is left untouched.
func (s *Store) CompletePending(url, requestKey string, mutate func(*Interaction) bool) (Interaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var match *Interaction
	if requestKey != "" {
		for _, e := range s.data {
			if e.Status == StatusPending && e.RequestKey == requestKey && (match == nil || e.seq < match.seq) {
				match = e
			}
		}
	}
	if match == nil {
		match = s.oldestPendingLocked(url, requestKey != "")
	}
	if match == nil {
		return Interaction{}, false
	}

	work := match.clone()
	if !mutate(&work) {
		return Interaction{}, false
	}
	work.ID = match.ID
	*match = work
	return match.clone(), true
}

// SweepExpired removes every interaction older than maxAge, whatever its
// status, and returns how many were removed.
func (s *Store) SweepExpired(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	removed := 0
	for id, e := range s.data {
		if now.Sub(e.CreatedAt) > maxAge {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// List returns every interaction in creation order.
func (s *Store) List() []Interaction {
	s.mu.Lock()
	entries := make([]*Interaction, 0, len(s.data))
	for _, e := range s.data {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]Interaction, len(entries))
	for i, e := range entries {
		out[i] = e.clone()
	}
	s.mu.Unlock()
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// oldestPendingLocked returns the oldest pending entry for url. With
// unkeyedOnly set, entries carrying a RequestKey are skipped.
func (s *Store) oldestPendingLocked(url string, unkeyedOnly bool) *Interaction {
	var oldest *Interaction
	for _, e := range s.data {
		if e.Status != StatusPending || e.URL != url {
			continue
		}
		if unkeyedOnly && e.RequestKey != "" {
			continue
		}
		if oldest == nil || e.seq < oldest.seq {
			oldest = e
		}
	}
	return oldest
}

// newIDLocked draws a time-ordered random id that no live entry uses.
func (s *Store) newIDLocked() string {
	for {
		u, err := uuid.NewV7()
		if err != nil {
			u = uuid.New()
		}
		id := u.String()
		if _, taken := s.data[id]; !taken {
			return id
		}
	}
}
