package graph

import (
	"slices"
	"strings"
	"sync/atomic"

	"github.com/louisbranch/socialsync/internal/services/social/domain"
)

// generation is one copy of the user map. readers counts live Snapshot
// handles while the generation is published; -1 marks it as owned by the
// writer, which is the only state in which entries may change.
type generation struct {
	entries map[string]*domain.User
	readers atomic.Int64
}

func newGeneration(size int) *generation {
	return &generation{entries: make(map[string]*domain.User, size)}
}

func (g *generation) copyOf() *generation {
	next := newGeneration(len(g.entries))
	for id, user := range g.entries {
		next.entries[id] = user
	}
	return next
}

func (g *generation) apply(m mutation) {
	if m.user == nil {
		delete(g.entries, m.id)
		return
	}
	g.entries[m.id] = m.user
}

type mutation struct {
	id   string
	user *domain.User // nil removes
}

// Store is a double-buffered map of graph entries.
//
// Put and Remove only touch the inactive generation. Swap publishes it as
// the active generation with one atomic pointer exchange and then brings
// the previous generation up to date by replaying the frame's mutations.
// When a reader still holds the previous generation it is left untouched
// and a fresh copy of the new active generation becomes the inactive one;
// the held generation is reclaimed after its last Release.
//
// Put, Remove, Get and Swap must be called from a single goroutine.
// Acquire and Snapshot methods are safe from any goroutine.
type Store struct {
	active   atomic.Pointer[generation]
	inactive *generation
	log      []mutation
	retired  int
}

// NewStore returns an empty store with both generations seeded.
func NewStore() *Store {
	s := &Store{inactive: newGeneration(0)}
	s.inactive.readers.Store(-1)
	s.active.Store(newGeneration(0))
	return s
}

// Put inserts or replaces entries in the inactive generation.
func (s *Store) Put(users ...*domain.User) {
	for _, user := range users {
		if user == nil {
			continue
		}
		m := mutation{id: user.ID, user: user}
		s.inactive.apply(m)
		s.log = append(s.log, m)
	}
}

// Remove deletes entries from the inactive generation and returns the ids
// that were present.
func (s *Store) Remove(ids ...string) []string {
	var removed []string
	for _, id := range ids {
		if _, ok := s.inactive.entries[id]; !ok {
			continue
		}
		m := mutation{id: id}
		s.inactive.apply(m)
		s.log = append(s.log, m)
		removed = append(removed, id)
	}
	return removed
}

// Get reads an entry from the inactive generation, which includes changes
// not yet published.
func (s *Store) Get(id string) (*domain.User, bool) {
	user, ok := s.inactive.entries[id]
	return user, ok
}

// Published reports whether id is present in the active generation.
func (s *Store) Published(id string) bool {
	_, ok := s.active.Load().entries[id]
	return ok
}

// Len returns the number of entries in the inactive generation.
func (s *Store) Len() int {
	return len(s.inactive.entries)
}

// Pending returns the number of mutations waiting for Swap.
func (s *Store) Pending() int {
	return len(s.log)
}

// Swap publishes the inactive generation. It returns false, and does
// nothing, when no mutation happened since the last swap.
func (s *Store) Swap() bool {
	if len(s.log) == 0 {
		return false
	}
	next := s.inactive
	next.readers.Store(0)
	previous := s.active.Swap(next)

	if previous.readers.CompareAndSwap(0, -1) {
		for _, m := range s.log {
			previous.apply(m)
		}
		s.inactive = previous
	} else {
		copied := next.copyOf()
		copied.readers.Store(-1)
		s.inactive = copied
		s.retired++
	}
	clear(s.log)
	s.log = s.log[:0]
	return true
}

// Acquire returns a handle on the active generation. The handle stays
// valid, and unchanged, until Release, regardless of later swaps.
func (s *Store) Acquire() *Snapshot {
	for {
		gen := s.active.Load()
		readers := gen.readers.Load()
		if readers < 0 {
			continue
		}
		if gen.readers.CompareAndSwap(readers, readers+1) {
			return &Snapshot{gen: gen}
		}
	}
}

// Snapshot is a read-only view of one published generation.
type Snapshot struct {
	gen      *generation
	released atomic.Bool
}

// Get returns the entry for id.
func (s *Snapshot) Get(id string) (*domain.User, bool) {
	user, ok := s.gen.entries[id]
	return user, ok
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	return len(s.gen.entries)
}

// IDs returns every user id in ascending order.
func (s *Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.gen.entries))
	for id := range s.gen.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Users returns every entry ordered by user id.
func (s *Snapshot) Users() []*domain.User {
	users := make([]*domain.User, 0, len(s.gen.entries))
	for _, user := range s.gen.entries {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b *domain.User) int { return strings.Compare(a.ID, b.ID) })
	return users
}

// Release returns the handle. Further reads are not allowed; a second
// Release is ignored.
func (s *Snapshot) Release() {
	if s == nil || !s.released.CompareAndSwap(false, true) {
		return
	}
	s.gen.readers.Add(-1)
}
