package graph

import "slices"

// tracker decides which remote users a graph keeps. A user is tracked while
// any view holds a reference on it or while the local user follows it.
//
// Changes are recorded during a frame and settled once at its end, so a
// release followed by a retain in the same frame is a no-op rather than an
// unsubscribe and resubscribe.
type tracker struct {
	refs     map[string]int
	followed map[string]bool

	before map[string]bool
	polls  map[string]pollMode
	order  []string
}

func newTracker() *tracker {
	return &tracker{
		refs:     make(map[string]int),
		followed: make(map[string]bool),
		before:   make(map[string]bool),
		polls:    make(map[string]pollMode),
	}
}

func (t *tracker) isTracked(id string) bool {
	return t.refs[id] > 0 || t.followed[id]
}

func (t *tracker) isFollowed(id string) bool {
	return t.followed[id]
}

func (t *tracker) touch(id string, mode pollMode) {
	if _, ok := t.before[id]; !ok {
		t.before[id] = t.isTracked(id)
		t.order = append(t.order, id)
	}
	if mode > t.polls[id] {
		t.polls[id] = mode
	}
}

// retain adds one view reference.
func (t *tracker) retain(id string, mode pollMode) {
	t.touch(id, mode)
	t.refs[id]++
}

// release drops one view reference. Releasing an id without references is
// ignored.
func (t *tracker) release(id string) {
	if t.refs[id] == 0 {
		return
	}
	t.touch(id, pollNever)
	t.refs[id]--
	if t.refs[id] == 0 {
		delete(t.refs, id)
	}
}

// setFollowed records the local user's follow state for id.
func (t *tracker) setFollowed(id string, followed bool, mode pollMode) {
	t.touch(id, mode)
	if followed {
		t.followed[id] = true
		return
	}
	delete(t.followed, id)
}

// followedIDs returns the ids currently followed, sorted.
func (t *tracker) followedIDs() []string {
	ids := make([]string, 0, len(t.followed))
	for id := range t.followed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ids returns every tracked id, sorted.
func (t *tracker) ids() []string {
	seen := make(map[string]struct{}, len(t.refs)+len(t.followed))
	for id := range t.refs {
		seen[id] = struct{}{}
	}
	for id := range t.followed {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

type settlement struct {
	added   []string
	removed []string
	fetch   []string
}

// settle compares the state recorded at first touch with the current state
// and resets the frame.
func (t *tracker) settle() settlement {
	var s settlement
	for _, id := range t.order {
		was := t.before[id]
		now := t.isTracked(id)
		switch {
		case now && !was:
			s.added = append(s.added, id)
		case !now && was:
			s.removed = append(s.removed, id)
		}
		if !now {
			continue
		}
		switch t.polls[id] {
		case pollAlways:
			s.fetch = append(s.fetch, id)
		case pollIfNew:
			if !was {
				s.fetch = append(s.fetch, id)
			}
		}
	}
	clear(t.before)
	clear(t.polls)
	t.order = t.order[:0]
	return s
}
