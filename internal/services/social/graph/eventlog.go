package graph

import (
	"slices"

	"github.com/louisbranch/socialsync/internal/services/social/domain"
)

// eventLog collects the events of one frame. Ids for the same event type
// merge into the open event of that type until it is full.
//
// While suppressed, per-user events are dropped and error events are held
// until the graph announces its local user.
type eventLog struct {
	localUserID string
	suppressed  bool
	events      []domain.Event
	held        []domain.Event
	open        map[domain.EventType]int
	seen        map[domain.EventType]map[string]struct{}
}

func newEventLog(localUserID string, suppressed bool) *eventLog {
	return &eventLog{
		localUserID: localUserID,
		suppressed:  suppressed,
		open:        make(map[domain.EventType]int),
		seen:        make(map[domain.EventType]map[string]struct{}),
	}
}

func (l *eventLog) add(eventType domain.EventType, id string) {
	if l.suppressed {
		return
	}
	seen := l.seen[eventType]
	if seen == nil {
		seen = make(map[string]struct{})
		l.seen[eventType] = seen
	}
	if _, ok := seen[id]; ok {
		return
	}
	seen[id] = struct{}{}

	if i, ok := l.open[eventType]; ok && len(l.events[i].AffectedUserIDs) < domain.MaxAffectedUsersPerEvent {
		l.events[i].AffectedUserIDs = append(l.events[i].AffectedUserIDs, id)
		return
	}
	l.events = append(l.events, domain.Event{
		Type:            eventType,
		LocalUserID:     l.localUserID,
		AffectedUserIDs: []string{id},
	})
	l.open[eventType] = len(l.events) - 1
}

// emit appends a standalone event that never merges.
func (l *eventLog) emit(eventType domain.EventType, ids []string, err error) {
	if l.suppressed && err == nil {
		return
	}
	chunks := domain.ChunkIDs(ids, domain.MaxAffectedUsersPerEvent)
	if len(chunks) == 0 {
		chunks = [][]string{nil}
	}
	for _, chunk := range chunks {
		event := domain.Event{
			Type:            eventType,
			LocalUserID:     l.localUserID,
			AffectedUserIDs: slices.Clone(chunk),
			Err:             err,
		}
		if l.suppressed {
			l.held = append(l.held, event)
			continue
		}
		l.events = append(l.events, event)
	}
}

// announce lifts suppression, emits the local user event and then every
// held error, those carried over from earlier frames first.
func (l *eventLog) announce(earlier []domain.Event, err error) {
	l.suppressed = false
	l.emit(domain.EventLocalUserAdded, nil, err)
	l.events = append(l.events, earlier...)
	l.events = append(l.events, l.held...)
	l.held = nil
}

// drop removes id from every merged event of this frame. Events left with
// no ids are removed.
func (l *eventLog) drop(id string) {
	changed := false
	for eventType, seen := range l.seen {
		if _, ok := seen[id]; !ok {
			continue
		}
		delete(seen, id)
		for i := range l.events {
			if l.events[i].Type != eventType || l.events[i].Err != nil {
				continue
			}
			before := len(l.events[i].AffectedUserIDs)
			l.events[i].AffectedUserIDs = slices.DeleteFunc(l.events[i].AffectedUserIDs, func(v string) bool { return v == id })
			changed = changed || before != len(l.events[i].AffectedUserIDs)
		}
	}
	if !changed {
		return
	}
	l.events = slices.DeleteFunc(l.events, func(e domain.Event) bool {
		return e.Err == nil && len(e.AffectedUserIDs) == 0 && e.Type != domain.EventLocalUserAdded
	})
	clear(l.open)
	for i, e := range l.events {
		if e.Err == nil {
			l.open[e.Type] = i
		}
	}
}
