// Package group maintains social user groups: filtered or explicitly
// listed projections of one local user's social graph.
package group

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/louisbranch/socialsync/internal/platform/id"
	"github.com/louisbranch/socialsync/internal/services/social/domain"
)

// Kind distinguishes filter groups from list groups.
type Kind int

const (
	KindFilter Kind = iota + 1
	KindList
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFilter:
		return "filter"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Filter is the membership rule of a filter group.
type Filter struct {
	Presence     domain.PresenceFilter
	Relationship domain.RelationshipFilter
	// TitleID is the title the title-online filters check against.
	TitleID uint32
}

// Snapshot is the read side of a published graph generation.
type Snapshot interface {
	Get(id string) (*domain.User, bool)
	Users() []*domain.User
}

// Group is one view over a local user's graph.
//
// Evaluate and Update run on the DoWork goroutine. Members, TrackedIDs,
// IsMemberOf and Loaded may be called from any goroutine.
type Group struct {
	id          string
	localUserID string
	kind        Kind
	filter      Filter
	// titleHistory is false when the graph does not fetch title history, in
	// which case title history filters never match.
	titleHistory bool

	mu         sync.RWMutex
	tracked    []string
	trackedSet map[string]struct{}
	entries    map[string]*domain.User
	members    []*domain.User
	loaded     bool
	// updated is set once the group has loaded; later reloads report an
	// update instead of a load.
	updated bool
}

// NewFilter builds a filter group.
func NewFilter(localUserID string, filter Filter, titleHistory bool) (*Group, error) {
	handle, err := id.New(id.KindFilterGroup)
	if err != nil {
		return nil, fmt.Errorf("new filter group: %w", err)
	}
	return &Group{
		id:           handle,
		localUserID:  localUserID,
		kind:         KindFilter,
		filter:       filter,
		titleHistory: titleHistory,
		entries:      make(map[string]*domain.User),
	}, nil
}

// NewList builds a list group tracking ids. Duplicate ids are collapsed.
func NewList(localUserID string, ids []string) (*Group, error) {
	handle, err := id.New(id.KindListGroup)
	if err != nil {
		return nil, fmt.Errorf("new list group: %w", err)
	}
	g := &Group{
		id:          handle,
		localUserID: localUserID,
		kind:        KindList,
		entries:     make(map[string]*domain.User),
	}
	g.setTrackedLocked(ids)
	return g, nil
}

// ID returns the group handle.
func (g *Group) ID() string { return g.id }

// LocalUserID returns the local user owning the group.
func (g *Group) LocalUserID() string { return g.localUserID }

// Kind returns the group kind.
func (g *Group) Kind() Kind { return g.kind }

// Filter returns the membership rule of a filter group.
func (g *Group) Filter() Filter { return g.filter }

// Loaded reports whether the group announced its members.
func (g *Group) Loaded() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.loaded
}

// Members returns a point-in-time copy of the members ordered by user id.
// Each entry is a copy the caller may modify. It is empty until the group is
// loaded.
func (g *Group) Members() []*domain.User {
	g.mu.RLock()
	defer g.mu.RUnlock()
	members := make([]*domain.User, 0, len(g.members))
	if !g.loaded {
		return members
	}
	for _, user := range g.members {
		members = append(members, user.Clone())
	}
	return members
}

// TrackedIDs returns the ids a list group tracks, or the member ids of a
// loaded filter group.
func (g *Group) TrackedIDs() []string {
	if g.kind == KindList {
		g.mu.RLock()
		defer g.mu.RUnlock()
		return slices.Clone(g.tracked)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.members))
	if !g.loaded {
		return ids
	}
	for _, user := range g.members {
		ids = append(ids, user.ID)
	}
	return ids
}

// IsMemberOf reports whether user belongs to the group. It depends only on
// user's fields, the filter and the tracked list.
func (g *Group) IsMemberOf(user *domain.User) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.isMemberLocked(user)
}

func (g *Group) isMemberLocked(user *domain.User) bool {
	if user == nil {
		return false
	}
	if g.kind == KindList {
		_, ok := g.trackedSet[user.ID]
		return ok
	}
	switch g.filter.Relationship {
	case domain.RelationshipFilterFriends:
		if !user.IsFollowedByCaller {
			return false
		}
	case domain.RelationshipFilterFavorite:
		if !user.IsFavorite {
			return false
		}
	case domain.RelationshipFilterAll:
	default:
		return false
	}
	if g.filter.Presence.RequiresTitleHistory() && !g.titleHistory {
		return false
	}

	state := user.Presence.State
	switch g.filter.Presence {
	case domain.PresenceFilterAll:
		return true
	case domain.PresenceFilterOnline:
		return state == domain.UserStateOnline
	case domain.PresenceFilterOffline:
		return state == domain.UserStateOffline
	case domain.PresenceFilterTitleHistory:
		return user.TitleHistory.HasPlayed
	case domain.PresenceFilterTitleHistoryOffline:
		return user.TitleHistory.HasPlayed && state == domain.UserStateOffline
	case domain.PresenceFilterTitleOnline:
		return user.Presence.IsUserPlayingTitle(g.filter.TitleID)
	case domain.PresenceFilterTitleOnlineOutside:
		return user.TitleHistory.HasPlayed &&
			state == domain.UserStateOnline &&
			!user.Presence.IsUserPlayingTitle(g.filter.TitleID)
	default:
		return false
	}
}

// Update re-points a list group at ids and returns the ids to start and
// stop tracking. The group reloads once every new id is present, reporting
// an update when it had loaded before and a load otherwise.
func (g *Group) Update(ids []string) (added, removed []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	previous := g.trackedSet
	g.setTrackedLocked(ids)
	for _, userID := range g.tracked {
		if _, ok := previous[userID]; !ok {
			added = append(added, userID)
		}
	}
	for userID := range previous {
		if _, ok := g.trackedSet[userID]; !ok {
			removed = append(removed, userID)
		}
	}
	slices.Sort(removed)

	g.updated = g.updated || g.loaded
	g.loaded = false
	clear(g.entries)
	g.members = nil
	return added, removed
}

func (g *Group) setTrackedLocked(ids []string) {
	g.trackedSet = make(map[string]struct{}, len(ids))
	g.tracked = make([]string, 0, len(ids))
	for _, userID := range ids {
		userID = strings.TrimSpace(userID)
		if _, ok := g.trackedSet[userID]; ok || userID == "" {
			continue
		}
		g.trackedSet[userID] = struct{}{}
		g.tracked = append(g.tracked, userID)
	}
}

// Evaluate applies one frame of graph events against snap and returns the
// group events to publish. Nothing happens before the graph is initialized.
//
// A filter group loads on its first evaluation with a full scan and later
// re-checks only the ids named by events. A list group loads, or reports
// an update after Update, once every tracked id is present.
func (g *Group) Evaluate(snap Snapshot, events []domain.Event, initialized bool) []domain.Event {
	if !initialized {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.kind {
	case KindFilter:
		return g.evaluateFilter(snap, events)
	case KindList:
		return g.evaluateList(snap, events)
	default:
		return nil
	}
}

func (g *Group) evaluateFilter(snap Snapshot, events []domain.Event) []domain.Event {
	if !g.loaded {
		for _, user := range snap.Users() {
			if g.isMemberLocked(user) {
				g.entries[user.ID] = user
			}
		}
		g.loaded = true
		g.rebuildLocked()
		return []domain.Event{g.event(domain.EventSocialUserGroupLoaded, nil)}
	}

	var changed []string
	for _, userID := range touchedIDs(events, g.localUserID) {
		_, wasMember := g.entries[userID]
		user, ok := snap.Get(userID)
		isMember := ok && g.isMemberLocked(user)
		switch {
		case isMember:
			g.entries[userID] = user
		case wasMember:
			delete(g.entries, userID)
		}
		if isMember != wasMember {
			changed = append(changed, userID)
		}
	}
	g.rebuildLocked()
	if len(changed) == 0 {
		return nil
	}
	chunks := domain.ChunkIDs(changed, domain.MaxAffectedUsersPerEvent)
	out := make([]domain.Event, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, g.event(domain.EventSocialUserGroupUpdated, chunk))
	}
	return out
}

func (g *Group) evaluateList(snap Snapshot, events []domain.Event) []domain.Event {
	if g.loaded {
		for _, userID := range touchedIDs(events, g.localUserID) {
			if _, ok := g.trackedSet[userID]; !ok {
				continue
			}
			if user, ok := snap.Get(userID); ok {
				g.entries[userID] = user
			} else {
				delete(g.entries, userID)
			}
		}
		g.rebuildLocked()
		return nil
	}

	for _, userID := range g.tracked {
		user, ok := snap.Get(userID)
		if !ok {
			return nil
		}
		g.entries[userID] = user
	}
	g.loaded = true
	g.rebuildLocked()
	eventType := domain.EventSocialUserGroupLoaded
	if g.updated {
		eventType = domain.EventSocialUserGroupUpdated
	}
	return []domain.Event{g.event(eventType, nil)}
}

// Failed returns the event reporting that a list group could not load.
func (g *Group) Failed(err error) domain.Event {
	event := g.event(domain.EventSocialUserGroupLoaded, nil)
	event.Err = err
	return event
}

func (g *Group) rebuildLocked() {
	g.members = g.members[:0]
	for _, user := range g.entries {
		g.members = append(g.members, user)
	}
	slices.SortFunc(g.members, func(a, b *domain.User) int { return strings.Compare(a.ID, b.ID) })
}

func (g *Group) event(eventType domain.EventType, ids []string) domain.Event {
	return domain.Event{
		Type:            eventType,
		LocalUserID:     g.localUserID,
		AffectedUserIDs: ids,
		GroupID:         g.id,
	}
}

// touchedIDs returns the ids named by successful graph events of
// localUserID, in first-seen order.
func touchedIDs(events []domain.Event, localUserID string) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, event := range events {
		if event.LocalUserID != localUserID || event.Err != nil {
			continue
		}
		switch event.Type {
		case domain.EventUsersAddedToSocialGraph,
			domain.EventUsersRemovedFromSocialGraph,
			domain.EventPresenceChanged,
			domain.EventProfilesChanged,
			domain.EventSocialRelationshipsChanged:
		default:
			continue
		}
		for _, userID := range event.AffectedUserIDs {
			if _, ok := seen[userID]; ok {
				continue
			}
			seen[userID] = struct{}{}
			ids = append(ids, userID)
		}
	}
	return ids
}
