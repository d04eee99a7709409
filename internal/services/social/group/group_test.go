package group

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/socialsync/internal/services/social/domain"
	"github.com/louisbranch/socialsync/internal/services/social/socialtest"
)

const titleID = 1234

var errFake = errors.New("fetch failed")

type mapSnapshot map[string]*domain.User

func (m mapSnapshot) Get(id string) (*domain.User, bool) {
	user, ok := m[id]
	return user, ok
}

func (m mapSnapshot) Users() []*domain.User {
	users := make([]*domain.User, 0, len(m))
	for _, user := range m {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b *domain.User) int { return strings.Compare(a.ID, b.ID) })
	return users
}

func snapshotOf(users ...domain.User) mapSnapshot {
	snap := make(mapSnapshot, len(users))
	for i := range users {
		snap[users[i].ID] = &users[i]
	}
	return snap
}

func mustFilter(t *testing.T, presence domain.PresenceFilter, relationship domain.RelationshipFilter) *Group {
	t.Helper()
	g, err := NewFilter("local", Filter{Presence: presence, Relationship: relationship, TitleID: titleID}, true)
	if err != nil {
		t.Fatalf("new filter group: %v", err)
	}
	return g
}

func memberIDs(g *Group) []string {
	var ids []string
	for _, user := range g.Members() {
		ids = append(ids, user.ID)
	}
	return ids
}

func TestIsMemberOf(t *testing.T) {
	played := domain.TitleHistory{HasPlayed: true, LastPlayed: time.Unix(1700000000, 0), TitleID: titleID}

	offline := socialtest.User("offline")
	online := socialtest.OnlineUser("online", 0)
	playing := socialtest.OnlineUser("playing", titleID)
	playedOffline := socialtest.User("played-offline")
	playedOffline.TitleHistory = played
	playedOnline := socialtest.OnlineUser("played-online", 999)
	playedOnline.TitleHistory = played
	stranger := socialtest.OnlineUser("stranger", 0)
	stranger.IsFollowedByCaller = false
	favorite := socialtest.User("favorite")
	favorite.IsFavorite = true

	cases := []struct {
		name         string
		presence     domain.PresenceFilter
		relationship domain.RelationshipFilter
		user         domain.User
		want         bool
	}{
		{"all friends", domain.PresenceFilterAll, domain.RelationshipFilterFriends, offline, true},
		{"friends rejects stranger", domain.PresenceFilterAll, domain.RelationshipFilterFriends, stranger, false},
		{"all accepts stranger", domain.PresenceFilterAll, domain.RelationshipFilterAll, stranger, true},
		{"favorite", domain.PresenceFilterAll, domain.RelationshipFilterFavorite, favorite, true},
		{"favorite rejects friend", domain.PresenceFilterAll, domain.RelationshipFilterFavorite, offline, false},
		{"online", domain.PresenceFilterOnline, domain.RelationshipFilterAll, online, true},
		{"online rejects offline", domain.PresenceFilterOnline, domain.RelationshipFilterAll, offline, false},
		{"offline", domain.PresenceFilterOffline, domain.RelationshipFilterAll, offline, true},
		{"title history", domain.PresenceFilterTitleHistory, domain.RelationshipFilterAll, playedOffline, true},
		{"title history rejects unplayed", domain.PresenceFilterTitleHistory, domain.RelationshipFilterAll, online, false},
		{"title history offline", domain.PresenceFilterTitleHistoryOffline, domain.RelationshipFilterAll, playedOffline, true},
		{"title history offline rejects online", domain.PresenceFilterTitleHistoryOffline, domain.RelationshipFilterAll, playedOnline, false},
		{"title online", domain.PresenceFilterTitleOnline, domain.RelationshipFilterAll, playing, true},
		{"title online rejects other title", domain.PresenceFilterTitleOnline, domain.RelationshipFilterAll, playedOnline, false},
		{"title online outside", domain.PresenceFilterTitleOnlineOutside, domain.RelationshipFilterAll, playedOnline, true},
		{"title online outside rejects playing", domain.PresenceFilterTitleOnlineOutside, domain.RelationshipFilterAll, playing, false},
		{"unknown presence filter", domain.PresenceFilterUnknown, domain.RelationshipFilterAll, online, false},
		{"unknown relationship filter", domain.PresenceFilterAll, domain.RelationshipFilterUnknown, online, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := mustFilter(t, tc.presence, tc.relationship)
			user := tc.user
			got := g.IsMemberOf(&user)
			if got != tc.want {
				t.Fatalf("IsMemberOf = %v, want %v", got, tc.want)
			}
			// Re-evaluating an unchanged entry never toggles membership.
			if again := g.IsMemberOf(&user); again != got {
				t.Fatalf("second evaluation = %v, want %v", again, got)
			}
		})
	}
}

func TestTitleHistoryFiltersNeedTitleHistoryDetail(t *testing.T) {
	g, err := NewFilter("local", Filter{Presence: domain.PresenceFilterTitleHistory, Relationship: domain.RelationshipFilterAll}, false)
	if err != nil {
		t.Fatalf("new filter group: %v", err)
	}
	user := socialtest.User("a")
	user.TitleHistory.HasPlayed = true
	if g.IsMemberOf(&user) {
		t.Fatal("expected no members without title history detail")
	}
}

func TestFilterGroupLoadsOnceAfterInitialization(t *testing.T) {
	g := mustFilter(t, domain.PresenceFilterOnline, domain.RelationshipFilterFriends)
	snap := snapshotOf(socialtest.OnlineUser("a", 0), socialtest.User("b"), socialtest.OnlineUser("c", 0))

	if events := g.Evaluate(snap, nil, false); events != nil {
		t.Fatalf("events before initialization = %+v", events)
	}
	if g.Loaded() || len(g.Members()) != 0 {
		t.Fatal("group loaded before initialization")
	}

	events := g.Evaluate(snap, nil, true)
	if len(events) != 1 || events[0].Type != domain.EventSocialUserGroupLoaded || events[0].GroupID != g.ID() {
		t.Fatalf("events = %+v, want one loaded event", events)
	}
	if got := memberIDs(g); !slices.Equal(got, []string{"a", "c"}) {
		t.Fatalf("members = %v, want [a c]", got)
	}
	if got := g.TrackedIDs(); !slices.Equal(got, []string{"a", "c"}) {
		t.Fatalf("tracked = %v, want [a c]", got)
	}
	if events := g.Evaluate(snap, nil, true); len(events) != 0 {
		t.Fatalf("second evaluation events = %+v, want none", events)
	}
}

func TestFilterGroupTracksMembershipChanges(t *testing.T) {
	g := mustFilter(t, domain.PresenceFilterOnline, domain.RelationshipFilterAll)
	snap := snapshotOf(socialtest.OnlineUser("100", 0), socialtest.OnlineUser("200", 0))
	g.Evaluate(snap, nil, true)

	snap["100"] = snap["100"].WithPresence(domain.PresenceRecord{State: domain.UserStateOffline})
	renamed := *snap["200"]
	renamed.Gamertag = "renamed"
	snap["200"] = &renamed
	graphEvents := []domain.Event{
		{Type: domain.EventPresenceChanged, LocalUserID: "local", AffectedUserIDs: []string{"100"}},
		{Type: domain.EventProfilesChanged, LocalUserID: "local", AffectedUserIDs: []string{"200"}},
		{Type: domain.EventPresenceChanged, LocalUserID: "other", AffectedUserIDs: []string{"200"}},
	}
	events := g.Evaluate(snap, graphEvents, true)
	if len(events) != 1 || events[0].Type != domain.EventSocialUserGroupUpdated {
		t.Fatalf("events = %+v, want one updated event", events)
	}
	if !slices.Equal(events[0].AffectedUserIDs, []string{"100"}) {
		t.Fatalf("affected = %v, want [100]", events[0].AffectedUserIDs)
	}
	members := g.Members()
	if len(members) != 1 || members[0].Gamertag != "renamed" {
		t.Fatalf("members = %+v, want refreshed 200", members)
	}
}

func TestFilterGroupDropsRemovedUsers(t *testing.T) {
	g := mustFilter(t, domain.PresenceFilterAll, domain.RelationshipFilterAll)
	snap := snapshotOf(socialtest.User("a"), socialtest.User("b"))
	g.Evaluate(snap, nil, true)

	delete(snap, "a")
	events := g.Evaluate(snap, []domain.Event{
		{Type: domain.EventUsersRemovedFromSocialGraph, LocalUserID: "local", AffectedUserIDs: []string{"a"}},
	}, true)
	if len(events) != 1 || !slices.Equal(events[0].AffectedUserIDs, []string{"a"}) {
		t.Fatalf("events = %+v, want a updated", events)
	}
	if got := memberIDs(g); !slices.Equal(got, []string{"b"}) {
		t.Fatalf("members = %v, want [b]", got)
	}
}

func TestFilterGroupIgnoresErrorEvents(t *testing.T) {
	g := mustFilter(t, domain.PresenceFilterAll, domain.RelationshipFilterAll)
	snap := snapshotOf()
	g.Evaluate(snap, nil, true)

	snap["a"] = &domain.User{ID: "a"}
	events := g.Evaluate(snap, []domain.Event{
		{Type: domain.EventUsersAddedToSocialGraph, LocalUserID: "local", AffectedUserIDs: []string{"a"}, Err: errFake},
	}, true)
	if len(events) != 0 {
		t.Fatalf("events = %+v, want none", events)
	}
}

func TestListGroupLoadsWhenEveryIDPresent(t *testing.T) {
	g, err := NewList("local", []string{"100", "200", "100", " "})
	if err != nil {
		t.Fatalf("new list group: %v", err)
	}
	if got := g.TrackedIDs(); !slices.Equal(got, []string{"100", "200"}) {
		t.Fatalf("tracked = %v, want [100 200]", got)
	}

	snap := snapshotOf(socialtest.User("100"))
	if events := g.Evaluate(snap, nil, true); len(events) != 0 {
		t.Fatalf("events = %+v, want none while 200 missing", events)
	}
	if len(g.Members()) != 0 {
		t.Fatal("expected no members before load")
	}

	snap["200"] = &domain.User{ID: "200"}
	events := g.Evaluate(snap, nil, true)
	if len(events) != 1 || events[0].Type != domain.EventSocialUserGroupLoaded {
		t.Fatalf("events = %+v, want one loaded event", events)
	}
	if got := memberIDs(g); !slices.Equal(got, []string{"100", "200"}) {
		t.Fatalf("members = %v, want [100 200]", got)
	}
	if events := g.Evaluate(snap, nil, true); len(events) != 0 {
		t.Fatalf("events after load = %+v, want none", events)
	}
}

func TestListGroupUpdate(t *testing.T) {
	g, err := NewList("local", []string{"a", "b"})
	if err != nil {
		t.Fatalf("new list group: %v", err)
	}
	snap := snapshotOf(socialtest.User("a"), socialtest.User("b"), socialtest.User("c"))
	g.Evaluate(snap, nil, true)

	added, removed := g.Update([]string{"b", "c"})
	if !slices.Equal(added, []string{"c"}) || !slices.Equal(removed, []string{"a"}) {
		t.Fatalf("added = %v removed = %v", added, removed)
	}
	if g.Loaded() {
		t.Fatal("expected group to reload after update")
	}
	events := g.Evaluate(snap, nil, true)
	if len(events) != 1 || events[0].Type != domain.EventSocialUserGroupUpdated {
		t.Fatalf("events = %+v, want one updated event", events)
	}
	if got := memberIDs(g); !slices.Equal(got, []string{"b", "c"}) {
		t.Fatalf("members = %v, want [b c]", got)
	}
}

func TestListGroupUpdateBeforeLoadReportsLoaded(t *testing.T) {
	g, err := NewList("local", []string{"999"})
	if err != nil {
		t.Fatalf("new list group: %v", err)
	}
	snap := snapshotOf(socialtest.User("100"))
	if events := g.Evaluate(snap, nil, true); len(events) != 0 {
		t.Fatalf("events = %+v, want none while 999 missing", events)
	}

	g.Update([]string{"100"})
	events := g.Evaluate(snap, nil, true)
	if len(events) != 1 || events[0].Type != domain.EventSocialUserGroupLoaded {
		t.Fatalf("events = %+v, want one loaded event", events)
	}

	g.Update([]string{"100", "999"})
	snap["999"] = &domain.User{ID: "999"}
	events = g.Evaluate(snap, nil, true)
	if len(events) != 1 || events[0].Type != domain.EventSocialUserGroupUpdated {
		t.Fatalf("events = %+v, want one updated event", events)
	}
}

func TestIsMemberOfDuringUpdate(t *testing.T) {
	g, err := NewList("local", []string{"a"})
	if err != nil {
		t.Fatalf("new list group: %v", err)
	}
	user := socialtest.User("a")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 200 {
			g.IsMemberOf(&user)
		}
	}()
	for i := range 200 {
		if i%2 == 0 {
			g.Update([]string{"b"})
		} else {
			g.Update([]string{"a"})
		}
	}
	wg.Wait()
	if !g.IsMemberOf(&user) {
		t.Fatal("expected a to be a member after the last update")
	}
}

func TestListGroupRefreshesMemberEntries(t *testing.T) {
	g, err := NewList("local", []string{"a"})
	if err != nil {
		t.Fatalf("new list group: %v", err)
	}
	snap := snapshotOf(socialtest.User("a"))
	g.Evaluate(snap, nil, true)

	snap["a"] = snap["a"].WithPresence(domain.PresenceRecord{State: domain.UserStateOnline})
	g.Evaluate(snap, []domain.Event{
		{Type: domain.EventPresenceChanged, LocalUserID: "local", AffectedUserIDs: []string{"a"}},
	}, true)
	if members := g.Members(); len(members) != 1 || !members[0].IsOnline() {
		t.Fatalf("members = %+v, want a online", members)
	}
}

func TestMembersReturnsCopy(t *testing.T) {
	g := mustFilter(t, domain.PresenceFilterAll, domain.RelationshipFilterAll)
	g.Evaluate(snapshotOf(socialtest.User("a"), socialtest.User("b")), nil, true)

	members := g.Members()
	members[0] = nil
	if g.Members()[0] == nil {
		t.Fatal("Members exposed internal slice")
	}
}

func TestMembersDoNotShareSnapshotEntries(t *testing.T) {
	snap := snapshotOf(socialtest.User("a"))
	g := mustFilter(t, domain.PresenceFilterAll, domain.RelationshipFilterAll)
	g.Evaluate(snap, nil, true)

	member := g.Members()[0]
	member.Gamertag = "changed"
	member.Presence.State = domain.UserStateOnline

	if snap["a"].Gamertag == "changed" || snap["a"].IsOnline() {
		t.Fatalf("snapshot entry modified through Members: %+v", snap["a"])
	}
	if again := g.Members()[0]; again.Gamertag == "changed" {
		t.Fatalf("group entry modified through Members: %+v", again)
	}
}

func TestFailedEvent(t *testing.T) {
	g, err := NewList("local", []string{"a"})
	if err != nil {
		t.Fatalf("new list group: %v", err)
	}
	event := g.Failed(errFake)
	if event.Type != domain.EventSocialUserGroupLoaded || event.Err != errFake || event.GroupID != g.ID() {
		t.Fatalf("event = %+v", event)
	}
}
