package graph

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/socialsync/internal/services/social/domain"
)

type fakeFetcher struct {
	mu      sync.Mutex
	users   map[string]domain.User
	friends []string
	err     error
	allErr  error
	calls   []FetchRequest
}

func newFakeFetcher(users ...domain.User) *fakeFetcher {
	f := &fakeFetcher{users: make(map[string]domain.User)}
	for _, user := range users {
		f.users[user.ID] = user
	}
	return f
}

func (f *fakeFetcher) FetchUsers(ctx context.Context, req FetchRequest) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := req.UserIDs
	if req.All {
		if f.allErr != nil {
			return nil, f.allErr
		}
		ids = f.friends
	} else if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		if user, ok := f.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

func (f *fakeFetcher) setUser(user domain.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeFetcher) requested(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		for _, requested := range call.UserIDs {
			if requested == id {
				n++
			}
		}
	}
	return n
}

type fakeSource struct {
	mu        sync.Mutex
	listeners map[string]Listener
	devices   map[string]int
	titles    map[string]int
	relations int
	subErr    error
	relErr    error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		listeners: make(map[string]Listener),
		devices:   make(map[string]int),
		titles:    make(map[string]int),
	}
}

func (s *fakeSource) AddListener(callerID string, l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[callerID] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, callerID)
	}
}

func (s *fakeSource) listener(callerID string) Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listeners[callerID]
}

func (s *fakeSource) SubscribeDevicePresence(_ context.Context, _, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subErr != nil {
		return s.subErr
	}
	s.devices[userID]++
	return nil
}

func (s *fakeSource) UnsubscribeDevicePresence(_ context.Context, _, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[userID]--
	return nil
}

func (s *fakeSource) SubscribeTitlePresence(_ context.Context, _, userID string, _ uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subErr != nil {
		return s.subErr
	}
	s.titles[userID]++
	return nil
}

func (s *fakeSource) UnsubscribeTitlePresence(_ context.Context, _, userID string, _ uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles[userID]--
	return nil
}

func (s *fakeSource) SubscribeRelationshipChanges(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.relErr != nil {
		return s.relErr
	}
	s.relations++
	return nil
}

func (s *fakeSource) setRelationshipErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relErr = err
}

func (s *fakeSource) relationshipSubscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relations
}

func (s *fakeSource) UnsubscribeRelationshipChanges(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relations--
	return nil
}

func (s *fakeSource) subscriptions(userID string) (devices, titles int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices[userID], s.titles[userID]
}

var errUpstream = errors.New("upstream unavailable")

func testUser(id string, followed bool) domain.User {
	return domain.User{
		ID:                 id,
		Gamertag:           "gt-" + id,
		DisplayName:        "User " + id,
		IsFollowedByCaller: followed,
		Presence:           domain.PresenceRecord{State: domain.UserStateOffline},
	}
}

func testOptions() Options {
	return Options{
		CallBufferWindow: -1,
		PresenceThrottle: -1,
		RetryInterval:    time.Hour,
		RefreshInterval:  time.Hour,
	}
}

func newTestGraph(t *testing.T, fetcher Fetcher, source NotificationSource) *Graph {
	t.Helper()
	g, err := New(Config{
		LocalUserID: "local",
		TitleID:     1234,
		Fetcher:     fetcher,
		Source:      source,
		Options:     testOptions(),
	})
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	t.Cleanup(g.Close)
	return g
}

// pump runs frames until done accepts the events collected so far.
func pump(t *testing.T, g *Graph, done func([]domain.Event) bool) []domain.Event {
	t.Helper()
	var events []domain.Event
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events = append(events, g.DoWork()...)
		if done(events) {
			return events
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for frames, events so far: %+v", events)
	return nil
}

func hasEvent(eventType domain.EventType) func([]domain.Event) bool {
	return func(events []domain.Event) bool {
		_, ok := findEvent(events, eventType)
		return ok
	}
}

func findEvent(events []domain.Event, eventType domain.EventType) (domain.Event, bool) {
	for _, event := range events {
		if event.Type == eventType {
			return event, true
		}
	}
	return domain.Event{}, false
}

// startGraph starts g and runs frames until the initial load is announced.
func startGraph(t *testing.T, g *Graph) []domain.Event {
	t.Helper()
	g.Start()
	return pump(t, g, hasEvent(domain.EventLocalUserAdded))
}
