// Package socialtest provides fakes for the graph collaborators.
package socialtest

import (
	"context"
	"slices"
	"sync"

	"github.com/louisbranch/socialsync/internal/services/social/domain"
	"github.com/louisbranch/socialsync/internal/services/social/graph"
)

// Fetcher is a scripted graph.Fetcher backed by an in-memory people table.
// Ids without a scripted user are left out of responses.
type Fetcher struct {
	mu       sync.Mutex
	users    map[string]domain.User
	friends  map[string][]string
	usersErr error
	graphErr error
	gate     chan struct{}
	calls    []graph.FetchRequest
}

// NewFetcher returns a fetcher knowing the given users.
func NewFetcher(users ...domain.User) *Fetcher {
	f := &Fetcher{
		users:   make(map[string]domain.User),
		friends: make(map[string][]string),
	}
	f.SetUsers(users...)
	return f
}

// SetUsers adds or replaces users.
func (f *Fetcher) SetUsers(users ...domain.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range users {
		f.users[user.ID] = user
	}
}

// SetFriends sets the ids returned by an all-relationships fetch for
// callerID.
func (f *Fetcher) SetFriends(callerID string, ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.friends[callerID] = slices.Clone(ids)
}

// FailUsers makes explicit-id fetches fail with err until reset with nil.
func (f *Fetcher) FailUsers(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usersErr = err
}

// FailGraph makes all-relationships fetches fail with err until reset with
// nil.
func (f *Fetcher) FailGraph(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.graphErr = err
}

// Block holds every fetch until the returned release func is called.
func (f *Fetcher) Block() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gate == gate {
				f.gate = nil
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns every request received so far.
func (f *Fetcher) Calls() []graph.FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Requested counts explicit-id requests that named id.
func (f *Fetcher) Requested(id string) int {
	n := 0
	for _, call := range f.Calls() {
		if slices.Contains(call.UserIDs, id) {
			n++
		}
	}
	return n
}

// FetchUsers implements graph.Fetcher.
func (f *Fetcher) FetchUsers(ctx context.Context, req graph.FetchRequest) ([]domain.User, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	ids := req.UserIDs
	if req.All {
		if f.graphErr != nil {
			return nil, f.graphErr
		}
		ids = f.friends[req.CallerID]
	} else if f.usersErr != nil {
		return nil, f.usersErr
	}
	out := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		user, ok := f.users[id]
		if !ok {
			continue
		}
		user.Presence = user.Presence.Clone()
		out = append(out, user)
	}
	return out, nil
}

// User returns an offline user followed by the caller.
func User(id string) domain.User {
	return domain.User{
		ID:                 id,
		Gamertag:           "gt-" + id,
		DisplayName:        "User " + id,
		IsFollowedByCaller: true,
		Presence:           domain.PresenceRecord{State: domain.UserStateOffline},
	}
}

// OnlineUser returns User(id) online on an Xbox One, playing titleID when
// it is not zero.
func OnlineUser(id string, titleID uint32) domain.User {
	user := User(id)
	device := domain.DeviceRecord{Type: domain.DeviceXboxOne}
	if titleID != 0 {
		device.Titles = []domain.TitleRecord{{TitleID: titleID, IsActive: true, IsPrimary: true}}
	}
	user.Presence = domain.PresenceRecord{
		State:   domain.UserStateOnline,
		Devices: []domain.DeviceRecord{device},
	}
	return user
}
