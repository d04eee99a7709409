package socialtest

import (
	"context"
	"slices"
	"sync"

	"github.com/louisbranch/socialsync/internal/services/social/domain"
	"github.com/louisbranch/socialsync/internal/services/social/graph"
)

type subscriptionKey struct {
	callerID string
	userID   string
}

// Source is a graph.NotificationSource that counts live subscriptions and
// lets tests deliver pushes.
type Source struct {
	mu            sync.Mutex
	nextListener  int
	listeners     map[string]map[int]graph.Listener
	devices       map[subscriptionKey]int
	titles        map[subscriptionKey]int
	relationships map[string]int
	err           error
}

// NewSource returns an empty source.
func NewSource() *Source {
	return &Source{
		listeners:     make(map[string]map[int]graph.Listener),
		devices:       make(map[subscriptionKey]int),
		titles:        make(map[subscriptionKey]int),
		relationships: make(map[string]int),
	}
}

// Fail makes subscribe calls fail with err until reset with nil.
func (s *Source) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Source) AddListener(callerID string, l graph.Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextListener++
	key := s.nextListener
	if s.listeners[callerID] == nil {
		s.listeners[callerID] = make(map[int]graph.Listener)
	}
	s.listeners[callerID][key] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners[callerID], key)
	}
}

func (s *Source) SubscribeDevicePresence(_ context.Context, callerID, userID string) error {
	return s.adjust(s.devices, callerID, userID, 1)
}

func (s *Source) UnsubscribeDevicePresence(_ context.Context, callerID, userID string) error {
	return s.adjust(s.devices, callerID, userID, -1)
}

func (s *Source) SubscribeTitlePresence(_ context.Context, callerID, userID string, _ uint32) error {
	return s.adjust(s.titles, callerID, userID, 1)
}

func (s *Source) UnsubscribeTitlePresence(_ context.Context, callerID, userID string, _ uint32) error {
	return s.adjust(s.titles, callerID, userID, -1)
}

func (s *Source) SubscribeRelationshipChanges(_ context.Context, callerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.relationships[callerID]++
	return nil
}

func (s *Source) UnsubscribeRelationshipChanges(_ context.Context, callerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relationships[callerID]--
	return nil
}

func (s *Source) adjust(counts map[subscriptionKey]int, callerID, userID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if delta > 0 && s.err != nil {
		return s.err
	}
	key := subscriptionKey{callerID: callerID, userID: userID}
	counts[key] += delta
	if counts[key] == 0 {
		delete(counts, key)
	}
	return nil
}

// DeviceSubscriptions returns the live device subscriptions of callerID
// for userID.
func (s *Source) DeviceSubscriptions(callerID, userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices[subscriptionKey{callerID: callerID, userID: userID}]
}

// TitleSubscriptions returns the live title subscriptions of callerID for
// userID.
func (s *Source) TitleSubscriptions(callerID, userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.titles[subscriptionKey{callerID: callerID, userID: userID}]
}

// RelationshipSubscriptions returns the live relationship subscriptions of
// callerID.
func (s *Source) RelationshipSubscriptions(callerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relationships[callerID]
}

// Listeners returns the number of listeners registered for callerID.
func (s *Source) Listeners(callerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners[callerID])
}

// PushDevice delivers a device presence change to callerID's listeners.
func (s *Source) PushDevice(callerID, userID string, device domain.DeviceType, online bool) {
	for _, l := range s.snapshot(callerID) {
		l.DevicePresenceChanged(userID, device, online)
	}
}

// PushTitle delivers a title presence change to callerID's listeners.
func (s *Source) PushTitle(callerID, userID string, titleID uint32, state domain.TitleState) {
	for _, l := range s.snapshot(callerID) {
		l.TitlePresenceChanged(userID, titleID, state)
	}
}

// PushRelationships delivers a relationship change to callerID's listeners.
func (s *Source) PushRelationships(callerID string, userIDs []string, change domain.RelationshipChange) {
	for _, l := range s.snapshot(callerID) {
		l.RelationshipsChanged(callerID, slices.Clone(userIDs), change)
	}
}

// Resync tells callerID's listeners that pushes may have been lost.
func (s *Source) Resync(callerID string) {
	for _, l := range s.snapshot(callerID) {
		l.Resync()
	}
}

func (s *Source) snapshot(callerID string) []graph.Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]graph.Listener, 0, len(s.listeners[callerID]))
	for _, l := range s.listeners[callerID] {
		out = append(out, l)
	}
	return out
}
