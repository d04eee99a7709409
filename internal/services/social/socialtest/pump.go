package socialtest

import (
	"testing"
	"time"

	"github.com/louisbranch/socialsync/internal/services/social/domain"
)

// Pump calls doWork until done accepts the events collected so far, failing
// the test after two seconds.
func Pump(t testing.TB, doWork func() []domain.Event, done func([]domain.Event) bool) []domain.Event {
	t.Helper()
	var events []domain.Event
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events = append(events, doWork()...)
		if done(events) {
			return events
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out pumping frames, events so far: %+v", events)
	return nil
}

// HasEvent matches a batch containing an event of eventType for
// localUserID.
func HasEvent(eventType domain.EventType, localUserID string) func([]domain.Event) bool {
	return func(events []domain.Event) bool {
		_, ok := Find(events, eventType, localUserID)
		return ok
	}
}

// Find returns the first event of eventType for localUserID.
func Find(events []domain.Event, eventType domain.EventType, localUserID string) (domain.Event, bool) {
	for _, event := range events {
		if event.Type == eventType && event.LocalUserID == localUserID {
			return event, true
		}
	}
	return domain.Event{}, false
}

// Count returns the number of events of eventType for localUserID.
func Count(events []domain.Event, eventType domain.EventType, localUserID string) int {
	n := 0
	for _, event := range events {
		if event.Type == eventType && event.LocalUserID == localUserID {
			n++
		}
	}
	return n
}
