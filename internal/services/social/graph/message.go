package graph

import (
	"sync"

	"github.com/louisbranch/socialsync/internal/services/social/domain"
)

// message is one queued change waiting for DoWork. Background goroutines
// only ever construct messages and push them to the inbox.
type message interface {
	isMessage()
}

type pollMode int

const (
	pollNever pollMode = iota
	pollIfNew
	pollAlways
)

// usersAdded asks the graph to track ids on behalf of a caller.
type usersAdded struct {
	ids  []string
	mode pollMode
	// waiter is set on the last chunk of a request and covers every id of
	// the request.
	waiter *waiter
}

// usersRemoved releases one reference on each id.
type usersRemoved struct {
	ids []string
}

// entriesChanged carries fetched entries to diff against the graph.
type entriesChanged struct {
	users        []*domain.User
	presenceOnly bool
}

// devicePresenceChanged is a device presence push.
type devicePresenceChanged struct {
	userID string
	device domain.DeviceType
	online bool
}

// titlePresenceChanged is a title presence push.
type titlePresenceChanged struct {
	userID  string
	titleID uint32
	state   domain.TitleState
}

// relationshipSetChanged is a relationship push for the local user.
type relationshipSetChanged struct {
	ids    []string
	change domain.RelationshipChange
}

// graphLoaded carries a full relationship fetch.
type graphLoaded struct {
	users   []*domain.User
	initial bool
}

// operationFailed reports a failed background operation.
type operationFailed struct {
	eventType domain.EventType
	ids       []string
	err       error
	initial   bool
}

// refreshDue is a full refresh tick; resync also polls presence.
type refreshDue struct {
	resync bool
}

// presencePollDue is a rich presence poll tick.
type presencePollDue struct{}

func (*usersAdded) isMessage()             {}
func (*usersRemoved) isMessage()           {}
func (*entriesChanged) isMessage()         {}
func (*devicePresenceChanged) isMessage()  {}
func (*titlePresenceChanged) isMessage()   {}
func (*relationshipSetChanged) isMessage() {}
func (*graphLoaded) isMessage()            {}
func (*operationFailed) isMessage()        {}
func (*refreshDue) isMessage()             {}
func (*presencePollDue) isMessage()        {}

// waiter completes once every id it names is present in the graph, or
// fails when a fetch for any of them fails.
type waiter struct {
	ids  []string
	once sync.Once
	done func(error)
}

func newWaiter(ids []string, done func(error)) *waiter {
	if done == nil {
		return nil
	}
	return &waiter{ids: ids, done: done}
}

func (w *waiter) complete(err error) {
	if w == nil {
		return
	}
	w.once.Do(func() { w.done(err) })
}
