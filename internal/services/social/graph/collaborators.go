package graph

import (
	"context"

	"github.com/louisbranch/socialsync/internal/services/social/domain"
)

// FetchRequest describes one batch fetch issued by a graph.
type FetchRequest struct {
	CallerID string
	Detail   domain.DetailLevel
	TitleID  uint32
	// All requests every user the caller has a relationship with; UserIDs
	// is ignored.
	All     bool
	UserIDs []string
	// PresenceOnly asks for identity and presence decorations only.
	PresenceOnly bool
}

// Fetcher is the batch fetch client a graph reads users from. Calls run on
// background goroutines and must honor ctx cancellation.
type Fetcher interface {
	FetchUsers(ctx context.Context, req FetchRequest) ([]domain.User, error)
}

// Listener receives push notifications for one caller. Implementations must
// return quickly; graphs only enqueue.
type Listener interface {
	DevicePresenceChanged(userID string, device domain.DeviceType, online bool)
	TitlePresenceChanged(userID string, titleID uint32, state domain.TitleState)
	RelationshipsChanged(callerID string, userIDs []string, change domain.RelationshipChange)
	// Resync reports that notifications may have been lost, for example
	// after the push channel reconnected.
	Resync()
}

// NotificationSource is the push channel a graph subscribes through.
// Subscribe and unsubscribe calls are made from the DoWork goroutine and must
// not block on the network.
type NotificationSource interface {
	AddListener(callerID string, listener Listener) (remove func())
	SubscribeDevicePresence(ctx context.Context, callerID, userID string) error
	UnsubscribeDevicePresence(ctx context.Context, callerID, userID string) error
	SubscribeTitlePresence(ctx context.Context, callerID, userID string, titleID uint32) error
	UnsubscribeTitlePresence(ctx context.Context, callerID, userID string, titleID uint32) error
	SubscribeRelationshipChanges(ctx context.Context, callerID string) error
	UnsubscribeRelationshipChanges(ctx context.Context, callerID string) error
}

type noopSource struct{}

func (noopSource) AddListener(string, Listener) func() { return func() {} }

func (noopSource) SubscribeDevicePresence(context.Context, string, string) error { return nil }

func (noopSource) UnsubscribeDevicePresence(context.Context, string, string) error { return nil }

func (noopSource) SubscribeTitlePresence(context.Context, string, string, uint32) error { return nil }

func (noopSource) UnsubscribeTitlePresence(context.Context, string, string, uint32) error { return nil }

func (noopSource) SubscribeRelationshipChanges(context.Context, string) error { return nil }

func (noopSource) UnsubscribeRelationshipChanges(context.Context, string) error { return nil }
