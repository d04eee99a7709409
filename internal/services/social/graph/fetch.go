package graph

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/socialsync/internal/platform/errors"
	platformotel "github.com/louisbranch/socialsync/internal/platform/otel"
	"github.com/louisbranch/socialsync/internal/platform/telemetry/metrics"
	"github.com/louisbranch/socialsync/internal/services/social/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = platformotel.Tracer("github.com/louisbranch/socialsync/internal/services/social/graph")

// loadGraph fetches every relationship of the local user in the background.
// Only one full load runs at a time.
func (g *Graph) loadGraph(initial bool) {
	if !g.loading.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer g.loading.Store(false)
		users, err := g.fetch(g.ctx, metrics.FetchKindGraph, FetchRequest{
			CallerID: g.localUserID,
			Detail:   g.detail,
			TitleID:  g.titleID,
			All:      true,
		})
		if err != nil {
			if g.ctx.Err() != nil {
				return
			}
			eventType := domain.EventProfilesChanged
			if initial {
				eventType = domain.EventLocalUserAdded
			}
			g.opts.Logf("social graph %s: load graph: %v", g.localUserID, err)
			g.inbox.push(&operationFailed{eventType: eventType, err: err, initial: initial})
			g.scheduleRetry()
			return
		}
		g.inbox.push(&graphLoaded{users: users, initial: initial})
	}()
}

// fetchUsers is the call of the users buffer.
func (g *Graph) fetchUsers(ctx context.Context, ids []string) error {
	users, err := g.fetch(ctx, metrics.FetchKindUsers, FetchRequest{
		CallerID: g.localUserID,
		Detail:   g.detail,
		TitleID:  g.titleID,
		UserIDs:  ids,
	})
	if err != nil {
		if ctx.Err() == nil {
			g.inbox.push(&operationFailed{eventType: domain.EventUsersAddedToSocialGraph, ids: ids, err: err})
		}
		return err
	}
	g.pushEntries(users, false)
	return nil
}

// pollPresence is the call of the presence buffer.
func (g *Graph) pollPresence(ctx context.Context, ids []string) error {
	users, err := g.fetch(ctx, metrics.FetchKindPresence, FetchRequest{
		CallerID:     g.localUserID,
		TitleID:      g.titleID,
		UserIDs:      ids,
		PresenceOnly: true,
	})
	if err != nil {
		if ctx.Err() == nil {
			g.inbox.push(&operationFailed{eventType: domain.EventPresenceChanged, ids: ids, err: err})
		}
		return err
	}
	g.pushEntries(users, true)
	return nil
}

func (g *Graph) pushEntries(users []*domain.User, presenceOnly bool) {
	msgs := make([]message, 0, (len(users)+MaxUsersPerMessage-1)/MaxUsersPerMessage)
	for start := 0; start < len(users); start += MaxUsersPerMessage {
		end := min(start+MaxUsersPerMessage, len(users))
		msgs = append(msgs, &entriesChanged{users: users[start:end:end], presenceOnly: presenceOnly})
	}
	if len(msgs) > 0 {
		g.inbox.push(msgs...)
	}
}

// fetch runs one batch fetch with tracing and metrics. Errors come back as
// FETCH_FAILED unless the fetcher already classified them as remote.
func (g *Graph) fetch(ctx context.Context, kind string, req FetchRequest) ([]*domain.User, error) {
	ctx, span := tracer.Start(ctx, "graph.fetch", trace.WithAttributes(
		attribute.String("socialsync.fetch.kind", kind),
		attribute.String("socialsync.local_user", g.localUserID),
		attribute.Int("socialsync.fetch.users", len(req.UserIDs)),
		attribute.Bool("socialsync.fetch.all", req.All),
	))
	defer span.End()

	g.inflight.Add(1)
	defer g.inflight.Add(-1)

	started := time.Now()
	users, err := g.fetcher.FetchUsers(ctx, req)
	elapsed := time.Since(started)
	if err != nil {
		if ctx.Err() != nil {
			metrics.FetchObserved(kind, metrics.OutcomeCancelled, elapsed)
			return nil, ctx.Err()
		}
		metrics.FetchObserved(kind, metrics.OutcomeError, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if apperrors.CategoryOf(err) != apperrors.CategoryRemoteOperationFailed {
			err = apperrors.Wrap(apperrors.CodeFetchFailed, "fetch "+kind, err)
		}
		return nil, err
	}
	metrics.FetchObserved(kind, metrics.OutcomeSuccess, elapsed)
	span.SetAttributes(attribute.Int("socialsync.fetch.returned", len(users)))

	out := make([]*domain.User, 0, len(users))
	for i := range users {
		user := users[i]
		user.Presence = user.Presence.Clone()
		out = append(out, &user)
	}
	return out, nil
}
