package graph

import (
	"context"

	"github.com/louisbranch/socialsync/internal/services/social/domain"
)

func (g *Graph) apply(msg message, log *eventLog) {
	switch m := msg.(type) {
	case *usersAdded:
		g.setState(StateEventProcessing)
		for _, id := range m.ids {
			g.tracker.retain(id, m.mode)
		}
		if m.waiter != nil {
			g.waiters = append(g.waiters, m.waiter)
		}
	case *usersRemoved:
		g.setState(StateEventProcessing)
		for _, id := range m.ids {
			g.tracker.release(id)
		}
	case *entriesChanged:
		g.setState(StateDiffing)
		for _, user := range m.users {
			if m.presenceOnly {
				g.applyPresence(user, log)
				continue
			}
			g.applyEntry(user, log)
		}
	case *devicePresenceChanged:
		g.setState(StateEventProcessing)
		g.updatePresence(m.userID, log, func(p domain.PresenceRecord) domain.PresenceRecord {
			return p.WithDevice(m.device, m.online)
		})
	case *titlePresenceChanged:
		g.setState(StateEventProcessing)
		at := g.opts.Now()
		g.updatePresence(m.userID, log, func(p domain.PresenceRecord) domain.PresenceRecord {
			return p.WithTitle(m.titleID, m.state, at)
		})
	case *relationshipSetChanged:
		g.setState(StateEventProcessing)
		g.applyRelationshipChange(m)
	case *graphLoaded:
		g.setState(StateDiffing)
		g.applyGraph(m, log)
	case *operationFailed:
		g.setState(StateEventProcessing)
		g.applyFailure(m, log)
	case *refreshDue:
		g.refresh(m.resync, log)
	case *presencePollDue:
		g.presence.add(g.tracker.ids()...)
	}
}

// applyEntry inserts or diffs one fetched entry. Entries for users that are
// no longer tracked are dropped.
func (g *Graph) applyEntry(user *domain.User, log *eventLog) {
	if !g.tracker.isTracked(user.ID) {
		return
	}
	g.fetchedAt[user.ID] = g.opts.Now()
	previous, ok := g.store.Get(user.ID)
	if !ok {
		g.store.Put(user)
		log.add(domain.EventUsersAddedToSocialGraph, user.ID)
		return
	}
	changes := domain.Compare(previous, user)
	if changes == 0 {
		return
	}
	g.store.Put(user)
	if changes.Has(domain.ChangeRelationship) {
		log.add(domain.EventSocialRelationshipsChanged, user.ID)
	}
	if changes.Has(domain.ChangePresence) {
		log.add(domain.EventPresenceChanged, user.ID)
	}
	if changes.Has(domain.ChangeProfile) {
		log.add(domain.EventProfilesChanged, user.ID)
	}
}

func (g *Graph) applyPresence(user *domain.User, log *eventLog) {
	if !g.tracker.isTracked(user.ID) {
		return
	}
	previous, ok := g.store.Get(user.ID)
	if !ok || previous.Presence.Equal(user.Presence) {
		return
	}
	g.store.Put(previous.WithPresence(user.Presence))
	log.add(domain.EventPresenceChanged, user.ID)
}

// updatePresence applies a push delta to a tracked entry and schedules a
// presence poll to pick up the rich presence the push does not carry.
func (g *Graph) updatePresence(id string, log *eventLog, update func(domain.PresenceRecord) domain.PresenceRecord) {
	if !g.tracker.isTracked(id) {
		return
	}
	previous, ok := g.store.Get(id)
	if !ok {
		return
	}
	g.store.Put(previous.WithPresence(update(previous.Presence)))
	log.add(domain.EventPresenceChanged, id)
	g.presence.add(id)
}

func (g *Graph) applyRelationshipChange(m *relationshipSetChanged) {
	for _, id := range m.ids {
		switch m.change {
		case domain.RelationshipAdded:
			g.tracker.setFollowed(id, true, pollAlways)
		case domain.RelationshipChanged:
			if g.tracker.isTracked(id) {
				g.tracker.touch(id, pollAlways)
			}
		case domain.RelationshipRemoved:
			g.tracker.setFollowed(id, false, pollAlways)
		}
	}
}

// applyGraph reconciles the followed set with a full relationship fetch and
// diffs every returned entry. The first successful load seeds the graph
// without per-user events and announces the local user.
func (g *Graph) applyGraph(m *graphLoaded, log *eventLog) {
	returned := make(map[string]struct{}, len(m.users))
	for _, user := range m.users {
		returned[user.ID] = struct{}{}
		g.tracker.setFollowed(user.ID, true, pollNever)
	}
	for _, id := range g.tracker.followedIDs() {
		if _, ok := returned[id]; !ok {
			g.tracker.setFollowed(id, false, pollNever)
		}
	}
	for _, user := range m.users {
		g.applyEntry(user, log)
	}
	if m.initial && !g.initialized.Load() {
		g.announce(log, nil)
	}
}

// announce marks the graph initialized and publishes the local user along
// with the errors held while it was loading.
func (g *Graph) announce(log *eventLog, err error) {
	g.initialized.Store(true)
	log.announce(g.held, err)
	g.held = nil
}

func (g *Graph) applyFailure(m *operationFailed, log *eventLog) {
	if m.initial && !g.initialized.Load() {
		g.announce(log, m.err)
		return
	}
	ids := m.ids
	if len(ids) > 0 {
		ids = make([]string, 0, len(m.ids))
		for _, id := range m.ids {
			if g.tracker.isTracked(id) {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return
		}
	}
	log.emit(m.eventType, ids, m.err)
	g.failWaiters(ids, m.err)
}

// refresh reloads the followed set and refetches tracked users that are not
// followed and were last fetched more than half a refresh interval ago. A
// relationship subscription that failed earlier is retried first.
func (g *Graph) refresh(resync bool, log *eventLog) {
	if !g.relationshipsLive.Load() {
		g.subscribeRelationships(log)
	}
	g.loadGraph(false)
	now := g.opts.Now()
	var stale []string
	for _, id := range g.tracker.ids() {
		if g.tracker.isFollowed(id) {
			continue
		}
		if now.Sub(g.fetchedAt[id]) >= g.opts.RefreshInterval/2 {
			stale = append(stale, id)
		}
	}
	g.users.add(stale...)
	if resync {
		g.presence.add(g.tracker.ids()...)
	}
}

// settle turns the frame's tracking changes into subscriptions, removals and
// fetches.
func (g *Graph) settle(log *eventLog) {
	s := g.tracker.settle()
	for _, id := range s.added {
		g.subscribe(id, log)
	}
	for _, id := range s.removed {
		g.unsubscribe(context.Background(), id)
		g.users.remove(id)
		g.presence.remove(id)
		delete(g.fetchedAt, id)
		published := g.store.Published(id)
		g.store.Remove(id)
		if published {
			log.add(domain.EventUsersRemovedFromSocialGraph, id)
			continue
		}
		log.drop(id)
	}
	if len(s.fetch) > 0 {
		g.users.add(s.fetch...)
	}
}

func (g *Graph) subscribe(id string, log *eventLog) {
	if err := g.source.SubscribeDevicePresence(g.ctx, g.localUserID, id); err != nil {
		log.emit(domain.EventPresenceChanged, []string{id}, pushError(err))
	}
	if err := g.source.SubscribeTitlePresence(g.ctx, g.localUserID, id, g.titleID); err != nil {
		log.emit(domain.EventPresenceChanged, []string{id}, pushError(err))
	}
}

// subscribeRelationships subscribes to the local user's relationship
// changes. A failure is published and retried on the next refresh.
func (g *Graph) subscribeRelationships(log *eventLog) {
	if err := g.source.SubscribeRelationshipChanges(g.ctx, g.localUserID); err != nil {
		g.opts.Logf("social graph %s: subscribe relationship changes: %v", g.localUserID, err)
		log.emit(domain.EventSocialRelationshipsChanged, nil, pushError(err))
		g.scheduleRetry()
		return
	}
	g.relationshipsLive.Store(true)
}

func (g *Graph) unsubscribe(ctx context.Context, id string) {
	if err := g.source.UnsubscribeDevicePresence(ctx, g.localUserID, id); err != nil {
		g.opts.Logf("social graph %s: unsubscribe device presence %s: %v", g.localUserID, id, err)
	}
	if err := g.source.UnsubscribeTitlePresence(ctx, g.localUserID, id, g.titleID); err != nil {
		g.opts.Logf("social graph %s: unsubscribe title presence %s: %v", g.localUserID, id, err)
	}
}

func (g *Graph) resolveWaiters() {
	kept := g.waiters[:0]
	for _, w := range g.waiters {
		if g.waiterReady(w) {
			w.complete(nil)
			continue
		}
		kept = append(kept, w)
	}
	clear(g.waiters[len(kept):])
	g.waiters = kept
}

func (g *Graph) waiterReady(w *waiter) bool {
	for _, id := range w.ids {
		if !g.tracker.isTracked(id) {
			continue
		}
		if _, ok := g.store.Get(id); !ok {
			return false
		}
	}
	return true
}

func (g *Graph) failWaiters(ids []string, err error) {
	if len(ids) == 0 {
		return
	}
	failed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		failed[id] = struct{}{}
	}
	kept := g.waiters[:0]
	for _, w := range g.waiters {
		if waiterCovers(w, failed) {
			w.complete(err)
			continue
		}
		kept = append(kept, w)
	}
	clear(g.waiters[len(kept):])
	g.waiters = kept
}

func waiterCovers(w *waiter, ids map[string]struct{}) bool {
	for _, id := range w.ids {
		if _, ok := ids[id]; ok {
			return true
		}
	}
	return false
}
