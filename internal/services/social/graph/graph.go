// Package graph keeps one local user's social graph in sync with the batch
// fetch service and the push channel.
//
// All mutation happens inside DoWork. Push callbacks, fetch completions and
// timers only enqueue messages, which DoWork applies to the inactive
// generation of a double-buffered Store before publishing it with a single
// swap per frame.
package graph

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/louisbranch/socialsync/internal/platform/errors"
	"github.com/louisbranch/socialsync/internal/platform/telemetry/metrics"
	"github.com/louisbranch/socialsync/internal/services/social/domain"
)

// Config wires a graph to its collaborators.
type Config struct {
	LocalUserID string
	Detail      domain.DetailLevel
	TitleID     uint32
	Fetcher     Fetcher
	// Source may be nil when no push channel is available.
	Source  NotificationSource
	Options Options
	// OnDestroyed runs once at the end of Close.
	OnDestroyed func()
}

// Graph is the social graph of one local user.
type Graph struct {
	localUserID string
	detail      domain.DetailLevel
	titleID     uint32
	fetcher     Fetcher
	source      NotificationSource
	opts        Options
	onDestroyed func()

	inbox       inbox
	store       *Store
	state       atomic.Int32
	inflight    atomic.Int32
	loading     atomic.Bool
	initialized atomic.Bool
	// relationshipsLive is false until SubscribeRelationshipChanges succeeds.
	relationshipsLive atomic.Bool

	// Owned by the DoWork goroutine.
	tracker   *tracker
	waiters   []*waiter
	fetchedAt map[string]time.Time
	// held keeps error events raised before initialization.
	held []domain.Event

	users    *callBuffer
	presence *callBuffer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	started        bool
	closed         bool
	pollEnabled    bool
	pollCancel     context.CancelFunc
	retryTimer     *time.Timer
	removeListener func()
}

// New builds a graph. It does no work until Start.
func New(cfg Config) (*Graph, error) {
	localUserID := strings.TrimSpace(cfg.LocalUserID)
	if localUserID == "" {
		return nil, apperrors.New(apperrors.CodeLocalUserIDRequired, "local user id is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	source := cfg.Source
	if source == nil {
		source = noopSource{}
	}
	opts := cfg.Options.normalized()
	ctx, cancel := context.WithCancel(context.Background())

	g := &Graph{
		localUserID: localUserID,
		detail:      cfg.Detail,
		titleID:     cfg.TitleID,
		fetcher:     cfg.Fetcher,
		source:      source,
		opts:        opts,
		onDestroyed: cfg.OnDestroyed,
		store:       NewStore(),
		tracker:     newTracker(),
		fetchedAt:   make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}
	g.users = newCallBuffer(ctx, opts.CallBufferWindow, opts.RetryInterval, 0, opts.MaxBatch, g.fetchUsers)
	g.presence = newCallBuffer(ctx, opts.CallBufferWindow, opts.RetryInterval, opts.PresenceThrottle, opts.MaxBatch, g.pollPresence)
	return g, nil
}

// LocalUserID returns the local user the graph belongs to.
func (g *Graph) LocalUserID() string { return g.localUserID }

// Detail returns the detail level requested for entries.
func (g *Graph) Detail() domain.DetailLevel { return g.detail }

// TitleID returns the title presence subscriptions are made for.
func (g *Graph) TitleID() uint32 { return g.titleID }

// State returns the current lifecycle state.
func (g *Graph) State() State { return State(g.state.Load()) }

// Initialized reports whether the initial load finished, successfully or
// not.
func (g *Graph) Initialized() bool { return g.initialized.Load() }

// Acquire returns a handle on the published generation. Callers must
// Release it.
func (g *Graph) Acquire() *Snapshot { return g.store.Acquire() }

func (g *Graph) setState(s State) { g.state.Store(int32(s)) }

// Start subscribes to the local user's relationship changes, issues the
// initial full fetch and arms the refresh timer.
func (g *Graph) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started || g.closed {
		return
	}
	g.started = true
	g.setState(StateInitializing)

	g.removeListener = g.source.AddListener(g.localUserID, listener{g: g})
	if err := g.source.SubscribeRelationshipChanges(g.ctx, g.localUserID); err != nil {
		g.opts.Logf("social graph %s: subscribe relationship changes: %v", g.localUserID, err)
		g.inbox.push(&operationFailed{eventType: domain.EventSocialRelationshipsChanged, err: pushError(err)})
	} else {
		g.relationshipsLive.Store(true)
	}
	g.loadGraph(true)
	g.runTicker(g.ctx, g.opts.RefreshInterval, func() message { return &refreshDue{} })
}

// SetRichPresencePolling starts or stops the periodic presence poll of every
// tracked user.
func (g *Graph) SetRichPresencePolling(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || enabled == g.pollEnabled {
		return
	}
	g.pollEnabled = enabled
	if !enabled {
		g.pollCancel()
		g.pollCancel = nil
		return
	}
	ctx, cancel := context.WithCancel(g.ctx)
	g.pollCancel = cancel
	g.runTicker(ctx, g.opts.PresencePollInterval, func() message { return &presencePollDue{} })
}

// TrackUsers asks the graph to keep ids, fetching the ones it does not have
// yet. done, when set, runs once from DoWork after every id is present, or
// with the error of the first failed fetch covering them.
func (g *Graph) TrackUsers(ids []string, done func(error)) {
	ids = slices.Clone(ids)
	w := newWaiter(ids, done)
	chunks := domain.ChunkIDs(ids, MaxUsersPerMessage)
	if len(chunks) == 0 {
		w.complete(nil)
		return
	}
	msgs := make([]message, 0, len(chunks))
	for i, chunk := range chunks {
		added := &usersAdded{ids: chunk, mode: pollIfNew}
		if i == len(chunks)-1 {
			added.waiter = w
		}
		msgs = append(msgs, added)
	}
	if !g.inbox.push(msgs...) {
		w.complete(closedError())
	}
}

// StopTrackingUsers releases one reference on each id taken by TrackUsers.
func (g *Graph) StopTrackingUsers(ids []string) {
	ids = slices.Clone(ids)
	chunks := domain.ChunkIDs(ids, MaxUsersPerMessage)
	msgs := make([]message, 0, len(chunks))
	for _, chunk := range chunks {
		msgs = append(msgs, &usersRemoved{ids: chunk})
	}
	if len(msgs) > 0 {
		g.inbox.push(msgs...)
	}
}

// DoWork applies queued messages, publishes the result with one swap and
// returns the frame's events. It never waits on fetches.
func (g *Graph) DoWork() []domain.Event {
	switch g.State() {
	case StateUninitialized, StateDestroyed:
		return nil
	}
	limit := 0
	if g.initialized.Load() {
		limit = g.opts.MaxMessagesPerTick
	}
	msgs := g.inbox.drain(limit)
	log := newEventLog(g.localUserID, !g.initialized.Load())
	for _, msg := range msgs {
		g.apply(msg, log)
	}
	g.settle(log)
	if log.suppressed {
		g.held = append(g.held, log.held...)
	}
	g.resolveWaiters()
	g.store.Swap()
	g.setState(g.restingState())
	metrics.QueueDepth(g.localUserID, g.inbox.len())
	return log.events
}

func (g *Graph) restingState() State {
	if !g.initialized.Load() {
		return StateInitializing
	}
	if g.inflight.Load() > 0 || g.loading.Load() || g.users.busy() || g.presence.busy() {
		return StateRefreshing
	}
	return StateNormal
}

// Close unsubscribes every tracked user, stops timers and drops queued
// work. Pending TrackUsers callbacks complete with a GRAPH_CLOSED error.
// Close must not run concurrently with DoWork.
func (g *Graph) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	if g.pollCancel != nil {
		g.pollCancel()
		g.pollCancel = nil
	}
	if g.retryTimer != nil {
		g.retryTimer.Stop()
	}
	started := g.started
	removeListener := g.removeListener
	g.mu.Unlock()

	g.cancel()
	g.users.close()
	g.presence.close()
	g.wg.Wait()
	if removeListener != nil {
		removeListener()
	}

	ctx := context.Background()
	for _, id := range g.tracker.ids() {
		g.unsubscribe(ctx, id)
	}
	if started {
		if err := g.source.UnsubscribeRelationshipChanges(ctx, g.localUserID); err != nil {
			g.opts.Logf("social graph %s: unsubscribe relationship changes: %v", g.localUserID, err)
		}
	}

	err := closedError()
	for _, msg := range g.inbox.close() {
		if added, ok := msg.(*usersAdded); ok {
			added.waiter.complete(err)
		}
	}
	for _, w := range g.waiters {
		w.complete(err)
	}
	g.waiters = nil
	g.setState(StateDestroyed)
	metrics.ForgetLocalUser(g.localUserID)
	if g.onDestroyed != nil {
		g.onDestroyed()
	}
}

func (g *Graph) runTicker(ctx context.Context, interval time.Duration, next func() message) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.inbox.push(next())
			}
		}
	}()
}

func (g *Graph) scheduleRetry() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	if g.retryTimer != nil {
		g.retryTimer.Stop()
	}
	g.retryTimer = time.AfterFunc(g.opts.RetryInterval, func() {
		g.inbox.push(&refreshDue{})
	})
}

func closedError() error {
	return apperrors.New(apperrors.CodeGraphClosed, "social graph closed")
}

func pushError(err error) error {
	if apperrors.CategoryOf(err) == apperrors.CategoryRemoteOperationFailed {
		return err
	}
	return apperrors.Wrap(apperrors.CodePushChannelFailed, "push channel", err)
}

// listener turns push callbacks into inbox messages.
type listener struct {
	g *Graph
}

func (l listener) DevicePresenceChanged(userID string, device domain.DeviceType, online bool) {
	l.g.inbox.push(&devicePresenceChanged{userID: userID, device: device, online: online})
}

func (l listener) TitlePresenceChanged(userID string, titleID uint32, state domain.TitleState) {
	l.g.inbox.push(&titlePresenceChanged{userID: userID, titleID: titleID, state: state})
}

func (l listener) RelationshipsChanged(callerID string, userIDs []string, change domain.RelationshipChange) {
	if callerID != l.g.localUserID {
		return
	}
	chunks := domain.ChunkIDs(slices.Clone(userIDs), MaxUsersPerMessage)
	msgs := make([]message, 0, len(chunks))
	for _, chunk := range chunks {
		msgs = append(msgs, &relationshipSetChanged{ids: chunk, change: change})
	}
	if len(msgs) > 0 {
		l.g.inbox.push(msgs...)
	}
}

func (l listener) Resync() {
	l.g.opts.Logf("social graph %s: push channel resync, refreshing", l.g.localUserID)
	l.g.inbox.push(&refreshDue{resync: true})
}
