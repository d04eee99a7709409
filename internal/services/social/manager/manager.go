// Package manager is the registry of local users and their social groups.
//
// A Manager is constructed explicitly and owned by the host. The host drives
// it from one goroutine: registration calls, group calls and DoWork are
// serialized, and only DoWork publishes events. Group reads (Members,
// TrackedIDs) are safe from any goroutine.
package manager

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	apperrors "github.com/louisbranch/socialsync/internal/platform/errors"
	"github.com/louisbranch/socialsync/internal/platform/id"
	"github.com/louisbranch/socialsync/internal/platform/telemetry/metrics"
	"github.com/louisbranch/socialsync/internal/services/social/domain"
	"github.com/louisbranch/socialsync/internal/services/social/graph"
	"github.com/louisbranch/socialsync/internal/services/social/group"
)

// MaxListGroupUsers caps the ids of one list group.
const MaxListGroupUsers = 100

// Config wires a manager to its collaborators.
type Config struct {
	Fetcher graph.Fetcher
	// Source may be nil when no push channel is available.
	Source graph.NotificationSource
	// TitleID is the current title, used for title presence and title
	// filters.
	TitleID uint32
	Options graph.Options
	Logf    func(string, ...any)
}

type localUserState struct {
	graph  *graph.Graph
	groups []*group.Group
}

// Manager owns one social graph per local user.
type Manager struct {
	fetcher graph.Fetcher
	source  graph.NotificationSource
	titleID uint32
	opts    graph.Options
	logf    func(string, ...any)

	// work serializes host calls so a graph is never closed mid-frame.
	work sync.Mutex

	mu     sync.RWMutex
	users  map[string]*localUserState
	groups map[string]*group.Group

	eventMu sync.Mutex
	queued  []domain.Event
}

// New builds a manager.
func New(cfg Config) (*Manager, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	opts := cfg.Options
	if opts.Logf == nil {
		opts.Logf = logf
	}
	return &Manager{
		fetcher: cfg.Fetcher,
		source:  cfg.Source,
		titleID: cfg.TitleID,
		opts:    opts,
		logf:    logf,
		users:   make(map[string]*localUserState),
		groups:  make(map[string]*group.Group),
	}, nil
}

// AddLocalUser creates and starts the social graph of localUserID. The
// outcome of the initial load arrives later as a LocalUserAdded event.
func (m *Manager) AddLocalUser(localUserID string, detail domain.DetailLevel) error {
	localUserID, err := requireLocalUserID(localUserID)
	if err != nil {
		return err
	}
	m.work.Lock()
	defer m.work.Unlock()

	m.mu.Lock()
	if _, ok := m.users[localUserID]; ok {
		m.mu.Unlock()
		return apperrors.WithMetadata(apperrors.CodeLocalUserAlreadyAdded, "local user already added",
			map[string]string{"local_user": localUserID})
	}
	g, err := graph.New(graph.Config{
		LocalUserID: localUserID,
		Detail:      detail,
		TitleID:     m.titleID,
		Fetcher:     m.fetcher,
		Source:      m.source,
		Options:     m.opts,
	})
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.users[localUserID] = &localUserState{graph: g}
	m.mu.Unlock()

	g.Start()
	return nil
}

// RemoveLocalUser tears down the graph of localUserID and every group it
// owns. Events still queued for the user are discarded.
func (m *Manager) RemoveLocalUser(localUserID string) error {
	localUserID, err := requireLocalUserID(localUserID)
	if err != nil {
		return err
	}
	m.work.Lock()
	defer m.work.Unlock()

	m.mu.Lock()
	user, ok := m.users[localUserID]
	if !ok {
		m.mu.Unlock()
		return apperrors.WithMetadata(apperrors.CodeLocalUserNotFound, "local user not found",
			map[string]string{"local_user": localUserID})
	}
	delete(m.users, localUserID)
	for _, grp := range user.groups {
		delete(m.groups, grp.ID())
	}
	m.mu.Unlock()

	user.graph.Close()

	m.eventMu.Lock()
	m.queued = slices.DeleteFunc(m.queued, func(e domain.Event) bool { return e.LocalUserID == localUserID })
	m.eventMu.Unlock()
	return nil
}

// LocalUsers returns the registered local user ids, sorted.
func (m *Manager) LocalUsers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.users))
	for userID := range m.users {
		ids = append(ids, userID)
	}
	slices.Sort(ids)
	return ids
}

// Initialized reports whether the graph of localUserID finished its first
// load, successful or not.
func (m *Manager) Initialized(localUserID string) (bool, error) {
	localUserID, err := requireLocalUserID(localUserID)
	if err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[localUserID]
	if !ok {
		return false, apperrors.WithMetadata(apperrors.CodeLocalUserNotFound, "local user not found",
			map[string]string{"local_user": localUserID})
	}
	return user.graph.Initialized(), nil
}

// CreateFilterGroup creates a group of the local user's tracked users that
// match the filters. It loads on the first DoWork after the graph is
// initialized.
func (m *Manager) CreateFilterGroup(localUserID string, presence domain.PresenceFilter, relationship domain.RelationshipFilter) (*group.Group, error) {
	localUserID, err := requireLocalUserID(localUserID)
	if err != nil {
		return nil, err
	}
	m.work.Lock()
	defer m.work.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	user, err := m.userLocked(localUserID)
	if err != nil {
		return nil, err
	}
	titleHistory := user.graph.Detail().Has(domain.DetailTitleHistory)
	if presence.RequiresTitleHistory() && !titleHistory {
		m.logf("social manager %s: presence filter %s needs title history detail, group will stay empty",
			localUserID, presence)
	}
	grp, err := group.NewFilter(localUserID, group.Filter{
		Presence:     presence,
		Relationship: relationship,
		TitleID:      m.titleID,
	}, titleHistory)
	if err != nil {
		return nil, err
	}
	user.groups = append(user.groups, grp)
	m.groups[grp.ID()] = grp
	return grp, nil
}

// CreateListGroup creates a group tracking ids on behalf of the local user.
// It loads once every id is present in the graph.
func (m *Manager) CreateListGroup(localUserID string, ids []string) (*group.Group, error) {
	localUserID, err := requireLocalUserID(localUserID)
	if err != nil {
		return nil, err
	}
	if err := validateUserList(ids); err != nil {
		return nil, err
	}
	m.work.Lock()
	defer m.work.Unlock()

	m.mu.Lock()
	user, err := m.userLocked(localUserID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	grp, err := group.NewList(localUserID, ids)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	user.groups = append(user.groups, grp)
	m.groups[grp.ID()] = grp
	m.mu.Unlock()

	user.graph.TrackUsers(grp.TrackedIDs(), m.listLoaded(grp.ID()))
	return grp, nil
}

// DestroyGroup removes a group and releases the users it tracked.
func (m *Manager) DestroyGroup(groupID string) error {
	if _, ok := id.KindOf(groupID); !ok {
		return groupNotFound(groupID)
	}
	m.work.Lock()
	defer m.work.Unlock()

	m.mu.Lock()
	grp, ok := m.groups[groupID]
	if !ok {
		m.mu.Unlock()
		return groupNotFound(groupID)
	}
	delete(m.groups, groupID)
	user := m.users[grp.LocalUserID()]
	if user != nil {
		user.groups = slices.DeleteFunc(user.groups, func(g *group.Group) bool { return g == grp })
	}
	m.mu.Unlock()

	if user != nil && grp.Kind() == group.KindList {
		user.graph.StopTrackingUsers(grp.TrackedIDs())
	}
	return nil
}

// UpdateListGroup re-points a list group at ids.
func (m *Manager) UpdateListGroup(groupID string, ids []string) error {
	kind, ok := id.KindOf(groupID)
	if !ok {
		return groupNotFound(groupID)
	}
	if err := validateUserList(ids); err != nil {
		return err
	}
	m.work.Lock()
	defer m.work.Unlock()

	m.mu.RLock()
	grp, ok := m.groups[groupID]
	var user *localUserState
	if ok {
		user = m.users[grp.LocalUserID()]
	}
	m.mu.RUnlock()
	if !ok || user == nil {
		return groupNotFound(groupID)
	}
	if kind != id.KindListGroup || grp.Kind() != group.KindList {
		return apperrors.WithMetadata(apperrors.CodeGroupKindMismatch, "only list groups can be updated",
			map[string]string{"group": groupID})
	}

	added, removed := grp.Update(ids)
	// Track before releasing so ids kept by both lists never leave the graph.
	user.graph.TrackUsers(added, m.listLoaded(groupID))
	user.graph.StopTrackingUsers(removed)
	return nil
}

// Group returns the group with the given handle.
func (m *Manager) Group(groupID string) (*group.Group, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	grp, ok := m.groups[groupID]
	return grp, ok
}

// Groups returns the groups of a local user in creation order.
func (m *Manager) Groups(localUserID string) []*group.Group {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[localUserID]
	if !ok {
		return nil
	}
	return slices.Clone(user.groups)
}

// SetRichPresencePolling turns the periodic presence poll of a local user's
// graph on or off.
func (m *Manager) SetRichPresencePolling(localUserID string, enabled bool) error {
	localUserID, err := requireLocalUserID(localUserID)
	if err != nil {
		return err
	}
	m.work.Lock()
	defer m.work.Unlock()

	m.mu.RLock()
	user, err := m.userLocked(localUserID)
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	user.graph.SetRichPresencePolling(enabled)
	return nil
}

// DoWork runs one frame: every graph applies its queued changes, every
// group re-evaluates against the new generation, and the frame's events
// are returned. It never waits on fetches.
func (m *Manager) DoWork() []domain.Event {
	started := time.Now()
	m.work.Lock()
	defer m.work.Unlock()

	var events []domain.Event
	for _, userID := range m.LocalUsers() {
		m.mu.RLock()
		user, ok := m.users[userID]
		var groups []*group.Group
		if ok {
			groups = slices.Clone(user.groups)
		}
		m.mu.RUnlock()
		if !ok {
			continue
		}

		graphEvents := user.graph.DoWork()
		events = append(events, graphEvents...)
		if len(groups) == 0 {
			continue
		}
		snap := user.graph.Acquire()
		initialized := user.graph.Initialized()
		for _, grp := range groups {
			events = append(events, grp.Evaluate(snap, graphEvents, initialized)...)
		}
		snap.Release()
	}

	m.eventMu.Lock()
	events = append(events, m.queued...)
	m.queued = nil
	m.eventMu.Unlock()

	for _, event := range events {
		metrics.EventPublished(event.Type.String())
	}
	metrics.DoWorkObserved(time.Since(started))
	return events
}

// Close tears down every local user.
func (m *Manager) Close() {
	for _, userID := range m.LocalUsers() {
		if err := m.RemoveLocalUser(userID); err != nil {
			m.logf("social manager: remove %s: %v", userID, err)
		}
	}
}

// listLoaded reports a failed list group load. It runs on the DoWork
// goroutine, or inline when the graph is already closed.
func (m *Manager) listLoaded(groupID string) func(error) {
	return func(err error) {
		if err == nil {
			return
		}
		grp, ok := m.Group(groupID)
		if !ok {
			return
		}
		m.eventMu.Lock()
		m.queued = append(m.queued, grp.Failed(err))
		m.eventMu.Unlock()
	}
}

func (m *Manager) userLocked(localUserID string) (*localUserState, error) {
	user, ok := m.users[localUserID]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeLocalUserNotAdded, "local user not added",
			map[string]string{"local_user": localUserID})
	}
	return user, nil
}

func requireLocalUserID(localUserID string) (string, error) {
	localUserID = strings.TrimSpace(localUserID)
	if localUserID == "" {
		return "", apperrors.New(apperrors.CodeLocalUserIDRequired, "local user id is required")
	}
	return localUserID, nil
}

func validateUserList(ids []string) error {
	if len(ids) == 0 {
		return apperrors.New(apperrors.CodeUserListEmpty, "user list is empty")
	}
	if len(ids) > MaxListGroupUsers {
		return apperrors.WithMetadata(apperrors.CodeUserListTooLarge, "user list is too large",
			map[string]string{"max": fmt.Sprint(MaxListGroupUsers), "count": fmt.Sprint(len(ids))})
	}
	for _, userID := range ids {
		if strings.TrimSpace(userID) == "" {
			return apperrors.New(apperrors.CodeUserIDInvalid, "user id is blank")
		}
	}
	return nil
}

func groupNotFound(groupID string) error {
	return apperrors.WithMetadata(apperrors.CodeGroupNotFound, "group not found",
		map[string]string{"group": groupID})
}
