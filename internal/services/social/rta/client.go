// Package rta is the real-time push client. It keeps one websocket open to
// the notification service and fans notifications out to graph listeners.
package rta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	apperrors "github.com/louisbranch/socialsync/internal/platform/errors"
	"github.com/louisbranch/socialsync/internal/platform/telemetry/metrics"
	"github.com/louisbranch/socialsync/internal/platform/timeouts"
	"github.com/louisbranch/socialsync/internal/services/social/domain"
	"github.com/louisbranch/socialsync/internal/services/social/graph"
)

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
	sendBuffer        = 256
)

// TokenSource returns the bearer token used to open the connection.
type TokenSource func(ctx context.Context) (string, error)

// Config configures a Client.
type Config struct {
	URL    string
	Token  TokenSource
	Dialer *websocket.Dialer
	// MinBackoff and MaxBackoff bound the reconnect delay.
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Logf       func(string, ...any)
}

// Client implements graph.NotificationSource over a websocket. Subscribe and
// unsubscribe calls only update the desired set and queue a frame, so they
// never block on the network.
type Client struct {
	url        string
	token      TokenSource
	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration
	logf       func(string, ...any)

	mu        sync.Mutex
	desired   map[subscription]struct{}
	listeners map[string]map[int]graph.Listener
	nextID    int
	send      chan []byte
	drop      context.CancelFunc
}

var _ graph.NotificationSource = (*Client)(nil)

// NewClient builds a push client for cfg.URL. Nothing is dialed until Run.
func NewClient(cfg Config) (*Client, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, fmt.Errorf("push url is required")
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: timeouts.PushHandshake}
	}
	minBackoff := cfg.MinBackoff
	if minBackoff <= 0 {
		minBackoff = defaultMinBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff < minBackoff {
		maxBackoff = max(defaultMaxBackoff, minBackoff)
	}
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Client{
		url:        url,
		token:      cfg.Token,
		dialer:     dialer,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		logf:       logf,
		desired:    make(map[subscription]struct{}),
		listeners:  make(map[string]map[int]graph.Listener),
	}, nil
}

// AddListener registers listener for notifications addressed to callerID.
func (c *Client) AddListener(callerID string, listener graph.Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	if c.listeners[callerID] == nil {
		c.listeners[callerID] = make(map[int]graph.Listener)
	}
	c.listeners[callerID][id] = listener

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.listeners[callerID], id)
			if len(c.listeners[callerID]) == 0 {
				delete(c.listeners, callerID)
			}
		})
	}
}

func (c *Client) SubscribeDevicePresence(_ context.Context, callerID, userID string) error {
	return c.change(opSubscribe, subscription{Caller: callerID, Kind: kindDevice, User: userID})
}

func (c *Client) UnsubscribeDevicePresence(_ context.Context, callerID, userID string) error {
	return c.change(opUnsubscribe, subscription{Caller: callerID, Kind: kindDevice, User: userID})
}

func (c *Client) SubscribeTitlePresence(_ context.Context, callerID, userID string, titleID uint32) error {
	return c.change(opSubscribe, subscription{Caller: callerID, Kind: kindTitle, User: userID, TitleID: titleID})
}

func (c *Client) UnsubscribeTitlePresence(_ context.Context, callerID, userID string, titleID uint32) error {
	return c.change(opUnsubscribe, subscription{Caller: callerID, Kind: kindTitle, User: userID, TitleID: titleID})
}

func (c *Client) SubscribeRelationshipChanges(_ context.Context, callerID string) error {
	return c.change(opSubscribe, subscription{Caller: callerID, Kind: kindRelationship})
}

func (c *Client) UnsubscribeRelationshipChanges(_ context.Context, callerID string) error {
	return c.change(opUnsubscribe, subscription{Caller: callerID, Kind: kindRelationship})
}

// change applies op to the desired set and queues the frame when a
// connection is up. A full send queue drops the connection; the reconnect
// replays the desired set.
func (c *Client) change(op string, sub subscription) error {
	if strings.TrimSpace(sub.Caller) == "" {
		return apperrors.New(apperrors.CodeLocalUserIDRequired, "push subscription caller is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	_, exists := c.desired[sub]
	switch op {
	case opSubscribe:
		if exists {
			return nil
		}
		c.desired[sub] = struct{}{}
	case opUnsubscribe:
		if !exists {
			return nil
		}
		delete(c.desired, sub)
	}
	if c.send == nil {
		return nil
	}
	payload, err := json.Marshal(controlFrame{Op: op, subscription: sub})
	if err != nil {
		return apperrors.Wrap(apperrors.CodePushChannelFailed, "encode push frame", err)
	}
	select {
	case c.send <- payload:
	default:
		c.logf("push send queue full; reconnecting")
		c.drop()
	}
	return nil
}

// Run keeps the connection open until ctx is done, reconnecting with capped
// exponential backoff. Every reconnect after the first successful session
// replays the desired set and tells listeners to resync.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.minBackoff
	sessions := 0
	for {
		established, err := c.session(ctx, sessions > 0)
		if ctx.Err() != nil {
			return nil
		}
		if established {
			sessions++
			backoff = c.minBackoff
		}
		if err != nil {
			c.logf("push channel: %v; retrying in %s", err, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if !established {
			backoff = min(backoff*2, c.maxBackoff)
		}
	}
}

// session dials once and serves the connection until it fails.
func (c *Client) session(ctx context.Context, reconnect bool) (bool, error) {
	header := http.Header{}
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return false, fmt.Errorf("push token: %w", err)
		}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}
	dialCtx, cancelDial := context.WithTimeout(ctx, timeouts.PushHandshake)
	conn, _, err := c.dialer.DialContext(dialCtx, c.url, header)
	cancelDial()
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodePushChannelFailed, "dial push channel", err)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sessionCtx.Done()
		conn.Close()
	}()

	send := make(chan []byte, sendBuffer)
	replay := c.attach(send, cancel)
	defer c.detach(send)

	for _, payload := range replay {
		if err := writeFrame(conn, websocket.TextMessage, payload); err != nil {
			return true, apperrors.Wrap(apperrors.CodePushChannelFailed, "replay subscriptions", err)
		}
	}
	if reconnect {
		metrics.PushReconnected()
		c.resync()
	}

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- c.writeLoop(sessionCtx, conn, send)
		cancel()
	}()

	readErr := c.readLoop(conn)
	cancel()
	if err := <-writeErr; err != nil && ctx.Err() == nil {
		return true, err
	}
	if ctx.Err() != nil {
		return true, nil
	}
	return true, readErr
}

// attach publishes send as the live queue and snapshots the desired set in
// the same critical section, so no change falls between the two.
func (c *Client) attach(send chan []byte, drop context.CancelFunc) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.send = send
	c.drop = drop

	subs := make([]subscription, 0, len(c.desired))
	for sub := range c.desired {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		a, b := subs[i], subs[j]
		if a.Caller != b.Caller {
			return a.Caller < b.Caller
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.User != b.User {
			return a.User < b.User
		}
		return a.TitleID < b.TitleID
	})
	replay := make([][]byte, 0, len(subs))
	for _, sub := range subs {
		payload, err := json.Marshal(controlFrame{Op: opSubscribe, subscription: sub})
		if err != nil {
			continue
		}
		replay = append(replay, payload)
	}
	return replay
}

func (c *Client) detach(send chan []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send == send {
		c.send = nil
		c.drop = nil
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn, send <-chan []byte) error {
	ping := time.NewTicker(timeouts.PushPing)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload := <-send:
			if err := writeFrame(conn, websocket.TextMessage, payload); err != nil {
				return apperrors.Wrap(apperrors.CodePushChannelFailed, "write push frame", err)
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeouts.PushWrite)); err != nil {
				return apperrors.Wrap(apperrors.CodePushChannelFailed, "write ping", err)
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, messageType int, payload []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(timeouts.PushWrite)); err != nil {
		return err
	}
	return conn.WriteMessage(messageType, payload)
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	extend := func(string) error {
		return conn.SetReadDeadline(time.Now().Add(timeouts.PushPongWait))
	}
	conn.SetPongHandler(extend)
	for {
		if err := extend(""); err != nil {
			return err
		}
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return nil
			}
			return apperrors.Wrap(apperrors.CodePushChannelFailed, "read push frame", err)
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var frame pushFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.logf("push frame decode: %v", err)
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame pushFrame) {
	listeners := c.listenersFor(frame.Caller)
	if len(listeners) == 0 {
		return
	}
	switch frame.Kind {
	case kindDevice:
		device := domain.ParseDeviceType(frame.DeviceType)
		for _, l := range listeners {
			l.DevicePresenceChanged(frame.User, device, frame.Online)
		}
	case kindTitle:
		state, ok := parseTitleState(frame.State)
		if !ok {
			c.logf("push title frame with state %q", frame.State)
			return
		}
		for _, l := range listeners {
			l.TitlePresenceChanged(frame.User, frame.TitleID, state)
		}
	case kindRelationship:
		change, ok := parseRelationshipChange(frame.Change)
		if !ok {
			c.logf("push relationship frame with change %q", frame.Change)
			return
		}
		for _, l := range listeners {
			l.RelationshipsChanged(frame.Caller, frame.Users, change)
		}
	default:
		c.logf("push frame with kind %q", frame.Kind)
	}
}

func (c *Client) listenersFor(callerID string) []graph.Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	listeners := make([]graph.Listener, 0, len(c.listeners[callerID]))
	for _, l := range c.listeners[callerID] {
		listeners = append(listeners, l)
	}
	return listeners
}

func (c *Client) resync() {
	c.mu.Lock()
	var listeners []graph.Listener
	for _, byID := range c.listeners {
		for _, l := range byID {
			listeners = append(listeners, l)
		}
	}
	c.mu.Unlock()
	for _, l := range listeners {
		l.Resync()
	}
}
