package rta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/louisbranch/socialsync/internal/services/social/domain"
)

const waitFor = 2 * time.Second

type serverConn struct {
	ws     *websocket.Conn
	frames chan controlFrame
}

func (s *serverConn) push(t *testing.T, frame pushFrame) {
	t.Helper()
	if err := s.ws.WriteJSON(frame); err != nil {
		t.Fatalf("push frame: %v", err)
	}
}

func (s *serverConn) next(t *testing.T) controlFrame {
	t.Helper()
	select {
	case frame := <-s.frames:
		return frame
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for control frame")
		return controlFrame{}
	}
}

type pushServer struct {
	url   string
	conns chan *serverConn
	auth  chan string
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	ps := &pushServer{conns: make(chan *serverConn, 4), auth: make(chan string, 4)}
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.auth <- r.Header.Get("Authorization")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := &serverConn{ws: ws, frames: make(chan controlFrame, 64)}
		ps.conns <- conn
		for {
			var frame controlFrame
			if err := ws.ReadJSON(&frame); err != nil {
				return
			}
			conn.frames <- frame
		}
	}))
	t.Cleanup(server.Close)
	ps.url = "ws" + strings.TrimPrefix(server.URL, "http")
	return ps
}

func (ps *pushServer) accept(t *testing.T) *serverConn {
	t.Helper()
	select {
	case conn := <-ps.conns:
		return conn
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for connection")
		return nil
	}
}

type recordingListener struct {
	events chan string
}

func newRecordingListener() *recordingListener {
	return &recordingListener{events: make(chan string, 32)}
}

func (l *recordingListener) DevicePresenceChanged(userID string, device domain.DeviceType, online bool) {
	l.events <- fmt.Sprintf("device %s %s %t", userID, device, online)
}

func (l *recordingListener) TitlePresenceChanged(userID string, titleID uint32, state domain.TitleState) {
	l.events <- fmt.Sprintf("title %s %d %s", userID, titleID, state)
}

func (l *recordingListener) RelationshipsChanged(callerID string, userIDs []string, change domain.RelationshipChange) {
	l.events <- fmt.Sprintf("relationship %s %s %s", callerID, strings.Join(userIDs, ","), change)
}

func (l *recordingListener) Resync() {
	l.events <- "resync"
}

func (l *recordingListener) next(t *testing.T) string {
	t.Helper()
	select {
	case event := <-l.events:
		return event
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for listener event")
		return ""
	}
}

func startClient(t *testing.T, ps *pushServer) *Client {
	t.Helper()
	client, err := NewClient(Config{
		URL:        ps.url,
		Token:      func(context.Context) (string, error) { return "secret", nil },
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("run: %v", err)
			}
		case <-time.After(waitFor):
			t.Error("run did not stop")
		}
	})
	return client
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestReplaysDesiredSetOnConnect(t *testing.T) {
	ps := newPushServer(t)
	client, err := NewClient(Config{URL: ps.url, Token: func(context.Context) (string, error) { return "secret", nil }})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()
	if err := client.SubscribeDevicePresence(ctx, "100", "200"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := client.SubscribeRelationshipChanges(ctx, "100"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go client.Run(runCtx)

	if auth := <-ps.auth; auth != "Bearer secret" {
		t.Fatalf("authorization = %q", auth)
	}
	conn := ps.accept(t)
	first, second := conn.next(t), conn.next(t)
	if first.Op != opSubscribe || first.Kind != kindDevice || first.User != "200" {
		t.Fatalf("first frame = %+v", first)
	}
	if second.Op != opSubscribe || second.Kind != kindRelationship || second.Caller != "100" {
		t.Fatalf("second frame = %+v", second)
	}
}

func TestSendsChangesWhileConnected(t *testing.T) {
	ps := newPushServer(t)
	client := startClient(t, ps)
	conn := ps.accept(t)
	ctx := context.Background()

	// Wait until the session is attached before changing subscriptions.
	deadline := time.Now().Add(waitFor)
	for {
		client.mu.Lock()
		attached := client.send != nil
		client.mu.Unlock()
		if attached {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := client.SubscribeTitlePresence(ctx, "100", "200", 42); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := client.SubscribeTitlePresence(ctx, "100", "200", 42); err != nil {
		t.Fatalf("duplicate subscribe: %v", err)
	}
	if err := client.UnsubscribeTitlePresence(ctx, "100", "200", 42); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	got := conn.next(t)
	if got.Op != opSubscribe || got.Kind != kindTitle || got.TitleID != 42 {
		t.Fatalf("frame = %+v, want title subscribe", got)
	}
	got = conn.next(t)
	if got.Op != opUnsubscribe || got.Kind != kindTitle {
		t.Fatalf("frame = %+v, want title unsubscribe", got)
	}
}

func TestSubscribeRequiresCaller(t *testing.T) {
	client, err := NewClient(Config{URL: "ws://example.invalid"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.SubscribeDevicePresence(context.Background(), "", "200"); err == nil {
		t.Fatal("expected error")
	}
}

func TestDispatchesPushFrames(t *testing.T) {
	ps := newPushServer(t)
	client := startClient(t, ps)
	listener := newRecordingListener()
	other := newRecordingListener()
	client.AddListener("100", listener)
	client.AddListener("999", other)
	conn := ps.accept(t)

	conn.push(t, pushFrame{Kind: kindDevice, Caller: "100", User: "200", DeviceType: "XboxOne", Online: true})
	conn.push(t, pushFrame{Kind: kindTitle, Caller: "100", User: "200", TitleID: 7, State: "ended"})
	conn.push(t, pushFrame{Kind: kindTitle, Caller: "100", User: "200", TitleID: 7, State: "paused"})
	conn.push(t, pushFrame{Kind: kindRelationship, Caller: "100", Users: []string{"300", "301"}, Change: "removed"})

	want := []string{
		"device 200 XboxOne true",
		"title 200 7 ended",
		"relationship 100 300,301 removed",
	}
	for _, w := range want {
		if got := listener.next(t); got != w {
			t.Fatalf("event = %q, want %q", got, w)
		}
	}
	select {
	case event := <-other.events:
		t.Fatalf("other caller received %q", event)
	default:
	}
}

func TestRemovedListenerStopsReceiving(t *testing.T) {
	ps := newPushServer(t)
	client := startClient(t, ps)
	removed := newRecordingListener()
	kept := newRecordingListener()
	remove := client.AddListener("100", removed)
	client.AddListener("100", kept)
	remove()
	remove()
	conn := ps.accept(t)

	conn.push(t, pushFrame{Kind: kindDevice, Caller: "100", User: "200", DeviceType: "Win32"})
	if got := kept.next(t); got != "device 200 Win32 false" {
		t.Fatalf("event = %q", got)
	}
	select {
	case event := <-removed.events:
		t.Fatalf("removed listener received %q", event)
	default:
	}
}

func TestReconnectReplaysAndResyncs(t *testing.T) {
	ps := newPushServer(t)
	client := startClient(t, ps)
	listener := newRecordingListener()
	client.AddListener("100", listener)
	if err := client.SubscribeDevicePresence(context.Background(), "100", "200"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	first := ps.accept(t)
	if got := first.next(t); got.Kind != kindDevice {
		t.Fatalf("frame = %+v", got)
	}
	first.ws.Close()

	second := ps.accept(t)
	got := second.next(t)
	if got.Op != opSubscribe || got.Kind != kindDevice || got.User != "200" {
		t.Fatalf("replayed frame = %+v", got)
	}
	if event := listener.next(t); event != "resync" {
		t.Fatalf("event = %q, want resync", event)
	}
}

func TestControlFrameWireShape(t *testing.T) {
	payload, err := json.Marshal(controlFrame{Op: opSubscribe, subscription: subscription{Caller: "1", Kind: kindTitle, User: "2", TitleID: 3}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"op":"subscribe","caller":"1","kind":"title","user":"2","titleId":3}`
	if string(payload) != want {
		t.Fatalf("payload = %s, want %s", payload, want)
	}
}
