package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roomtalk/roomtalk/internal/store"
)

// Session tests run the full in-process stack: httptest server, real
// WebSocket upgrades, sessions, registry, router, and services over the
// fake gateway.

func newTestStack(t *testing.T) (*Server, *fakeGateway, *httptest.Server) {
	t.Helper()

	gw := newFakeGateway()
	cfg := NewConfig()
	cfg.AllowedOrigins = []string{"*"}
	srv := New(cfg, gw, nil)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return srv, gw, ts
}

func dialRoom(t *testing.T, ts *httptest.Server, roomID string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + roomID
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event any) {
	t.Helper()
	if err := conn.WriteJSON(event); err != nil {
		t.Fatalf("Failed to send event: %v", err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	var event map[string]any
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	return event
}

func expectNoEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	// Wait on the underlying net.Conn rather than the websocket read path:
	// a timed-out websocket read permanently corrupts the gorilla connection,
	// while a raw read timeout leaves it usable for the rest of the test.
	raw := conn.UnderlyingConn()
	if err := raw.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, err := raw.Read(make([]byte, 1))
	if err == nil {
		t.Fatal("Expected no event, but received one")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		if err := raw.SetReadDeadline(time.Time{}); err != nil {
			t.Fatalf("Failed to clear read deadline: %v", err)
		}
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of an event: %v", err)
}

func waitForMembers(t *testing.T, srv *Server, roomID string, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(srv.registry.RoomMembers(roomID)) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Room %s never reached %d members", roomID, want)
}

func TestSessionMessageRoundTrip(t *testing.T) {
	srv, gw, ts := newTestStack(t)
	roomID := gw.addRoom("general", store.RoomTypeGroup)

	alice := dialRoom(t, ts, roomID)
	bob := dialRoom(t, ts, roomID)
	waitForMembers(t, srv, roomID, 2)

	sendEvent(t, alice, map[string]string{"type": "message", "author": "alice", "content": "hello"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		event := readEvent(t, conn)
		if event["type"] != "message" {
			t.Errorf("Expected message event, got %v", event["type"])
		}
		if event["author"] != "alice" || event["content"] != "hello" {
			t.Errorf("Unexpected payload: %v", event)
		}
		if event["time"] == "" {
			t.Error("Broadcast message has no timestamp")
		}
	}

	room, err := gw.RoomByID(context.Background(), roomID)
	if err != nil {
		t.Fatalf("Room lookup failed: %v", err)
	}
	if len(room.Messages) != 1 || room.Messages[0].Content != "hello" {
		t.Errorf("Expected exactly one persisted message, got %v", room.Messages)
	}
}

func TestSessionUnknownTypeKeepsConnectionOpen(t *testing.T) {
	srv, gw, ts := newTestStack(t)
	roomID := gw.addRoom("general", store.RoomTypeGroup)

	conn := dialRoom(t, ts, roomID)
	waitForMembers(t, srv, roomID, 1)

	sendEvent(t, conn, map[string]string{"type": "presence"})
	expectNoEvent(t, conn, 200*time.Millisecond)

	// the session is still alive and handling events
	sendEvent(t, conn, map[string]string{"type": "get_history"})
	event := readEvent(t, conn)
	if event["type"] != "history" {
		t.Errorf("Expected history after the dropped frame, got %v", event["type"])
	}
}

func TestSessionMalformedEventIsContained(t *testing.T) {
	srv, gw, ts := newTestStack(t)
	roomID := gw.addRoom("general", store.RoomTypeGroup)

	conn := dialRoom(t, ts, roomID)
	waitForMembers(t, srv, roomID, 1)

	// missing required content field
	sendEvent(t, conn, map[string]string{"type": "message", "author": "alice"})
	expectNoEvent(t, conn, 200*time.Millisecond)

	sendEvent(t, conn, map[string]string{"type": "message", "author": "alice", "content": "still here"})
	event := readEvent(t, conn)
	if event["content"] != "still here" {
		t.Errorf("Session did not survive the malformed frame: %v", event)
	}
}

func TestSessionFriendAddNotifiesBothSides(t *testing.T) {
	srv, gw, ts := newTestStack(t)
	aliceDoc := gw.addUser("alice@x", "alice")
	bobDoc := gw.addUser("bob@x", "bob")
	roomA := gw.addRoom("lobbyA", store.RoomTypeGroup)
	roomB := gw.addRoom("lobbyB", store.RoomTypeGroup)

	alice := dialRoom(t, ts, roomA)
	bob := dialRoom(t, ts, roomB)
	waitForMembers(t, srv, roomA, 1)
	waitForMembers(t, srv, roomB, 1)

	// bob identifies himself so the server can route notifications to him
	sendEvent(t, bob, map[string]string{"type": "get_lists", "user_email": "bob@x"})
	if event := readEvent(t, bob); event["type"] != "list_update" {
		t.Fatalf("Expected list_update, got %v", event["type"])
	}

	sendEvent(t, alice, map[string]string{"type": "add_friend", "user_email": "alice@x", "friend_email": "bob@x"})

	toAlice := readEvent(t, alice)
	if toAlice["type"] != "friend_added" || toAlice["friend_id"] != bobDoc.ID.Hex() {
		t.Errorf("Unexpected reply to requester: %v", toAlice)
	}

	toBob := readEvent(t, bob)
	if toBob["type"] != "friend_added" || toBob["friend_id"] != aliceDoc.ID.Hex() {
		t.Errorf("Unexpected notification to friend: %v", toBob)
	}
	if toAlice["friend_room_id"] != toBob["friend_room_id"] {
		t.Errorf("Friend room ids diverge: %v vs %v", toAlice["friend_room_id"], toBob["friend_room_id"])
	}
}

func TestSessionDisconnectCleansRegistry(t *testing.T) {
	srv, gw, ts := newTestStack(t)
	roomID := gw.addRoom("general", store.RoomTypeGroup)

	conn := dialRoom(t, ts, roomID)
	waitForMembers(t, srv, roomID, 1)

	_ = conn.Close()
	waitForMembers(t, srv, roomID, 0)
}

func TestHealthEndpointReady(t *testing.T) {
	_, _, ts := newTestStack(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from healthy server, got %d", resp.StatusCode)
	}
}

func TestHealthEndpointUnready(t *testing.T) {
	cfg := NewConfig()
	cfg.AllowedOrigins = []string{"*"}
	srv := New(cfg, newFakeGateway(), func(ctx context.Context) error {
		return errors.New("gateway down")
	})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 while the gateway is down, got %d", resp.StatusCode)
	}
}

func TestChatPageServed(t *testing.T) {
	_, _, ts := newTestStack(t)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("Page request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for demo page, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/html" {
		t.Errorf("Expected text/html, got %s", ct)
	}
}
