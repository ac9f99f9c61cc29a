package chat

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"
)

func newChatServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/ws/"), 10, 64)
		if err != nil {
			http.Error(w, "client id must be numeric", http.StatusBadRequest)
			return
		}
		hub.Handler(id).ServeHTTP(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dialChat(t *testing.T, srv *httptest.Server, clientID int64) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1)
	conn, err := websocket.Dial(fmt.Sprintf("%s/ws/%d", wsURL, clientID), "", srv.URL)
	if err != nil {
		t.Fatalf("dial client %d: %v", clientID, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func recvMessage(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var message string
	if err := websocket.Message.Receive(conn, &message); err != nil {
		t.Fatalf("receive: %v", err)
	}
	return message
}

func waitForMembers(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d members, have %d", want, hub.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestChatAckAndBroadcast(t *testing.T) {
	hub, srv := newChatServer(t)
	alice := dialChat(t, srv, 1)
	bob := dialChat(t, srv, 2)
	waitForMembers(t, hub, 2)

	if err := websocket.Message.Send(alice, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	// The sender gets the ack first, then the attributed broadcast.
	if got := recvMessage(t, alice); got != "You wrote: hello" {
		t.Fatalf("expected ack, got %q", got)
	}
	if got := recvMessage(t, alice); got != "Client #1 says: hello" {
		t.Fatalf("expected broadcast to sender, got %q", got)
	}
	if got := recvMessage(t, bob); got != "Client #1 says: hello" {
		t.Fatalf("expected broadcast to other member, got %q", got)
	}
}

func TestChatDepartureNotice(t *testing.T) {
	hub, srv := newChatServer(t)
	alice := dialChat(t, srv, 1)
	bob := dialChat(t, srv, 2)
	waitForMembers(t, hub, 2)
	_ = bob

	alice.Close()
	if got := recvMessage(t, bob); got != "Client #1 left the chat" {
		t.Fatalf("expected departure notice, got %q", got)
	}
	waitForMembers(t, hub, 1)
}

func TestChatRejectsNonNumericClientID(t *testing.T) {
	_, srv := newChatServer(t)
	resp, err := http.Get(srv.URL + "/ws/not-a-number")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
