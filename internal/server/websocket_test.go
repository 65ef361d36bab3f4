package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"pairchat/internal/auth"
)

func dialWS(t *testing.T, srvURL, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srvURL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func TestWebSocketPingPong(t *testing.T) {
	gin.SetMode(gin.TestMode)
	deps := newTestDeps()
	r := NewRouter(deps)

	tok, err := auth.CreateToken(1, "alice", deps.TokenConfig)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dialWS(t, srv.URL, tok)
	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var resp map[string]any
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	data, _ := json.Marshal(resp)
	if resp["type"] != "pong" {
		t.Fatalf("expected pong, got %s", string(data))
	}
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(newTestDeps())

	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if _, _, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatalf("expected dial without token to fail")
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return frame
}

func TestWebSocketDeliversToBothParties(t *testing.T) {
	gin.SetMode(gin.TestMode)
	deps := newTestDeps()
	r := NewRouter(deps)

	aliceTok, err := auth.CreateToken(1, "alice", deps.TokenConfig)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	bobTok, err := auth.CreateToken(2, "bob", deps.TokenConfig)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	srv := httptest.NewServer(r)
	defer srv.Close()

	alice := dialWS(t, srv.URL, aliceTok)
	bob := dialWS(t, srv.URL, bobTok)

	// a pong proves the server-side read loop is running, so both
	// connections are registered before the message is routed
	for _, conn := range []*websocket.Conn{alice, bob} {
		if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
			t.Fatalf("WriteJSON: %v", err)
		}
		frame := readFrame(t, conn)
		if frame["type"] != "pong" {
			t.Fatalf("expected pong, got %+v", frame)
		}
	}

	msg := map[string]any{"type": "message", "to": 2, "kind": "text", "content": "hello bob"}
	if err := alice.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"bob": bob, "alice": alice} {
		frame := readFrame(t, conn)
		if frame["type"] != "update" || frame["event"] != "new-message" {
			t.Fatalf("%s: unexpected frame: %+v", name, frame)
		}
		body, ok := frame["body"].(map[string]any)
		if !ok {
			t.Fatalf("%s: missing body: %+v", name, frame)
		}
		if body["content"] != "hello bob" {
			t.Fatalf("%s: unexpected content: %+v", name, body)
		}
		if body["senderId"] != float64(1) {
			t.Fatalf("%s: unexpected sender: %+v", name, body)
		}
	}
}

func TestWebSocketEchoWhenReceiverOffline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	deps := newTestDeps()
	r := NewRouter(deps)

	aliceTok, err := auth.CreateToken(1, "alice", deps.TokenConfig)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	srv := httptest.NewServer(r)
	defer srv.Close()

	alice := dialWS(t, srv.URL, aliceTok)
	msg := map[string]any{"type": "message", "to": 2, "kind": "text", "content": "are you there"}
	if err := alice.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	frame := readFrame(t, alice)
	if frame["type"] != "update" || frame["event"] != "new-message" {
		t.Fatalf("unexpected frame: %+v", frame)
	}

	// message survived the offline receiver
	entries, err := deps.Chat.History(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 1 || entries[0].Content != "are you there" {
		t.Fatalf("unexpected history: %+v", entries)
	}
}

func TestWebSocketInvalidMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	deps := newTestDeps()
	r := NewRouter(deps)

	tok, err := auth.CreateToken(1, "alice", deps.TokenConfig)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dialWS(t, srv.URL, tok)

	// empty content fails validation; the error goes back to the sender only
	msg := map[string]any{"type": "message", "to": 2, "kind": "text", "content": ""}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	frame := readFrame(t, conn)
	if frame["type"] != "error" {
		t.Fatalf("expected error frame, got %+v", frame)
	}

	// nothing was persisted
	entries, err := deps.Chat.History(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty history, got %+v", entries)
	}
}
