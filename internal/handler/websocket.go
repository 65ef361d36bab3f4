package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"pairchat/internal/auth"
	"pairchat/internal/chat"
	"pairchat/internal/hub"
	"pairchat/internal/store"
)

type WebSocketHandler struct {
	Hub         *hub.Hub
	Chat        *chat.Service
	TokenConfig auth.TokenConfig
	Log         *slog.Logger
}

type clientMessage struct {
	Type    string `json:"type"`
	To      uint   `json:"to,omitempty"`
	Content string `json:"content,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) Write(message []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.TextMessage, message)
}

func (w *wsWriter) Close() error {
	return w.conn.Close()
}

// Serve runs one live connection. The identity is fixed at upgrade time from
// the token; an unauthenticated request is rejected before the upgrade and no
// chat operation is reachable without one. Unregistration is deferred so it
// happens on every exit path, including abnormal closes.
func (h *WebSocketHandler) Serve(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}
	claims, err := auth.VerifyToken(tokenString, h.TokenConfig)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	conn := hub.NewConnection(claims.UserID, &wsWriter{conn: ws})
	h.Hub.Register(conn)
	h.Log.Info("connection opened", "conn_id", conn.ID, "user_id", claims.UserID)
	defer func() {
		h.Hub.Unregister(conn)
		_ = ws.Close()
		h.Log.Info("connection closed", "conn_id", conn.ID, "user_id", claims.UserID)
	}()

	ws.SetReadLimit(1024 * 1024)
	const pongWait = 60 * time.Second
	const writeWait = 10 * time.Second
	pingPeriod := (pongWait * 9) / 10

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	var closeOnce sync.Once
	closeDone := func() {
		closeOnce.Do(func() {
			close(done)
		})
	}
	defer closeDone()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(writeWait)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					_ = ws.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(conn, "Malformed message")
			continue
		}

		switch msg.Type {
		case "ping":
			out, _ := json.Marshal(chat.Frame{Type: "pong"})
			_ = conn.Writer.Write(out)
		case "message":
			// Deliberately not the request context: a message accepted for
			// persistence completes even if this connection dies mid-append.
			result, err := h.Chat.Send(context.Background(), claims.UserID, msg.To, msg.Kind, msg.Content)
			if err != nil {
				h.sendError(conn, sendErrorMessage(err))
				continue
			}
			h.Log.Debug("message delivered",
				"message_id", result.Message.ID, "delivered", result.Delivered)
		}
	}
}

// sendError reports a failure to the originating connection only.
func (h *WebSocketHandler) sendError(conn *hub.Connection, message string) {
	out, _ := json.Marshal(chat.Frame{Type: "error", Body: gin.H{"message": message}})
	_ = conn.Writer.Write(out)
}

func sendErrorMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return "Invalid message"
	case errors.Is(err, chat.ErrUnauthorized):
		return "No access"
	case errors.Is(err, store.ErrStorage):
		return "Message could not be stored"
	}
	return "Send failed"
}
