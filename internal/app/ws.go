package app

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"retroboard/internal/roster"
	"retroboard/internal/store"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const wsPingInterval = 15 * time.Second

// handleWebSocket upgrades the connection and runs one ClientSession for
// its lifetime. Every client gets its own transport so each subscription
// has an independent origin.
func (s *HTTPServer) handleWebSocket(w http.ResponseWriter, r *http.Request, actor roster.Identity, teamID, sessionID string) {
	if s.newTransport == nil {
		writeError(w, http.StatusServiceUnavailable, "SYNC_UNAVAILABLE", "Sync transport unavailable", nil)
		return
	}

	tr, err := s.newTransport()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "SYNC_UNAVAILABLE", "Sync transport unavailable", nil)
		return
	}

	client := NewClientSession(s.service, tr, teamID, sessionID, actor)
	if err := client.Start(r.Context()); err != nil {
		client.Close()
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Session not found", nil)
			return
		}
		writeMapped(w, err)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		client.Close()
		return
	}
	defer conn.Close()
	defer client.Close()

	go readPump(conn, client)

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.Send():
			if !ok {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		case <-client.Done():
			return
		}
	}
}

func readPump(conn *websocket.Conn, client *ClientSession) {
	defer client.Close()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("client %s: read: %v", client.user.ID, err)
			}
			return
		}
		client.HandleInbound(raw)
	}
}
