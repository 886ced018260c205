// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// WSHandler upgrades to WebSocket and streams state snapshots as they change.
// Read-only: the projector and companion views subscribe here while commands
// go through the REST surface.
func (s *APIServer) WSHandler(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // Adjust for production security.
	})
	if err != nil {
		s.Logger.Warnf("WebSocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler exit")

	snapshots, cancel := s.Session.Subscribe()
	defer cancel()

	ctx := r.Context()

	// Drain client frames so pings and close frames are processed. Inbound
	// payloads are ignored.
	go func() {
		for {
			if _, _, err := c.Read(ctx); err != nil {
				cancel()
				return
			}
		}
	}()

	for snap := range snapshots {
		data, err := json.Marshal(snap)
		if err != nil {
			s.Logger.Errorf("failed to marshal snapshot: %v", err)
			continue
		}
		writeCtx, writeCancel := context.WithTimeout(ctx, 5*time.Second)
		err = c.Write(writeCtx, websocket.MessageText, data)
		writeCancel()
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				s.Logger.Warnf("WebSocket write failed: %v", err)
			}
			return
		}
	}
	c.Close(websocket.StatusNormalClosure, "session closed")
}
