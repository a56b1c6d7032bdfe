package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"votesync/store"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamBuffer       = 16
)

// streamSession sends the current snapshot, then one per change, until the
// client goes away.
func (s *Server) streamSession(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	updates := make(chan store.Session, streamBuffer)
	sub := s.store.SubscribeSnapshots(updates)
	defer sub.Unsubscribe()

	if err := writeSnapshot(ctx, conn, s.store.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				s.logger.Warn("snapshot subscription failed", slog.Any("error", err))
			}
			_ = conn.Close(websocket.StatusGoingAway, "store closed")
			return
		case snapshot := <-updates:
			if err := writeSnapshot(ctx, conn, snapshot); err != nil {
				if websocket.CloseStatus(err) == -1 {
					_ = conn.Close(websocket.StatusInternalError, "stream error")
				}
				return
			}
		}
	}
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, snapshot store.Session) error {
	data, err := json.Marshal(toSession(snapshot))
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
