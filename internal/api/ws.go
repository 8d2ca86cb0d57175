package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/notify"
)

// taskUpdateIdleTimeout closes the bridge after this long without an event.
const taskUpdateIdleTimeout = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// taskUpdates bridges the progress channel onto a WebSocket. Events for the
// requested agent stream until a terminal status arrives or the feed stays
// quiet past the idle timeout. Closing the socket stops the subscription but
// never cancels the turn producing the events.
func (h *Handler) taskUpdates(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	if h.feed == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "task updates unavailable"})
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("agent_id", agentID), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	updates := h.feed.Subscribe(ctx, agentID)

	idle := time.NewTimer(taskUpdateIdleTimeout)
	defer idle.Stop()
	for {
		select {
		case <-idle.C:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "idle timeout"),
				time.Now().Add(time.Second))
			return
		case tp, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(tp); err != nil {
				h.logger.Debug("websocket write failed",
					zap.String("agent_id", agentID), zap.Error(err))
				return
			}
			if tp.Status == notify.StatusCompleted || tp.Status == notify.StatusFailed {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, tp.Status),
					time.Now().Add(time.Second))
				return
			}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(taskUpdateIdleTimeout)
		}
	}
}
