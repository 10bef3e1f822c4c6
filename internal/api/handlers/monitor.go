package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var monitorUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin is enforced by the JWT on the upgrade request, not by Origin
	// header matching.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const monitorPushInterval = 2 * time.Second

// MonitorSessions streams live session snapshots over a websocket until
// the client disconnects. Used by the operator dashboard.
func (h *Handler) MonitorSessions(c *gin.Context) {
	conn, err := monitorUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Info("session monitor connected", zap.String("remote", conn.RemoteAddr().String()))

	// Reader goroutine: surfaces client close without blocking the pusher.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(monitorPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			snapshot := gin.H{
				"timestamp": time.Now().Format(time.RFC3339),
				"sessions":  h.orchestrator.ListSessions(),
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(snapshot); err != nil {
				h.logger.Debug("session monitor write failed", zap.Error(err))
				return
			}
		}
	}
}
