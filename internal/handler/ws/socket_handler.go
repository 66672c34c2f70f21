package wshandler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"notification-service/internal/middleware"
	"notification-service/internal/push"
	"notification-service/pkg/jwtutil"
	"notification-service/pkg/response"
)

const (
	readLimit = 512
	pongWait  = 60 * time.Second
)

type WSHandler struct {
	manager  *push.Manager
	verifier *jwtutil.Verifier
	logger   *zap.Logger
}

func NewWSHandler(manager *push.Manager, verifier *jwtutil.Verifier, logger *zap.Logger) *WSHandler {
	return &WSHandler{manager: manager, verifier: verifier, logger: logger}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: tighten with allowed origins if needed
		return true
	},
}

// HandleNotifications authenticates the handshake, upgrades to WebSocket
// and registers the session. The token subject must match the claimed user
// id; a connection that fails either check is refused before it ever
// enters the registry.
func (h *WSHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	token := middleware.ExtractToken(r)
	claimedID := r.URL.Query().Get("userId")

	if token == "" || claimedID == "" {
		response.Error(w, http.StatusUnauthorized, "Missing token or user id")
		return
	}

	claims, err := h.verifier.ParseAndValidate(token)
	if err != nil {
		response.Error(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	if claims.Subject() != claimedID {
		h.logger.Warn("ws handshake subject mismatch",
			zap.String("claimed", claimedID))
		response.Error(w, http.StatusUnauthorized, "Token subject mismatch")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		h.logger.Debug("ws upgrade failed", zap.Error(err))
		return
	}

	s := h.manager.Add(claimedID, conn)

	// Reader loop: consume pongs and client frames until the peer goes
	// away. The write side lives in the session's pump.
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	// Deregistration is synchronous with connection close: no stale
	// registry entries, and no further pushes to this session.
	h.manager.Remove(s)
}
