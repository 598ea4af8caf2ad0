package ws

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/arenabot/config"
	mw "github.com/kasuganosora/arenabot/middleware"
	"go.uber.org/zap"
)

// Handler serves GET /ws. Authentication happens in middleware before it.
type Handler struct {
	hub      *Hub
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates the feed endpoint. An empty sec.AllowedOrigins
// accepts every origin.
func NewHandler(sec config.SecurityConfig, hub *Hub, router *Router, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := sec.AllowedOrigins
	return &Handler{
		hub:    hub,
		router: router,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return len(allowed) == 0 || slices.Contains(allowed, r.Header.Get("Origin"))
			},
		},
	}
}

// ServeWS upgrades the connection and runs its read pump until it closes.
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}
	s := NewSession(mw.GetSubject(c), conn, h.logger)
	h.hub.Register(s)
	h.readPump(s)
}

// readPump reads packets and dispatches them in arrival order.
func (h *Handler) readPump(s *Session) {
	defer func() {
		s.Close()
		h.hub.Unregister(s)
	}()

	s.extendReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.extendReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close", zap.Int64("session", s.ID), zap.Error(err))
			}
			return
		}
		s.extendReadDeadline()
		h.router.Dispatch(s, raw)
	}
}
