package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kasuganosora/arenabot/game/arena"
	"go.uber.org/zap"
)

// Hub tracks connected feed sessions and fans notices out to them. It is
// the arena's WebSocket outbox.
type Hub struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	logger   *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{sessions: make(map[int64]*Session), logger: logger}
}

// Register adds a session.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID] = s
	n := len(h.sessions)
	h.mu.Unlock()
	h.logger.Info("feed session registered",
		zap.Int64("session", s.ID),
		zap.String("subject", s.Subject),
		zap.Int("sessions", n))
}

// Unregister removes a session.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID)
	h.mu.Unlock()
	h.logger.Info("feed session unregistered", zap.Int64("session", s.ID))
}

// Count returns the number of connected sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Broadcast sends pkt to every session.
func (h *Hub) Broadcast(pkt *Packet) {
	data, err := json.Marshal(pkt)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		s.SendRaw(data)
	}
}

// Deliver implements arena.Outbox. Having no feed connected is not an
// error; the line is still published to observers elsewhere.
func (h *Hub) Deliver(_ context.Context, n arena.Notice) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if h.Count() == 0 {
		h.logger.Debug("no feed connected", zap.String("line", n.Line))
	}
	h.Broadcast(&Packet{Type: string(n.Kind), Payload: payload})
	return nil
}

// CloseAll closes every session.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		s.Close()
	}
}
