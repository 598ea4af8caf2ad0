package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/kasuganosora/arenabot/game/arena"
	"go.uber.org/zap"
)

// HandlerFunc processes a decoded packet payload.
type HandlerFunc func(ctx context.Context, s *Session, payload json.RawMessage) error

// FactHandler applies inbound facts.
type FactHandler interface {
	Handle(ctx context.Context, f arena.Fact) error
}

// FactKinds are the packet types forwarded to the arena.
var FactKinds = []arena.Kind{
	arena.KindEntityEntered,
	arena.KindAttributeObserved,
	arena.KindStatusApplied,
	arena.KindStatusRemoved,
	arena.KindTurnAdvanced,
	arena.KindPresenceChanged,
	arena.KindCatalogObserved,
	arena.KindBattleOpened,
	arena.KindBattleStarted,
	arena.KindBattlefieldEffect,
	arena.KindBattleEnded,
}

// Router dispatches incoming packets to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a Router that answers "ping".
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{handlers: make(map[string]HandlerFunc), logger: logger}
	r.On("ping", func(_ context.Context, s *Session, _ json.RawMessage) error {
		s.Send(&Packet{Seq: s.LastSeq, Type: "pong"})
		return nil
	})
	return r
}

// On registers a HandlerFunc for the given packet type.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Facts forwards every fact kind to h. The packet seq becomes the fact seq.
func (r *Router) Facts(h FactHandler) {
	for _, kind := range FactKinds {
		r.On(string(kind), func(ctx context.Context, s *Session, payload json.RawMessage) error {
			return h.Handle(ctx, arena.Fact{Seq: int64(s.LastSeq), Kind: kind, Payload: payload})
		})
	}
}

// Dispatch decodes raw bytes, enforces increasing seq and invokes the
// handler. Handler errors are reported back to the sender.
func (r *Router) Dispatch(s *Session, raw []byte) {
	var pkt Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet", zap.Int64("session", s.ID), zap.Error(err))
		r.reject(s, 0, err)
		return
	}

	// Seq 0 opts out of ordering.
	if pkt.Seq != 0 && pkt.Seq <= s.LastSeq {
		r.logger.Warn("replayed or out-of-order packet",
			zap.Int64("session", s.ID),
			zap.Uint64("seq", pkt.Seq),
			zap.Uint64("last_seq", s.LastSeq))
		return
	}
	if pkt.Seq != 0 {
		s.LastSeq = pkt.Seq
	}

	s.TraceID = uuid.NewString()
	ctx := context.WithValue(context.Background(), ctxKeyTraceID{}, s.TraceID)

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled packet type", zap.String("type", pkt.Type), zap.Int64("session", s.ID))
		r.reject(s, pkt.Seq, errors.New("unknown packet type "+pkt.Type))
		return
	}

	if err := fn(ctx, s, pkt.Payload); err != nil {
		r.logger.Warn("handler error",
			zap.String("type", pkt.Type),
			zap.Int64("session", s.ID),
			zap.String("trace_id", s.TraceID),
			zap.Error(err))
		r.reject(s, pkt.Seq, err)
	}
}

func (r *Router) reject(s *Session, seq uint64, err error) {
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})
	s.Send(&Packet{Seq: seq, Type: "error", Payload: payload})
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}
