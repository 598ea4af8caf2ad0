// Package sse streams emitted commands and diagnostics to observers.
package sse

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/arenabot/cache"
	"github.com/kasuganosora/arenabot/game/arena"
	mw "github.com/kasuganosora/arenabot/middleware"
	"go.uber.org/zap"
)

const keepaliveInterval = 30 * time.Second

// Handler serves GET /sse. Authentication happens in middleware before it.
type Handler struct {
	pubsub    cache.PubSub
	keepalive time.Duration
	logger    *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{pubsub: pubsub, keepalive: keepaliveInterval, logger: logger}
}

// eventName maps a pub/sub channel to the SSE event name.
func eventName(channel string) string {
	switch channel {
	case arena.ChannelCommands:
		return "command"
	case arena.ChannelDiagnostics:
		return "diagnostic"
	}
	return "message"
}

// ServeSSE streams every notice published on the arena channels until the
// client goes away.
func (h *Handler) ServeSSE(c *gin.Context) {
	subCtx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, arena.ChannelCommands, arena.ChannelDiagnostics)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subscribe failed"})
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	fmt.Fprintf(c.Writer, "event: connected\ndata: {}\n\n")
	c.Writer.Flush()
	h.logger.Debug("sse observer connected", zap.String("subject", mw.GetSubject(c)))

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", eventName(msg.Channel), msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-subCtx.Done():
			return
		}
	}
}
