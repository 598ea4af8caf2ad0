package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/arenabot/audit"
	"github.com/kasuganosora/arenabot/config"
	"github.com/kasuganosora/arenabot/game/arena"
	mw "github.com/kasuganosora/arenabot/middleware"
	"github.com/kasuganosora/arenabot/scheduler"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// FeedCounter reports how many feed connections are open.
type FeedCounter interface {
	Count() int
}

// AdminHandler serves the operator API under /api/admin. Routes must sit
// behind the AdminKey middleware.
type AdminHandler struct {
	arena  *arena.Arena
	rec    *audit.Recorder
	sched  *scheduler.Scheduler
	feeds  FeedCounter
	sec    config.SecurityConfig
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler. rec and feeds may be nil.
func NewAdminHandler(
	a *arena.Arena,
	rec *audit.Recorder,
	sched *scheduler.Scheduler,
	feeds FeedCounter,
	sec config.SecurityConfig,
	logger *zap.Logger,
) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{arena: a, rec: rec, sched: sched, feeds: feeds, sec: sec, logger: logger}
}

// Register mounts every admin route on g.
func (h *AdminHandler) Register(g *gin.RouterGroup) {
	g.GET("/state", h.State)
	g.GET("/metrics", h.Metrics)
	g.GET("/characters", h.ListCharacters)
	g.GET("/characters/:id", h.GetCharacter)
	g.GET("/catalog", h.Catalog)
	g.GET("/scheduler", h.ListSchedulerTasks)
	g.GET("/events", h.ListEvents)
	g.POST("/events", h.InjectEvent)
	g.GET("/preview/:actor", h.Preview)
	g.POST("/flush", h.Flush)
	g.GET("/stats", h.Stats)
	g.GET("/leaderboard", h.Leaderboard)
	g.GET("/battles", h.RecentBattles)
	g.POST("/tokens", h.IssueToken)
}

// limit reads ?limit=, clamped to (0, maxListLimit].
func limit(c *gin.Context) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	return min(n, maxListLimit)
}

// State returns the phase, combatants and pending bindings.
// GET /api/admin/state
func (h *AdminHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.arena.Snapshot())
}

// Metrics returns a compact health summary.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	st := h.arena.Snapshot()
	feeds := 0
	if h.feeds != nil {
		feeds = h.feeds.Count()
	}
	c.JSON(http.StatusOK, gin.H{
		"phase":           st.Phase.State,
		"combatants":      len(st.Combatants),
		"deciding":        st.Deciding,
		"feed_sessions":   feeds,
		"scheduler_tasks": h.sched.ListTickers(),
	})
}

// ListCharacters returns every known character.
// GET /api/admin/characters
func (h *AdminHandler) ListCharacters(c *gin.Context) {
	chars := h.arena.Characters()
	c.JSON(http.StatusOK, gin.H{"characters": chars, "count": len(chars)})
}

// GetCharacter returns one character by id.
// GET /api/admin/characters/:id
func (h *AdminHandler) GetCharacter(c *gin.Context) {
	ch, ok := h.arena.Character(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
		return
	}
	c.JSON(http.StatusOK, ch)
}

// Catalog returns the weapon and technique catalog.
// GET /api/admin/catalog
func (h *AdminHandler) Catalog(c *gin.Context) {
	c.JSON(http.StatusOK, h.arena.Catalog())
}

// ListSchedulerTasks returns all pending timers and tickers.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

// ListEvents returns the most recently handled facts.
// GET /api/admin/events?limit=n
func (h *AdminHandler) ListEvents(c *gin.Context) {
	events, err := h.arena.Events(c.Request.Context(), limit(c))
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// InjectEvent feeds one fact as if it came from the feed.
// POST /api/admin/events
func (h *AdminHandler) InjectEvent(c *gin.Context) {
	var f arena.Fact
	if err := c.ShouldBindJSON(&f); err != nil || f.Kind == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fact"})
		return
	}
	if err := h.arena.Handle(c.Request.Context(), f); err != nil {
		status := http.StatusConflict
		if errors.Is(err, arena.ErrUnknownKind) || errors.Is(err, arena.ErrBadPayload) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("admin injected fact", zap.String("kind", string(f.Kind)))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Preview reports what actor would do now, without acting.
// GET /api/admin/preview/:actor
func (h *AdminHandler) Preview(c *gin.Context) {
	d, err := h.arena.Preview(c.Param("actor"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, d)
	case errors.Is(err, arena.ErrNotControlled):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, arena.ErrWorkerBusy), errors.Is(err, arena.ErrNoBattle):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	}
}

// Flush writes pending catalog changes now.
// POST /api/admin/flush
func (h *AdminHandler) Flush(c *gin.Context) {
	if err := h.arena.Flush(c.Request.Context()); err != nil {
		h.logger.Error("admin flush failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "flush failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Stats returns the activity counters.
// GET /api/admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	if h.rec == nil {
		c.JSON(http.StatusOK, gin.H{"stats": map[string]int64{}})
		return
	}
	stats, err := h.rec.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// Leaderboard returns participants ranked by victories.
// GET /api/admin/leaderboard?limit=n
func (h *AdminHandler) Leaderboard(c *gin.Context) {
	if h.rec == nil {
		c.JSON(http.StatusOK, gin.H{"standings": []audit.Standing{}})
		return
	}
	board, err := h.rec.Leaderboard(c.Request.Context(), limit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"standings": board})
}

// RecentBattles returns the latest battle logs.
// GET /api/admin/battles?limit=n
func (h *AdminHandler) RecentBattles(c *gin.Context) {
	if h.rec == nil {
		c.JSON(http.StatusOK, gin.H{"battles": []any{}})
		return
	}
	logs, err := h.rec.Recent(c.Request.Context(), limit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"battles": logs})
}

// IssueToken mints a feed or observer JWT.
// POST /api/admin/tokens {"subject": "...", "role": "feed"|"observer"}
func (h *AdminHandler) IssueToken(c *gin.Context) {
	var req struct {
		Subject string `json:"subject" binding:"required"`
		Role    string `json:"role" binding:"required,oneof=feed observer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject and role (feed|observer) required"})
		return
	}
	ttl := h.sec.JWTTTLH
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	token, err := mw.GenerateToken(req.Subject, req.Role, h.sec.JWTSecret, ttl)
	if err != nil {
		h.logger.Error("token generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	h.logger.Info("admin issued token",
		zap.String("subject", req.Subject),
		zap.String("role", req.Role))
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_in": int64(ttl.Seconds())})
}
