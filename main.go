package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/arenabot/api/rest"
	"github.com/kasuganosora/arenabot/api/sse"
	apows "github.com/kasuganosora/arenabot/api/ws"
	"github.com/kasuganosora/arenabot/audit"
	"github.com/kasuganosora/arenabot/cache"
	"github.com/kasuganosora/arenabot/config"
	dbadapter "github.com/kasuganosora/arenabot/db"
	"github.com/kasuganosora/arenabot/game/arena"
	mw "github.com/kasuganosora/arenabot/middleware"
	"github.com/kasuganosora/arenabot/model"
	"github.com/kasuganosora/arenabot/plugin/hook"
	"github.com/kasuganosora/arenabot/scheduler"
	"github.com/kasuganosora/arenabot/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKeyHash == "" {
		logger.Warn("server.admin_key_hash is not set; admin endpoints are disabled")
	}
	if cfg.Security.JWTSecret == "" {
		logger.Warn("security.jwt_secret is not set; feed and observer tokens cannot be verified")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Scheduler / hooks ----
	sched := scheduler.New(logger.Named("scheduler"))
	defer sched.Stop()
	hooks := hook.NewCenter(logger.Named("hook"))

	// ---- Arena ----
	recorder := audit.New(db, c, logger.Named("audit"))
	defer recorder.Stop(context.Background())

	hub := apows.NewHub(logger.Named("feed"))
	ar := arena.New(cfg.Bot, cfg.Battle, cfg.Transport, arena.Deps{
		Outbox:     arena.Fanout{hub, arena.PubSubOutbox{PS: pubsub}},
		Store:      store.New(db, logger.Named("store")),
		Accountant: recorder,
		Cache:      c,
		Hooks:      hooks,
		Scheduler:  sched,
		Logger:     logger.Named("arena"),
		Rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	})
	if err := ar.Start(context.Background(), cfg.Database.FlushEvery); err != nil {
		log.Fatalf("arena: %v", err)
	}

	// ---- Feed router ----
	wsRouter := apows.NewRouter(logger.Named("feed"))
	wsRouter.Facts(ar)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "feeds": hub.Count()})
	})

	adminH := apirest.NewAdminHandler(ar, recorder, sched, hub, cfg.Security, logger.Named("admin"))
	adminH.Register(r.Group("/api/admin",
		mw.IPWhitelist(cfg.Security.AdminIPs),
		mw.AdminKey(cfg.Server.AdminKeyHash)))

	wsH := apows.NewHandler(cfg.Security, hub, wsRouter, logger.Named("feed"))
	r.GET("/ws", mw.Auth(cfg.Security, mw.RoleFeed), wsH.ServeWS)

	sseH := sse.NewHandler(pubsub, logger.Named("sse"))
	r.GET("/sse", mw.Auth(cfg.Security, mw.RoleObserver, mw.RoleFeed), sseH.ServeSSE)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	// ---- Graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	hub.CloseAll()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	if err := ar.Stop(ctx); err != nil {
		logger.Error("arena stop", zap.Error(err))
	}
}
