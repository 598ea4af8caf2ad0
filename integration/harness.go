// Package integration runs the fully wired server over real HTTP,
// WebSocket and SSE connections.
package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apirest "github.com/kasuganosora/arenabot/api/rest"
	"github.com/kasuganosora/arenabot/api/sse"
	apows "github.com/kasuganosora/arenabot/api/ws"
	"github.com/kasuganosora/arenabot/audit"
	"github.com/kasuganosora/arenabot/cache"
	"github.com/kasuganosora/arenabot/config"
	"github.com/kasuganosora/arenabot/game/arena"
	mw "github.com/kasuganosora/arenabot/middleware"
	"github.com/kasuganosora/arenabot/plugin/hook"
	"github.com/kasuganosora/arenabot/scheduler"
	"github.com/kasuganosora/arenabot/store"
	"github.com/kasuganosora/arenabot/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// AdminKey is the plain admin key accepted by every TestServer.
const AdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	Arena  *arena.Arena
	Hub    *apows.Hub
	Hooks  *hook.Center
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	WSURL  string // ws://127.0.0.1:<port>/ws
	Sec    config.SecurityConfig
}

// BotConfig is the controlled-entity setup used by NewTestServer: fast
// pacing, no catalog acquisition.
func BotConfig() config.BotConfig {
	return config.BotConfig{
		Name:       "Hero",
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	}
}

// NewTestServer creates a fully wired server. It mirrors the wiring in
// main.go.
func NewTestServer(t *testing.T) *TestServer {
	return NewTestServerWithBot(t, BotConfig())
}

// NewTestServerWithBot is NewTestServer with a custom bot configuration.
func NewTestServerWithBot(t *testing.T, bot config.BotConfig) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	hash, err := bcrypt.GenerateFromPassword([]byte(AdminKey), bcrypt.MinCost)
	require.NoError(t, err)
	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{}, // allow all origins
	}

	sched := scheduler.New(logger)
	hooks := hook.NewCenter(logger)
	recorder := audit.New(db, c, logger)
	hub := apows.NewHub(logger)

	ar := arena.New(bot, config.BattleConfig{EntryWindow: time.Minute}, config.TransportConfig{}, arena.Deps{
		Outbox:     arena.Fanout{hub, arena.PubSubOutbox{PS: pubsub}},
		Store:      store.New(db, logger),
		Accountant: recorder,
		Cache:      c,
		Hooks:      hooks,
		Scheduler:  sched,
		Logger:     logger,
		Rand:       rand.New(rand.NewSource(1)),
	})
	require.NoError(t, ar.Start(context.Background(), 0))

	wsRouter := apows.NewRouter(logger)
	wsRouter.Facts(ar)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "feeds": hub.Count()})
	})

	adminH := apirest.NewAdminHandler(ar, recorder, sched, hub, sec, logger)
	adminH.Register(r.Group("/api/admin", mw.IPWhitelist(nil), mw.AdminKey(string(hash))))

	wsH := apows.NewHandler(sec, hub, wsRouter, logger)
	r.GET("/ws", mw.Auth(sec, mw.RoleFeed), wsH.ServeWS)

	sseH := sse.NewHandler(pubsub, logger)
	r.GET("/sse", mw.Auth(sec, mw.RoleObserver, mw.RoleFeed), sseH.ServeSSE)

	server := httptest.NewServer(r)
	ts := &TestServer{
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		Arena:  ar,
		Hub:    hub,
		Hooks:  hooks,
		Server: server,
		URL:    server.URL,
		WSURL:  "ws" + strings.TrimPrefix(server.URL, "http") + "/ws",
		Sec:    sec,
	}
	t.Cleanup(func() {
		hub.CloseAll()
		server.Close()
		_ = ar.Stop(context.Background())
		recorder.Stop(context.Background())
		sched.Stop()
	})
	return ts
}

// Token mints a JWT for subject with the given role.
func (ts *TestServer) Token(t *testing.T, subject, role string) string {
	t.Helper()
	token, err := mw.GenerateToken(subject, role, ts.Sec.JWTSecret, time.Hour)
	require.NoError(t, err)
	return token
}

// --- HTTP helpers ---

// Admin sends an admin API request with the admin key.
func (ts *TestServer) Admin(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+"/api/admin"+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(mw.AdminKeyHeader, AdminKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection. A background readLoop
// feeds readCh so timeouts never touch the connection's read deadline.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult
}

type readResult struct {
	data []byte
	err  error
}

// ConnectWS dials the feed endpoint with the given JWT token.
func (ts *TestServer) ConnectWS(t *testing.T, token string) *WSClient {
	t.Helper()
	before := ts.Hub.Count()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL+"?token="+token, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	go wc.readLoop()
	t.Cleanup(wc.Close)
	// Registration happens after the upgrade returns to the client.
	require.Eventually(t, func() bool { return ts.Hub.Count() > before }, 2*time.Second, 5*time.Millisecond)
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Send writes one packet with the next sequence number.
func (wc *WSClient) Send(msgType string, payload interface{}) {
	wc.t.Helper()
	seq := atomic.AddUint64(&wc.seq, 1)
	payloadJSON, err := json.Marshal(payload)
	require.NoError(wc.t, err)
	data, err := json.Marshal(apows.Packet{Seq: seq, Type: msgType, Payload: payloadJSON})
	require.NoError(wc.t, err)
	require.NoError(wc.t, wc.Conn.WriteMessage(websocket.TextMessage, data))
}

// Fact sends one arena fact.
func (wc *WSClient) Fact(kind arena.Kind, payload interface{}) {
	wc.t.Helper()
	wc.Send(string(kind), payload)
}

// RecvAny reads one packet, or fails after timeout.
func (wc *WSClient) RecvAny(timeout time.Duration) (apows.Packet, error) {
	select {
	case res := <-wc.readCh:
		if res.err != nil {
			return apows.Packet{}, res.err
		}
		var pkt apows.Packet
		err := json.Unmarshal(res.data, &pkt)
		return pkt, err
	case <-time.After(timeout):
		return apows.Packet{}, &timeoutError{}
	}
}

type timeoutError struct{}

func (e *timeoutError) Error() string   { return "read timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

// RecvType reads packets until one with the given type arrives.
func (wc *WSClient) RecvType(msgType string, timeout time.Duration) apows.Packet {
	wc.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		pkt, err := wc.RecvAny(remaining)
		if err != nil {
			wc.t.Fatalf("WS recv failed while waiting for %q: %v", msgType, err)
		}
		if pkt.Type == msgType {
			return pkt
		}
	}
	wc.t.Fatalf("timed out waiting for packet type %q", msgType)
	return apows.Packet{}
}

// RecvNotice waits for the next notice of the given kind.
func (wc *WSClient) RecvNotice(kind arena.NoticeKind, timeout time.Duration) arena.Notice {
	wc.t.Helper()
	pkt := wc.RecvType(string(kind), timeout)
	var n arena.Notice
	require.NoError(wc.t, json.Unmarshal(pkt.Payload, &n))
	return n
}

// Close closes the WebSocket connection.
func (wc *WSClient) Close() {
	_ = wc.Conn.Close()
}

// --- SSE client ---

// SSEClient reads server-sent events.
type SSEClient struct {
	resp   *http.Response
	reader *bufio.Reader
	cancel context.CancelFunc
}

// ConnectSSE opens the observer stream and waits for the connected event.
func (ts *TestServer) ConnectSSE(t *testing.T, token string) *SSEClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse?token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sc := &SSEClient{resp: resp, reader: bufio.NewReader(resp.Body), cancel: cancel}
	t.Cleanup(sc.Close)
	ev, _ := sc.Next(t)
	require.Equal(t, "connected", ev)
	return sc
}

// Next blocks until one full event has been read.
func (sc *SSEClient) Next(t *testing.T) (event, data string) {
	t.Helper()
	for {
		line, err := sc.reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "" && event != "":
			return event, data
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

// Close ends the stream.
func (sc *SSEClient) Close() {
	sc.cancel()
	_ = sc.resp.Body.Close()
}
