package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/arenabot/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newProtectedRouter(sec config.SecurityConfig, roles ...string) *gin.Engine {
	r := gin.New()
	r.Use(Auth(sec, roles...))
	r.GET("/protected", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, GetSubject(ctx))
	})
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_MissingToken(t *testing.T) {
	sec := config.SecurityConfig{JWTSecret: "secret"}
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(newProtectedRouter(sec), req).Code)
}

func TestAuth_NoBearer(t *testing.T) {
	sec := config.SecurityConfig{JWTSecret: "secret"}
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Token abc123")
	assert.Equal(t, http.StatusUnauthorized, serve(newProtectedRouter(sec), req).Code)
}

func TestAuth_InvalidToken(t *testing.T) {
	sec := config.SecurityConfig{JWTSecret: "secret"}
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer notavalidtoken")
	assert.Equal(t, http.StatusUnauthorized, serve(newProtectedRouter(sec), req).Code)
}

func TestAuth_ValidBearer(t *testing.T) {
	sec := config.SecurityConfig{JWTSecret: "secret"}
	token, err := GenerateToken("extractor", RoleFeed, "secret", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := serve(newProtectedRouter(sec, RoleFeed), req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "extractor", w.Body.String())
}

func TestAuth_QueryToken(t *testing.T) {
	sec := config.SecurityConfig{JWTSecret: "secret"}
	token, err := GenerateToken("viewer", RoleObserver, "secret", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected?token="+token, nil)
	assert.Equal(t, http.StatusOK, serve(newProtectedRouter(sec, RoleObserver, RoleFeed), req).Code)
}

func TestAuth_WrongRole(t *testing.T) {
	sec := config.SecurityConfig{JWTSecret: "secret"}
	token, err := GenerateToken("viewer", RoleObserver, "secret", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, serve(newProtectedRouter(sec, RoleFeed), req).Code)
}

func TestAdminKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("open-sesame"), bcrypt.MinCost)
	require.NoError(t, err)

	r := gin.New()
	r.Use(AdminKey(string(hash)))
	r.GET("/admin", func(c *gin.Context) { c.String(http.StatusOK, GetSubject(c)) })

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(AdminKeyHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(AdminKeyHeader, "open-sesame")
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", w.Body.String())
}

func TestAdminKey_EmptyHashDisables(t *testing.T) {
	r := gin.New()
	r.Use(AdminKey(""))
	r.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(AdminKeyHeader, "anything")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
}

func TestGetSubject_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetSubject(c))
}

func TestRecovery_CatchesPanic(t *testing.T) {
	r := gin.New()
	r.Use(TraceID())
	r.Use(Recovery(zap.NewNop()))
	r.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, serve(r, req).Code)
}

func TestRecovery_NoPanic_PassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zap.NewNop()))
	r.GET("/ok", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	assert.Equal(t, http.StatusOK, serve(r, req).Code)
}

func TestLogger_RequestLogged(t *testing.T) {
	r := gin.New()
	r.Use(TraceID())
	r.Use(Logger(zap.NewNop()))
	r.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, serve(r, req).Code)
}
