package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/arenabot/config"
	"golang.org/x/crypto/bcrypt"
)

const (
	SubjectKey     = "subject"
	RoleKey        = "role"
	AdminKeyHeader = "X-Admin-Key"
)

// bearer reads the token from the Authorization header, falling back to the
// "token" query parameter for WebSocket and EventSource clients.
func bearer(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

// Auth validates the JWT and requires one of roles.
func Auth(sec config.SecurityConfig, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearer(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if len(roles) > 0 && !slices.Contains(roles, claims.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role not permitted"})
			return
		}
		c.Set(SubjectKey, claims.Subject)
		c.Set(RoleKey, claims.Role)
		c.Next()
	}
}

// AdminKey checks the X-Admin-Key header against a bcrypt hash. An empty
// hash disables the admin API entirely.
func AdminKey(hash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(AdminKeyHeader)
		if hash == "" || key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin key required"})
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin key"})
			return
		}
		c.Set(SubjectKey, "admin")
		c.Next()
	}
}

// GetSubject returns the authenticated subject.
func GetSubject(c *gin.Context) string {
	if v, exists := c.Get(SubjectKey); exists {
		return v.(string)
	}
	return ""
}
