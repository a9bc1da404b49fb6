package rest

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zlnvch/garden/logging"
)

const (
	identityKey  = "identity"
	moderatorKey = "moderator"
)

// Identity returns the caller identity: the first X-Forwarded-For hop,
// then X-Real-IP, then "unknown". No other source is consulted.
func Identity(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return "unknown"
}

// Logger logs one line per request and stores the caller identity on the context.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		identity := Identity(c.Request)
		c.Set(identityKey, identity)

		c.Next()

		logging.Logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.Int("status", c.Writer.Status()),
			zap.String("identity", identity),
			zap.Duration("cost", time.Since(start)),
			zap.String("user_agent", c.Request.UserAgent()),
		)
	}
}

func CORS(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", allowedOrigin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequireModerator rejects requests without a valid moderator bearer token.
func (h *Handler) RequireModerator() gin.HandlerFunc {
	return func(c *gin.Context) {
		moderator, err := h.Service.AuthenticateToken(c.Request.Context(), getTokenFromAuthHeader(c.Request))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "invalid token"})
			return
		}
		c.Set(moderatorKey, moderator)
		c.Next()
	}
}

func identityFrom(c *gin.Context) string {
	if v, ok := c.Get(identityKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return Identity(c.Request)
}

func getTokenFromAuthHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimPrefix(authHeader, prefix)
}
