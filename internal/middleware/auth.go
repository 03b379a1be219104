package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
)

// devSecret is the config default. Auth stays disabled until a real secret is
// configured, so local setups work without tokens.
const devSecret = "dev-secret-change-me"

type AuthMiddleware struct {
	log     *logger.Logger
	secret  string
	enabled bool
}

func NewAuthMiddleware(baseLog *logger.Logger, secret string) *AuthMiddleware {
	enabled := secret != "" && secret != devSecret
	if !enabled {
		baseLog.Warn("JWT auth disabled, no secret configured")
	}
	return &AuthMiddleware{
		log:     baseLog.With("middleware", "AuthMiddleware"),
		secret:  secret,
		enabled: enabled,
	}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !am.enabled {
			c.Next()
			return
		}

		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(am.secret), nil
		})
		if err != nil {
			am.log.Debug("Token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if sub, _ := claims["sub"].(string); sub != "" {
			c.Set("user_id", sub)
		}
		c.Next()
	}
}

// extractToken checks the query string first so WebSocket clients, which
// cannot set headers from the browser, can authenticate too.
func extractToken(c *gin.Context) string {
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
