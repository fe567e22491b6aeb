package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ContextUserIDKey = "current_user_id"

type identityKey struct{}

// Identity resolves the caller from an optional bearer token. Requests
// without an Authorization header pass through anonymously; a malformed or
// invalid token is rejected. The resolved subject is stored on both the gin
// context and the request context.
func Identity(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.Next()
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid authorization header"})
			return
		}
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "token authentication is not configured"})
			return
		}

		token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
			// only accept HMAC signing
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenUnverifiable
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid token"})
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid token claims"})
			return
		}

		var userID string
		switch sub := claims["sub"].(type) {
		case string:
			userID = sub
		case float64:
			// jwt lib parses numeric subjects as float64
			userID = strconv.FormatInt(int64(sub), 10)
		}
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid subject in token"})
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), identityKey{}, userID))
		c.Next()
	}
}

// IdentityFromContext returns the subject stored by Identity, or "" for
// anonymous requests. It matches chat.IdentityFunc.
func IdentityFromContext(ctx context.Context) (string, error) {
	id, _ := ctx.Value(identityKey{}).(string)
	return id, nil
}

// IssueToken signs a short subject-only token. Used by tests and the smoke
// client.
func IssueToken(secret, subject string, claims jwt.MapClaims) (string, error) {
	all := jwt.MapClaims{"sub": subject}
	for k, v := range claims {
		all[k] = v
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, all).SignedString([]byte(secret))
}
