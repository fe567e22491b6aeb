package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func identityRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Identity(secret), func(c *gin.Context) {
		id, _ := IdentityFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"id": id, "gin": c.GetString(ContextUserIDKey)})
	})
	return r
}

func TestIdentity(t *testing.T) {
	const secret = "test-secret"
	good, err := IssueToken(secret, "alice", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	numeric, _ := IssueToken(secret, "", jwt.MapClaims{"sub": 42})
	forged, _ := IssueToken("other-secret", "mallory", nil)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"anonymous", "", http.StatusOK, `{"gin":"","id":""}`},
		{"valid", "Bearer " + good, http.StatusOK, `{"gin":"alice","id":"alice"}`},
		{"numeric subject", "Bearer " + numeric, http.StatusOK, `{"gin":"42","id":"42"}`},
		{"wrong secret", "Bearer " + forged, http.StatusUnauthorized, ""},
		{"malformed header", "Token abc", http.StatusUnauthorized, ""},
	}
	r := identityRouter(secret)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.status, w.Body.String())
			}
			if tc.body != "" && w.Body.String() != tc.body {
				t.Fatalf("body = %s, want %s", w.Body.String(), tc.body)
			}
		})
	}
}
