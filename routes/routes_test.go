package routes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ChatKit/middleware"
	"ChatKit/pkg/chat"
	"ChatKit/pkg/llm"
	"ChatKit/pkg/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// pingStore only answers Ping.
type pingStore struct {
	store.Store
	err error
}

func (s pingStore) Ping(context.Context) error { return s.err }

func newRouter(t *testing.T, st store.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	p, err := chat.New(chat.Config{Mode: chat.ModeStateless, Engine: llm.Local{}, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	limiter := middleware.NewLimiter(time.Second, 5, 2)
	t.Cleanup(limiter.Stop)

	r := gin.New()
	RegisterRoutes(r, Deps{Pipeline: p, Store: st, Limiter: limiter, JWTSecret: "secret", Logger: zerolog.Nop()})
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthz(t *testing.T) {
	cases := []struct {
		name  string
		store store.Store
		want  int
	}{
		{"no store", nil, http.StatusOK},
		{"store up", pingStore{}, http.StatusOK},
		{"store down", pingStore{err: errors.New("connection refused")}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := get(newRouter(t, tc.store), "/healthz")
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newRouter(t, nil)
	// one chat turn so the turn counters have a sample
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"messages":[{"role":"user","parts":[{"type":"text","text":"Hi"}]}]}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(httptest.NewRecorder(), req)

	w := get(r, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "chatkit_turns_total") {
		t.Fatalf("metrics output missing chatkit_turns_total")
	}
}
