package chat

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWarnsWhenIdentityIsIgnored(t *testing.T) {
	cases := []struct {
		name     string
		identity IdentityFunc
		warn     bool
	}{
		{"unscoped", nil, true},
		{"scoped", userFromContext, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			_, err := New(Config{
				Mode:     ModePersistent,
				Store:    newTestStore(t),
				Engine:   &fakeEngine{reply: "ok"},
				Identity: tc.identity,
				Logger:   zerolog.New(&buf),
			})
			if err != nil {
				t.Fatalf("new pipeline: %v", err)
			}
			got := strings.Contains(buf.String(), "token subjects are ignored")
			if got != tc.warn {
				t.Fatalf("warning logged = %v, want %v: %s", got, tc.warn, buf.String())
			}
		})
	}
}
