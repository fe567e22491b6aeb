package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestLocalStreamsWholeAnswer(t *testing.T) {
	var b strings.Builder
	st, err := Local{ChunkSize: 5}.Generate(context.Background(), Request{
		Messages: []Message{{Role: "user", Text: "What is a slug?"}},
	}, func(s string) { b.WriteString(s) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.String() != st.Text || !strings.Contains(st.Text, "What is a slug?") {
		t.Fatalf("unexpected local answer %q", st.Text)
	}
}

type failing struct{ emit bool }

func (f failing) Generate(ctx context.Context, req Request, onText func(string)) (Step, error) {
	if f.emit {
		onText("half")
	}
	return Step{}, errors.New("down")
}

func TestFallbackOnlyBeforeFirstDelta(t *testing.T) {
	st, err := Fallback{Primary: failing{}, Secondary: Local{}}.Generate(context.Background(), Request{}, nil)
	if err != nil || st.Text == "" {
		t.Fatalf("expected secondary answer, got %q err=%v", st.Text, err)
	}

	_, err = Fallback{Primary: failing{emit: true}, Secondary: Local{}}.Generate(context.Background(), Request{}, func(string) {})
	if err == nil {
		t.Fatalf("expected primary error once text was emitted")
	}
}
