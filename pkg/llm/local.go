package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Local is an offline engine that streams a canned, structured answer built
// from the last user message. It never calls tools.
type Local struct {
	// ChunkSize is the number of runes per delta; 0 means 24.
	ChunkSize int
	// Delay is the pause between deltas.
	Delay time.Duration
}

func (l Local) Generate(ctx context.Context, req Request, onText func(string)) (Step, error) {
	full := []rune(localAnswer(req))
	size := l.ChunkSize
	if size <= 0 {
		size = 24
	}
	var out strings.Builder
	for i := 0; i < len(full); i += size {
		if err := ctx.Err(); err != nil {
			return Step{Text: out.String()}, err
		}
		end := i + size
		if end > len(full) {
			end = len(full)
		}
		part := string(full[i:end])
		out.WriteString(part)
		if onText != nil {
			onText(part)
		}
		if l.Delay > 0 {
			sleepWithContext(ctx, l.Delay)
		}
	}
	return Step{Text: out.String()}, nil
}

func localAnswer(req Request) string {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = strings.TrimSpace(req.Messages[i].Text)
			break
		}
	}
	if last == "" {
		last = "your question"
	}
	b := &strings.Builder{}
	fmt.Fprintf(b, "Summary for: %s\n\n", truncate(last, 80))
	fmt.Fprintln(b, "- The language model is not configured, so this is an offline answer.")
	if len(req.Tools) > 0 {
		names := make([]string, 0, len(req.Tools))
		for _, t := range req.Tools {
			names = append(names, t.Name)
		}
		fmt.Fprintf(b, "- Tools available on this page: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintln(b, "- Configure GEMINI_API_KEY and IS_GEMINI_ENABLED=1 for real completions.")
	return b.String()
}

// Fallback streams from Primary and switches to Secondary when Primary fails
// before producing any text.
type Fallback struct {
	Primary   Engine
	Secondary Engine
}

func (f Fallback) Generate(ctx context.Context, req Request, onText func(string)) (Step, error) {
	emitted := false
	st, err := f.Primary.Generate(ctx, req, func(s string) {
		emitted = true
		if onText != nil {
			onText(s)
		}
	})
	if err == nil || emitted || ctx.Err() != nil {
		return st, err
	}
	return f.Secondary.Generate(ctx, req, onText)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
