package chat

import (
	"testing"
	"time"

	"ChatKit/pkg/cache"
	"ChatKit/pkg/llm"
	"ChatKit/pkg/tools"
)

func TestSystemPrompt(t *testing.T) {
	tests := []struct {
		base, page, want string
	}{
		{"", "", ""},
		{"You are helpful.", "", "You are helpful."},
		{"", "  Page: /cart ", "Page: /cart"},
		{"You are helpful.", "Page: /cart", "You are helpful.\n\nPage: /cart"},
		{"   ", "\n", ""},
	}
	for _, tc := range tests {
		if got := SystemPrompt(tc.base, tc.page); got != tc.want {
			t.Fatalf("SystemPrompt(%q, %q) = %q, want %q", tc.base, tc.page, got, tc.want)
		}
	}
}

func toolNames(ts []llm.Tool) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Name)
	}
	return out
}

func TestToolSetOffersOnlyAdvertisedPageTools(t *testing.T) {
	c := cache.New(10, 0)
	defer c.Stop()
	p := newTestPipeline(t, Config{
		Mode:        ModeStateless,
		StaticTools: []llm.Tool{tools.CurrentTime(time.Now)},
		Registry:    tools.NewRegistry(),
		ToolCache:   c,
	})

	if got := toolNames(p.toolSet(nil)); len(got) != 1 || got[0] != "current_time" {
		t.Fatalf("without advertised tools got %v", got)
	}

	got := toolNames(p.toolSet([]string{"submit_form", "navigate", "navigate", "does_not_exist"}))
	want := []string{"current_time", "navigate", "submit_form"}
	if len(got) != len(want) {
		t.Fatalf("toolSet = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("toolSet = %v, want %v", got, want)
		}
	}
	if c.Len() != 1 {
		t.Fatalf("expected one memoised tool set, got %d", c.Len())
	}

	// same allow-list in another order hits the cache
	p.toolSet([]string{"navigate", "submit_form"})
	if c.Len() != 1 {
		t.Fatalf("expected cache hit, cache has %d entries", c.Len())
	}
}

func TestStepBudget(t *testing.T) {
	if got := stepBudget(nil); got != 1 {
		t.Fatalf("stepBudget(nil) = %d", got)
	}
	if got := stepBudget([]llm.Tool{{Name: "x"}}); got != MaxToolSteps {
		t.Fatalf("stepBudget(tools) = %d", got)
	}
}
