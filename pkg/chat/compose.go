package chat

import (
	"sort"
	"strings"

	"ChatKit/pkg/cache"
	"ChatKit/pkg/llm"
)

// MaxToolSteps bounds model round trips whenever any tool is offered.
const MaxToolSteps = 5

// SystemPrompt joins the configured base prompt and the caller's page
// context. Blank inputs are skipped; an empty result means no system message.
func SystemPrompt(base, pageContext string) string {
	var parts []string
	if s := strings.TrimSpace(base); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(pageContext); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n")
}

// toolSet returns the static tools plus the registry schemas the caller
// advertised in available. A page-aware schema is never offered unless its
// name is in available. Static tools win name clashes.
func (p *Pipeline) toolSet(available []string) []llm.Tool {
	out := append([]llm.Tool(nil), p.staticTools...)
	if p.registry == nil || len(available) == 0 {
		return out
	}

	names := normalizeNames(available)
	key := cache.KeyFromStrings(append([]string{"tools"}, names...)...)
	selected := p.toolCache.GetOrSet(key, p.toolCacheTTL, func() any {
		return p.registry.Select(names)
	}).([]llm.Tool)

	static := make(map[string]struct{}, len(out))
	for _, t := range out {
		static[t.Name] = struct{}{}
	}
	for _, t := range selected {
		if _, clash := static[t.Name]; !clash {
			out = append(out, t)
		}
	}
	return out
}

// stepBudget is MaxToolSteps when tools are present, else a single step.
func stepBudget(tools []llm.Tool) int {
	if len(tools) > 0 {
		return MaxToolSteps
	}
	return 1
}

func normalizeNames(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, n := range in {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
