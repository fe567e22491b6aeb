package tools

import (
	"context"
	"fmt"
	"time"

	"ChatKit/pkg/llm"
)

// CurrentTime is a server-side tool reporting the current time, optionally
// in a named IANA zone.
func CurrentTime(now func() time.Time) llm.Tool {
	if now == nil {
		now = time.Now
	}
	return llm.Tool{
		Name:        "current_time",
		Description: "Get the current date and time. Optionally pass an IANA time zone such as Europe/Berlin.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{
					"type":        "string",
					"description": "IANA time zone name; defaults to UTC",
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			loc := time.UTC
			if tz, _ := args["timezone"].(string); tz != "" {
				l, err := time.LoadLocation(tz)
				if err != nil {
					return "", fmt.Errorf("unknown time zone %q", tz)
				}
				loc = l
			}
			return now().In(loc).Format(time.RFC3339), nil
		},
	}
}
