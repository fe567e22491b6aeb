package llm

import (
	"context"
	"fmt"
	"strings"
)

// Run drives eng through up to req.MaxSteps round trips, executing
// server-side tools between steps. It stops early when the model answers
// without tool calls or calls a client-handled tool. On error the returned
// Result holds whatever text was produced before the failure.
func Run(ctx context.Context, eng Engine, req Request, emit func(Event)) (Result, error) {
	if emit == nil {
		emit = func(Event) {}
	}
	maxSteps := req.MaxSteps
	if maxSteps < 1 || len(req.Tools) == 0 {
		maxSteps = 1
	}
	byName := make(map[string]Tool, len(req.Tools))
	for _, t := range req.Tools {
		byName[t.Name] = t
	}

	var full strings.Builder
	var res Result
	msgs := append([]Message(nil), req.Messages...)

	for step := 1; step <= maxSteps; step++ {
		res.Steps = step
		stepReq := req
		stepReq.Messages = msgs
		st, err := eng.Generate(ctx, stepReq, func(delta string) {
			if delta == "" {
				return
			}
			full.WriteString(delta)
			emit(Event{Kind: KindText, Text: delta})
		})
		res.Text = full.String()
		if err != nil {
			return res, err
		}
		if len(st.ToolCalls) == 0 {
			return res, nil
		}

		msgs = append(msgs, Message{Role: "assistant", Text: st.Text, ToolCalls: st.ToolCalls})
		for i := range st.ToolCalls {
			call := st.ToolCalls[i]
			emit(Event{Kind: KindToolCall, ToolCall: &call})

			tool, ok := byName[call.Name]
			switch {
			case !ok:
				msgs = append(msgs, toolMessage(call, fmt.Sprintf("error: unknown tool %q", call.Name)))
			case tool.Handler == nil:
				res.PendingToolCalls = append(res.PendingToolCalls, call)
			default:
				out, err := tool.Handler(ctx, call.Args)
				if err != nil {
					out = "error: " + err.Error()
				}
				emit(Event{Kind: KindToolResult, ToolCall: &call, ToolResult: out})
				msgs = append(msgs, toolMessage(call, out))
			}
		}
		if len(res.PendingToolCalls) > 0 {
			return res, nil
		}
	}
	return res, nil
}

func toolMessage(call ToolCall, out string) Message {
	return Message{Role: "tool", ToolCallID: call.ID, ToolName: call.Name, Text: out}
}
