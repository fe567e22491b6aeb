// Package llm drives streamed model completions.
package llm

import (
	"context"
	"errors"
)

var (
	ErrUnavailable = errors.New("llm unavailable")
	ErrRateLimited = errors.New("llm rate limited")
	ErrDisabled    = errors.New("llm disabled via config")
)

// File is an attachment carried by a message.
type File struct {
	MediaType string
	URL       string
	Filename  string
}

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role  string // "user", "assistant" or "tool"
	Text  string
	Files []File

	// ToolCalls is set on assistant messages that invoked tools.
	ToolCalls []ToolCall
	// ToolCallID and ToolName are set on tool result messages.
	ToolCallID string
	ToolName   string
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Tool is a function the model may call. A nil Handler means the call is
// handled by the client that submitted the turn, not by the server.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     func(ctx context.Context, args map[string]any) (string, error)
}

// Request is a single completion request.
type Request struct {
	System   string
	Messages []Message
	Tools    []Tool
	// MaxSteps bounds model round trips when tools are present.
	MaxSteps int
}

// Step is the outcome of one model round trip.
type Step struct {
	Text      string
	ToolCalls []ToolCall
}

// Engine produces one streamed model step.
type Engine interface {
	// Generate streams a single step, calling onText for each text delta.
	Generate(ctx context.Context, req Request, onText func(string)) (Step, error)
}

// EventKind identifies what a stream Event carries.
type EventKind int

const (
	// KindText is an incremental text delta.
	KindText EventKind = iota
	// KindToolCall fires when the model invokes a tool.
	KindToolCall
	// KindToolResult fires after a server-side tool ran.
	KindToolResult
)

// Event is emitted by Run while a completion is in progress.
type Event struct {
	Kind       EventKind
	Text       string
	ToolCall   *ToolCall
	ToolResult string
}

// Result summarises a finished completion.
type Result struct {
	// Text is every text delta produced across all steps.
	Text  string
	Steps int
	// PendingToolCalls are client-handled calls that ended the completion.
	PendingToolCalls []ToolCall
}
