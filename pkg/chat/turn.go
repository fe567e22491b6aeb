package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ChatKit/models"
	"ChatKit/pkg/llm"
	"ChatKit/pkg/metrics"
	"ChatKit/pkg/store"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// TurnRequest is the body of POST /chat.
type TurnRequest struct {
	Messages       []UIMessage `json:"messages"`
	ConversationID string      `json:"conversationId,omitempty"`
	PageContext    string      `json:"pageContext,omitempty"`
	AvailableTools []string    `json:"availableTools,omitempty"`
}

// TurnState tracks a turn through Preparing → Streaming → Completed|Aborted.
type TurnState int

const (
	StatePreparing TurnState = iota
	StateStreaming
	StateCompleted
	StateAborted
)

func (s TurnState) String() string {
	switch s {
	case StatePreparing:
		return "preparing"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	default:
		return "aborted"
	}
}

// EventType names stream events sent to the client.
type EventType string

const (
	EventDelta      EventType = "delta"
	EventToolCall   EventType = "tool-call"
	EventToolResult EventType = "tool-result"
	EventError      EventType = "error"
	EventDone       EventType = "done"
)

// Event is one element of a turn's output stream.
type Event struct {
	Type           EventType     `json:"type"`
	Text           string        `json:"text,omitempty"`
	ToolCall       *llm.ToolCall `json:"toolCall,omitempty"`
	Result         string        `json:"result,omitempty"`
	ConversationID string        `json:"conversationId,omitempty"`
	// FinishReason is set on done: "stop", "tool-calls" or "error".
	FinishReason string `json:"finishReason,omitempty"`
}

// Turn is a prepared chat turn. Storage already reflects the client's
// history; Start runs the completion.
type Turn struct {
	// ConversationID is empty in stateless mode.
	ConversationID string
	Identity       string
	Plan           Plan

	p      *Pipeline
	ctx    context.Context
	req    llm.Request
	logger zerolog.Logger

	mu    sync.Mutex
	state TurnState

	events   chan Event
	gone     chan struct{}
	goneOnce sync.Once
	started  bool
}

// StartTurn validates the request, authorizes it and, in persistent mode,
// reconciles and writes the client's history. Errors returned here happen
// before any byte of the response is written.
func (p *Pipeline) StartTurn(ctx context.Context, req TurnRequest) (*Turn, error) {
	const op = OpChat
	ui, err := validateMessages(req.Messages)
	if err != nil {
		return nil, p.fail(ctx, op, err)
	}

	t := &Turn{p: p, ctx: ctx, state: StatePreparing}

	var identity string
	if p.mode == ModePersistent {
		if identity, err = p.resolveIdentity(ctx); err != nil {
			return nil, p.fail(ctx, op, err)
		}
	}
	t.Identity = identity

	ev := ChatEvent{
		Identity:       identity,
		ConversationID: strings.TrimSpace(req.ConversationID),
		Text:           ExtractText(ui[len(ui)-1]),
		Messages:       ui,
		PageContext:    req.PageContext,
		AvailableTools: req.AvailableTools,
	}
	if p.mode == ModeStateless {
		ev.ConversationID = ""
	}
	if err := p.dispatch.authorize(op, func() Decision { return p.hooks.BeforeChat(ctx, ev) }); err != nil {
		return nil, p.fail(ctx, op, err)
	}

	var history []llm.Message
	if p.mode == ModeStateless {
		t.Plan = Plan{Kind: "stateless"}
		for _, m := range ui {
			history = append(history, toLLMMessage(m))
		}
	} else {
		stored, err := p.prepareHistory(ctx, t, ev.ConversationID, ui)
		if err != nil {
			return nil, p.fail(ctx, op, err)
		}
		for _, m := range stored {
			history = append(history, toLLMMessage(FromStored(m)))
		}
	}

	toolset := p.toolSet(req.AvailableTools)
	t.req = llm.Request{
		System:   SystemPrompt(p.systemPrompt, req.PageContext),
		Messages: history,
		Tools:    toolset,
		MaxSteps: stepBudget(toolset),
	}
	t.logger = p.logger.With().
		Str("conversation_id", t.ConversationID).
		Str("plan", string(t.Plan.Kind)).
		Logger()
	metrics.TurnsTotal.WithLabelValues(p.mode.String(), string(t.Plan.Kind)).Inc()
	return t, nil
}

// prepareHistory loads or creates the conversation, reconciles and applies
// the plan, and returns the history the completion is grounded on.
func (p *Pipeline) prepareHistory(ctx context.Context, t *Turn, convID string, ui []UIMessage) ([]models.Message, error) {
	if err := validateConversationID(convID); err != nil {
		return nil, err
	}
	now := p.now()

	var conv *models.Conversation
	var stored []models.Message
	isNew := false
	if convID != "" {
		existing, err := p.store.GetConversation(ctx, convID)
		switch {
		case err == nil:
			if err := checkOwnership(t.Identity, existing.UserID); err != nil {
				return nil, err
			}
			conv = existing
			if stored, err = p.store.ListMessages(ctx, conv.ID); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
			}
		case errors.Is(err, store.ErrNotFound):
			// client generated id for a conversation it has not saved yet
		default:
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	}
	if conv == nil {
		isNew = true
		if convID == "" {
			convID = uuid.NewString()
		}
		conv = &models.Conversation{
			ID:        convID,
			UserID:    t.Identity,
			Title:     titleFor(ui),
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	plan := Reconcile(ui, stored)
	history, err := applyPlan(ctx, p.store, conv, isNew, plan, now)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			metrics.VersionConflicts.Inc()
		}
		return nil, err
	}
	metrics.MessagesDeleted.Add(float64(len(plan.ToDelete)))
	t.ConversationID = conv.ID
	t.Plan = plan
	return history, nil
}

// State reports the current turn state.
func (t *Turn) State() TurnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Turn) setState(s TurnState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Start launches the completion in the background and returns its event
// stream, which is closed after the done event. The completion and the
// recording of its result run detached from the request context, so a
// client disconnect does not lose the turn: generation runs to completion
// and the full reply is stored. Start may be called once.
func (t *Turn) Start() <-chan Event {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		panic("chat: Turn.Start called twice")
	}
	t.started = true
	t.state = StateStreaming
	t.events = make(chan Event, 64)
	t.gone = make(chan struct{})
	t.mu.Unlock()

	t.p.inflight.Add(1)
	go t.run()
	return t.events
}

// Detach tells the turn nobody reads its events any more. The completion
// keeps running and is still recorded.
func (t *Turn) Detach() {
	t.goneOnce.Do(func() {
		if t.gone != nil {
			close(t.gone)
		}
	})
}

func (t *Turn) send(ev Event) {
	select {
	case t.events <- ev:
	case <-t.gone:
	}
}

func (t *Turn) run() {
	defer t.p.inflight.Done()
	defer close(t.events)

	started := time.Now()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(t.ctx), t.p.timeout)
	defer cancel()

	res, err := llm.Run(ctx, t.p.engine, t.req, func(ev llm.Event) {
		switch ev.Kind {
		case llm.KindText:
			metrics.TokensStreamed.Inc()
			t.send(Event{Type: EventDelta, Text: ev.Text})
		case llm.KindToolCall:
			t.send(Event{Type: EventToolCall, ToolCall: ev.ToolCall})
		case llm.KindToolResult:
			t.send(Event{Type: EventToolResult, ToolCall: ev.ToolCall, Result: ev.ToolResult})
		}
	})

	state := StateCompleted
	finish := "stop"
	if err != nil {
		state = StateAborted
		finish = "error"
		t.logger.Error().Err(err).Msg("completion failed")
	} else if len(res.PendingToolCalls) > 0 {
		finish = "tool-calls"
	}

	if t.p.mode == ModePersistent {
		// the generation deadline may already have fired
		rctx, rcancel := context.WithTimeout(context.WithoutCancel(t.ctx), recordTimeout)
		t.record(rctx, res.Text)
		rcancel()
	}

	t.setState(state)
	metrics.TurnOutcomes.WithLabelValues(state.String()).Inc()
	metrics.StreamDuration.Observe(time.Since(started).Seconds())
	t.logger.Info().
		Str("state", state.String()).
		Int("steps", res.Steps).
		Dur("duration", time.Since(started)).
		Msg("turn finished")

	if err != nil {
		t.send(Event{Type: EventError, Text: "generation failed"})
	}
	t.send(Event{Type: EventDone, ConversationID: t.ConversationID, FinishReason: finish})
}

// record stores the assistant reply, bumps the conversation and runs the
// AfterChat hook. The response is already committed, so failures are
// logged and reported to OnError only.
func (t *Turn) record(ctx context.Context, reply string) {
	fail := func(err error) {
		metrics.PostCompletionFailures.Inc()
		err = fmt.Errorf("%w: %v", ErrPostCompletion, err)
		t.logger.Error().Err(err).Msg("post-completion failure")
		t.p.dispatch.reportError(ctx, OpChat, err)
	}
	defer func() {
		if r := recover(); r != nil {
			fail(fmt.Errorf("panic: %v", r))
		}
	}()

	parts := []Part{}
	if reply != "" {
		parts = append(parts, Part{Type: PartText, Text: reply})
	}
	now := t.p.now()
	msg := &models.Message{
		ID:             ulid.Make().String(),
		ConversationID: t.ConversationID,
		Role:           models.RoleAssistant,
		Content:        serializeParts(parts),
		CreatedAt:      now,
	}
	if err := t.p.store.CreateMessage(ctx, msg); err != nil {
		fail(fmt.Errorf("save assistant message: %w", err))
		return
	}
	if err := t.p.store.TouchConversation(ctx, t.ConversationID, now); err != nil {
		fail(fmt.Errorf("touch conversation: %w", err))
		return
	}
	history, err := t.p.store.ListMessages(ctx, t.ConversationID)
	if err != nil {
		fail(fmt.Errorf("reload messages: %w", err))
		return
	}
	ev := AfterChatEvent{
		Identity:       t.Identity,
		ConversationID: t.ConversationID,
		Reply:          reply,
		Messages:       history,
	}
	t.p.dispatch.after(ctx, OpChat, func() error { return t.p.hooks.AfterChat(ctx, ev) })
}

// validateMessages rejects empty or malformed lists and drops system
// messages, which are never persisted or replayed.
func validateMessages(in []UIMessage) ([]UIMessage, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: messages are required", ErrValidation)
	}
	out := make([]UIMessage, 0, len(in))
	for i, m := range in {
		switch m.Role {
		case models.RoleUser, models.RoleAssistant:
			out = append(out, m)
		case RoleSystem:
		default:
			return nil, fmt.Errorf("%w: message %d has unsupported role %q", ErrValidation, i, m.Role)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: messages are required", ErrValidation)
	}
	return out, nil
}
