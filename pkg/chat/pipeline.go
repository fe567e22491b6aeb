// Package chat implements the conversational message pipeline: it
// reconciles a client's message list with stored history, streams a model
// completion and records the result.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"ChatKit/pkg/cache"
	"ChatKit/pkg/llm"
	"ChatKit/pkg/store"
	"ChatKit/pkg/tools"

	"github.com/rs/zerolog"
)

const (
	defaultCompletionTimeout = 2 * time.Minute
	defaultToolCacheTTL      = 10 * time.Minute
	recordTimeout            = 15 * time.Second
	maxTitleRunes            = 100
	defaultTitle             = "New conversation"
)

// Config wires a Pipeline. Engine is required; Store is required in
// persistent mode.
type Config struct {
	Mode   Mode
	Store  store.Store
	Engine llm.Engine
	// Identity, when set, scopes persistent conversations to the resolved
	// user and rejects anonymous callers. When nil, conversations are
	// shared by every caller.
	Identity IdentityFunc
	Hooks    Hooks

	SystemPrompt string
	StaticTools  []llm.Tool
	Registry     *tools.Registry
	ToolCache    *cache.Cache
	ToolCacheTTL time.Duration

	// CompletionTimeout bounds a generation, which runs detached from the
	// request so it finishes even if the client disconnects.
	CompletionTimeout time.Duration
	Logger            zerolog.Logger
	Now               func() time.Time
}

// Pipeline is constructed once per process and shared by all requests.
// It holds no per-request state.
type Pipeline struct {
	mode         Mode
	store        store.Store
	engine       llm.Engine
	identity     IdentityFunc
	hooks        Hooks
	dispatch     dispatcher
	systemPrompt string
	staticTools  []llm.Tool
	registry     *tools.Registry
	toolCache    *cache.Cache
	toolCacheTTL time.Duration
	timeout      time.Duration
	logger       zerolog.Logger
	now          func() time.Time

	inflight sync.WaitGroup
}

func New(cfg Config) (*Pipeline, error) {
	if cfg.Engine == nil {
		return nil, errors.New("chat: completion engine is required")
	}
	if cfg.Mode == ModePersistent && cfg.Store == nil {
		return nil, errors.New("chat: persistent mode requires a store")
	}
	p := &Pipeline{
		mode:         cfg.Mode,
		store:        cfg.Store,
		engine:       cfg.Engine,
		identity:     cfg.Identity,
		hooks:        cfg.Hooks,
		systemPrompt: cfg.SystemPrompt,
		staticTools:  cfg.StaticTools,
		registry:     cfg.Registry,
		toolCache:    cfg.ToolCache,
		toolCacheTTL: cfg.ToolCacheTTL,
		timeout:      cfg.CompletionTimeout,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}
	if p.mode == ModeStateless {
		p.store = nil
		p.identity = nil
	}
	if p.hooks == nil {
		p.hooks = NopHooks{}
	}
	if p.toolCacheTTL <= 0 {
		p.toolCacheTTL = defaultToolCacheTTL
	}
	if p.timeout <= 0 {
		p.timeout = defaultCompletionTimeout
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}
	p.dispatch = dispatcher{hooks: p.hooks, logger: p.logger}

	if p.mode == ModePersistent && p.identity == nil {
		p.logger.Warn().Msg("persistent chat without identity resolver: token subjects are ignored and conversations are visible to every caller")
	}
	return p, nil
}

// Mode reports the configured mode.
func (p *Pipeline) Mode() Mode { return p.mode }

// Wait blocks until every in-flight completion has been recorded or ctx is
// done. Call it during shutdown after the HTTP server stopped accepting
// requests.
func (p *Pipeline) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fail reports a pre-stream error to OnError and returns it unchanged.
func (p *Pipeline) fail(ctx context.Context, op Operation, err error) error {
	p.dispatch.reportError(ctx, op, err)
	return err
}
