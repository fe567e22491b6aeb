package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	fallbackGeminiModel  = "gemini-2.0-flash"
)

// GeminiConfig configures the Gemini streaming client.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Enabled bool
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL    string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Gemini streams completions from the Gemini generateContent API.
type Gemini struct {
	apiKey  string
	models  []string
	enabled bool
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

func NewGemini(cfg GeminiConfig) *Gemini {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	models := []string{}
	for _, m := range []string{cfg.Model, fallbackGeminiModel} {
		m = strings.TrimSpace(m)
		if m != "" && (len(models) == 0 || models[0] != m) {
			models = append(models, m)
		}
	}
	return &Gemini{
		apiKey:  cfg.APIKey,
		models:  models,
		enabled: cfg.Enabled,
		baseURL: baseURL,
		client:  client,
		logger:  cfg.Logger,
	}
}

// Generate implements Engine. Models are tried in order; a retriable
// failure is retried once after a short pause, but only if nothing has been
// streamed yet.
func (g *Gemini) Generate(ctx context.Context, req Request, onText func(string)) (Step, error) {
	if !g.enabled {
		return Step{}, ErrDisabled
	}
	if strings.TrimSpace(g.apiKey) == "" {
		return Step{}, fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrUnavailable)
	}

	body, err := json.Marshal(buildGeminiRequest(req))
	if err != nil {
		return Step{}, fmt.Errorf("encode gemini request: %w", err)
	}

	emitted := false
	relay := func(s string) {
		emitted = true
		if onText != nil {
			onText(s)
		}
	}

	var errs []error
	for _, m := range g.models {
		st, err := g.streamGenerate(ctx, m, body, relay)
		if err != nil && !emitted && isRetriable(err) {
			sleepWithContext(ctx, 2*time.Second)
			st, err = g.streamGenerate(ctx, m, body, relay)
		}
		if err == nil || emitted {
			return st, err
		}
		g.logger.Warn().Err(err).Str("model", m).Msg("gemini stream failed")
		errs = append(errs, fmt.Errorf("%s: %w", m, err))
		if ctx.Err() != nil {
			break
		}
	}
	return Step{}, fmt.Errorf("all gemini models failed: %w", errors.Join(errs...))
}

func (g *Gemini) streamGenerate(ctx context.Context, model string, body []byte, onText func(string)) (Step, error) {
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", g.baseURL, model)
	g.logger.Debug().Str("model", model).Msg("gemini streaming request")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Step{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return Step{}, fmt.Errorf("%w: http error: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Step{}, statusError(resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var st Step
	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), "data:") {
			line = strings.TrimSpace(line[5:])
		}
		var chunk geminiResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		for _, p := range chunk.Candidates[0].Content.Parts {
			if p.Text != "" {
				full.WriteString(p.Text)
				onText(p.Text)
			}
			if p.FunctionCall != nil {
				st.ToolCalls = append(st.ToolCalls, ToolCall{
					ID:   fmt.Sprintf("call_%d", len(st.ToolCalls)+1),
					Name: p.FunctionCall.Name,
					Args: p.FunctionCall.Args,
				})
			}
		}
	}
	st.Text = full.String()
	if err := scanner.Err(); err != nil {
		return st, fmt.Errorf("stream read error: %w", err)
	}
	return st, nil
}

// wire types

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FileData         *geminiFileData         `json:"fileData,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	Tools             []geminiTool    `json:"tools,omitempty"`
	GenerationConfig  map[string]any  `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func buildGeminiRequest(req Request) geminiRequest {
	out := geminiRequest{
		Contents: make([]geminiContent, 0, len(req.Messages)),
		GenerationConfig: map[string]any{
			"temperature":     0.6,
			"maxOutputTokens": 2048,
			"topK":            40,
			"topP":            0.9,
		},
	}
	if strings.TrimSpace(req.System) != "" {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	for _, m := range req.Messages {
		out.Contents = append(out.Contents, toGeminiContent(m))
	}
	if len(req.Tools) > 0 {
		decls := make([]geminiFunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, geminiFunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
		out.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}
	return out
}

func toGeminiContent(m Message) geminiContent {
	switch m.Role {
	case "tool":
		return geminiContent{Role: "user", Parts: []geminiPart{{
			FunctionResponse: &geminiFunctionResponse{
				Name:     m.ToolName,
				Response: map[string]any{"content": m.Text},
			},
		}}}
	case "assistant":
		c := geminiContent{Role: "model"}
		if m.Text != "" {
			c.Parts = append(c.Parts, geminiPart{Text: m.Text})
		}
		for _, call := range m.ToolCalls {
			c.Parts = append(c.Parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: call.Name, Args: call.Args}})
		}
		if len(c.Parts) == 0 {
			c.Parts = []geminiPart{{Text: ""}}
		}
		return c
	default:
		c := geminiContent{Role: "user"}
		if m.Text != "" || len(m.Files) == 0 {
			c.Parts = append(c.Parts, geminiPart{Text: m.Text})
		}
		for _, f := range m.Files {
			c.Parts = append(c.Parts, geminiPart{FileData: &geminiFileData{MimeType: f.MediaType, FileURI: f.URL}})
		}
		return c
	}
}

func statusError(code int, body string) error {
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", ErrRateLimited, code, body)
	case code == http.StatusServiceUnavailable || code >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, code, body)
	default:
		return fmt.Errorf("status %d: %s", code, body)
	}
}

func isRetriable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
