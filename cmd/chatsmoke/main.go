// Command chatsmoke drives POST /chat against a running server and prints
// the streamed reply. Each argument is one user turn, sent in order on the
// same conversation.
//
// Environment:
//
//	CHATSMOKE_URL            base URL, default http://localhost:5000
//	CHATSMOKE_CONVERSATION   conversation id to continue; its stored history is loaded first
//	CHATSMOKE_PAGE_CONTEXT   page context sent with every turn
//	CHATSMOKE_TOOLS          comma separated page-aware tool names
//	CHATSMOKE_SUBJECT        mint a token for this subject with JWT_SECRET_KEY
//	CHATSMOKE_TIMEOUT_SEC    per turn timeout, default 120
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"ChatKit/middleware"
	"ChatKit/models"
	"ChatKit/pkg/chat"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: chatsmoke <message> [message...]")
		os.Exit(2)
	}

	base := strings.TrimRight(envOr("CHATSMOKE_URL", "http://localhost:5000"), "/")
	timeout := 120 * time.Second
	if s := strings.TrimSpace(os.Getenv("CHATSMOKE_TIMEOUT_SEC")); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			timeout = time.Duration(v) * time.Second
		}
	}

	var token string
	if sub := strings.TrimSpace(os.Getenv("CHATSMOKE_SUBJECT")); sub != "" {
		var err error
		token, err = middleware.IssueToken(os.Getenv("JWT_SECRET_KEY"), sub, nil)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to mint token")
		}
	}

	var tools []string
	for _, t := range strings.Split(os.Getenv("CHATSMOKE_TOOLS"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tools = append(tools, t)
		}
	}

	c := &client{base: base, token: token, http: &http.Client{}}
	req := chat.TurnRequest{
		ConversationID: os.Getenv("CHATSMOKE_CONVERSATION"),
		PageContext:    os.Getenv("CHATSMOKE_PAGE_CONTEXT"),
		AvailableTools: tools,
	}

	// continuing needs the stored history, or the server truncates it
	if req.ConversationID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		history, err := c.history(ctx, req.ConversationID)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("conversation_id", req.ConversationID).Msg("failed to load conversation")
		}
		req.Messages = history
		logger.Info().Int("messages", len(history)).Msg("continuing conversation")
	}

	if err := c.converse(req, os.Args[1:], timeout, os.Stdout, logger); err != nil {
		logger.Fatal().Err(err).Msg("turn failed")
	}
}

// converse sends each text as one user turn on the same conversation,
// carrying the streamed replies forward as history.
func (c *client) converse(req chat.TurnRequest, texts []string, timeout time.Duration, out io.Writer, logger zerolog.Logger) error {
	for i, text := range texts {
		req.Messages = append(req.Messages, chat.UIMessage{
			ID:    fmt.Sprintf("smoke-%d-%d", time.Now().UnixNano(), i),
			Role:  "user",
			Parts: []chat.Part{{Type: chat.PartText, Text: text}},
		})
		fmt.Fprintf(out, "> %s\n", text)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		start := time.Now()
		res, err := c.turn(ctx, req, out)
		cancel()
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		fmt.Fprintln(out)
		logger.Info().
			Str("conversation_id", res.conversationID).
			Str("finish", res.finishReason).
			Int("tool_calls", res.toolCalls).
			Dur("duration", time.Since(start)).
			Msg("turn done")

		req.ConversationID = res.conversationID
		req.Messages = append(req.Messages, chat.UIMessage{
			Role:  "assistant",
			Parts: []chat.Part{{Type: chat.PartText, Text: res.text}},
		})
	}
	return nil
}

type client struct {
	base  string
	token string
	http  *http.Client
}

type turnResult struct {
	conversationID string
	finishReason   string
	text           string
	toolCalls      int
}

// turn posts one request and copies text deltas to out as they arrive.
func (c *client) turn(ctx context.Context, req chat.TurnRequest, out io.Writer) (turnResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return turnResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/chat", bytes.NewReader(body))
	if err != nil {
		return turnResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return turnResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return turnResult{}, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	res := turnResult{conversationID: resp.Header.Get("X-Conversation-Id")}
	var text strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var ev chat.Event
		if err := json.Unmarshal([]byte(strings.TrimSpace(line[5:])), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case chat.EventDelta:
			text.WriteString(ev.Text)
			fmt.Fprint(out, ev.Text)
		case chat.EventToolCall:
			res.toolCalls++
			if ev.ToolCall != nil {
				fmt.Fprintf(out, "\n[tool-call %s %v]\n", ev.ToolCall.Name, ev.ToolCall.Args)
			}
		case chat.EventToolResult:
			fmt.Fprintf(out, "\n[tool-result %s]\n", ev.Result)
		case chat.EventError:
			fmt.Fprintf(out, "\n[error %s]\n", ev.Text)
		case chat.EventDone:
			res.finishReason = ev.FinishReason
			if ev.ConversationID != "" {
				res.conversationID = ev.ConversationID
			}
		}
	}
	res.text = text.String()
	return res, scanner.Err()
}

// history loads the stored messages of a conversation. A conversation
// that does not exist yet starts empty.
func (c *client) history(ctx context.Context, id string) ([]chat.UIMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/chat/conversations/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var conv models.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	out := make([]chat.UIMessage, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		out = append(out, chat.FromStored(m))
	}
	return out, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
