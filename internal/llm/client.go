// Package llm is the reasoning-oracle client. It speaks the OpenAI-compatible
// HTTP surface in two modes: synchronous chat completion (optionally forcing a
// JSON-object response) and asynchronous thread runs (submit once, poll until
// terminal). The oracle is non-deterministic and unreliable by nature; this
// client never retries — failures surface to the caller for the invocation.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Run states observed while polling an asynchronous run.
const (
	RunQueued     = "queued"
	RunInProgress = "in_progress"
	RunCompleted  = "completed"
	RunFailed     = "failed"
)

// Asynchronous polling budget: one poll per second, twenty polls, then give up.
const (
	pollInterval = time.Second
	pollAttempts = 20
)

// ErrRunTimeout reports a run that never reached a terminal state within the
// polling budget. The wrapped message carries the last observed status.
var ErrRunTimeout = errors.New("llm: run polling budget exhausted")

// ErrRunFailed reports a run that reached a failed or unexpected terminal state.
var ErrRunFailed = errors.New("llm: run failed")

// Client is an OpenAI-compatible reasoning-oracle client.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	assistant  string // assistant id for asynchronous thread runs
	label      string // component tag used in debug log lines
	httpClient *http.Client
	sleep      func(time.Duration) // injectable for tests; real sleep by default
}

// normalizeBaseURL strips trailing slashes and the "/chat/completions" suffix
// from a raw ORACLE_BASE_URL value so the path is never doubled when the
// client appends endpoint paths itself.
//
// Expectations:
//   - Strips a trailing "/chat/completions" suffix
//   - Strips a trailing slash without "/chat/completions"
//   - Strips trailing slash AND "/chat/completions" when both are present
//   - Returns the URL unchanged when neither suffix is present
//   - Returns "" for empty input
func normalizeBaseURL(raw string) string {
	s := strings.TrimRight(raw, "/")
	return strings.TrimSuffix(s, "/chat/completions")
}

// New creates a Client from the shared environment variables:
//
//	ORACLE_API_KEY, ORACLE_BASE_URL, ORACLE_MODEL, ORACLE_ASSISTANT_ID
func New() *Client {
	return NewTier("")
}

// NewTier creates a Client for a named tier (e.g. "RECONCILE", "REPLY").
// For each config key it first tries {prefix}_{KEY}; if unset it falls back
// to the shared ORACLE_{KEY}. An empty prefix reads only the shared vars,
// making it equivalent to New().
//
// Expectations:
//   - Uses {prefix}_API_KEY / _BASE_URL / _MODEL / _ASSISTANT_ID when set
//   - Falls back to ORACLE_* vars for any unset tier-specific var
//   - Empty prefix reads only ORACLE_* (identical to New())
func NewTier(prefix string) *Client {
	get := func(suffix, fallback string) string {
		if prefix != "" {
			if v := os.Getenv(prefix + "_" + suffix); v != "" {
				return v
			}
		}
		return os.Getenv(fallback)
	}
	label := prefix
	if label == "" {
		label = "ORACLE"
	}
	return &Client{
		baseURL:    normalizeBaseURL(get("BASE_URL", "ORACLE_BASE_URL")),
		apiKey:     get("API_KEY", "ORACLE_API_KEY"),
		model:      get("MODEL", "ORACLE_MODEL"),
		assistant:  get("ASSISTANT_ID", "ORACLE_ASSISTANT_ID"),
		label:      label,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		sleep:      time.Sleep,
	}
}

// WithSleeper replaces the poll-interval sleep. Tests inject a no-op so the
// full 20-attempt loop runs instantly.
func (c *Client) WithSleeper(sleep func(time.Duration)) *Client {
	c.sleep = sleep
	return c
}

type chatRequest struct {
	Model          string    `json:"model"`
	Messages       []chatMsg `json:"messages"`
	ResponseFormat any       `json:"response_format,omitempty"`
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Chat sends a system + user prompt and returns the assistant's text response.
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	return c.chat(ctx, system, user, nil)
}

// ChatJSON is Chat with response_format forced to a JSON object, for prompts
// whose contract is structured output.
func (c *Client) ChatJSON(ctx context.Context, system, user string) (string, error) {
	return c.chat(ctx, system, user, map[string]string{"type": "json_object"})
}

func (c *Client) chat(ctx context.Context, system, user string, responseFormat any) (string, error) {
	slog.Debug("["+c.label+"] dispatching chat completion",
		"system_len", len(system), "user_len", len(user), "json_mode", responseFormat != nil)

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMsg{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: responseFormat,
	}

	var chatResp chatResponse
	if err := c.post(ctx, "/chat/completions", payload, &chatResp); err != nil {
		return "", err
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("llm: API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("llm: no choices in response")
	}
	return chatResp.Choices[0].Message.Content, nil
}

// RunHandle identifies a submitted asynchronous run.
type RunHandle struct {
	ThreadID string
	RunID    string
}

// RunStatus is one poll observation.
type RunStatus struct {
	Status    string
	LastError string
}

type runObject struct {
	ID        string `json:"id"`
	ThreadID  string `json:"thread_id"`
	Status    string `json:"status"`
	LastError *struct {
		Message string `json:"message"`
	} `json:"last_error,omitempty"`
}

// SubmitRun creates a thread containing the instruction and starts a run on
// it. The returned handle is polled with PollRun or driven to completion with
// AwaitRun.
func (c *Client) SubmitRun(ctx context.Context, instruction string) (RunHandle, error) {
	payload := map[string]any{
		"assistant_id": c.assistant,
		"thread": map[string]any{
			"messages": []chatMsg{{Role: "user", Content: instruction}},
		},
	}
	var run runObject
	if err := c.post(ctx, "/threads/runs", payload, &run); err != nil {
		return RunHandle{}, err
	}
	slog.Debug("["+c.label+"] submitted run", "thread_id", run.ThreadID, "run_id", run.ID, "status", run.Status)
	return RunHandle{ThreadID: run.ThreadID, RunID: run.ID}, nil
}

// PollRun reads the run's current status once.
func (c *Client) PollRun(ctx context.Context, h RunHandle) (RunStatus, error) {
	var run runObject
	if err := c.get(ctx, "/threads/"+h.ThreadID+"/runs/"+h.RunID, &run); err != nil {
		return RunStatus{}, err
	}
	st := RunStatus{Status: run.Status}
	if run.LastError != nil {
		st.LastError = run.LastError.Message
	}
	return st, nil
}

// AwaitRun drives a submitted run to a terminal state and returns the latest
// oracle-authored message text.
//
// The loop is an explicit state machine: queued and in_progress keep polling,
// completed resolves the message text, failed (or any other terminal status)
// aborts. One poll per second, twenty polls; exhausting the budget returns
// ErrRunTimeout carrying the last observed status. No retries — an exceeded
// budget or failed run is fatal for the invocation.
//
// Expectations:
//   - Returns the newest assistant message on completed
//   - Wraps ErrRunFailed with the reported error message on failed
//   - Wraps ErrRunTimeout with the last status after 20 non-terminal polls
//   - Stops early when ctx is cancelled between polls
func (c *Client) AwaitRun(ctx context.Context, h RunHandle) (string, error) {
	last := RunStatus{Status: RunQueued}
	for attempt := 1; attempt <= pollAttempts; attempt++ {
		st, err := c.PollRun(ctx, h)
		if err != nil {
			return "", err
		}
		last = st
		switch st.Status {
		case RunQueued, RunInProgress:
			// non-terminal: keep polling
		case RunCompleted:
			return c.LatestAssistantText(ctx, h)
		case RunFailed:
			if st.LastError != "" {
				return "", fmt.Errorf("%w: %s", ErrRunFailed, st.LastError)
			}
			return "", ErrRunFailed
		default:
			// cancelled, expired, requires_action — all terminal for us
			return "", fmt.Errorf("%w: terminal status %q", ErrRunFailed, st.Status)
		}
		if attempt < pollAttempts {
			c.sleep(pollInterval)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			default:
			}
		}
	}
	if last.LastError != "" {
		return "", fmt.Errorf("%w: last status %q: %s", ErrRunTimeout, last.Status, last.LastError)
	}
	return "", fmt.Errorf("%w: last status %q", ErrRunTimeout, last.Status)
}

type messageList struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

// LatestAssistantText returns the newest assistant-authored message in the
// run's thread, read as plain text.
func (c *Client) LatestAssistantText(ctx context.Context, h RunHandle) (string, error) {
	var list messageList
	if err := c.get(ctx, "/threads/"+h.ThreadID+"/messages", &list); err != nil {
		return "", err
	}
	// The messages endpoint lists newest first.
	for _, m := range list.Data {
		if m.Role != "assistant" {
			continue
		}
		var sb strings.Builder
		for _, part := range m.Content {
			if part.Type == "text" || part.Type == "" {
				sb.WriteString(part.Text.Value)
			}
		}
		return sb.String(), nil
	}
	return "", fmt.Errorf("llm: no assistant message in thread %s", h.ThreadID)
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("llm: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("llm: create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("llm: create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("llm: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("llm: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llm: HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("llm: unmarshal response: %w", err)
	}
	return nil
}

// StripFences removes markdown code fences (```json ... ```) from oracle
// output. The oracle frequently wraps its JSON in fences despite the
// instruction; parsing must tolerate that noise.
//
// Expectations:
//   - Removes a ```json ... ``` wrapper
//   - Removes a bare ``` ... ``` wrapper
//   - Returns s unchanged (trimmed) when no fence is present
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		// Remove opening fence line
		idx := strings.Index(s, "\n")
		if idx != -1 {
			s = s[idx+1:]
		}
		// Remove closing fence
		if i := strings.LastIndex(s, "```"); i != -1 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
