package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/pkg/logger"
)

type flakyClient struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	tokens   []string
}

func (f *flakyClient) Name() string     { return "flaky" }
func (f *flakyClient) Models() []string { return nil }

func (f *flakyClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return &CompletionResponse{Content: "ok"}, nil
}

func (f *flakyClient) CompleteStream(ctx context.Context, req *CompletionRequest, cb StreamCallback) (*CompletionResponse, error) {
	f.mu.Lock()
	f.calls++
	calls := f.calls
	f.mu.Unlock()
	for i, tok := range f.tokens {
		if err := cb(tok, i); err != nil {
			return nil, err
		}
	}
	if calls <= f.failures {
		return nil, f.err
	}
	return &CompletionResponse{Content: strings.Join(f.tokens, "")}, nil
}

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{
		Timeout:         time.Second,
		Retries:         retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestRetryClientRecovers(t *testing.T) {
	t.Parallel()

	inner := &flakyClient{failures: 2, err: errors.New("connection reset")}
	c := NewRetryClient(inner, fastPolicy(3), logger.NewNop())

	resp, err := c.Complete(context.Background(), &CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "ok" || inner.calls != 3 {
		t.Fatalf("Complete() = %q after %d calls, want ok after 3", resp.Content, inner.calls)
	}
}

func TestRetryClientExhausted(t *testing.T) {
	t.Parallel()

	inner := &flakyClient{failures: 10, err: &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable, Message: "overloaded"}}
	c := NewRetryClient(inner, fastPolicy(2), logger.NewNop())

	_, err := c.Complete(context.Background(), &CompletionRequest{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Complete() error = %v, want ErrUnavailable", err)
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryClientStopsOnClientError(t *testing.T) {
	t.Parallel()

	inner := &flakyClient{failures: 10, err: &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "bad schema"}}
	c := NewRetryClient(inner, fastPolicy(3), logger.NewNop())

	if _, err := c.Complete(context.Background(), &CompletionRequest{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Complete() error = %v, want ErrUnavailable", err)
	}
	if inner.calls != 1 {
		t.Fatalf("calls = %d, want 1", inner.calls)
	}
}

func TestRetryClientDoesNotReplayStartedStream(t *testing.T) {
	t.Parallel()

	inner := &flakyClient{failures: 1, err: errors.New("stream broke"), tokens: []string{"Hel", "lo"}}
	c := NewRetryClient(inner, fastPolicy(3), logger.NewNop())

	var got []string
	_, err := c.CompleteStream(context.Background(), &CompletionRequest{}, func(tok string, _ int) error {
		got = append(got, tok)
		return nil
	})
	if err == nil {
		t.Fatal("CompleteStream() error = nil, want stream failure")
	}
	if inner.calls != 1 || len(got) != 2 {
		t.Fatalf("calls = %d tokens = %v, want one attempt with two tokens", inner.calls, got)
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{context.DeadlineExceeded, true},
		{context.Canceled, false},
		{&openai.APIError{HTTPStatusCode: 429}, true},
		{&openai.APIError{HTTPStatusCode: 401}, false},
		{&anthropic.Error{StatusCode: 529}, true},
		{&anthropic.Error{StatusCode: 400}, false},
		{errors.New("dial tcp: connection refused"), true},
	}
	for i, tt := range tests {
		if got := Retryable(tt.err); got != tt.want {
			t.Fatalf("Retryable(case %d) = %v, want %v", i, got, tt.want)
		}
	}
}

func TestOpenAIClientToolCalls(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "find_customer", "arguments": "{\"phone\":\"555-0456\"}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
		}`)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("test-key", srv.URL+"/v1")
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}

	resp, err := c.Complete(context.Background(), &CompletionRequest{
		System:   "be brief",
		Messages: []ChatMessage{{Role: "user", Content: "find me"}},
		Tools: []ToolDefinition{{
			Name:        "find_customer",
			Description: "Find a customer",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"phone":{"type":"string"}}}`),
		}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "find_customer" || resp.ToolCalls[0].ID != "call_1" {
		t.Fatalf("Complete() ToolCalls = %+v", resp.ToolCalls)
	}
	if string(resp.ToolCalls[0].Arguments) != `{"phone":"555-0456"}` {
		t.Fatalf("Arguments = %s", resp.ToolCalls[0].Arguments)
	}
	if resp.TokensIn != 12 || resp.TokensOut != 7 {
		t.Fatalf("tokens = %d/%d, want 12/7", resp.TokensIn, resp.TokensOut)
	}
	if body["tool_choice"] != "auto" {
		t.Fatalf("tool_choice = %v, want auto", body["tool_choice"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want system + user", len(msgs))
	}
}

func TestAnthropicClientToolUse(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [
				{"type": "text", "text": "Let me look that up."},
				{"type": "tool_use", "id": "toolu_1", "name": "find_customer", "input": {"email": "mike@citycoffee.com"}}
			],
			"stop_reason": "tool_use",
			"stop_sequence": null,
			"usage": {"input_tokens": 20, "output_tokens": 9}
		}`)
	}))
	defer srv.Close()

	c, err := NewAnthropicClient("test-key", srv.URL)
	if err != nil {
		t.Fatalf("NewAnthropicClient() error = %v", err)
	}

	resp, err := c.Complete(context.Background(), &CompletionRequest{
		System:     "be brief",
		Messages:   []ChatMessage{{Role: "user", Content: "I'm Mike"}},
		Tools:      []ToolDefinition{{Name: "find_customer", Parameters: json.RawMessage(`{"type":"object","properties":{"email":{"type":"string"}}}`)}},
		ToolChoice: ToolChoiceNone,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "Let me look that up." {
		t.Fatalf("Content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "toolu_1" {
		t.Fatalf("ToolCalls = %+v", resp.ToolCalls)
	}
	var args map[string]string
	if err := json.Unmarshal(resp.ToolCalls[0].Arguments, &args); err != nil || args["email"] != "mike@citycoffee.com" {
		t.Fatalf("Arguments = %s (%v)", resp.ToolCalls[0].Arguments, err)
	}
	choice, _ := body["tool_choice"].(map[string]any)
	if choice["type"] != "none" {
		t.Fatalf("tool_choice = %v, want none", body["tool_choice"])
	}
}

func TestToAnthropicMessagesGroupsToolResults(t *testing.T) {
	t.Parallel()

	msgs := toAnthropicMessages([]ChatMessage{
		{Role: "user", Content: "book me"},
		{Role: "assistant", ToolCalls: []model.ToolCall{
			{ID: "a", Name: "find_customer", Arguments: json.RawMessage(`{"phone":"1"}`)},
			{ID: "b", Name: "check_availability"},
		}},
		{Role: "tool", ToolCallID: "a", Content: `{"found":true}`},
		{Role: "tool", ToolCallID: "b", Content: `{"error":"x"}`, IsError: true},
		{Role: "user", Content: "thanks"},
	})

	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	roles := []anthropic.MessageParamRole{msgs[0].Role, msgs[1].Role, msgs[2].Role}
	want := []anthropic.MessageParamRole{anthropic.MessageParamRoleUser, anthropic.MessageParamRoleAssistant, anthropic.MessageParamRoleUser}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("roles = %v, want %v", roles, want)
		}
	}
	if len(msgs[1].Content) != 2 || len(msgs[2].Content) != 3 {
		t.Fatalf("block counts = %d/%d, want 2/3", len(msgs[1].Content), len(msgs[2].Content))
	}
}

func TestNewClientUnknownProvider(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Options{Provider: "mystery", APIKey: "k"}); err == nil {
		t.Fatal("NewClient() error = nil, want unknown provider")
	}
	if _, err := NewClient(Options{Provider: ProviderOpenAI}); err == nil {
		t.Fatal("NewClient() without key error = nil")
	}
}
