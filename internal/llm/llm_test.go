package llm

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

func TestCalculateCost(t *testing.T) {
	tests := []struct {
		model  string
		input  int
		output int
	}{
		{"claude-3-5-sonnet-20241022", 1200, 350},
		{"claude-3-5-haiku-20241022", 1_000_000, 1_000_000},
		{"gpt-4o-mini", 0, 77},
		{"gemini-2.0-flash", 123456, 654321},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			r := CostRates[tt.model]
			want := (float64(tt.input)/1e6)*r.InputPer1M + (float64(tt.output)/1e6)*r.OutputPer1M

			got, ok := CalculateCost(tt.model, tt.input, tt.output)
			require.True(t, ok)
			assert.InDelta(t, want, got, 1e-9)
		})
	}

	got, ok := CalculateCost("claude-3-5-haiku-20241022", 1_000_000, 1_000_000)
	require.True(t, ok)
	assert.True(t, math.Abs(got-4.80) < 1e-9)

	got, ok = CalculateCost("unknown-model", 10, 10)
	assert.False(t, ok)
	assert.Zero(t, got)
}

func TestExtractTokenUsage(t *testing.T) {
	fromUsage := &domain.LLMResponse{UsageMetadata: &domain.TokenUsage{Input: 10, Output: 4}}
	assert.Equal(t, domain.TokenUsage{Input: 10, Output: 4}, ExtractTokenUsage(fromUsage))

	fromMeta := &domain.LLMResponse{ResponseMetadata: map[string]any{
		"usage": map[string]any{"input_tokens": float64(30), "output_tokens": 12},
	}}
	assert.Equal(t, domain.TokenUsage{Input: 30, Output: 12}, ExtractTokenUsage(fromMeta))

	assert.Equal(t, domain.TokenUsage{}, ExtractTokenUsage(&domain.LLMResponse{}))
	assert.Equal(t, domain.TokenUsage{}, ExtractTokenUsage(nil))
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Status string `json:"status"`
	}
	require.NoError(t, DecodeJSON("```json\n{\"status\":\"approved\"}\n```", &out))
	assert.Equal(t, "approved", out.Status)

	out.Status = ""
	require.NoError(t, DecodeJSON("Here you go: {\"status\":\"rejected\"} hope it helps", &out))
	assert.Equal(t, "rejected", out.Status)

	assert.Error(t, DecodeJSON("no json at all", &out))
}

func TestPickModel(t *testing.T) {
	assert.Equal(t, "claude-3-5-sonnet-20241022", pickModel("claude-3-5-sonnet-20241022", anthropicModel, "claude"))
	assert.Equal(t, chatModel, pickModel("claude-3-5-sonnet-20241022", chatModel, "gpt"))
	assert.Equal(t, geminiModel, pickModel("", geminiModel, "gemini"))
}

func TestRetryingClient_RetriesTransientFailures(t *testing.T) {
	mock := NewMockClient()
	mock.FailNext(domain.AgentStructurer, errors.New("connection reset"), &StatusError{Provider: "anthropic", Code: 529})
	mock.Enqueue(domain.AgentStructurer, `{"structured_question":"q"}`)

	c := NewRetryingClient(mock, RetryConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond}, zap.NewNop())
	resp, err := c.Invoke(context.Background(), domain.LLMRequest{Agent: domain.AgentStructurer})
	require.NoError(t, err)
	assert.Equal(t, `{"structured_question":"q"}`, resp.Content)
	assert.Equal(t, 3, mock.CallCount(domain.AgentStructurer))
}

func TestRetryingClient_Exhausted(t *testing.T) {
	mock := NewMockClient()
	boom := errors.New("boom")
	mock.FailNext(domain.AgentOrchestrator, boom, boom, boom, boom)

	c := NewRetryingClient(mock, RetryConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond}, zap.NewNop())
	_, err := c.Invoke(context.Background(), domain.LLMRequest{Agent: domain.AgentOrchestrator})

	var ie *InvocationError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, domain.AgentOrchestrator, ie.Agent)
	assert.Equal(t, 3, ie.Attempts)
	assert.ErrorIs(t, err, boom)
}

func TestRetryingClient_DoesNotRetryClientErrors(t *testing.T) {
	mock := NewMockClient()
	mock.FailNext(domain.AgentObserver, &StatusError{Provider: "openai", Code: http.StatusBadRequest})

	c := NewRetryingClient(mock, RetryConfig{MaxAttempts: 5, BaseBackoff: time.Millisecond}, zap.NewNop())
	_, err := c.Invoke(context.Background(), domain.LLMRequest{Agent: domain.AgentObserver})

	var ie *InvocationError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 1, ie.Attempts)
}

func TestMockClient_TaskKeysTakePrecedence(t *testing.T) {
	mock := NewMockClient()
	mock.Enqueue("observer/extract", `{"claims":["a"]}`)
	mock.SetDefault("observer", `{"generic":true}`)

	resp, err := mock.Invoke(context.Background(), domain.LLMRequest{Agent: "observer", Task: TaskExtract})
	require.NoError(t, err)
	assert.Equal(t, `{"claims":["a"]}`, resp.Content)

	resp, err = mock.Invoke(context.Background(), domain.LLMRequest{Agent: "observer", Task: TaskExtract})
	require.NoError(t, err)
	assert.Contains(t, resp.Content, `"open_questions":[]`)

	assert.Equal(t, 2, mock.CallCount("observer/extract"))
	assert.Equal(t, 2, mock.CallCount("observer"))
}

func TestAnthropicClient_Invoke(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model":"claude-3-5-haiku-20241022","content":[{"type":"text","text":" hi "}],` +
			`"usage":{"input_tokens":11,"output_tokens":3}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("secret")
	c.baseURL = srv.URL

	resp, err := c.Invoke(context.Background(), domain.LLMRequest{
		Agent:    domain.AgentOrchestrator,
		Model:    "gpt-4o",
		System:   "be brief",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, domain.TokenUsage{Input: 11, Output: 3}, ExtractTokenUsage(resp))
	assert.Equal(t, anthropicModel, got.Model)
	assert.Equal(t, "be brief", got.System)
	assert.Equal(t, 2048, got.MaxTokens)
}

func TestOpenAIClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("k")
	c.url = srv.URL

	_, err := c.Invoke(context.Background(), domain.LLMRequest{Messages: []domain.Message{{Role: "user", Content: "x"}}})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.True(t, se.Retryable())
}

func TestOpenAIClient_UsageInResponseMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"message":{"content":"ok"}}],` +
			`"usage":{"prompt_tokens":20,"completion_tokens":5}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("k")
	c.url = srv.URL

	resp, err := c.Invoke(context.Background(), domain.LLMRequest{Messages: []domain.Message{{Role: "user", Content: "x"}}})
	require.NoError(t, err)
	assert.Nil(t, resp.UsageMetadata)
	assert.Equal(t, domain.TokenUsage{Input: 20, Output: 5}, ExtractTokenUsage(resp))
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(ProviderAnthropic, "")
	assert.Error(t, err)

	c, err := NewClient(ProviderCerebras, "k")
	require.NoError(t, err)
	assert.Equal(t, ProviderCerebras, c.(*OpenAIClient).provider)

	_, err = NewClient("nope", "k")
	assert.Error(t, err)
}
