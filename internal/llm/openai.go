package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

const (
	openAIChatURL = "https://api.openai.com/v1/chat/completions"
	chatModel     = "gpt-4o-mini"
)

// OpenAIClient speaks the chat completions protocol. Cerebras reuses it with a
// different endpoint and model family.
type OpenAIClient struct {
	apiKey       string
	url          string
	defaultModel string
	families     []string
	provider     string
	httpClient   *http.Client
}

func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:       apiKey,
		url:          openAIChatURL,
		defaultModel: chatModel,
		families:     []string{"gpt", "o1", "o3", "o4"},
		provider:     ProviderOpenAI,
		httpClient:   &http.Client{},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Invoke sends one chat completion. Usage is reported under
// ResponseMetadata["usage"] with input_tokens/output_tokens keys.
func (c *OpenAIClient) Invoke(ctx context.Context, in domain.LLMRequest) (*domain.LLMResponse, error) {
	messages := make([]chatMessage, 0, len(in.Messages)+1)
	if in.System != "" {
		messages = append(messages, chatMessage{Role: domain.RoleSystem, Content: in.System})
	}
	for _, m := range in.Messages {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(chatRequest{
		Model:       pickModel(in.Model, c.defaultModel, c.families...),
		Messages:    messages,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", c.provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", c.provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", c.provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", c.provider, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: c.provider, Code: resp.StatusCode, Body: string(respBody)}
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal %s response: %w", c.provider, err)
	}

	if result.Error != nil {
		return nil, fmt.Errorf("%s API error: %s", c.provider, result.Error.Message)
	}

	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("%s API returned no choices", c.provider)
	}

	out := &domain.LLMResponse{
		Content:          strings.TrimSpace(result.Choices[0].Message.Content),
		Model:            result.Model,
		ResponseMetadata: map[string]any{"provider": c.provider},
	}
	if result.Usage != nil {
		out.ResponseMetadata["usage"] = map[string]any{
			"input_tokens":  result.Usage.PromptTokens,
			"output_tokens": result.Usage.CompletionTokens,
		}
	}
	return out, nil
}
