package llm

import "net/http"

const (
	cerebrasAPIURL = "https://api.cerebras.ai/v1/chat/completions"
	cerebrasModel  = "llama-3.3-70b"
)

// NewCerebrasClient returns a chat completions client pointed at Cerebras,
// which uses the OpenAI-compatible request/response format.
func NewCerebrasClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:       apiKey,
		url:          cerebrasAPIURL,
		defaultModel: cerebrasModel,
		families:     []string{"llama", "qwen"},
		provider:     ProviderCerebras,
		httpClient:   &http.Client{},
	}
}
