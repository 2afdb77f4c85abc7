package embedding

import (
	"fmt"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

// Provider constants
const (
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
	ProviderMock   = "mock"
)

// NewClient creates an embedding client based on the provider name.
// local and mock both return the deterministic hash embedder.
func NewClient(provider, apiKey string) (domain.EmbeddingClient, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI embedding provider")
		}
		return NewOpenAIClient(apiKey), nil

	case ProviderLocal, ProviderMock:
		return NewHashClient(domain.EmbeddingDimensions), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid options: openai, local, mock)", provider)
	}
}
