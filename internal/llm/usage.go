package llm

import (
	"strconv"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

// ExtractTokenUsage reads token counts from UsageMetadata, falling back to
// ResponseMetadata["usage"]. Missing counts are zero.
func ExtractTokenUsage(resp *domain.LLMResponse) domain.TokenUsage {
	if resp == nil {
		return domain.TokenUsage{}
	}
	if resp.UsageMetadata != nil {
		return *resp.UsageMetadata
	}
	usage, ok := resp.ResponseMetadata["usage"].(map[string]any)
	if !ok {
		return domain.TokenUsage{}
	}
	return domain.TokenUsage{
		Input:  toInt(usage["input_tokens"]),
		Output: toInt(usage["output_tokens"]),
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
