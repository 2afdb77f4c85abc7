package llm

// Rate is USD per one million tokens.
type Rate struct {
	InputPer1M  float64 `json:"input_per_1m"`
	OutputPer1M float64 `json:"output_per_1m"`
}

// CostRates maps model ids to their published prices.
var CostRates = map[string]Rate{
	"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-5-haiku-20241022":  {InputPer1M: 0.80, OutputPer1M: 4.00},
	"claude-3-haiku-20240307":    {InputPer1M: 0.25, OutputPer1M: 1.25},
	"claude-sonnet-4-20250514":   {InputPer1M: 3.00, OutputPer1M: 15.00},
	"gpt-4o":                     {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":                {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gemini-2.0-flash":           {InputPer1M: 0.10, OutputPer1M: 0.40},
	"llama-3.3-70b":              {InputPer1M: 0.85, OutputPer1M: 1.20},
	"mock":                       {InputPer1M: 0, OutputPer1M: 0},
}

// CalculateCost returns the USD cost of a call. Unknown models cost 0 and
// report ok=false.
func CalculateCost(model string, inputTokens, outputTokens int) (cost float64, ok bool) {
	r, ok := CostRates[model]
	if !ok {
		return 0, false
	}
	return (float64(inputTokens)/1e6)*r.InputPer1M + (float64(outputTokens)/1e6)*r.OutputPer1M, true
}
