package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/llm"
)

const (
	structuredV1 = `{"structured_question":"Do agile methods improve delivery?",` +
		`"elements":{"context":"software teams","problem":"delivery speed","contribution":"evidence"}}`
	structuredV2 = `{"structured_question":"Does Scrum reduce sprint cycle time by 20% versus waterfall in 5-person teams?",` +
		`"elements":{"context":"5-person teams","problem":"cycle time","contribution":"comparative study"},"addressed_gaps":["1","2"]}`
	verdictNeedsRefinement = `{"status":"needs_refinement","justification":"too broad",` +
		`"improvements":[{"aspect":"specificity","gap":"which agile method","suggestion":"name the method"},` +
		`{"aspect":"operationalization","gap":"no metric","suggestion":"use cycle time"}],"clarifications":{}}`
	verdictApproved = `{"status":"approved","justification":"testable and specific","improvements":[],"clarifications":{}}`
	verdictRejected = `{"status":"rejected","justification":"no empirical basis: appeal to common belief","improvements":[]}`
)

func TestStructurer_InitialThenRefine(t *testing.T) {
	h := newHarness(t)
	str := NewStructurerService(h.runtime, h.telemetry, zap.NewNop())
	meth := NewMethodologistService(h.runtime, h.telemetry, zap.NewNop())
	ctx := context.Background()
	h.mock.Enqueue(domain.AgentStructurer, structuredV1, structuredV2)
	h.mock.Enqueue(domain.AgentMethodologist, verdictNeedsRefinement, verdictApproved)

	st := domain.NewMultiAgentState("refine-1")
	st.UserInput = "Método ágil parece funcionar melhor"

	v1, err := str.Run(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)
	assert.Empty(t, v1.AddressedGaps)
	assert.Equal(t, domain.StageStructuring, st.CurrentStage)
	assert.Equal(t, 0, st.RefinementIteration)

	verdict, err := meth.Evaluate(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictNeedsRefinement, verdict.Status)
	require.Len(t, st.HypothesisVersions, 1)
	assert.True(t, IsRefinement(st))

	v2, err := str.Run(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.NotEqual(t, v1.StructuredQuestion, v2.StructuredQuestion)
	assert.Equal(t, []string{"1", "2"}, v2.AddressedGaps)
	assert.Equal(t, domain.StageRefining, st.CurrentStage)
	// V2 counts once the methodologist records it.
	assert.Equal(t, 0, st.RefinementIteration)

	_, err = meth.Evaluate(ctx, st)
	require.NoError(t, err)
	require.Len(t, st.HypothesisVersions, 2)
	assert.Equal(t, 1, st.RefinementIteration)
	require.NoError(t, st.CheckInvariants(nil))

	calls := h.mock.CallsFor(domain.AgentStructurer)
	require.Len(t, calls, 2)
	assert.Equal(t, llm.TaskRefine, calls[1].Task)
	assert.Contains(t, calls[1].Messages[0].Content, "1. [specificity] which agile method")
	assert.Contains(t, calls[1].Messages[0].Content, "2. [operationalization] no metric")
}

func TestStructurer_RefineGuards(t *testing.T) {
	h := newHarness(t)
	str := NewStructurerService(h.runtime, h.telemetry, zap.NewNop())
	ctx := context.Background()

	st := domain.NewMultiAgentState("refine-guards")
	st.StructurerOutput = &domain.StructurerOutput{StructuredQuestion: "Do agile methods improve delivery?", Version: 1}
	st.HypothesisVersions = []domain.HypothesisVersion{{Version: 1, Question: "Do agile methods improve delivery?"}}
	st.MethodologistOutput = &domain.MethodologistOutput{
		Status:       domain.VerdictNeedsRefinement,
		Improvements: []domain.Improvement{{Aspect: "specificity", Gap: "vague", Suggestion: "narrow"}},
	}

	// Same question back and no gaps reported.
	h.mock.Enqueue(domain.AgentStructurer, structuredV1)
	out, err := str.Run(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Version)
	assert.Equal(t, "Do agile methods improve delivery? (V2)", out.StructuredQuestion)
	assert.Equal(t, []string{"1"}, out.AddressedGaps)

	h.mock.Enqueue(domain.AgentStructurer, `{"structured_question":"  "}`)
	_, err = str.Run(ctx, domain.NewMultiAgentState("empty-question"))
	assert.True(t, domain.IsValidationError(err))
}

func TestAddressedGaps(t *testing.T) {
	assert.Equal(t, []string{"2"}, addressedGaps([]string{"2", "2", "9", "x"}, 3))
	assert.Equal(t, []string{"1", "2", "3"}, addressedGaps(nil, 3))
	assert.Equal(t, []string{}, addressedGaps(nil, 0))
}

func TestMethodologist_Verdicts(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		wantStatus domain.VerdictStatus
		wantStage  domain.Stage
	}{
		{"approved", verdictApproved, domain.VerdictApproved, domain.StageApproved},
		{"needs refinement", verdictNeedsRefinement, domain.VerdictNeedsRefinement, domain.StageValidating},
		{"rejected", verdictRejected, domain.VerdictRejected, domain.StageRejected},
		{"unparsable defaults to rejected", "the question is fine", domain.VerdictRejected, domain.StageRejected},
		{"unknown status defaults to rejected", `{"status":"maybe","justification":"?"}`, domain.VerdictRejected, domain.StageRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			meth := NewMethodologistService(h.runtime, h.telemetry, zap.NewNop())
			h.mock.Enqueue(domain.AgentMethodologist, tt.reply)

			st := domain.NewMultiAgentState("verdicts")
			st.StructurerOutput = &domain.StructurerOutput{StructuredQuestion: "Q?", Version: 1}
			got, err := meth.Evaluate(context.Background(), st)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantStage, st.CurrentStage)
			require.Len(t, st.HypothesisVersions, 1)
			assert.Equal(t, tt.wantStatus, st.HypothesisVersions[0].Feedback.Status)
		})
	}
}

func TestMethodologist_ReevaluationDoesNotAppend(t *testing.T) {
	h := newHarness(t)
	meth := NewMethodologistService(h.runtime, h.telemetry, zap.NewNop())
	st := domain.NewMultiAgentState("reeval")
	st.StructurerOutput = &domain.StructurerOutput{StructuredQuestion: "Q?", Version: 1}

	_, err := meth.Evaluate(context.Background(), st)
	require.NoError(t, err)
	_, err = meth.Evaluate(context.Background(), st)
	require.NoError(t, err)
	assert.Len(t, st.HypothesisVersions, 1)

	raw := domain.NewMultiAgentState("raw")
	raw.UserInput = "Café é bom porque todo mundo sabe"
	h.mock.Enqueue(domain.AgentMethodologist, verdictRejected)
	v, err := meth.Evaluate(context.Background(), raw)
	require.NoError(t, err)
	assert.Empty(t, raw.HypothesisVersions)
	assert.True(t, strings.Contains(v.Justification, "empirical"))
	calls := h.mock.CallsFor(domain.AgentMethodologist)
	assert.Contains(t, calls[len(calls)-1].Messages[0].Content, "Café é bom")
}
