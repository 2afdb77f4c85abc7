package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/llm"
)

const (
	analyzeAsk    = `{"needs_clarification":true,"question":"Which population did you observe?"}`
	analyzeDecide = `{"needs_clarification":false,"status":"needs_refinement","justification":"population is vague",` +
		`"improvements":[{"aspect":"population","gap":"unspecified","suggestion":"name the teams"}]}`
)

func methodologistKey(task string) string { return domain.AgentMethodologist + "/" + task }

func TestReview_AskThenDecide(t *testing.T) {
	h := newHarness(t)
	h.mock.Enqueue(methodologistKey(llm.TaskAnalyze), analyzeAsk, analyzeDecide)
	ctx := context.Background()

	res, err := h.engine.Review(ctx, "review-1", "LLMs increase productivity")
	require.NoError(t, err)
	assert.Equal(t, ReviewAwaitingInput, res.Status)
	assert.Equal(t, "Which population did you observe?", res.Question)
	assert.Equal(t, 1, res.Iterations)
	assert.Nil(t, res.Verdict)

	cp, err := h.review.Pending(ctx, "review-1")
	require.NoError(t, err)
	assert.Equal(t, "Which population did you observe?", cp.PendingQuestion)

	res, err = h.engine.ResumeReview(ctx, "review-1", "Teams of 3 to 5 developers")
	require.NoError(t, err)
	assert.Equal(t, ReviewCompleted, res.Status)
	require.NotNil(t, res.Verdict)
	assert.Equal(t, domain.VerdictNeedsRefinement, res.Verdict.Status)
	assert.Len(t, res.Verdict.Improvements, 1)

	calls := h.mock.CallsFor(methodologistKey(llm.TaskAnalyze))
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].Messages[0].Content, "Teams of 3 to 5 developers")

	_, err = h.review.Pending(ctx, "review-1")
	var serr *domain.SuspensionError
	assert.ErrorAs(t, err, &serr)
}

func TestReview_IterationLimitForcesDecision(t *testing.T) {
	h := newHarness(t)
	h.review.SetMaxIterations(2)
	h.mock.SetDefault(methodologistKey(llm.TaskAnalyze),
		`{"needs_clarification":true,"question":"And then?","status":"rejected","justification":"still vague"}`)
	ctx := context.Background()

	res, err := h.review.Start(ctx, "review-limit", "coffee is good")
	require.NoError(t, err)
	for res.Status == ReviewAwaitingInput {
		res, err = h.review.Resume(ctx, "review-limit", "because")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, res.Iterations)
	require.NotNil(t, res.Verdict)
	assert.Equal(t, domain.VerdictRejected, res.Verdict.Status)
	assert.Equal(t, 3, h.mock.CallCount(methodologistKey(llm.TaskAnalyze)))
}

func TestReview_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.review.Resume(ctx, "never-started", "answer")
	var serr *domain.SuspensionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "never-started", serr.SessionID)

	_, err = h.review.Start(ctx, "review-empty", "   ")
	assert.True(t, domain.IsValidationError(err))

	_, err = h.engine.Review(ctx, "bad/id", "x")
	assert.Error(t, err)

	h.mock.FailNext(methodologistKey(llm.TaskAnalyze), errors.New("down"))
	_, err = h.review.Start(ctx, "review-down", "LLMs help")
	require.Error(t, err)
	assert.True(t, hasEvent(h.eventTypes(t, "review-down"), domain.EventAgentError))
}

func TestReview_UnreadableAnalysisRejects(t *testing.T) {
	h := newHarness(t)
	h.mock.Enqueue(methodologistKey(llm.TaskAnalyze), "looks fine to me")

	res, err := h.review.Start(context.Background(), "review-garbled", "LLMs help")
	require.NoError(t, err)
	assert.Equal(t, ReviewCompleted, res.Status)
	assert.Equal(t, domain.VerdictRejected, res.Verdict.Status)
}

func TestReview_ResetDiscardsCheckpoint(t *testing.T) {
	h := newHarness(t)
	h.mock.Enqueue(methodologistKey(llm.TaskAnalyze), analyzeAsk)
	ctx := context.Background()

	_, err := h.engine.Review(ctx, "review-reset", "LLMs help")
	require.NoError(t, err)
	require.NoError(t, h.engine.Reset(ctx, "review-reset"))

	_, err = h.engine.ResumeReview(ctx, "review-reset", "answer")
	var serr *domain.SuspensionError
	assert.ErrorAs(t, err, &serr)
}
