package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/llm"
)

// MethodologistService judges a structured question for testability,
// falsifiability, specificity and operationalization.
type MethodologistService struct {
	runtime   *AgentRuntime
	telemetry *Telemetry
	logger    *zap.Logger
}

func NewMethodologistService(rt *AgentRuntime, tel *Telemetry, logger *zap.Logger) *MethodologistService {
	return &MethodologistService{runtime: rt, telemetry: tel, logger: logger}
}

// ParseVerdict decodes a verdict. Anything unparsable or with an unknown
// status becomes "rejected" and the validation error is returned alongside.
func ParseVerdict(content string) (*domain.MethodologistOutput, error) {
	var out domain.MethodologistOutput
	if err := llm.DecodeJSON(content, &out); err != nil {
		return rejectedVerdict("the evaluation could not be read"),
			domain.NewValidationError(domain.AgentMethodologist, "response", err.Error())
	}
	if !domain.ValidVerdictStatus(string(out.Status)) {
		return rejectedVerdict("the evaluation returned an unknown status"),
			domain.NewValidationError(domain.AgentMethodologist, "status", fmt.Sprintf("%q", out.Status))
	}
	if out.Improvements == nil {
		out.Improvements = []domain.Improvement{}
	}
	if out.Clarifications == nil {
		out.Clarifications = map[string]string{}
	}
	return &out, nil
}

func rejectedVerdict(justification string) *domain.MethodologistOutput {
	return &domain.MethodologistOutput{
		Status:         domain.VerdictRejected,
		Justification:  justification,
		Improvements:   []domain.Improvement{},
		Clarifications: map[string]string{},
	}
}

// Evaluate judges the current structured question (or the raw user input when
// nothing has been structured yet) and appends the verdict to the version
// history when the question is a new version.
func (s *MethodologistService) Evaluate(ctx context.Context, st *domain.MultiAgentState) (*domain.MethodologistOutput, error) {
	start := time.Now()
	s.telemetry.Started(st.SessionID, domain.AgentMethodologist, "evaluate", st.UserInput)

	so := st.StructurerOutput
	if so == nil {
		so = &domain.StructurerOutput{StructuredQuestion: st.UserInput}
	}
	prompt := fmt.Sprintf(llm.MethodologistEvaluatePrompt, so.Version, so.StructuredQuestion,
		so.Elements.Context, so.Elements.Problem, so.Elements.Contribution)

	reply, err := s.runtime.Call(ctx, domain.AgentMethodologist, llm.TaskEvaluate, prompt)
	if err != nil {
		s.telemetry.Failed(st.SessionID, domain.AgentMethodologist, "evaluate", err)
		return nil, err
	}
	verdict, verr := ParseVerdict(reply.Content)
	if verr != nil {
		s.logger.Warn("methodologist verdict defaulted to rejected",
			zap.String("session_id", st.SessionID),
			zap.Error(verr))
	}

	st.MethodologistOutput = verdict
	if st.StructurerOutput != nil && st.StructurerOutput.Version > st.LastVersion() {
		st.RecordVersion(domain.HypothesisVersion{
			Version:  st.StructurerOutput.Version,
			Question: st.StructurerOutput.StructuredQuestion,
			Feedback: verdict.Clone(),
		})
	}
	switch verdict.Status {
	case domain.VerdictApproved:
		st.CurrentStage = domain.StageApproved
	case domain.VerdictRejected:
		st.CurrentStage = domain.StageRejected
	default:
		st.CurrentStage = domain.StageValidating
	}

	s.telemetry.Decision(st.SessionID, domain.AgentMethodologist, "evaluate", "verdict issued",
		map[string]any{"status": verdict.Status, "version": so.Version, "improvements": verdict.Improvements},
		verdict.Justification)
	s.telemetry.Step(st.SessionID, "evaluate",
		reply.Execution(fmt.Sprintf("%s: %s", verdict.Status, strings.TrimSpace(verdict.Justification)),
			map[string]any{"status": string(verdict.Status), "version": so.Version}),
		time.Since(start))
	return verdict, nil
}
