package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/llm"
)

// StructurerService turns the focal argument into a structured research
// question, or refines the last one against the methodologist's gaps.
type StructurerService struct {
	runtime   *AgentRuntime
	telemetry *Telemetry
	logger    *zap.Logger
}

func NewStructurerService(rt *AgentRuntime, tel *Telemetry, logger *zap.Logger) *StructurerService {
	return &StructurerService{runtime: rt, telemetry: tel, logger: logger}
}

// IsRefinement reports whether the next structurer pass refines a previous
// version instead of producing a first one.
func IsRefinement(st *domain.MultiAgentState) bool {
	return st.StructurerOutput != nil && st.MethodologistOutput != nil &&
		st.MethodologistOutput.Status == domain.VerdictNeedsRefinement
}

type structurerReply struct {
	StructuredQuestion string                  `json:"structured_question"`
	Elements           domain.QuestionElements `json:"elements"`
	AddressedGaps      []string                `json:"addressed_gaps"`
}

// Run produces the next version and writes it into st.
func (s *StructurerService) Run(ctx context.Context, st *domain.MultiAgentState) (*domain.StructurerOutput, error) {
	start := time.Now()
	refine := IsRefinement(st)
	node, task := "structure", llm.TaskStructure
	if refine {
		node, task = "refine", llm.TaskRefine
	}
	s.telemetry.Started(st.SessionID, domain.AgentStructurer, node, st.UserInput)

	version := len(st.HypothesisVersions) + 1
	focal, _ := json.Marshal(st.FocalArgument)
	var prompt string
	if refine {
		prev := st.StructurerOutput
		prompt = fmt.Sprintf(llm.StructurerRefinePrompt, prev.Version, prev.StructuredQuestion,
			formatGaps(st.MethodologistOutput.Improvements), string(focal))
	} else {
		prompt = fmt.Sprintf(llm.StructurerInitialPrompt, string(focal), st.UserInput)
	}

	reply, err := s.runtime.Call(ctx, domain.AgentStructurer, task, prompt)
	if err != nil {
		s.telemetry.Failed(st.SessionID, domain.AgentStructurer, node, err)
		return nil, err
	}

	var raw structurerReply
	if err := llm.DecodeJSON(reply.Content, &raw); err != nil {
		verr := domain.NewValidationError(domain.AgentStructurer, "response", err.Error())
		s.telemetry.Record(st.SessionID, reply.Execution("invalid structurer output", nil))
		s.telemetry.Failed(st.SessionID, domain.AgentStructurer, node, verr)
		return nil, verr
	}
	question := strings.TrimSpace(raw.StructuredQuestion)
	if question == "" {
		verr := domain.NewValidationError(domain.AgentStructurer, "structured_question", "empty")
		s.telemetry.Record(st.SessionID, reply.Execution("empty structured question", nil))
		s.telemetry.Failed(st.SessionID, domain.AgentStructurer, node, verr)
		return nil, verr
	}

	out := &domain.StructurerOutput{
		StructuredQuestion: question,
		Elements:           raw.Elements,
		Version:            version,
		AddressedGaps:      []string{},
	}
	if refine {
		prev := st.StructurerOutput.StructuredQuestion
		if domain.NormalizeText(question) == domain.NormalizeText(prev) {
			s.logger.Warn("refined question identical to previous version",
				zap.String("session_id", st.SessionID),
				zap.Int("version", version))
			out.StructuredQuestion = fmt.Sprintf("%s (V%d)", question, version)
		}
		out.AddressedGaps = addressedGaps(raw.AddressedGaps, len(st.MethodologistOutput.Improvements))
		st.CurrentStage = domain.StageRefining
	} else {
		st.CurrentStage = domain.StageStructuring
	}
	st.StructurerOutput = out

	s.telemetry.Step(st.SessionID, node,
		reply.Execution(fmt.Sprintf("V%d: %s", version, out.StructuredQuestion), map[string]any{"version": version}),
		time.Since(start))
	return out, nil
}

func formatGaps(improvements []domain.Improvement) string {
	if len(improvements) == 0 {
		return "(none listed; sharpen the question)"
	}
	var sb strings.Builder
	for i, imp := range improvements {
		fmt.Fprintf(&sb, "%d. [%s] %s. Suggestion: %s\n", i+1, imp.Aspect, imp.Gap, imp.Suggestion)
	}
	return sb.String()
}

// addressedGaps keeps the valid gap ids the model reported. When it reports
// none, every gap counts as addressed because the prompt requires all of them.
func addressedGaps(reported []string, gapCount int) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, id := range reported {
		id = strings.TrimSpace(id)
		n, err := strconv.Atoi(id)
		if err != nil || n < 1 || n > gapCount || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) == 0 {
		for i := 1; i <= gapCount; i++ {
			out = append(out, strconv.Itoa(i))
		}
	}
	return out
}
