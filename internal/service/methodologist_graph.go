package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/llm"
)

// DefaultReviewIterations bounds how many questions a standalone review asks.
const DefaultReviewIterations = 3

type ReviewStatus string

const (
	ReviewAwaitingInput ReviewStatus = "awaiting_input"
	ReviewCompleted     ReviewStatus = "completed"
)

type ReviewQA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ReviewCheckpoint is the suspended state of a review waiting on the user.
type ReviewCheckpoint struct {
	SessionID       string     `json:"session_id"`
	Hypothesis      string     `json:"hypothesis"`
	Answers         []ReviewQA `json:"answers"`
	Iterations      int        `json:"iterations"`
	PendingQuestion string     `json:"pending_question"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type ReviewResult struct {
	SessionID  string                      `json:"session_id"`
	Status     ReviewStatus                `json:"status"`
	Question   string                      `json:"question,omitempty"`
	Iterations int                         `json:"iterations"`
	Verdict    *domain.MethodologistOutput `json:"verdict,omitempty"`
}

// CheckpointStore keeps suspended reviews keyed by session id.
type CheckpointStore interface {
	Save(ctx context.Context, cp *ReviewCheckpoint) error
	Load(ctx context.Context, sessionID string) (*ReviewCheckpoint, error)
	Delete(ctx context.Context, sessionID string) error
}

// MemoryCheckpointStore is the in-process CheckpointStore.
type MemoryCheckpointStore struct {
	mu  sync.Mutex
	cps map[string]ReviewCheckpoint
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{cps: map[string]ReviewCheckpoint{}}
}

func (m *MemoryCheckpointStore) Save(_ context.Context, cp *ReviewCheckpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *cp
	c.Answers = append([]ReviewQA(nil), cp.Answers...)
	m.cps[cp.SessionID] = c
	return nil
}

// Load returns a SuspensionError when nothing is suspended for sessionID.
func (m *MemoryCheckpointStore) Load(_ context.Context, sessionID string) (*ReviewCheckpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cps[sessionID]
	if !ok {
		return nil, &domain.SuspensionError{SessionID: sessionID}
	}
	c.Answers = append([]ReviewQA(nil), c.Answers...)
	return &c, nil
}

func (m *MemoryCheckpointStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cps, sessionID)
	return nil
}

// ReviewService runs the methodologist on its own: analyze, then either ask
// the user one question and suspend, or decide.
type ReviewService struct {
	runtime       *AgentRuntime
	checkpoints   CheckpointStore
	telemetry     *Telemetry
	logger        *zap.Logger
	maxIterations int
	now           func() time.Time
}

func NewReviewService(rt *AgentRuntime, cps CheckpointStore, tel *Telemetry, logger *zap.Logger) *ReviewService {
	return &ReviewService{
		runtime:       rt,
		checkpoints:   cps,
		telemetry:     tel,
		logger:        logger,
		maxIterations: DefaultReviewIterations,
		now:           time.Now,
	}
}

func (s *ReviewService) SetMaxIterations(n int) {
	if n > 0 {
		s.maxIterations = n
	}
}

type analyzeReply struct {
	NeedsClarification bool                 `json:"needs_clarification"`
	Question           string               `json:"question"`
	Status             domain.VerdictStatus `json:"status"`
	Justification      string               `json:"justification"`
	Improvements       []domain.Improvement `json:"improvements"`
}

// Start begins a review of hypothesis, replacing any review already
// suspended for the session.
func (s *ReviewService) Start(ctx context.Context, sessionID, hypothesis string) (*ReviewResult, error) {
	hypothesis = strings.TrimSpace(hypothesis)
	if hypothesis == "" {
		return nil, domain.NewValidationError(domain.AgentMethodologist, "hypothesis", "empty")
	}
	cp := &ReviewCheckpoint{SessionID: sessionID, Hypothesis: hypothesis, Answers: []ReviewQA{}}
	return s.step(ctx, cp)
}

// Resume injects the user's answer into a suspended review and continues it.
func (s *ReviewService) Resume(ctx context.Context, sessionID, answer string) (*ReviewResult, error) {
	cp, err := s.checkpoints.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cp.Answers = append(cp.Answers, ReviewQA{Question: cp.PendingQuestion, Answer: answer})
	cp.PendingQuestion = ""
	return s.step(ctx, cp)
}

// Pending returns the suspended review for sessionID.
func (s *ReviewService) Pending(ctx context.Context, sessionID string) (*ReviewCheckpoint, error) {
	return s.checkpoints.Load(ctx, sessionID)
}

func (s *ReviewService) Discard(ctx context.Context, sessionID string) error {
	return s.checkpoints.Delete(ctx, sessionID)
}

func (s *ReviewService) step(ctx context.Context, cp *ReviewCheckpoint) (*ReviewResult, error) {
	start := time.Now()
	s.telemetry.Started(cp.SessionID, domain.AgentMethodologist, "analyze", cp.Hypothesis)

	prompt := fmt.Sprintf(llm.MethodologistAnalyzePrompt, cp.Hypothesis, formatAnswers(cp.Answers))
	reply, err := s.runtime.Call(ctx, domain.AgentMethodologist, llm.TaskAnalyze, prompt)
	if err != nil {
		s.telemetry.Failed(cp.SessionID, domain.AgentMethodologist, "analyze", err)
		return nil, err
	}

	var raw analyzeReply
	if err := llm.DecodeJSON(reply.Content, &raw); err != nil {
		s.logger.Warn("failed to parse review analysis, deciding",
			zap.String("session_id", cp.SessionID),
			zap.Error(err))
		raw = analyzeReply{Status: domain.VerdictRejected, Justification: "the evaluation could not be read"}
	}

	question := strings.TrimSpace(raw.Question)
	if raw.NeedsClarification && question != "" && cp.Iterations < s.maxIterations {
		cp.Iterations++
		cp.PendingQuestion = question
		cp.UpdatedAt = s.now()
		if err := s.checkpoints.Save(ctx, cp); err != nil {
			return nil, fmt.Errorf("save review checkpoint: %w", err)
		}
		s.telemetry.Step(cp.SessionID, "ask_clarification",
			reply.Execution("asked: "+question, map[string]any{"iteration": cp.Iterations}), time.Since(start))
		return &ReviewResult{
			SessionID:  cp.SessionID,
			Status:     ReviewAwaitingInput,
			Question:   question,
			Iterations: cp.Iterations,
		}, nil
	}

	verdict := decideVerdict(raw)
	if err := s.checkpoints.Delete(ctx, cp.SessionID); err != nil {
		s.logger.Warn("failed to drop review checkpoint", zap.String("session_id", cp.SessionID), zap.Error(err))
	}
	s.telemetry.Decision(cp.SessionID, domain.AgentMethodologist, "decide", "review decided",
		map[string]any{"status": verdict.Status, "iterations": cp.Iterations}, verdict.Justification)
	s.telemetry.Step(cp.SessionID, "decide",
		reply.Execution(string(verdict.Status)+": "+verdict.Justification, map[string]any{"iterations": cp.Iterations}),
		time.Since(start))
	return &ReviewResult{
		SessionID:  cp.SessionID,
		Status:     ReviewCompleted,
		Iterations: cp.Iterations,
		Verdict:    verdict,
	}, nil
}

func decideVerdict(raw analyzeReply) *domain.MethodologistOutput {
	if !domain.ValidVerdictStatus(string(raw.Status)) {
		return rejectedVerdict("the evaluation returned an unknown status")
	}
	imps := raw.Improvements
	if imps == nil {
		imps = []domain.Improvement{}
	}
	return &domain.MethodologistOutput{
		Status:         raw.Status,
		Justification:  raw.Justification,
		Improvements:   imps,
		Clarifications: map[string]string{},
	}
}

func formatAnswers(qas []ReviewQA) string {
	if len(qas) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, qa := range qas {
		fmt.Fprintf(&sb, "Q: %s\nA: %s\n", qa.Question, qa.Answer)
	}
	return sb.String()
}
