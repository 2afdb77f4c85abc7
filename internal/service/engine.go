package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/events"
)

// DefaultMaxHops bounds the agent steps run inside one user turn.
const DefaultMaxHops = 8

var ErrInputEmpty = errors.New("input is empty")

// TurnResult is what one user turn produced.
type TurnResult struct {
	SessionID        string                  `json:"session_id"`
	Message          string                  `json:"message"`
	NextStep         domain.NextStep         `json:"next_step"`
	Stage            domain.Stage            `json:"current_stage"`
	AgentSuggestion  *domain.AgentSuggestion `json:"agent_suggestion"`
	ReflectionPrompt string                  `json:"reflection_prompt,omitempty"`
	AgentsRun        []string                `json:"agents_run"`
	HopLimitReached  bool                    `json:"hop_limit_reached"`
	State            *domain.MultiAgentState `json:"state"`
	Observer         *domain.TurnAnalysis    `json:"observer,omitempty"`
	Usage            domain.UsageTotals      `json:"usage"`
}

// Engine runs the dialogue graph. For each user message the observer updates
// the cognitive model, then the orchestrator decides and the router
// dispatches specialists until control returns to the user. A turn works on
// copies of the session state and commits only when every step succeeded.
type Engine struct {
	runtime       *AgentRuntime
	observer      *ObserverService
	orchestrator  *OrchestratorService
	structurer    *StructurerService
	methodologist *MethodologistService
	review        *ReviewService
	sessions      *SessionStore
	memory        *MemoryManager
	telemetry     *Telemetry
	logger        *zap.Logger

	maxHops     int
	observeOpts domain.ProcessOptions
	now         func() time.Time
}

func NewEngine(
	rt *AgentRuntime,
	obs *ObserverService,
	orch *OrchestratorService,
	str *StructurerService,
	meth *MethodologistService,
	review *ReviewService,
	memory *MemoryManager,
	tel *Telemetry,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		runtime:       rt,
		observer:      obs,
		orchestrator:  orch,
		structurer:    str,
		methodologist: meth,
		review:        review,
		sessions:      NewSessionStore(),
		memory:        memory,
		telemetry:     tel,
		logger:        logger,
		maxHops:       DefaultMaxHops,
		now:           time.Now,
	}
}

func (e *Engine) SetMaxHops(n int) {
	if n > 0 {
		e.maxHops = n
	}
}

func (e *Engine) SetObserverOptions(opts domain.ProcessOptions) {
	e.observeOpts = opts
}

func (e *Engine) Sessions() *SessionStore { return e.sessions }

// ProcessTurn runs one user turn. Any failure leaves the committed session
// untouched and comes back wrapped in ErrTurnAborted.
func (e *Engine) ProcessTurn(ctx context.Context, sessionID, input string) (*TurnResult, error) {
	if !events.ValidSessionID(sessionID) {
		return nil, fmt.Errorf("%w: %q", events.ErrInvalidSessionID, sessionID)
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrInputEmpty
	}

	sess := e.sessions.Acquire(sessionID, e.now())
	defer sess.turnMu.Unlock()

	if !sess.started {
		e.telemetry.Emit(sessionID, func(b *events.Bus) error {
			return b.PublishSessionStarted(sessionID, domain.TruncateRunes(input, 500))
		})
		sess.started = true
	}
	before := e.memory.Totals(sessionID).Total

	st, obs := sess.snapshot()
	st.UserInput = input
	st.AppendMessage(domain.RoleUser, input)
	startLen := len(st.Messages)

	analysis, effects, err := e.observer.Analyze(ctx, obs, input, e.observeOpts)
	if err != nil {
		// The observer informs; its failure never blocks the dialogue.
		e.logger.Warn("observer failed, keeping previous cognitive model",
			zap.String("session_id", sessionID),
			zap.Error(err))
		_, obs = sess.snapshot()
		obs.Messages = append(obs.Messages, domain.Message{Role: domain.RoleUser, Content: input})
		analysis, effects = nil, nil
	}

	res, err := e.runHops(ctx, st, obs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTurnAborted, err)
	}

	for _, m := range st.Messages[startLen:] {
		if m.Role == domain.RoleAssistant {
			e.observer.AddAssistantMessage(obs, m.Content)
		}
	}
	if st.NextStep == domain.NextStepClarify {
		e.observer.MarkClarificationAsked(obs)
	}

	if err := st.CheckInvariants(e.runtime.Registered()); err != nil {
		cerr := &domain.ConfigurationError{Reason: err.Error()}
		e.telemetry.Failed(sessionID, domain.AgentOrchestrator, "commit", cerr)
		return nil, fmt.Errorf("%w: %w", ErrTurnAborted, cerr)
	}
	sess.commit(st, obs, e.now())
	effects.Apply(ctx, analysis)

	after := e.memory.Totals(sessionID).Total
	res.SessionID = sessionID
	res.NextStep = st.NextStep
	res.Stage = st.CurrentStage
	res.AgentSuggestion = st.AgentSuggestion
	res.ReflectionPrompt = st.ReflectionPrompt
	res.State = st.Clone()
	res.Observer = analysis
	res.Usage = domain.UsageTotals{
		Executions:   after.Executions - before.Executions,
		TokensInput:  after.TokensInput - before.TokensInput,
		TokensOutput: after.TokensOutput - before.TokensOutput,
		TokensTotal:  after.TokensTotal - before.TokensTotal,
		Cost:         after.Cost - before.Cost,
	}
	if res.Message == "" {
		res.Message = fallbackReply(st)
	}
	return res, nil
}

// runHops alternates orchestrator decisions and specialist steps until the
// router hands control back to the user or the hop limit is reached.
func (e *Engine) runHops(ctx context.Context, st *domain.MultiAgentState, obs *domain.ObserverState) (*TurnResult, error) {
	routable := RoutableAgents(e.runtime.Registered())
	res := &TurnResult{AgentsRun: []string{}}
	for {
		d, err := e.orchestrator.Decide(ctx, st, obs.Snapshot(), routable)
		if err != nil {
			return nil, err
		}
		if msg := d.MessageText(); msg != "" {
			res.Message = msg
		}
		dest, err := Route(st, routable)
		if err != nil {
			e.telemetry.Failed(st.SessionID, domain.AgentOrchestrator, "router", err)
			return nil, err
		}
		if dest == DestinationUser {
			return res, nil
		}
		if len(res.AgentsRun) >= e.maxHops {
			e.logger.Info("hop limit reached, returning to user",
				zap.String("session_id", st.SessionID),
				zap.Int("max_hops", e.maxHops))
			res.HopLimitReached = true
			return res, nil
		}
		if err := e.dispatch(ctx, dest, st); err != nil {
			return nil, err
		}
		res.AgentsRun = append(res.AgentsRun, dest)
	}
}

func (e *Engine) dispatch(ctx context.Context, agent string, st *domain.MultiAgentState) error {
	switch agent {
	case domain.AgentStructurer:
		_, err := e.structurer.Run(ctx, st)
		return err
	case domain.AgentMethodologist:
		_, err := e.methodologist.Evaluate(ctx, st)
		return err
	default:
		err := &domain.ConfigurationError{Reason: fmt.Sprintf("no handler for agent %q", agent)}
		e.telemetry.Failed(st.SessionID, domain.AgentOrchestrator, "router", err)
		return err
	}
}

// fallbackReply covers a turn whose last decision carried no message.
func fallbackReply(st *domain.MultiAgentState) string {
	if so := st.StructurerOutput; so != nil {
		reply := fmt.Sprintf("Current research question (V%d): %s", so.Version, so.StructuredQuestion)
		if mo := st.MethodologistOutput; mo != nil && so.Version <= st.LastVersion() {
			reply += fmt.Sprintf("\nMethodologist: %s. %s", mo.Status, mo.Justification)
		}
		return reply
	}
	return fallbackExploreMessage
}

// EndSession marks a session finished and publishes its totals.
func (e *Engine) EndSession(sessionID, finalStatus string) (*domain.SessionCompletedPayload, error) {
	sess, ok := e.sessions.Lock(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	defer sess.turnMu.Unlock()

	if strings.TrimSpace(finalStatus) == "" {
		finalStatus = "completed"
	}
	totals := e.memory.Totals(sessionID).Total
	sess.mu.Lock()
	sess.Completed = true
	turns := sess.Turns
	sess.mu.Unlock()

	p := domain.SessionCompletedPayload{
		FinalStatus: finalStatus,
		TotalTokens: totals.TokensTotal,
		TotalCost:   totals.Cost,
		Turns:       turns,
	}
	e.telemetry.Emit(sessionID, func(b *events.Bus) error {
		return b.PublishSessionCompleted(sessionID, p)
	})
	e.telemetry.CloseTrace(sessionID)
	e.logger.Info("session completed",
		zap.String("session_id", sessionID),
		zap.String("final_status", finalStatus),
		zap.Int("turns", turns))
	return &p, nil
}

// Reset forgets a session: its state, executions, event file, structured
// log and any suspended review. A turn waiting on the session runs afterwards
// on a fresh one.
func (e *Engine) Reset(ctx context.Context, sessionID string) error {
	if !events.ValidSessionID(sessionID) {
		return fmt.Errorf("%w: %q", events.ErrInvalidSessionID, sessionID)
	}
	// Holding the turn lock until the files are gone keeps a new session from
	// publishing into them.
	sess := e.sessions.Acquire(sessionID, e.now())
	defer sess.turnMu.Unlock()
	defer e.sessions.Close(sess)

	e.memory.ResetSession(sessionID)
	if e.review != nil {
		if err := e.review.Discard(ctx, sessionID); err != nil {
			e.logger.Warn("failed to discard review checkpoint", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return e.telemetry.Forget(sessionID)
}

func (e *Engine) Session(sessionID string) (*SessionView, error) {
	sess, ok := e.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	v := sess.view()
	return &v, nil
}

func (e *Engine) ObserverSnapshot(sessionID string) (*domain.ObserverSnapshot, error) {
	sess, ok := e.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	_, obs := sess.snapshot()
	return obs.Snapshot(), nil
}

// ObserverInsight asks the observer what it sees. The answer is advisory and
// leaves the session untouched.
func (e *Engine) ObserverInsight(ctx context.Context, sessionID, contextText, question string) (*domain.ObserverInsight, error) {
	sess, ok := e.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	_, obs := sess.snapshot()
	return e.observer.WhatDoYouSee(ctx, obs, contextText, question)
}

func (e *Engine) Review(ctx context.Context, sessionID, hypothesis string) (*ReviewResult, error) {
	if !events.ValidSessionID(sessionID) {
		return nil, fmt.Errorf("%w: %q", events.ErrInvalidSessionID, sessionID)
	}
	return e.review.Start(ctx, sessionID, hypothesis)
}

func (e *Engine) ResumeReview(ctx context.Context, sessionID, answer string) (*ReviewResult, error) {
	return e.review.Resume(ctx, sessionID, answer)
}

// Executions returns a session's execution history and cost breakdown.
func (e *Engine) Executions(sessionID string) ([]domain.AgentExecution, SessionUsage) {
	return e.memory.SessionHistory(sessionID), e.memory.Totals(sessionID)
}

// ExpireIdle drops sessions idle longer than ttl and returns their ids. Their
// event files stay on disk for replay until the janitor ages them out.
func (e *Engine) ExpireIdle(ttl time.Duration) []string {
	now := e.now()
	var expired []string
	for _, id := range e.sessions.Idle(ttl, now) {
		sess, ok := e.sessions.Lock(id)
		if !ok {
			continue
		}
		// A turn may have run while we waited for the lock.
		if sess.idleSince(now) <= ttl {
			sess.turnMu.Unlock()
			continue
		}
		e.sessions.Close(sess)
		e.memory.ResetSession(id)
		e.telemetry.CloseTrace(id)
		sess.turnMu.Unlock()
		expired = append(expired, id)
	}
	return expired
}
