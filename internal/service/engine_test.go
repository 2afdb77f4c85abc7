package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/llm"
)

func orchestratorReply(step domain.NextStep, message, agent string, focal map[string]string) string {
	msg := "null"
	if message != "" {
		msg = fmt.Sprintf("%q", message)
	}
	suggestion := "null"
	if agent != "" {
		suggestion = fmt.Sprintf(`{"agent":%q,"justification":"the argument is ready for %s"}`, agent, agent)
	}
	var fields []string
	for k, v := range focal {
		fields = append(fields, fmt.Sprintf("%q:%q", k, v))
	}
	return fmt.Sprintf(`{"reasoning":"scripted","next_step":%q,"message":%s,"agent_suggestion":%s,"focal_argument":{%s},"reflection_prompt":"What evidence would change your mind?"}`,
		step, msg, suggestion, strings.Join(fields, ","))
}

func TestEngine_VagueInputExplores(t *testing.T) {
	h := newHarness(t)
	h.mock.Enqueue(domain.AgentOrchestrator, orchestratorReply(domain.NextStepExplore,
		"Interessante! Que tipo de produtividade você observou?", "", map[string]string{"subject": "LLMs e produtividade"}))

	res, err := h.engine.ProcessTurn(context.Background(), "s1-vague", "Observei que LLMs aumentam produtividade")
	require.NoError(t, err)

	assert.Contains(t, []domain.NextStep{domain.NextStepExplore, domain.NextStepClarify}, res.NextStep)
	assert.Nil(t, res.AgentSuggestion)
	assert.Contains(t, res.Message, "?")
	assert.NotEmpty(t, res.State.FocalArgument)
	assert.NotEmpty(t, res.ReflectionPrompt)
	assert.Empty(t, res.AgentsRun)
	assert.Equal(t, 0, h.mock.CallCount(domain.AgentStructurer))

	types := h.eventTypes(t, "s1-vague")
	require.NotEmpty(t, types)
	assert.Equal(t, domain.EventSessionStarted, types[0])
	for _, want := range []domain.EventType{domain.EventAgentStarted, domain.EventAgentCompleted, domain.EventCognitiveModelUpdated} {
		assert.True(t, hasEvent(types, want), "missing %s", want)
	}
	assert.Greater(t, res.Usage.Executions, 0)
}

func TestEngine_ContextAccumulatesOverFiveTurns(t *testing.T) {
	h := newHarness(t)
	turns := []struct {
		input   string
		subject string
	}{
		{"LLMs parecem aumentar a produtividade", "LLMs e produtividade"},
		{"Em times de 3 a 5 desenvolvedores", "LLMs e produtividade em times pequenos"},
		{"Medindo pelo tempo de sprint", "LLMs, produtividade e tempo de sprint"},
		{"O tempo caiu de 2h para 1.4h por tarefa", "LLMs reduzem tempo de sprint de 2h para 1.4h"},
		{"Mas a qualidade do código também importa", "LLMs, tempo de sprint e qualidade do código"},
	}
	for _, tt := range turns {
		h.mock.Enqueue(domain.AgentOrchestrator, orchestratorReply(domain.NextStepExplore, "E o que mais?", "", map[string]string{"subject": tt.subject}))
	}

	var res *TurnResult
	for _, tt := range turns {
		var err error
		res, err = h.engine.ProcessTurn(context.Background(), "s2-context", tt.input)
		require.NoError(t, err)
		assert.Empty(t, res.AgentsRun)
	}
	subject := res.State.FocalArgument.String("subject")
	for _, want := range []string{"LLMs", "tempo de sprint", "qualidade do código"} {
		assert.Contains(t, subject, want)
	}
	assert.GreaterOrEqual(t, len(res.State.Messages), 10)
	assert.Equal(t, 0, h.mock.CallCount(domain.AgentStructurer))
	assert.Equal(t, 0, h.mock.CallCount(domain.AgentMethodologist))

	view, err := h.engine.Session("s2-context")
	require.NoError(t, err)
	assert.Equal(t, 5, view.Turns)
}

func scriptRefinementCycle(h *harness) {
	h.mock.Enqueue(domain.AgentOrchestrator,
		orchestratorReply(domain.NextStepSuggestAgent, "", domain.AgentStructurer, map[string]string{"subject": "métodos ágeis"}),
		orchestratorReply(domain.NextStepSuggestAgent, "", domain.AgentMethodologist, nil),
		orchestratorReply(domain.NextStepSuggestAgent, "", domain.AgentStructurer, nil),
		orchestratorReply(domain.NextStepSuggestAgent, "", domain.AgentMethodologist, nil),
		orchestratorReply(domain.NextStepExplore, "A pergunta V2 foi aprovada. Quer seguir com ela?", "", nil),
	)
	h.mock.Enqueue(domain.AgentStructurer, structuredV1, structuredV2)
	h.mock.Enqueue(domain.AgentMethodologist, verdictNeedsRefinement, verdictApproved)
}

func TestEngine_RefinementCycle(t *testing.T) {
	h := newHarness(t)
	// Replies without a model are priced at the configured one.
	h.mock.Model = ""
	scriptRefinementCycle(h)

	res, err := h.engine.ProcessTurn(context.Background(), "s3-refine", "Método ágil parece funcionar melhor")
	require.NoError(t, err)

	assert.Equal(t, []string{domain.AgentStructurer, domain.AgentMethodologist, domain.AgentStructurer, domain.AgentMethodologist}, res.AgentsRun)
	st := res.State
	require.Len(t, st.HypothesisVersions, 2)
	assert.Equal(t, 1, st.HypothesisVersions[0].Version)
	assert.Equal(t, 2, st.HypothesisVersions[1].Version)
	assert.Equal(t, domain.VerdictNeedsRefinement, st.HypothesisVersions[0].Feedback.Status)
	assert.GreaterOrEqual(t, len(st.HypothesisVersions[0].Feedback.Improvements), 1)
	assert.NotEqual(t, st.HypothesisVersions[0].Question, st.HypothesisVersions[1].Question)
	assert.NotEmpty(t, st.StructurerOutput.AddressedGaps)
	assert.Equal(t, 1, st.RefinementIteration)
	assert.Equal(t, domain.StageExploring, res.Stage)
	assert.Equal(t, "A pergunta V2 foi aprovada. Quer seguir com ela?", res.Message)

	evs, err := h.bus.GetSessionEvents("s3-refine")
	require.NoError(t, err)
	for i := 1; i < len(evs); i++ {
		assert.False(t, evs[i].Timestamp.Before(evs[i-1].Timestamp), "event %d is older than event %d", i, i-1)
	}

	usage := h.memory.Totals("s3-refine")
	assert.Equal(t, 5, len(h.memory.History("s3-refine", domain.AgentOrchestrator)))
	assert.Equal(t, 2, len(h.memory.History("s3-refine", domain.AgentStructurer)))
	assert.Equal(t, 2, len(h.memory.History("s3-refine", domain.AgentMethodologist)))
	assert.Greater(t, usage.Total.Cost, 0.0)
}

func TestEngine_VersionHistoryIsAppendOnly(t *testing.T) {
	h := newHarness(t)
	scriptRefinementCycle(h)
	ctx := context.Background()

	first, err := h.engine.ProcessTurn(ctx, "s-history", "Método ágil parece funcionar melhor")
	require.NoError(t, err)
	before := first.State.HypothesisVersions

	h.mock.Enqueue(domain.AgentOrchestrator, orchestratorReply(domain.NextStepExplore, "Certo, e agora?", "", nil))
	_, err = h.engine.ProcessTurn(ctx, "s-history", "Vamos pensar em outra coisa")
	require.NoError(t, err)

	h.mock.Enqueue(domain.AgentOrchestrator,
		orchestratorReply(domain.NextStepSuggestAgent, "", domain.AgentStructurer, nil),
		orchestratorReply(domain.NextStepSuggestAgent, "", domain.AgentMethodologist, nil),
		orchestratorReply(domain.NextStepExplore, "Nova versão avaliada.", "", nil),
	)
	h.mock.Enqueue(domain.AgentStructurer, `{"structured_question":"Does pair programming with LLMs reduce defects?","elements":{}}`)
	third, err := h.engine.ProcessTurn(ctx, "s-history", "E pair programming?")
	require.NoError(t, err)

	after := third.State.HypothesisVersions
	require.Len(t, after, 3)
	if diff := cmp.Diff(before, after[:len(before)]); diff != "" {
		t.Fatalf("earlier versions changed (-before +after):\n%s", diff)
	}
	for i, hv := range after {
		assert.Equal(t, i+1, hv.Version)
	}
	assert.Equal(t, 2, third.State.RefinementIteration)
}

func TestEngine_RefinementIterationFollowsRecordedVersions(t *testing.T) {
	tests := []struct {
		name          string
		steps         []string
		verdicts      []string
		wantVersions  int
		wantIteration int
	}{
		{
			name:          "new version after approval",
			steps:         []string{domain.AgentStructurer, domain.AgentMethodologist, domain.AgentStructurer, domain.AgentMethodologist},
			verdicts:      []string{verdictApproved, verdictApproved},
			wantVersions:  2,
			wantIteration: 1,
		},
		{
			name:          "two structurer passes before evaluation",
			steps:         []string{domain.AgentStructurer, domain.AgentMethodologist, domain.AgentStructurer, domain.AgentStructurer, domain.AgentMethodologist},
			verdicts:      []string{verdictNeedsRefinement, verdictApproved},
			wantVersions:  2,
			wantIteration: 1,
		},
		{
			name:          "structurer without evaluation",
			steps:         []string{domain.AgentStructurer, domain.AgentMethodologist, domain.AgentStructurer},
			verdicts:      []string{verdictNeedsRefinement},
			wantVersions:  1,
			wantIteration: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			for _, agent := range tt.steps {
				h.mock.Enqueue(domain.AgentOrchestrator, orchestratorReply(domain.NextStepSuggestAgent, "", agent, nil))
			}
			h.mock.Enqueue(domain.AgentOrchestrator, orchestratorReply(domain.NextStepExplore, "Seguimos?", "", nil))
			h.mock.Enqueue(domain.AgentStructurer, structuredV1, structuredV2, structuredV2)
			h.mock.Enqueue(domain.AgentMethodologist, tt.verdicts...)

			res, err := h.engine.ProcessTurn(context.Background(), "s-iteration", "Método ágil parece funcionar melhor")
			require.NoError(t, err)
			assert.Equal(t, tt.steps, res.AgentsRun)
			assert.Len(t, res.State.HypothesisVersions, tt.wantVersions)
			assert.Equal(t, tt.wantIteration, res.State.RefinementIteration)
		})
	}
}

func countEvents(types []domain.EventType, want domain.EventType) int {
	n := 0
	for _, ty := range types {
		if ty == want {
			n++
		}
	}
	return n
}

func TestEngine_AbortedTurnDiscardsObserverEffects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const sid = "s-abort-effects"
	extraction := `{"claims":["LLMs aumentam produtividade"],"concepts":["produtividade"],` +
		`"proposicoes":[],"contradictions":[],"open_questions":[]}`

	_, err := h.engine.ProcessTurn(ctx, sid, "primeira ideia")
	require.NoError(t, err)
	require.Equal(t, 1, countEvents(h.eventTypes(t, sid), domain.EventCognitiveModelUpdated))

	h.mock.Enqueue(observerKey(llm.TaskExtract), extraction)
	h.mock.FailNext(domain.AgentOrchestrator, errors.New("backend unavailable"))
	_, err = h.engine.ProcessTurn(ctx, sid, "LLMs aumentam produtividade")
	require.ErrorIs(t, err, ErrTurnAborted)

	types := h.eventTypes(t, sid)
	assert.Equal(t, 1, countEvents(types, domain.EventCognitiveModelUpdated))
	assert.True(t, hasEvent(types, domain.EventAgentError))
	n, err := h.catalog.CountConcepts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	linked, err := h.catalog.ConceptsForIdea(ctx, sid)
	require.NoError(t, err)
	assert.Empty(t, linked)
	snap, err := h.engine.ObserverSnapshot(sid)
	require.NoError(t, err)
	assert.Empty(t, snap.CognitiveModel.Claim)

	h.mock.Enqueue(observerKey(llm.TaskExtract), extraction)
	res, err := h.engine.ProcessTurn(ctx, sid, "LLMs aumentam produtividade")
	require.NoError(t, err)
	require.NotNil(t, res.Observer)
	require.NotNil(t, res.Observer.Concepts)
	assert.Equal(t, 1, res.Observer.Concepts.Total)

	assert.Equal(t, 2, countEvents(h.eventTypes(t, sid), domain.EventCognitiveModelUpdated))
	n, err = h.catalog.CountConcepts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	linked, err = h.catalog.ConceptsForIdea(ctx, sid)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, "produtividade", linked[0].Label)
}

func TestEngine_RejectionPath(t *testing.T) {
	h := newHarness(t)
	h.mock.Enqueue(domain.AgentOrchestrator,
		orchestratorReply(domain.NextStepSuggestAgent, "", domain.AgentMethodologist, nil),
		orchestratorReply(domain.NextStepExplore, "O que sustenta essa afirmação?", "", nil),
	)
	h.mock.Enqueue(domain.AgentMethodologist, verdictRejected)

	res, err := h.engine.ProcessTurn(context.Background(), "s4-reject", "Café é bom porque todo mundo sabe")
	require.NoError(t, err)
	mo := res.State.MethodologistOutput
	require.NotNil(t, mo)
	assert.Contains(t, []domain.VerdictStatus{domain.VerdictRejected, domain.VerdictNeedsRefinement}, mo.Status)
	if mo.Status == domain.VerdictRejected {
		assert.Contains(t, mo.Justification, "empirical")
	}
}

func TestEngine_AbortedTurnLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.ProcessTurn(ctx, "s-abort", "primeira ideia")
	require.NoError(t, err)
	before, err := h.engine.Session("s-abort")
	require.NoError(t, err)

	h.mock.FailNext(domain.AgentOrchestrator, errors.New("backend unavailable"))
	_, err = h.engine.ProcessTurn(ctx, "s-abort", "segunda ideia")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTurnAborted)

	after, err := h.engine.Session("s-abort")
	require.NoError(t, err)
	assert.Equal(t, before.Turns, after.Turns)
	if diff := cmp.Diff(before.State, after.State); diff != "" {
		t.Fatalf("state changed by an aborted turn:\n%s", diff)
	}
	snap, err := h.engine.ObserverSnapshot("s-abort")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CognitiveModel.TurnCount)
	assert.True(t, hasEvent(h.eventTypes(t, "s-abort"), domain.EventAgentError))

	_, err = h.engine.ProcessTurn(ctx, "s-abort", "segunda ideia")
	require.NoError(t, err)
}

func TestEngine_InvalidOrchestratorOutputAborts(t *testing.T) {
	h := newHarness(t)
	h.mock.Enqueue(domain.AgentOrchestrator, `{"next_step":"classify","message":"x"}`)

	_, err := h.engine.ProcessTurn(context.Background(), "s-invalid", "hello")
	require.ErrorIs(t, err, ErrTurnAborted)
	assert.True(t, domain.IsValidationError(err))
}

func TestEngine_ObserverFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.mock.FailNext("observer/extract", errors.New("observer backend down"))

	res, err := h.engine.ProcessTurn(context.Background(), "s-observer-down", "LLMs ajudam equipes")
	require.NoError(t, err)
	assert.Nil(t, res.Observer)
	assert.True(t, hasEvent(h.eventTypes(t, "s-observer-down"), domain.EventAgentError))
}

func TestEngine_HopLimit(t *testing.T) {
	h := newHarness(t)
	h.engine.SetMaxHops(2)
	h.mock.SetDefault(domain.AgentOrchestrator, orchestratorReply(domain.NextStepSuggestAgent, "", domain.AgentStructurer, nil))

	res, err := h.engine.ProcessTurn(context.Background(), "s-hops", "estruture isso")
	require.NoError(t, err)
	assert.True(t, res.HopLimitReached)
	assert.Len(t, res.AgentsRun, 2)
	assert.Equal(t, 3, h.mock.CallCount(domain.AgentOrchestrator))
	assert.Contains(t, res.Message, "V1")
}

func TestEngine_EndAndResetSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.ProcessTurn(ctx, "s-end", "uma ideia")
	require.NoError(t, err)

	p, err := h.engine.EndSession("s-end", "")
	require.NoError(t, err)
	assert.Equal(t, "completed", p.FinalStatus)
	assert.Equal(t, 1, p.Turns)
	assert.Greater(t, p.TotalTokens, 0)

	summary, err := h.bus.GetSessionSummary("s-end")
	require.NoError(t, err)
	require.NotNil(t, summary)
	types := h.eventTypes(t, "s-end")
	assert.Equal(t, domain.EventSessionCompleted, types[len(types)-1])

	_, err = h.engine.EndSession("missing", "done")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, h.engine.Reset(ctx, "s-end"))
	_, err = h.engine.Session("s-end")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Empty(t, h.memory.SessionHistory("s-end"))
	assert.Empty(t, h.eventTypes(t, "s-end"))
}

func TestEngine_ResetDuringTurnsStartsFreshSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const sid = "s-reset-race"

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := h.engine.ProcessTurn(ctx, sid, fmt.Sprintf("ideia %d", i))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, h.engine.Reset(ctx, sid))
		}()
	}
	wg.Wait()

	_, err := h.engine.ProcessTurn(ctx, sid, "última ideia")
	require.NoError(t, err)

	view, err := h.engine.Session(sid)
	require.NoError(t, err)
	users := 0
	for _, m := range view.State.Messages {
		if m.Role == domain.RoleUser {
			users++
		}
	}
	assert.Equal(t, view.Turns, users)
	types := h.eventTypes(t, sid)
	require.NotEmpty(t, types)
	assert.Equal(t, domain.EventSessionStarted, types[0])
	assert.Equal(t, 1, countEvents(types, domain.EventSessionStarted))
}

func TestEngine_TurnWaitingOnResetRunsOnFreshSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const sid = "s-reset-wait"
	_, err := h.engine.ProcessTurn(ctx, sid, "primeira ideia")
	require.NoError(t, err)

	// Hold the turn lock the way Reset does while a turn queues behind it.
	held, ok := h.engine.Sessions().Lock(sid)
	require.True(t, ok)
	done := make(chan error, 1)
	go func() {
		_, err := h.engine.ProcessTurn(ctx, sid, "segunda ideia")
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	h.engine.Sessions().Close(held)
	require.NoError(t, h.bus.ClearSession(sid))
	held.turnMu.Unlock()
	require.NoError(t, <-done)

	view, err := h.engine.Session(sid)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Turns)
	require.Len(t, view.State.Messages, 2)
	assert.Equal(t, "segunda ideia", view.State.Messages[0].Content)
	types := h.eventTypes(t, sid)
	require.NotEmpty(t, types)
	assert.Equal(t, domain.EventSessionStarted, types[0])
}

func TestEngine_SessionsAreIsolated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for _, id := range []string{"iso-a", "iso-b", "iso-c", "iso-d"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.ProcessTurn(ctx, id, "ideia de "+id)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	h.memory.ResetSession("iso-a")
	assert.Empty(t, h.memory.SessionHistory("iso-a"))
	assert.NotEmpty(t, h.memory.SessionHistory("iso-b"))
	assert.NotEqual(t, h.bus.Path("iso-a"), h.bus.Path("iso-b"))
	for _, id := range []string{"iso-b", "iso-c", "iso-d"} {
		view, err := h.engine.Session(id)
		require.NoError(t, err)
		assert.Equal(t, "ideia de "+id, view.State.UserInput)
	}
}

func TestEngine_ExpireIdle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.ProcessTurn(ctx, "s-idle", "uma ideia")
	require.NoError(t, err)

	assert.Empty(t, h.engine.ExpireIdle(time.Hour))
	h.engine.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, []string{"s-idle"}, h.engine.ExpireIdle(time.Hour))
	_, err = h.engine.Session("s-idle")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestEngine_RejectsBadInput(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.ProcessTurn(context.Background(), "../escape", "x")
	assert.Error(t, err)
	_, err = h.engine.ProcessTurn(context.Background(), "ok", "   ")
	assert.ErrorIs(t, err, ErrInputEmpty)
}
