package service

import (
	"errors"
	"testing"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

func TestRoute_Totality(t *testing.T) {
	routable := []string{domain.AgentStructurer, domain.AgentMethodologist}
	suggestions := []*domain.AgentSuggestion{
		nil,
		{Agent: domain.AgentStructurer, Justification: "ready to structure"},
		{Agent: domain.AgentMethodologist, Justification: "evaluate V1"},
		{Agent: domain.AgentStructurer, Justification: "  "},
		{Agent: "unknown", Justification: "x"},
		{Agent: domain.AgentObserver, Justification: "the observer is never routed"},
		{Agent: domain.AgentOrchestrator, Justification: "no self routing"},
	}
	for _, step := range []domain.NextStep{domain.NextStepExplore, domain.NextStepClarify, domain.NextStepSuggestAgent} {
		for _, s := range suggestions {
			st := domain.NewMultiAgentState("s")
			st.NextStep = step
			st.AgentSuggestion = s

			dest, err := Route(st, routable)
			if err != nil {
				t.Fatalf("Route(%s, %+v) error: %v", step, s, err)
			}

			want := DestinationUser
			if step == domain.NextStepSuggestAgent && s != nil && validSuggestion(s, routable) {
				want = s.Agent
			}
			if dest != want {
				t.Errorf("Route(%s, %+v) = %q, want %q", step, s, dest, want)
			}
		}
	}
}

func TestRoute_MalformedSuggestionFallsBackToUser(t *testing.T) {
	st := domain.NewMultiAgentState("s")
	st.NextStep = domain.NextStepSuggestAgent
	st.AgentSuggestion = &domain.AgentSuggestion{Agent: "statistician", Justification: "needs stats"}

	dest, err := Route(st, []string{domain.AgentStructurer})
	if err != nil || dest != DestinationUser {
		t.Fatalf("got (%q, %v), want (user, nil)", dest, err)
	}
}

func TestRoute_UnknownNextStep(t *testing.T) {
	st := domain.NewMultiAgentState("s")
	st.NextStep = "classify"

	_, err := Route(st, nil)
	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestRoutableAgents(t *testing.T) {
	got := RoutableAgents([]string{domain.AgentMethodologist, domain.AgentObserver, domain.AgentOrchestrator, domain.AgentStructurer})
	if len(got) != 2 || got[0] != domain.AgentMethodologist || got[1] != domain.AgentStructurer {
		t.Fatalf("RoutableAgents = %v", got)
	}
}
