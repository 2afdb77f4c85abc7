package service

import (
	"fmt"
	"strings"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

// DestinationUser hands control back to the user for more input.
const DestinationUser = "user"

// Route maps the post-orchestrator state to its next destination. routable
// is the set of agents the dialogue may dispatch to. A malformed suggestion
// falls back to the user; an unknown next_step is a configuration error.
func Route(st *domain.MultiAgentState, routable []string) (string, error) {
	switch st.NextStep {
	case domain.NextStepExplore, domain.NextStepClarify:
		return DestinationUser, nil
	case domain.NextStepSuggestAgent:
		if validSuggestion(st.AgentSuggestion, routable) {
			return st.AgentSuggestion.Agent, nil
		}
		return DestinationUser, nil
	default:
		return "", &domain.ConfigurationError{Reason: fmt.Sprintf("unknown next_step %q", st.NextStep)}
	}
}

func validSuggestion(s *domain.AgentSuggestion, routable []string) bool {
	if s == nil || strings.TrimSpace(s.Justification) == "" {
		return false
	}
	for _, name := range routable {
		if name == s.Agent {
			return true
		}
	}
	return false
}

// RoutableAgents filters registered agents down to those the router may
// dispatch to. The orchestrator does not route to itself and the observer is
// never dispatched.
func RoutableAgents(registered []string) []string {
	out := make([]string, 0, len(registered))
	for _, name := range registered {
		if name == domain.AgentOrchestrator || name == domain.AgentObserver {
			continue
		}
		out = append(out, name)
	}
	return out
}
