package domain

import (
	"strings"
	"testing"
)

func TestRecordVersion_TracksRefinementIteration(t *testing.T) {
	st := NewMultiAgentState("s")
	for v := 1; v <= 3; v++ {
		st.RecordVersion(HypothesisVersion{Version: v, Question: "q"})
		if st.RefinementIteration != v-1 {
			t.Fatalf("after V%d refinement_iteration = %d, want %d", v, st.RefinementIteration, v-1)
		}
		if err := st.CheckInvariants(nil); err != nil {
			t.Fatalf("after V%d: %v", v, err)
		}
	}
}

func TestCheckInvariants(t *testing.T) {
	versions := func(n int) []HypothesisVersion {
		out := make([]HypothesisVersion, n)
		for i := range out {
			out[i] = HypothesisVersion{Version: i + 1}
		}
		return out
	}
	tests := []struct {
		name    string
		mutate  func(*MultiAgentState)
		wantErr string
	}{
		{"empty state", func(*MultiAgentState) {}, ""},
		{"two versions, one refinement", func(s *MultiAgentState) {
			s.HypothesisVersions = versions(2)
			s.RefinementIteration = 1
		}, ""},
		{"version gap", func(s *MultiAgentState) {
			s.HypothesisVersions = []HypothesisVersion{{Version: 1}, {Version: 3}}
			s.RefinementIteration = 2
		}, "hypothesis_versions[1]"},
		{"refinement behind versions", func(s *MultiAgentState) {
			s.HypothesisVersions = versions(2)
		}, "refinement_iteration = 0, want 1"},
		{"refinement ahead of versions", func(s *MultiAgentState) {
			s.HypothesisVersions = versions(2)
			s.RefinementIteration = 2
		}, "refinement_iteration = 2, want 1"},
		{"suggestion missing", func(s *MultiAgentState) {
			s.NextStep = NextStepSuggestAgent
		}, "without agent_suggestion"},
		{"suggestion unregistered", func(s *MultiAgentState) {
			s.NextStep = NextStepSuggestAgent
			s.AgentSuggestion = &AgentSuggestion{Agent: "writer"}
		}, "not registered"},
		{"suggestion registered", func(s *MultiAgentState) {
			s.NextStep = NextStepSuggestAgent
			s.AgentSuggestion = &AgentSuggestion{Agent: AgentStructurer}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := NewMultiAgentState("s")
			tt.mutate(st)
			err := st.CheckInvariants([]string{AgentStructurer, AgentMethodologist})
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("CheckInvariants() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("CheckInvariants() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
