package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/events"
)

// ObserverEffects holds what one observer pass publishes and persists. The
// pass itself only fills it; Apply runs it once the turn that produced it has
// been committed, so an aborted turn leaves no trace in the event file or the
// concept catalog.
type ObserverEffects struct {
	svc       *ObserverService
	sessionID string
	ideaID    string
	concepts  []string
	publishes []func(b *events.Bus) error
}

func (s *ObserverService) newEffects(sessionID, ideaID string) *ObserverEffects {
	return &ObserverEffects{svc: s, sessionID: sessionID, ideaID: ideaID}
}

func (f *ObserverEffects) publish(fn func(b *events.Bus) error) {
	f.publishes = append(f.publishes, fn)
}

// Pending reports whether Apply has anything left to do.
func (f *ObserverEffects) Pending() bool {
	return f != nil && (len(f.concepts) > 0 || len(f.publishes) > 0)
}

// Apply persists the extracted concepts, records the result on analysis and
// then publishes the buffered events in order. It runs at most once.
func (f *ObserverEffects) Apply(ctx context.Context, analysis *domain.TurnAnalysis) {
	if !f.Pending() {
		return
	}
	s := f.svc
	if len(f.concepts) > 0 && s.catalog != nil {
		res, err := s.catalog.PersistConcepts(ctx, f.concepts, f.ideaID)
		if err != nil {
			s.logger.Warn("failed to persist concepts", zap.String("session_id", f.sessionID), zap.Error(err))
		} else if analysis != nil {
			analysis.Concepts = res
		}
	}
	for _, fn := range f.publishes {
		s.telemetry.Emit(f.sessionID, fn)
	}
	f.concepts = nil
	f.publishes = nil
}
