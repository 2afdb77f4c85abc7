package service

import (
	"context"
	"sync"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

// Observer binds the observer service to one session. It is the surface the
// orchestrator consults: it reports, it never directs.
type Observer struct {
	svc  *ObserverService
	opts domain.ProcessOptions

	mu    sync.Mutex
	state *domain.ObserverState
}

func (s *ObserverService) NewObserver(sessionID string, opts domain.ProcessOptions) *Observer {
	return &Observer{svc: s, opts: opts, state: domain.NewObserverState(sessionID)}
}

// ProcessTurn analyzes one user message. On error the previous state is kept.
func (o *Observer) ProcessTurn(ctx context.Context, userInput string) (*domain.TurnAnalysis, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	next := o.state.Clone()
	analysis, fx, err := o.svc.Analyze(ctx, next, userInput, o.opts)
	if err != nil {
		return nil, err
	}
	o.state = next
	fx.Apply(ctx, analysis)
	return analysis, nil
}

func (o *Observer) AddAssistantMessage(content string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.svc.AddAssistantMessage(o.state, content)
}

// MarkClarificationAsked tells the observer the pending need was put to the user.
func (o *Observer) MarkClarificationAsked() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.svc.MarkClarificationAsked(o.state)
}

func (o *Observer) WhatDoYouSee(ctx context.Context, contextText, question string) (*domain.ObserverInsight, error) {
	o.mu.Lock()
	st := o.state.Clone()
	o.mu.Unlock()
	return o.svc.WhatDoYouSee(ctx, st, contextText, question)
}

func (o *Observer) GetSolidez() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return ComputeSolidez(o.state.Model)
}

func (o *Observer) GetCompletude() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return ComputeCompletude(o.state.Model)
}

func (o *Observer) HasContradiction() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.state.Model.Contradictions) > 0
}

func (o *Observer) GetCurrentState() *domain.ObserverSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Snapshot()
}

// Reset drops the analytical state and starts the session over.
func (o *Observer) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = domain.NewObserverState(o.state.SessionID)
}
