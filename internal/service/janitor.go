package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultJanitorInterval = 10 * time.Minute

// SessionExpirer drops in-memory sessions idle longer than a ttl.
type SessionExpirer interface {
	ExpireIdle(ttl time.Duration) []string
}

// EventPruner deletes event files whose last write is older than maxAge.
type EventPruner interface {
	RemoveStale(maxAge time.Duration) ([]string, error)
}

// JanitorService periodically expires idle sessions and prunes their event
// files.
type JanitorService struct {
	sessions SessionExpirer
	events   EventPruner
	ttl      time.Duration
	logger   *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewJanitorService(se SessionExpirer, ep EventPruner, ttl time.Duration, logger *zap.Logger) *JanitorService {
	return &JanitorService{
		sessions: se,
		events:   ep,
		ttl:      ttl,
		logger:   logger,
		interval: defaultJanitorInterval,
		stopCh:   make(chan struct{}),
	}
}

func (s *JanitorService) SetInterval(d time.Duration) {
	s.interval = d
}

// Start runs the janitor on a periodic schedule in a background goroutine.
func (s *JanitorService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("session janitor started",
			zap.Duration("interval", s.interval),
			zap.Duration("ttl", s.ttl))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				s.run(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("session janitor stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the janitor. It is safe to call more than once.
func (s *JanitorService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// RunOnce performs a single sweep.
func (s *JanitorService) RunOnce(ctx context.Context) {
	s.run(ctx)
}

func (s *JanitorService) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if s.sessions != nil {
		if expired := s.sessions.ExpireIdle(s.ttl); len(expired) > 0 {
			s.logger.Info("expired idle sessions", zap.Int("count", len(expired)), zap.Strings("session_ids", expired))
		}
	}
	if s.events != nil {
		removed, err := s.events.RemoveStale(s.ttl)
		if err != nil {
			s.logger.Error("failed to remove stale event files", zap.Error(err))
		} else if len(removed) > 0 {
			s.logger.Info("removed stale event files", zap.Int("count", len(removed)))
		}
	}
}
