package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	domainErrors "github.com/dinehall/tableside/internal/domain/errors"
	"github.com/dinehall/tableside/internal/domain/model"
)

// SessionFacade exposes the subset of application functionality
// required by the sweeper.
type SessionFacade interface {
	ExpiredSessions(ctx context.Context, limit int) ([]model.Session, error)
	AbandonSession(ctx context.Context, sessionID string) error
}

// SessionSweeper periodically expires open sessions past their TTL and
// frees their tables, fanning the batch out over a worker pool.
type SessionSweeper struct {
	facade        SessionFacade
	sweepInterval time.Duration
	batchSize     int
	workers       int
	logger        *slog.Logger

	jobs   chan model.Session
	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewSessionSweeper constructs the sweeper worker pool.
func NewSessionSweeper(facade SessionFacade, sweepInterval time.Duration, batchSize, workers int, logger *slog.Logger) *SessionSweeper {
	if workers <= 0 {
		workers = 1
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	return &SessionSweeper{
		facade:        facade,
		sweepInterval: sweepInterval,
		batchSize:     batchSize,
		workers:       workers,
		logger:        logger,
		jobs:          make(chan model.Session, batchSize*workers),
	}
}

// Start launches background sweeping.
func (s *SessionSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(runCtx)
	}

	s.wg.Add(1)
	go s.dispatch(runCtx)
}

// Stop waits for all workers to finish.
func (s *SessionSweeper) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *SessionSweeper) dispatch(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.jobs)
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fetchAndDispatch(ctx)
		}
	}
}

func (s *SessionSweeper) fetchAndDispatch(ctx context.Context) {
	sessions, err := s.facade.ExpiredSessions(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("fetch expired sessions failed", slog.String("error", err.Error()))
		return
	}
	for _, session := range sessions {
		select {
		case <-ctx.Done():
			return
		case s.jobs <- session:
		}
	}
}

func (s *SessionSweeper) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case session, ok := <-s.jobs:
			if !ok {
				return
			}
			s.expire(ctx, session)
		}
	}
}

func (s *SessionSweeper) expire(ctx context.Context, session model.Session) {
	err := s.facade.AbandonSession(ctx, session.ID)
	switch {
	case err == nil:
		s.logger.Info("session expired",
			slog.String("session_id", session.ID),
			slog.String("table_id", session.TableID),
		)
	case errors.Is(err, domainErrors.ErrInvalidTransition), errors.Is(err, domainErrors.ErrNotFound):
		// The diner checked out between the scan and the expiry; the
		// session is no longer ours to abandon.
	default:
		s.logger.Error("expire session failed",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
	}
}
