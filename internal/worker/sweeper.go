package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ParticipantCloser is the part of the session store the sweeper needs.
type ParticipantCloser interface {
	ListEndedWithOpenParticipants(ctx context.Context) ([]uuid.UUID, error)
	MarkAllParticipantsLeft(ctx context.Context, id uuid.UUID) error
}

// Sweeper closes participant records left open on ended lectures, e.g. when the
// coordinator stopped between ending a lecture and closing its records.
type Sweeper struct {
	store  ParticipantCloser
	logger *zap.Logger
	cron   *cron.Cron
}

// NewSweeper creates a reconciliation sweeper.
func NewSweeper(store ParticipantCloser, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{store: store, logger: logger}
}

// Sweep runs one pass and returns how many lectures it reconciled.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ids, err := s.store.ListEndedWithOpenParticipants(ctx)
	if err != nil {
		return 0, fmt.Errorf("list ended lectures: %w", err)
	}
	done := 0
	for _, id := range ids {
		if err := s.store.MarkAllParticipantsLeft(ctx, id); err != nil {
			s.logger.Warn("close participants failed", zap.String("lecture_id", id.String()), zap.Error(err))
			continue
		}
		done++
	}
	if done > 0 {
		s.logger.Info("sweeper closed open participants", zap.Int("lectures", done))
	}
	return done, nil
}

// Start schedules Sweep (standard cron or "@every 5m"). Overlapping runs are skipped.
func (s *Sweeper) Start(schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule sweeper %q: %w", schedule, err)
	}
	s.cron = c
	c.Start()
	s.logger.Info("sweeper started", zap.String("schedule", schedule))
	return nil
}

// Stop stops the schedule and waits for a running sweep.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
