// Package scheduler implements the probe that fires due alarms. It runs on a
// fixed cadence, inserts at most one trigger per alarm per idempotency
// window, and fans the firing out to the room.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Raimguhinov/ring-go/internal/alarm"
	"github.com/Raimguhinov/ring-go/internal/feed"
	"github.com/Raimguhinov/ring-go/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Publisher pushes trigger change events to the room's devices.
type Publisher interface {
	Publish(ctx context.Context, e feed.Event) error
}

type Scheduler struct {
	repo      alarm.Repository
	publisher Publisher
	logger    *logger.Logger

	probeInterval time.Duration
	window        time.Duration

	now func() time.Time
}

func New(
	repo alarm.Repository,
	publisher Publisher,
	l *logger.Logger,
	probeInterval, window time.Duration,
) *Scheduler {
	return &Scheduler{
		repo:          repo,
		publisher:     publisher,
		logger:        l,
		probeInterval: probeInterval,
		window:        window,
		now:           time.Now,
	}
}

// Start blocks until ctx is done. Probe errors are logged and skipped; the
// loop never stops on its own.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started",
		slog.Duration("probe_interval", s.probeInterval),
		slog.Duration("idempotency_window", s.window),
	)

	ticker := time.NewTicker(s.probeInterval)
	defer ticker.Stop()

	if err := s.Probe(ctx); err != nil {
		s.logger.Error("scheduler.Probe", logger.Err(err))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			if err := s.Probe(ctx); err != nil {
				s.logger.Error("scheduler.Probe", logger.Err(err))
			}
		}
	}
}

// Probe runs one evaluation pass over all active alarms.
func (s *Scheduler) Probe(ctx context.Context) error {
	alarms, err := s.repo.FindActiveAlarms(ctx)
	if err != nil {
		return fmt.Errorf("scheduler - Probe - repo.FindActiveAlarms: %w", err)
	}

	now := s.now()

	eg, ctx := errgroup.WithContext(ctx)
	for _, a := range alarms {
		if !a.DueAt(now) {
			continue
		}
		a := a
		eg.Go(func() error {
			if err := s.fire(ctx, &a, now); err != nil {
				s.logger.Error("scheduler.fire",
					slog.String("alarm_id", a.ID.String()),
					logger.Err(err),
				)
			}
			// One alarm failing must not starve the rest of the pass.
			return nil
		})
	}
	return eg.Wait()
}

func (s *Scheduler) fire(ctx context.Context, a *alarm.Alarm, now time.Time) error {
	trigger, err := s.repo.InsertTrigger(ctx, a.ID, now, s.window)
	if err != nil {
		if errors.Is(err, alarm.ErrTriggerExists) {
			// Another probe invocation already handled this minute.
			s.logger.Debug("scheduler.fire already handled",
				slog.String("alarm_id", a.ID.String()),
			)
			return nil
		}
		return fmt.Errorf("repo.InsertTrigger: %w", err)
	}

	s.logger.Info("alarm fired",
		slog.String("alarm_id", a.ID.String()),
		slog.String("trigger_id", trigger.ID.String()),
		slog.String("title", a.Title),
	)

	members, err := s.repo.RoomMembers(ctx, a.RoomID)
	if err != nil {
		return fmt.Errorf("repo.RoomMembers: %w", err)
	}
	if len(members) > 0 {
		message := a.Title
		if message == "" {
			message = "Alarm is ringing"
		}
		if err := s.repo.AddNotifications(ctx, trigger.ID, members, message); err != nil {
			return fmt.Errorf("repo.AddNotifications: %w", err)
		}
	}

	if err := s.publisher.Publish(ctx, feed.Event{
		Type:        feed.EventRinging,
		TriggerID:   trigger.ID,
		AlarmID:     a.ID,
		RoomID:      a.RoomID,
		TriggeredAt: trigger.TriggeredAt,
	}); err != nil {
		return fmt.Errorf("publisher.Publish: %w", err)
	}
	return nil
}
