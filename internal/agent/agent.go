// Package agent runs one device's side of the shared alarm protocol: it
// watches the room's change feed and drives a ring session per active
// trigger.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Raimguhinov/ring-go/internal/alarm"
	"github.com/Raimguhinov/ring-go/internal/client"
	"github.com/Raimguhinov/ring-go/internal/config"
	"github.com/Raimguhinov/ring-go/internal/feed"
	"github.com/Raimguhinov/ring-go/internal/ringer"
	"github.com/Raimguhinov/ring-go/internal/session"
	"github.com/Raimguhinov/ring-go/pkg/logger"
	"github.com/Raimguhinov/ring-go/pkg/utils"
	"github.com/google/uuid"
)

type Agent struct {
	cfg      *config.Config
	api      *client.Client
	feed     *feed.Feed
	notifier session.Notifier
	logger   *logger.Logger

	user   string
	roomID uuid.UUID

	// Resolved asynchronously on first load; sessions block on Get until
	// the identity is known.
	deviceID *utils.OnceValue[string]

	mu       sync.Mutex
	sessions map[uuid.UUID]*activeSession
}

type activeSession struct {
	ctrl   *session.Controller
	events chan feed.Event
}

func New(
	cfg *config.Config,
	api *client.Client,
	f *feed.Feed,
	notifier session.Notifier,
	l *logger.Logger,
	user string,
	roomID uuid.UUID,
	deviceID *utils.OnceValue[string],
) *Agent {
	return &Agent{
		cfg:      cfg,
		api:      api,
		feed:     f,
		notifier: notifier,
		logger:   l,
		user:     user,
		roomID:   roomID,
		deviceID: deviceID,
		sessions: make(map[uuid.UUID]*activeSession),
	}
}

// Run blocks until ctx is done. Sessions the agent started are torn down by
// ctx cancellation; every exit path clears timers and releases audio.
func (a *Agent) Run(ctx context.Context) error {
	events, err := a.feed.Subscribe(ctx, a.roomID)
	if err != nil {
		return fmt.Errorf("agent - Run - feed.Subscribe: %w", err)
	}

	a.logger.Info("agent started",
		slog.String("room_id", a.roomID.String()),
		slog.String("user", a.user),
	)

	// Catch up on triggers that fired while this device was offline.
	if err := a.catchUp(ctx); err != nil {
		a.logger.Warn("agent catch-up failed", logger.Err(err))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return fmt.Errorf("agent - Run: feed closed")
			}
			a.dispatch(ctx, e)
		}
	}
}

func (a *Agent) catchUp(ctx context.Context) error {
	triggers, err := a.api.FindRingingTriggers(ctx, a.roomID)
	if err != nil {
		return err
	}
	for _, t := range triggers {
		a.startSession(ctx, t)
	}
	return nil
}

// dispatch routes a feed event: new ringing triggers start sessions, and
// every event is mirrored into the live sessions' synchronizers.
func (a *Agent) dispatch(ctx context.Context, e feed.Event) {
	if e.Type == feed.EventRinging {
		t := alarm.Trigger{
			ID:          e.TriggerID,
			AlarmID:     e.AlarmID,
			RoomID:      e.RoomID,
			Status:      alarm.StatusRinging,
			TriggeredAt: e.TriggeredAt,
		}
		a.startSession(ctx, t)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.sessions {
		select {
		case s.events <- e:
		default:
			// A session that stopped draining is done; dropping is safe
			// because its synchronizer already fired.
		}
	}
}

func (a *Agent) startSession(ctx context.Context, t alarm.Trigger) {
	a.mu.Lock()
	if _, exists := a.sessions[t.ID]; exists {
		// At-least-once feed delivery; duplicate ringing events are normal.
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	def, err := a.api.GetAlarm(ctx, t.AlarmID)
	if err != nil {
		a.logger.Error("agent - startSession - api.GetAlarm", logger.Err(err))
		return
	}

	owner := session.IsOwningDevice(a.user, a.deviceID.Get(), def)

	chain := ringer.NewChain(a.logger,
		ringer.NewWAV(a.cfg.Agent.SoundPath),
		ringer.NewTone(a.cfg.Ring.RingInterval),
	)

	ctrl := session.New(
		t, *def, owner, a.user,
		a.cfg.Ring.RingInterval, a.cfg.Ring.MaxRingCount,
		chain, a.notifier, a.api, a.logger,
		func(byUser string) {
			a.logger.Info("alarm dismissed",
				slog.String("trigger_id", t.ID.String()),
				slog.String("by", byUser),
			)
		},
	)

	s := &activeSession{
		ctrl:   ctrl,
		events: make(chan feed.Event, 8),
	}

	a.mu.Lock()
	a.sessions[t.ID] = s
	a.mu.Unlock()

	if err := ctrl.Start(ctx); err != nil {
		a.logger.Error("agent - startSession - ctrl.Start", logger.Err(err))
	}

	a.logger.Info("ring session started",
		slog.String("trigger_id", t.ID.String()),
		slog.String("state", ctrl.State().String()),
	)

	syn := session.NewSynchronizer(t.ID, ctrl, a.logger)
	go func() {
		syn.Run(ctx, s.events)

		a.mu.Lock()
		delete(a.sessions, t.ID)
		a.mu.Unlock()
	}()
}
