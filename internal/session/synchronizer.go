package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Raimguhinov/ring-go/internal/feed"
	"github.com/Raimguhinov/ring-go/pkg/logger"
	"github.com/google/uuid"
)

// Dismissable is the slice of Controller the synchronizer drives.
type Dismissable interface {
	RemoteDismiss(byUser string)
}

// Synchronizer watches the room's change feed for one trigger and mirrors a
// remote dismissal into the local session. The feed is at-least-once and a
// device sees the echo of its own dismissal, so processing is guarded to
// happen at most once.
type Synchronizer struct {
	triggerID uuid.UUID
	session   Dismissable
	logger    *logger.Logger

	once sync.Once
}

func NewSynchronizer(triggerID uuid.UUID, session Dismissable, l *logger.Logger) *Synchronizer {
	return &Synchronizer{
		triggerID: triggerID,
		session:   session,
		logger:    l,
	}
}

// Run consumes events until ctx is done or the channel closes. Returns
// after the dismissal is processed; further events for the trigger are
// duplicates by definition.
func (s *Synchronizer) Run(ctx context.Context, events <-chan feed.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.TriggerID != s.triggerID || e.Type != feed.EventDismissed {
				continue
			}

			handled := false
			s.once.Do(func() {
				handled = true
				s.logger.Debug("synchronizer observed dismissal",
					slog.String("trigger_id", e.TriggerID.String()),
					slog.String("by", e.DismissedBy),
				)
				s.session.RemoteDismiss(e.DismissedBy)
			})
			if handled {
				return
			}
		}
	}
}
