package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Raimguhinov/ring-go/internal/alarm"
	"github.com/Raimguhinov/ring-go/pkg/logger"
	"github.com/google/uuid"
)

// State of a ring session. Dismissed is terminal.
type State int

const (
	StateIdle State = iota
	StateOwnerRinging
	StateObserverSilent
	StateDismissed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOwnerRinging:
		return "owner-ringing"
	case StateObserverSilent:
		return "observer-silent"
	case StateDismissed:
		return "dismissed"
	default:
		return "unknown"
	}
}

// Ringer produces the audible side of a session. Start is best-effort: a
// failure leaves the session visually ringing but silent, never broken.
type Ringer interface {
	Start(ctx context.Context) error
	Stop()
}

// Notification is a device-level alert. Silent notifications still require
// interaction so an observer can reach the dismiss action.
type Notification struct {
	Title              string
	Body               string
	Silent             bool
	RequireInteraction bool
}

// Notifier shows device notifications, best-effort.
type Notifier interface {
	Notify(n Notification) error
}

// Dismisser performs the store-level conditional ringing -> dismissed
// transition. applied is false when someone else already dismissed.
type Dismisser interface {
	Dismiss(ctx context.Context, triggerID uuid.UUID, byUser string, at time.Time) (applied bool, err error)
}

// Controller drives one device's view of one active trigger.
//
// The owner role plays audio and counts rings on a local timer,
// auto-dismissing at maxRings. Observers stay silent. Both roles accept a
// manual dismissal at any time; local teardown always happens before the
// network call so user-perceived cancellation never waits on the store.
type Controller struct {
	trigger alarm.Trigger
	def     alarm.Alarm

	owner  bool
	userID string

	ringInterval time.Duration
	maxRings     int

	ringer    Ringer
	notifier  Notifier
	dismisser Dismisser
	logger    *logger.Logger

	onDismissed func(byUser string)
	now         func() time.Time

	mu        sync.Mutex
	state     State
	ringCount int
	stop      chan struct{}
	stopped   bool

	notifyOnce sync.Once
}

// Option -.
type Option func(*Controller)

// WithClock replaces the wall clock. Tests only.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// New builds a controller. owner is the capability resolved by
// IsOwningDevice; it is passed in at construction so the state machine never
// reads ambient device storage.
func New(
	trigger alarm.Trigger,
	def alarm.Alarm,
	owner bool,
	userID string,
	ringInterval time.Duration,
	maxRings int,
	ringer Ringer,
	notifier Notifier,
	dismisser Dismisser,
	l *logger.Logger,
	onDismissed func(byUser string),
	opts ...Option,
) *Controller {
	c := &Controller{
		trigger:      trigger,
		def:          def,
		owner:        owner,
		userID:       userID,
		ringInterval: ringInterval,
		maxRings:     maxRings,
		ringer:       ringer,
		notifier:     notifier,
		dismisser:    dismisser,
		logger:       l,
		onDismissed:  onDismissed,
		now:          time.Now,
		state:        StateIdle,
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State -.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RingCount is the owner's local auto-dismiss counter. Not the UI counter.
func (c *Controller) RingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ringCount
}

// DisplayRingCount is the role-independent UI counter, derived purely from
// wall-clock time since the trigger fired. It stays consistent across
// devices regardless of each device's local timers and must not be confused
// with RingCount, which drives auto-dismiss.
func (c *Controller) DisplayRingCount() int {
	elapsed := c.now().Sub(c.trigger.TriggeredAt)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / c.ringInterval)
}

// Start enters owner-ringing or observer-silent and returns. The owner's
// ring loop runs until dismissal, teardown, or ctx cancellation; ctx
// cancellation tears the session down like any other exit path.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("session - Start: already started in state %s", c.state)
	}
	if c.trigger.Dismissed() {
		c.state = StateDismissed
		c.mu.Unlock()
		return nil
	}

	if c.owner {
		c.state = StateOwnerRinging
	} else {
		c.state = StateObserverSilent
	}
	c.mu.Unlock()

	if c.owner {
		// Audio failure degrades to a visually-ringing silent session.
		if err := c.ringer.Start(ctx); err != nil {
			c.logger.Warn("session ringer failed, continuing silent",
				slog.String("trigger_id", c.trigger.ID.String()),
				logger.Err(err),
			)
		}
		c.notify(Notification{
			Title:              c.def.Title,
			Body:               "Alarm is ringing",
			RequireInteraction: true,
		})
		go c.ringLoop(ctx)
		return nil
	}

	c.notify(Notification{
		Title:              c.def.Title,
		Body:               "A roommate's alarm is ringing. You can dismiss it.",
		Silent:             true,
		RequireInteraction: true,
	})
	go c.waitTeardown(ctx)
	return nil
}

func (c *Controller) ringLoop(ctx context.Context) {
	ticker := time.NewTicker(c.ringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.teardown()
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.stopped {
				c.mu.Unlock()
				return
			}
			c.ringCount++
			count := c.ringCount
			c.mu.Unlock()

			c.logger.Debug("session ring",
				slog.String("trigger_id", c.trigger.ID.String()),
				slog.Int("count", count),
			)

			if count >= c.maxRings {
				// Max rings reached: dismiss as if the owner did.
				c.Dismiss(ctx, c.userID)
				return
			}
		}
	}
}

// waitTeardown releases observer resources when the surrounding component
// goes away without a dismissal.
func (c *Controller) waitTeardown(ctx context.Context) {
	select {
	case <-ctx.Done():
		c.teardown()
	case <-c.stop:
	}
}

// Dismiss stops the session locally, then attempts the store transition.
// The local stop is unconditional and happens first; a lost race or a
// network failure leaves it in place and is not an error.
func (c *Controller) Dismiss(ctx context.Context, byUser string) {
	c.teardown()

	applied, err := c.dismisser.Dismiss(ctx, c.trigger.ID, byUser, c.now())
	if err != nil {
		// Local stop already took effect; the change feed reconciles later.
		c.logger.Warn("session dismiss not confirmed",
			slog.String("trigger_id", c.trigger.ID.String()),
			logger.Err(err),
		)
	} else if !applied {
		c.logger.Debug("session dismiss lost race",
			slog.String("trigger_id", c.trigger.ID.String()),
		)
	}

	c.fireDismissed(byUser)
}

// RemoteDismiss mirrors a dismissal observed on the change feed. Safe to
// call any number of times, including after a local dismissal of the same
// trigger.
func (c *Controller) RemoteDismiss(byUser string) {
	c.teardown()
	c.fireDismissed(byUser)
}

// Teardown releases timers and audio. Idempotent; every exit path lands
// here. After it returns no ringer or counter callback fires again.
func (c *Controller) Teardown() {
	c.teardown()
}

func (c *Controller) teardown() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.state = StateDismissed
	close(c.stop)
	c.mu.Unlock()

	c.ringer.Stop()
}

func (c *Controller) fireDismissed(byUser string) {
	c.notifyOnce.Do(func() {
		if c.onDismissed != nil {
			c.onDismissed(byUser)
		}
	})
}

func (c *Controller) notify(n Notification) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(n); err != nil {
		// Permission denial degrades to in-app-only alerting.
		c.logger.Debug("session notification failed", logger.Err(err))
	}
}
