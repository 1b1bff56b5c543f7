package alarm

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	CreateAlarm(ctx context.Context, a *Alarm) error
	FindAlarms(ctx context.Context, roomID uuid.UUID) ([]Alarm, error)
	FindActiveAlarms(ctx context.Context) ([]Alarm, error)
	GetAlarm(ctx context.Context, id uuid.UUID) (*Alarm, error)
	UpdateAlarm(ctx context.Context, a *Alarm) error
	DeactivateAlarm(ctx context.Context, id uuid.UUID) error

	// InsertTrigger creates a ringing trigger for the alarm unless any
	// trigger already exists for it after at-window. ErrTriggerExists
	// signals the silent-skip path, not a failure.
	InsertTrigger(ctx context.Context, alarmID uuid.UUID, at time.Time, window time.Duration) (*Trigger, error)
	GetTrigger(ctx context.Context, id uuid.UUID) (*Trigger, error)
	FindRingingTriggers(ctx context.Context, roomID uuid.UUID) ([]Trigger, error)

	// DismissTrigger performs the conditional ringing -> dismissed
	// transition. applied is false when another party already won the race.
	DismissTrigger(ctx context.Context, triggerID uuid.UUID, byUser string, at time.Time) (applied bool, err error)

	RoomMembers(ctx context.Context, roomID uuid.UUID) ([]string, error)
	IsRoomMember(ctx context.Context, roomID uuid.UUID, userID string) (bool, error)

	// AddNotifications fans out one notification row per room member for a
	// freshly inserted trigger.
	AddNotifications(ctx context.Context, triggerID uuid.UUID, userIDs []string, message string) error
}
