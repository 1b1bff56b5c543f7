package models

import (
	"github.com/Raimguhinov/ring-go/internal/alarm"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Trigger struct {
	ID          uuid.UUID          `json:"id"`
	AlarmID     uuid.UUID          `json:"alarmId"`
	RoomID      uuid.UUID          `json:"roomId"`
	Status      string             `json:"status"`
	TriggeredAt pgtype.Timestamptz `json:"triggeredAt"`
	DismissedBy pgtype.Text        `json:"dismissedBy"`
	DismissedAt pgtype.Timestamptz `json:"dismissedAt"`
}

func (t *Trigger) ToDomain() alarm.Trigger {
	out := alarm.Trigger{
		ID:          t.ID,
		AlarmID:     t.AlarmID,
		RoomID:      t.RoomID,
		Status:      alarm.TriggerStatus(t.Status),
		TriggeredAt: t.TriggeredAt.Time,
		DismissedBy: t.DismissedBy.String,
	}
	if t.DismissedAt.Valid {
		at := t.DismissedAt.Time
		out.DismissedAt = &at
	}
	return out
}
