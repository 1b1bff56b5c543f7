package models

import (
	"github.com/Raimguhinov/ring-go/internal/alarm"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Alarm struct {
	ID            uuid.UUID          `json:"id"`
	RoomID        uuid.UUID          `json:"roomId"`
	Title         pgtype.Text        `json:"title"`
	TimeOfDay     pgtype.Time        `json:"timeOfDay"`
	Days          int16              `json:"days"`
	Active        bool               `json:"active"`
	CreatedBy     string             `json:"createdBy"`
	OwnerDeviceID pgtype.Text        `json:"ownerDeviceId"`
	CreatedAt     pgtype.Timestamptz `json:"createdAt"`
}

func (a *Alarm) ToDomain() alarm.Alarm {
	us := a.TimeOfDay.Microseconds
	return alarm.Alarm{
		ID:            a.ID,
		RoomID:        a.RoomID,
		Title:         a.Title.String,
		Hour:          int(us / 3_600_000_000),
		Minute:        int(us / 60_000_000 % 60),
		Days:          alarm.Weekdays(a.Days),
		Active:        a.Active,
		CreatedBy:     a.CreatedBy,
		OwnerDeviceID: a.OwnerDeviceID.String,
		CreatedAt:     a.CreatedAt.Time,
	}
}

func FromDomain(a *alarm.Alarm) Alarm {
	return Alarm{
		ID:            a.ID,
		RoomID:        a.RoomID,
		Title:         pgtype.Text{String: a.Title, Valid: true},
		TimeOfDay:     pgtype.Time{Microseconds: (int64(a.Hour)*3600 + int64(a.Minute)*60) * 1_000_000, Valid: true},
		Days:          int16(a.Days),
		Active:        a.Active,
		CreatedBy:     a.CreatedBy,
		OwnerDeviceID: pgtype.Text{String: a.OwnerDeviceID, Valid: a.OwnerDeviceID != ""},
		CreatedAt:     pgtype.Timestamptz{Time: a.CreatedAt, Valid: !a.CreatedAt.IsZero()},
	}
}
