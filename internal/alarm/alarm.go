// Package alarm holds the domain model of the shared alarm protocol:
// recurring alarms owned by a room, and triggers representing one
// concrete firing of an alarm.
package alarm

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
)

var (
	// ErrNotFound -.
	ErrNotFound = errors.New("not found")
	// ErrTriggerExists reports that a ringing-or-recent trigger already
	// covers the alarm inside the idempotency window. Not a failure.
	ErrTriggerExists = errors.New("trigger already exists")
)

// Weekdays is a day-of-week set packed into a bitmask, bit n = time.Weekday(n).
type Weekdays uint8

const EveryDay Weekdays = 0x7F

func (w Weekdays) Contains(d time.Weekday) bool {
	return w&(1<<uint(d)) != 0
}

func (w *Weekdays) Add(d time.Weekday) {
	*w |= 1 << uint(d)
}

// Alarm is a recurring wake definition. OwnerDeviceID is bound once at
// creation and names the single device entitled to audible output; it does
// not migrate automatically.
type Alarm struct {
	ID            uuid.UUID `json:"id"`
	RoomID        uuid.UUID `json:"room_id"`
	Title         string    `json:"title"`
	Hour          int       `json:"hour"`
	Minute        int       `json:"minute"`
	Days          Weekdays  `json:"days"`
	Active        bool      `json:"active"`
	CreatedBy     string    `json:"created_by"`
	OwnerDeviceID string    `json:"owner_device_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// Validate -.
func (a *Alarm) Validate() error {
	if a.RoomID == uuid.Nil {
		return fmt.Errorf("alarm - Validate: room_id is required")
	}
	if a.Hour < 0 || a.Hour > 23 || a.Minute < 0 || a.Minute > 59 {
		return fmt.Errorf("alarm - Validate: bad time of day %02d:%02d", a.Hour, a.Minute)
	}
	if a.Days == 0 {
		return fmt.Errorf("alarm - Validate: empty day set")
	}
	if a.CreatedBy == "" {
		return fmt.Errorf("alarm - Validate: created_by is required")
	}
	return nil
}

var rruleDay = map[time.Weekday]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// Rule expands the day set and time of day into a weekly RRULE anchored at
// dtstart. Used by the scheduler to decide whether the alarm is due.
func (a *Alarm) Rule(dtstart time.Time) (*rrule.RRule, error) {
	var byweekday []rrule.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if a.Days.Contains(d) {
			byweekday = append(byweekday, rruleDay[d])
		}
	}

	return rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: byweekday,
		Byhour:    []int{a.Hour},
		Byminute:  []int{a.Minute},
		Bysecond:  []int{0},
		Dtstart:   dtstart,
	})
}

// DueAt reports whether the alarm should fire in the minute containing now.
// The day set is only the storage shape; the decision comes from expanding
// the recurrence rule over the probe minute.
func (a *Alarm) DueAt(now time.Time) bool {
	if !a.Active || a.Days == 0 {
		return false
	}

	minute := now.Truncate(time.Minute)
	rule, err := a.Rule(minute.AddDate(0, 0, -7))
	if err != nil {
		return false
	}
	return len(rule.Between(minute, minute.Add(time.Minute-time.Nanosecond), true)) > 0
}

// TriggerStatus -.
type TriggerStatus string

const (
	StatusRinging   TriggerStatus = "ringing"
	StatusDismissed TriggerStatus = "dismissed"
)

// Trigger is one firing instance of an alarm. The only legal transition is
// ringing -> dismissed, performed at most once by the store-level
// conditional update.
type Trigger struct {
	ID          uuid.UUID     `json:"id"`
	AlarmID     uuid.UUID     `json:"alarm_id"`
	RoomID      uuid.UUID     `json:"room_id"`
	Status      TriggerStatus `json:"status"`
	TriggeredAt time.Time     `json:"triggered_at"`
	DismissedBy string        `json:"dismissed_by,omitempty"`
	DismissedAt *time.Time    `json:"dismissed_at,omitempty"`
}

func (t *Trigger) Dismissed() bool {
	return t.Status == StatusDismissed
}
