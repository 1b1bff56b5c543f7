package db

import (
	"context"
	"time"

	"github.com/Raimguhinov/ring-go/internal/alarm"
	"github.com/Raimguhinov/ring-go/internal/alarm/db/models"
	"github.com/Raimguhinov/ring-go/pkg/logger"
	"github.com/Raimguhinov/ring-go/pkg/postgres"
	"github.com/google/uuid"
)

type repository struct {
	client *postgres.Postgres
	logger *logger.Logger
}

func NewRepository(client *postgres.Postgres, logger *logger.Logger) alarm.Repository {
	return &repository{
		client: client,
		logger: logger,
	}
}

func (r *repository) CreateAlarm(ctx context.Context, a *alarm.Alarm) error {
	r.logger.Debug("postgres.CreateAlarm")

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m := models.FromDomain(a)

	err := r.client.Pool.QueryRow(ctx, `
		INSERT INTO ring.alarm
			(id, room_id, title, time_of_day, days, active, created_by, owner_device_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, m.ID, m.RoomID, m.Title, m.TimeOfDay, m.Days, m.Active, m.CreatedBy, m.OwnerDeviceID,
	).Scan(&m.CreatedAt)
	if err != nil {
		err = r.client.ToPgErr(err)
		r.logger.Error("postgres.CreateAlarm", logger.Err(err))
		return err
	}
	a.CreatedAt = m.CreatedAt.Time
	return nil
}

const alarmColumns = `
	id, room_id, title, time_of_day, days, active, created_by,
	COALESCE(owner_device_id, '') AS owner_device_id, created_at
`

func (r *repository) FindAlarms(ctx context.Context, roomID uuid.UUID) ([]alarm.Alarm, error) {
	r.logger.Debug("postgres.FindAlarms")

	rows, err := r.client.Pool.Query(ctx, `
		SELECT `+alarmColumns+`
		FROM ring.alarm
		WHERE room_id = $1
		ORDER BY time_of_day, id
	`, roomID)
	if err != nil {
		err = r.client.ToPgErr(err)
		r.logger.Error("postgres.FindAlarms", logger.Err(err))
		return nil, err
	}
	defer rows.Close()

	var alarms []alarm.Alarm
	for rows.Next() {
		var m models.Alarm
		if err := rows.Scan(
			&m.ID, &m.RoomID, &m.Title, &m.TimeOfDay, &m.Days,
			&m.Active, &m.CreatedBy, &m.OwnerDeviceID, &m.CreatedAt,
		); err != nil {
			err = r.client.ToPgErr(err)
			r.logger.Error("postgres.FindAlarms", logger.Err(err))
			return nil, err
		}
		alarms = append(alarms, m.ToDomain())
	}
	return alarms, nil
}

func (r *repository) FindActiveAlarms(ctx context.Context) ([]alarm.Alarm, error) {
	r.logger.Debug("postgres.FindActiveAlarms")

	rows, err := r.client.Pool.Query(ctx, `
		SELECT `+alarmColumns+`
		FROM ring.alarm
		WHERE active
	`)
	if err != nil {
		err = r.client.ToPgErr(err)
		r.logger.Error("postgres.FindActiveAlarms", logger.Err(err))
		return nil, err
	}
	defer rows.Close()

	var alarms []alarm.Alarm
	for rows.Next() {
		var m models.Alarm
		if err := rows.Scan(
			&m.ID, &m.RoomID, &m.Title, &m.TimeOfDay, &m.Days,
			&m.Active, &m.CreatedBy, &m.OwnerDeviceID, &m.CreatedAt,
		); err != nil {
			err = r.client.ToPgErr(err)
			r.logger.Error("postgres.FindActiveAlarms", logger.Err(err))
			return nil, err
		}
		alarms = append(alarms, m.ToDomain())
	}
	return alarms, nil
}

func (r *repository) GetAlarm(ctx context.Context, id uuid.UUID) (*alarm.Alarm, error) {
	r.logger.Debug("postgres.GetAlarm")

	var m models.Alarm
	err := r.client.Pool.QueryRow(ctx, `
		SELECT `+alarmColumns+`
		FROM ring.alarm
		WHERE id = $1
	`, id).Scan(
		&m.ID, &m.RoomID, &m.Title, &m.TimeOfDay, &m.Days,
		&m.Active, &m.CreatedBy, &m.OwnerDeviceID, &m.CreatedAt,
	)
	if err != nil {
		if r.client.IsNoRows(err) {
			return nil, alarm.ErrNotFound
		}
		err = r.client.ToPgErr(err)
		r.logger.Error("postgres.GetAlarm", logger.Err(err))
		return nil, err
	}
	a := m.ToDomain()
	return &a, nil
}

// UpdateAlarm rewrites the editable fields. owner_device_id is deliberately
// not in the SET list: the owner binding is set once at creation.
func (r *repository) UpdateAlarm(ctx context.Context, a *alarm.Alarm) error {
	r.logger.Debug("postgres.UpdateAlarm")

	m := models.FromDomain(a)

	tag, err := r.client.Pool.Exec(ctx, `
		UPDATE ring.alarm
		SET title = $2, time_of_day = $3, days = $4, active = $5
		WHERE id = $1
	`, m.ID, m.Title, m.TimeOfDay, m.Days, m.Active)
	if err != nil {
		err = r.client.ToPgErr(err)
		r.logger.Error("postgres.UpdateAlarm", logger.Err(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return alarm.ErrNotFound
	}
	return nil
}

func (r *repository) DeactivateAlarm(ctx context.Context, id uuid.UUID) error {
	r.logger.Debug("postgres.DeactivateAlarm")

	tag, err := r.client.Pool.Exec(ctx, `
		UPDATE ring.alarm SET active = FALSE WHERE id = $1
	`, id)
	if err != nil {
		err = r.client.ToPgErr(err)
		r.logger.Error("postgres.DeactivateAlarm", logger.Err(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return alarm.ErrNotFound
	}
	return nil
}

// InsertTrigger inserts a ringing trigger only when no trigger for the alarm
// exists inside the trailing window. Guard and insert are a single statement
// so overlapping probe invocations cannot both pass the check.
func (r *repository) InsertTrigger(
	ctx context.Context,
	alarmID uuid.UUID,
	at time.Time,
	window time.Duration,
) (*alarm.Trigger, error) {
	r.logger.Debug("postgres.InsertTrigger")

	id := uuid.New()

	tag, err := r.client.Pool.Exec(ctx, `
		INSERT INTO ring.trigger (id, alarm_id, status, triggered_at)
		SELECT $1, $2, 'ringing', $3
		WHERE NOT EXISTS (
			SELECT 1 FROM ring.trigger
			WHERE alarm_id = $2 AND triggered_at > $4
		)
	`, id, alarmID, at, at.Add(-window))
	if err != nil {
		// trigger_one_ringing_idx catches the race two concurrent probes can
		// reach when both NOT EXISTS checks pass on pre-insert snapshots.
		if r.client.IsUniqueViolation(err) {
			return nil, alarm.ErrTriggerExists
		}
		err = r.client.ToPgErr(err)
		r.logger.Error("postgres.InsertTrigger", logger.Err(err))
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, alarm.ErrTriggerExists
	}

	return r.GetTrigger(ctx, id)
}

const triggerQuery = `
	SELECT
		t.id, t.alarm_id, a.room_id, t.status, t.triggered_at,
		COALESCE(t.dismissed_by, '') AS dismissed_by, t.dismissed_at
	FROM ring.trigger t
	JOIN ring.alarm a ON a.id = t.alarm_id
`

func (r *repository) GetTrigger(ctx context.Context, id uuid.UUID) (*alarm.Trigger, error) {
	r.logger.Debug("postgres.GetTrigger")

	var m models.Trigger
	err := r.client.Pool.QueryRow(ctx, triggerQuery+`WHERE t.id = $1`, id).Scan(
		&m.ID, &m.AlarmID, &m.RoomID, &m.Status, &m.TriggeredAt, &m.DismissedBy, &m.DismissedAt,
	)
	if err != nil {
		if r.client.IsNoRows(err) {
			return nil, alarm.ErrNotFound
		}
		err = r.client.ToPgErr(err)
		r.logger.Error("postgres.GetTrigger", logger.Err(err))
		return nil, err
	}
	t := m.ToDomain()
	return &t, nil
}

func (r *repository) FindRingingTriggers(ctx context.Context, roomID uuid.UUID) ([]alarm.Trigger, error) {
	r.logger.Debug("postgres.FindRingingTriggers")

	rows, err := r.client.Pool.Query(ctx,
		triggerQuery+`WHERE a.room_id = $1 AND t.status = 'ringing' ORDER BY t.triggered_at`,
		roomID,
	)
	if err != nil {
		err = r.client.ToPgErr(err)
		r.logger.Error("postgres.FindRingingTriggers", logger.Err(err))
		return nil, err
	}
	defer rows.Close()

	var triggers []alarm.Trigger
	for rows.Next() {
		var m models.Trigger
		if err := rows.Scan(
			&m.ID, &m.AlarmID, &m.RoomID, &m.Status, &m.TriggeredAt, &m.DismissedBy, &m.DismissedAt,
		); err != nil {
			err = r.client.ToPgErr(err)
			r.logger.Error("postgres.FindRingingTriggers", logger.Err(err))
			return nil, err
		}
		triggers = append(triggers, m.ToDomain())
	}
	return triggers, nil
}

// DismissTrigger is the sole correctness-critical write: the WHERE clause
// makes the ringing -> dismissed transition atomic, so exactly one of any
// set of concurrent attempts applies.
func (r *repository) DismissTrigger(
	ctx context.Context,
	triggerID uuid.UUID,
	byUser string,
	at time.Time,
) (bool, error) {
	r.logger.Debug("postgres.DismissTrigger")

	tag, err := r.client.Pool.Exec(ctx, `
		UPDATE ring.trigger
		SET status = 'dismissed', dismissed_by = $2, dismissed_at = $3
		WHERE id = $1 AND status = 'ringing'
	`, triggerID, byUser, at)
	if err != nil {
		err = r.client.ToPgErr(err)
		r.logger.Error("postgres.DismissTrigger", logger.Err(err))
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) RoomMembers(ctx context.Context, roomID uuid.UUID) ([]string, error) {
	r.logger.Debug("postgres.RoomMembers")

	rows, err := r.client.Pool.Query(ctx, `
		SELECT user_id FROM ring.room_member WHERE room_id = $1
	`, roomID)
	if err != nil {
		err = r.client.ToPgErr(err)
		r.logger.Error("postgres.RoomMembers", logger.Err(err))
		return nil, err
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			err = r.client.ToPgErr(err)
			r.logger.Error("postgres.RoomMembers", logger.Err(err))
			return nil, err
		}
		members = append(members, id)
	}
	return members, nil
}

func (r *repository) IsRoomMember(ctx context.Context, roomID uuid.UUID, userID string) (bool, error) {
	r.logger.Debug("postgres.IsRoomMember")

	var ok bool
	err := r.client.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ring.room_member WHERE room_id = $1 AND user_id = $2
		)
	`, roomID, userID).Scan(&ok)
	if err != nil {
		err = r.client.ToPgErr(err)
		r.logger.Error("postgres.IsRoomMember", logger.Err(err))
		return false, err
	}
	return ok, nil
}

func (r *repository) AddNotifications(
	ctx context.Context,
	triggerID uuid.UUID,
	userIDs []string,
	message string,
) error {
	r.logger.Debug("postgres.AddNotifications")

	tx, err := r.client.NewTx(ctx)
	if err != nil {
		err = r.client.ToPgErr(err)
		r.logger.Error("postgres.AddNotifications", logger.Err(err))
		return err
	}
	defer func(tx *postgres.Tx, ctx context.Context) {
		_ = tx.Rollback(ctx)
	}(tx, ctx)

	batch := r.client.NewBatch()
	for _, userID := range userIDs {
		batch.Queue(`
			INSERT INTO ring.notification (id, trigger_id, user_id, message)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (trigger_id, user_id) DO NOTHING
		`, uuid.New(), triggerID, userID, message)
	}

	res := tx.SendBatch(ctx, batch.Batch)
	if err := res.Close(); err != nil {
		err = r.client.ToPgErr(err)
		r.logger.Error("postgres.AddNotifications send batch", logger.Err(err))
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		err = r.client.ToPgErr(err)
		r.logger.Error("postgres.AddNotifications", logger.Err(err))
		return err
	}
	return nil
}
