package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Raimguhinov/ring-go/internal/alarm"
	"github.com/Raimguhinov/ring-go/internal/auth"
	"github.com/Raimguhinov/ring-go/internal/feed"
	"github.com/Raimguhinov/ring-go/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type handler struct {
	repo alarm.Repository
	feed *feed.Feed
	log  *logger.Logger
}

func newHandler(repo alarm.Repository, f *feed.Feed, l *logger.Logger) *handler {
	return &handler{
		repo: repo,
		feed: f,
		log:  l,
	}
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("app - writeJSON", logger.Err(err))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

func (h *handler) identity(r *http.Request) (*auth.AuthContext, bool) {
	return auth.FromContext(r.Context())
}

func (h *handler) pathUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

func (h *handler) requireMember(w http.ResponseWriter, r *http.Request, roomID uuid.UUID, userID string) bool {
	ok, err := h.repo.IsRoomMember(r.Context(), roomID, userID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "membership check failed")
		return false
	}
	if !ok {
		h.writeError(w, http.StatusForbidden, "not a member of this room")
		return false
	}
	return true
}

type createAlarmRequest struct {
	Title  string `json:"title"`
	Hour   int    `json:"hour"`
	Minute int    `json:"minute"`
	Days   []int  `json:"days"`
}

func (h *handler) createAlarm(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := h.identity(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	roomID, ok := h.pathUUID(r, "roomID")
	if !ok {
		h.writeError(w, http.StatusBadRequest, "bad room id")
		return
	}
	if !h.requireMember(w, r, roomID, authCtx.UserName) {
		return
	}

	var req createAlarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "bad request body")
		return
	}

	var days alarm.Weekdays
	for _, d := range req.Days {
		if d < 0 || d > 6 {
			h.writeError(w, http.StatusBadRequest, "bad weekday")
			return
		}
		days.Add(time.Weekday(d))
	}

	// The creating device becomes the owning device; the binding never
	// migrates automatically.
	a := alarm.Alarm{
		RoomID:        roomID,
		Title:         req.Title,
		Hour:          req.Hour,
		Minute:        req.Minute,
		Days:          days,
		Active:        true,
		CreatedBy:     authCtx.UserName,
		OwnerDeviceID: authCtx.DeviceID,
	}
	if err := a.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.CreateAlarm(r.Context(), &a); err != nil {
		h.writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	h.writeJSON(w, http.StatusCreated, a)
}

func (h *handler) listAlarms(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := h.identity(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	roomID, ok := h.pathUUID(r, "roomID")
	if !ok {
		h.writeError(w, http.StatusBadRequest, "bad room id")
		return
	}
	if !h.requireMember(w, r, roomID, authCtx.UserName) {
		return
	}

	alarms, err := h.repo.FindAlarms(r.Context(), roomID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if alarms == nil {
		alarms = []alarm.Alarm{}
	}
	h.writeJSON(w, http.StatusOK, alarms)
}

func (h *handler) getAlarm(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := h.identity(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	alarmID, ok := h.pathUUID(r, "alarmID")
	if !ok {
		h.writeError(w, http.StatusBadRequest, "bad alarm id")
		return
	}

	a, err := h.repo.GetAlarm(r.Context(), alarmID)
	if err != nil {
		if errors.Is(err, alarm.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "alarm not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "get failed")
		return
	}
	if !h.requireMember(w, r, a.RoomID, authCtx.UserName) {
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

type updateAlarmRequest struct {
	Title  *string `json:"title,omitempty"`
	Hour   *int    `json:"hour,omitempty"`
	Minute *int    `json:"minute,omitempty"`
	Days   *[]int  `json:"days,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

func (h *handler) updateAlarm(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := h.identity(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	alarmID, ok := h.pathUUID(r, "alarmID")
	if !ok {
		h.writeError(w, http.StatusBadRequest, "bad alarm id")
		return
	}

	a, err := h.repo.GetAlarm(r.Context(), alarmID)
	if err != nil {
		if errors.Is(err, alarm.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "alarm not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "get failed")
		return
	}
	if !h.requireMember(w, r, a.RoomID, authCtx.UserName) {
		return
	}

	var req updateAlarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "bad request body")
		return
	}

	if req.Title != nil {
		a.Title = *req.Title
	}
	if req.Hour != nil {
		a.Hour = *req.Hour
	}
	if req.Minute != nil {
		a.Minute = *req.Minute
	}
	if req.Days != nil {
		var days alarm.Weekdays
		for _, d := range *req.Days {
			if d < 0 || d > 6 {
				h.writeError(w, http.StatusBadRequest, "bad weekday")
				return
			}
			days.Add(time.Weekday(d))
		}
		a.Days = days
	}
	if req.Active != nil {
		a.Active = *req.Active
	}
	if err := a.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.UpdateAlarm(r.Context(), a); err != nil {
		h.writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

// deleteAlarm deactivates; alarms are not hard-deleted in the normal flow.
func (h *handler) deleteAlarm(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := h.identity(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	alarmID, ok := h.pathUUID(r, "alarmID")
	if !ok {
		h.writeError(w, http.StatusBadRequest, "bad alarm id")
		return
	}

	a, err := h.repo.GetAlarm(r.Context(), alarmID)
	if err != nil {
		if errors.Is(err, alarm.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "alarm not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "get failed")
		return
	}
	if !h.requireMember(w, r, a.RoomID, authCtx.UserName) {
		return
	}

	if err := h.repo.DeactivateAlarm(r.Context(), alarmID); err != nil {
		h.writeError(w, http.StatusInternalServerError, "deactivate failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getTrigger(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := h.identity(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	triggerID, ok := h.pathUUID(r, "triggerID")
	if !ok {
		h.writeError(w, http.StatusBadRequest, "bad trigger id")
		return
	}

	t, err := h.repo.GetTrigger(r.Context(), triggerID)
	if err != nil {
		if errors.Is(err, alarm.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "trigger not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "get failed")
		return
	}
	if !h.requireMember(w, r, t.RoomID, authCtx.UserName) {
		return
	}
	h.writeJSON(w, http.StatusOK, t)
}

func (h *handler) listRinging(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := h.identity(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	roomID, ok := h.pathUUID(r, "roomID")
	if !ok {
		h.writeError(w, http.StatusBadRequest, "bad room id")
		return
	}
	if !h.requireMember(w, r, roomID, authCtx.UserName) {
		return
	}

	triggers, err := h.repo.FindRingingTriggers(r.Context(), roomID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if triggers == nil {
		triggers = []alarm.Trigger{}
	}
	h.writeJSON(w, http.StatusOK, triggers)
}

type dismissResponse struct {
	Applied bool           `json:"applied"`
	Trigger *alarm.Trigger `json:"trigger"`
}

// dismissTrigger performs the conditional transition. Any room member may
// dismiss, and losing the race to someone else is a success from the
// caller's point of view: the alarm is stopped either way.
func (h *handler) dismissTrigger(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := h.identity(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	triggerID, ok := h.pathUUID(r, "triggerID")
	if !ok {
		h.writeError(w, http.StatusBadRequest, "bad trigger id")
		return
	}

	t, err := h.repo.GetTrigger(r.Context(), triggerID)
	if err != nil {
		if errors.Is(err, alarm.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "trigger not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "get failed")
		return
	}
	if !h.requireMember(w, r, t.RoomID, authCtx.UserName) {
		return
	}

	applied, err := h.repo.DismissTrigger(r.Context(), triggerID, authCtx.UserName, time.Now())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "dismiss failed")
		return
	}

	t, err = h.repo.GetTrigger(r.Context(), triggerID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "get failed")
		return
	}

	if applied {
		if err := h.feed.Publish(r.Context(), feed.Event{
			Type:        feed.EventDismissed,
			TriggerID:   t.ID,
			AlarmID:     t.AlarmID,
			RoomID:      t.RoomID,
			TriggeredAt: t.TriggeredAt,
			DismissedBy: t.DismissedBy,
			DismissedAt: t.DismissedAt,
		}); err != nil {
			// The row already transitioned; subscribers reconcile on their
			// next reconnect or lookup.
			h.log.Warn("app - dismissTrigger - feed.Publish", logger.Err(err))
		}
	}

	h.writeJSON(w, http.StatusOK, dismissResponse{Applied: applied, Trigger: t})
}
