package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Raimguhinov/ring-go/internal/alarm"
	"github.com/Raimguhinov/ring-go/internal/auth"
	"github.com/Raimguhinov/ring-go/internal/config"
	"github.com/Raimguhinov/ring-go/internal/feed"
	"github.com/Raimguhinov/ring-go/pkg/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo is an in-memory Repository good enough to drive the handlers.
type memRepo struct {
	mu       sync.Mutex
	alarms   map[uuid.UUID]alarm.Alarm
	triggers map[uuid.UUID]alarm.Trigger
	members  map[uuid.UUID][]string
}

func newMemRepo() *memRepo {
	return &memRepo{
		alarms:   make(map[uuid.UUID]alarm.Alarm),
		triggers: make(map[uuid.UUID]alarm.Trigger),
		members:  make(map[uuid.UUID][]string),
	}
}

func (m *memRepo) CreateAlarm(_ context.Context, a *alarm.Alarm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	m.alarms[a.ID] = *a
	return nil
}

func (m *memRepo) FindAlarms(_ context.Context, roomID uuid.UUID) ([]alarm.Alarm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []alarm.Alarm
	for _, a := range m.alarms {
		if a.RoomID == roomID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepo) FindActiveAlarms(context.Context) ([]alarm.Alarm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []alarm.Alarm
	for _, a := range m.alarms {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepo) GetAlarm(_ context.Context, id uuid.UUID) (*alarm.Alarm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alarms[id]
	if !ok {
		return nil, alarm.ErrNotFound
	}
	return &a, nil
}

func (m *memRepo) UpdateAlarm(_ context.Context, a *alarm.Alarm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.alarms[a.ID]
	if !ok {
		return alarm.ErrNotFound
	}
	// Owner device binding never changes through updates.
	a.OwnerDeviceID = stored.OwnerDeviceID
	m.alarms[a.ID] = *a
	return nil
}

func (m *memRepo) DeactivateAlarm(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alarms[id]
	if !ok {
		return alarm.ErrNotFound
	}
	a.Active = false
	m.alarms[id] = a
	return nil
}

func (m *memRepo) InsertTrigger(_ context.Context, alarmID uuid.UUID, at time.Time, window time.Duration) (*alarm.Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.triggers {
		if t.AlarmID == alarmID && t.TriggeredAt.After(at.Add(-window)) {
			return nil, alarm.ErrTriggerExists
		}
	}
	a := m.alarms[alarmID]
	t := alarm.Trigger{
		ID:          uuid.New(),
		AlarmID:     alarmID,
		RoomID:      a.RoomID,
		Status:      alarm.StatusRinging,
		TriggeredAt: at,
	}
	m.triggers[t.ID] = t
	return &t, nil
}

func (m *memRepo) GetTrigger(_ context.Context, id uuid.UUID) (*alarm.Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.triggers[id]
	if !ok {
		return nil, alarm.ErrNotFound
	}
	return &t, nil
}

func (m *memRepo) FindRingingTriggers(_ context.Context, roomID uuid.UUID) ([]alarm.Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []alarm.Trigger
	for _, t := range m.triggers {
		if t.RoomID == roomID && t.Status == alarm.StatusRinging {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memRepo) DismissTrigger(_ context.Context, triggerID uuid.UUID, byUser string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.triggers[triggerID]
	if !ok || t.Status != alarm.StatusRinging {
		return false, nil
	}
	t.Status = alarm.StatusDismissed
	t.DismissedBy = byUser
	t.DismissedAt = &at
	m.triggers[triggerID] = t
	return true, nil
}

func (m *memRepo) RoomMembers(_ context.Context, roomID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[roomID], nil
}

func (m *memRepo) IsRoomMember(_ context.Context, roomID uuid.UUID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.members[roomID] {
		if u == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) AddNotifications(context.Context, uuid.UUID, []string, string) error {
	return nil
}

type testServer struct {
	repo   *memRepo
	feed   *feed.Feed
	server *httptest.Server
	roomID uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemRepo()
	roomID := uuid.New()
	repo.members[roomID] = []string{"alice", "bob"}

	f := feed.New(client, logger.NewDiscard())

	cfg := &config.Config{}
	cfg.HTTP.Users = map[string]string{"alice": "secret", "bob": "secret", "mallory": "secret"}

	provider, err := auth.NewBasicAuth("ring", cfg.HTTP.Users)
	require.NoError(t, err)

	router := SetupRouter(logger.NewDiscard(), cfg, repo, f, provider)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{repo: repo, feed: f, server: srv, roomID: roomID}
}

func (ts *testServer) do(t *testing.T, user, method, path string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	require.NoError(t, err)
	req.SetBasicAuth(user, "secret")
	req.Header.Set(auth.DeviceHeader, "dev-"+user)

	resp, err := ts.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestCreateAlarmBindsOwnerDevice(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "alice", http.MethodPost, "/rooms/"+ts.roomID.String()+"/alarms", createAlarmRequest{
		Title:  "Morning run",
		Hour:   7,
		Minute: 30,
		Days:   []int{1, 3, 5},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decode[alarm.Alarm](t, resp)
	assert.Equal(t, "alice", created.CreatedBy)
	assert.Equal(t, "dev-alice", created.OwnerDeviceID)
	assert.True(t, created.Active)
	assert.True(t, created.Days.Contains(time.Monday))
	assert.False(t, created.Days.Contains(time.Sunday))
}

func TestCreateAlarmRejectsBadPayloads(t *testing.T) {
	ts := newTestServer(t)
	base := "/rooms/" + ts.roomID.String() + "/alarms"

	resp := ts.do(t, "alice", http.MethodPost, base, createAlarmRequest{Hour: 25, Days: []int{1}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, "alice", http.MethodPost, base, createAlarmRequest{Hour: 7, Days: []int{8}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, "alice", http.MethodPost, base, createAlarmRequest{Hour: 7})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNonMemberIsForbidden(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "mallory", http.MethodGet, "/rooms/"+ts.roomID.String()+"/alarms", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, "mallory", http.MethodPost, "/rooms/"+ts.roomID.String()+"/alarms", createAlarmRequest{
		Hour: 7, Days: []int{1},
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUnauthenticatedIsRejected(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.server.URL+"/rooms/"+ts.roomID.String()+"/alarms", nil)
	require.NoError(t, err)
	resp, err := ts.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUpdateAlarmNeverMovesOwnerDevice(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "alice", http.MethodPost, "/rooms/"+ts.roomID.String()+"/alarms", createAlarmRequest{
		Title: "Wake", Hour: 7, Minute: 0, Days: []int{1},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[alarm.Alarm](t, resp)

	// Bob edits from his own device; the audible-owner binding must stay
	// with alice's creating device.
	newTitle := "Wake earlier"
	resp = ts.do(t, "bob", http.MethodPatch, "/alarms/"+created.ID.String(), updateAlarmRequest{Title: &newTitle})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decode[alarm.Alarm](t, resp)
	assert.Equal(t, "Wake earlier", updated.Title)
	assert.Equal(t, "dev-alice", updated.OwnerDeviceID)
	assert.Equal(t, "alice", updated.CreatedBy)
}

func TestDeleteAlarmDeactivates(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "alice", http.MethodPost, "/rooms/"+ts.roomID.String()+"/alarms", createAlarmRequest{
		Hour: 7, Days: []int{1},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[alarm.Alarm](t, resp)

	resp = ts.do(t, "alice", http.MethodDelete, "/alarms/"+created.ID.String(), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	stored, err := ts.repo.GetAlarm(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
}

func (ts *testServer) seedRingingTrigger(t *testing.T) alarm.Trigger {
	t.Helper()

	a := alarm.Alarm{
		RoomID: ts.roomID, Title: "Wake", Hour: 7, Days: alarm.EveryDay,
		Active: true, CreatedBy: "alice", OwnerDeviceID: "dev-alice",
	}
	require.NoError(t, ts.repo.CreateAlarm(context.Background(), &a))

	trigger, err := ts.repo.InsertTrigger(context.Background(), a.ID, time.Now(), 2*time.Minute)
	require.NoError(t, err)
	return *trigger
}

func TestDismissAppliesAndPublishes(t *testing.T) {
	ts := newTestServer(t)
	trigger := ts.seedRingingTrigger(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := ts.feed.Subscribe(ctx, ts.roomID)
	require.NoError(t, err)

	resp := ts.do(t, "bob", http.MethodPost, "/triggers/"+trigger.ID.String()+"/dismiss", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decode[dismissResponse](t, resp)
	assert.True(t, result.Applied)
	require.NotNil(t, result.Trigger)
	assert.Equal(t, alarm.StatusDismissed, result.Trigger.Status)
	assert.Equal(t, "bob", result.Trigger.DismissedBy)
	require.NotNil(t, result.Trigger.DismissedAt)

	select {
	case e := <-events:
		assert.Equal(t, feed.EventDismissed, e.Type)
		assert.Equal(t, trigger.ID, e.TriggerID)
		assert.Equal(t, "bob", e.DismissedBy)
	case <-time.After(2 * time.Second):
		t.Fatal("no dismissed event on the feed")
	}
}

func TestDismissLostRaceReturnsCurrentState(t *testing.T) {
	ts := newTestServer(t)
	trigger := ts.seedRingingTrigger(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := ts.feed.Subscribe(ctx, ts.roomID)
	require.NoError(t, err)

	resp := ts.do(t, "alice", http.MethodPost, "/triggers/"+trigger.ID.String()+"/dismiss", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = decode[dismissResponse](t, resp)

	// Second dismissal of the same trigger: still 200, applied=false, and
	// no duplicate event on the feed.
	resp = ts.do(t, "bob", http.MethodPost, "/triggers/"+trigger.ID.String()+"/dismiss", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decode[dismissResponse](t, resp)
	assert.False(t, result.Applied)
	assert.Equal(t, alarm.StatusDismissed, result.Trigger.Status)
	assert.Equal(t, "alice", result.Trigger.DismissedBy)

	first := <-events
	assert.Equal(t, "alice", first.DismissedBy)
	select {
	case e := <-events:
		t.Fatalf("unexpected second feed event: %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDismissUnknownTriggerIs404(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "alice", http.MethodPost, "/triggers/"+uuid.NewString()+"/dismiss", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListRinging(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "alice", http.MethodGet, "/rooms/"+ts.roomID.String()+"/triggers/ringing", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]alarm.Trigger](t, resp))

	trigger := ts.seedRingingTrigger(t)

	resp = ts.do(t, "alice", http.MethodGet, "/rooms/"+ts.roomID.String()+"/triggers/ringing", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ringing := decode[[]alarm.Trigger](t, resp)
	require.Len(t, ringing, 1)
	assert.Equal(t, trigger.ID, ringing[0].ID)

	// Dismissed triggers drop out of the ringing list.
	resp = ts.do(t, "bob", http.MethodPost, "/triggers/"+trigger.ID.String()+"/dismiss", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, "alice", http.MethodGet, "/rooms/"+ts.roomID.String()+"/triggers/ringing", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]alarm.Trigger](t, resp))
}
