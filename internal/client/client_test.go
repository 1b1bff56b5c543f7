package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Raimguhinov/ring-go/internal/alarm"
	"github.com/Raimguhinov/ring-go/internal/auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticDevice() string { return "dev-A" }

func TestClientSendsIdentity(t *testing.T) {
	triggerID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, password, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "alice", user)
		assert.Equal(t, "secret", password)
		assert.Equal(t, "dev-A", r.Header.Get(auth.DeviceHeader))

		require.Equal(t, "/triggers/"+triggerID.String(), r.URL.Path)
		_ = json.NewEncoder(w).Encode(alarm.Trigger{ID: triggerID, Status: alarm.StatusRinging})
	}))
	defer srv.Close()

	c := New(srv.URL, "alice", "secret", staticDevice)
	trigger, err := c.GetTrigger(context.Background(), triggerID)
	require.NoError(t, err)
	assert.Equal(t, triggerID, trigger.ID)
	assert.Equal(t, alarm.StatusRinging, trigger.Status)
}

func TestClientResolvesDeviceIdentityLazily(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dev-late", r.Header.Get(auth.DeviceHeader))
		_ = json.NewEncoder(w).Encode([]alarm.Trigger{})
	}))
	defer srv.Close()

	calls := 0
	c := New(srv.URL, "alice", "secret", func() string {
		calls++
		return "dev-late"
	})

	// Construction must not resolve the identity; only a request does.
	assert.Zero(t, calls)

	_, err := c.FindRingingTriggers(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestClientMapsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"alarm not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "alice", "secret", staticDevice)
	_, err := c.GetAlarm(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, alarm.ErrNotFound))
}

func TestClientDismiss(t *testing.T) {
	triggerID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/triggers/"+triggerID.String()+"/dismiss", r.URL.Path)
		_ = json.NewEncoder(w).Encode(dismissResponse{
			Applied: true,
			Trigger: &alarm.Trigger{ID: triggerID, Status: alarm.StatusDismissed},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "alice", "secret", staticDevice)
	applied, err := c.Dismiss(context.Background(), triggerID, "alice", time.Now())
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestClientDismissLostRace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(dismissResponse{Applied: false})
	}))
	defer srv.Close()

	c := New(srv.URL, "alice", "secret", staticDevice)
	applied, err := c.Dismiss(context.Background(), uuid.New(), "alice", time.Now())
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestClientSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "alice", "secret", staticDevice)
	_, err := c.FindRingingTriggers(context.Background(), uuid.New())
	require.Error(t, err)
	assert.False(t, errors.Is(err, alarm.ErrNotFound))
}
