// Package client is the device agent's view of the coordination service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Raimguhinov/ring-go/internal/alarm"
	"github.com/Raimguhinov/ring-go/internal/auth"
	"github.com/google/uuid"
)

type Client struct {
	baseURL  string
	user     string
	password string
	deviceID func() string
	http     *http.Client
}

// New builds a client. deviceID is resolved per request, not at construction,
// so a caller whose device identity loads asynchronously does not block here.
func New(baseURL, user, password string, deviceID func() string) *Client {
	return &Client{
		baseURL:  baseURL,
		user:     user,
		password: password,
		deviceID: deviceID,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = &bytes.Buffer{}
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return fmt.Errorf("client - do - json.Encode: %w", err)
		}
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	u, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("client - do - url.JoinPath: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("client - do - http.NewRequest: %w", err)
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set(auth.DeviceHeader, c.deviceID())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client - do - http.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return alarm.ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("client - do: %s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("client - do - json.Decode: %w", err)
		}
	}
	return nil
}

func (c *Client) GetAlarm(ctx context.Context, id uuid.UUID) (*alarm.Alarm, error) {
	var a alarm.Alarm
	if err := c.do(ctx, http.MethodGet, "/alarms/"+id.String(), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) GetTrigger(ctx context.Context, id uuid.UUID) (*alarm.Trigger, error) {
	var t alarm.Trigger
	if err := c.do(ctx, http.MethodGet, "/triggers/"+id.String(), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) FindRingingTriggers(ctx context.Context, roomID uuid.UUID) ([]alarm.Trigger, error) {
	var triggers []alarm.Trigger
	if err := c.do(ctx, http.MethodGet, "/rooms/"+roomID.String()+"/triggers/ringing", nil, &triggers); err != nil {
		return nil, err
	}
	return triggers, nil
}

type dismissResponse struct {
	Applied bool           `json:"applied"`
	Trigger *alarm.Trigger `json:"trigger"`
}

// Dismiss requests the conditional transition. applied=false means someone
// else got there first, which callers treat as success.
func (c *Client) Dismiss(ctx context.Context, triggerID uuid.UUID, _ string, _ time.Time) (bool, error) {
	var resp dismissResponse
	if err := c.do(ctx, http.MethodPost, "/triggers/"+triggerID.String()+"/dismiss", struct{}{}, &resp); err != nil {
		return false, err
	}
	return resp.Applied, nil
}
