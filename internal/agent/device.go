package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DeviceID returns this device's stable identifier, creating and persisting
// one on first run. The identifier is what alarm owner-device bindings
// compare against, so it must survive restarts.
func DeviceID() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("agent - DeviceID - os.UserConfigDir: %w", err)
	}

	path := filepath.Join(dir, "ring-go", "device-id")

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if _, err := uuid.Parse(id); err == nil {
			return id, nil
		}
		// Corrupt file: fall through and mint a new identity.
	}

	id := uuid.New().String()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("agent - DeviceID - os.MkdirAll: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("agent - DeviceID - os.WriteFile: %w", err)
	}
	return id, nil
}
