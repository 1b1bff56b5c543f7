// Package session implements the per-device runtime of an active trigger:
// role resolution, the ring session state machine, and the dismissal
// synchronizer that mirrors remote dismissals locally.
package session

import "github.com/Raimguhinov/ring-go/internal/alarm"

// IsOwningDevice reports whether the connecting device is entitled to
// audible output for the alarm's triggers. Owning iff the current user is
// the alarm's creator, the alarm carries an owner device binding, and that
// binding names this device. Pure; recompute whenever any input changes.
func IsOwningDevice(userID, deviceID string, a *alarm.Alarm) bool {
	if userID == "" || deviceID == "" {
		return false
	}
	return a.CreatedBy == userID &&
		a.OwnerDeviceID != "" &&
		a.OwnerDeviceID == deviceID
}
