package agent

import (
	"fmt"

	"github.com/Raimguhinov/ring-go/internal/session"
	"github.com/gen2brain/beeep"
)

// desktopNotifier shows system notifications through the desktop
// environment. All failures are soft: the controller degrades to
// in-app-only alerting.
type desktopNotifier struct{}

func NewNotifier() session.Notifier {
	return desktopNotifier{}
}

func (desktopNotifier) Notify(n session.Notification) error {
	title := n.Title
	if title == "" {
		title = "Alarm"
	}

	var err error
	if n.Silent {
		err = beeep.Notify(title, n.Body, "")
	} else {
		err = beeep.Alert(title, n.Body, "")
	}
	if err != nil {
		return fmt.Errorf("agent - Notify - beeep: %w", err)
	}
	return nil
}
