package notify

import (
	"fmt"

	"github.com/gen2brain/beeep"
)

// DesktopNotifier shows desktop notifications through the platform notifier.
type DesktopNotifier struct {
	send func(title, message string) error
}

// NewDesktopNotifier creates a notifier backed by beeep.
func NewDesktopNotifier() *DesktopNotifier {
	return &DesktopNotifier{send: func(title, message string) error {
		return beeep.Notify(title, message, "")
	}}
}

// Notify shows a notification with no icon.
func (n *DesktopNotifier) Notify(title, message string) error {
	if err := n.send(title, message); err != nil {
		return fmt.Errorf("desktop notification: %w", err)
	}
	return nil
}
