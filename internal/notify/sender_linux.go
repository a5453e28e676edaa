//go:build linux

package notify

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsName = "org.freedesktop.Notifications"
	notificationsPath = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod      = notificationsName + ".Notify"
)

// DBusSender talks to the freedesktop notification server on the session
// bus.
type DBusSender struct {
	conn *dbus.Conn
}

// NewPlatformSender connects to the session bus.
func NewPlatformSender() (Sender, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &DBusSender{conn: conn}, nil
}

func (s *DBusSender) Send(n Notification) error {
	urgency := byte(1)
	if n.Severity == SeverityPermission {
		urgency = 2
	}
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(urgency),
	}

	obj := s.conn.Object(notificationsName, notificationsPath)
	call := obj.Call(notifyMethod, 0,
		AppName,
		uint32(0), // replaces_id
		"",        // app_icon
		n.Title,
		n.Body,
		[]string{}, // actions
		hints,
		int32(n.Severity.Timeout().Milliseconds()),
	)
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}
	return nil
}

// Close closes the bus connection.
func (s *DBusSender) Close() error {
	return s.conn.Close()
}
