// Package notify posts desktop notifications over the session bus.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/bryanchriswhite/waycap/internal/logger"
)

const (
	notificationsService   = "org.freedesktop.Notifications"
	notificationsPath      = "/org/freedesktop/Notifications"
	notificationsInterface = "org.freedesktop.Notifications"

	appName = "waycap"
)

// Notification is one message for the notification daemon.
type Notification struct {
	Summary string
	Body    string
	// Icon is an icon name or an absolute image path, e.g. the saved
	// screenshot.
	Icon string
	// Timeout of zero lets the server decide.
	Timeout time.Duration
}

// Notifier talks to org.freedesktop.Notifications
type Notifier struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// New connects to the session bus.
func New() (*Notifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &Notifier{
		conn: conn,
		obj:  conn.Object(notificationsService, dbus.ObjectPath(notificationsPath)),
	}, nil
}

// Send posts n and returns the server-assigned notification id.
func (n *Notifier) Send(ctx context.Context, msg Notification) (uint32, error) {
	timeout := int32(-1)
	if msg.Timeout > 0 {
		timeout = int32(msg.Timeout / time.Millisecond)
	}

	hints := map[string]dbus.Variant{}
	if msg.Icon != "" {
		hints["image-path"] = dbus.MakeVariant(msg.Icon)
	}

	var id uint32
	call := n.obj.CallWithContext(ctx, notificationsInterface+".Notify", 0,
		appName,
		uint32(0),
		msg.Icon,
		msg.Summary,
		msg.Body,
		[]string{},
		hints,
		timeout,
	)
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("failed to send notification: %w", err)
	}

	logger.WithComponent("notify").Debug().
		Uint32("id", id).
		Str("summary", msg.Summary).
		Msg("Notification sent")
	return id, nil
}

// Close closes the bus connection
func (n *Notifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}

// Send posts a single notification on a fresh connection.
func Send(ctx context.Context, msg Notification) error {
	n, err := New()
	if err != nil {
		return err
	}
	defer n.Close()

	_, err = n.Send(ctx, msg)
	return err
}
