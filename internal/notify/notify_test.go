package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
)

// fakeObject records the Notify call. Unused BusObject methods are left to
// the embedded nil interface.
type fakeObject struct {
	dbus.BusObject
	method string
	args   []interface{}
	err    error
}

func (o *fakeObject) CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	o.method = method
	o.args = args
	if o.err != nil {
		return &dbus.Call{Err: o.err}
	}
	return &dbus.Call{Body: []interface{}{uint32(42)}}
}

func TestSendBuildsNotifyCall(t *testing.T) {
	obj := &fakeObject{}
	n := &Notifier{obj: obj}

	id, err := n.Send(context.Background(), Notification{
		Summary: "Screenshot saved",
		Body:    "/home/user/Pictures/screenshot-1.png",
		Icon:    "/home/user/Pictures/screenshot-1.png",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != 42 {
		t.Fatalf("id = %d", id)
	}
	if obj.method != "org.freedesktop.Notifications.Notify" {
		t.Fatalf("method = %s", obj.method)
	}
	if len(obj.args) != 8 {
		t.Fatalf("expected 8 arguments, got %d", len(obj.args))
	}
	if obj.args[0] != "waycap" || obj.args[3] != "Screenshot saved" {
		t.Fatalf("unexpected args %v", obj.args)
	}
	if obj.args[7] != int32(5000) {
		t.Fatalf("timeout = %v", obj.args[7])
	}
	hints := obj.args[6].(map[string]dbus.Variant)
	if _, ok := hints["image-path"]; !ok {
		t.Fatal("image-path hint missing")
	}
}

func TestSendDefaultTimeout(t *testing.T) {
	obj := &fakeObject{}
	if _, err := (&Notifier{obj: obj}).Send(context.Background(), Notification{Summary: "x"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if obj.args[7] != int32(-1) {
		t.Fatalf("timeout = %v, want -1", obj.args[7])
	}
	if hints := obj.args[6].(map[string]dbus.Variant); len(hints) != 0 {
		t.Fatalf("unexpected hints %v", hints)
	}
}

func TestSendError(t *testing.T) {
	obj := &fakeObject{err: errors.New("no notification daemon")}
	if _, err := (&Notifier{obj: obj}).Send(context.Background(), Notification{Summary: "x"}); err == nil {
		t.Fatal("expected error")
	}
}
