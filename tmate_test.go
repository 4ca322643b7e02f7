package tmate

import (
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func TestManagerFacadeLifecycle(t *testing.T) {
	requireUnix(t)
	m := New(Options{SessionCommand: "sleep 30", StopWait: 2 * time.Second})
	defer m.Shutdown()

	sess, err := m.Create(CreateSpec{Name: "facade"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.Status != StatusRunning || sess.SSHCommand == "" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	got, err := m.Get(sess.ID)
	if err != nil || got.ID != sess.ID {
		t.Fatalf("get: %v %+v", err, got)
	}
	if n := len(m.ListActive()); n != 1 {
		t.Fatalf("expected 1 active, got %d", n)
	}
	if logs := m.Logs(sess.ID); len(logs) == 0 {
		t.Fatal("expected creation log")
	}

	stopped, err := m.Stop(sess.ID)
	if err != nil || stopped.Status != StatusStopped {
		t.Fatalf("stop: %v %+v", err, stopped)
	}
	if err := m.Delete(sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Get(sess.ID); err == nil {
		t.Fatal("expected not found after delete")
	}
}

func TestFacadeObserver(t *testing.T) {
	requireUnix(t)
	m := New(Options{SessionCommand: "sleep 30", StopWait: 2 * time.Second})
	defer m.Shutdown()

	o := m.Subscribe()
	defer m.Unsubscribe(o)

	sess, err := m.Create(CreateSpec{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	select {
	case ev := <-o.Events():
		if ev.Kind != "log" || ev.Payload.SessionID != sess.ID {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no event received")
	}
}

func TestRegisterMetricsFacade(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := RegisterMetrics(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("register default: %v", err)
	}
}

func TestNewHistorySinkSQLite(t *testing.T) {
	sink, err := NewHistorySink("sqlite://:memory:")
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	if closer, ok := sink.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}
