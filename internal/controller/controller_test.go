//go:build !windows

package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ormanaq/tmate/internal/logstore"
	"github.com/ormanaq/tmate/internal/session"
	"github.com/ormanaq/tmate/internal/supervisor"
)

func newTestController() *Controller {
	return New(Options{
		Region:         "test-1",
		SessionCommand: "sleep 30",
		WebDomain:      "tmate.test",
		StopWait:       2 * time.Second,
	})
}

// waitFor polls pred until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within", timeout)
}

func logLevels(logs []logstore.Log) []logstore.Level {
	out := make([]logstore.Level, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Level)
	}
	return out
}

func TestLifecycleCreateStopRestart(t *testing.T) {
	c := newTestController()
	defer c.Shutdown()

	sess, err := c.Create(CreateSpec{Name: "demo"})
	require.NoError(t, err)
	require.Equal(t, session.StatusRunning, sess.Status)
	require.NotEmpty(t, sess.ID)
	require.Equal(t, "demo", sess.Name)
	require.Equal(t, "test-1", sess.Region)
	require.Contains(t, sess.SSHCommand, sess.ID+"@test-1.tmate.test")
	require.Contains(t, sess.SSHReadOnly, "ro-"+sess.ID)
	require.Contains(t, sess.WebURL, "/t/"+sess.ID)
	require.Nil(t, sess.EndedAt)
	require.Positive(t, sess.PID)
	require.True(t, c.Tracks(sess.ID))

	logs := c.Logs(sess.ID)
	require.Len(t, logs, 1)
	require.Equal(t, logstore.LevelInfo, logs[0].Level)

	stopped, err := c.Stop(sess.ID)
	require.NoError(t, err)
	require.Equal(t, session.StatusStopped, stopped.Status)
	require.NotNil(t, stopped.EndedAt)
	require.Zero(t, stopped.PID)
	waitFor(t, 3*time.Second, func() bool { return !c.Tracks(sess.ID) })

	logs = c.Logs(sess.ID)
	require.Contains(t, logLevels(logs), logstore.LevelWarning)

	restarted, err := c.Restart(sess.ID)
	require.NoError(t, err)
	require.Equal(t, session.StatusRunning, restarted.Status)
	require.Nil(t, restarted.EndedAt)
	require.Positive(t, restarted.PID)
	require.True(t, c.Tracks(sess.ID))
	require.Contains(t, logLevels(c.Logs(sess.ID)), logstore.LevelSuccess)

	_, err = c.Stop(sess.ID)
	require.NoError(t, err)
}

func TestRestartKeepsSessionCommand(t *testing.T) {
	c := newTestController()
	defer c.Shutdown()

	sess, err := c.Create(CreateSpec{Command: "sh -c 'echo gen; sleep 30'"})
	require.NoError(t, err)

	waitFor(t, 3*time.Second, func() bool {
		return countMessage(c.Logs(sess.ID), "gen") == 1
	})

	_, err = c.Restart(sess.ID)
	require.NoError(t, err)

	// The new generation runs the same command, not the daemon default.
	waitFor(t, 3*time.Second, func() bool {
		return countMessage(c.Logs(sess.ID), "gen") == 2
	})
}

func countMessage(logs []logstore.Log, msg string) int {
	n := 0
	for _, l := range logs {
		if l.Message == msg {
			n++
		}
	}
	return n
}

func TestAbnormalExitMarksError(t *testing.T) {
	c := newTestController()

	sess, err := c.Create(CreateSpec{Command: "sh -c 'exit 3'"})
	require.NoError(t, err)

	waitFor(t, 3*time.Second, func() bool {
		got, gerr := c.Get(sess.ID)
		return gerr == nil && got.Status == session.StatusError
	})

	got, err := c.Get(sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
	require.Contains(t, logLevels(c.Logs(sess.ID)), logstore.LevelError)
}

func TestCleanExitMarksStopped(t *testing.T) {
	c := newTestController()

	sess, err := c.Create(CreateSpec{Command: "sh -c 'echo bye'"})
	require.NoError(t, err)

	waitFor(t, 3*time.Second, func() bool {
		got, gerr := c.Get(sess.ID)
		return gerr == nil && got.Status == session.StatusStopped
	})

	levels := logLevels(c.Logs(sess.ID))
	require.NotContains(t, levels, logstore.LevelWarning)
	require.Contains(t, levels, logstore.LevelInfo)
}

func TestStopExitRaceStaysStopped(t *testing.T) {
	c := newTestController()

	sess, err := c.Create(CreateSpec{Command: "sleep 30"})
	require.NoError(t, err)

	stopped, err := c.Stop(sess.ID)
	require.NoError(t, err)
	require.Equal(t, session.StatusStopped, stopped.Status)

	// The exit event of the terminated child must not flip the status.
	waitFor(t, 3*time.Second, func() bool { return !c.Tracks(sess.ID) })
	time.Sleep(50 * time.Millisecond)

	got, err := c.Get(sess.ID)
	require.NoError(t, err)
	require.Equal(t, session.StatusStopped, got.Status)

	// Exactly one terminal record: the user stop.
	var warnings, exits int
	for _, l := range c.Logs(sess.ID) {
		if l.Level == logstore.LevelWarning {
			warnings++
		}
		if l.Level == logstore.LevelError {
			exits++
		}
	}
	require.Equal(t, 1, warnings)
	require.Zero(t, exits)
}

func TestStdoutBecomesInfoStderrBecomesError(t *testing.T) {
	c := newTestController()

	sess, err := c.Create(CreateSpec{Command: "sh -c 'echo out; echo err 1>&2'"})
	require.NoError(t, err)

	waitFor(t, 3*time.Second, func() bool {
		var out, errLine bool
		for _, l := range c.Logs(sess.ID) {
			if l.Message == "out" && l.Level == logstore.LevelInfo {
				out = true
			}
			if l.Message == "err" && l.Level == logstore.LevelError {
				errLine = true
			}
		}
		return out && errLine
	})
}

func TestSpawnFailureLeavesNoSession(t *testing.T) {
	c := newTestController()

	_, err := c.Create(CreateSpec{Command: "/definitely/not/a/binary"})
	require.ErrorIs(t, err, ErrSpawnFailed)
	require.Empty(t, c.ListAll())
}

func TestNotFoundPaths(t *testing.T) {
	c := newTestController()

	_, err := c.Get("nope")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = c.Stop("nope")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = c.Restart("nope")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, c.Delete("nope"), ErrNotFound)
}

func TestDeleteStopsAndClears(t *testing.T) {
	c := newTestController()

	sess, err := c.Create(CreateSpec{Command: "sleep 30"})
	require.NoError(t, err)

	require.NoError(t, c.Delete(sess.ID))
	waitFor(t, 3*time.Second, func() bool { return !c.Tracks(sess.ID) })

	_, err = c.Get(sess.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.Empty(t, c.Logs(sess.ID))
}

func TestDeleteDropsAsyncExitState(t *testing.T) {
	c := newTestController()

	sess, err := c.Create(CreateSpec{Command: "sleep 30"})
	require.NoError(t, err)
	require.NoError(t, c.Delete(sess.ID))
	waitFor(t, 3*time.Second, func() bool { return !c.Tracks(sess.ID) })

	require.Zero(t, c.sup.Generation(sess.ID))

	// A straggling exit for the deleted session is dropped, not stashed.
	c.handleExit(supervisor.Event{SessionID: sess.ID, Type: supervisor.EventExit, At: time.Now()})
	c.pendMu.Lock()
	pending := len(c.pendingExits)
	c.pendMu.Unlock()
	require.Zero(t, pending)
}

func TestListActiveDropsTerminal(t *testing.T) {
	c := newTestController()
	defer c.Shutdown()

	a, err := c.Create(CreateSpec{Name: "a"})
	require.NoError(t, err)
	b, err := c.Create(CreateSpec{Name: "b"})
	require.NoError(t, err)

	require.Len(t, c.ListActive(), 2)
	_, err = c.Stop(a.ID)
	require.NoError(t, err)

	active := c.ListActive()
	require.Len(t, active, 1)
	require.Equal(t, b.ID, active[0].ID)
	require.Len(t, c.ListAll(), 2)
}

func TestObserversSeeRecordsInOrder(t *testing.T) {
	c := newTestController()

	o := c.Subscribe()
	defer c.Unsubscribe(o)

	sess, err := c.Create(CreateSpec{Command: "sh -c 'sleep 0.2; echo one; echo two; echo three'"})
	require.NoError(t, err)

	var msgs []string
	deadline := time.After(3 * time.Second)
	for len(msgs) < 4 {
		select {
		case ev := <-o.Events():
			require.Equal(t, "log", ev.Kind)
			require.Equal(t, sess.ID, ev.Payload.SessionID)
			msgs = append(msgs, ev.Payload.Message)
		case <-deadline:
			t.Fatalf("timed out, got %v", msgs)
		}
	}
	require.Equal(t, "session created", msgs[0])
	require.Equal(t, []string{"one", "two", "three"}, msgs[1:])
}

func TestClearLogsScoped(t *testing.T) {
	c := newTestController()
	defer c.Shutdown()

	a, err := c.Create(CreateSpec{Name: "a"})
	require.NoError(t, err)
	b, err := c.Create(CreateSpec{Name: "b"})
	require.NoError(t, err)

	c.ClearLogs(a.ID)
	require.Empty(t, c.Logs(a.ID))
	require.NotEmpty(t, c.Logs(b.ID))

	c.ClearLogs("")
	require.Empty(t, c.Logs(b.ID))
	require.Empty(t, c.Recent(10))
}

func TestShutdownStopsEverything(t *testing.T) {
	c := newTestController()

	a, err := c.Create(CreateSpec{})
	require.NoError(t, err)
	b, err := c.Create(CreateSpec{})
	require.NoError(t, err)

	c.Shutdown()
	waitFor(t, 3*time.Second, func() bool { return !c.Tracks(a.ID) && !c.Tracks(b.ID) })

	for _, id := range []string{a.ID, b.ID} {
		got, gerr := c.Get(id)
		require.NoError(t, gerr)
		require.Equal(t, session.StatusStopped, got.Status)
		require.NotNil(t, got.EndedAt)
	}
	require.Empty(t, c.ListActive())
}
