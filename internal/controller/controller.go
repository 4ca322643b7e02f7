// Package controller orchestrates the session lifecycle. It is the only
// writer of session state: create/stop/restart requests come in here, and
// supervisor events are interpreted here into status transitions and log
// records.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ormanaq/tmate/internal/history"
	"github.com/ormanaq/tmate/internal/hub"
	"github.com/ormanaq/tmate/internal/logger"
	"github.com/ormanaq/tmate/internal/logstore"
	"github.com/ormanaq/tmate/internal/metrics"
	"github.com/ormanaq/tmate/internal/session"
	"github.com/ormanaq/tmate/internal/supervisor"
)

var (
	// ErrNotFound reports that the referenced session does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrSpawnFailed reports that the backing process could not be created.
	// The session is never persisted in that case.
	ErrSpawnFailed = errors.New("failed to spawn session process")
)

const historySendTimeout = 5 * time.Second

// Options configure a Controller.
type Options struct {
	// Region tags sessions that do not request one explicitly.
	Region string
	// SessionCommand is the command backing a session when the create
	// request does not supply one.
	SessionCommand string
	// WebDomain is the public domain used to derive SSH commands and web
	// URLs, e.g. "tmate.example.dev".
	WebDomain string
	// StopWait is the supervisor's SIGTERM-to-SIGKILL escalation timeout.
	StopWait time.Duration
	// Capture optionally persists raw child output to rotating files.
	Capture logger.FileConfig
	// MaxLogRecords bounds the in-memory log store; 0 selects the default.
	MaxLogRecords int
	// HubBuffer is the per-observer channel depth; 0 selects the default.
	HubBuffer int
	// History receives lifecycle events, best-effort. May be nil.
	History history.Sink
	Logger  *slog.Logger
}

// CreateSpec carries the caller-supplied fields of a create request.
type CreateSpec struct {
	Name    string `json:"name,omitempty"`
	Region  string `json:"region,omitempty"`
	Command string `json:"command,omitempty"`
	WorkDir string `json:"work_dir,omitempty"`
}

// Controller ties the session store, log store, supervisor and hub
// together. Safe for concurrent use.
type Controller struct {
	sessions *session.Store
	logs     *logstore.Store
	hub      *hub.Hub
	sup      *supervisor.Supervisor
	sink     history.Sink

	// pubMu serializes append-and-publish so observers see log records in
	// append order.
	pubMu sync.Mutex

	// pendMu guards exits that arrived before Create persisted the record.
	// Only sessions in creating may be stashed; an exit for any other
	// unknown session is dropped.
	pendMu       sync.Mutex
	creating     map[string]struct{}
	pendingExits map[string]supervisor.Event

	// specMu guards the per-session spawn specs used by Restart.
	specMu sync.Mutex
	specs  map[string]supervisor.Spec

	region    string
	command   string
	webDomain string
	log       *slog.Logger
}

// New assembles a controller and its owned subsystems.
func New(opts Options) *Controller {
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	if opts.Region == "" {
		opts.Region = "local"
	}
	if opts.WebDomain == "" {
		opts.WebDomain = "tmate.local"
	}
	if opts.SessionCommand == "" {
		opts.SessionCommand = "tmate -F"
	}

	c := &Controller{
		sessions:     session.NewStore(),
		logs:         logstore.NewStore(opts.MaxLogRecords),
		hub:          hub.New(opts.HubBuffer),
		sink:         opts.History,
		creating:     make(map[string]struct{}),
		pendingExits: make(map[string]supervisor.Event),
		specs:        make(map[string]supervisor.Spec),
		region:       opts.Region,
		command:      opts.SessionCommand,
		webDomain:    opts.WebDomain,
		log:          lg,
	}
	c.hub.OnDrop(metrics.IncDroppedObserver)
	c.sup = supervisor.New(c.handleEvent, supervisor.Options{
		StopWait: opts.StopWait,
		Capture:  opts.Capture,
		Logger:   lg,
	})
	return c
}

// Create allocates a session identity, spawns its backing process and
// persists the record. A spawn failure leaves nothing behind.
func (c *Controller) Create(spec CreateSpec) (session.Session, error) {
	id := c.sessions.AllocateID()

	command := spec.Command
	if command == "" {
		command = c.command
	}
	region := spec.Region
	if region == "" {
		region = c.region
	}

	spawn := supervisor.Spec{Command: command, WorkDir: spec.WorkDir}
	c.pendMu.Lock()
	c.creating[id] = struct{}{}
	c.pendMu.Unlock()
	pid, _, err := c.sup.Start(id, spawn)
	if err != nil {
		c.pendMu.Lock()
		delete(c.creating, id)
		delete(c.pendingExits, id)
		c.pendMu.Unlock()
		return session.Session{}, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	c.specMu.Lock()
	c.specs[id] = spawn
	c.specMu.Unlock()

	host := region + "." + c.webDomain
	sess := c.sessions.Create(session.Session{
		ID:          id,
		Name:        spec.Name,
		SSHCommand:  "ssh " + id + "@" + host,
		SSHReadOnly: "ssh ro-" + id + "@" + host,
		WebURL:      "https://" + host + "/t/" + id,
		Status:      session.StatusRunning,
		Region:      region,
		PID:         pid,
	})

	c.appendLog(id, "session created", logstore.LevelInfo)
	metrics.IncStart(region)
	metrics.SetRunningSessions(len(c.sessions.ListActive()))
	c.recordHistory(history.EventCreated, sess, 0, "")
	c.log.Info("session created", "session", id, "name", sess.Name, "region", region, "pid", pid)

	// A very short-lived child can exit before the record lands in the
	// store; apply the stashed exit now that it is visible.
	c.pendMu.Lock()
	ev, pending := c.pendingExits[id]
	delete(c.pendingExits, id)
	delete(c.creating, id)
	c.pendMu.Unlock()
	if pending {
		c.handleExit(ev)
		sess, _ = c.sessions.Get(id)
	}
	return sess, nil
}

// Stop terminates the session's process and marks it stopped. The status is
// written before the child is signaled so the resulting exit event observes
// a terminal status and leaves it alone.
func (c *Controller) Stop(id string) (session.Session, error) {
	if _, ok := c.sessions.Get(id); !ok {
		return session.Session{}, ErrNotFound
	}

	now := time.Now()
	stopped := session.StatusStopped
	zero := 0
	end := &now
	sess, _ := c.sessions.Update(id, session.Update{Status: &stopped, EndedAt: &end, PID: &zero})

	if err := c.sup.Stop(id); err != nil {
		c.log.Warn("session stop signal failed", "session", id, "error", err)
	}

	c.appendLog(id, "stopped by user", logstore.LevelWarning)
	metrics.IncStop(sess.Region)
	metrics.SetRunningSessions(len(c.sessions.ListActive()))
	c.recordHistory(history.EventStopped, sess, 0, "")
	c.log.Info("session stopped", "session", id)
	return sess, nil
}

// Restart replaces the session's backing process with a fresh generation
// under the same identity.
func (c *Controller) Restart(id string) (session.Session, error) {
	if _, ok := c.sessions.Get(id); !ok {
		return session.Session{}, ErrNotFound
	}

	// Park the status in stopped so the old generation's exit event cannot
	// race the new spawn into an error transition.
	stopped := session.StatusStopped
	_, _ = c.sessions.Update(id, session.Update{Status: &stopped})
	if err := c.sup.Stop(id); err != nil {
		c.log.Warn("session stop signal failed during restart", "session", id, "error", err)
	}

	c.specMu.Lock()
	spawn, ok := c.specs[id]
	c.specMu.Unlock()
	if !ok {
		spawn = supervisor.Spec{Command: c.command}
	}
	pid, _, err := c.sup.Start(id, spawn)
	if err != nil {
		now := time.Now()
		errored := session.StatusError
		end := &now
		sess, _ := c.sessions.Update(id, session.Update{Status: &errored, EndedAt: &end})
		c.appendLog(id, "restart failed: "+err.Error(), logstore.LevelError)
		metrics.IncError(sess.Region)
		c.recordHistory(history.EventErrored, sess, 0, err.Error())
		return session.Session{}, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	running := session.StatusRunning
	var noEnd *time.Time
	sess, _ := c.sessions.Update(id, session.Update{Status: &running, EndedAt: &noEnd, PID: &pid})

	c.appendLog(id, "session restarted", logstore.LevelSuccess)
	metrics.IncRestart(sess.Region)
	metrics.SetRunningSessions(len(c.sessions.ListActive()))
	c.recordHistory(history.EventRestarted, sess, 0, "")
	c.log.Info("session restarted", "session", id, "pid", pid)
	return sess, nil
}

// Delete stops the session if running, removes its record and clears its
// logs.
func (c *Controller) Delete(id string) error {
	sess, ok := c.sessions.Get(id)
	if !ok {
		return ErrNotFound
	}
	if sess.Status == session.StatusRunning {
		if _, err := c.Stop(id); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	c.sessions.Delete(id)
	c.logs.Clear(id)
	c.sup.Forget(id)
	c.pendMu.Lock()
	delete(c.pendingExits, id)
	c.pendMu.Unlock()
	c.specMu.Lock()
	delete(c.specs, id)
	c.specMu.Unlock()
	c.log.Info("session deleted", "session", id)
	return nil
}

// Get returns the session or ErrNotFound.
func (c *Controller) Get(id string) (session.Session, error) {
	sess, ok := c.sessions.Get(id)
	if !ok {
		return session.Session{}, ErrNotFound
	}
	return sess, nil
}

// ListAll returns every session, newest first.
func (c *Controller) ListAll() []session.Session { return c.sessions.ListAll() }

// ListActive returns the running sessions, newest first.
func (c *Controller) ListActive() []session.Session { return c.sessions.ListActive() }

// Logs returns the retained records for one session, oldest first.
func (c *Controller) Logs(id string) []logstore.Log { return c.logs.BySession(id) }

// Recent returns at most limit records across sessions, newest first.
func (c *Controller) Recent(limit int) []logstore.Log { return c.logs.Recent(limit) }

// ClearLogs deletes records for one session, or all records when id is
// empty.
func (c *Controller) ClearLogs(id string) { c.logs.Clear(id) }

// Subscribe registers a live log observer.
func (c *Controller) Subscribe() *hub.Observer {
	o := c.hub.Subscribe()
	metrics.SetObservers(c.hub.Len())
	return o
}

// Unsubscribe removes the observer.
func (c *Controller) Unsubscribe(o *hub.Observer) {
	c.hub.Unsubscribe(o)
	metrics.SetObservers(c.hub.Len())
}

// Tracks reports whether the supervisor holds a live child for the session.
func (c *Controller) Tracks(id string) bool { return c.sup.Tracks(id) }

// Shutdown marks every running session stopped and terminates all children.
// Exposed to the host process for teardown; the controller never shuts
// itself down.
func (c *Controller) Shutdown() {
	for _, sess := range c.sessions.ListActive() {
		now := time.Now()
		stopped := session.StatusStopped
		zero := 0
		end := &now
		rec, _ := c.sessions.Update(sess.ID, session.Update{Status: &stopped, EndedAt: &end, PID: &zero})
		c.appendLog(sess.ID, "daemon shutting down", logstore.LevelWarning)
		c.recordHistory(history.EventStopped, rec, 0, "daemon shutdown")
	}
	c.sup.StopAll()
	metrics.SetRunningSessions(0)
	c.log.Info("all sessions stopped")
}

// handleEvent interprets supervisor events. It runs on supervision
// goroutines, one set per live child.
func (c *Controller) handleEvent(ev supervisor.Event) {
	switch ev.Type {
	case supervisor.EventStdout:
		c.appendLog(ev.SessionID, ev.Line, logstore.LevelInfo)
	case supervisor.EventStderr:
		c.appendLog(ev.SessionID, ev.Line, logstore.LevelError)
	case supervisor.EventProcError:
		c.appendLog(ev.SessionID, "process error: "+ev.Err.Error(), logstore.LevelError)
		c.log.Warn("session process error", "session", ev.SessionID, "gen", ev.Gen, "error", ev.Err)
	case supervisor.EventExit:
		c.handleExit(ev)
	}
}

// handleExit applies the terminal transition for a process generation. A
// stale generation's exit, or an exit for a session already in a terminal
// status (user stop won the race), is discarded.
func (c *Controller) handleExit(ev supervisor.Event) {
	if ev.Gen != c.sup.Generation(ev.SessionID) {
		return
	}
	sess, ok := c.sessions.Get(ev.SessionID)
	if !ok {
		// Stash for replay only while Create is still persisting the
		// record. Exits for sessions the controller no longer knows, such
		// as a deleted one's last child, are dropped.
		c.pendMu.Lock()
		if _, inflight := c.creating[ev.SessionID]; inflight {
			c.pendingExits[ev.SessionID] = ev
			c.pendMu.Unlock()
			return
		}
		c.pendMu.Unlock()
		// Create persists the record before clearing the in-flight marker,
		// so a second lookup distinguishes a freshly created session from
		// an unknown one.
		sess, ok = c.sessions.Get(ev.SessionID)
		if !ok {
			return
		}
	}
	if sess.Status != session.StatusRunning {
		return
	}

	now := ev.At
	status := session.StatusStopped
	level := logstore.LevelInfo
	if ev.ExitCode != 0 {
		status = session.StatusError
		level = logstore.LevelError
	}
	zero := 0
	end := &now
	rec, _ := c.sessions.Update(ev.SessionID, session.Update{Status: &status, EndedAt: &end, PID: &zero})

	c.appendLog(ev.SessionID, fmt.Sprintf("process exited with code %d", ev.ExitCode), level)
	if status == session.StatusError {
		metrics.IncError(rec.Region)
		c.recordHistory(history.EventErrored, rec, ev.ExitCode, "abnormal exit")
	} else {
		metrics.IncStop(rec.Region)
		c.recordHistory(history.EventExited, rec, ev.ExitCode, "")
	}
	metrics.SetRunningSessions(len(c.sessions.ListActive()))
	c.log.Info("session process exited", "session", ev.SessionID, "gen", ev.Gen, "code", ev.ExitCode, "status", status)
}

// appendLog stores a record and broadcasts it under one lock so every
// observer receives records in append order.
func (c *Controller) appendLog(sessionID, message string, level logstore.Level) {
	c.pubMu.Lock()
	rec := c.logs.Append(sessionID, message, level)
	c.hub.Publish(hub.NewLogEvent(rec))
	c.pubMu.Unlock()
	metrics.IncLogRecord(string(level))
}

// recordHistory exports a lifecycle event to the configured sink,
// best-effort off the control path.
func (c *Controller) recordHistory(t history.EventType, sess session.Session, exitCode int, detail string) {
	if c.sink == nil {
		return
	}
	ev := history.Event{Type: t, OccurredAt: time.Now(), Session: sess, ExitCode: exitCode, Detail: detail}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), historySendTimeout)
		defer cancel()
		if err := c.sink.Send(ctx, ev); err != nil {
			c.log.Warn("history sink send failed", "type", t, "session", sess.ID, "error", err)
		}
	}()
}
