// Package supervisor owns the child processes backing running sessions. It
// spawns one child per session, surfaces stdout/stderr lines and
// termination as events, and is the only component allowed to signal a
// child. It never writes session state.
package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/ormanaq/tmate/internal/logger"
)

// DefaultStopWait is how long a graceful stop waits before escalating to a
// forced kill.
const DefaultStopWait = 5 * time.Second

// killGrace bounds the wait for reaping after a forced kill.
const killGrace = 200 * time.Millisecond

// ErrAlreadyRunning is returned by Start when the session already has a
// live child. Exactly one child may exist per session.
var ErrAlreadyRunning = errors.New("session already has a live process")

// Options tune a Supervisor.
type Options struct {
	// StopWait is the SIGTERM-to-SIGKILL escalation timeout; 0 selects
	// DefaultStopWait.
	StopWait time.Duration
	// Capture optionally persists raw child output to rotating files.
	Capture logger.FileConfig
	Logger  *slog.Logger
}

// Supervisor tracks live children keyed by session identity. The process
// table is owned exclusively here.
type Supervisor struct {
	mu       sync.Mutex
	children map[string]*child
	gens     map[string]int
	notify   func(Event)
	stopWait time.Duration
	capture  logger.FileConfig
	log      *slog.Logger
}

type child struct {
	cmd  *exec.Cmd
	gen  int
	pid  int
	done chan struct{} // closed after the child is reaped
	outW io.WriteCloser
	errW io.WriteCloser
}

// New creates a Supervisor delivering events through notify. notify is
// called from supervision goroutines; it must be safe for concurrent use
// and must not block indefinitely.
func New(notify func(Event), opts Options) *Supervisor {
	wait := opts.StopWait
	if wait <= 0 {
		wait = DefaultStopWait
	}
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Supervisor{
		children: make(map[string]*child),
		gens:     make(map[string]int),
		notify:   notify,
		stopWait: wait,
		capture:  opts.Capture,
		log:      lg,
	}
}

// Start spawns the child for a session and begins observing it. It returns
// the PID and the new process generation. A failure to create the process
// leaves no state behind.
func (s *Supervisor) Start(sessionID string, spec Spec) (pid, gen int, err error) {
	s.mu.Lock()
	if s.children[sessionID] != nil {
		s.mu.Unlock()
		return 0, 0, ErrAlreadyRunning
	}
	gen = s.gens[sessionID] + 1
	s.gens[sessionID] = gen
	// Reserve the slot while the spawn is in flight so a concurrent Start
	// for the same session fails the liveness check instead of racing to a
	// second child. The reservation has no pid yet; Stop skips it.
	c := &child{gen: gen, done: make(chan struct{})}
	s.children[sessionID] = c
	s.mu.Unlock()

	fail := func(err error) (int, int, error) {
		s.mu.Lock()
		if s.children[sessionID] == c {
			delete(s.children, sessionID)
		}
		// Roll the generation back so a failed spawn leaves no trace.
		if s.gens[sessionID] == gen {
			if gen == 1 {
				delete(s.gens, sessionID)
			} else {
				s.gens[sessionID] = gen - 1
			}
		}
		s.mu.Unlock()
		close(c.done)
		return 0, 0, err
	}

	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}
	setSysProcAttr(cmd)

	stdout, perr := cmd.StdoutPipe()
	if perr != nil {
		return fail(fmt.Errorf("stdout pipe: %w", perr))
	}
	stderr, perr := cmd.StderrPipe()
	if perr != nil {
		return fail(fmt.Errorf("stderr pipe: %w", perr))
	}
	if err := cmd.Start(); err != nil {
		return fail(fmt.Errorf("start %q: %w", spec.Command, err))
	}
	if cmd.Process == nil || cmd.Process.Pid <= 0 {
		_ = cmd.Wait()
		return fail(fmt.Errorf("start %q: no usable pid", spec.Command))
	}

	outW, errW, werr := s.capture.Writers(sessionID)
	if werr != nil {
		s.log.Warn("session output capture disabled", "session", sessionID, "error", werr)
	}

	s.mu.Lock()
	c.cmd = cmd
	c.pid = cmd.Process.Pid
	c.outW = outW
	c.errW = errW
	s.mu.Unlock()

	var readers sync.WaitGroup
	readers.Add(2)
	go s.readLines(sessionID, gen, stdout, EventStdout, outW, &readers)
	go s.readLines(sessionID, gen, stderr, EventStderr, errW, &readers)
	go s.waitAndReap(sessionID, c, &readers)

	s.log.Debug("spawned session process", "session", sessionID, "pid", c.pid, "gen", gen)
	return c.pid, gen, nil
}

func (s *Supervisor) readLines(sessionID string, gen int, r io.Reader, typ EventType, w io.WriteCloser, readers *sync.WaitGroup) {
	defer readers.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 512*1024)
	for sc.Scan() {
		line := sc.Text()
		if w != nil {
			_, _ = w.Write(append([]byte(line), '\n'))
		}
		s.notify(Event{SessionID: sessionID, Gen: gen, Type: typ, Line: line, At: time.Now()})
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		s.notify(Event{SessionID: sessionID, Gen: gen, Type: EventProcError, Err: fmt.Errorf("read %s: %w", typ, err), At: time.Now()})
	}
}

func (s *Supervisor) waitAndReap(sessionID string, c *child, readers *sync.WaitGroup) {
	readers.Wait()
	err := c.cmd.Wait()

	if c.outW != nil {
		_ = c.outW.Close()
	}
	if c.errW != nil {
		_ = c.errW.Close()
	}

	// Drop the table entry before announcing the exit so a "running implies
	// tracked" check never observes an exited-but-tracked child.
	s.mu.Lock()
	if s.children[sessionID] == c {
		delete(s.children, sessionID)
	}
	s.mu.Unlock()
	close(c.done)

	code, procErr := exitCode(err)
	if procErr != nil {
		s.notify(Event{SessionID: sessionID, Gen: c.gen, Type: EventProcError, Err: procErr, At: time.Now()})
	}
	s.notify(Event{SessionID: sessionID, Gen: c.gen, Type: EventExit, ExitCode: code, At: time.Now()})
	s.log.Debug("session process exited", "session", sessionID, "pid", c.pid, "gen", c.gen, "code", code)
}

// exitCode maps cmd.Wait's error to an exit code. A wait failure that is
// not an exec.ExitError is a process error, reported separately.
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode(), nil
	}
	return -1, err
}

// Stop gracefully terminates the session's child: SIGTERM to the process
// group, escalating to SIGKILL after the configured wait. No-op when no
// child is tracked. It returns once the child is reaped or the kill grace
// expires.
func (s *Supervisor) Stop(sessionID string) error {
	s.mu.Lock()
	c := s.children[sessionID]
	var pid int
	if c != nil {
		pid = c.pid
	}
	s.mu.Unlock()
	// pid 0 means a reservation whose spawn has not completed; there is no
	// process to signal yet.
	if c == nil || pid == 0 {
		return nil
	}
	if err := terminate(pid); err != nil {
		s.notify(Event{SessionID: sessionID, Gen: c.gen, Type: EventProcError, Err: fmt.Errorf("terminate pid %d: %w", pid, err), At: time.Now()})
		return err
	}
	select {
	case <-c.done:
		return nil
	case <-time.After(s.stopWait):
	}
	s.log.Warn("session process ignored SIGTERM, killing", "session", sessionID, "pid", pid)
	_ = kill(pid)
	select {
	case <-c.done:
	case <-time.After(killGrace):
		// best-effort; the reaper goroutine finishes the bookkeeping
	}
	return nil
}

// Tracks reports whether a live child exists for the session.
func (s *Supervisor) Tracks(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.children[sessionID] != nil
}

// PID returns the tracked child's PID, 0 when none.
func (s *Supervisor) PID(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.children[sessionID]; c != nil {
		return c.pid
	}
	return 0
}

// Generation returns the latest generation started for the session.
func (s *Supervisor) Generation(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[sessionID]
}

// Forget drops the generation counter for a session whose record is gone.
// Any exit still in flight for it is then treated as stale and discarded.
func (s *Supervisor) Forget(sessionID string) {
	s.mu.Lock()
	delete(s.gens, sessionID)
	s.mu.Unlock()
}

// StopAll terminates every tracked child. Used on daemon shutdown.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.children))
	for id := range s.children {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = s.Stop(id)
		}(id)
	}
	wg.Wait()
}
