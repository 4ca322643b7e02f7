package supervisor

import "time"

// EventType discriminates supervisor events.
type EventType string

const (
	// EventStdout carries one line emitted on the child's standard output.
	EventStdout EventType = "stdout"
	// EventStderr carries one line emitted on the child's standard error.
	EventStderr EventType = "stderr"
	// EventExit is terminal for a generation and carries the exit code.
	EventExit EventType = "exit"
	// EventProcError reports a runtime failure of the supervision machinery
	// (broken pipe, signal delivery failure) distinct from a clean exit.
	EventProcError EventType = "proc_error"
)

// Event is one observation about a supervised child. The supervisor holds
// no opinion about session status; consumers interpret events.
type Event struct {
	SessionID string
	Gen       int
	Type      EventType
	Line      string
	ExitCode  int
	Err       error
	At        time.Time
}
