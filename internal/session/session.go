package session

import "time"

// Status is the lifecycle state of a session as seen by API consumers.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusError   Status = "error"
)

// Session is one terminal-sharing session. The backing child process may be
// replaced across restarts; the session identity stays the same.
type Session struct {
	ID          string     `json:"id"`
	Name        string     `json:"name,omitempty"`
	SSHCommand  string     `json:"ssh_command"`
	SSHReadOnly string     `json:"ssh_ro_command,omitempty"`
	WebURL      string     `json:"web_url"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Region      string     `json:"region"`
	PID         int        `json:"pid,omitempty"`
}

// Update carries a partial mutation applied by Store.Update. Nil fields are
// left untouched.
type Update struct {
	Name        *string
	SSHCommand  *string
	SSHReadOnly *string
	WebURL      *string
	Status      *Status
	StartedAt   *time.Time
	EndedAt     **time.Time // outer nil leaves EndedAt alone; inner nil clears it
	PID         *int
}
