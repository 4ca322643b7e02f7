package client

import "time"

// CreateRequest represents a request to create a session.
type CreateRequest struct {
	Name    string `json:"name,omitempty"`
	Region  string `json:"region,omitempty"`
	Command string `json:"command,omitempty"`
	WorkDir string `json:"work_dir,omitempty"`
}

// Session mirrors the daemon's session representation.
type Session struct {
	ID          string     `json:"id"`
	Name        string     `json:"name,omitempty"`
	SSHCommand  string     `json:"ssh_command"`
	SSHReadOnly string     `json:"ssh_ro_command,omitempty"`
	WebURL      string     `json:"web_url"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Region      string     `json:"region"`
	PID         int        `json:"pid,omitempty"`
}

// Log mirrors the daemon's log record representation.
type Log struct {
	ID        uint64    `json:"id"`
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
