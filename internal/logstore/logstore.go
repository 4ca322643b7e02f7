package logstore

import (
	"sync"
	"time"
)

// Level classifies a log record.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// Log is one immutable, timestamped message attributed to a session.
type Log struct {
	ID        uint64    `json:"id"`
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	Level     Level     `json:"level"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultMaxRecords bounds total retention when the caller does not choose.
const DefaultMaxRecords = 2000

// Store is an append-only bounded collection of log records. Retention is a
// global ring: once MaxRecords is reached the oldest record is evicted on
// append, regardless of which session owns it. Records are never edited.
type Store struct {
	mu   sync.Mutex
	seq  uint64
	max  int
	recs []Log // append order == id order == time order
}

// NewStore creates a store retaining at most max records; max <= 0 selects
// DefaultMaxRecords.
func NewStore(max int) *Store {
	if max <= 0 {
		max = DefaultMaxRecords
	}
	return &Store{max: max}
}

// Append stamps and stores a new record, evicting the oldest when the cap is
// reached, and returns the stored copy.
func (s *Store) Append(sessionID, message string, level Level) Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	rec := Log{
		ID:        s.seq,
		SessionID: sessionID,
		Message:   message,
		Level:     level,
		CreatedAt: time.Now(),
	}
	if len(s.recs) >= s.max {
		n := copy(s.recs, s.recs[len(s.recs)-s.max+1:])
		s.recs = s.recs[:n]
	}
	s.recs = append(s.recs, rec)
	return rec
}

// BySession returns the retained records for one session, oldest first.
func (s *Store) BySession(sessionID string) []Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Log
	for _, rec := range s.recs {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out
}

// Recent returns at most limit records across all sessions, newest first.
func (s *Store) Recent(limit int) []Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || len(s.recs) == 0 {
		return nil
	}
	if limit > len(s.recs) {
		limit = len(s.recs)
	}
	out := make([]Log, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.recs[len(s.recs)-1-i]
	}
	return out
}

// Clear deletes all records for the given session, or every record when
// sessionID is empty.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sessionID == "" {
		s.recs = nil
		return
	}
	kept := s.recs[:0]
	for _, rec := range s.recs {
		if rec.SessionID != sessionID {
			kept = append(kept, rec)
		}
	}
	s.recs = kept
}

// Len reports the number of retained records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}
