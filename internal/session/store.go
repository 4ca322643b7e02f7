package session

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Store is the authoritative in-memory collection of sessions. Every
// operation is a single read-modify-write under one lock so callers observe
// it as atomic. The store never spawns or signals processes; it only holds
// records.
type Store struct {
	mu   sync.Mutex
	seq  uint64
	recs map[string]*Session
}

func NewStore() *Store {
	return &Store{recs: make(map[string]*Session)}
}

// AllocateID returns a fresh session token. Tokens embed a monotonic
// sequence number so allocation order is recoverable, plus a random suffix
// so they are not guessable.
func (s *Store) AllocateID() string {
	s.mu.Lock()
	s.seq++
	n := s.seq
	s.mu.Unlock()
	return formatToken(n)
}

func formatToken(n uint64) string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		// uniqueness still holds via the sequence number
		binary.LittleEndian.PutUint32(b, uint32(time.Now().UnixNano()))
	}
	return "s" + strconv.FormatUint(n, 10) + "-" + hex.EncodeToString(b)
}

// Create inserts a new session record. An empty ID gets a fresh token; a
// zero StartedAt is stamped with the current time. The stored copy is
// returned.
func (s *Store) Create(in Session) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.ID == "" {
		s.seq++
		in.ID = formatToken(s.seq)
	}
	if in.StartedAt.IsZero() {
		in.StartedAt = time.Now()
	}
	in.EndedAt = nil
	rec := in
	s.recs[rec.ID] = &rec
	return rec
}

// Get returns a copy of the session, or ok=false if it does not exist.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return Session{}, false
	}
	return *rec, true
}

// ListAll returns copies of every session ordered by start time descending.
func (s *Store) ListAll() []Session {
	s.mu.Lock()
	out := make([]Session, 0, len(s.recs))
	for _, rec := range s.recs {
		out = append(out, *rec)
	}
	s.mu.Unlock()
	sortByStartDesc(out)
	return out
}

// ListActive returns the running subset, same ordering as ListAll.
func (s *Store) ListActive() []Session {
	s.mu.Lock()
	out := make([]Session, 0, len(s.recs))
	for _, rec := range s.recs {
		if rec.Status == StatusRunning {
			out = append(out, *rec)
		}
	}
	s.mu.Unlock()
	sortByStartDesc(out)
	return out
}

func sortByStartDesc(ss []Session) {
	sort.SliceStable(ss, func(i, j int) bool {
		if ss[i].StartedAt.Equal(ss[j].StartedAt) {
			return ss[i].ID > ss[j].ID
		}
		return ss[i].StartedAt.After(ss[j].StartedAt)
	})
}

// Update merges the given partial fields into the stored record and returns
// the merged copy. ok=false when the session does not exist; absence is not
// an error here, callers map it at the boundary.
func (s *Store) Update(id string, u Update) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return Session{}, false
	}
	if u.Name != nil {
		rec.Name = *u.Name
	}
	if u.SSHCommand != nil {
		rec.SSHCommand = *u.SSHCommand
	}
	if u.SSHReadOnly != nil {
		rec.SSHReadOnly = *u.SSHReadOnly
	}
	if u.WebURL != nil {
		rec.WebURL = *u.WebURL
	}
	if u.Status != nil {
		rec.Status = *u.Status
	}
	if u.StartedAt != nil {
		rec.StartedAt = *u.StartedAt
	}
	if u.EndedAt != nil {
		rec.EndedAt = *u.EndedAt
	}
	if u.PID != nil {
		rec.PID = *u.PID
	}
	return *rec, true
}

// Delete removes the session record. Returns false if it was not present.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[id]; !ok {
		return false
	}
	delete(s.recs, id)
	return true
}

// Len reports the number of stored sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}
