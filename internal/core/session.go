package core

// session.go holds the per-browser analysis state.
//
// A Session has two slots: the current dataset (replaced on every successful
// upload) and the current summary (replaced on every analysis run). Loading a
// new dataset clears the summary so a stale analysis is never shown against a
// different file.

import (
	"errors"
	"sync"
	"time"

	"github.com/JonMunkholm/ThreatBoard/internal/threat"
	"github.com/google/uuid"
)

var (
	// ErrNoDataset is returned when analysis is requested before any file loaded.
	ErrNoDataset = errors.New("no dataset loaded")

	// ErrSessionNotFound is returned for unknown or expired session IDs.
	ErrSessionNotFound = errors.New("session not found")
)

// Dataset is one successfully parsed upload.
type Dataset struct {
	FileName string
	Headers  []string
	Records  []threat.Record
	LoadedAt time.Time
}

// Analysis is the result of one aggregation run over a Dataset.
type Analysis struct {
	RunID       string
	FileName    string
	Summary     threat.Summary
	Diagnostics threat.Diagnostics
	AnalyzedAt  time.Time
}

// Session owns the current dataset and the current analysis.
type Session struct {
	ID string

	mu       sync.RWMutex
	dataset  *Dataset
	analysis *Analysis
	lastSeen time.Time
}

// SessionState is a copy of a session's observable state.
type SessionState struct {
	SessionID    string    `json:"sessionId"`
	HasData      bool      `json:"hasData"`
	ShowAnalysis bool      `json:"showAnalysis"`
	FileName     string    `json:"fileName,omitempty"`
	RecordCount  int       `json:"recordCount"`
	Headers      []string  `json:"headers,omitempty"`
	LoadedAt     time.Time `json:"loadedAt,omitempty"`
	Analysis     *Analysis `json:"-"`
}

func newSession(id string, now time.Time) *Session {
	return &Session{ID: id, lastSeen: now}
}

// Load replaces the dataset and clears any previous analysis.
func (s *Session) Load(ds *Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataset = ds
	s.analysis = nil
}

// Analyze aggregates the current dataset and stores the result.
func (s *Session) Analyze(runID string, now time.Time) (*Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dataset == nil {
		return nil, ErrNoDataset
	}

	summary, diag := threat.AggregateWithDiagnostics(s.dataset.Records)
	a := &Analysis{
		RunID:       runID,
		FileName:    s.dataset.FileName,
		Summary:     summary,
		Diagnostics: diag,
		AnalyzedAt:  now,
	}
	s.analysis = a
	return a, nil
}

// Clear drops both slots.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataset = nil
	s.analysis = nil
}

// State returns a snapshot of the session.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := SessionState{SessionID: s.ID}
	if s.dataset != nil {
		st.HasData = true
		st.FileName = s.dataset.FileName
		st.RecordCount = len(s.dataset.Records)
		st.Headers = s.dataset.Headers
		st.LoadedAt = s.dataset.LoadedAt
	}
	if s.analysis != nil {
		st.ShowAnalysis = true
		st.Analysis = s.analysis
	}
	return st
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// SessionStore keeps sessions in memory and evicts them after ttl of inactivity.
type SessionStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty store.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get returns a live session and marks it as used.
func (st *SessionStore) Get(id string) (*Session, bool) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, false
	}

	now := st.now()
	if now.Sub(s.idleSince()) > st.ttl {
		st.Delete(id)
		return nil, false
	}
	s.touch(now)
	return s, true
}

// Ensure returns the session for id, creating a new one with a fresh ID when
// id is empty, malformed, unknown or expired. The returned session's ID is the
// one the client must use from now on.
func (st *SessionStore) Ensure(id string) *Session {
	if _, err := uuid.Parse(id); err == nil {
		if s, ok := st.Get(id); ok {
			return s
		}
	}

	s := newSession(uuid.NewString(), st.now())
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Delete removes a session.
func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Sweep evicts idle sessions and returns how many were removed.
func (st *SessionStore) Sweep() int {
	cutoff := st.now().Add(-st.ttl)

	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, s := range st.sessions {
		if s.idleSince().Before(cutoff) {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of sessions held.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
