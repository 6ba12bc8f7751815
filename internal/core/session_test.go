package core

import (
	"errors"
	"testing"
	"time"

	"github.com/JonMunkholm/ThreatBoard/internal/threat"
	"github.com/google/uuid"
)

func testDataset(name string, records ...threat.Record) *Dataset {
	return &Dataset{
		FileName: name,
		Headers:  []string{threat.ColumnSeverity, threat.ColumnThreatType, threat.ColumnStatus},
		Records:  records,
		LoadedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSession_LoadAnalyzeClear(t *testing.T) {
	s := newSession("s1", time.Now())

	if st := s.State(); st.HasData || st.ShowAnalysis {
		t.Fatalf("fresh session state = %+v", st)
	}

	if _, err := s.Analyze("run-0", time.Now()); !errors.Is(err, ErrNoDataset) {
		t.Fatalf("Analyze on empty session: err = %v, want ErrNoDataset", err)
	}

	s.Load(testDataset("a.csv",
		threat.Record{"severity": "critical", "threat_type": "prompt_injection", "status": "successful"},
		threat.Record{"severity": "low"},
	))
	st := s.State()
	if !st.HasData || st.ShowAnalysis {
		t.Errorf("after Load: HasData=%v ShowAnalysis=%v, want true/false", st.HasData, st.ShowAnalysis)
	}
	if st.RecordCount != 2 || st.FileName != "a.csv" {
		t.Errorf("after Load: RecordCount=%d FileName=%q", st.RecordCount, st.FileName)
	}

	a, err := s.Analyze("run-1", time.Now())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Summary.TotalThreats != 2 {
		t.Errorf("TotalThreats = %d, want 2", a.Summary.TotalThreats)
	}
	if a.FileName != "a.csv" {
		t.Errorf("FileName = %q, want a.csv", a.FileName)
	}
	if got := a.Summary.AttackTypes[threat.AttackPromptInjection]; got != (threat.AttackCounts{Count: 1, Successful: 1}) {
		t.Errorf("prompt_injection = %+v", got)
	}
	if st := s.State(); !st.ShowAnalysis || st.Analysis == nil || st.Analysis.RunID != "run-1" {
		t.Errorf("after Analyze: state = %+v", st)
	}

	s.Clear()
	if st := s.State(); st.HasData || st.ShowAnalysis || st.Analysis != nil {
		t.Errorf("after Clear: state = %+v", st)
	}
}

func TestSession_LoadClearsPreviousAnalysis(t *testing.T) {
	s := newSession("s1", time.Now())
	s.Load(testDataset("first.csv", threat.Record{"severity": "high"}))
	if _, err := s.Analyze("run-1", time.Now()); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	s.Load(testDataset("second.csv"))
	st := s.State()
	if st.ShowAnalysis || st.Analysis != nil {
		t.Error("loading a new dataset should hide the previous analysis")
	}
	if st.FileName != "second.csv" || st.RecordCount != 0 {
		t.Errorf("state = %+v, want second.csv with 0 records", st)
	}
}

func TestSessionStore_Ensure(t *testing.T) {
	store := NewSessionStore(time.Hour)

	tests := []struct {
		name string
		id   string
	}{
		{"empty id", ""},
		{"malformed id", "not-a-uuid"},
		{"unknown uuid", uuid.NewString()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.Ensure(tt.id)
			if s.ID == tt.id {
				t.Errorf("Ensure(%q) reused the id", tt.id)
			}
			if _, err := uuid.Parse(s.ID); err != nil {
				t.Errorf("new session id %q is not a uuid", s.ID)
			}
		})
	}

	t.Run("known id is reused", func(t *testing.T) {
		first := store.Ensure("")
		again := store.Ensure(first.ID)
		if again != first {
			t.Error("Ensure should return the existing session")
		}
	})
}

func TestSessionStore_ExpiryAndSweep(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewSessionStore(10 * time.Minute)
	store.now = func() time.Time { return now }

	old := store.Ensure("")
	now = now.Add(5 * time.Minute)
	fresh := store.Ensure("")

	now = now.Add(6 * time.Minute) // old idle 11m, fresh idle 6m
	if removed := store.Sweep(); removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}
	if _, ok := store.Get(old.ID); ok {
		t.Error("expired session still retrievable")
	}
	if _, ok := store.Get(fresh.ID); !ok {
		t.Error("fresh session was evicted")
	}

	// Get touched fresh; it survives another 9 minutes.
	now = now.Add(9 * time.Minute)
	if _, ok := store.Get(fresh.ID); !ok {
		t.Error("touched session expired early")
	}

	now = now.Add(11 * time.Minute)
	if _, ok := store.Get(fresh.ID); ok {
		t.Error("idle session should expire on Get")
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d, want 0", store.Len())
	}
}

func TestSessionStore_Isolation(t *testing.T) {
	store := NewSessionStore(time.Hour)
	a := store.Ensure("")
	b := store.Ensure("")

	a.Load(testDataset("a.csv", threat.Record{"severity": "low"}))

	if st := b.State(); st.HasData {
		t.Error("loading into one session leaked into another")
	}
}
