package core

import (
	"context"
	"sync"
	"time"

	"github.com/JonMunkholm/ThreatBoard/internal/threat"
)

// AnalysisRun is the history record of one analysis. It carries the derived
// counters only; uploaded rows are never stored.
type AnalysisRun struct {
	ID             string                                    `json:"id"`
	SessionID      string                                    `json:"sessionId"`
	FileName       string                                    `json:"fileName"`
	TotalThreats   int                                       `json:"totalThreats"`
	SeverityLevels map[string]int                            `json:"severityLevels"`
	AttackTypes    map[threat.AttackType]threat.AttackCounts `json:"attackTypes"`
	Confidence     threat.ConfidenceStats                    `json:"confidence"`
	IPAddress      string                                    `json:"ipAddress,omitempty"`
	UserAgent      string                                    `json:"userAgent,omitempty"`
	CreatedAt      time.Time                                 `json:"createdAt"`
}

// HistoryStore records analysis runs.
// Implementations: MemoryHistory here, database.HistoryRepo for PostgreSQL.
type HistoryStore interface {
	Record(ctx context.Context, run AnalysisRun) error
	// List returns up to limit runs, newest first.
	List(ctx context.Context, limit int) ([]AnalysisRun, error)
	// PurgeOlderThan deletes runs created before cutoff and returns the count.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// MemoryHistory is a bounded in-process HistoryStore. Once full, the oldest
// run is dropped.
type MemoryHistory struct {
	mu       sync.Mutex
	capacity int
	runs     []AnalysisRun // oldest first
}

// NewMemoryHistory creates a store holding at most capacity runs.
func NewMemoryHistory(capacity int) *MemoryHistory {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryHistory{capacity: capacity}
}

// Record appends run, evicting the oldest entry when full.
func (h *MemoryHistory) Record(_ context.Context, run AnalysisRun) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.runs) == h.capacity {
		copy(h.runs, h.runs[1:])
		h.runs = h.runs[:len(h.runs)-1]
	}
	h.runs = append(h.runs, run)
	return nil
}

// List returns up to limit runs, newest first. limit <= 0 returns all.
func (h *MemoryHistory) List(_ context.Context, limit int) ([]AnalysisRun, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.runs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]AnalysisRun, 0, n)
	for i := len(h.runs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h.runs[i])
	}
	return out, nil
}

// PurgeOlderThan drops runs created before cutoff.
func (h *MemoryHistory) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.runs[:0]
	for _, r := range h.runs {
		if !r.CreatedAt.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	purged := int64(len(h.runs) - len(kept))
	h.runs = kept
	return purged, nil
}
