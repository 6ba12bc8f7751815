package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/ThreatBoard/internal/logging"
	"github.com/JonMunkholm/ThreatBoard/internal/threat"
	"github.com/google/uuid"
)

var (
	// ErrNoFile is returned when an upload request carries no file.
	ErrNoFile = errors.New("no file provided")

	// ErrInvalidFileType is returned for uploads without a .csv extension.
	ErrInvalidFileType = errors.New("invalid file type: expected .csv")

	// ErrInvalidRequest is returned for request bodies that cannot be decoded.
	ErrInvalidRequest = errors.New("invalid request body")
)

// expectedColumns are the header names the aggregator reads.
var expectedColumns = []string{
	threat.ColumnSeverity,
	threat.ColumnThreatType,
	threat.ColumnStatus,
	threat.ColumnConfidence,
}

// ServiceConfig holds the limits the Service enforces.
// Zero values fall back to the defaults noted per field.
type ServiceConfig struct {
	MaxFileSize          int64         // bytes per upload (0: unbounded)
	MaxConcurrentUploads int           // parallel parses (default: 5)
	MaxUploadWait        time.Duration // wait for a parse slot (default: 30s)
	SessionTTL           time.Duration // idle session lifetime (default: 1h)
	HistoryCapacity      int           // in-memory history size when no store is given (default: 200)
}

// Service is the entry point for loading threat logs and analyzing them.
// It is safe for concurrent use.
type Service struct {
	cfg       ServiceConfig
	sessions  *SessionStore
	limiter   *UploadLimiter
	history   HistoryStore
	publisher Publisher
	catalog   *threat.Catalog
	now       func() time.Time
}

// LoadResult describes a successfully loaded file.
type LoadResult struct {
	SessionID      string   `json:"sessionId"`
	FileName       string   `json:"fileName"`
	RecordCount    int      `json:"recordCount"`
	Headers        []string `json:"headers"`
	MissingColumns []string `json:"missingColumns,omitempty"`
}

// AnalysisResult is the output of one analysis run.
type AnalysisResult struct {
	RunID       string                 `json:"runId"`
	SessionID   string                 `json:"sessionId"`
	FileName    string                 `json:"fileName"`
	Summary     threat.Summary         `json:"summary"`
	Diagnostics threat.Diagnostics     `json:"diagnostics"`
	Confidence  threat.ConfidenceStats `json:"confidence"`
	AnalyzedAt  time.Time              `json:"analyzedAt"`
}

// NewService creates a Service. A nil history uses a MemoryHistory and a nil
// publisher discards events.
func NewService(cfg ServiceConfig, history HistoryStore, publisher Publisher) (*Service, error) {
	catalog, err := threat.LoadCatalog()
	if err != nil {
		return nil, fmt.Errorf("load attack catalog: %w", err)
	}

	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = 200
	}
	if history == nil {
		history = NewMemoryHistory(cfg.HistoryCapacity)
	}
	if publisher == nil {
		publisher = NopPublisher{}
	}

	return &Service{
		cfg:       cfg,
		sessions:  NewSessionStore(cfg.SessionTTL),
		limiter:   NewUploadLimiter(cfg.MaxConcurrentUploads, cfg.MaxUploadWait),
		history:   history,
		publisher: publisher,
		catalog:   catalog,
		now:       time.Now,
	}, nil
}

// EnsureSession returns a live session ID, creating a session when id is
// empty, malformed or expired.
func (s *Service) EnsureSession(id string) string {
	return s.sessions.Ensure(id).ID
}

// LoadFile parses r and makes it the session's dataset.
//
// A failed read or parse leaves the previous dataset in place. Returns
// ErrTooManyUploads when no parse slot frees up in time.
func (s *Service) LoadFile(ctx context.Context, sessionID, fileName string, r io.Reader) (*LoadResult, error) {
	if r == nil {
		return nil, ErrNoFile
	}
	if !strings.EqualFold(filepath.Ext(fileName), ".csv") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFileType, fileName)
	}

	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	logger := logging.WithFields(ctx, "file", fileName)
	start := s.now()

	res := threat.ParseReader(r, s.cfg.MaxFileSize)
	if !res.OK() {
		logger.Warn("file rejected", "error", res.Err)
		return nil, fmt.Errorf("load %q: %w", fileName, res.Err)
	}

	sess.Load(&Dataset{
		FileName: fileName,
		Headers:  res.Headers,
		Records:  res.Records,
		LoadedAt: s.now(),
	})

	missing := missingColumns(res.Headers)
	logger.Info("file loaded",
		"records", len(res.Records),
		"columns", len(res.Headers),
		"missing_columns", missing,
		"duration_ms", s.now().Sub(start).Milliseconds(),
	)

	return &LoadResult{
		SessionID:      sess.ID,
		FileName:       fileName,
		RecordCount:    len(res.Records),
		Headers:        res.Headers,
		MissingColumns: missing,
	}, nil
}

// Analyze aggregates the session's dataset, records the run in history and
// publishes it. History and publishing failures are logged, not returned.
func (s *Service) Analyze(ctx context.Context, sessionID string) (*AnalysisResult, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	a, err := sess.Analyze(uuid.NewString(), s.now())
	if err != nil {
		return nil, err
	}

	result := &AnalysisResult{
		RunID:       a.RunID,
		SessionID:   sess.ID,
		FileName:    a.FileName,
		Summary:     a.Summary,
		Diagnostics: a.Diagnostics,
		Confidence:  a.Summary.Confidence(),
		AnalyzedAt:  a.AnalyzedAt,
	}

	logger := logging.WithFields(ctx, "run_id", a.RunID, "file", a.FileName)
	logger.Info("analysis completed",
		"total_threats", a.Summary.TotalThreats,
		"critical", a.Summary.CriticalCount(),
		"successful_attacks", a.Summary.SuccessfulAttacks(),
	)
	if !a.Diagnostics.Empty() {
		logger.Warn("analysis tolerated malformed values",
			"unknown_severities", len(a.Diagnostics.UnknownSeverities),
			"unknown_attack_types", len(a.Diagnostics.UnknownAttackTypes),
			"invalid_confidence", len(a.Diagnostics.InvalidConfidence),
		)
	}

	run := s.newRun(ctx, result)
	if err := s.history.Record(ctx, run); err != nil {
		logger.Error("record analysis history", "error", err)
	}
	if err := s.publisher.PublishAnalysis(ctx, run); err != nil {
		logger.Error("publish analysis event", "error", err)
	}

	return result, nil
}

// Current returns the session's state. The Analysis field is set once the
// dataset has been analyzed.
func (s *Service) Current(sessionID string) (SessionState, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return SessionState{}, ErrSessionNotFound
	}
	return sess.State(), nil
}

// Reset clears the session's dataset and analysis. The session itself stays.
func (s *Service) Reset(sessionID string) error {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	sess.Clear()
	return nil
}

// History returns up to limit recent analysis runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]AnalysisRun, error) {
	runs, err := s.history.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list analysis history: %w", err)
	}
	return runs, nil
}

// Classify labels one piece of free text, such as a log line or a prompt,
// with the attack type its indicators point at.
func (s *Service) Classify(ctx context.Context, text string) (threat.Prediction, error) {
	p, err := s.catalog.Classify(text)
	if err != nil {
		return threat.Prediction{}, err
	}
	logging.FromContext(ctx).Info("text classified",
		"threat_type", p.ThreatType,
		"severity", p.Severity,
		"confidence", p.Confidence,
		"chars", len(text),
	)
	return p, nil
}

// Catalog returns the attack-type reference catalog.
func (s *Service) Catalog() *threat.Catalog {
	return s.catalog
}

// SessionCount returns the number of live sessions.
func (s *Service) SessionCount() int {
	return s.sessions.Len()
}

// UploadLimiterStatus returns the parse limiter state for monitoring.
func (s *Service) UploadLimiterStatus() UploadLimiterStatus {
	return s.limiter.Status()
}

// WaitForUploads blocks until in-flight parses finish or ctx ends.
func (s *Service) WaitForUploads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) newRun(ctx context.Context, r *AnalysisResult) AnalysisRun {
	meta := MetadataFromContext(ctx)
	return AnalysisRun{
		ID:             r.RunID,
		SessionID:      r.SessionID,
		FileName:       r.FileName,
		TotalThreats:   r.Summary.TotalThreats,
		SeverityLevels: r.Summary.SeverityLevels,
		AttackTypes:    r.Summary.AttackTypes,
		Confidence:     r.Confidence,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
		CreatedAt:      r.AnalyzedAt,
	}
}

func missingColumns(headers []string) []string {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}

	var missing []string
	for _, c := range expectedColumns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	return missing
}
