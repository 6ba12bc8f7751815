package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/ThreatBoard/internal/core"
	"github.com/JonMunkholm/ThreatBoard/internal/threat"
	"github.com/go-chi/chi/v5"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	maxClassifyBody     = 64 << 10
)

// ClassifyRequest is the POST /api/classify body.
type ClassifyRequest struct {
	Text string `json:"text"`
}

// SummaryResponse is the GET /api/summary body.
type SummaryResponse struct {
	SessionID    string                  `json:"sessionId"`
	HasData      bool                    `json:"hasData"`
	ShowAnalysis bool                    `json:"showAnalysis"`
	FileName     string                  `json:"fileName,omitempty"`
	RecordCount  int                     `json:"recordCount"`
	LoadedAt     *time.Time              `json:"loadedAt,omitempty"`
	Summary      *threat.Summary         `json:"summary,omitempty"`
	Diagnostics  *threat.Diagnostics     `json:"diagnostics,omitempty"`
	Confidence   *threat.ConfidenceStats `json:"confidence,omitempty"`
	AnalyzedAt   *time.Time              `json:"analyzedAt,omitempty"`
}

// StatusResponse is the GET /api/status body.
type StatusResponse struct {
	Uploads  core.UploadLimiterStatus `json:"uploads"`
	Sessions int                      `json:"sessions"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	res, err := s.loadUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.Analyze(ctx, sessionID(ctx))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSummary returns the session state. The summary fields are present
// only after an analysis has run on the current dataset.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.Current(sessionID(r.Context()))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, newSummaryResponse(state))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Reset(sessionID(r.Context())); err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleAttackTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"attackTypes": s.service.Catalog().Entries()})
}

func (s *Server) handleAttackType(w http.ResponseWriter, r *http.Request) {
	entry, err := s.service.Catalog().Find(chi.URLParam(r, "attackType"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleClassify labels the text of a JSON body with an attack type.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	body := http.MaxBytesReader(w, r.Body, maxClassifyBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		err = fmt.Errorf("%w: %w", core.ErrInvalidRequest, err)
		s.respondError(w, r, err, statusFor(err))
		return
	}

	p, err := s.service.Classify(r.Context(), req.Text)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleHistory lists recent analysis runs, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := min(parseIntParam(r, "limit", defaultHistoryLimit), maxHistoryLimit)

	runs, err := s.service.History(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if runs == nil {
		runs = []core.AnalysisRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Uploads:  s.service.UploadLimiterStatus(),
		Sessions: s.service.SessionCount(),
	})
}

func newSummaryResponse(st core.SessionState) SummaryResponse {
	resp := SummaryResponse{
		SessionID:    st.SessionID,
		HasData:      st.HasData,
		ShowAnalysis: st.ShowAnalysis,
		FileName:     st.FileName,
		RecordCount:  st.RecordCount,
	}
	if st.HasData {
		loaded := st.LoadedAt
		resp.LoadedAt = &loaded
	}
	if a := st.Analysis; st.ShowAnalysis && a != nil {
		summary, diag, conf := a.Summary, a.Diagnostics, a.Summary.Confidence()
		analyzed := a.AnalyzedAt
		resp.Summary = &summary
		resp.Diagnostics = &diag
		resp.Confidence = &conf
		resp.AnalyzedAt = &analyzed
	}
	return resp
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
