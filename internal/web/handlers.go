package web

// handlers.go serves the HTML dashboard. Every form posts back to a route
// that redirects to / on success and re-renders the page on error.

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/ThreatBoard/internal/core"
	"github.com/JonMunkholm/ThreatBoard/internal/logging"
	"github.com/JonMunkholm/ThreatBoard/internal/threat"
	"github.com/JonMunkholm/ThreatBoard/internal/web/templates"
)

// multipartOverhead is the allowance for multipart boundaries and headers
// on top of the file size limit.
const multipartOverhead = 64 << 10

// handleDashboard renders the dashboard for the caller's session.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.renderDashboard(w, r, nil, "", http.StatusOK)
}

// handleUploadForm loads the posted CSV into the session.
func (s *Server) handleUploadForm(w http.ResponseWriter, r *http.Request) {
	res, err := s.loadUpload(w, r)
	if err != nil {
		s.renderFormError(w, r, err)
		return
	}

	notice := ""
	if len(res.MissingColumns) > 0 {
		notice = fmt.Sprintf("Loaded %s, but it has no %s column. Those rows count toward the total only.",
			res.FileName, strings.Join(res.MissingColumns, ", "))
	}
	s.finishForm(w, r, notice)
}

// handleAnalyzeForm runs the analysis over the loaded dataset.
func (s *Server) handleAnalyzeForm(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	if _, err := s.service.Analyze(ctx, sessionID(ctx)); err != nil {
		s.renderFormError(w, r, err)
		return
	}
	s.finishForm(w, r, "")
}

// handleResetForm clears the session's dataset and analysis.
func (s *Server) handleResetForm(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Reset(sessionID(r.Context())); err != nil {
		s.renderFormError(w, r, err)
		return
	}
	s.finishForm(w, r, "")
}

// finishForm redirects form posts back to the dashboard (post/redirect/get).
// Responses carrying a notice render in place.
func (s *Server) finishForm(w http.ResponseWriter, r *http.Request, notice string) {
	if notice == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.renderDashboard(w, r, nil, notice, http.StatusOK)
}

// renderFormError logs err and re-renders the dashboard with the user message.
func (s *Server) renderFormError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	ue := core.NewUserError(err)

	logger := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("dashboard action failed", "path", r.URL.Path, "error", ue.Technical, "code", ue.User.Code)
	} else {
		logger.Warn("dashboard action failed", "path", r.URL.Path, "error", ue.Technical, "code", ue.User.Code)
	}

	s.renderDashboard(w, r, &ue.User, "", status)
}

// renderDashboard writes the full dashboard page.
func (s *Server) renderDashboard(w http.ResponseWriter, r *http.Request, userErr *core.UserMessage, notice string, status int) {
	state, err := s.service.Current(sessionID(r.Context()))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	data := templates.DashboardData{
		State:       state,
		Catalog:     s.service.Catalog(),
		MaxFileSize: s.cfg.Upload.MaxFileSize,
		Error:       userErr,
		Notice:      notice,
		Now:         time.Now(),
	}
	renderComponent(w, r, templates.Dashboard(data), status)
}

// loadUpload reads the "file" part of a multipart request and hands it to the
// service. Shared by the form and API upload routes.
func (s *Server) loadUpload(w http.ResponseWriter, r *http.Request) (*core.LoadResult, error) {
	maxSize := s.cfg.Upload.MaxFileSize
	if maxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, uploadFormError(err, maxSize)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNoFile, err)
	}
	defer file.Close()

	ctx := WithRequestMetadata(r.Context(), r)
	return s.service.LoadFile(ctx, sessionID(ctx), filepath.Base(header.Filename), file)
}

// uploadFormError converts multipart parsing failures into service errors.
func uploadFormError(err error, limit int64) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) || strings.Contains(err.Error(), "request body too large") {
		return fmt.Errorf("%w: exceeds %d bytes", threat.ErrFileTooLarge, limit)
	}
	return fmt.Errorf("%w: %v", core.ErrNoFile, err)
}
