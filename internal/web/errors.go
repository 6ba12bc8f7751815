package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err, statusCode), usually with statusFor(err)
//  3. Error is mapped via core.MapError to get a user-friendly message
//  4. Technical error is logged with request and session IDs
//  5. User message is rendered as JSON or as an HTML page

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/ThreatBoard/internal/core"
	"github.com/JonMunkholm/ThreatBoard/internal/logging"
	"github.com/JonMunkholm/ThreatBoard/internal/threat"
	"github.com/JonMunkholm/ThreatBoard/internal/web/templates"
	"github.com/a-h/templ"
)

// ErrorResponse is the JSON body of API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes the user-facing message in the format the
// client asked for.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	ue := core.NewUserError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", ue.Technical.Error(),
		"code", ue.User.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	if wantsJSON(r) {
		writeJSON(w, statusCode, ErrorResponse{
			Error:   ue.Error(),
			Message: ue.User.Message,
			Action:  ue.User.Action,
			Code:    ue.User.Code,
		})
		return
	}
	renderComponent(w, r, templates.Page("Error", templates.ErrorAlert(ue.User.Message, ue.User.Action, ue.User.Code)), statusCode)
}

// statusFor picks the HTTP status for an error returned by the service.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, threat.ErrFileTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrNoFile),
		errors.Is(err, core.ErrInvalidFileType),
		errors.Is(err, core.ErrInvalidRequest),
		errors.Is(err, threat.ErrEmptyFile),
		errors.Is(err, threat.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNoDataset):
		return http.StatusConflict
	case errors.Is(err, core.ErrSessionNotFound),
		errors.Is(err, threat.ErrUnknownAttackType):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyUploads):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// renderComponent writes c as HTML with the given status.
func renderComponent(w http.ResponseWriter, r *http.Request, c templ.Component, statusCode int) {
	templ.Handler(c, templ.WithStatus(statusCode)).ServeHTTP(w, r)
}

// wantsJSON checks if the client prefers a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}
