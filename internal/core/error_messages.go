// Package core provides the analysis workflow behind the dashboard and CLI.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// Error codes are grouped by category:
//
// # File Errors (FILE001-FILE099)
//
// Errors related to the uploaded threat log:
//
//	FILE001 - File too large: File exceeds maximum size limit
//	          Action: Split the log into smaller files
//	          Matches: threat.ErrFileTooLarge, "file too large"
//
//	FILE002 - Wrong file type: Only .csv files are accepted
//	          Action: Export the threat log as CSV and upload it again
//	          Matches: ErrInvalidFileType, "invalid file type"
//
//	FILE003 - No file: No file was selected
//	          Action: Please select a CSV file to upload
//	          Matches: ErrNoFile, "no file provided"
//
//	FILE004 - Empty file: The uploaded file is empty
//	          Action: Upload a CSV file with a header row
//	          Matches: threat.ErrEmptyFile, "empty file"
//
// # Session Errors (SES001-SES099)
//
//	SES001 - Session expired: Your session was not found
//	         Action: Reload the page and upload the file again
//	         Matches: ErrSessionNotFound, "session not found"
//
// # Analysis Errors (ANL001-ANL099)
//
//	ANL001 - No data: No threat log has been loaded yet
//	         Action: Upload a CSV file before running the analysis
//	         Matches: ErrNoDataset, "no dataset loaded"
//
//	ANL002 - Unknown attack type: The attack type is not tracked
//	         Action: Use data_poisoning, prompt_injection or model_inversion
//	         Matches: threat.ErrUnknownAttackType, "unknown attack type"
//
//	ANL003 - No text: There is no text to classify
//	         Action: Paste the log line or prompt to classify
//	         Matches: threat.ErrEmptyText, "no text to classify"
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Bad request: The request could not be read
//	         Action: Send a JSON body such as {"text": "..."}
//	         Matches: ErrInvalidRequest, "invalid request body"
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - System busy: Too many uploads in progress
//	         Action: Please wait a moment and try again
//	         Matches: ErrTooManyUploads, "too many uploads"
//
//	UPL002 - Request cancelled: Request was cancelled
//	         Action: Please try again
//	         Matches: context.Canceled, "context canceled"
//
//	UPL003 - Request timeout: Request timed out
//	         Action: Try uploading a smaller file or check your connection
//	         Matches: context.DeadlineExceeded, "context deadline exceeded"
//
// # Database Errors (DB001-DB099)
//
// Only reachable when analysis history is stored in PostgreSQL:
//
//	DB001 - Connection refused: Unable to connect to database
//	        Action: Please try again in a few moments
//	        Matches: "connection refused"
//
//	DB002 - Connection reset: Database connection was interrupted
//	        Action: Please try again
//	        Matches: "connection reset"
//
//	DB003 - Timeout: Operation timed out
//	        Action: Please try again later
//	        Matches: "timeout"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Action: Please wait a moment before trying again
//	          Matches: "rate limit"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Matching
//
// Sentinel errors are checked first with errors.Is, so text that ends up in an
// error message (a file name, a driver message) cannot change the code of a
// known failure. Errors without a sentinel fall back to case-insensitive
// substring patterns; the first matching pattern wins.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/ThreatBoard/internal/threat"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	target  error // matched with errors.Is; nil for text-only patterns
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical errors to user messages. Order matters within
// each matching pass: the first match wins.
var errorPatterns = []errorPattern{
	// File errors
	{
		target:  threat.ErrFileTooLarge,
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the log into smaller files",
			Code:    "FILE001",
		},
	},
	{
		target:  ErrInvalidFileType,
		pattern: "invalid file type",
		msg: UserMessage{
			Message: "Only .csv files are accepted",
			Action:  "Export the threat log as CSV and upload it again",
			Code:    "FILE002",
		},
	},
	{
		target:  ErrNoFile,
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to upload",
			Code:    "FILE003",
		},
	},
	{
		target:  threat.ErrEmptyFile,
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Upload a CSV file with a header row",
			Code:    "FILE004",
		},
	},

	// Session and analysis
	{
		target:  ErrSessionNotFound,
		pattern: "session not found",
		msg: UserMessage{
			Message: "Your session was not found",
			Action:  "Reload the page and upload the file again",
			Code:    "SES001",
		},
	},
	{
		target:  ErrNoDataset,
		pattern: "no dataset loaded",
		msg: UserMessage{
			Message: "No threat log has been loaded yet",
			Action:  "Upload a CSV file before running the analysis",
			Code:    "ANL001",
		},
	},
	{
		target:  threat.ErrUnknownAttackType,
		pattern: "unknown attack type",
		msg: UserMessage{
			Message: "The attack type is not tracked",
			Action:  "Use data_poisoning, prompt_injection or model_inversion",
			Code:    "ANL002",
		},
	},
	{
		target:  threat.ErrEmptyText,
		pattern: "no text to classify",
		msg: UserMessage{
			Message: "There is no text to classify",
			Action:  "Paste the log line or prompt to classify",
			Code:    "ANL003",
		},
	},
	{
		target:  ErrInvalidRequest,
		pattern: "invalid request body",
		msg: UserMessage{
			Message: "The request could not be read",
			Action:  `Send a JSON body such as {"text": "..."}`,
			Code:    "REQ001",
		},
	},

	// Upload process
	{
		target:  ErrTooManyUploads,
		pattern: "too many uploads",
		msg: UserMessage{
			Message: "Too many uploads in progress",
			Action:  "Please wait a moment and try again",
			Code:    "UPL001",
		},
	},
	{
		target:  context.Canceled,
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL002",
		},
	},
	{
		target:  context.DeadlineExceeded,
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try uploading a smaller file or check your connection",
			Code:    "UPL003",
		},
	},

	// Database (history store)
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB003",
		},
	},

	// Rate limiting
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
// Support staff should check application logs for the original error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If nothing matches, the ERR000 fallback is returned.
//
// Example:
//
//	msg := MapError(core.ErrNoDataset)
//	// msg.Code == "ANL001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, ep := range errorPatterns {
		if ep.target != nil && errors.Is(err, ep.target) {
			return ep.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern (not ERR000).
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with the message shown to users.
// Error() returns the user message; Unwrap() exposes the original for logging.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
