package database

// convert.go maps Go values to pgtype values for the history tables.
//
// All to* functions return Valid=false for empty or invalid input so the
// column is stored as NULL.

import (
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// toPgText converts a string to pgtype.Text.
// Returns invalid if the string is empty or only whitespace.
func toPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// toPgUUID converts a string UUID to pgtype.UUID.
func toPgUUID(s string) pgtype.UUID {
	if s == "" {
		return pgtype.UUID{Valid: false}
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

// pgUUIDToString converts a pgtype.UUID to its string representation.
// Returns empty string if the UUID is invalid.
func pgUUIDToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}
