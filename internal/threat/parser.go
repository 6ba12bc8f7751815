package threat

// parser.go converts raw delimited text into records.
//
// The format is deliberately naive: lines are split on '\n', fields on ','.
// There is no quoting, escaping or encoding detection. The header row names
// the columns; every later line is zipped positionally against it.

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptyFile is returned when the input contains no header row.
var ErrEmptyFile = errors.New("empty file: no header row")

// ErrFileTooLarge is returned when the input exceeds the read limit.
var ErrFileTooLarge = errors.New("file too large")

// utf8BOM is stripped from the start of files saved by Excel and friends.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Record is one data row keyed by trimmed header name.
// A column is absent when the row had fewer fields than the header.
type Record map[string]string

// Get returns the value of column and whether the row carried it.
func (r Record) Get(column string) (string, bool) {
	v, ok := r[column]
	return v, ok
}

// ParseResult is the outcome of reading and parsing one file.
// Exactly one of Records (possibly empty) or Err is meaningful.
type ParseResult struct {
	Headers []string
	Records []Record
	Err     error
}

// OK reports whether parsing succeeded.
func (p ParseResult) OK() bool {
	return p.Err == nil
}

// Parse splits raw text into records. Line 0 is the header.
//
// Rows with fewer fields than the header leave the trailing columns absent;
// extra fields are dropped. Blank lines (including the one left by a trailing
// newline) produce no record, and a trailing '\r' is removed from every line.
func Parse(raw string) []Record {
	_, records := parse(raw)
	return records
}

func parse(raw string) ([]string, []Record) {
	lines := strings.Split(raw, "\n")

	headerLine := strings.TrimSuffix(lines[0], "\r")
	fields := strings.Split(headerLine, ",")
	headers := make([]string, len(fields))
	for i, h := range fields {
		headers[i] = strings.TrimSpace(h)
	}

	records := make([]Record, 0, len(lines)-1)
	for _, line := range lines[1:] {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		values := strings.Split(line, ",")
		rec := make(Record, len(headers))
		for i, h := range headers {
			if i >= len(values) {
				break
			}
			rec[h] = values[i]
		}
		records = append(records, rec)
	}

	return headers, records
}

// ParseReader reads all of r and parses it.
//
// At most limit bytes are accepted (limit <= 0 means unbounded). A leading
// UTF-8 BOM is removed and invalid UTF-8 sequences are replaced with '?'.
// Read failures are returned in ParseResult.Err rather than logged here.
func ParseReader(r io.Reader, limit int64) ParseResult {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return ParseResult{Err: fmt.Errorf("read file: %w", err)}
	}
	if limit > 0 && int64(len(data)) > limit {
		return ParseResult{Err: fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, limit)}
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	text := strings.ToValidUTF8(string(data), "?")
	if strings.TrimSpace(text) == "" {
		return ParseResult{Err: ErrEmptyFile}
	}

	headers, records := parse(text)
	return ParseResult{Headers: headers, Records: records}
}
