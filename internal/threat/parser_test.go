package threat

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []Record
	}{
		{
			name: "header and two rows",
			raw:  "severity,threat_type\ncritical,data_poisoning\nlow,prompt_injection",
			want: []Record{
				{"severity": "critical", "threat_type": "data_poisoning"},
				{"severity": "low", "threat_type": "prompt_injection"},
			},
		},
		{
			name: "header names are trimmed",
			raw:  " severity , status \nhigh,blocked",
			want: []Record{{"severity": "high", "status": "blocked"}},
		},
		{
			name: "values are not trimmed",
			raw:  "severity,status\n high ,blocked",
			want: []Record{{"severity": " high ", "status": "blocked"}},
		},
		{
			name: "short row leaves columns absent",
			raw:  "a,b,c\n1",
			want: []Record{{"a": "1"}},
		},
		{
			name: "long row drops extras",
			raw:  "a,b\n1,2,3,4",
			want: []Record{{"a": "1", "b": "2"}},
		},
		{
			name: "header only",
			raw:  "a,b",
			want: []Record{},
		},
		{
			name: "trailing newline yields no record",
			raw:  "a,b\n1,2\n",
			want: []Record{{"a": "1", "b": "2"}},
		},
		{
			name: "CRLF line endings",
			raw:  "a,b\r\n1,2\r\n",
			want: []Record{{"a": "1", "b": "2"}},
		},
		{
			name: "quotes are not interpreted",
			raw:  "a,b\n\"x,y\",z",
			want: []Record{{"a": "\"x", "b": "y\""}},
		},
		{
			name: "whitespace-only lines are skipped",
			raw:  "severity,threat_type\nhigh,data_poisoning\n   \n\t\r\n",
			want: []Record{{"severity": "high", "threat_type": "data_poisoning"}},
		},
		{
			name: "empty field is kept as empty string",
			raw:  "a,b\n,2",
			want: []Record{{"a": "", "b": "2"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestRecordGet(t *testing.T) {
	rec := Record{"severity": ""}

	if v, ok := rec.Get("severity"); !ok || v != "" {
		t.Errorf("Get(severity) = %q, %v; want \"\", true", v, ok)
	}
	if _, ok := rec.Get("status"); ok {
		t.Error("Get(status) reported present for missing column")
	}
}

func TestParseReader(t *testing.T) {
	t.Run("strips BOM", func(t *testing.T) {
		input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("severity\nhigh")...)
		res := ParseReader(bytes.NewReader(input), 0)
		if !res.OK() {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if res.Headers[0] != "severity" {
			t.Errorf("header = %q, want %q", res.Headers[0], "severity")
		}
		if got := res.Records[0]["severity"]; got != "high" {
			t.Errorf("severity = %q, want %q", got, "high")
		}
	})

	t.Run("replaces invalid UTF-8", func(t *testing.T) {
		input := []byte{'s', '\n', 'h', 0x80, 'i'}
		res := ParseReader(bytes.NewReader(input), 0)
		if !res.OK() {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if got := res.Records[0]["s"]; got != "h?i" {
			t.Errorf("value = %q, want %q", got, "h?i")
		}
	})

	t.Run("empty input", func(t *testing.T) {
		res := ParseReader(strings.NewReader("  \n"), 0)
		if !errors.Is(res.Err, ErrEmptyFile) {
			t.Errorf("Err = %v, want ErrEmptyFile", res.Err)
		}
		if res.Records != nil {
			t.Error("failed parse returned records")
		}
	})

	t.Run("over limit", func(t *testing.T) {
		res := ParseReader(strings.NewReader("a,b\n1,2\n"), 4)
		if !errors.Is(res.Err, ErrFileTooLarge) {
			t.Errorf("Err = %v, want ErrFileTooLarge", res.Err)
		}
	})

	t.Run("exactly at limit", func(t *testing.T) {
		res := ParseReader(strings.NewReader("a\n1"), 3)
		if !res.OK() {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if len(res.Records) != 1 {
			t.Errorf("got %d records, want 1", len(res.Records))
		}
	})

	t.Run("read failure", func(t *testing.T) {
		boom := errors.New("disk on fire")
		res := ParseReader(io.MultiReader(strings.NewReader("a\n"), errReader{boom}), 0)
		if !errors.Is(res.Err, boom) {
			t.Errorf("Err = %v, want wrapped %v", res.Err, boom)
		}
	})
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
