package threat

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// AttackCounts holds the counters for one attack type.
type AttackCounts struct {
	Count      int `json:"count"`
	Successful int `json:"successful"`
}

// Summary is the aggregate computed from one record sequence.
// It is a value: nothing in it refers back to the records.
type Summary struct {
	TotalThreats        int                         `json:"totalThreats"`
	SeverityLevels      map[string]int              `json:"severityLevels"`
	AttackTypes         map[AttackType]AttackCounts `json:"attackTypes"`
	DetectionConfidence []float64                   `json:"detectionConfidence"`
}

// Diagnostics lists what the aggregator tolerated while walking the records.
// Row numbers are 1-based positions in the record sequence.
type Diagnostics struct {
	UnknownSeverities  map[string]int `json:"unknownSeverities,omitempty"`
	UnknownAttackTypes map[string]int `json:"unknownAttackTypes,omitempty"`
	InvalidConfidence  []int          `json:"invalidConfidence,omitempty"`
}

// Empty reports whether nothing was tolerated.
func (d Diagnostics) Empty() bool {
	return len(d.UnknownSeverities) == 0 && len(d.UnknownAttackTypes) == 0 && len(d.InvalidConfidence) == 0
}

// newSummary returns a summary with every known bucket seeded at zero.
func newSummary(total int) Summary {
	s := Summary{
		TotalThreats:        total,
		SeverityLevels:      make(map[string]int, len(KnownSeverities)),
		AttackTypes:         make(map[AttackType]AttackCounts, len(KnownAttackTypes)),
		DetectionConfidence: []float64{},
	}
	for _, sev := range KnownSeverities {
		s.SeverityLevels[string(sev)] = 0
	}
	for _, at := range KnownAttackTypes {
		s.AttackTypes[at] = AttackCounts{}
	}
	return s
}

// Aggregate computes the summary for records in a single pass.
func Aggregate(records []Record) Summary {
	s, _ := AggregateWithDiagnostics(records)
	return s
}

// AggregateWithDiagnostics computes the summary and reports tolerated input.
//
// Each field is handled independently: an empty or missing value means the
// field is not present. Unknown severities open a new bucket, unknown attack
// types are dropped and unparsable confidence scores are skipped.
func AggregateWithDiagnostics(records []Record) (Summary, Diagnostics) {
	s := newSummary(len(records))
	var d Diagnostics

	for i, rec := range records {
		if sev := rec[ColumnSeverity]; sev != "" {
			s.SeverityLevels[sev]++
			if !Severity(sev).Known() {
				if d.UnknownSeverities == nil {
					d.UnknownSeverities = make(map[string]int)
				}
				d.UnknownSeverities[sev]++
			}
		}

		if tt := rec[ColumnThreatType]; tt != "" {
			at := AttackType(tt)
			if at.Known() {
				c := s.AttackTypes[at]
				c.Count++
				if rec[ColumnStatus] == StatusSuccessful {
					c.Successful++
				}
				s.AttackTypes[at] = c
			} else {
				if d.UnknownAttackTypes == nil {
					d.UnknownAttackTypes = make(map[string]int)
				}
				d.UnknownAttackTypes[tt]++
			}
		}

		if raw := rec[ColumnConfidence]; raw != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				d.InvalidConfidence = append(d.InvalidConfidence, i+1)
				continue
			}
			s.DetectionConfidence = append(s.DetectionConfidence, f)
		}
	}

	return s, d
}

// CriticalCount returns the number of critical threats.
func (s Summary) CriticalCount() int {
	return s.SeverityLevels[string(SeverityCritical)]
}

// SuccessfulAttacks returns the successful count summed over attack types.
func (s Summary) SuccessfulAttacks() int {
	n := 0
	for _, c := range s.AttackTypes {
		n += c.Successful
	}
	return n
}

// SeverityCount is one bucket of the severity histogram.
type SeverityCount struct {
	Severity string `json:"severity"`
	Count    int    `json:"count"`
}

// SortedSeverities returns the histogram in display order: known severities
// from critical to low, then any other labels alphabetically.
func (s Summary) SortedSeverities() []SeverityCount {
	out := make([]SeverityCount, 0, len(s.SeverityLevels))
	for _, sev := range KnownSeverities {
		out = append(out, SeverityCount{Severity: string(sev), Count: s.SeverityLevels[string(sev)]})
	}

	var extra []string
	for k := range s.SeverityLevels {
		if !Severity(k).Known() {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		out = append(out, SeverityCount{Severity: k, Count: s.SeverityLevels[k]})
	}
	return out
}

// ConfidenceStats summarizes DetectionConfidence.
// Mean, Min and Max are zero when Count is zero.
type ConfidenceStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Confidence computes ConfidenceStats over the detection confidence list.
func (s Summary) Confidence() ConfidenceStats {
	st := ConfidenceStats{Count: len(s.DetectionConfidence)}
	if st.Count == 0 {
		return st
	}

	st.Min = s.DetectionConfidence[0]
	st.Max = s.DetectionConfidence[0]
	sum := 0.0
	for _, f := range s.DetectionConfidence {
		sum += f
		st.Min = math.Min(st.Min, f)
		st.Max = math.Max(st.Max, f)
	}
	st.Mean = sum / float64(st.Count)
	return st
}
