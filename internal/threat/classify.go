package threat

import (
	"errors"
	"math"
	"strings"
)

// ErrEmptyText is returned by Classify for blank input.
var ErrEmptyText = errors.New("no text to classify")

// Severity cut-offs applied to the winning attack type's indicator score.
const (
	criticalScore = 6
	highScore     = 4
	mediumScore   = 2
)

// normalConfidence is reported when no indicator matched.
const normalConfidence = 0.5

// Prediction is the verdict for one piece of free text such as a log line or
// a prompt.
type Prediction struct {
	ThreatType AttackType `json:"threatType"`
	Severity   Severity   `json:"severity"`
	Confidence float64    `json:"confidence"`
	Matched    []string   `json:"matched,omitempty"`
}

// Classify scores text against each attack type's indicators and returns the
// best match. Matching is case-insensitive and ignores runs of whitespace.
//
// The winning type's score picks the severity. Confidence is the winner's
// share of all matched weight, discounted by one so a single weak hit never
// reports certainty. Ties go to the earlier type in KnownAttackTypes. Text
// with no hits is AttackNormal at low severity.
func (c *Catalog) Classify(text string) (Prediction, error) {
	norm := normalizeText(text)
	if norm == "" {
		return Prediction{}, ErrEmptyText
	}

	var (
		best    AttackType
		bestSum int
		total   int
		matched []string
	)
	for _, at := range KnownAttackTypes {
		sum := 0
		var hits []string
		for _, ind := range c.entries[at].Indicators {
			if strings.Contains(norm, ind.Phrase) {
				sum += ind.Weight
				hits = append(hits, ind.Phrase)
			}
		}
		total += sum
		if sum > bestSum {
			best, bestSum, matched = at, sum, hits
		}
	}

	if bestSum == 0 {
		return Prediction{
			ThreatType: AttackNormal,
			Severity:   SeverityLow,
			Confidence: normalConfidence,
		}, nil
	}

	conf := float64(bestSum) / float64(total+1)
	return Prediction{
		ThreatType: best,
		Severity:   severityForScore(bestSum),
		Confidence: math.Round(conf*100) / 100,
		Matched:    matched,
	}, nil
}

func severityForScore(score int) Severity {
	switch {
	case score >= criticalScore:
		return SeverityCritical
	case score >= highScore:
		return SeverityHigh
	case score >= mediumScore:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
