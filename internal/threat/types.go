package threat

// Column names read by the aggregator.
const (
	ColumnSeverity   = "severity"
	ColumnThreatType = "threat_type"
	ColumnStatus     = "status"
	ColumnConfidence = "confidence_score"
)

// StatusSuccessful is the status value that marks an attack as successful.
const StatusSuccessful = "successful"

// Severity is a severity label as it appears in the CSV.
// Values outside the four known ones are legal and get their own bucket.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// KnownSeverities lists the pre-seeded severities, most severe first.
var KnownSeverities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Weight returns a sort weight (higher = more severe). Unknown severities weigh 0.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Known reports whether s is one of the four pre-seeded severities.
func (s Severity) Known() bool {
	return s.Weight() > 0
}

// AttackType identifies one of the tracked attack classes.
type AttackType string

const (
	AttackDataPoisoning   AttackType = "data_poisoning"
	AttackPromptInjection AttackType = "prompt_injection"
	AttackModelInversion  AttackType = "model_inversion"
)

// AttackNormal is the classifier verdict for text that matches no indicator.
// It never appears in a Summary.
const AttackNormal AttackType = "normal"

// KnownAttackTypes lists the tracked attack types in display order.
var KnownAttackTypes = []AttackType{AttackDataPoisoning, AttackPromptInjection, AttackModelInversion}

// Known reports whether t is a tracked attack type.
func (t AttackType) Known() bool {
	switch t {
	case AttackDataPoisoning, AttackPromptInjection, AttackModelInversion:
		return true
	}
	return false
}
