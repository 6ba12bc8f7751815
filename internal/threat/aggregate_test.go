package threat

import (
	"math/rand"
	"reflect"
	"sort"
	"testing"
)

func TestAggregate_Scenarios(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Summary
	}{
		{
			name: "two mixed rows",
			raw: "severity,threat_type,status,confidence_score\n" +
				"critical,data_poisoning,successful,0.92\n" +
				"low,prompt_injection,blocked,0.40",
			want: Summary{
				TotalThreats:   2,
				SeverityLevels: map[string]int{"critical": 1, "high": 0, "medium": 0, "low": 1},
				AttackTypes: map[AttackType]AttackCounts{
					AttackDataPoisoning:   {Count: 1, Successful: 1},
					AttackPromptInjection: {Count: 1, Successful: 0},
					AttackModelInversion:  {},
				},
				DetectionConfidence: []float64{0.92, 0.40},
			},
		},
		{
			name: "unknown threat type counts only toward total",
			raw:  "severity,threat_type,status\nhigh,sql_injection,successful",
			want: Summary{
				TotalThreats:   1,
				SeverityLevels: map[string]int{"critical": 0, "high": 1, "medium": 0, "low": 0},
				AttackTypes: map[AttackType]AttackCounts{
					AttackDataPoisoning:   {},
					AttackPromptInjection: {},
					AttackModelInversion:  {},
				},
				DetectionConfidence: []float64{},
			},
		},
		{
			name: "non-numeric confidence is skipped",
			raw:  "threat_type,confidence_score\nmodel_inversion,N/A",
			want: Summary{
				TotalThreats:   1,
				SeverityLevels: map[string]int{"critical": 0, "high": 0, "medium": 0, "low": 0},
				AttackTypes: map[AttackType]AttackCounts{
					AttackDataPoisoning:   {},
					AttackPromptInjection: {},
					AttackModelInversion:  {Count: 1},
				},
				DetectionConfidence: []float64{},
			},
		},
		{
			name: "header only",
			raw:  "severity,threat_type,status,confidence_score\n",
			want: Summary{
				TotalThreats:   0,
				SeverityLevels: map[string]int{"critical": 0, "high": 0, "medium": 0, "low": 0},
				AttackTypes: map[AttackType]AttackCounts{
					AttackDataPoisoning:   {},
					AttackPromptInjection: {},
					AttackModelInversion:  {},
				},
				DetectionConfidence: []float64{},
			},
		},
		{
			name: "unknown severity opens a bucket",
			raw:  "severity\nsevere\nsevere\nlow",
			want: Summary{
				TotalThreats:   3,
				SeverityLevels: map[string]int{"critical": 0, "high": 0, "medium": 0, "low": 1, "severe": 2},
				AttackTypes: map[AttackType]AttackCounts{
					AttackDataPoisoning:   {},
					AttackPromptInjection: {},
					AttackModelInversion:  {},
				},
				DetectionConfidence: []float64{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate(Parse(tt.raw))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Aggregate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAggregate_FieldPresence(t *testing.T) {
	records := []Record{
		{"severity": "", "threat_type": "", "confidence_score": ""},
		{"status": "successful"},
		{"threat_type": "prompt_injection"},
		{"threat_type": "prompt_injection", "status": "Successful"},
		{"confidence_score": " 0.5 "},
	}

	s := Aggregate(records)

	if s.TotalThreats != 5 {
		t.Errorf("TotalThreats = %d, want 5", s.TotalThreats)
	}
	if _, ok := s.SeverityLevels[""]; ok {
		t.Error("empty severity created a bucket")
	}
	pi := s.AttackTypes[AttackPromptInjection]
	if pi.Count != 2 || pi.Successful != 0 {
		t.Errorf("prompt_injection = %+v, want {Count:2 Successful:0}", pi)
	}
	if !reflect.DeepEqual(s.DetectionConfidence, []float64{0.5}) {
		t.Errorf("DetectionConfidence = %v, want [0.5]", s.DetectionConfidence)
	}
}

func TestAggregateWithDiagnostics(t *testing.T) {
	records := Parse("severity,threat_type,confidence_score\n" +
		"critical,data_poisoning,0.9\n" +
		"urgent,sql_injection,abc\n" +
		"low,xss,NaN\n" +
		"urgent,model_inversion,0.1\n")

	s, d := AggregateWithDiagnostics(records)

	if s.TotalThreats != 4 {
		t.Errorf("TotalThreats = %d, want 4", s.TotalThreats)
	}
	if got := d.UnknownSeverities["urgent"]; got != 2 {
		t.Errorf("UnknownSeverities[urgent] = %d, want 2", got)
	}
	want := map[string]int{"sql_injection": 1, "xss": 1}
	if !reflect.DeepEqual(d.UnknownAttackTypes, want) {
		t.Errorf("UnknownAttackTypes = %v, want %v", d.UnknownAttackTypes, want)
	}
	if !reflect.DeepEqual(d.InvalidConfidence, []int{2, 3}) {
		t.Errorf("InvalidConfidence = %v, want [2 3]", d.InvalidConfidence)
	}
	if d.Empty() {
		t.Error("Empty() = true, want false")
	}

	_, clean := AggregateWithDiagnostics(Parse("severity\nhigh"))
	if !clean.Empty() {
		t.Errorf("clean input produced diagnostics: %+v", clean)
	}
}

// sampleRecords builds a deterministic mixed data set.
func sampleRecords(n int, rng *rand.Rand) []Record {
	severities := []string{"critical", "high", "medium", "low", "info", ""}
	types := []string{"data_poisoning", "prompt_injection", "model_inversion", "phishing", ""}
	statuses := []string{"successful", "blocked", "detected"}
	scores := []string{"0.1", "0.55", "0.99", "N/A", "", "1e-3"}

	out := make([]Record, n)
	for i := range out {
		rec := Record{
			"severity":         severities[rng.Intn(len(severities))],
			"threat_type":      types[rng.Intn(len(types))],
			"status":           statuses[rng.Intn(len(statuses))],
			"confidence_score": scores[rng.Intn(len(scores))],
		}
		if rng.Intn(5) == 0 {
			delete(rec, "status")
		}
		out[i] = rec
	}
	return out
}

func TestAggregate_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 20; round++ {
		records := sampleRecords(rng.Intn(200), rng)
		s := Aggregate(records)

		if s.TotalThreats != len(records) {
			t.Fatalf("TotalThreats = %d, want %d", s.TotalThreats, len(records))
		}

		withSeverity := 0
		for _, r := range records {
			if r["severity"] != "" {
				withSeverity++
			}
		}
		sum := 0
		for _, n := range s.SeverityLevels {
			sum += n
		}
		if sum != withSeverity {
			t.Fatalf("severity sum = %d, want %d", sum, withSeverity)
		}

		for at, c := range s.AttackTypes {
			if c.Successful > c.Count {
				t.Fatalf("%s: successful %d > count %d", at, c.Successful, c.Count)
			}
		}

		shuffled := append([]Record(nil), records...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		if !summariesEqual(s, Aggregate(shuffled)) {
			t.Fatal("aggregate differs after permuting records")
		}

		if !reflect.DeepEqual(s, Aggregate(records)) {
			t.Fatal("repeated aggregate differs")
		}
	}
}

// summariesEqual compares summaries treating DetectionConfidence as a multiset.
func summariesEqual(a, b Summary) bool {
	ac := append([]float64(nil), a.DetectionConfidence...)
	bc := append([]float64(nil), b.DetectionConfidence...)
	sort.Float64s(ac)
	sort.Float64s(bc)
	a.DetectionConfidence, b.DetectionConfidence = ac, bc
	return reflect.DeepEqual(a, b)
}

func TestSummaryHelpers(t *testing.T) {
	s := Aggregate(Parse("severity,threat_type,status,confidence_score\n" +
		"critical,data_poisoning,successful,0.2\n" +
		"critical,model_inversion,successful,0.8\n" +
		"zeta,prompt_injection,blocked,0.5\n" +
		"alpha,,,\n"))

	if got := s.CriticalCount(); got != 2 {
		t.Errorf("CriticalCount() = %d, want 2", got)
	}
	if got := s.SuccessfulAttacks(); got != 2 {
		t.Errorf("SuccessfulAttacks() = %d, want 2", got)
	}

	var order []string
	for _, sc := range s.SortedSeverities() {
		order = append(order, sc.Severity)
	}
	wantOrder := []string{"critical", "high", "medium", "low", "alpha", "zeta"}
	if !reflect.DeepEqual(order, wantOrder) {
		t.Errorf("SortedSeverities() order = %v, want %v", order, wantOrder)
	}

	st := s.Confidence()
	if st.Count != 3 || st.Min != 0.2 || st.Max != 0.8 {
		t.Errorf("Confidence() = %+v", st)
	}
	if st.Mean < 0.4999 || st.Mean > 0.5001 {
		t.Errorf("Confidence().Mean = %v, want 0.5", st.Mean)
	}

	if empty := Aggregate(nil).Confidence(); empty != (ConfidenceStats{}) {
		t.Errorf("empty Confidence() = %+v, want zero", empty)
	}
}

func TestSeverityWeight(t *testing.T) {
	if !(SeverityCritical.Weight() > SeverityHigh.Weight() &&
		SeverityHigh.Weight() > SeverityMedium.Weight() &&
		SeverityMedium.Weight() > SeverityLow.Weight()) {
		t.Error("severity weights are not strictly ordered")
	}
	if Severity("unknown").Known() {
		t.Error("unknown severity reported as known")
	}
}

func BenchmarkAggregate(b *testing.B) {
	records := sampleRecords(10000, rand.New(rand.NewSource(1)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Aggregate(records)
	}
}
