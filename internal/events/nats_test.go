package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/JonMunkholm/ThreatBoard/internal/core"
	"github.com/JonMunkholm/ThreatBoard/internal/threat"
	"github.com/nats-io/nats.go"
)

func testRun(critical int) core.AnalysisRun {
	return core.AnalysisRun{
		ID:             "run-1",
		SessionID:      "session-1",
		FileName:       "threats.csv",
		TotalThreats:   3,
		SeverityLevels: map[string]int{"critical": critical, "high": 1, "medium": 0, "low": 0},
		AttackTypes: map[threat.AttackType]threat.AttackCounts{
			threat.AttackPromptInjection: {Count: 1, Successful: 1},
		},
		IPAddress: "10.0.0.1",
		UserAgent: "curl",
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestNormalizePrefix(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", DefaultSubjectPrefix},
		{"   ", DefaultSubjectPrefix},
		{"acme", "acme"},
		{".acme.threats.", "acme.threats"},
	}
	for _, tt := range tests {
		if got := normalizePrefix(tt.in); got != tt.want {
			t.Errorf("normalizePrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEventsFor(t *testing.T) {
	tests := []struct {
		name     string
		critical int
		want     []string
	}{
		{"no critical", 0, []string{EventAnalysisCompleted}},
		{"critical present", 2, []string{EventAnalysisCompleted, EventCriticalDetected}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eventsFor(newAnalysisEvent(testRun(tt.critical)))
			if len(got) != len(tt.want) {
				t.Fatalf("eventsFor = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("eventsFor[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestBuildMsg(t *testing.T) {
	ev := newAnalysisEvent(testRun(1))
	ev.Event = EventAnalysisCompleted

	msg, err := buildMsg("acme", ev)
	if err != nil {
		t.Fatalf("buildMsg: %v", err)
	}
	if msg.Subject != "acme.analysis.completed" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if got := msg.Header.Get(nats.MsgIdHdr); got != "run-1:analysis.completed" {
		t.Errorf("Nats-Msg-Id = %q", got)
	}

	var payload map[string]any
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if payload["runId"] != "run-1" || payload["criticalCount"] != float64(1) {
		t.Errorf("payload = %v", payload)
	}
	if _, ok := payload["ipAddress"]; ok {
		t.Error("client IP must not be published")
	}
}
