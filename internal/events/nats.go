// Package events publishes completed analyses to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/ThreatBoard/internal/core"
	"github.com/JonMunkholm/ThreatBoard/internal/threat"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is used when the configured prefix is blank.
const DefaultSubjectPrefix = "threatboard"

// Event names, appended to the subject prefix.
const (
	EventAnalysisCompleted = "analysis.completed"
	EventCriticalDetected  = "analysis.critical"
)

// AnalysisEvent is the JSON payload of a published analysis. Client IP and
// user agent are left out.
type AnalysisEvent struct {
	Event          string                                    `json:"event"`
	RunID          string                                    `json:"runId"`
	SessionID      string                                    `json:"sessionId"`
	FileName       string                                    `json:"fileName"`
	TotalThreats   int                                       `json:"totalThreats"`
	CriticalCount  int                                       `json:"criticalCount"`
	SeverityLevels map[string]int                            `json:"severityLevels"`
	AttackTypes    map[threat.AttackType]threat.AttackCounts `json:"attackTypes"`
	Confidence     threat.ConfidenceStats                    `json:"confidence"`
	CreatedAt      time.Time                                 `json:"createdAt"`
}

// PublisherStats counts publish outcomes.
type PublisherStats struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}

// NATSPublisher is a core.Publisher over a NATS connection.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string

	published atomic.Int64
	failed    atomic.Int64
}

var _ core.Publisher = (*NATSPublisher)(nil)

// Connect dials url and returns a publisher. The connection retries in the
// background, so a broker that is down at startup does not block the server.
func Connect(url, subjectPrefix string) (*NATSPublisher, error) {
	logger := slog.With("component", "events")

	nc, err := nats.Connect(url,
		nats.Name("threatboard"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSPublisher{nc: nc, prefix: normalizePrefix(subjectPrefix)}, nil
}

// PublishAnalysis sends run on <prefix>.analysis.completed, and additionally on
// <prefix>.analysis.critical when the run contains critical threats.
func (p *NATSPublisher) PublishAnalysis(ctx context.Context, run core.AnalysisRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ev := newAnalysisEvent(run)
	for _, event := range eventsFor(ev) {
		ev.Event = event
		msg, err := buildMsg(p.prefix, ev)
		if err != nil {
			p.failed.Add(1)
			return err
		}
		if err := p.nc.PublishMsg(msg); err != nil {
			p.failed.Add(1)
			return fmt.Errorf("publish to %s: %w", msg.Subject, err)
		}
		p.published.Add(1)
		slog.Debug("analysis event published", "subject", msg.Subject, "run_id", run.ID)
	}
	return nil
}

// Stats returns publish counters.
func (p *NATSPublisher) Stats() PublisherStats {
	return PublisherStats{Published: p.published.Load(), Failed: p.failed.Load()}
}

// Connected reports whether the connection is currently up.
func (p *NATSPublisher) Connected() bool {
	return p.nc.IsConnected()
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}

func newAnalysisEvent(run core.AnalysisRun) AnalysisEvent {
	return AnalysisEvent{
		RunID:          run.ID,
		SessionID:      run.SessionID,
		FileName:       run.FileName,
		TotalThreats:   run.TotalThreats,
		CriticalCount:  run.SeverityLevels[string(threat.SeverityCritical)],
		SeverityLevels: run.SeverityLevels,
		AttackTypes:    run.AttackTypes,
		Confidence:     run.Confidence,
		CreatedAt:      run.CreatedAt,
	}
}

func eventsFor(ev AnalysisEvent) []string {
	if ev.CriticalCount > 0 {
		return []string{EventAnalysisCompleted, EventCriticalDetected}
	}
	return []string{EventAnalysisCompleted}
}

// buildMsg encodes ev for <prefix>.<ev.Event>. The run ID goes into the
// Nats-Msg-Id header so JetStream consumers can deduplicate.
func buildMsg(prefix string, ev AnalysisEvent) (*nats.Msg, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis event: %w", err)
	}

	msg := nats.NewMsg(prefix + "." + ev.Event)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, ev.RunID+":"+ev.Event)
	return msg, nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return DefaultSubjectPrefix
	}
	return prefix
}
