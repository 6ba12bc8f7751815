package core

import "context"

// Publisher announces completed analyses to other systems.
// events.NATSPublisher is the production implementation.
type Publisher interface {
	PublishAnalysis(ctx context.Context, run AnalysisRun) error
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

// PublishAnalysis implements Publisher.
func (NopPublisher) PublishAnalysis(context.Context, AnalysisRun) error { return nil }
