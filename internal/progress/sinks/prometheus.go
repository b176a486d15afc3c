package sinks

import (
	"context"

	"github.com/rankscope/rankscope/internal/metrics"
	"github.com/rankscope/rankscope/internal/progress"
)

// Prometheus forwards unit outcomes to the metrics collectors.
type Prometheus struct{}

// NewPrometheus constructs the sink and ensures collectors exist.
func NewPrometheus() *Prometheus {
	metrics.Init()
	return &Prometheus{}
}

// Consume counts terminal unit outcomes.
func (s *Prometheus) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if evt.Stage == progress.StageUnitDone {
			metrics.IncRecord(evt.Mode, string(evt.Outcome))
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *Prometheus) Close(context.Context) error {
	return nil
}
