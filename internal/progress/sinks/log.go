// Package sinks contains progress.Sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/rankscope/rankscope/internal/progress"
)

// Log writes progress events to a zap logger.
type Log struct {
	logger *zap.Logger
}

// NewLog constructs a Log sink.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// Consume logs each event at a stage-appropriate level.
func (s *Log) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("mode", evt.Mode),
		}
		switch evt.Stage {
		case progress.StageRunStart:
			s.logger.Info("run started", append(fields, zap.Int("keywords", evt.Total))...)
		case progress.StageUnitStart:
			s.logger.Debug("keyword started", append(fields, zap.String("keyword", evt.Keyword))...)
		case progress.StageUnitDone:
			s.logger.Debug("keyword done", append(fields,
				zap.String("keyword", evt.Keyword),
				zap.String("outcome", string(evt.Outcome)),
				zap.Duration("dur", evt.Dur),
			)...)
		case progress.StageRunDone:
			s.logger.Info("run finished", append(fields,
				zap.Int("keywords", evt.Total),
				zap.Int("done", evt.Done),
				zap.Duration("dur", evt.Dur),
			)...)
		case progress.StageRunError:
			s.logger.Error("run failed", append(fields, zap.String("note", evt.Note))...)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *Log) Close(context.Context) error {
	return nil
}
