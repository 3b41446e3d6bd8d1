package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/openrice-crawler/internal/progress"
)

// LogSink emits one structured log line per progress event. It is the
// default reporter for command-line runs.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.District != "" {
			fields = append(fields,
				zap.String("district", evt.District),
				zap.Int("index", evt.Index),
				zap.Int("total", evt.Total),
			)
		}
		if evt.Stage != progress.StageTargetStart && evt.Stage != progress.StageRunStart {
			fields = append(fields,
				zap.Int64("records", evt.Records),
				zap.Int64("dropped", evt.Dropped),
				zap.Int64("bytes", evt.Bytes),
				zap.Duration("dur", evt.Dur),
			)
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageTargetError {
			s.logger.Warn("progress event", fields...)
			continue
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
