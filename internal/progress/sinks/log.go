package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/logohunter/internal/progress"
)

// LogSink writes each event as one structured log line.
type LogSink struct {
	logger *zap.Logger
	level  zapcore.Level
}

// NewLogSink logs events at Debug, except selections and rejections which are
// logged at Info so a production logger still shows the outcome of each run.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("progress"), level: zapcore.DebugLevel}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		level := s.level
		if evt.Stage == progress.StageLogoSelected || evt.Stage == progress.StageNoLogo {
			level = zapcore.InfoLevel
		}
		ce := s.logger.Check(level, string(evt.Stage))
		if ce == nil {
			continue
		}
		ce.Write(fields(evt)...)
	}
	return nil
}

func fields(evt progress.Event) []zap.Field {
	out := []zap.Field{
		zap.Stringer("run_id", evt.RunUUID()),
		zap.String("domain", evt.Domain),
	}
	if evt.URL != "" {
		out = append(out, zap.String("url", evt.URL))
	}
	if evt.Rank > 0 {
		out = append(out, zap.Int("rank", evt.Rank))
	}
	switch evt.Stage {
	case progress.StageCandidateScored, progress.StageLogoSelected:
		out = append(out, zap.Int("score", evt.Score))
	case progress.StageCandidatesFound:
		out = append(out, zap.Int("count", evt.Count))
	case progress.StageFetchDone, progress.StageHomepageFetched:
		out = append(out, zap.Int64("bytes", evt.Bytes), zap.String("status_class", string(evt.StatusClass)))
	}
	if evt.Rendered {
		out = append(out, zap.Bool("rendered", true))
	}
	if evt.Dur > 0 {
		out = append(out, zap.Duration("dur", evt.Dur))
	}
	if evt.Reason != "" {
		out = append(out, zap.String("reason", evt.Reason))
	}
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
