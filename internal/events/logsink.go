package events

import "go.uber.org/zap"

// LogSink flattens event fields into a structured log record. Log level is
// mapped from event type: state_transition/completion -> info, timeout ->
// warning, error -> error.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.With(zap.String("component", "event-log-sink"))}
}

func (s *LogSink) Emit(e Event) {
	fields := []zap.Field{
		zap.String("event_type", string(e.Type)),
		zap.String("issue_id", e.IssueID),
		zap.String("repository", e.Repository),
		zap.Time("timestamp", e.Timestamp),
		zap.Any("details", e.Details),
	}

	switch e.Type {
	case TypeError:
		s.logger.Error("pipeline event", fields...)
	case TypeTimeout:
		s.logger.Warn("pipeline event", fields...)
	default:
		s.logger.Info("pipeline event", fields...)
	}
}
