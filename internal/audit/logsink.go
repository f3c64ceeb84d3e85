package audit

import (
	"context"

	"go.uber.org/zap"

	"retailgate.org/internal/obs"
)

// LogSink writes records to a structured logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink over logger, or the process logger when nil.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(ctx context.Context, rec Record) error {
	logger := s.logger
	if logger == nil {
		logger = obs.Logger()
	}
	fields := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", "access.decision"),
		zap.String("audit_id", rec.ID),
		zap.Time("ts", rec.Timestamp),
		zap.String("subject_user_id", rec.UserID),
		zap.String("branch_id", rec.BranchID),
		zap.String("operation", string(rec.Operation)),
		zap.String("resource_type", string(rec.ResourceType)),
		zap.Bool("access_granted", rec.AccessGranted),
		zap.String("restriction_level", string(rec.RestrictionLevel)),
	}
	if rec.Reason != "" {
		fields = append(fields, zap.String("reason", rec.Reason))
	}
	if len(rec.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", rec.Metadata))
	}
	fields = append(fields, contextFields(ctx)...)
	logger.Info("audit", fields...)
	return nil
}
