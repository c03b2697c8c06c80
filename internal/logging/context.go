package logging

import (
	"context"
	"log/slog"

	"wepp/internal/services"
)

const (
	// FieldComponent names the subsystem emitting the log line.
	FieldComponent = "component"
	// FieldSessionID identifies one annotation session.
	FieldSessionID = "session_id"
	// FieldRecording is the 0-based recording (file) index.
	FieldRecording = "recording"
	// FieldSegment is the 0-based segment (bin) index.
	FieldSegment = "segment"
	// FieldFile is the recording file name.
	FieldFile = "file"
	// FieldChannel is the channel name a pick was made on.
	FieldChannel = "channel"
	// FieldPolarity is the peak polarity ("positive" or "negative").
	FieldPolarity = "polarity"
	// FieldCorrelationID ties log lines to one outbound request.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step after a failure.
	FieldErrorHint = "error_hint"
	// FieldImpact states the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags anomalies that should stand out.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.SessionIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSessionID, id))
	}
	if name, ok := services.RecordingFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldFile, name))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
