package authcore

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/authcore/internal/audit"
)

// AuditEvent is one audit record emitted by the engine.
type AuditEvent = audit.Event

// AuditSink receives audit events on the dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink discards audit events.
type NoOpSink = audit.NoOpSink

type ChannelSink = audit.ChannelSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) AuditSink {
	return audit.NewJSONWriterSink(w)
}

// NewLoggerSink writes audit events through l, or slog.Default when nil.
func NewLoggerSink(l *slog.Logger) AuditSink {
	return audit.NewLoggerSink(l)
}
