package authcore

import (
	"io"

	"github.com/MrEthical07/authcore/internal/audit"
)

// AuditEvent is one security-relevant occurrence reported by the engine.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

type (
	NoOpSink    = audit.NoOpSink
	ChannelSink = audit.ChannelSink
	MultiSink   = audit.MultiSink
	// AuditSinkFunc adapts a function to AuditSink.
	AuditSinkFunc = audit.SinkFunc
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) AuditSink {
	return audit.NewJSONWriterSink(w)
}
