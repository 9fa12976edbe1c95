package audit

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authcore/internal/observability"
)

// Event is one security-relevant occurrence. It never carries passwords,
// tokens, codes or hashes; the dispatcher strips metadata keys that look
// like them.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    int64             `json:"user_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives audit events. The dispatcher calls it from one goroutine.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event)

func (f SinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a consumer through a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line. Write failures are
// counted, not returned.
type JSONWriterSink struct {
	mu     sync.Mutex
	enc    *json.Encoder
	failed atomic.Uint64
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	err := s.enc.Encode(event)
	s.mu.Unlock()
	if err != nil {
		s.failed.Add(1)
	}
}

// Failed reports how many events could not be written.
func (s *JSONWriterSink) Failed() uint64 {
	if s == nil {
		return 0
	}
	return s.failed.Load()
}

// LoggerSink writes events through the process logger, at warn level for
// failures.
type LoggerSink struct {
	Logger *observability.Logger
}

func (s LoggerSink) Emit(_ context.Context, event Event) {
	if s.Logger == nil {
		return
	}
	fields := map[string]any{
		"event":   event.EventType,
		"success": event.Success,
		"at":      event.Timestamp.Format(time.RFC3339Nano),
	}
	if event.UserID != 0 {
		fields["user_id"] = event.UserID
	}
	if event.IP != "" {
		fields["ip"] = event.IP
	}
	if event.Error != "" {
		fields["error"] = event.Error
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}
	if event.Success {
		s.Logger.Info("audit", fields)
		return
	}
	s.Logger.Warn("audit", fields)
}

// MultiSink fans every event out to each sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}

var secretMarkers = []string{"password", "token", "secret", "code", "hash", "key"}

// sanitize returns md without keys naming secret material. md itself is
// not modified.
func sanitize(md map[string]string) map[string]string {
	clean := true
	for k := range md {
		if looksSecret(k) {
			clean = false
			break
		}
	}
	if clean {
		return md
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		if !looksSecret(k) {
			out[k] = v
		}
	}
	return out
}

func looksSecret(key string) bool {
	key = strings.ToLower(key)
	for _, m := range secretMarkers {
		if strings.Contains(key, m) {
			return true
		}
	}
	return false
}
