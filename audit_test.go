package authcore

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/store/memory"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func buildAuditTestEngine(t *testing.T, cfg Config, sink AuditSink) (*Engine, *memory.Store) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := memory.New()
	engine, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithRedis(rdb).
		WithKeyStore(sharedKeys(t)).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return engine, store
}

func collectEvents(sink *ChannelSink, max int, wait time.Duration) []AuditEvent {
	events := make([]AuditEvent, 0, max)
	timeout := time.After(wait)
	for len(events) < max {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		case <-timeout:
			return events
		}
	}
	return events
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = false
	cfg.EmailVerification.Enabled = false
	cfg.EmailVerification.RequireForLogin = false

	sink := &countingSink{}
	engine, _ := buildAuditTestEngine(t, cfg, sink)

	ctx := WithClientIP(context.Background(), "203.0.113.1")
	_, _ = engine.Register(ctx, "alice@x.com", testPassword)
	_, _ = engine.Login(ctx, "alice@x.com", "wrong-password-1")
	engine.Close()

	if sink.count.Load() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.count.Load())
	}
}

func TestAuditEventsCarryContext(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16
	cfg.EmailVerification.Enabled = false
	cfg.EmailVerification.RequireForLogin = false

	sink := NewChannelSink(16)
	engine, _ := buildAuditTestEngine(t, cfg, sink)
	defer engine.Close()

	if _, err := engine.Register(context.Background(), "alice@x.com", testPassword); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	ctx := WithClientIP(context.Background(), "198.51.100.33")
	_, _ = engine.Login(ctx, "alice@x.com", "wrong-password-1")

	var failure *AuditEvent
	for _, ev := range collectEvents(sink, 2, 2*time.Second) {
		if ev.EventType == auditEventLoginFailure {
			ev := ev
			failure = &ev
		}
	}
	if failure == nil {
		t.Fatal("expected a login failure event")
	}
	if failure.IP != "198.51.100.33" {
		t.Fatalf("expected IP 198.51.100.33, got %q", failure.IP)
	}
	if failure.UserID == 0 || failure.Success {
		t.Fatalf("unexpected event %+v", failure)
	}
	if failure.Error != string(auditErrInvalidCredentials) {
		t.Fatalf("expected invalid_credentials code, got %q", failure.Error)
	}
	if failure.Timestamp.IsZero() {
		t.Fatal("expected timestamp")
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false
	cfg.EmailVerification.Enabled = false
	cfg.EmailVerification.RequireForLogin = false

	sink := NewChannelSink(64)
	engine, store := buildAuditTestEngine(t, cfg, sink)
	defer engine.Close()
	ctx := context.Background()

	if _, err := engine.Register(ctx, "alice@x.com", testPassword); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	pair, err := engine.Login(ctx, "alice@x.com", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	next, err := engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	_, _ = engine.Refresh(ctx, pair.RefreshToken)

	acct, _ := store.GetAccountByEmail(ctx, "alice@x.com")
	needles := []string{testPassword, pair.RefreshToken, next.RefreshToken, pair.AccessToken, acct.PasswordHash}

	events := collectEvents(sink, 5, 2*time.Second)
	if len(events) == 0 {
		t.Fatal("expected audit events")
	}
	var sawReplay bool
	for _, ev := range events {
		if ev.EventType == auditEventRefreshReplay {
			sawReplay = true
		}
		for _, needle := range needles {
			if strings.Contains(ev.Error, needle) {
				t.Fatalf("sensitive value leaked in error of %s", ev.EventType)
			}
			for k, v := range ev.Metadata {
				if strings.Contains(k, needle) || strings.Contains(v, needle) {
					t.Fatalf("sensitive value leaked in metadata of %s", ev.EventType)
				}
			}
		}
	}
	if !sawReplay {
		t.Fatal("expected a refresh replay event")
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: auditEventLoginSuccess,
		UserID:    42,
		IP:        "127.0.0.1",
		Success:   true,
	})

	if !buf.Contains(`"event_type":"login_success"`) {
		t.Fatal("expected JSON line to contain event type")
	}
	if !buf.Contains(`"user_id":42`) {
		t.Fatal("expected JSON line to contain user id")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Contains(v string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Contains(b.buf.String(), v)
}
