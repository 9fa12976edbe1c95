package limiters

import (
	"testing"
	"time"

	"github.com/MrEthical07/authcore/account"
)

func TestLockoutLocksAtThreshold(t *testing.T) {
	g := NewLockoutGuard(LockoutConfig{})
	now := time.Unix(1_700_000_000, 0)

	var s account.LockoutState
	for i := 1; i < DefaultLockoutThreshold; i++ {
		s = g.RecordFailure(s, now)
		if !g.CanAttempt(s, now) {
			t.Fatalf("locked after %d failures", i)
		}
	}
	s = g.RecordFailure(s, now)
	if g.CanAttempt(s, now) {
		t.Fatal("expected lock at threshold")
	}
	if s.FailedAttempts != DefaultLockoutThreshold {
		t.Fatalf("expected %d failures, got %d", DefaultLockoutThreshold, s.FailedAttempts)
	}
	if want := now.Add(DefaultLockoutDuration); !s.LockedUntil.Equal(want) {
		t.Fatalf("expected lock until %v, got %v", want, s.LockedUntil)
	}
	if got := g.RetryAfter(s, now.Add(time.Minute)); got != DefaultLockoutDuration-time.Minute {
		t.Fatalf("unexpected retry-after %v", got)
	}
}

func TestLockoutExpiresWithoutIntervention(t *testing.T) {
	g := NewLockoutGuard(LockoutConfig{Threshold: 2, Duration: time.Minute})
	now := time.Unix(1_700_000_000, 0)

	s := g.RecordFailure(g.RecordFailure(account.LockoutState{}, now), now)
	if g.CanAttempt(s, now.Add(time.Minute-time.Nanosecond)) {
		t.Fatal("expected lock before deadline")
	}
	if !g.CanAttempt(s, now.Add(time.Minute)) {
		t.Fatal("expected lock lifted at deadline")
	}

	after := g.RecordFailure(s, now.Add(2*time.Minute))
	if after.FailedAttempts != 1 || after.LockedUntil != nil {
		t.Fatalf("expected fresh count after expired lock, got %+v", after)
	}
}

func TestLockoutSuccessAndUnlockReset(t *testing.T) {
	g := NewLockoutGuard(LockoutConfig{})
	now := time.Now()

	s := account.LockoutState{}
	for i := 0; i < DefaultLockoutThreshold; i++ {
		s = g.RecordFailure(s, now)
	}
	if !g.RecordSuccess(s).Zero() {
		t.Fatal("success must clear failure history")
	}
	if !g.Unlock(s).Zero() {
		t.Fatal("unlock must clear failure history")
	}
	if !g.CanAttempt(g.Unlock(s), now) {
		t.Fatal("unlocked state must allow attempts")
	}
}

func TestLockoutRecordsLastFailure(t *testing.T) {
	g := NewLockoutGuard(LockoutConfig{})
	first := time.Unix(1_700_000_000, 0)
	second := first.Add(time.Second)

	s := g.RecordFailure(account.LockoutState{}, first)
	s = g.RecordFailure(s, second)
	if s.LastFailedAt == nil || !s.LastFailedAt.Equal(second) {
		t.Fatalf("expected last failure %v, got %v", second, s.LastFailedAt)
	}
}
