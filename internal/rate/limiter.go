package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the window counter and starts the window on
// the first hit. A counter found without a TTL is given one, so a crash
// between INCR and PEXPIRE cannot pin a key forever.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Policy is a fixed-window budget: at most Limit requests per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Enabled reports whether p constrains anything.
func (p Policy) Enabled() bool { return p.Limit > 0 && p.Window > 0 }

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// Config holds limiter wiring.
type Config struct {
	// Prefix namespaces every key, "rl:" when empty.
	Prefix string
	// OnError observes backend failures. The request is allowed regardless.
	OnError func(scope string, err error)
}

// Limiter is a Redis fixed-window counter keyed by scope and identifier.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "rl:"
	}
	return &Limiter{redis: redisClient, config: cfg}
}

// Allow counts one request for identifier under scope. The request is
// denied once the count exceeds p.Limit within the window.
//
// Backend failures fail open: the returned Decision allows the request and
// the error wraps ErrRedisUnavailable for the caller to log.
func (l *Limiter) Allow(ctx context.Context, scope, identifier string, p Policy) (Decision, error) {
	if l == nil || l.redis == nil || !p.Enabled() {
		return Decision{Allowed: true}, nil
	}

	res, err := fixedWindowScript.Run(ctx, l.redis, []string{l.key(scope, identifier)}, p.Window.Milliseconds()).Int64Slice()
	if err == nil && len(res) != 2 {
		err = errors.New("unexpected script reply")
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		if l.config.OnError != nil {
			l.config.OnError(scope, err)
		}
		return Decision{Allowed: true}, err
	}

	count, ttl := res[0], time.Duration(res[1])*time.Millisecond
	if count > int64(p.Limit) {
		return Decision{Allowed: false, Count: count, RetryAfter: ttl}, nil
	}
	return Decision{Allowed: true, Count: count}, nil
}

// Check is Allow folded into an error: a *LimitError when denied, nil
// otherwise, including on backend failure.
func (l *Limiter) Check(ctx context.Context, scope, identifier string, p Policy) error {
	d, _ := l.Allow(ctx, scope, identifier, p)
	if d.Allowed {
		return nil
	}
	return &LimitError{Scope: scope, RetryAfter: d.RetryAfter}
}

// Reset drops the counter for identifier under scope.
func (l *Limiter) Reset(ctx context.Context, scope, identifier string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(scope, identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(scope, identifier string) string {
	return l.config.Prefix + scope + ":" + strings.ToLower(strings.TrimSpace(identifier))
}
