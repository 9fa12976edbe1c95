package rate

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrRateLimited matches every *LimitError under errors.Is.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps backend failures reported alongside a fail-open decision.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// LimitError is returned when a request exceeds its window budget.
type LimitError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limited: %s, retry after %s", e.Scope, e.RetryAfter)
}

func (e *LimitError) Is(target error) bool { return target == ErrRateLimited }

// RetryAfterSeconds rounds RetryAfter up to whole seconds, at least one, for
// the Retry-After header.
func (e *LimitError) RetryAfterSeconds() int {
	s := int(math.Ceil(e.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
