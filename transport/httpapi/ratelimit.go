package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/rate"
)

// rateLimit checks scope before the handler runs. Requests carrying an
// email in their JSON body are counted per email, the rest per client IP.
func (h *Handler) rateLimit(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
			if err != nil {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			err = h.engine.CheckRateLimit(r.Context(), scope, h.identifier(r, peekEmail(body)))
			var rle *authcore.RateLimitError
			if errors.As(err, &rle) {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(rle.RetryAfter)))
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			if err != nil {
				h.internalError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) identifier(r *http.Request, email string) string {
	if email != "" {
		return rate.IdentifierFor(r, email)
	}
	return "ip:" + h.clientIP(r)
}

func peekEmail(body []byte) string {
	var probe struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return probe.Email
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
