package venue

import (
	"net/http"
	"time"

	"github.com/jpillora/backoff"
)

// RetryPolicy bounds the exponential-backoff retry the session-token and
// OAuth-refresh transport schemes run on 429/5xx responses (spec.md
// §4.1's transport contract). A forced credential renewal on a 401
// happens once, ahead of this budget, and is never itself retried.
type RetryPolicy struct {
	Backoff     backoff.Backoff
	MaxAttempts int
}

// DefaultRetryPolicy is four attempts total with a 200ms-5s jittered
// exponential backoff between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Backoff:     backoff.Backoff{Min: 200 * time.Millisecond, Max: 5 * time.Second, Factor: 2, Jitter: true},
		MaxAttempts: 4,
	}
}

// IsRetryableStatus reports whether status warrants a transport-level
// retry: 429 and any 5xx.
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
