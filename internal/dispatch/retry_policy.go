package dispatch

import (
	"time"

	"github.com/RezaEskandarii/bulkmail/internal/constants"
)

const maxBackoff = 10 * time.Minute

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: constants.MaxRetryAttempt, BaseDelay: 2 * time.Second}
}

// Backoff is the wait before the attempt that follows attempt number attempts:
// BaseDelay * 2^(attempts-1), capped at ten minutes.
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
