package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/RezaEskandarii/bulkmail/internal/constants"
	"github.com/RezaEskandarii/bulkmail/types"
	"github.com/google/uuid"
)

// Envelope is the wire form of a dispatch job. ID only correlates log lines
// across retries; the queue does not deduplicate on it.
type Envelope struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Attempts    int               `json:"attempts"`
	MaxAttempts int               `json:"max_attempts"`
	EnqueuedAt  time.Time         `json:"enqueued_at"`
	Payload     types.DispatchJob `json:"payload"`
}

func newEnvelope(job types.DispatchJob, maxAttempts int) Envelope {
	return Envelope{
		ID:          uuid.NewString(),
		Name:        constants.SendEmailJob,
		Attempts:    1,
		MaxAttempts: maxAttempts,
		EnqueuedAt:  time.Now().UTC(),
		Payload:     job,
	}
}

// next is the envelope for the following attempt of the same job.
func (e Envelope) next() Envelope {
	e.Attempts++
	e.EnqueuedAt = time.Now().UTC()
	return e
}

func (e Envelope) Exhausted() bool {
	return e.Attempts >= e.MaxAttempts
}

func decodeEnvelope(body []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return e, fmt.Errorf("malformed envelope: %w", err)
	}
	if e.Name != constants.SendEmailJob {
		return e, fmt.Errorf("unknown job name %q", e.Name)
	}
	if e.Attempts < 1 {
		e.Attempts = 1
	}
	if e.MaxAttempts < 1 {
		e.MaxAttempts = constants.MaxRetryAttempt
	}
	return e, nil
}
