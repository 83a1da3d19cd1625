package store

import (
	"context"
	"time"

	"github.com/RezaEskandarii/bulkmail/internal/state"
	"github.com/RezaEskandarii/bulkmail/types"
)

// DeliveryLogStore persists one row per recipient per batch.
type DeliveryLogStore interface {
	// CreateLog inserts a pending log. A missing user or template yields a
	// *custom_errors.ReferenceViolationError naming the offending column.
	CreateLog(ctx context.Context, userID int64, recipient string, templateID int64) (*types.DeliveryLog, error)

	// UpdateStatus sets the status and bumps updated_at. The error message is
	// kept only for failed logs. Returns custom_errors.ErrNotFound for unknown ids.
	UpdateStatus(ctx context.Context, id int64, status state.DeliveryStatus, errorMessage *string) (*types.DeliveryLog, error)

	// ListByUser returns the user's logs, newest first.
	ListByUser(ctx context.Context, userID int64) ([]types.DeliveryLog, error)

	// GetByID returns nil without error when the log does not exist.
	GetByID(ctx context.Context, id int64) (*types.DeliveryLog, error)

	// List pages through every user's logs, newest first.
	List(ctx context.Context, page int, pageSize int) (*types.PaginationResult[types.DeliveryLog], error)

	// DeleteByID returns custom_errors.ErrNotFound for unknown ids.
	DeleteByID(ctx context.Context, id int64) error

	// DeleteOlderThan removes sent and failed logs created before the cutoff
	// and reports how many went. Pending logs are kept.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// CountByStatus reports per-status totals for one user. Every status is present.
	CountByStatus(ctx context.Context, userID int64) (map[state.DeliveryStatus]int, error)
}
