package store

import (
	"context"

	"github.com/RezaEskandarii/bulkmail/types"
)

// UserStore resolves the users that own batches. Registration lives elsewhere.
type UserStore interface {
	Exists(ctx context.Context, id int64) (bool, error)

	// FindByID returns nil without error when the user does not exist.
	FindByID(ctx context.Context, id int64) (*types.User, error)
}
