package store

import (
	"context"

	"github.com/RezaEskandarii/bulkmail/types"
)

// TemplateStore reads email templates. Templates are managed out of band.
type TemplateStore interface {
	Exists(ctx context.Context, id int64) (bool, error)

	// FindByID returns nil without error when the template does not exist.
	FindByID(ctx context.Context, id int64) (*types.Template, error)

	List(ctx context.Context) ([]types.Template, error)

	// EnsureDefault returns the id of any existing template, creating a
	// placeholder one when the table is empty.
	EnsureDefault(ctx context.Context) (int64, error)
}
