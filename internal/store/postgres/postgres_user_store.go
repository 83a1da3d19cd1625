package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/RezaEskandarii/bulkmail/internal/store"
	"github.com/RezaEskandarii/bulkmail/types"
)

type postgresUserStore struct {
	db *sql.DB
}

// NewPostgresUserStore creates a new UserStore with a DB connection
func NewPostgresUserStore(db *sql.DB) store.UserStore {
	return &postgresUserStore{db: db}
}

func (r *postgresUserStore) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *postgresUserStore) FindByID(ctx context.Context, id int64) (*types.User, error) {
	user := &types.User{}
	err := r.db.QueryRowContext(ctx, `SELECT id, email, verified, created_at FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Email, &user.Verified, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // user not found
		}
		return nil, err
	}
	return user, nil
}
