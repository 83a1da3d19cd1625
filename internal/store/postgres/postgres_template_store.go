package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/RezaEskandarii/bulkmail/internal/store"
	"github.com/RezaEskandarii/bulkmail/types"
)

const (
	defaultTemplateName    = "Default Template"
	defaultTemplateSubject = "Default Subject"
	defaultTemplateBody    = "Default email body"
)

type postgresTemplateStore struct {
	db *sql.DB
}

func NewPostgresTemplateStore(db *sql.DB) store.TemplateStore {
	return &postgresTemplateStore{db: db}
}

func (s *postgresTemplateStore) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM email_templates WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (s *postgresTemplateStore) FindByID(ctx context.Context, id int64) (*types.Template, error) {
	t := &types.Template{}
	err := s.db.QueryRowContext(ctx, `SELECT id, name, subject, body, created_at FROM email_templates WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Subject, &t.Body, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (s *postgresTemplateStore) List(ctx context.Context) ([]types.Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, subject, body, created_at FROM email_templates ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := make([]types.Template, 0)
	for rows.Next() {
		var t types.Template
		if err := rows.Scan(&t.ID, &t.Name, &t.Subject, &t.Body, &t.CreatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (s *postgresTemplateStore) EnsureDefault(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM email_templates ORDER BY id LIMIT 1`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO email_templates (name, subject, body) VALUES ($1, $2, $3) RETURNING id`,
		defaultTemplateName, defaultTemplateSubject, defaultTemplateBody).Scan(&id)
	return id, err
}
