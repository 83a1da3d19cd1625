package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RezaEskandarii/bulkmail/custom_errors"
	"github.com/RezaEskandarii/bulkmail/internal/state"
	"github.com/RezaEskandarii/bulkmail/internal/store"
	"github.com/RezaEskandarii/bulkmail/types"
	"github.com/lib/pq"
)

// foreignKeyViolation is the SQLSTATE Postgres reports for a missing referenced row.
const foreignKeyViolation = "23503"

const logColumns = `id, user_id, email_to, template_id, status, error_message, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

type PostgresDeliveryLogStore struct {
	db *sql.DB
}

func NewPostgresDeliveryLogStore(db *sql.DB) *PostgresDeliveryLogStore {
	return &PostgresDeliveryLogStore{db: db}
}

var _ store.DeliveryLogStore = (*PostgresDeliveryLogStore)(nil)

func (s *PostgresDeliveryLogStore) CreateLog(ctx context.Context, userID int64, recipient string, templateID int64) (*types.DeliveryLog, error) {
	if err := s.checkReference(ctx, "users", "user_id", userID); err != nil {
		return nil, err
	}
	if err := s.checkReference(ctx, "email_templates", "template_id", templateID); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO email_logs (user_id, email_to, template_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+logColumns,
		userID, recipient, templateID, state.StatusPending)

	deliveryLog, err := scanLog(row)
	if err != nil {
		if refErr := referenceViolation(err, userID, templateID); refErr != nil {
			return nil, refErr
		}
		return nil, fmt.Errorf("failed to create delivery log: %w", err)
	}
	return deliveryLog, nil
}

func (s *PostgresDeliveryLogStore) UpdateStatus(ctx context.Context, id int64, status state.DeliveryStatus, errorMessage *string) (*types.DeliveryLog, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid delivery status %q", status)
	}
	if status != state.StatusFailed {
		errorMessage = nil
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE email_logs
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING `+logColumns,
		status, errorMessage, id)

	deliveryLog, err := scanLog(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("delivery log %d: %w", id, custom_errors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update delivery log %d: %w", id, err)
	}
	return deliveryLog, nil
}

func (s *PostgresDeliveryLogStore) ListByUser(ctx context.Context, userID int64) ([]types.DeliveryLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+logColumns+`
		FROM email_logs
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery logs: %w", err)
	}
	defer rows.Close()

	return scanLogs(rows)
}

func (s *PostgresDeliveryLogStore) GetByID(ctx context.Context, id int64) (*types.DeliveryLog, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+logColumns+` FROM email_logs WHERE id = $1`, id)
	deliveryLog, err := scanLog(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get delivery log %d: %w", id, err)
	}
	return deliveryLog, nil
}

func (s *PostgresDeliveryLogStore) List(ctx context.Context, page int, pageSize int) (*types.PaginationResult[types.DeliveryLog], error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	offset := (page - 1) * pageSize

	var totalItems int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM email_logs`).Scan(&totalItems); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+logColumns+`
		FROM email_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs, err := scanLogs(rows)
	if err != nil {
		return nil, err
	}
	return types.NewPaginationResult(logs, totalItems, page, pageSize), nil
}

func (s *PostgresDeliveryLogStore) DeleteByID(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM email_logs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("delivery log %d: %w", id, custom_errors.ErrNotFound)
	}
	return nil
}

func (s *PostgresDeliveryLogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := []any{cutoff}
	placeholders := make([]string, 0, len(state.AllStatuses))
	for _, status := range state.TerminalStatuses() {
		args = append(args, status)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	// pending logs may still have a job in the queue
	query := fmt.Sprintf(`DELETE FROM email_logs WHERE created_at < $1 AND status IN (%s)`, strings.Join(placeholders, ", "))
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to purge delivery logs: %w", err)
	}
	return result.RowsAffected()
}

func (s *PostgresDeliveryLogStore) CountByStatus(ctx context.Context, userID int64) (map[state.DeliveryStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) AS count
		FROM email_logs
		WHERE user_id = $1
		GROUP BY status`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[state.DeliveryStatus]int, len(state.AllStatuses))
	for rows.Next() {
		var status state.DeliveryStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		result[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, status := range state.AllStatuses {
		if _, ok := result[status]; !ok {
			result[status] = 0
		}
	}
	return result, nil
}

func (s *PostgresDeliveryLogStore) checkReference(ctx context.Context, table, field string, id int64) error {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table)
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check %s: %w", field, err)
	}
	if !exists {
		return &custom_errors.ReferenceViolationError{Field: field, ID: id}
	}
	return nil
}

// referenceViolation covers the window between the existence check and the
// insert, when a referenced row is removed concurrently.
func referenceViolation(err error, userID, templateID int64) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != foreignKeyViolation {
		return nil
	}
	if strings.Contains(pqErr.Constraint, "template") || strings.Contains(pqErr.Detail, "template_id") {
		return &custom_errors.ReferenceViolationError{Field: "template_id", ID: templateID}
	}
	return &custom_errors.ReferenceViolationError{Field: "user_id", ID: userID}
}

func scanLog(row scanner) (*types.DeliveryLog, error) {
	var l types.DeliveryLog
	err := row.Scan(&l.ID, &l.UserID, &l.Recipient, &l.TemplateID, &l.Status,
		&l.ErrorMessage, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func scanLogs(rows *sql.Rows) ([]types.DeliveryLog, error) {
	logs := make([]types.DeliveryLog, 0)
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}
