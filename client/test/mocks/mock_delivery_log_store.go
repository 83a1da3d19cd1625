package mocks

import (
	"context"
	"time"

	"github.com/RezaEskandarii/bulkmail/internal/state"
	"github.com/RezaEskandarii/bulkmail/types"
)

// MockDeliveryLogStore is a mock implementation of store.DeliveryLogStore for testing.
type MockDeliveryLogStore struct {
	CreateLogFunc       func(ctx context.Context, userID int64, recipient string, templateID int64) (*types.DeliveryLog, error)
	UpdateStatusFunc    func(ctx context.Context, id int64, status state.DeliveryStatus, errorMessage *string) (*types.DeliveryLog, error)
	ListByUserFunc      func(ctx context.Context, userID int64) ([]types.DeliveryLog, error)
	GetByIDFunc         func(ctx context.Context, id int64) (*types.DeliveryLog, error)
	ListFunc            func(ctx context.Context, page int, pageSize int) (*types.PaginationResult[types.DeliveryLog], error)
	DeleteByIDFunc      func(ctx context.Context, id int64) error
	DeleteOlderThanFunc func(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatusFunc   func(ctx context.Context, userID int64) (map[state.DeliveryStatus]int, error)
}

func (m *MockDeliveryLogStore) CreateLog(ctx context.Context, userID int64, recipient string, templateID int64) (*types.DeliveryLog, error) {
	if m.CreateLogFunc != nil {
		return m.CreateLogFunc(ctx, userID, recipient, templateID)
	}
	now := time.Now()
	return &types.DeliveryLog{ID: 1, UserID: userID, Recipient: recipient, TemplateID: templateID,
		Status: state.StatusPending, CreatedAt: now, UpdatedAt: now}, nil
}

func (m *MockDeliveryLogStore) UpdateStatus(ctx context.Context, id int64, status state.DeliveryStatus, errorMessage *string) (*types.DeliveryLog, error) {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status, errorMessage)
	}
	return &types.DeliveryLog{ID: id, Status: status, ErrorMessage: errorMessage}, nil
}

func (m *MockDeliveryLogStore) ListByUser(ctx context.Context, userID int64) ([]types.DeliveryLog, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID)
	}
	return []types.DeliveryLog{}, nil
}

func (m *MockDeliveryLogStore) GetByID(ctx context.Context, id int64) (*types.DeliveryLog, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockDeliveryLogStore) List(ctx context.Context, page int, pageSize int) (*types.PaginationResult[types.DeliveryLog], error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, page, pageSize)
	}
	return types.NewPaginationResult[types.DeliveryLog](nil, 0, page, pageSize), nil
}

func (m *MockDeliveryLogStore) DeleteByID(ctx context.Context, id int64) error {
	if m.DeleteByIDFunc != nil {
		return m.DeleteByIDFunc(ctx, id)
	}
	return nil
}

func (m *MockDeliveryLogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteOlderThanFunc != nil {
		return m.DeleteOlderThanFunc(ctx, cutoff)
	}
	return 0, nil
}

func (m *MockDeliveryLogStore) CountByStatus(ctx context.Context, userID int64) (map[state.DeliveryStatus]int, error) {
	if m.CountByStatusFunc != nil {
		return m.CountByStatusFunc(ctx, userID)
	}
	return map[state.DeliveryStatus]int{}, nil
}
