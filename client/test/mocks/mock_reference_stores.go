package mocks

import (
	"context"

	"github.com/RezaEskandarii/bulkmail/types"
)

// MockUserStore is a mock implementation of store.UserStore for testing.
type MockUserStore struct {
	ExistsFunc   func(ctx context.Context, id int64) (bool, error)
	FindByIDFunc func(ctx context.Context, id int64) (*types.User, error)
}

func (m *MockUserStore) Exists(ctx context.Context, id int64) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, id)
	}
	return true, nil
}

func (m *MockUserStore) FindByID(ctx context.Context, id int64) (*types.User, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return &types.User{ID: id}, nil
}

// MockTemplateStore is a mock implementation of store.TemplateStore for testing.
type MockTemplateStore struct {
	ExistsFunc        func(ctx context.Context, id int64) (bool, error)
	FindByIDFunc      func(ctx context.Context, id int64) (*types.Template, error)
	ListFunc          func(ctx context.Context) ([]types.Template, error)
	EnsureDefaultFunc func(ctx context.Context) (int64, error)
}

func (m *MockTemplateStore) Exists(ctx context.Context, id int64) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, id)
	}
	return true, nil
}

func (m *MockTemplateStore) FindByID(ctx context.Context, id int64) (*types.Template, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return &types.Template{ID: id, Name: "Default Template", Subject: "Default Subject", Body: "Default email body"}, nil
}

func (m *MockTemplateStore) List(ctx context.Context) ([]types.Template, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return []types.Template{}, nil
}

func (m *MockTemplateStore) EnsureDefault(ctx context.Context) (int64, error) {
	if m.EnsureDefaultFunc != nil {
		return m.EnsureDefaultFunc(ctx)
	}
	return 1, nil
}
