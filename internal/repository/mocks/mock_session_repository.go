package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"img2pdf/internal/model"
	"img2pdf/internal/repository"
)

type MockSessionRepository struct {
	mock.Mock
}

var _ repository.SessionRepository = (*MockSessionRepository)(nil)

func (m *MockSessionRepository) Create(ctx context.Context, root string) (*model.Session, error) {
	args := m.Called(ctx, root)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockSessionRepository) Get(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockSessionRepository) Append(ctx context.Context, id string, records ...model.ImageRecord) (string, error) {
	args := m.Called(ctx, id, records)
	return args.String(0), args.Error(1)
}

func (m *MockSessionRepository) SetDocumentPath(ctx context.Context, id, path string, pages int) error {
	args := m.Called(ctx, id, path, pages)
	return args.Error(0)
}

func (m *MockSessionRepository) ClearDocumentPath(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSessionRepository) MarkDelivered(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSessionRepository) Touch(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSessionRepository) Remove(ctx context.Context, id string) (*model.Session, bool) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*model.Session), args.Bool(1)
}

func (m *MockSessionRepository) RemoveIdle(ctx context.Context, id string, before time.Time) (*model.Session, bool) {
	args := m.Called(ctx, id, before)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*model.Session), args.Bool(1)
}

func (m *MockSessionRepository) Expired(ctx context.Context, before time.Time) []string {
	args := m.Called(ctx, before)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

func (m *MockSessionRepository) List(ctx context.Context) []*model.Session {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]*model.Session)
}

func (m *MockSessionRepository) Len() int {
	args := m.Called()
	return args.Int(0)
}
