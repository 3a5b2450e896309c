package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"img2pdf/internal/model"
	"img2pdf/internal/service"
)

type MockSessionService struct {
	mock.Mock
}

var _ service.SessionService = (*MockSessionService)(nil)

func (m *MockSessionService) Ingest(ctx context.Context, sessionID string, files []model.Upload) (*service.IngestResult, error) {
	args := m.Called(ctx, sessionID, files)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IngestResult), args.Error(1)
}

func (m *MockSessionService) Generate(ctx context.Context, sessionID string) (*service.GenerateResult, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.GenerateResult), args.Error(1)
}

// Retrieve calls send with the configured Delivery (argument 0) when one is
// set, then returns the configured error. A send error is returned as is.
func (m *MockSessionService) Retrieve(ctx context.Context, sessionID string, send service.SendFunc) error {
	args := m.Called(ctx, sessionID, send)
	if d, ok := args.Get(0).(service.Delivery); ok {
		if err := send(ctx, d); err != nil {
			return err
		}
	}
	return args.Error(1)
}

func (m *MockSessionService) Cleanup(ctx context.Context, sessionID string) {
	m.Called(ctx, sessionID)
}

func (m *MockSessionService) Reap(ctx context.Context, now time.Time, threshold time.Duration) service.ReapReport {
	args := m.Called(ctx, now, threshold)
	if r, ok := args.Get(0).(service.ReapReport); ok {
		return r
	}
	return service.ReapReport{}
}

func (m *MockSessionService) Healthy(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
