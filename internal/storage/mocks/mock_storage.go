package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"img2pdf/internal/storage"
)

type MockArchive struct {
	mock.Mock
}

var _ storage.Archive = (*MockArchive)(nil)

func (m *MockArchive) Put(ctx context.Context, key string, r io.Reader, opt storage.PutOptions) (storage.ObjectInfo, error) {
	args := m.Called(ctx, key, r, opt)
	if f, ok := args.Get(0).(func(context.Context, string, io.Reader, storage.PutOptions) storage.ObjectInfo); ok {
		return f(ctx, key, r, opt), args.Error(1)
	}
	return args.Get(0).(storage.ObjectInfo), args.Error(1)
}

func (m *MockArchive) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
