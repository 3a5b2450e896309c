package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"img2pdf/internal/model"
	"img2pdf/internal/service"
)

type MockNormalizer struct {
	mock.Mock
}

var _ service.Normalizer = (*MockNormalizer)(nil)

func (m *MockNormalizer) Normalize(ctx context.Context, raw []byte, originalName, dir string) (*model.NormalizedImage, error) {
	args := m.Called(ctx, raw, originalName, dir)
	if f, ok := args.Get(0).(func(context.Context, []byte, string, string) (*model.NormalizedImage, error)); ok {
		return f(ctx, raw, originalName, dir)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.NormalizedImage), args.Error(1)
}

type MockAssembler struct {
	mock.Mock
}

var _ service.Assembler = (*MockAssembler)(nil)

func (m *MockAssembler) AssembleFile(ctx context.Context, paths []string, outPath string) (int64, error) {
	args := m.Called(ctx, paths, outPath)
	if f, ok := args.Get(0).(func(context.Context, []string, string) (int64, error)); ok {
		return f(ctx, paths, outPath)
	}
	return args.Get(0).(int64), args.Error(1)
}
