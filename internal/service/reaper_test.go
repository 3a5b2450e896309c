package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"img2pdf/internal/service"
	svcMocks "img2pdf/internal/service/mocks"
)

func TestReaper_RunsUntilCancelled(t *testing.T) {
	svc := new(svcMocks.MockSessionService)
	var sweeps atomic.Int32
	svc.On("Reap", mock.Anything, mock.Anything, time.Hour).
		Run(func(mock.Arguments) { sweeps.Add(1) }).
		Return(service.ReapReport{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		service.NewReaper(svc, 5*time.Millisecond, time.Hour, nil).Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sweeps.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancellation")
	}
}
