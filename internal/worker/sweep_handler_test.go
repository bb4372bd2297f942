package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/repository/mocks"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/tasks"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/worker"
)

type recordingScheduler struct {
	mu     sync.Mutex
	rooms  []string
	failOn string
}

func (r *recordingScheduler) ScheduleSettlement(_ context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, roomID)
	if roomID == r.failOn {
		return errors.New("redis unavailable")
	}
	return nil
}

func TestSettlementSweepHandler_ReschedulesUnsettledRooms(t *testing.T) {
	settlementRepo := mocks.NewSettlementRepository(t)
	scheduler := &recordingScheduler{}
	handler := worker.NewSettlementSweepHandler(settlementRepo, scheduler, 50)
	ctx := context.Background()

	settlementRepo.On("ListUnsettledRoomIDs", ctx, 50).Return([]string{"a", "b"}, nil).Once()

	err := handler.ProcessTask(ctx, tasks.NewSettlementSweepTask())

	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, scheduler.rooms)
}

func TestSettlementSweepHandler_ContinuesPastFailures(t *testing.T) {
	settlementRepo := mocks.NewSettlementRepository(t)
	scheduler := &recordingScheduler{failOn: "a"}
	handler := worker.NewSettlementSweepHandler(settlementRepo, scheduler, 0)
	ctx := context.Background()

	settlementRepo.On("ListUnsettledRoomIDs", ctx, worker.DefaultSweepBatchSize).Return([]string{"a", "b"}, nil).Once()

	err := handler.ProcessTask(ctx, tasks.NewSettlementSweepTask())

	assert.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, scheduler.rooms)
}

func TestSettlementSweepHandler_NothingToDo(t *testing.T) {
	settlementRepo := mocks.NewSettlementRepository(t)
	handler := worker.NewSettlementSweepHandler(settlementRepo, &recordingScheduler{}, 10)
	ctx := context.Background()

	settlementRepo.On("ListUnsettledRoomIDs", ctx, 10).Return(nil, nil).Once()

	assert.NoError(t, handler.ProcessTask(ctx, tasks.NewSettlementSweepTask()))
}
