package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/repository"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/service"
)

// DefaultSweepBatchSize 每次补偿最多处理的房间数
const DefaultSweepBatchSize = 100

// SettlementSweepHandler 为提交后没能成功投递结算任务的房间补发任务
type SettlementSweepHandler struct {
	settlementRepo repository.SettlementRepository
	scheduler      service.SettlementScheduler
	batchSize      int
}

// NewSettlementSweepHandler 创建 Handler 实例
func NewSettlementSweepHandler(settlementRepo repository.SettlementRepository, scheduler service.SettlementScheduler, batchSize int) *SettlementSweepHandler {
	if settlementRepo == nil || scheduler == nil {
		panic("dependencies cannot be nil for SettlementSweepHandler")
	}
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}
	return &SettlementSweepHandler{settlementRepo: settlementRepo, scheduler: scheduler, batchSize: batchSize}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *SettlementSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	roomIDs, err := h.settlementRepo.ListUnsettledRoomIDs(ctx, h.batchSize)
	if err != nil {
		logCtx.WithError(err).Error("Failed to list unsettled rooms")
		return fmt.Errorf("failed to list unsettled rooms: %w", err)
	}
	if len(roomIDs) == 0 {
		logCtx.Debug("No unsettled rooms")
		return nil
	}

	var errs []error
	for _, roomID := range roomIDs {
		if err := h.scheduler.ScheduleSettlement(ctx, roomID); err != nil {
			logCtx.WithError(err).WithField("room_id", roomID).Warn("Failed to reschedule settlement")
			errs = append(errs, err)
		}
	}
	logCtx.WithFields(logrus.Fields{
		"found":  len(roomIDs),
		"failed": len(errs),
	}).Info("Settlement sweep finished")

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
