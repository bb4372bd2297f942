package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/domain"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/metrics"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/repository"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/tasks"
)

// taskLogger 生成带任务信息的日志上下文
func taskLogger(ctx context.Context, t *asynq.Task) *logrus.Entry {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	retryCount, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     retryCount,
		"max_retry": maxRetry,
	})
}

// SettlementHandler 为已结束的房间写入押注结算记录
type SettlementHandler struct {
	roomRepo       repository.RoomRepository
	settlementRepo repository.SettlementRepository
}

// NewSettlementHandler 创建 Handler 实例
func NewSettlementHandler(roomRepo repository.RoomRepository, settlementRepo repository.SettlementRepository) *SettlementHandler {
	if roomRepo == nil || settlementRepo == nil {
		panic("repositories cannot be nil for SettlementHandler")
	}
	return &SettlementHandler{roomRepo: roomRepo, settlementRepo: settlementRepo}
}

// ProcessTask 实现 asynq.Handler 接口。任务可重复执行，同一房间只会写入一次。
func (h *SettlementHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	// 1. 解析 payload，格式错误重试也没有意义
	payload, err := tasks.ParseRoomSettlementPayload(t)
	if err != nil {
		logCtx.WithError(err).Error("Invalid settlement task payload")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithField("room_id", payload.RoomID)

	// 2. 读取房间
	room, err := h.roomRepo.FindByID(ctx, payload.RoomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logCtx.Warn("Room to settle no longer exists")
			return fmt.Errorf("room %s not found: %w", payload.RoomID, asynq.SkipRetry)
		}
		logCtx.WithError(err).Error("Failed to load room for settlement")
		return fmt.Errorf("failed to load room %s: %w", payload.RoomID, err)
	}

	// 3. 计算结算
	settlement, ok := domain.NewSettlement(room)
	if !ok {
		logCtx.WithField("status", room.Status).Error("Settlement requested for a room that is not finished")
		return fmt.Errorf("room %s is %s, not finished: %w", payload.RoomID, room.Status, asynq.SkipRetry)
	}

	// 4. 保存。已存在说明之前的执行已经成功
	if err := h.settlementRepo.Save(ctx, settlement); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.Info("Room already settled, skipping")
			return nil
		}
		logCtx.WithError(err).Error("Failed to save settlement")
		return fmt.Errorf("failed to save settlement for room %s: %w", payload.RoomID, err)
	}

	metrics.SettlementsRecorded.Inc()
	logCtx.WithFields(logrus.Fields{
		"outcome": settlement.Outcome,
		"entries": len(settlement.Entries),
	}).Info("Room settlement recorded")
	return nil
}
