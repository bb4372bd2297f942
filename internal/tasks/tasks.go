package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// 定义任务类型常量
const (
	TypeRoomSettlement  = "room:settle"       // 单个房间的押注结算
	TypeSettlementSweep = "room:settle-sweep" // 周期性补偿：为漏掉的已结束房间补发结算任务

	QueueCritical = "critical"
	QueueDefault  = "default"

	settlementRetention = 24 * time.Hour
	settlementMaxRetry  = 10
)

// RoomSettlementPayload 定义了结算任务的数据结构
type RoomSettlementPayload struct {
	RoomID string `json:"room_id"`
}

// NewRoomSettlementTask 创建一个新的房间结算任务。
// TaskID 固定为房间 ID，重复入队会被 asynq 拒绝。
func NewRoomSettlementTask(roomID string) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(RoomSettlementPayload{RoomID: roomID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRoomSettlement, payloadBytes,
		asynq.TaskID("settle:"+roomID),
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(settlementMaxRetry),
		asynq.Retention(settlementRetention),
	), nil
}

// ParseRoomSettlementPayload 解析结算任务的 payload
func ParseRoomSettlementPayload(t *asynq.Task) (RoomSettlementPayload, error) {
	var payload RoomSettlementPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if payload.RoomID == "" {
		return payload, fmt.Errorf("settlement payload has empty room_id")
	}
	return payload, nil
}

// NewSettlementSweepTask 创建周期性补偿任务
func NewSettlementSweepTask() *asynq.Task {
	return asynq.NewTask(TypeSettlementSweep, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(0))
}

// TaskEnqueuer 是 asynq.Client 中用到的部分，方便测试替换
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqSettlementScheduler 通过 asynq 投递结算任务
type AsynqSettlementScheduler struct {
	client TaskEnqueuer
}

// NewAsynqSettlementScheduler 创建 AsynqSettlementScheduler 实例
func NewAsynqSettlementScheduler(client TaskEnqueuer) *AsynqSettlementScheduler {
	if client == nil {
		panic("asynq client cannot be nil for AsynqSettlementScheduler")
	}
	return &AsynqSettlementScheduler{client: client}
}

// ScheduleSettlement 为已结束的房间投递结算任务。任务已存在时视为成功。
func (s *AsynqSettlementScheduler) ScheduleSettlement(ctx context.Context, roomID string) error {
	task, err := NewRoomSettlementTask(roomID)
	if err != nil {
		return fmt.Errorf("failed to build settlement task for room %s: %w", roomID, err)
	}
	info, err := s.client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			logrus.WithField("room_id", roomID).Debug("Settlement task already enqueued")
			return nil
		}
		return fmt.Errorf("failed to enqueue settlement task for room %s: %w", roomID, err)
	}
	logrus.WithFields(logrus.Fields{"room_id": roomID, "task_id": info.ID, "queue": info.Queue}).Info("Settlement task enqueued")
	return nil
}
