package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/domain"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/dto"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/metrics"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/repository"
)

const (
	// DefaultActiveWindow 活跃房间列表只显示最近一小时内有活动的房间
	DefaultActiveWindow = time.Hour
	// DefaultHistoryLimit 历史对局默认条数
	DefaultHistoryLimit = 20
	// MaxHistoryLimit 历史对局最大条数
	MaxHistoryLimit = 100

	maxCreateAttempts = 3
	sideEffectTimeout = 3 * time.Second
)

// 房间操作名，用于日志和指标
const (
	ActionCreate = "create"
	ActionJoin   = "join"
	ActionMove   = "move"
	ActionLeave  = "leave"
)

// SettlementScheduler 在对局结束后安排押注结算
type SettlementScheduler interface {
	ScheduleSettlement(ctx context.Context, roomID string) error
}

// RoomService 负责房间生命周期相关的业务逻辑。
type RoomService struct {
	roomRepo     repository.RoomRepository
	events       repository.RoomEventPublisher // 可为 nil
	settlements  SettlementScheduler           // 可为 nil
	activeWindow time.Duration
}

// NewRoomService 创建 RoomService 实例。events 和 settlements 可以为 nil。
func NewRoomService(roomRepo repository.RoomRepository, events repository.RoomEventPublisher, settlements SettlementScheduler, activeWindow time.Duration) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	if activeWindow <= 0 {
		activeWindow = DefaultActiveWindow
	}
	return &RoomService{
		roomRepo:     roomRepo,
		events:       events,
		settlements:  settlements,
		activeWindow: activeWindow,
	}
}

// CreateRoom 创建一个新房间，创建者以 X 入座。
func (s *RoomService) CreateRoom(ctx context.Context, creatorID uint, stake domain.Stake) (*dto.RoomView, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": creatorID, "action": ActionCreate})

	// 1. 校验输入
	if err := validateStake(stake); err != nil {
		logCtx.WithError(err).Warn("Rejected create request")
		metrics.RoomActionsTotal.WithLabelValues(ActionCreate, resultLabel(ErrInvalidInput)).Inc()
		return nil, err
	}

	// 2. 生成短码并保存。短码在检查与插入之间可能被抢占，冲突时重试
	var room *domain.Room
	for attempt := 1; ; attempt++ {
		code, err := s.generateUniqueCode(ctx)
		if err != nil {
			logCtx.WithError(err).Error("Failed to generate unique room code")
			metrics.RoomActionsTotal.WithLabelValues(ActionCreate, resultLabel(ErrInternalServer)).Inc()
			return nil, ErrInternalServer
		}
		room = newRoom(uuid.NewString(), code, creatorID, stake, time.Now())

		err = s.roomRepo.CreateRoom(ctx, room)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrDuplicateEntry) && attempt < maxCreateAttempts {
			logCtx.WithField("code", code).Warnf("Room code taken concurrently, retrying (attempt %d)", attempt)
			continue
		}
		svcErr := mapRepoError(err)
		if errors.Is(err, repository.ErrDuplicateEntry) {
			svcErr = ErrInternalServer
		}
		s.logFailure(logCtx, ActionCreate, err, svcErr)
		return nil, svcErr
	}

	logCtx.WithFields(logrus.Fields{"room_id": room.ID, "code": room.Code}).Info("Room created successfully")
	metrics.RoomActionsTotal.WithLabelValues(ActionCreate, "ok").Inc()
	s.afterCommit(ctx, ActionCreate, room.ID, room.Version, room)
	return ProjectRoom(room), nil
}

// JoinRoom 让用户以押注物品加入等待中的房间，对局随即开始。
func (s *RoomService) JoinRoom(ctx context.Context, roomID string, userID uint, stake domain.Stake) (*dto.RoomView, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID, "action": ActionJoin})

	if err := validateStake(stake); err != nil {
		logCtx.WithError(err).Warn("Rejected join request")
		metrics.RoomActionsTotal.WithLabelValues(ActionJoin, resultLabel(ErrInvalidInput)).Inc()
		return nil, err
	}

	room, err := s.mutate(ctx, logCtx, ActionJoin, roomID, func(room *domain.Room) (*domain.Room, error) {
		return joinRoom(room, userID, stake, time.Now())
	})
	if err != nil {
		return nil, err
	}

	logCtx.Info("User joined room, game started")
	s.afterCommit(ctx, ActionJoin, roomID, room.Version, room)
	return ProjectRoom(room), nil
}

// MakeMove 由当前回合玩家在 position 落子。
func (s *RoomService) MakeMove(ctx context.Context, roomID string, userID uint, position int) (*dto.RoomView, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID, "action": ActionMove, "position": position})

	if err := validatePosition(position); err != nil {
		logCtx.WithError(err).Warn("Rejected move request")
		metrics.RoomActionsTotal.WithLabelValues(ActionMove, resultLabel(ErrInvalidPosition)).Inc()
		return nil, ErrInvalidPosition
	}

	room, err := s.mutate(ctx, logCtx, ActionMove, roomID, func(room *domain.Room) (*domain.Room, error) {
		return applyMove(room, userID, position, time.Now())
	})
	if err != nil {
		return nil, err
	}

	if room.Status == domain.RoomStatusFinished {
		outcome := string(domain.SettlementDraw)
		if room.WinnerID != nil {
			outcome = string(domain.SettlementWin)
			logCtx = logCtx.WithField("winner_id", *room.WinnerID)
		}
		metrics.GamesFinished.WithLabelValues(outcome).Inc()
		logCtx.WithField("outcome", outcome).Info("Game finished")
	} else {
		logCtx.Debug("Move applied")
	}
	s.afterCommit(ctx, ActionMove, roomID, room.Version, room)
	return ProjectRoom(room), nil
}

// LeaveRoom 让用户离开房间。最后一名玩家离开时房间被删除。
func (s *RoomService) LeaveRoom(ctx context.Context, roomID string, userID uint) (*dto.LeaveResult, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID, "action": ActionLeave})

	// 房间被删除时没有新视图，删除事件沿用提交后的版本号
	var version uint64
	room, err := s.mutate(ctx, logCtx, ActionLeave, roomID, func(room *domain.Room) (*domain.Room, error) {
		version = room.Version + 1
		return leaveRoom(room, userID, time.Now())
	})
	if err != nil {
		// 房间已不存在 (例如已被自己删除) 时对调用者而言就是不在房间里
		if errors.Is(err, ErrRoomNotFound) {
			return nil, ErrNotSeated
		}
		return nil, err
	}

	result := &dto.LeaveResult{RoomID: roomID, Deleted: room == nil, Room: ProjectRoom(room)}
	if result.Deleted {
		logCtx.Info("Last player left, room deleted")
	} else {
		logCtx.Info("Player left, room waiting for a new opponent")
	}
	s.afterCommit(ctx, ActionLeave, roomID, version, room)
	return result, nil
}

// GetRoom 根据 ID 查询房间
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*dto.RoomView, error) {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return nil, s.lookupError(err, logrus.WithField("room_id", roomID), "GetRoom")
	}
	return ProjectRoom(room), nil
}

// GetRoomByCode 根据分享短码查询房间
func (s *RoomService) GetRoomByCode(ctx context.Context, code string) (*dto.RoomView, error) {
	room, err := s.roomRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, s.lookupError(err, logrus.WithField("code", code), "GetRoomByCode")
	}
	return ProjectRoom(room), nil
}

// ListActiveRooms 返回 maxAge 内有活动的未结束房间。maxAge <= 0 时使用默认窗口。
func (s *RoomService) ListActiveRooms(ctx context.Context, maxAge time.Duration) ([]dto.RoomView, error) {
	if maxAge <= 0 {
		maxAge = s.activeWindow
	}
	rooms, err := s.roomRepo.ListActive(ctx, maxAge)
	if err != nil {
		logrus.WithError(err).WithField("max_age", maxAge).Error("ListActiveRooms: Repository error")
		return nil, ErrInternalServer
	}
	return ProjectRooms(rooms), nil
}

// CurrentRoom 返回用户当前所在的未结束房间
func (s *RoomService) CurrentRoom(ctx context.Context, userID uint) (*dto.RoomView, error) {
	logCtx := logrus.WithField("user_id", userID)
	roomID, err := s.roomRepo.FindActiveRoomID(ctx, userID)
	if err != nil {
		return nil, s.lookupError(err, logCtx, "CurrentRoom")
	}
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return nil, s.lookupError(err, logCtx.WithField("room_id", roomID), "CurrentRoom")
	}
	return ProjectRoom(room), nil
}

// History 返回用户参与过的已结束对局
func (s *RoomService) History(ctx context.Context, userID uint, limit int) ([]dto.RoomView, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	rooms, err := s.roomRepo.ListFinishedByUser(ctx, userID, limit)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("History: Repository error")
		return nil, ErrInternalServer
	}
	return ProjectRooms(rooms), nil
}

// EnsureSeated 返回房间视图，用户不在房间中时返回 ErrNotSeated。
func (s *RoomService) EnsureSeated(ctx context.Context, roomID string, userID uint) (*dto.RoomView, error) {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return nil, s.lookupError(err, logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}), "EnsureSeated")
	}
	if room.SeatOf(userID) == nil {
		return nil, ErrNotSeated
	}
	return ProjectRoom(room), nil
}

// --- 私有辅助函数 ---

// mutate 在房间锁内执行状态转换，并统一处理错误日志和指标
func (s *RoomService) mutate(ctx context.Context, logCtx *logrus.Entry, action, roomID string, fn repository.RoomMutation) (*domain.Room, error) {
	start := time.Now()
	room, err := s.roomRepo.WithRoomLock(ctx, roomID, fn)
	metrics.RoomTransitionDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	if err != nil {
		svcErr := mapRepoError(err)
		s.logFailure(logCtx, action, err, svcErr)
		return nil, svcErr
	}
	metrics.RoomActionsTotal.WithLabelValues(action, "ok").Inc()
	return room, nil
}

// logFailure 按错误类别分级记录日志：不变量破坏与内部错误单独标记
func (s *RoomService) logFailure(logCtx *logrus.Entry, action string, cause, svcErr error) {
	metrics.RoomActionsTotal.WithLabelValues(action, resultLabel(svcErr)).Inc()
	switch {
	case errors.Is(svcErr, ErrInvariantViolation):
		metrics.InvariantViolations.WithLabelValues(action).Inc()
		logCtx.WithField("invariant_violation", true).WithError(cause).Error("Room invariant violated, transition rejected")
	case errors.Is(svcErr, ErrInternalServer):
		logCtx.WithError(cause).Error("Room transition failed")
	case errors.Is(svcErr, ErrRoomBusy):
		logCtx.WithError(cause).Warn("Room lock not acquired in time")
	default:
		logCtx.WithError(cause).Info("Room transition rejected")
	}
}

// lookupError 映射只读查询的错误
func (s *RoomService) lookupError(err error, logCtx *logrus.Entry, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		logCtx.Debugf("%s: Room not found", op)
		return ErrRoomNotFound
	}
	logCtx.WithError(err).Errorf("%s: Repository error", op)
	return ErrInternalServer
}

// afterCommit 在事务提交后发布房间事件，并为结束的对局安排结算。
// 事件在锁外发布，可能乱序到达，订阅方按 version 丢弃旧事件。
// 这些副作用失败只记录日志，不影响已经提交的结果。
func (s *RoomService) afterCommit(ctx context.Context, action, roomID string, version uint64, room *domain.Room) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "action": action})

	if s.events != nil {
		event := dto.RoomEvent{
			Type:    dto.RoomEventUpdated,
			RoomID:  roomID,
			Action:  action,
			Version: version,
			Room:    ProjectRoom(room),
			At:      time.Now(),
		}
		if room == nil {
			event.Type = dto.RoomEventDeleted
		}
		payload, err := json.Marshal(event)
		if err != nil {
			logCtx.WithError(err).Error("Failed to marshal room event")
		} else if err := s.events.PublishRoomEvent(ctx, roomID, payload); err != nil {
			logCtx.WithError(err).Warn("Failed to publish room event")
		}
	}

	if s.settlements != nil && room != nil && room.Status == domain.RoomStatusFinished {
		if err := s.settlements.ScheduleSettlement(ctx, roomID); err != nil {
			// 周期性补偿任务会重新投递
			logCtx.WithError(err).Error("Failed to schedule settlement")
		}
	}
}

// generateUniqueCode 生成唯一的房间短码
func (s *RoomService) generateUniqueCode(ctx context.Context) (string, error) {
	const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	const codeLength = 6
	const maxAttempts = 10

	b := make([]byte, codeLength)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for i := range b {
			b[i] = letters[int(b[i])%len(letters)]
		}
		code := string(b)

		exists, err := s.roomRepo.IsCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("database error checking room code: %w", err)
		}
		if !exists {
			return code, nil
		}
		logrus.WithField("code", code).Warnf("Generated room code already exists, retrying (attempt %d)...", attempt+1)
	}
	return "", fmt.Errorf("failed to generate a unique room code after %d attempts", maxAttempts)
}

// resultLabel 将服务层错误转换为指标标签
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidPosition):
		return "invalid"
	case errors.Is(err, ErrRoomNotFound):
		return "not_found"
	case errors.Is(err, ErrRoomBusy):
		return "busy"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant_violation"
	case IsStateConflict(err):
		return "conflict"
	default:
		return "error"
	}
}
