package repository

import (
	"context"
	"time"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/domain"
)

// RoomMutation 在房间锁内执行的读-改-写函数。
// room 是当前已提交状态的私有副本，可以自由修改。
// 返回值：
//   - (next, nil)：持久化 next
//   - (nil, nil)：删除房间
//   - (_, err)：回滚，房间保持原样
type RoomMutation func(room *domain.Room) (*domain.Room, error)

// RoomRepository 定义了房间与座位数据的存储和检索操作。
type RoomRepository interface {
	// CreateRoom 原子地创建房间、创建者座位以及活跃座位索引。
	// 创建者已在其他未结束房间中时返回 ErrAlreadySeated；短码冲突时返回 ErrDuplicateEntry。
	CreateRoom(ctx context.Context, room *domain.Room) error

	// FindByID 根据房间 ID 查找房间 (包含按加入时间排序的座位)。
	// 房间不存在时返回 ErrRoomNotFound。
	FindByID(ctx context.Context, id string) (*domain.Room, error)

	// FindByCode 根据分享短码查找房间。
	FindByCode(ctx context.Context, code string) (*domain.Room, error)

	// IsCodeExists 检查短码是否已被使用。
	IsCodeExists(ctx context.Context, code string) (bool, error)

	// ListActive 返回 waiting/playing 且 maxAge 内有活动的房间，按创建时间倒序。
	ListActive(ctx context.Context, maxAge time.Duration) ([]domain.Room, error)

	// FindActiveRoomID 查询用户当前所在的未结束房间，不存在时返回 ErrNotFound。
	FindActiveRoomID(ctx context.Context, userID uint) (string, error)

	// ListFinishedByUser 返回用户参与过的已结束房间，按结束时间倒序。
	ListFinishedByUser(ctx context.Context, userID uint, limit int) ([]domain.Room, error)

	// WithRoomLock 获取房间的排他锁并在锁内执行 fn，结果原子地提交或整体回滚。
	// 在限定时间内拿不到锁时返回 ErrRoomBusy。
	WithRoomLock(ctx context.Context, id string, fn RoomMutation) (*domain.Room, error)
}
