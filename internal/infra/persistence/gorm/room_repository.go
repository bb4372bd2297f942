package gormpersistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/domain"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/repository"
)

// DefaultLockTimeout 是获取房间行锁的默认最长等待时间
const DefaultLockTimeout = 5 * time.Second

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB, lockTimeout time.Duration) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &GormRoomRepository{db: db, lockTimeout: lockTimeout}
}

// orderedSeats 按加入时间排序预加载座位
func orderedSeats(db *gorm.DB) *gorm.DB {
	return db.Order("joined_at ASC").Order("id ASC")
}

// CreateRoom 实现原子地创建房间、创建者座位和活跃座位索引
func (r *GormRoomRepository) CreateRoom(ctx context.Context, room *domain.Room) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 先写索引：主键冲突说明用户已在其他房间中
		for _, seat := range room.Seats {
			if err := tx.Create(&domain.ActiveSeat{UserID: seat.UserID, RoomID: room.ID}).Error; err != nil {
				if isDuplicateEntryError(err) {
					return repository.ErrAlreadySeated
				}
				return fmt.Errorf("gorm: index active seat for user %d: %w", seat.UserID, err)
			}
		}
		// 座位通过关联一并插入
		if err := tx.Create(room).Error; err != nil {
			if isDuplicateEntryError(err) {
				return repository.ErrDuplicateEntry
			}
			return fmt.Errorf("gorm: create room (id: %s, code: %s): %w", room.ID, room.Code, err)
		}
		return nil
	})
}

// readSnapshot 在只读事务中执行查询，房间行与预加载的座位来自同一个已提交快照。
// MySQL 使用 REPEATABLE READ 一致性读；SQLite 事务期间独占唯一的连接，写事务无法插入。
func (r *GormRoomRepository) readSnapshot(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var opts []*sql.TxOptions
	if r.db.Dialector.Name() == "mysql" {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	}
	return r.db.WithContext(ctx).Transaction(fn, opts...)
}

// FindByID 实现根据房间 ID 查找房间
func (r *GormRoomRepository) FindByID(ctx context.Context, id string) (*domain.Room, error) {
	var room domain.Room
	err := r.readSnapshot(ctx, func(tx *gorm.DB) error {
		return tx.Preload("Seats", orderedSeats).Take(&room, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id %s: %w", id, err)
	}
	return &room, nil
}

// FindByCode 实现根据分享短码查找房间
func (r *GormRoomRepository) FindByCode(ctx context.Context, code string) (*domain.Room, error) {
	var room domain.Room
	err := r.readSnapshot(ctx, func(tx *gorm.DB) error {
		return tx.Preload("Seats", orderedSeats).Where("code = ?", code).Take(&room).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by code '%s': %w", code, err)
	}
	return &room, nil
}

// IsCodeExists 实现检查短码是否存在
func (r *GormRoomRepository) IsCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Room{}).Where("code = ?", code).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count rooms by code '%s': %w", code, err)
	}
	return count > 0, nil
}

// ListActive 实现查询近期有活动的未结束房间
func (r *GormRoomRepository) ListActive(ctx context.Context, maxAge time.Duration) ([]domain.Room, error) {
	var rooms []domain.Room
	cutoff := time.Now().Add(-maxAge)
	err := r.readSnapshot(ctx, func(tx *gorm.DB) error {
		return tx.Preload("Seats", orderedSeats).
			Where("status IN ?", []domain.RoomStatus{domain.RoomStatusWaiting, domain.RoomStatusPlaying}).
			Where("last_activity > ?", cutoff).
			Order("created_at DESC").
			Find(&rooms).Error
	})
	if err != nil {
		return nil, fmt.Errorf("gorm: list active rooms since %v: %w", cutoff, err)
	}
	return rooms, nil
}

// FindActiveRoomID 实现从派生索引查询用户当前房间
func (r *GormRoomRepository) FindActiveRoomID(ctx context.Context, userID uint) (string, error) {
	var seat domain.ActiveSeat
	err := r.db.WithContext(ctx).Take(&seat, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("gorm: find active room for user %d: %w", userID, err)
	}
	return seat.RoomID, nil
}

// ListFinishedByUser 实现查询用户的历史对局
func (r *GormRoomRepository) ListFinishedByUser(ctx context.Context, userID uint, limit int) ([]domain.Room, error) {
	var rooms []domain.Room
	if limit <= 0 {
		limit = 20
	}
	seatedIn := r.db.Model(&domain.Seat{}).Select("room_id").Where("user_id = ?", userID)
	err := r.readSnapshot(ctx, func(tx *gorm.DB) error {
		return tx.Preload("Seats", orderedSeats).
			Where("status = ?", domain.RoomStatusFinished).
			Where("id IN (?)", seatedIn).
			Order("finished_at DESC").
			Limit(limit).
			Find(&rooms).Error
	})
	if err != nil {
		return nil, fmt.Errorf("gorm: list finished rooms for user %d: %w", userID, err)
	}
	return rooms, nil
}

// WithRoomLock 实现房间级排他锁内的读-改-写。
// 行锁通过 SELECT ... FOR UPDATE 获取，整个事务受 lockTimeout 约束。
func (r *GormRoomRepository) WithRoomLock(ctx context.Context, id string, fn repository.RoomMutation) (*domain.Room, error) {
	lockCtx, cancel := context.WithTimeout(ctx, r.lockTimeout)
	defer cancel()

	var result *domain.Room
	err := r.db.WithContext(lockCtx).Transaction(func(tx *gorm.DB) error {
		if err := r.boundLockWait(tx); err != nil {
			return err
		}

		// 1. 锁定房间行
		var current domain.Room
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&current, "id = ?", id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrRoomNotFound
			}
			return fmt.Errorf("gorm: lock room %s: %w", id, err)
		}
		if err := orderedSeats(tx.Where("room_id = ?", id)).Find(&current.Seats).Error; err != nil {
			return fmt.Errorf("gorm: load seats for room %s: %w", id, err)
		}

		// 2. 在副本上执行变更
		next, err := fn(current.Clone())
		if err != nil {
			return err
		}

		// 3. 持久化
		if next == nil {
			return deleteRoom(tx, id)
		}
		if next.ID != id {
			return fmt.Errorf("gorm: mutation changed room id %s to %s", id, next.ID)
		}
		if err := persistRoom(tx, &current, next); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		if isLockUnavailableError(err) {
			return nil, fmt.Errorf("%w: %v", repository.ErrRoomBusy, err)
		}
		return nil, err
	}
	return result, nil
}

// boundLockWait 为 MySQL 会话设置行锁等待上限，其他方言依赖 context 超时
func (r *GormRoomRepository) boundLockWait(tx *gorm.DB) error {
	if tx.Dialector.Name() != "mysql" {
		return nil
	}
	secs := int(math.Ceil(r.lockTimeout.Seconds()))
	if secs < 1 {
		secs = 1
	}
	if err := tx.Exec(fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", secs)).Error; err != nil {
		return fmt.Errorf("gorm: set lock wait timeout: %w", err)
	}
	return nil
}

// persistRoom 将 prev → next 的差异写入数据库：座位增删、活跃索引、房间列
func persistRoom(tx *gorm.DB, prev, next *domain.Room) error {
	prevUsers := make(map[uint]bool, len(prev.Seats))
	for _, s := range prev.Seats {
		prevUsers[s.UserID] = true
	}
	nextUsers := make(map[uint]bool, len(next.Seats))
	for _, s := range next.Seats {
		nextUsers[s.UserID] = true
	}

	var removed []uint
	for _, s := range prev.Seats {
		if !nextUsers[s.UserID] {
			removed = append(removed, s.UserID)
		}
	}
	if len(removed) > 0 {
		if err := tx.Where("room_id = ? AND user_id IN ?", prev.ID, removed).Delete(&domain.Seat{}).Error; err != nil {
			return fmt.Errorf("gorm: remove seats from room %s: %w", prev.ID, err)
		}
		if err := tx.Where("room_id = ? AND user_id IN ?", prev.ID, removed).Delete(&domain.ActiveSeat{}).Error; err != nil {
			return fmt.Errorf("gorm: unindex seats of room %s: %w", prev.ID, err)
		}
	}

	for i := range next.Seats {
		seat := &next.Seats[i]
		if prevUsers[seat.UserID] {
			continue
		}
		seat.ID = 0
		seat.RoomID = next.ID
		if next.IsActive() {
			if err := tx.Create(&domain.ActiveSeat{UserID: seat.UserID, RoomID: next.ID}).Error; err != nil {
				if isDuplicateEntryError(err) {
					return repository.ErrAlreadySeated
				}
				return fmt.Errorf("gorm: index active seat for user %d: %w", seat.UserID, err)
			}
		}
		if err := tx.Create(seat).Error; err != nil {
			if isDuplicateEntryError(err) {
				return fmt.Errorf("gorm: seat conflict in room %s: %w", next.ID, repository.ErrDuplicateEntry)
			}
			return fmt.Errorf("gorm: add seat for user %d to room %s: %w", seat.UserID, next.ID, err)
		}
	}

	// 版本号只由仓储递增，变更函数返回的值被忽略
	next.Version = prev.Version + 1
	updates := map[string]interface{}{
		"version":       next.Version,
		"status":        next.Status,
		"board":         next.Board,
		"current_turn":  next.CurrentTurn,
		"winner_id":     next.WinnerID,
		"started_at":    next.StartedAt,
		"finished_at":   next.FinishedAt,
		"last_activity": next.LastActivity,
	}
	if err := tx.Model(&domain.Room{}).Where("id = ?", next.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("gorm: update room %s: %w", next.ID, err)
	}

	// 结束的房间不再占用玩家
	if !next.IsActive() {
		if err := tx.Where("room_id = ?", next.ID).Delete(&domain.ActiveSeat{}).Error; err != nil {
			return fmt.Errorf("gorm: release active seats of room %s: %w", next.ID, err)
		}
	}
	return nil
}

// deleteRoom 删除房间及其座位和索引
func deleteRoom(tx *gorm.DB, id string) error {
	if err := tx.Where("room_id = ?", id).Delete(&domain.ActiveSeat{}).Error; err != nil {
		return fmt.Errorf("gorm: release active seats of room %s: %w", id, err)
	}
	if err := tx.Where("room_id = ?", id).Delete(&domain.Seat{}).Error; err != nil {
		return fmt.Errorf("gorm: delete seats of room %s: %w", id, err)
	}
	if err := tx.Where("id = ?", id).Delete(&domain.Room{}).Error; err != nil {
		return fmt.Errorf("gorm: delete room %s: %w", id, err)
	}
	return nil
}
