package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/domain"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/repository"
)

// GormSettlementRepository 是 SettlementRepository 接口的 GORM 实现
type GormSettlementRepository struct {
	db *gorm.DB
}

// NewGormSettlementRepository 创建 GormSettlementRepository 实例
func NewGormSettlementRepository(db *gorm.DB) *GormSettlementRepository {
	if db == nil {
		panic("database connection cannot be nil for GormSettlementRepository")
	}
	return &GormSettlementRepository{db: db}
}

// Save 实现保存结算记录及其明细。同一房间重复保存返回 ErrDuplicateEntry。
func (r *GormSettlementRepository) Save(ctx context.Context, settlement *domain.Settlement) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(settlement).Error
	})
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save settlement for room %s: %w", settlement.RoomID, err)
	}
	return nil
}

// FindByRoomID 实现根据房间 ID 查询结算记录
func (r *GormSettlementRepository) FindByRoomID(ctx context.Context, roomID string) (*domain.Settlement, error) {
	var settlement domain.Settlement
	err := r.db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Take(&settlement, "room_id = ?", roomID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrSettlementNotFound
		}
		return nil, fmt.Errorf("gorm: find settlement for room %s: %w", roomID, err)
	}
	return &settlement, nil
}

// ListUnsettledRoomIDs 实现查询缺少结算记录的已结束房间
func (r *GormSettlementRepository) ListUnsettledRoomIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&domain.Room{}).
		Joins("LEFT JOIN settlements ON settlements.room_id = rooms.id").
		Where("rooms.status = ? AND settlements.id IS NULL", domain.RoomStatusFinished).
		Order("rooms.finished_at ASC").
		Limit(limit).
		Pluck("rooms.id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list unsettled rooms: %w", err)
	}
	return ids, nil
}
