package repository

import (
	"context"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/domain"
)

// SettlementRepository 定义了押注结算记录的存储。
type SettlementRepository interface {
	// Save 保存结算记录。同一房间重复保存返回 ErrDuplicateEntry。
	Save(ctx context.Context, settlement *domain.Settlement) error

	// FindByRoomID 查询房间的结算记录。
	FindByRoomID(ctx context.Context, roomID string) (*domain.Settlement, error)

	// ListUnsettledRoomIDs 返回已结束但还没有结算记录的房间 ID，按结束时间升序。
	ListUnsettledRoomIDs(ctx context.Context, limit int) ([]string, error)
}
