package domain

import "time"

// SettlementOutcome 表示结算类型。
type SettlementOutcome string

const (
	SettlementWin  SettlementOutcome = "win"  // 胜者获得双方押注
	SettlementDraw SettlementOutcome = "draw" // 平局，押注各自退回
)

// Settlement 是一局结束后的押注结算记录，供外部账本 (库存服务) 消费。
// 每个房间最多一条。
type Settlement struct {
	ID         uint              `gorm:"primaryKey"`
	RoomID     string            `gorm:"size:36;uniqueIndex;not null"`
	Outcome    SettlementOutcome `gorm:"size:16;not null"`
	WinnerID   *uint             `gorm:"index"`
	FinishedAt time.Time         `gorm:"not null"`
	CreatedAt  time.Time         `gorm:"autoCreateTime"`

	Entries []SettlementEntry `gorm:"foreignKey:SettlementID;constraint:OnDelete:CASCADE"`
}

// SettlementEntry 描述一件押注物品的去向。
type SettlementEntry struct {
	ID             uint   `gorm:"primaryKey"`
	SettlementID   uint   `gorm:"index;not null"`
	FromUserID     uint   `gorm:"not null"`
	ToUserID       uint   `gorm:"index;not null"`
	StakeItemID    string `gorm:"size:64;not null"`
	StakeItemName  string `gorm:"size:191;not null"`
	StakeItemValue int64  `gorm:"not null"`
}

// NewSettlement 根据已结束的房间计算结算记录。
// 房间未结束时返回 false。
func NewSettlement(room *Room) (*Settlement, bool) {
	if room == nil || room.Status != RoomStatusFinished {
		return nil, false
	}
	s := &Settlement{RoomID: room.ID, Outcome: SettlementDraw}
	if room.FinishedAt != nil {
		s.FinishedAt = *room.FinishedAt
	}
	if room.WinnerID != nil {
		s.Outcome = SettlementWin
		s.WinnerID = cloneUint(room.WinnerID)
	}
	for _, seat := range room.Seats {
		to := seat.UserID
		if s.WinnerID != nil {
			to = *s.WinnerID
		}
		stake := seat.Stake()
		s.Entries = append(s.Entries, SettlementEntry{
			FromUserID:     seat.UserID,
			ToUserID:       to,
			StakeItemID:    stake.ItemID,
			StakeItemName:  stake.ItemName,
			StakeItemValue: stake.ItemValue,
		})
	}
	return s, true
}
