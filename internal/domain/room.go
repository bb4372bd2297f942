package domain

import "time"

// RoomStatus 表示房间所处的状态。
type RoomStatus string

const (
	RoomStatusWaiting  RoomStatus = "waiting"  // 等待第二名玩家
	RoomStatusPlaying  RoomStatus = "playing"  // 对局进行中
	RoomStatusFinished RoomStatus = "finished" // 对局结束 (终态，不再修改)
)

// MaxSeats 是每个房间的座位数。
const MaxSeats = 2

// Room 表示一局押注井字棋对局。
type Room struct {
	ID          string     `gorm:"primaryKey;size:36"`           // 房间唯一标识 (UUID)
	Code        string     `gorm:"uniqueIndex;size:16;not null"` // 便于分享的短码
	CreatorID   uint       `gorm:"index;not null"`               // 创建者用户 ID
	Status      RoomStatus `gorm:"size:16;index;not null"`       // waiting / playing / finished
	Board       Board      `gorm:"type:varchar(9);not null"`     // 9 字符棋盘
	CurrentTurn *uint      `gorm:"index"`                        // 轮到落子的用户，nil 表示无
	WinnerID    *uint      `gorm:"index"`                        // 获胜者，nil 表示平局或未结束
	Version     uint64     `gorm:"not null;default:0"`           // 每次提交变更后递增，事件按它排序

	CreatedAt    time.Time `gorm:"autoCreateTime;index"`
	LastActivity time.Time `gorm:"index;not null"` // 用于过滤被遗弃的房间
	StartedAt    *time.Time
	FinishedAt   *time.Time

	Seats []Seat `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
}

// Seat 表示房间中的一个座位 (玩家 + 棋子 + 押注物品)。
type Seat struct {
	ID             uint      `gorm:"primaryKey"`
	RoomID         string    `gorm:"size:36;not null;uniqueIndex:idx_seat_room_user;uniqueIndex:idx_seat_room_symbol"`
	UserID         uint      `gorm:"not null;uniqueIndex:idx_seat_room_user;index"`
	Symbol         Cell      `gorm:"not null;uniqueIndex:idx_seat_room_symbol"`
	StakeItemID    string    `gorm:"size:64;not null"`
	StakeItemName  string    `gorm:"size:191;not null"`
	StakeItemValue int64     `gorm:"not null"`
	JoinedAt       time.Time `gorm:"not null;index"`
}

// TableName 指定座位表名。
func (Seat) TableName() string { return "room_seats" }

// ActiveSeat 是 "用户 → 当前未结束房间" 的派生索引，
// 与房间变更在同一事务中维护。主键保证每个用户最多坐在一个未结束的房间里。
type ActiveSeat struct {
	UserID uint   `gorm:"primaryKey;autoIncrement:false"`
	RoomID string `gorm:"size:36;not null;index"`
}

// Stake 是玩家押注的物品引用，核心逻辑只透传不解释。
type Stake struct {
	ItemID    string
	ItemName  string
	ItemValue int64
}

// Stake 返回座位上的押注物品。
func (s Seat) Stake() Stake {
	return Stake{ItemID: s.StakeItemID, ItemName: s.StakeItemName, ItemValue: s.StakeItemValue}
}

// SeatOf 返回用户的座位，不在房间中时返回 nil。
func (r *Room) SeatOf(userID uint) *Seat {
	for i := range r.Seats {
		if r.Seats[i].UserID == userID {
			return &r.Seats[i]
		}
	}
	return nil
}

// SeatBySymbol 返回持有指定棋子的座位。
func (r *Room) SeatBySymbol(symbol Cell) *Seat {
	for i := range r.Seats {
		if r.Seats[i].Symbol == symbol {
			return &r.Seats[i]
		}
	}
	return nil
}

// FreeSymbol 返回尚未被占用的棋子，X 优先。房间已满时返回 CellEmpty。
func (r *Room) FreeSymbol() Cell {
	if r.SeatBySymbol(CellX) == nil {
		return CellX
	}
	if r.SeatBySymbol(CellO) == nil {
		return CellO
	}
	return CellEmpty
}

// IsActive 表示房间未结束 (waiting 或 playing)。
func (r *Room) IsActive() bool {
	return r.Status == RoomStatusWaiting || r.Status == RoomStatusPlaying
}

// Clone 深拷贝房间，供事务内的变更函数使用。
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.CurrentTurn = cloneUint(r.CurrentTurn)
	c.WinnerID = cloneUint(r.WinnerID)
	c.StartedAt = cloneTime(r.StartedAt)
	c.FinishedAt = cloneTime(r.FinishedAt)
	if r.Seats != nil {
		c.Seats = make([]Seat, len(r.Seats))
		copy(c.Seats, r.Seats)
	}
	return &c
}

func cloneUint(p *uint) *uint {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
