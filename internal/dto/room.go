package dto

import "time"

// StakeRequest 创建或加入房间时提交的押注物品
type StakeRequest struct {
	StakeItemID    string `json:"stake_item_id" binding:"required,max=64"`
	StakeItemName  string `json:"stake_item_name" binding:"required,max=191"`
	StakeItemValue int64  `json:"stake_item_value" binding:"min=0"`
}

// MoveRequest 落子请求。Position 为 0-8 的格子下标。
type MoveRequest struct {
	Position *int `json:"position" binding:"required"`
}

// SeatView 房间中一名玩家的对外视图
type SeatView struct {
	UserID         uint      `json:"user_id"`
	Symbol         string    `json:"symbol"`
	StakeItemID    string    `json:"stake_item_id"`
	StakeItemName  string    `json:"stake_item_name"`
	StakeItemValue int64     `json:"stake_item_value"`
	JoinedAt       time.Time `json:"joined_at"`
}

// RoomView 房间的对外视图 (玩家 + 棋盘 + 状态)
type RoomView struct {
	ID           string     `json:"id"`
	Code         string     `json:"code"`
	CreatorID    uint       `json:"creator_id"`
	Status       string     `json:"status"`
	Board        []string   `json:"board"` // 9 个格子，"" / "X" / "O"
	CurrentTurn  *uint      `json:"current_turn"`
	WinnerID     *uint      `json:"winner_id"`
	Players      []SeatView `json:"players"` // 按加入时间排序
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	LastActivity time.Time  `json:"last_activity"`
	Version      uint64     `json:"version"` // 每次状态变更递增
}

// LeaveResult 离开房间的结果。最后一名玩家离开时房间被删除，Room 为空。
type LeaveResult struct {
	RoomID  string    `json:"room_id"`
	Deleted bool      `json:"deleted"`
	Room    *RoomView `json:"room,omitempty"`
}

// 房间事件类型
const (
	RoomEventUpdated = "room_updated"
	RoomEventDeleted = "room_deleted"
	RoomEventError   = "error"
)

// RoomEvent 通过 WebSocket 推送给房间内玩家的消息
type RoomEvent struct {
	Type    string    `json:"type"`
	RoomID  string    `json:"room_id"`
	Action  string    `json:"action,omitempty"`  // 触发事件的操作：create/join/move/leave
	Version uint64    `json:"version,omitempty"` // 房间版本，旧版本的事件会被丢弃
	Room    *RoomView `json:"room,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// ErrorResponse HTTP 错误响应
type ErrorResponse struct {
	Error string `json:"error"`
}
