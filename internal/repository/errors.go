package repository

import "errors"

// 通用的存储库错误
var (
	// ErrNotFound 表示请求的记录未找到
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry 表示尝试插入或更新的数据违反了唯一约束
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
	// ErrRoomBusy 表示在限定时间内未能获得房间行锁，调用方可以退避重试
	ErrRoomBusy = errors.New("repository: room is busy")
	// ErrAlreadySeated 表示用户已经坐在另一个未结束的房间中
	ErrAlreadySeated = errors.New("repository: user already seated in an active room")
)

// 特定资源的错误
var (
	ErrRoomNotFound       = ErrNotFound
	ErrSettlementNotFound = ErrNotFound
)
