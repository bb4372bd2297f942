package service

import (
	"errors"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/domain"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/repository"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("room is full")
	ErrRoomNotJoinable    = errors.New("room does not accept this action in its current state")
	ErrNotYourTurn        = errors.New("not your turn")
	ErrAlreadySeated      = errors.New("user is already seated in an active room")
	ErrNotSeated          = errors.New("user is not seated in this room")
	ErrRoomBusy           = errors.New("room is busy, retry later")
	ErrInvariantViolation = errors.New("room invariant violated")
	ErrInternalServer     = errors.New("internal server error")
	ErrInvalidInput       = errors.New("invalid input")

	// 棋盘错误直接沿用 domain 的定义
	ErrCellOccupied    = domain.ErrCellOccupied
	ErrInvalidPosition = domain.ErrInvalidPosition
)

// stateConflictErrors 是确定性的状态冲突，调用方不应盲目重试
var stateConflictErrors = []error{
	ErrRoomFull, ErrRoomNotJoinable, ErrNotYourTurn, ErrAlreadySeated, ErrNotSeated, ErrCellOccupied,
}

// IsStateConflict 判断错误是否为状态冲突
func IsStateConflict(err error) bool {
	for _, target := range stateConflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// mapRepoError 将仓库层或变更函数返回的错误映射到服务层错误。
func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repository.ErrRoomBusy):
		return ErrRoomBusy
	case errors.Is(err, repository.ErrAlreadySeated):
		return ErrAlreadySeated
	case errors.Is(err, repository.ErrNotFound):
		return ErrRoomNotFound
	case errors.Is(err, ErrInvariantViolation):
		return ErrInvariantViolation
	case errors.Is(err, ErrInvalidPosition):
		return ErrInvalidPosition
	case errors.Is(err, ErrInvalidInput):
		return ErrInvalidInput
	}
	for _, target := range stateConflictErrors {
		if errors.Is(err, target) {
			return target
		}
	}
	return ErrInternalServer
}
