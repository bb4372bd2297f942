package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/domain"
)

// 房间状态机的各个转换。全部是纯函数：接收锁内读到的房间副本，返回下一状态或错误，
// 由 RoomService 通过 WithRoomLock 原子地提交。

const (
	maxStakeItemIDLen   = 64
	maxStakeItemNameLen = 191
)

// validateStake 在访问仓库之前校验押注物品
func validateStake(stake domain.Stake) error {
	id := strings.TrimSpace(stake.ItemID)
	name := strings.TrimSpace(stake.ItemName)
	switch {
	case id == "" || len(id) > maxStakeItemIDLen:
		return fmt.Errorf("%w: stake item id must be 1-%d characters", ErrInvalidInput, maxStakeItemIDLen)
	case name == "" || len(name) > maxStakeItemNameLen:
		return fmt.Errorf("%w: stake item name must be 1-%d characters", ErrInvalidInput, maxStakeItemNameLen)
	case stake.ItemValue < 0:
		return fmt.Errorf("%w: stake item value must not be negative", ErrInvalidInput)
	}
	return nil
}

// validatePosition 在访问仓库之前校验落子位置
func validatePosition(position int) error {
	if position < 0 || position >= domain.BoardSize {
		return fmt.Errorf("%w: %d", ErrInvalidPosition, position)
	}
	return nil
}

func newSeat(userID uint, symbol domain.Cell, stake domain.Stake, now time.Time) domain.Seat {
	return domain.Seat{
		UserID:         userID,
		Symbol:         symbol,
		StakeItemID:    strings.TrimSpace(stake.ItemID),
		StakeItemName:  strings.TrimSpace(stake.ItemName),
		StakeItemValue: stake.ItemValue,
		JoinedAt:       now,
	}
}

// newRoom 创建等待中的房间，创建者执 X
func newRoom(id, code string, creatorID uint, stake domain.Stake, now time.Time) *domain.Room {
	return &domain.Room{
		ID:           id,
		Code:         code,
		CreatorID:    creatorID,
		Status:       domain.RoomStatusWaiting,
		Version:      1,
		CreatedAt:    now,
		LastActivity: now,
		Seats:        []domain.Seat{newSeat(creatorID, domain.CellX, stake, now)},
	}
}

// joinRoom 让 userID 坐到空位上并开始对局。X 先手。
func joinRoom(room *domain.Room, userID uint, stake domain.Stake, now time.Time) (*domain.Room, error) {
	if room.Status == domain.RoomStatusFinished {
		return nil, ErrRoomNotJoinable
	}
	if room.SeatOf(userID) != nil {
		return nil, ErrAlreadySeated
	}
	if len(room.Seats) >= domain.MaxSeats {
		return nil, ErrRoomFull
	}
	// 创建者中途离开后不能再回到自己的房间
	if userID == room.CreatorID {
		return nil, ErrRoomNotJoinable
	}
	if room.Status != domain.RoomStatusWaiting {
		return nil, ErrRoomNotJoinable
	}

	symbol := room.FreeSymbol()
	if symbol == domain.CellEmpty {
		return nil, fmt.Errorf("%w: waiting room %s has no free symbol", ErrInvariantViolation, room.ID)
	}
	room.Seats = append(room.Seats, newSeat(userID, symbol, stake, now))

	first := room.SeatBySymbol(domain.CellX)
	turn := first.UserID
	room.Status = domain.RoomStatusPlaying
	room.Board = domain.Board{}
	room.CurrentTurn = &turn
	room.WinnerID = nil
	room.StartedAt = &now
	room.LastActivity = now
	return room, nil
}

// applyMove 由当前回合玩家落子，并根据棋盘结果结束对局或交换回合
func applyMove(room *domain.Room, userID uint, position int, now time.Time) (*domain.Room, error) {
	if room.Status != domain.RoomStatusPlaying {
		return nil, ErrRoomNotJoinable
	}
	seat := room.SeatOf(userID)
	if seat == nil {
		return nil, ErrNotSeated
	}
	if room.CurrentTurn == nil {
		return nil, fmt.Errorf("%w: playing room %s has no current turn", ErrInvariantViolation, room.ID)
	}
	if *room.CurrentTurn != userID {
		return nil, ErrNotYourTurn
	}

	board, err := room.Board.ApplyMove(position, seat.Symbol)
	if err != nil {
		return nil, err
	}
	room.Board = board
	room.LastActivity = now

	outcome := board.Evaluate()
	switch outcome.Kind {
	case domain.OutcomeWinner:
		// 按回合顺序，只有落子方可能连成一线
		if outcome.Winner != seat.Symbol {
			return nil, fmt.Errorf("%w: board %s reports %s winning after a move by %s (user %d)",
				ErrInvariantViolation, board, outcome.Winner, seat.Symbol, userID)
		}
		winner := userID
		room.Status = domain.RoomStatusFinished
		room.WinnerID = &winner
		room.CurrentTurn = nil
		room.FinishedAt = &now
	case domain.OutcomeDraw:
		room.Status = domain.RoomStatusFinished
		room.WinnerID = nil
		room.CurrentTurn = nil
		room.FinishedAt = &now
	default:
		opponent := room.SeatBySymbol(seat.Symbol.Opponent())
		if opponent == nil {
			return nil, fmt.Errorf("%w: playing room %s has a single seat", ErrInvariantViolation, room.ID)
		}
		next := opponent.UserID
		room.CurrentTurn = &next
	}
	return room, nil
}

// leaveRoom 移除 userID 的座位。返回 (nil, nil) 表示房间已空，应删除。
// 对局中离开时剩下的玩家回到等待状态，棋盘清空。
func leaveRoom(room *domain.Room, userID uint, now time.Time) (*domain.Room, error) {
	if room.Status == domain.RoomStatusFinished {
		return nil, ErrRoomNotJoinable
	}
	if room.SeatOf(userID) == nil {
		return nil, ErrNotSeated
	}

	remaining := make([]domain.Seat, 0, len(room.Seats))
	for _, s := range room.Seats {
		if s.UserID != userID {
			remaining = append(remaining, s)
		}
	}
	if len(remaining) == 0 {
		return nil, nil
	}

	room.Seats = remaining
	room.Status = domain.RoomStatusWaiting
	room.Board = domain.Board{}
	room.CurrentTurn = nil
	room.WinnerID = nil
	room.StartedAt = nil
	room.LastActivity = now
	return room, nil
}
