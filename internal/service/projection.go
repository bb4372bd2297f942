package service

import (
	"sort"
	"time"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/domain"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/dto"
)

// ProjectRoom 将房间及其座位转换为对外视图，玩家按加入时间排序。
func ProjectRoom(room *domain.Room) *dto.RoomView {
	if room == nil {
		return nil
	}
	view := &dto.RoomView{
		ID:           room.ID,
		Code:         room.Code,
		CreatorID:    room.CreatorID,
		Status:       string(room.Status),
		Board:        make([]string, domain.BoardSize),
		CurrentTurn:  copyUint(room.CurrentTurn),
		WinnerID:     copyUint(room.WinnerID),
		Players:      make([]dto.SeatView, 0, len(room.Seats)),
		CreatedAt:    room.CreatedAt,
		StartedAt:    copyTime(room.StartedAt),
		FinishedAt:   copyTime(room.FinishedAt),
		LastActivity: room.LastActivity,
		Version:      room.Version,
	}
	for i, cell := range room.Board {
		if cell.IsSymbol() {
			view.Board[i] = cell.String()
		}
	}

	seats := make([]domain.Seat, len(room.Seats))
	copy(seats, room.Seats)
	sort.SliceStable(seats, func(i, j int) bool { return seats[i].JoinedAt.Before(seats[j].JoinedAt) })
	for _, s := range seats {
		view.Players = append(view.Players, dto.SeatView{
			UserID:         s.UserID,
			Symbol:         s.Symbol.String(),
			StakeItemID:    s.StakeItemID,
			StakeItemName:  s.StakeItemName,
			StakeItemValue: s.StakeItemValue,
			JoinedAt:       s.JoinedAt,
		})
	}
	return view
}

// ProjectRooms 批量转换
func ProjectRooms(rooms []domain.Room) []dto.RoomView {
	views := make([]dto.RoomView, 0, len(rooms))
	for i := range rooms {
		views = append(views, *ProjectRoom(&rooms[i]))
	}
	return views
}

func copyUint(p *uint) *uint {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
