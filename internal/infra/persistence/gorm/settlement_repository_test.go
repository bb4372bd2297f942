package gormpersistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/domain"
	gormpersistence "github.com/pr-poehali-dev/tic-tac-toe-site/internal/infra/persistence/gorm"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/repository"
)

func TestGormSettlementRepository_SaveAndFind(t *testing.T) {
	// Arrange
	db := newTestDB(t)
	repo := gormpersistence.NewGormSettlementRepository(db)
	ctx := context.Background()
	finished := time.Now()
	winner := uint(1)
	room := &domain.Room{
		ID:         "room-1",
		Status:     domain.RoomStatusFinished,
		WinnerID:   &winner,
		FinishedAt: &finished,
		Seats: []domain.Seat{
			{UserID: 1, Symbol: domain.CellX, StakeItemID: "sword", StakeItemName: "Sword", StakeItemValue: 10},
			{UserID: 2, Symbol: domain.CellO, StakeItemID: "shield", StakeItemName: "Shield", StakeItemValue: 12},
		},
	}
	settlement, ok := domain.NewSettlement(room)
	require.True(t, ok)

	// Act
	require.NoError(t, repo.Save(ctx, settlement))

	// Assert
	stored, err := repo.FindByRoomID(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementWin, stored.Outcome)
	require.NotNil(t, stored.WinnerID)
	assert.Equal(t, uint(1), *stored.WinnerID)
	require.Len(t, stored.Entries, 2)
	assert.Equal(t, "sword", stored.Entries[0].StakeItemID)
	assert.Equal(t, uint(1), stored.Entries[1].ToUserID)

	// 同一房间只能结算一次
	again, _ := domain.NewSettlement(room)
	assert.ErrorIs(t, repo.Save(ctx, again), repository.ErrDuplicateEntry)
}

func TestGormSettlementRepository_NotFound(t *testing.T) {
	repo := gormpersistence.NewGormSettlementRepository(newTestDB(t))

	_, err := repo.FindByRoomID(context.Background(), "missing")

	assert.ErrorIs(t, err, repository.ErrSettlementNotFound)
}

func TestGormSettlementRepository_ListUnsettledRoomIDs(t *testing.T) {
	// Arrange: 两个已结束房间，其中一个已经结算
	db := newTestDB(t)
	rooms := gormpersistence.NewGormRoomRepository(db, time.Second)
	repo := gormpersistence.NewGormSettlementRepository(db)
	ctx := context.Background()
	finish := func(room *domain.Room) (*domain.Room, error) {
		now := time.Now()
		room.Status = domain.RoomStatusFinished
		room.FinishedAt = &now
		return room, nil
	}
	require.NoError(t, rooms.CreateRoom(ctx, newWaitingRoom("settled", "AAA111", 1)))
	require.NoError(t, rooms.CreateRoom(ctx, newWaitingRoom("pending", "BBB222", 2)))
	require.NoError(t, rooms.CreateRoom(ctx, newWaitingRoom("open", "CCC333", 3)))
	for _, id := range []string{"settled", "pending"} {
		_, err := rooms.WithRoomLock(ctx, id, finish)
		require.NoError(t, err)
	}
	settledRoom, err := rooms.FindByID(ctx, "settled")
	require.NoError(t, err)
	settlement, ok := domain.NewSettlement(settledRoom)
	require.True(t, ok)
	require.NoError(t, repo.Save(ctx, settlement))

	// Act
	ids, err := repo.ListUnsettledRoomIDs(ctx, 10)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"pending"}, ids)
}
