package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/domain"
	gormpersistence "github.com/pr-poehali-dev/tic-tac-toe-site/internal/infra/persistence/gorm"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/infra/setup"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/service"
)

const (
	userA uint = 101
	userB uint = 102
	userC uint = 103
)

// newIntegrationService 基于内存 SQLite 构建完整的 RoomService
func newIntegrationService(t *testing.T) *service.RoomService {
	t.Helper()
	db, err := setup.InitDB(setup.DBConfig{Driver: setup.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, setup.MigrateDB(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	repo := gormpersistence.NewGormRoomRepository(db, 5*time.Second)
	return service.NewRoomService(repo, nil, nil, time.Hour)
}

func startGame(t *testing.T, svc *service.RoomService) string {
	t.Helper()
	ctx := context.Background()
	created, err := svc.CreateRoom(ctx, userA, domain.Stake{ItemID: "a-item", ItemName: "A item", ItemValue: 10})
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, created.ID, userB, domain.Stake{ItemID: "b-item", ItemName: "B item", ItemValue: 10})
	require.NoError(t, err)
	return created.ID
}

func TestRoomLifecycle_WinScenario(t *testing.T) {
	svc := newIntegrationService(t)
	ctx := context.Background()

	created, err := svc.CreateRoom(ctx, userA, domain.Stake{ItemID: "a-item", ItemName: "A item", ItemValue: 10})
	require.NoError(t, err)
	assert.Equal(t, "waiting", created.Status)
	assert.Len(t, created.Players, 1)
	assert.Equal(t, uint64(1), created.Version)

	joined, err := svc.JoinRoom(ctx, created.ID, userB, domain.Stake{ItemID: "b-item", ItemName: "B item", ItemValue: 10})
	require.NoError(t, err)
	assert.Equal(t, "playing", joined.Status)
	require.NotNil(t, joined.CurrentTurn)
	assert.Equal(t, userA, *joined.CurrentTurn)
	assert.Equal(t, uint64(2), joined.Version)

	steps := []struct {
		user     uint
		position int
		symbol   string
		nextTurn uint
	}{
		{user: userA, position: 0, symbol: "X", nextTurn: userB},
		{user: userB, position: 4, symbol: "O", nextTurn: userA},
		{user: userA, position: 1, symbol: "X", nextTurn: userB},
		{user: userB, position: 3, symbol: "O", nextTurn: userA},
	}
	for _, step := range steps {
		view, err := svc.MakeMove(ctx, created.ID, step.user, step.position)
		require.NoError(t, err)
		assert.Equal(t, step.symbol, view.Board[step.position])
		require.NotNil(t, view.CurrentTurn)
		assert.Equal(t, step.nextTurn, *view.CurrentTurn)
	}

	final, err := svc.MakeMove(ctx, created.ID, userA, 2)
	require.NoError(t, err)
	assert.Equal(t, "finished", final.Status)
	require.NotNil(t, final.WinnerID)
	assert.Equal(t, userA, *final.WinnerID)
	assert.Nil(t, final.CurrentTurn)
	assert.NotNil(t, final.FinishedAt)

	// 结束后两人都可以开新局，历史中能查到这一局
	_, err = svc.CurrentRoom(ctx, userA)
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
	history, err := svc.History(ctx, userB, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, created.ID, history[0].ID)

	// 已结束的房间不可再修改
	_, err = svc.MakeMove(ctx, created.ID, userB, 8)
	assert.ErrorIs(t, err, service.ErrRoomNotJoinable)
	_, err = svc.LeaveRoom(ctx, created.ID, userA)
	assert.ErrorIs(t, err, service.ErrRoomNotJoinable)
}

func TestRoomLifecycle_DrawScenario(t *testing.T) {
	svc := newIntegrationService(t)
	ctx := context.Background()
	roomID := startGame(t, svc)

	// X O X / X O O / O X X
	order := []struct {
		user     uint
		position int
	}{
		{userA, 0}, {userB, 1}, {userA, 2}, {userB, 4}, {userA, 3},
		{userB, 5}, {userA, 7}, {userB, 6}, {userA, 8},
	}
	var err error
	for i, mv := range order {
		view, moveErr := svc.MakeMove(ctx, roomID, mv.user, mv.position)
		require.NoError(t, moveErr, "move %d", i)
		if i < len(order)-1 {
			assert.Equal(t, "playing", view.Status)
		}
	}

	final, err := svc.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, "finished", final.Status)
	assert.Nil(t, final.WinnerID)
	assert.Nil(t, final.CurrentTurn)
}

func TestRoomLifecycle_RejectedMovesLeaveStateUnchanged(t *testing.T) {
	svc := newIntegrationService(t)
	ctx := context.Background()
	roomID := startGame(t, svc)
	_, err := svc.MakeMove(ctx, roomID, userA, 4)
	require.NoError(t, err)
	before, err := svc.GetRoom(ctx, roomID)
	require.NoError(t, err)

	_, err = svc.MakeMove(ctx, roomID, userA, 0)
	assert.ErrorIs(t, err, service.ErrNotYourTurn)
	_, err = svc.MakeMove(ctx, roomID, userB, 4)
	assert.ErrorIs(t, err, service.ErrCellOccupied)
	_, err = svc.MakeMove(ctx, roomID, userC, 0)
	assert.ErrorIs(t, err, service.ErrNotSeated)

	after, err := svc.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, before.Board, after.Board)
	assert.Equal(t, before.CurrentTurn, after.CurrentTurn)
	assert.Equal(t, before.LastActivity.Unix(), after.LastActivity.Unix())
}

func TestRoomLifecycle_OneActiveRoomPerUser(t *testing.T) {
	svc := newIntegrationService(t)
	ctx := context.Background()
	roomID := startGame(t, svc)

	_, err := svc.CreateRoom(ctx, userA, domain.Stake{ItemID: "x", ItemName: "X", ItemValue: 1})
	assert.ErrorIs(t, err, service.ErrAlreadySeated)

	other, err := svc.CreateRoom(ctx, userC, domain.Stake{ItemID: "c", ItemName: "C", ItemValue: 1})
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, other.ID, userB, domain.Stake{ItemID: "b", ItemName: "B", ItemValue: 1})
	assert.ErrorIs(t, err, service.ErrAlreadySeated)

	current, err := svc.CurrentRoom(ctx, userB)
	require.NoError(t, err)
	assert.Equal(t, roomID, current.ID)
}

func TestRoomLifecycle_LeaveTwice(t *testing.T) {
	svc := newIntegrationService(t)
	ctx := context.Background()

	t.Run("mid game", func(t *testing.T) {
		roomID := startGame(t, svc)

		result, err := svc.LeaveRoom(ctx, roomID, userB)
		require.NoError(t, err)
		assert.False(t, result.Deleted)
		require.NotNil(t, result.Room)
		assert.Equal(t, "waiting", result.Room.Status)
		assert.Len(t, result.Room.Players, 1)
		assert.Nil(t, result.Room.CurrentTurn)

		_, err = svc.LeaveRoom(ctx, roomID, userB)
		assert.ErrorIs(t, err, service.ErrNotSeated)

		// 清理：房主离开后房间被删除，第二次离开同样是 NotSeated
		result, err = svc.LeaveRoom(ctx, roomID, userA)
		require.NoError(t, err)
		assert.True(t, result.Deleted)
		_, err = svc.LeaveRoom(ctx, roomID, userA)
		assert.ErrorIs(t, err, service.ErrNotSeated)
		_, err = svc.GetRoom(ctx, roomID)
		assert.ErrorIs(t, err, service.ErrRoomNotFound)
	})
}

func TestRoomLifecycle_CreatorCannotRejoinAfterLeaving(t *testing.T) {
	svc := newIntegrationService(t)
	ctx := context.Background()
	roomID := startGame(t, svc)

	result, err := svc.LeaveRoom(ctx, roomID, userA)
	require.NoError(t, err)
	require.False(t, result.Deleted)

	_, err = svc.JoinRoom(ctx, roomID, userA, domain.Stake{ItemID: "a-item", ItemName: "A item", ItemValue: 10})
	assert.ErrorIs(t, err, service.ErrRoomNotJoinable)

	room, err := svc.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, "waiting", room.Status)
	require.Len(t, room.Players, 1)
	assert.Equal(t, userB, room.Players[0].UserID)

	// 其他玩家仍可加入
	joined, err := svc.JoinRoom(ctx, roomID, userC, domain.Stake{ItemID: "c", ItemName: "C", ItemValue: 1})
	require.NoError(t, err)
	assert.Equal(t, "playing", joined.Status)
}

func TestRoomLifecycle_ConcurrentJoins(t *testing.T) {
	svc := newIntegrationService(t)
	ctx := context.Background()
	created, err := svc.CreateRoom(ctx, userA, domain.Stake{ItemID: "a", ItemName: "A", ItemValue: 10})
	require.NoError(t, err)

	joiners := []uint{201, 202, 203, 204, 205}
	errs := make([]error, len(joiners))
	var wg sync.WaitGroup
	for i, uid := range joiners {
		wg.Add(1)
		go func(i int, uid uint) {
			defer wg.Done()
			_, errs[i] = svc.JoinRoom(ctx, created.ID, uid, domain.Stake{ItemID: "j", ItemName: "J", ItemValue: 10})
		}(i, uid)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.True(t, errors.Is(err, service.ErrRoomFull) || errors.Is(err, service.ErrRoomNotJoinable), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, successes)

	room, err := svc.GetRoom(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "playing", room.Status)
	assert.Len(t, room.Players, 2)
}

func TestRoomLifecycle_ConcurrentMovesBySamePlayer(t *testing.T) {
	svc := newIntegrationService(t)
	ctx := context.Background()
	roomID := startGame(t, svc)

	positions := []int{0, 1, 2, 3, 4, 5, 6, 7, 8}
	errs := make([]error, len(positions))
	var wg sync.WaitGroup
	for i, pos := range positions {
		wg.Add(1)
		go func(i, pos int) {
			defer wg.Done()
			_, errs[i] = svc.MakeMove(ctx, roomID, userA, pos)
		}(i, pos)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, service.ErrNotYourTurn)
	}
	assert.Equal(t, 1, successes)

	room, err := svc.GetRoom(ctx, roomID)
	require.NoError(t, err)
	marks := 0
	for _, cell := range room.Board {
		if cell != "" {
			marks++
		}
	}
	assert.Equal(t, 1, marks, "只应落下一个棋子")
	require.NotNil(t, room.CurrentTurn)
	assert.Equal(t, userB, *room.CurrentTurn)
}

func TestRoomLifecycle_ListActiveAndLookupByCode(t *testing.T) {
	svc := newIntegrationService(t)
	ctx := context.Background()
	roomID := startGame(t, svc)

	active, err := svc.ListActiveRooms(ctx, 0)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, roomID, active[0].ID)
	require.Len(t, active[0].Players, 2)
	assert.Equal(t, userA, active[0].Players[0].UserID)
	assert.Equal(t, userB, active[0].Players[1].UserID)

	byCode, err := svc.GetRoomByCode(ctx, active[0].Code)
	require.NoError(t, err)
	assert.Equal(t, roomID, byCode.ID)

	seated, err := svc.EnsureSeated(ctx, roomID, userB)
	require.NoError(t, err)
	assert.Equal(t, roomID, seated.ID)
}
