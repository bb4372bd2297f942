package domain_test

import (
	"testing"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustBoard(t *testing.T, s string) domain.Board {
	t.Helper()
	b, err := domain.ParseBoard(s)
	require.NoError(t, err)
	return b
}

func TestBoard_ApplyMove(t *testing.T) {
	tests := []struct {
		name     string
		board    string
		position int
		symbol   domain.Cell
		wantErr  error
		want     string
	}{
		{name: "empty board first move", board: "---------", position: 0, symbol: domain.CellX, want: "X--------"},
		{name: "last cell", board: "XOXOXO-X-", position: 8, symbol: domain.CellO, want: "XOXOXO-XO"},
		{name: "negative position", board: "---------", position: -1, symbol: domain.CellX, wantErr: domain.ErrInvalidPosition},
		{name: "position too large", board: "---------", position: 9, symbol: domain.CellX, wantErr: domain.ErrInvalidPosition},
		{name: "occupied cell", board: "----X----", position: 4, symbol: domain.CellO, wantErr: domain.ErrCellOccupied},
		{name: "empty symbol rejected", board: "---------", position: 4, symbol: domain.CellEmpty, wantErr: domain.ErrInvalidSymbol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := mustBoard(t, tt.board)
			got, err := before.ApplyMove(tt.position, tt.symbol)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
			// 原棋盘不应被修改
			assert.Equal(t, tt.board, before.String())
		})
	}
}

func TestBoard_Evaluate(t *testing.T) {
	tests := []struct {
		name   string
		board  string
		kind   domain.OutcomeKind
		winner domain.Cell
	}{
		{name: "empty", board: "---------", kind: domain.OutcomeInProgress},
		{name: "top row X", board: "XXXOO----", kind: domain.OutcomeWinner, winner: domain.CellX},
		{name: "middle row O", board: "X-XOOOX--", kind: domain.OutcomeWinner, winner: domain.CellO},
		{name: "bottom row", board: "OO----XXX", kind: domain.OutcomeWinner, winner: domain.CellX},
		{name: "left column", board: "OX-OX-O--", kind: domain.OutcomeWinner, winner: domain.CellO},
		{name: "middle column", board: "OX--XO-X-", kind: domain.OutcomeWinner, winner: domain.CellX},
		{name: "right column", board: "XXOX-O--O", kind: domain.OutcomeWinner, winner: domain.CellO},
		{name: "main diagonal", board: "XO-OX---X", kind: domain.OutcomeWinner, winner: domain.CellX},
		{name: "anti diagonal", board: "XXO-O-OX-", kind: domain.OutcomeWinner, winner: domain.CellO},
		{name: "draw", board: "XOXXOOOXX", kind: domain.OutcomeDraw},
		{name: "win on full board is not draw", board: "XOXOXOOXX", kind: domain.OutcomeWinner, winner: domain.CellX},
		{name: "in progress", board: "XO--X-O--", kind: domain.OutcomeInProgress},
		// 非法棋局中多条连线同时成立，不能 panic
		{name: "two winning lines", board: "XXXOOO---", kind: domain.OutcomeWinner, winner: domain.CellX},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := mustBoard(t, tt.board).Evaluate()
			assert.Equal(t, tt.kind, outcome.Kind)
			if tt.kind == domain.OutcomeWinner {
				assert.Equal(t, tt.winner, outcome.Winner)
			}
		})
	}
}

// 穷举全部 3^9 个棋盘：棋子数不足 3 的一方永远不会被判为胜者
func TestBoard_Evaluate_NeverWinnerWithFewerThanThree(t *testing.T) {
	total := 1
	for i := 0; i < domain.BoardSize; i++ {
		total *= 3
	}
	for n := 0; n < total; n++ {
		var b domain.Board
		v := n
		for i := 0; i < domain.BoardSize; i++ {
			b[i] = domain.Cell(v % 3)
			v /= 3
		}
		outcome := b.Evaluate()
		if outcome.Kind == domain.OutcomeWinner {
			require.True(t, outcome.Winner.IsSymbol(), "board %s", b)
			require.GreaterOrEqual(t, b.Count(outcome.Winner), 3, "board %s", b)
		}
		if outcome.Kind == domain.OutcomeDraw {
			require.True(t, b.IsFull(), "board %s", b)
		}
	}
}

func TestBoard_ScanValue(t *testing.T) {
	b := mustBoard(t, "X-O-X-O-X")

	v, err := b.Value()
	require.NoError(t, err)
	assert.Equal(t, "X-O-X-O-X", v)

	var scanned domain.Board
	require.NoError(t, scanned.Scan([]byte("X-O-X-O-X")))
	assert.Equal(t, b, scanned)

	require.NoError(t, scanned.Scan(nil))
	assert.True(t, scanned.IsEmpty())

	assert.Error(t, scanned.Scan("XX"))
	assert.Error(t, scanned.Scan("XXXXXXXXZ"))
	assert.Error(t, scanned.Scan(42))
}

func TestCell_Opponent(t *testing.T) {
	assert.Equal(t, domain.CellO, domain.CellX.Opponent())
	assert.Equal(t, domain.CellX, domain.CellO.Opponent())
	assert.Equal(t, domain.CellEmpty, domain.CellEmpty.Opponent())
}
