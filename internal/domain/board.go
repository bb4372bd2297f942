package domain

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

// BoardSize 是棋盘格子总数 (3x3)。
const BoardSize = 9

var (
	// ErrInvalidPosition 表示落子位置不在 [0,8] 范围内
	ErrInvalidPosition = errors.New("invalid position")
	// ErrCellOccupied 表示目标格子已有棋子
	ErrCellOccupied = errors.New("cell occupied")
	// ErrInvalidSymbol 表示试图落下非 X/O 的棋子
	ErrInvalidSymbol = errors.New("invalid symbol")
)

// Cell 表示棋盘上的一个格子。
type Cell uint8

const (
	CellEmpty Cell = iota
	CellX
	CellO
)

// String 返回格子的单字符表示，空格子为 "-"。
func (c Cell) String() string {
	switch c {
	case CellX:
		return "X"
	case CellO:
		return "O"
	default:
		return "-"
	}
}

// IsSymbol 判断格子是否为玩家棋子 (X 或 O)。
func (c Cell) IsSymbol() bool { return c == CellX || c == CellO }

// Opponent 返回对手的棋子。
func (c Cell) Opponent() Cell {
	switch c {
	case CellX:
		return CellO
	case CellO:
		return CellX
	default:
		return CellEmpty
	}
}

// ParseCell 解析单字符表示。
func ParseCell(s string) (Cell, error) {
	switch strings.ToUpper(s) {
	case "X":
		return CellX, nil
	case "O":
		return CellO, nil
	case "-", "":
		return CellEmpty, nil
	}
	return CellEmpty, fmt.Errorf("%w: %q", ErrInvalidSymbol, s)
}

// Board 是一个 3x3 井字棋盘，按行优先存储。
// 值类型：所有操作都返回新棋盘，不修改原值。
type Board [BoardSize]Cell

// winningLines 是 8 条获胜连线：3 行、3 列、2 条对角线
var winningLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// OutcomeKind 表示棋局评估结果的类型。
type OutcomeKind int

const (
	OutcomeInProgress OutcomeKind = iota
	OutcomeWinner
	OutcomeDraw
)

// Outcome 是 Evaluate 的结果。仅当 Kind 为 OutcomeWinner 时 Winner 有意义。
type Outcome struct {
	Kind   OutcomeKind
	Winner Cell
}

// ApplyMove 在 position 处落下 symbol，返回新棋盘。
func (b Board) ApplyMove(position int, symbol Cell) (Board, error) {
	if position < 0 || position >= BoardSize {
		return b, ErrInvalidPosition
	}
	if !symbol.IsSymbol() {
		return b, ErrInvalidSymbol
	}
	if b[position] != CellEmpty {
		return b, ErrCellOccupied
	}
	b[position] = symbol // b 是副本
	return b, nil
}

// Evaluate 检查胜负。多条连线同时成立时返回第一条匹配连线的棋子。
func (b Board) Evaluate() Outcome {
	for _, line := range winningLines {
		c := b[line[0]]
		if c != CellEmpty && c == b[line[1]] && c == b[line[2]] {
			return Outcome{Kind: OutcomeWinner, Winner: c}
		}
	}
	if b.IsFull() {
		return Outcome{Kind: OutcomeDraw}
	}
	return Outcome{Kind: OutcomeInProgress}
}

// IsFull 判断棋盘是否已下满。
func (b Board) IsFull() bool {
	return b.Count(CellEmpty) == 0
}

// IsEmpty 判断棋盘是否全空。
func (b Board) IsEmpty() bool {
	return b == Board{}
}

// Count 统计某种棋子的数量。
func (b Board) Count(c Cell) int {
	n := 0
	for _, cell := range b {
		if cell == c {
			n++
		}
	}
	return n
}

// String 返回 9 个字符的紧凑表示，例如 "XO-X-----"。
func (b Board) String() string {
	var sb strings.Builder
	sb.Grow(BoardSize)
	for _, c := range b {
		sb.WriteString(c.String())
	}
	return sb.String()
}

// ParseBoard 解析 String 生成的 9 字符表示。
func ParseBoard(s string) (Board, error) {
	var b Board
	if len(s) != BoardSize {
		return b, fmt.Errorf("board must have %d cells, got %d", BoardSize, len(s))
	}
	for i := 0; i < BoardSize; i++ {
		c, err := ParseCell(s[i : i+1])
		if err != nil {
			return b, fmt.Errorf("board cell %d: %w", i, err)
		}
		b[i] = c
	}
	return b, nil
}

// Value 实现 driver.Valuer，数据库中存为 9 字符字符串。
func (b Board) Value() (driver.Value, error) {
	return b.String(), nil
}

// Scan 实现 sql.Scanner。
func (b *Board) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case nil:
		*b = Board{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Board", src)
	}
	parsed, err := ParseBoard(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}
