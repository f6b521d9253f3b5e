// Package board implements the Connect-Four grid and win detection.
package board

import (
	"strconv"

	"github.com/pkg/errors"
)

// Grid dimensions and the length of a winning line.
const (
	Rows      = 6
	Cols      = 7
	WinLength = 4
)

// ErrInvalidColumn indicates a move into a column that is out of range or
// already full.
var ErrInvalidColumn = errors.New("invalid column")

// Cell is the owner of one grid position.
type Cell uint8

// Cell values.
const (
	Empty Cell = iota
	PlayerOne
	PlayerTwo
)

// Pos is a grid position. Row 0 is the top of the board.
type Pos struct {
	Row int
	Col int
}

// Board is the Connect-Four grid. The zero value is an empty board.
type Board struct {
	cells [Rows][Cols]Cell
	count int
}

// Drop places a piece for p into the lowest empty cell of col and returns
// the row it landed in. Occupied cells are never overwritten.
func (b *Board) Drop(col int, p Cell) (int, error) {
	if col < 0 || col >= Cols {
		return 0, errors.Wrapf(ErrInvalidColumn, "column %d out of range", col)
	}
	if b.cells[0][col] != Empty {
		return 0, errors.Wrapf(ErrInvalidColumn, "column %d is full", col)
	}
	row := 0
	for row+1 < Rows && b.cells[row+1][col] == Empty {
		row++
	}
	b.cells[row][col] = p
	b.count++
	return row, nil
}

// At returns the owner of the given cell.
func (b *Board) At(row, col int) Cell {
	return b.cells[row][col]
}

// Full reports whether every cell is occupied.
func (b *Board) Full() bool {
	return b.count == Rows*Cols
}

// lineDirs are the four line families through a cell: its row, its column,
// and the two diagonals.
var lineDirs = [4]Pos{
	{Row: 0, Col: 1},
	{Row: 1, Col: 0},
	{Row: 1, Col: 1},
	{Row: 1, Col: -1},
}

// WinningLine checks the four lines through the just-played cell for
// WinLength consecutive cells owned by the same player. It returns the
// positions of the winning run, or nil if there is none. Only the lines
// touching (row, col) are inspected, so the work per move is proportional
// to the board dimension rather than its area.
func (b *Board) WinningLine(row, col int) []Pos {
	owner := b.cells[row][col]
	if owner == Empty {
		return nil
	}
	for _, d := range lineDirs {
		run := []Pos{{Row: row, Col: col}}
		for _, sign := range [2]int{-1, 1} {
			r, c := row+sign*d.Row, col+sign*d.Col
			for r >= 0 && r < Rows && c >= 0 && c < Cols && b.cells[r][c] == owner {
				if sign < 0 {
					run = append([]Pos{{Row: r, Col: c}}, run...)
				} else {
					run = append(run, Pos{Row: r, Col: c})
				}
				r += sign * d.Row
				c += sign * d.Col
			}
		}
		if len(run) >= WinLength {
			return run[:WinLength]
		}
	}
	return nil
}

// Snapshot returns the grid flattened row-major into decimal cell values,
// suitable for a recovery message.
func (b *Board) Snapshot() []string {
	out := make([]string, 0, Rows*Cols)
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			out = append(out, strconv.Itoa(int(b.cells[r][c])))
		}
	}
	return out
}
