// Connect Four board engine. Pure state and rules, no I/O: the table
// coordinator in game.go owns all mutation and decides what to broadcast.

package main

import "errors"

const (
	boardRows = 6
	boardCols = 7
	winLength = 4
)

// Seat doubles as the cell value of the board, so the grid marshals
// directly into the wire format the client renders ("", "red", "yellow").
type Seat string

const (
	SeatNone   Seat = ""
	SeatRed    Seat = "red"
	SeatYellow Seat = "yellow"
)

func (s Seat) Opponent() Seat {
	if s == SeatRed {
		return SeatYellow
	}
	return SeatRed
}

var (
	errInvalidColumn = errors.New("column out of range")
	errColumnFull    = errors.New("column is full")
)

// Board is row-major, row 0 on top. Pieces settle toward row 5.
type Board [boardRows][boardCols]Seat

// lowestOpenRow scans a column bottom-up for the first empty cell.
func (b *Board) lowestOpenRow(col int) (int, bool) {
	for row := boardRows - 1; row >= 0; row-- {
		if b[row][col] == SeatNone {
			return row, true
		}
	}
	return -1, false
}

// drop places a piece in the lowest open row of col and returns the row it
// settled in. The board is unchanged on error.
func (b *Board) drop(col int, seat Seat) (int, error) {
	if col < 0 || col >= boardCols {
		return -1, errInvalidColumn
	}
	row, ok := b.lowestOpenRow(col)
	if !ok {
		return -1, errColumnFull
	}
	b[row][col] = seat
	return row, nil
}

// Axis deltas: horizontal, vertical, diagonal down-right, diagonal down-left.
var axes = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// winningLine checks only lines through the just-placed cell, walking each
// axis outward in both directions and clamping at the grid edges. It returns
// the full contiguous run (at least four cells) or nil.
func (b *Board) winningLine(row, col int) [][2]int {
	seat := b[row][col]
	if seat == SeatNone {
		return nil
	}

	for _, axis := range axes {
		line := [][2]int{{row, col}}
		for _, sign := range [2]int{-1, 1} {
			r, c := row+sign*axis[0], col+sign*axis[1]
			for r >= 0 && r < boardRows && c >= 0 && c < boardCols && b[r][c] == seat {
				line = append(line, [2]int{r, c})
				r += sign * axis[0]
				c += sign * axis[1]
			}
		}
		if len(line) >= winLength {
			return line
		}
	}

	return nil
}

// full reports whether no empty cell remains. A full board that contains a
// winning line is a win, not a draw, so callers must check winningLine first.
func (b *Board) full() bool {
	for row := range b {
		for col := range b[row] {
			if b[row][col] == SeatNone {
				return false
			}
		}
	}
	return true
}
