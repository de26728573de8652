package game

import "errors"

const (
	Rows      = 6
	Cols      = 7
	WinLength = 4
)

var ErrInvalidMove = errors.New("invalid move")

// сторона в партии: 0 - пусто, 1 - первый игрок, 2 - второй игрок (или бот)
type Side int

const (
	Empty Side = iota
	Side1
	Side2
)

func (s Side) Opponent() Side {
	if s == Side1 {
		return Side2
	}
	return Side1
}

// доска 6x7, строка 0 - верхняя; сериализуется в JSON как массив строк
type Board [Rows][Cols]Side

func NewBoard() *Board {
	return &Board{}
}

func (b *Board) Clone() *Board {
	clone := *b
	return &clone
}

// Drop бросает фишку в колонку и возвращает строку приземления.
// Колонка вне диапазона или заполненная колонка -> ErrInvalidMove.
func (b *Board) Drop(col int, s Side) (int, error) {
	if col < 0 || col >= Cols {
		return -1, ErrInvalidMove
	}
	for row := Rows - 1; row >= 0; row-- {
		if b[row][col] == Empty {
			b[row][col] = s
			return row, nil
		}
	}
	return -1, ErrInvalidMove
}

// порядок фиксирован: горизонталь, вертикаль, диагональ вниз-вправо, вниз-влево
var directions = [4][2]int{
	{0, 1},
	{1, 0},
	{1, 1},
	{1, -1},
}

// Winner возвращает сторону, собравшую линию из четырех через клетку (row, col),
// или Empty если победы нет. Клетка (row, col) - место последнего хода.
func (b *Board) Winner(row, col int) Side {
	s := b[row][col]
	if s == Empty {
		return Empty
	}
	for _, d := range directions {
		if len(b.lineThrough(row, col, d[0], d[1], s)) >= WinLength {
			return s
		}
	}
	return Empty
}

// WinningCells возвращает координаты выигрышной линии через (row, col)
// для подсветки на клиенте; nil, если линии нет.
func (b *Board) WinningCells(row, col int) [][2]int {
	s := b[row][col]
	if s == Empty {
		return nil
	}
	for _, d := range directions {
		cells := b.lineThrough(row, col, d[0], d[1], s)
		if len(cells) >= WinLength {
			return cells
		}
	}
	return nil
}

// собирает непрерывную линию стороны s через (row, col) вдоль направления (dr, dc),
// расширяясь в обе стороны от клетки
func (b *Board) lineThrough(row, col, dr, dc int, s Side) [][2]int {
	cells := [][2]int{{row, col}}

	for i := 1; i < WinLength; i++ {
		r, c := row+dr*i, col+dc*i
		if r < 0 || r >= Rows || c < 0 || c >= Cols || b[r][c] != s {
			break
		}
		cells = append(cells, [2]int{r, c})
	}

	for i := 1; i < WinLength; i++ {
		r, c := row-dr*i, col-dc*i
		if r < 0 || r >= Rows || c < 0 || c >= Cols || b[r][c] != s {
			break
		}
		cells = append(cells, [2]int{r, c})
	}

	return cells
}

// достаточно проверить верхнюю строку: гравитация не оставляет дыр ниже
func (b *Board) IsFull() bool {
	for col := 0; col < Cols; col++ {
		if b[0][col] == Empty {
			return false
		}
	}
	return true
}

func (b *Board) ColumnOpen(col int) bool {
	return col >= 0 && col < Cols && b[0][col] == Empty
}

// LegalColumns возвращает открытые колонки по возрастанию
func (b *Board) LegalColumns() []int {
	cols := make([]int, 0, Cols)
	for col := 0; col < Cols; col++ {
		if b.ColumnOpen(col) {
			cols = append(cols, col)
		}
	}
	return cols
}
