package game

// предпочтение колонок от центра к краям
var centerOrder = [Cols]int{3, 2, 4, 1, 5, 0, 6}

// BotMove выбирает колонку для автономного игрока. Приоритеты строго по порядку:
// собственная немедленная победа, блок победы противника, создание двойной угрозы,
// блок чужой двойной угрозы, затем колонки от центра к краям, пропуская ходы,
// после которых противник выигрывает клеткой прямо над нашей фишкой.
// Возвращает -1 только если легальных колонок нет - вызывающий обязан
// не обращаться к боту на заполненной доске.
func BotMove(b *Board, bot Side) int {
	opponent := bot.Opponent()
	legal := b.LegalColumns()
	if len(legal) == 0 {
		return -1
	}

	for _, col := range legal {
		if winsWithMove(b, col, bot) {
			return col
		}
	}

	for _, col := range legal {
		if winsWithMove(b, col, opponent) {
			return col
		}
	}

	if col := doubleThreatMove(b, bot); col != -1 {
		return col
	}

	if col := doubleThreatMove(b, opponent); col != -1 {
		return col
	}

	for _, col := range centerOrder {
		if b.ColumnOpen(col) && !handsOpponentWin(b, col, bot, opponent) {
			return col
		}
	}

	// все открытые колонки небезопасны - берем первую от центра
	for _, col := range centerOrder {
		if b.ColumnOpen(col) {
			return col
		}
	}

	return legal[0]
}

// симулирует бросок и проверяет немедленную победу стороны s в этой колонке
func winsWithMove(b *Board, col int, s Side) bool {
	test := b.Clone()
	row, err := test.Drop(col, s)
	if err != nil {
		return false
	}
	return test.Winner(row, col) == s
}

// doubleThreatMove ищет колонку, после которой у стороны s остаются две и более
// колонки, каждая из которых завершает победу следующим ходом
func doubleThreatMove(b *Board, s Side) int {
	for _, col := range b.LegalColumns() {
		test := b.Clone()
		if _, err := test.Drop(col, s); err != nil {
			continue
		}

		threats := 0
		for _, next := range test.LegalColumns() {
			if winsWithMove(test, next, s) {
				threats++
			}
		}

		if threats >= 2 {
			return col
		}
	}
	return -1
}

// handsOpponentWin проверяет, не подставляет ли бросок бота в col клетку
// прямо над ним под выигрышный ответ противника
func handsOpponentWin(b *Board, col int, bot, opponent Side) bool {
	test := b.Clone()
	row, err := test.Drop(col, bot)
	if err != nil {
		return true
	}

	if row > 0 {
		test[row-1][col] = opponent
		if test.Winner(row-1, col) == opponent {
			return true
		}
	}
	return false
}
