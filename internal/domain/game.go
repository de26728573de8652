package domain

import "time"

// итог партии
type GameResult string

const (
	ResultWin     GameResult = "win"
	ResultDraw    GameResult = "draw"
	ResultForfeit GameResult = "forfeit"
)

// исход для конкретного игрока (счетчики в таблице players)
type PlayerOutcome string

const (
	OutcomeWin  PlayerOutcome = "win"
	OutcomeLoss PlayerOutcome = "loss"
	OutcomeDraw PlayerOutcome = "draw"
)

// один ход в журнале партии; неизменяем после записи
type Move struct {
	Player    string `json:"player"`
	Column    int    `json:"column"`
	Timestamp int64  `json:"timestamp"`
}

// запись завершенной партии для персистентности
type GameRecord struct {
	ID              string     `json:"id"`
	Player1         string     `json:"player1"`
	Player2         string     `json:"player2"`
	Winner          *string    `json:"winner"`
	IsBotGame       bool       `json:"isBotGame"`
	Moves           []Move     `json:"moves"`
	Result          GameResult `json:"result"`
	DurationSeconds int        `json:"durationSeconds"`
	StartedAt       time.Time  `json:"startedAt"`
}

type PlayerStats struct {
	Username string `json:"username"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	Draws    int    `json:"draws"`
}

type LeaderboardEntry struct {
	Rank     int     `json:"rank"`
	Username string  `json:"username"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	Draws    int     `json:"draws"`
	WinRate  float64 `json:"winRate"`
}

type RecentGame struct {
	ID        string     `json:"id"`
	Player1   string     `json:"player1"`
	Player2   string     `json:"player2"`
	Winner    *string    `json:"winner"`
	IsBotGame bool       `json:"isBotGame"`
	Result    GameResult `json:"result"`
	Duration  int        `json:"duration"`
	EndedAt   time.Time  `json:"endedAt"`
}
