package repository

import (
	"context"
	"encoding/json"

	"nexus4/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GameRepository - приемник персистентности: завершенные партии и счетчики
// игроков. Терпит nil-пул (база недоступна) - тогда все методы no-op,
// геймплей от этого не зависит.
type GameRepository struct {
	db *pgxpool.Pool
}

func NewGameRepository(db *pgxpool.Pool) *GameRepository {
	return &GameRepository{db: db}
}

// заводит игрока при первом join; повторный join ничего не меняет
func (r *GameRepository) UpsertPlayer(ctx context.Context, username string) error {
	if r.db == nil {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO players (username) VALUES ($1)
		ON CONFLICT (username) DO NOTHING
	`, username)
	return err
}

// сохраняет запись завершенной партии
func (r *GameRepository) SaveGame(ctx context.Context, g *domain.GameRecord) error {
	if r.db == nil {
		return nil
	}

	moves, err := json.Marshal(g.Moves)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO games (
			id, player1_username, player2_username, winner_username,
			is_bot_game, moves, result, duration_seconds, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, g.ID, g.Player1, g.Player2, g.Winner, g.IsBotGame, moves, g.Result, g.DurationSeconds, g.StartedAt)
	return err
}

// инкрементирует счетчик побед/поражений/ничьих игрока
func (r *GameRepository) RecordOutcome(ctx context.Context, username string, outcome domain.PlayerOutcome) error {
	if r.db == nil {
		return nil
	}

	// имя колонки только из фиксированного набора
	var column string
	switch outcome {
	case domain.OutcomeWin:
		column = "wins"
	case domain.OutcomeLoss:
		column = "losses"
	case domain.OutcomeDraw:
		column = "draws"
	default:
		return nil
	}

	_, err := r.db.Exec(ctx, `
		UPDATE players SET `+column+` = `+column+` + 1, updated_at = CURRENT_TIMESTAMP
		WHERE username = $1
	`, username)
	return err
}

// Leaderboard возвращает топ игроков по победам, затем по проценту побед
func (r *GameRepository) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if r.db == nil {
		return []domain.LeaderboardEntry{}, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT
			username, wins, losses, draws,
			CASE WHEN (wins + losses + draws) > 0
				THEN ROUND((wins::numeric / (wins + losses + draws) * 100), 1)
				ELSE 0
			END AS win_rate
		FROM players
		WHERE wins + losses + draws > 0
		ORDER BY wins DESC, win_rate DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.LeaderboardEntry{}
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.Username, &e.Wins, &e.Losses, &e.Draws, &e.WinRate); err != nil {
			return nil, err
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PlayerStats возвращает счетчики игрока; nil без ошибки, если игрок не найден
func (r *GameRepository) PlayerStats(ctx context.Context, username string) (*domain.PlayerStats, error) {
	if r.db == nil {
		return nil, nil
	}

	row := r.db.QueryRow(ctx, `
		SELECT username, wins, losses, draws FROM players WHERE username = $1
	`, username)

	var s domain.PlayerStats
	if err := row.Scan(&s.Username, &s.Wins, &s.Losses, &s.Draws); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// RecentGames возвращает последние завершенные партии
func (r *GameRepository) RecentGames(ctx context.Context, limit int) ([]domain.RecentGame, error) {
	if r.db == nil {
		return []domain.RecentGame{}, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, player1_username, player2_username, winner_username,
		       is_bot_game, result, duration_seconds, ended_at
		FROM games ORDER BY ended_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	games := []domain.RecentGame{}
	for rows.Next() {
		var g domain.RecentGame
		if err := rows.Scan(
			&g.ID, &g.Player1, &g.Player2, &g.Winner, &g.IsBotGame, &g.Result, &g.Duration, &g.EndedAt,
		); err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}
