package db

import (
	"context"
	"time"

	"nexus4/internal/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect открывает пул соединений к Postgres. Недоступная база не фатальна:
// сервер играет без персистентности, репозиторий терпит nil-пул.
func Connect(url string) *pgxpool.Pool {
	if url == "" {
		logger.Warn("db: DATABASE_URL not set, games will not be persisted")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		logger.Warn("db: connect failed, games will not be persisted", "error", err)
		return nil
	}

	if err := pool.Ping(ctx); err != nil {
		logger.Warn("db: ping failed, games will not be persisted", "error", err)
		pool.Close()
		return nil
	}

	logger.Info("db: postgres connected")
	return pool
}
