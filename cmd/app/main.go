package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nexus4/internal/analytics"
	"nexus4/internal/cache"
	"nexus4/internal/config"
	"nexus4/internal/db"
	"nexus4/internal/http/handlers"
	"nexus4/internal/logger"
	"nexus4/internal/repository"
	"nexus4/internal/service"
	"nexus4/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Version устанавливается при сборке
var Version = "dev"

func main() {
	cfg := config.Load()

	// Инициализация структурированного логгера
	logger.Init(cfg.LogLevel, cfg.LogFormat == "json")
	log := logger.Get()

	dbPool := db.Connect(cfg.DatabaseURL)
	if dbPool != nil {
		defer dbPool.Close()
	}

	// Redis опционален; без него лидерборд ходит в базу напрямую
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
	}

	producer := analytics.NewProducer(cfg.KafkaBroker)
	defer producer.Close()

	repo := repository.NewGameRepository(dbPool)
	leaderboard := cache.NewLeaderboardCache(rdb, cfg.LeaderboardTTL)

	registry := ws.NewRegistry(cfg.AllowedOrigin, cfg.HeartbeatInterval)
	sessions := service.NewSessionManager(registry, repo, producer, cfg.BotMoveDelay, cfg.ReconnectGrace)
	matchmaking := service.NewMatchmaking(cfg.QueueTimeout, registry, sessions)
	service.RegisterHandlers(registry, matchmaking, sessions, repo)
	registry.StartHeartbeat()

	r := gin.Default()

	// CORS для прода и связи фронта с бэкендом(разные домены)
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	api := handlers.NewAPIHandler(registry, matchmaking, sessions, repo, leaderboard)
	api.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		log.Info("server started", "port", cfg.AppPort, "version", Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	registry.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
