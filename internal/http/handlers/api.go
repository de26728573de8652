package handlers

import (
	"net/http"
	"strconv"
	"time"

	"nexus4/internal/cache"
	"nexus4/internal/logger"
	"nexus4/internal/repository"
	"nexus4/internal/service"
	"nexus4/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// APIHandler обслуживает REST-срез: здоровье, таблицу лидеров,
// статистику игрока и последние партии
type APIHandler struct {
	registry    *ws.Registry
	matchmaking *service.Matchmaking
	sessions    *service.SessionManager
	repo        *repository.GameRepository
	leaderboard *cache.LeaderboardCache
}

func NewAPIHandler(reg *ws.Registry, mm *service.Matchmaking, sessions *service.SessionManager, repo *repository.GameRepository, lb *cache.LeaderboardCache) *APIHandler {
	return &APIHandler{
		registry:    reg,
		matchmaking: mm,
		sessions:    sessions,
		repo:        repo,
		leaderboard: lb,
	}
}

func (h *APIHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/ws", h.registry.HandleWS())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/leaderboard", h.getLeaderboard)
		api.GET("/players/:username/stats", h.getPlayerStats)
		api.GET("/games/recent", h.getRecentGames)
	}
}

func (h *APIHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": h.registry.ConnectionCount(),
		"queueSize":   h.matchmaking.QueueSize(),
		"activeGames": h.sessions.Count(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

// таблица лидеров читается сквозь Redis-кэш; промах идет в Postgres
// и прогревает кэш на настроенный TTL
func (h *APIHandler) getLeaderboard(c *gin.Context) {
	limit := queryLimit(c, 10)

	if entries, ok := h.leaderboard.Get(c.Request.Context(), limit); ok {
		c.JSON(http.StatusOK, gin.H{"leaderboard": entries, "cached": true})
		return
	}

	entries, err := h.repo.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		logger.Error("api: leaderboard query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch leaderboard"})
		return
	}

	h.leaderboard.Set(c.Request.Context(), limit, entries)
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries, "cached": false})
}

func (h *APIHandler) getPlayerStats(c *gin.Context) {
	username := c.Param("username")

	stats, err := h.repo.PlayerStats(c.Request.Context(), username)
	if err != nil {
		logger.Error("api: player stats query failed", "player", username, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch player stats"})
		return
	}
	if stats == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Player not found"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *APIHandler) getRecentGames(c *gin.Context) {
	limit := queryLimit(c, 10)

	games, err := h.repo.RecentGames(c.Request.Context(), limit)
	if err != nil {
		logger.Error("api: recent games query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch recent games"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"games": games})
}

// queryLimit разбирает ?limit= с дефолтом и верхней границей
func queryLimit(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > 100 {
		return 100
	}
	return n
}
