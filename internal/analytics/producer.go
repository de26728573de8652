package analytics

import (
	"context"
	"encoding/json"
	"time"

	"nexus4/internal/logger"

	"github.com/segmentio/kafka-go"
)

const topic = "game-events"

// событие жизненного цикла партии; ключ сообщения - id партии,
// чтобы события одной партии попадали в одну партицию по порядку
type GameEvent struct {
	Type      string         `json:"type"`
	GameID    string         `json:"gameId"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Producer публикует события в Kafka строго fire-and-forget: недоступный
// брокер или ошибка записи логируются и глотаются, геймплей их не ждет.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer создает продюсер; пустой адрес брокера выключает аналитику
func NewProducer(broker string) *Producer {
	if broker == "" {
		logger.Warn("analytics: KAFKA_BROKER not set, events will not be published")
		return &Producer{}
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("analytics: publish failed", "error", err, "messages", len(messages))
			}
		},
	}

	logger.Info("analytics: kafka producer ready", "broker", broker, "topic", topic)
	return &Producer{writer: w}
}

func (p *Producer) publish(eventType, gameID string, data map[string]any) {
	if p.writer == nil {
		return
	}

	event := GameEvent{
		Type:      eventType,
		GameID:    gameID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}

	value, err := json.Marshal(event)
	if err != nil {
		logger.Error("analytics: marshal failed", "type", eventType, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Async-writer ставит сообщение в очередь и возвращается сразу
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(gameID),
		Value: value,
		Time:  time.Now(),
	}); err != nil {
		logger.Warn("analytics: enqueue failed", "type", eventType, "error", err)
	}
}

func (p *Producer) GameStarted(gameID, player1, player2 string, isBotGame bool) {
	p.publish("game_start", gameID, map[string]any{
		"player1":   player1,
		"player2":   player2,
		"isBotGame": isBotGame,
	})
}

func (p *Producer) MoveMade(gameID, player string, column, playerNumber int) {
	p.publish("move", gameID, map[string]any{
		"player":       player,
		"column":       column,
		"playerNumber": playerNumber,
	})
}

func (p *Producer) GameEnded(gameID string, winner *string, result string, durationSeconds int, player1, player2 string, isBotGame bool) {
	p.publish("game_end", gameID, map[string]any{
		"winner":          winner,
		"result":          result,
		"durationSeconds": durationSeconds,
		"player1":         player1,
		"player2":         player2,
		"isBotGame":       isBotGame,
	})
}

func (p *Producer) PlayerDisconnected(gameID, player string) {
	p.publish("player_disconnect", gameID, map[string]any{"player": player})
}

func (p *Producer) PlayerReconnected(gameID, player string) {
	p.publish("player_reconnect", gameID, map[string]any{"player": player})
}

func (p *Producer) Close() {
	if p.writer != nil {
		_ = p.writer.Close()
	}
}
