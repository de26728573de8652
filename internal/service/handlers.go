package service

import (
	"context"
	"errors"
	"time"

	"nexus4/internal/game"
	"nexus4/internal/logger"
	"nexus4/internal/ws"
)

// RegisterHandlers связывает типы входящих сообщений с матчмейкингом и
// сессиями. Вся валидация идентичности здесь: до join соединение анонимно
// и игровые команды отклоняются.
func RegisterHandlers(reg *ws.Registry, mm *Matchmaking, sessions *SessionManager, store GameStore) {
	reg.Handle(ws.KindJoin, func(c *ws.Client, msg ws.ClientMessage, _ []byte) {
		if msg.Username == "" {
			reg.Send(c, ws.ErrorMessage("Username is required"))
			return
		}
		reg.BindUser(c, msg.Username)
		go upsertPlayer(store, msg.Username)
		reg.Send(c, ws.Message{Type: "joined", Payload: map[string]any{"username": msg.Username}})
	})

	reg.Handle(ws.KindFindGame, func(c *ws.Client, _ ws.ClientMessage, _ []byte) {
		username := reg.Username(c)
		if username == "" {
			reg.Send(c, ws.ErrorMessage("Join first"))
			return
		}
		if err := mm.Enqueue(username); err != nil {
			reg.Send(c, ws.ErrorMessage(clientError(err)))
		}
	})

	reg.Handle(ws.KindCancelQueue, func(c *ws.Client, _ ws.ClientMessage, _ []byte) {
		username := reg.Username(c)
		if username == "" {
			reg.Send(c, ws.ErrorMessage("Join first"))
			return
		}
		mm.Cancel(username)
	})

	reg.Handle(ws.KindMove, func(c *ws.Client, msg ws.ClientMessage, _ []byte) {
		username := reg.Username(c)
		if username == "" {
			reg.Send(c, ws.ErrorMessage("Join first"))
			return
		}
		if msg.Column == nil {
			reg.Send(c, ws.ErrorMessage("Invalid move"))
			return
		}
		if err := sessions.ApplyMove(username, *msg.Column); err != nil {
			reg.Send(c, ws.ErrorMessage(clientError(err)))
		}
	})

	// rejoin: сперва попытка вернуться в живую сессию; если возвращаться
	// некуда - ведет себя как обычный join
	reg.Handle(ws.KindRejoin, func(c *ws.Client, msg ws.ClientMessage, _ []byte) {
		if msg.Username == "" {
			reg.Send(c, ws.ErrorMessage("Username is required"))
			return
		}
		reg.BindUser(c, msg.Username)
		if sessions.Reconnect(msg.Username, msg.GameID) {
			return
		}
		go upsertPlayer(store, msg.Username)
		reg.Send(c, ws.Message{Type: "joined", Payload: map[string]any{"username": msg.Username}})
	})

	// голос и RTC-сигналинг сервер не разбирает - байты уходят сопернику как есть
	for _, kind := range ws.RelayKinds {
		reg.Handle(kind, func(c *ws.Client, _ ws.ClientMessage, raw []byte) {
			sessions.Relay(reg.Username(c), raw)
		})
	}

	reg.OnDisconnect(func(username string) {
		mm.Remove(username)
		sessions.HandleDisconnect(username)
	})
}

func upsertPlayer(store GameStore, username string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.UpsertPlayer(ctx, username); err != nil {
		logger.Warn("handlers: player upsert failed", "player", username, "error", err)
	}
}

// clientError переводит внутренние ошибки в тексты протокола
func clientError(err error) string {
	switch {
	case errors.Is(err, ErrNotInGame):
		return "Not in a game"
	case errors.Is(err, ErrNotYourTurn):
		return "Not your turn"
	case errors.Is(err, game.ErrInvalidMove):
		return "Invalid move"
	case errors.Is(err, ErrAlreadyQueued):
		return "Already in queue"
	case errors.Is(err, ErrAlreadyInGame):
		return "Already in a game"
	default:
		return err.Error()
	}
}
