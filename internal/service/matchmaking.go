package service

import (
	"errors"
	"sync"
	"time"

	"nexus4/internal/logger"
	"nexus4/internal/metrics"
	"nexus4/internal/ws"
)

var (
	ErrAlreadyQueued = errors.New("already in queue")
	ErrAlreadyInGame = errors.New("already in a game")
)

type queueEntry struct {
	username string
	queuedAt time.Time
	timer    *time.Timer
}

// Matchmaking - очередь поиска соперника. Пары собираются по принципу
// FIFO: новый игрок встает в пару с тем, кто ждет дольше всех. Если пары
// нет за отведенное время, таймер подставляет бота.
type Matchmaking struct {
	mu    sync.Mutex
	queue map[string]*queueEntry

	timeout  time.Duration
	notifier Notifier
	sessions *SessionManager
}

func NewMatchmaking(timeout time.Duration, n Notifier, sessions *SessionManager) *Matchmaking {
	return &Matchmaking{
		queue:    make(map[string]*queueEntry),
		timeout:  timeout,
		notifier: n,
		sessions: sessions,
	}
}

// Enqueue ставит игрока в очередь или сразу собирает пару.
// Ожидавший дольше становится первым игроком и ходит первым.
func (m *Matchmaking) Enqueue(username string) error {
	m.mu.Lock()

	if _, ok := m.queue[username]; ok {
		m.mu.Unlock()
		return ErrAlreadyQueued
	}
	if m.sessions.HasSession(username) {
		m.mu.Unlock()
		return ErrAlreadyInGame
	}

	var waiting *queueEntry
	for _, e := range m.queue {
		if waiting == nil || e.queuedAt.Before(waiting.queuedAt) {
			waiting = e
		}
	}

	if waiting != nil {
		waiting.timer.Stop()
		delete(m.queue, waiting.username)
		metrics.QueueSize.Set(float64(len(m.queue)))

		logger.Info("matchmaking: paired", "player1", waiting.username, "player2", username)
		// сессия индексируется до освобождения замка очереди, иначе
		// снятый с очереди игрок успевает встать в нее заново, пока
		// HasSession его еще не видит
		m.sessions.Start(waiting.username, username, false)
		m.mu.Unlock()
		return nil
	}

	entry := &queueEntry{username: username, queuedAt: time.Now()}
	entry.timer = time.AfterFunc(m.timeout, func() {
		m.botFallback(username)
	})
	m.queue[username] = entry
	metrics.QueueSize.Set(float64(len(m.queue)))
	m.mu.Unlock()

	m.notifier.SendToUser(username, ws.Message{
		Type:    "queued",
		Payload: map[string]any{"message": "Searching for opponent..."},
	})
	return nil
}

// botFallback срабатывает по таймауту ожидания; запись могла исчезнуть
// (пара нашлась или отмена) пока таймер доходил - тогда no-op
func (m *Matchmaking) botFallback(username string) {
	m.mu.Lock()
	if _, ok := m.queue[username]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.queue, username)
	metrics.QueueSize.Set(float64(len(m.queue)))

	logger.Info("matchmaking: no opponent, starting bot game", "player", username)
	// тот же порядок, что при паре: сессия появляется в индексе
	// до того, как очередь снова открыта для этого игрока
	m.sessions.Start(username, BotName, true)
	m.mu.Unlock()
}

// Cancel убирает игрока из очереди по его запросу. Идемпотентен:
// повторная отмена и отмена без очереди - тихий no-op без уведомления.
func (m *Matchmaking) Cancel(username string) {
	m.mu.Lock()
	entry, ok := m.queue[username]
	if !ok {
		m.mu.Unlock()
		return
	}
	entry.timer.Stop()
	delete(m.queue, username)
	metrics.QueueSize.Set(float64(len(m.queue)))
	m.mu.Unlock()

	m.notifier.SendToUser(username, ws.Message{Type: "queueCancelled", Payload: map[string]any{}})
}

// Remove молча снимает игрока с очереди; путь обработки дисконнекта
func (m *Matchmaking) Remove(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.queue[username]
	if !ok {
		return
	}
	entry.timer.Stop()
	delete(m.queue, username)
	metrics.QueueSize.Set(float64(len(m.queue)))
}

func (m *Matchmaking) QueueSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
