package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"nexus4/internal/domain"
	"nexus4/internal/game"
	"nexus4/internal/logger"
	"nexus4/internal/metrics"
	"nexus4/internal/ws"

	"github.com/google/uuid"
)

// имя автономного противника в журнале ходов и записях партий
const BotName = "Bot"

var (
	ErrNotInGame   = errors.New("not in a game")
	ErrNotYourTurn = errors.New("not your turn")
)

// Notifier - исходящий канал к игрокам; реализуется ws.Registry.
// Доставка отключенному игроку - тихий no-op, вызывающие это не проверяют.
type Notifier interface {
	SendToUser(username string, msg ws.Message) bool
	SendRawToUser(username string, data []byte) bool
}

// GameStore - приемник персистентности; вызывается один раз на завершение
// сессии, всегда в фоне, сбои не трогают геймплей
type GameStore interface {
	UpsertPlayer(ctx context.Context, username string) error
	SaveGame(ctx context.Context, g *domain.GameRecord) error
	RecordOutcome(ctx context.Context, username string, outcome domain.PlayerOutcome) error
}

// EventPublisher - приемник аналитики жизненного цикла партии
type EventPublisher interface {
	GameStarted(gameID, player1, player2 string, isBotGame bool)
	MoveMade(gameID, player string, column, playerNumber int)
	GameEnded(gameID string, winner *string, result string, durationSeconds int, player1, player2 string, isBotGame bool)
	PlayerDisconnected(gameID, player string)
	PlayerReconnected(gameID, player string)
}

// GameSession - одна партия от создания до завершения. Все переходы
// состояния сериализованы мьютексом сессии: ход, срабатывание бота,
// дисконнект, реконнект и истечение льготного окна не перемешиваются.
type GameSession struct {
	ID      string
	Player1 string
	Player2 string
	IsBot   bool

	mu        sync.Mutex
	board     *game.Board
	current   game.Side
	startedAt time.Time
	moves     []domain.Move
	ended     bool

	botTimer *time.Timer
	// записи об отсутствующих участниках; существуют только пока у живой
	// сессии человек без соединения
	absent map[string]*disconnectRecord
}

type disconnectRecord struct {
	timer *time.Timer
	since time.Time
}

func (s *GameSession) sideOf(username string) game.Side {
	if s.Player1 == username {
		return game.Side1
	}
	if !s.IsBot && s.Player2 == username {
		return game.Side2
	}
	return game.Empty
}

func (s *GameSession) opponentOf(username string) string {
	if s.Player1 == username {
		return s.Player2
	}
	return s.Player1
}

// SessionManager владеет сессиями и их индексом игрок -> сессия.
// Инвариант: один человек состоит максимум в одной сессии.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*GameSession
	byPlayer map[string]string

	notifier Notifier
	store    GameStore
	events   EventPublisher

	botDelay time.Duration
	grace    time.Duration
}

func NewSessionManager(n Notifier, store GameStore, events EventPublisher, botDelay, grace time.Duration) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*GameSession),
		byPlayer: make(map[string]string),
		notifier: n,
		store:    store,
		events:   events,
		botDelay: botDelay,
		grace:    grace,
	}
}

// Start создает сессию, индексирует участников и рассылает gameStart.
// player1 - тот, кто ждал дольше; первый ход всегда за стороной 1.
func (m *SessionManager) Start(player1, player2 string, isBot bool) *GameSession {
	s := &GameSession{
		ID:        uuid.NewString(),
		Player1:   player1,
		Player2:   player2,
		IsBot:     isBot,
		board:     game.NewBoard(),
		current:   game.Side1,
		startedAt: time.Now(),
		absent:    make(map[string]*disconnectRecord),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.byPlayer[player1] = s.ID
	if !isBot {
		m.byPlayer[player2] = s.ID
	}
	m.mu.Unlock()

	metrics.ActiveSessions.Inc()
	logger.Info("session: game started", "game", s.ID, "player1", player1, "player2", player2, "bot", isBot)

	s.mu.Lock()
	m.notifier.SendToUser(player1, gameStartMessage(s, game.Side1))
	if !isBot {
		m.notifier.SendToUser(player2, gameStartMessage(s, game.Side2))
	}
	s.mu.Unlock()

	go m.events.GameStarted(s.ID, player1, player2, isBot)
	return s
}

func gameStartMessage(s *GameSession, you game.Side) ws.Message {
	opponent := s.Player2
	if you == game.Side2 {
		opponent = s.Player1
	}
	return ws.Message{Type: "gameStart", Payload: map[string]any{
		"gameId":        s.ID,
		"board":         s.board.Clone(),
		"currentPlayer": int(s.current),
		"yourPlayer":    int(you),
		"opponent":      opponent,
		"isOpponentBot": you == game.Side1 && s.IsBot,
	}}
}

// HasSession сообщает, числится ли игрок в живой сессии
func (m *SessionManager) HasSession(username string) bool {
	return m.sessionFor(username) != nil
}

func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *SessionManager) sessionFor(username string) *GameSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPlayer[username]
	if !ok {
		return nil
	}
	return m.sessions[id]
}

// ApplyMove валидирует и применяет ход игрока. Ошибки валидации не меняют
// состояние; успешный ход либо завершает партию, либо передает очередь хода.
func (m *SessionManager) ApplyMove(username string, column int) error {
	s := m.sessionFor(username)
	if s == nil {
		return ErrNotInGame
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// сессия могла завершиться между поиском и взятием блокировки
	if s.ended {
		return ErrNotInGame
	}

	side := s.sideOf(username)
	if side == game.Empty {
		return ErrNotInGame
	}
	if s.current != side {
		return ErrNotYourTurn
	}

	row, err := s.board.Drop(column, side)
	if err != nil {
		return game.ErrInvalidMove
	}

	s.moves = append(s.moves, domain.Move{
		Player:    username,
		Column:    column,
		Timestamp: time.Now().UnixMilli(),
	})
	go m.events.MoveMade(s.ID, username, column, int(side))

	if s.board.Winner(row, column) != game.Empty {
		m.endLocked(s, username, domain.ResultWin, row, column)
		return nil
	}
	if s.board.IsFull() {
		m.endLocked(s, "", domain.ResultDraw, row, column)
		return nil
	}

	s.current = side.Opponent()
	m.broadcastMoveLocked(s)

	if s.IsBot && s.current == game.Side2 {
		m.scheduleBotLocked(s)
	}
	return nil
}

func (m *SessionManager) scheduleBotLocked(s *GameSession) {
	s.botTimer = time.AfterFunc(m.botDelay, func() {
		m.botTurn(s)
	})
}

// botTurn - отложенный ход бота. Сессия могла завершиться или очередь хода
// смениться, пока таймер ждал, поэтому сначала перепроверка под замком.
func (m *SessionManager) botTurn(s *GameSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended || !s.IsBot || s.current != game.Side2 {
		return
	}

	col := game.BotMove(s.board, game.Side2)
	if col < 0 {
		return
	}
	row, err := s.board.Drop(col, game.Side2)
	if err != nil {
		return
	}

	s.moves = append(s.moves, domain.Move{
		Player:    BotName,
		Column:    col,
		Timestamp: time.Now().UnixMilli(),
	})
	go m.events.MoveMade(s.ID, BotName, col, 2)

	if s.board.Winner(row, col) != game.Empty {
		m.endLocked(s, BotName, domain.ResultWin, row, col)
		return
	}
	if s.board.IsFull() {
		m.endLocked(s, "", domain.ResultDraw, row, col)
		return
	}

	s.current = game.Side1
	m.broadcastMoveLocked(s)
}

func (m *SessionManager) broadcastMoveLocked(s *GameSession) {
	msg := ws.Message{Type: "move", Payload: map[string]any{
		"board":         s.board.Clone(),
		"currentPlayer": int(s.current),
	}}
	m.notifier.SendToUser(s.Player1, msg)
	if !s.IsBot {
		m.notifier.SendToUser(s.Player2, msg)
	}
}

// HandleDisconnect - транспорт игрока закрылся. В партии с ботом сессия
// завершается сразу (реконнекта нет); в партии людей открывается льготное
// окно, в течение которого rejoin сохраняет партию.
func (m *SessionManager) HandleDisconnect(username string) {
	s := m.sessionFor(username)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}

	if s.IsBot {
		// форфейт партии с ботом не записывает победителя
		m.endLocked(s, "", domain.ResultForfeit, -1, -1)
		return
	}

	if s.absent[username] != nil {
		return
	}

	rec := &disconnectRecord{since: time.Now()}
	rec.timer = time.AfterFunc(m.grace, func() {
		m.graceExpired(s, username)
	})
	s.absent[username] = rec

	m.notifier.SendToUser(s.opponentOf(username), ws.Message{
		Type:    "opponentDisconnected",
		Payload: map[string]any{"timeout": int(m.grace.Seconds())},
	})
	go m.events.PlayerDisconnected(s.ID, username)
	logger.Info("session: player disconnected, grace started", "game", s.ID, "player", username)
}

// graceExpired срабатывает по таймеру льготного окна; если игрок успел
// вернуться, запись уже снята и таймер - no-op
func (m *SessionManager) graceExpired(s *GameSession, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended || s.absent[username] == nil {
		return
	}
	delete(s.absent, username)

	logger.Info("session: grace expired, forfeiting", "game", s.ID, "player", username)
	m.endLocked(s, s.opponentOf(username), domain.ResultForfeit, -1, -1)
}

// Reconnect возвращает игрока в партию в течение льготного окна.
// false означает "нечего возобновлять" - вызывающий обрабатывает как
// обычный join. Непустой gameID должен совпадать с живой партией:
// rejoin со старым id после новой очереди не должен цеплять чужую
// сессию. Повторный rejoin после успешного - тоже false, без
// дублирования уведомлений.
func (m *SessionManager) Reconnect(username, gameID string) bool {
	s := m.sessionFor(username)
	if s == nil {
		return false
	}
	if gameID != "" && gameID != s.ID {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.absent[username]
	if s.ended || rec == nil {
		return false
	}

	rec.timer.Stop()
	delete(s.absent, username)

	side := s.sideOf(username)
	m.notifier.SendToUser(username, ws.Message{Type: "reconnected", Payload: map[string]any{
		"gameId":        s.ID,
		"board":         s.board.Clone(),
		"currentPlayer": int(s.current),
		"yourPlayer":    int(side),
		"opponent":      s.opponentOf(username),
		"isOpponentBot": side == game.Side1 && s.IsBot,
	}})
	m.notifier.SendToUser(s.opponentOf(username), ws.Message{Type: "opponentReconnected", Payload: map[string]any{}})

	go m.events.PlayerReconnected(s.ID, username)
	logger.Info("session: player reconnected", "game", s.ID, "player", username)
	return true
}

// Relay пересылает непрозрачное сообщение (голос/RTC) второму участнику
// как есть; вне сессии или в партии с ботом - тихий no-op
func (m *SessionManager) Relay(username string, raw []byte) {
	if username == "" {
		return
	}
	s := m.sessionFor(username)
	if s == nil || s.IsBot {
		return
	}
	m.notifier.SendRawToUser(s.opponentOf(username), raw)
}

// endLocked - единственная точка перехода в терминальное состояние.
// Вызывается под мьютексом сессии; гасит все таймеры, рассылает gameOver,
// снимает индексы и в фоне уведомляет персистентность и аналитику.
func (m *SessionManager) endLocked(s *GameSession, winnerName string, result domain.GameResult, lastRow, lastCol int) {
	if s.ended {
		return
	}
	s.ended = true

	if s.botTimer != nil {
		s.botTimer.Stop()
		s.botTimer = nil
	}
	for name, rec := range s.absent {
		rec.timer.Stop()
		delete(s.absent, name)
	}

	winningCells := [][2]int{}
	if result == domain.ResultWin {
		winningCells = s.board.WinningCells(lastRow, lastCol)
	}

	duration := int(time.Since(s.startedAt).Seconds())

	var winner *string
	if winnerName != "" {
		w := winnerName
		winner = &w
	}

	msg := ws.Message{Type: "gameOver", Payload: map[string]any{
		"board":        s.board.Clone(),
		"winner":       winner,
		"result":       string(result),
		"winningCells": winningCells,
		"duration":     duration,
	}}
	m.notifier.SendToUser(s.Player1, msg)
	if !s.IsBot {
		m.notifier.SendToUser(s.Player2, msg)
	}

	m.mu.Lock()
	delete(m.sessions, s.ID)
	delete(m.byPlayer, s.Player1)
	if !s.IsBot {
		delete(m.byPlayer, s.Player2)
	}
	m.mu.Unlock()

	metrics.ActiveSessions.Dec()
	metrics.GamesFinished.WithLabelValues(string(result)).Inc()
	logger.Info("session: game over", "game", s.ID, "result", result, "winner", winnerName, "duration_s", duration)

	record := &domain.GameRecord{
		ID:              s.ID,
		Player1:         s.Player1,
		Player2:         s.Player2,
		Winner:          winner,
		IsBotGame:       s.IsBot,
		Moves:           append([]domain.Move(nil), s.moves...),
		Result:          result,
		DurationSeconds: duration,
		StartedAt:       s.startedAt,
	}

	go m.persist(record, winnerName)
	go m.events.GameEnded(s.ID, winner, string(result), duration, s.Player1, s.Player2, s.IsBot)
}

// persist пишет запись партии и счетчики игроков; любые сбои только логируются
func (m *SessionManager) persist(record *domain.GameRecord, winnerName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.store.SaveGame(ctx, record); err != nil {
		logger.Warn("session: game store failed", "game", record.ID, "error", err)
	}

	recordOutcome := func(username string, outcome domain.PlayerOutcome) {
		if username == "" || username == BotName {
			return
		}
		if err := m.store.RecordOutcome(ctx, username, outcome); err != nil {
			logger.Warn("session: stats update failed", "player", username, "error", err)
		}
	}

	switch record.Result {
	case domain.ResultDraw:
		recordOutcome(record.Player1, domain.OutcomeDraw)
		recordOutcome(record.Player2, domain.OutcomeDraw)
	case domain.ResultWin, domain.ResultForfeit:
		// форфейт партии с ботом приходит без победителя - исход не пишется никому
		if winnerName == "" {
			return
		}
		recordOutcome(winnerName, domain.OutcomeWin)
		loser := record.Player1
		if loser == winnerName {
			loser = record.Player2
		}
		recordOutcome(loser, domain.OutcomeLoss)
	}
}
