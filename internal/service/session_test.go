package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"nexus4/internal/domain"
	"nexus4/internal/game"
	"nexus4/internal/ws"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNotifier записывает все исходящие сообщения по игрокам;
// рассылки идут и из таймерных горутин, поэтому под мьютексом
type fakeNotifier struct {
	mu   sync.Mutex
	msgs map[string][]ws.Message
	raw  map[string][][]byte
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		msgs: make(map[string][]ws.Message),
		raw:  make(map[string][][]byte),
	}
}

func (f *fakeNotifier) SendToUser(username string, msg ws.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs[username] = append(f.msgs[username], msg)
	return true
}

func (f *fakeNotifier) SendRawToUser(username string, data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw[username] = append(f.raw[username], data)
	return true
}

func (f *fakeNotifier) byType(username, typ string) []ws.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ws.Message
	for _, m := range f.msgs[username] {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeNotifier) lastOfType(username, typ string) (ws.Message, bool) {
	msgs := f.byType(username, typ)
	if len(msgs) == 0 {
		return ws.Message{}, false
	}
	return msgs[len(msgs)-1], true
}

type fakeStore struct {
	mu       sync.Mutex
	saved    []*domain.GameRecord
	outcomes map[string][]domain.PlayerOutcome
	upserts  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{outcomes: make(map[string][]domain.PlayerOutcome)}
}

func (f *fakeStore) UpsertPlayer(_ context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, username)
	return nil
}

func (f *fakeStore) SaveGame(_ context.Context, g *domain.GameRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, g)
	return nil
}

func (f *fakeStore) RecordOutcome(_ context.Context, username string, outcome domain.PlayerOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[username] = append(f.outcomes[username], outcome)
	return nil
}

func (f *fakeStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func (f *fakeStore) lastSaved() *domain.GameRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		return nil
	}
	return f.saved[len(f.saved)-1]
}

func (f *fakeStore) outcomesOf(username string) []domain.PlayerOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PlayerOutcome(nil), f.outcomes[username]...)
}

// fakeEvents - аналитика не под тестом, достаточно no-op
type fakeEvents struct{}

func (fakeEvents) GameStarted(string, string, string, bool)                     {}
func (fakeEvents) MoveMade(string, string, int, int)                            {}
func (fakeEvents) GameEnded(string, *string, string, int, string, string, bool) {}
func (fakeEvents) PlayerDisconnected(string, string)                            {}
func (fakeEvents) PlayerReconnected(string, string)                             {}

func newTestManager(botDelay, grace time.Duration) (*SessionManager, *fakeNotifier, *fakeStore) {
	n := newFakeNotifier()
	store := newFakeStore()
	return NewSessionManager(n, store, fakeEvents{}, botDelay, grace), n, store
}

func TestStart_NotifiesBothPlayers(t *testing.T) {
	sm, n, _ := newTestManager(time.Hour, time.Hour)

	s := sm.Start("alice", "bob", false)
	require.NotNil(t, s)

	msg, ok := n.lastOfType("alice", "gameStart")
	require.True(t, ok)
	assert.Equal(t, 1, msg.Payload["yourPlayer"])
	assert.Equal(t, "bob", msg.Payload["opponent"])
	assert.Equal(t, 1, msg.Payload["currentPlayer"])
	assert.Equal(t, false, msg.Payload["isOpponentBot"])

	msg, ok = n.lastOfType("bob", "gameStart")
	require.True(t, ok)
	assert.Equal(t, 2, msg.Payload["yourPlayer"])
	assert.Equal(t, "alice", msg.Payload["opponent"])

	assert.True(t, sm.HasSession("alice"))
	assert.True(t, sm.HasSession("bob"))
	assert.Equal(t, 1, sm.Count())
}

func TestApplyMove_Validation(t *testing.T) {
	sm, _, _ := newTestManager(time.Hour, time.Hour)

	assert.ErrorIs(t, sm.ApplyMove("ghost", 0), ErrNotInGame)

	sm.Start("alice", "bob", false)

	// первый ход за первым игроком
	assert.ErrorIs(t, sm.ApplyMove("bob", 0), ErrNotYourTurn)
	assert.ErrorIs(t, sm.ApplyMove("alice", 9), game.ErrInvalidMove)
	assert.ErrorIs(t, sm.ApplyMove("alice", -1), game.ErrInvalidMove)

	// ошибки не тронули состояние: ход все еще за первым
	require.NoError(t, sm.ApplyMove("alice", 0))
}

func TestApplyMove_BroadcastsAndAlternates(t *testing.T) {
	sm, n, _ := newTestManager(time.Hour, time.Hour)
	sm.Start("alice", "bob", false)

	require.NoError(t, sm.ApplyMove("alice", 3))

	for _, player := range []string{"alice", "bob"} {
		msg, ok := n.lastOfType(player, "move")
		require.True(t, ok, "ожидалась рассылка хода игроку %s", player)
		assert.Equal(t, 2, msg.Payload["currentPlayer"])
	}

	require.NoError(t, sm.ApplyMove("bob", 3))
	msg, _ := n.lastOfType("alice", "move")
	assert.Equal(t, 1, msg.Payload["currentPlayer"])
}

func TestApplyMove_WinEndsGame(t *testing.T) {
	sm, n, store := newTestManager(time.Hour, time.Hour)
	sm.Start("alice", "bob", false)

	// вертикаль алисы в колонке 0
	require.NoError(t, sm.ApplyMove("alice", 0))
	require.NoError(t, sm.ApplyMove("bob", 1))
	require.NoError(t, sm.ApplyMove("alice", 0))
	require.NoError(t, sm.ApplyMove("bob", 1))
	require.NoError(t, sm.ApplyMove("alice", 0))
	require.NoError(t, sm.ApplyMove("bob", 1))
	require.NoError(t, sm.ApplyMove("alice", 0))

	for _, player := range []string{"alice", "bob"} {
		msg, ok := n.lastOfType(player, "gameOver")
		require.True(t, ok)
		winner, _ := msg.Payload["winner"].(*string)
		require.NotNil(t, winner)
		assert.Equal(t, "alice", *winner)
		assert.Equal(t, "win", msg.Payload["result"])
		assert.Len(t, msg.Payload["winningCells"], 4)
	}

	assert.False(t, sm.HasSession("alice"))
	assert.False(t, sm.HasSession("bob"))
	assert.Equal(t, 0, sm.Count())

	// ходы после конца партии отклоняются
	assert.ErrorIs(t, sm.ApplyMove("bob", 2), ErrNotInGame)

	// персистентность пишется в фоне
	require.Eventually(t, func() bool { return store.savedCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	rec := store.lastSaved()
	assert.Equal(t, domain.ResultWin, rec.Result)
	require.NotNil(t, rec.Winner)
	assert.Equal(t, "alice", *rec.Winner)
	assert.Len(t, rec.Moves, 7)

	require.Eventually(t, func() bool {
		return len(store.outcomesOf("alice")) == 1 && len(store.outcomesOf("bob")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []domain.PlayerOutcome{domain.OutcomeWin}, store.outcomesOf("alice"))
	assert.Equal(t, []domain.PlayerOutcome{domain.OutcomeLoss}, store.outcomesOf("bob"))
}

func TestApplyMove_FullBoardDraw(t *testing.T) {
	sm, n, store := newTestManager(time.Hour, time.Hour)
	sm.Start("alice", "bob", false)

	// 42 хода без единой четверки: доска забивается полностью
	cols := []int{
		0, 1, 0, 1, 1, 0, 1, 0, 0, 1, 0, 1,
		2, 3, 2, 3, 3, 2, 3, 2, 2, 3, 2, 3,
		4, 6, 4, 6, 6, 4, 6, 4, 4, 5, 4, 5,
		5, 6, 5, 5, 6, 5,
	}
	players := [2]string{"alice", "bob"}
	for i, col := range cols {
		require.NoError(t, sm.ApplyMove(players[i%2], col), "ход %d в колонку %d", i+1, col)
	}

	for _, player := range players {
		msg, ok := n.lastOfType(player, "gameOver")
		require.True(t, ok)
		assert.Equal(t, "draw", msg.Payload["result"])
		winner, _ := msg.Payload["winner"].(*string)
		assert.Nil(t, winner)
		assert.Len(t, msg.Payload["winningCells"], 0)
	}

	assert.False(t, sm.HasSession("alice"))
	assert.False(t, sm.HasSession("bob"))

	require.Eventually(t, func() bool { return store.savedCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	rec := store.lastSaved()
	assert.Equal(t, domain.ResultDraw, rec.Result)
	assert.Nil(t, rec.Winner)
	assert.Len(t, rec.Moves, 42)

	require.Eventually(t, func() bool {
		return len(store.outcomesOf("alice")) == 1 && len(store.outcomesOf("bob")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []domain.PlayerOutcome{domain.OutcomeDraw}, store.outcomesOf("alice"))
	assert.Equal(t, []domain.PlayerOutcome{domain.OutcomeDraw}, store.outcomesOf("bob"))
}

func TestBotGame_BotMovesAfterDelay(t *testing.T) {
	sm, n, _ := newTestManager(5*time.Millisecond, time.Hour)
	sm.Start("alice", BotName, true)

	msg, ok := n.lastOfType("alice", "gameStart")
	require.True(t, ok)
	assert.Equal(t, true, msg.Payload["isOpponentBot"])

	require.NoError(t, sm.ApplyMove("alice", 0))

	// после паузы бот отвечает и возвращает ход человеку
	require.Eventually(t, func() bool {
		msg, ok := n.lastOfType("alice", "move")
		return ok && msg.Payload["currentPlayer"] == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDisconnect_GraceExpiresToForfeit(t *testing.T) {
	sm, n, store := newTestManager(time.Hour, 20*time.Millisecond)
	sm.Start("alice", "bob", false)

	sm.HandleDisconnect("alice")

	_, ok := n.lastOfType("bob", "opponentDisconnected")
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok := n.lastOfType("bob", "gameOver")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	msg, _ := n.lastOfType("bob", "gameOver")
	winner, _ := msg.Payload["winner"].(*string)
	require.NotNil(t, winner)
	assert.Equal(t, "bob", *winner)
	assert.Equal(t, "forfeit", msg.Payload["result"])
	assert.False(t, sm.HasSession("bob"))

	require.Eventually(t, func() bool { return store.savedCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.ResultForfeit, store.lastSaved().Result)
}

func TestReconnect_CancelsForfeit(t *testing.T) {
	sm, n, _ := newTestManager(time.Hour, 60*time.Millisecond)
	sm.Start("alice", "bob", false)
	require.NoError(t, sm.ApplyMove("alice", 3))

	sm.HandleDisconnect("alice")
	require.True(t, sm.Reconnect("alice", ""))

	msg, ok := n.lastOfType("alice", "reconnected")
	require.True(t, ok)
	assert.Equal(t, 1, msg.Payload["yourPlayer"])
	assert.Equal(t, 2, msg.Payload["currentPlayer"])
	assert.Equal(t, "bob", msg.Payload["opponent"])

	_, ok = n.lastOfType("bob", "opponentReconnected")
	require.True(t, ok)

	// льготное окно истекло, но форфейта нет - партия жива
	time.Sleep(120 * time.Millisecond)
	assert.True(t, sm.HasSession("alice"))
	_, ok = n.lastOfType("bob", "gameOver")
	assert.False(t, ok)

	// повторный rejoin без дисконнекта - обычный join
	assert.False(t, sm.Reconnect("alice", ""))
}

func TestReconnect_WithoutSession(t *testing.T) {
	sm, _, _ := newTestManager(time.Hour, time.Hour)
	assert.False(t, sm.Reconnect("ghost", ""))
}

func TestReconnect_GameIDMismatch(t *testing.T) {
	sm, n, _ := newTestManager(time.Hour, time.Hour)
	s := sm.Start("alice", "bob", false)
	sm.HandleDisconnect("alice")

	// rejoin с чужим id не возобновляет партию
	assert.False(t, sm.Reconnect("alice", "stale-game"))
	_, ok := n.lastOfType("alice", "reconnected")
	assert.False(t, ok)

	// со своим - возобновляет
	assert.True(t, sm.Reconnect("alice", s.ID))
}

func TestDisconnect_BotGameForfeitsWithoutWinner(t *testing.T) {
	sm, _, store := newTestManager(time.Hour, time.Hour)
	sm.Start("alice", BotName, true)

	sm.HandleDisconnect("alice")

	assert.False(t, sm.HasSession("alice"))

	require.Eventually(t, func() bool { return store.savedCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	rec := store.lastSaved()
	assert.Equal(t, domain.ResultForfeit, rec.Result)
	// поражение человеку и победа боту не записываются
	assert.Nil(t, rec.Winner)
	assert.Empty(t, store.outcomesOf("alice"))
	assert.Empty(t, store.outcomesOf(BotName))
}

func TestRelay_ForwardsRawToOpponent(t *testing.T) {
	sm, n, _ := newTestManager(time.Hour, time.Hour)
	sm.Start("alice", "bob", false)

	payload := []byte(`{"type":"voice_request"}`)
	sm.Relay("alice", payload)

	n.mu.Lock()
	defer n.mu.Unlock()
	require.Len(t, n.raw["bob"], 1)
	assert.Equal(t, payload, n.raw["bob"][0])
	assert.Empty(t, n.raw["alice"])
}

func TestRelay_NoopForBotGame(t *testing.T) {
	sm, n, _ := newTestManager(time.Hour, time.Hour)
	sm.Start("alice", BotName, true)

	sm.Relay("alice", []byte(`{"type":"rtc_offer"}`))

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Empty(t, n.raw[BotName])
}
