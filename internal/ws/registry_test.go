package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// соединение без сети: насосы не запускаются, исходящее читается
// прямо из очереди send
func testClient() *Client {
	return &Client{
		ID:    uuid.NewString(),
		send:  make(chan []byte, 8),
		pings: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func register(r *Registry, c *Client) {
	r.mu.Lock()
	r.clients[c.ID] = c
	r.mu.Unlock()
}

// забирает следующее исходящее сообщение клиента как map
func nextSent(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case data := <-c.send:
		var out map[string]any
		require.NoError(t, json.Unmarshal(data, &out))
		return out
	case <-time.After(time.Second):
		t.Fatal("исходящее сообщение не появилось")
		return nil
	}
}

func TestDispatch_MalformedJSON(t *testing.T) {
	r := NewRegistry("", time.Hour)
	c := testClient()

	r.dispatch(c, []byte("{not json"))

	out := nextSent(t, c)
	assert.Equal(t, "error", out["type"])
	assert.Equal(t, "Invalid message format", out["message"])
}

func TestDispatch_UnknownKind(t *testing.T) {
	r := NewRegistry("", time.Hour)
	c := testClient()

	r.dispatch(c, []byte(`{"type":"flip"}`))

	out := nextSent(t, c)
	assert.Equal(t, "error", out["type"])
	assert.Equal(t, "Unknown message type: flip", out["message"])
}

func TestDispatch_RoutesToHandler(t *testing.T) {
	r := NewRegistry("", time.Hour)
	c := testClient()

	var got ClientMessage
	var gotRaw []byte
	r.Handle(KindJoin, func(_ *Client, msg ClientMessage, raw []byte) {
		got = msg
		gotRaw = raw
	})

	payload := []byte(`{"type":"join","username":"alice"}`)
	r.dispatch(c, payload)

	assert.Equal(t, KindJoin, got.Type)
	assert.Equal(t, "alice", got.Username)
	// обработчику достаются исходные байты - нужно ретранслятору
	assert.Equal(t, payload, gotRaw)
}

func TestBindUser_RebindMovesName(t *testing.T) {
	r := NewRegistry("", time.Hour)
	c1 := testClient()
	c2 := testClient()
	register(r, c1)
	register(r, c2)

	r.BindUser(c1, "alice")
	require.Equal(t, "alice", r.Username(c1))

	// rejoin с нового соединения перетягивает имя
	r.BindUser(c2, "alice")
	assert.Equal(t, "", r.Username(c1))
	assert.Equal(t, "alice", r.Username(c2))

	// исходящее по имени уходит на новое соединение
	require.True(t, r.SendToUser("alice", ErrorMessage("ping")))
	nextSent(t, c2)
	assert.Empty(t, c1.send)
}

func TestHandleDisconnect_FiresHookOnce(t *testing.T) {
	r := NewRegistry("", time.Hour)
	c := testClient()
	register(r, c)
	r.BindUser(c, "alice")

	var closed []string
	r.OnDisconnect(func(username string) { closed = append(closed, username) })

	r.handleDisconnect(c)

	assert.Equal(t, []string{"alice"}, closed)
	assert.Equal(t, 0, r.ConnectionCount())
	assert.False(t, r.SendToUser("alice", ErrorMessage("ping")))
}

func TestHandleDisconnect_StaleConnSkipsHook(t *testing.T) {
	r := NewRegistry("", time.Hour)
	c1 := testClient()
	c2 := testClient()
	register(r, c1)
	register(r, c2)

	r.BindUser(c1, "alice")
	r.BindUser(c2, "alice")

	hookFired := false
	r.OnDisconnect(func(string) { hookFired = true })

	// закрытие устаревшего соединения не считается уходом игрока
	r.handleDisconnect(c1)

	assert.False(t, hookFired)
	assert.Equal(t, "alice", r.Username(c2))
	assert.True(t, r.SendToUser("alice", ErrorMessage("ping")))
}

func TestSendToUser_Absent(t *testing.T) {
	r := NewRegistry("", time.Hour)
	assert.False(t, r.SendToUser("ghost", ErrorMessage("ping")))
	assert.False(t, r.SendRawToUser("ghost", []byte("{}")))
}

func TestSendRawToUser_Verbatim(t *testing.T) {
	r := NewRegistry("", time.Hour)
	c := testClient()
	register(r, c)
	r.BindUser(c, "bob")

	payload := []byte(`{"type":"rtc_offer","offer":{"sdp":"x"}}`)
	require.True(t, r.SendRawToUser("bob", payload))

	select {
	case data := <-c.send:
		assert.Equal(t, payload, data)
	case <-time.After(time.Second):
		t.Fatal("исходящее сообщение не появилось")
	}
}
