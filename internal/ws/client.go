package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"nexus4/internal/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Client - одно живое транспортное соединение. Владелец - Registry;
// идентичность игрока хранится только в индексах Registry, не здесь.
type Client struct {
	ID   string
	conn *websocket.Conn

	send  chan []byte
	pings chan struct{}
	done  chan struct{}

	// сбрасывается перед пингом, выставляется обработчиком pong;
	// проверяется сборщиком heartbeat в Registry
	alive atomic.Bool

	registry  *Registry
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, reg *Registry) *Client {
	c := &Client{
		ID:       uuid.NewString(),
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		pings:    make(chan struct{}, 1),
		done:     make(chan struct{}),
		registry: reg,
	}
	c.alive.Store(true)
	return c
}

func (c *Client) run() {
	go c.writePump()
	c.readPump()
}

// read
func (c *Client) readPump() {
	defer c.terminate()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			logger.Debug("ws: read closed", "conn", c.ID, "error", err)
			return
		}
		c.registry.dispatch(c, msg)
	}
}

// write
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("ws: write failed", "conn", c.ID, "error", err)
				return
			}

		case <-c.pings:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// ping ставит пинг в очередь записи; не блокирует сборщик heartbeat
func (c *Client) ping() {
	select {
	case c.pings <- struct{}{}:
	default:
	}
}

// trySend ставит сообщение в очередь записи; для закрытого или
// захлебнувшегося соединения - тихий no-op
func (c *Client) trySend(data []byte) {
	select {
	case <-c.done:
	default:
		select {
		case c.send <- data:
		default:
			logger.Warn("ws: send buffer full, dropping message", "conn", c.ID)
		}
	}
}

// terminate закрывает соединение и запускает путь дисконнекта ровно один раз,
// независимо от того, кто его вызвал - readPump или heartbeat
func (c *Client) terminate() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
		c.registry.handleDisconnect(c)
	})
}
