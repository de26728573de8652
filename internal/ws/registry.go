package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"nexus4/internal/logger"
	"nexus4/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// HandlerFunc обрабатывает одно входящее сообщение; raw - исходные байты,
// нужные ретранслятору голосового канала
type HandlerFunc func(c *Client, msg ClientMessage, raw []byte)

// Registry владеет множеством живых соединений и их индексами:
// id соединения -> Client, имя игрока -> id соединения. Разбирает входящие
// сообщения и маршрутизирует их по таблице обработчиков.
type Registry struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	userConns map[string]string // username -> conn id
	connUsers map[string]string // conn id -> username

	// таблица заполняется один раз при старте, до первого соединения
	handlers map[Kind]HandlerFunc
	onClose  func(username string)

	upgrader websocket.Upgrader
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

func NewRegistry(allowedOrigin string, heartbeat time.Duration) *Registry {
	return &Registry{
		clients:   make(map[string]*Client),
		userConns: make(map[string]string),
		connUsers: make(map[string]string),
		handlers:  make(map[Kind]HandlerFunc),
		interval:  heartbeat,
		stop:      make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

// Handle регистрирует обработчик для вида сообщения
func (r *Registry) Handle(kind Kind, fn HandlerFunc) {
	r.handlers[kind] = fn
}

// OnDisconnect задает хук, вызываемый после фактического закрытия соединения
// привязанного игрока (сетевой обрыв или выселение по heartbeat)
func (r *Registry) OnDisconnect(fn func(username string)) {
	r.onClose = fn
}

// HandleWS апгрейдит HTTP-запрос до WebSocket и запускает насосы клиента
func (r *Registry) HandleWS() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := r.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("ws: upgrade failed", "error", err)
			return
		}

		client := newClient(conn, r)

		r.mu.Lock()
		r.clients[client.ID] = client
		r.mu.Unlock()

		metrics.ConnectionsOpen.Inc()
		logger.Info("ws: client connected", "conn", client.ID)

		go client.run()
	}
}

// dispatch разбирает входящие байты и передает типизированное сообщение
// зарегистрированному обработчику. Мусор и неизвестные виды получают
// ответ error и не меняют состояние.
func (r *Registry) dispatch(c *Client, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.Send(c, ErrorMessage("Invalid message format"))
		return
	}

	handler, ok := r.handlers[msg.Type]
	if !ok {
		r.Send(c, ErrorMessage(fmt.Sprintf("Unknown message type: %s", msg.Type)))
		return
	}

	metrics.MessagesReceived.WithLabelValues(string(msg.Type)).Inc()
	handler(c, msg, raw)
}

// Send сериализует и ставит сообщение в очередь соединения;
// для закрытого соединения - no-op
func (r *Registry) Send(c *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("ws: marshal failed", "type", msg.Type, "error", err)
		return
	}
	c.trySend(data)
}

// SendToUser доставляет сообщение игроку по имени. Отсутствие живого
// соединения (игрок отключен) - штатная ситуация, не ошибка.
func (r *Registry) SendToUser(username string, msg Message) bool {
	r.mu.RLock()
	connID, ok := r.userConns[username]
	var c *Client
	if ok {
		c = r.clients[connID]
	}
	r.mu.RUnlock()

	if c == nil {
		return false
	}
	r.Send(c, msg)
	return true
}

// SendRawToUser доставляет уже сериализованные байты без переупаковки;
// используется для транзитных сообщений между участниками партии
func (r *Registry) SendRawToUser(username string, data []byte) bool {
	r.mu.RLock()
	connID, ok := r.userConns[username]
	var c *Client
	if ok {
		c = r.clients[connID]
	}
	r.mu.RUnlock()

	if c == nil {
		return false
	}
	c.trySend(data)
	return true
}

// BindUser привязывает имя игрока к соединению; повторная привязка
// (rejoin с нового соединения) перетягивает имя на новое соединение
func (r *Registry) BindUser(c *Client, username string) {
	r.mu.Lock()
	if oldConn, ok := r.userConns[username]; ok && oldConn != c.ID {
		delete(r.connUsers, oldConn)
	}
	r.userConns[username] = c.ID
	r.connUsers[c.ID] = username
	r.mu.Unlock()
}

// Username возвращает имя, привязанное к соединению, либо пустую строку
func (r *Registry) Username(c *Client) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connUsers[c.ID]
}

func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// handleDisconnect убирает соединение из индексов и дергает хук дисконнекта.
// Если игрок уже успел перепривязаться к новому соединению, закрытие
// устаревшего хук не дергает.
func (r *Registry) handleDisconnect(c *Client) {
	r.mu.Lock()
	delete(r.clients, c.ID)
	username := r.connUsers[c.ID]
	delete(r.connUsers, c.ID)

	current := username != "" && r.userConns[username] == c.ID
	if current {
		delete(r.userConns, username)
	}
	r.mu.Unlock()

	metrics.ConnectionsOpen.Dec()
	logger.Info("ws: client disconnected", "conn", c.ID, "user", username)

	if current && r.onClose != nil {
		r.onClose(username)
	}
}

// StartHeartbeat запускает сборщик: каждый интервал пингует все соединения
// и безусловно закрывает те, что не ответили на предыдущий пинг
func (r *Registry) StartHeartbeat() {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.sweep()
			case <-r.stop:
				return
			}
		}
	}()
}

func (r *Registry) sweep() {
	r.mu.RLock()
	snapshot := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		snapshot = append(snapshot, c)
	}
	r.mu.RUnlock()

	for _, c := range snapshot {
		if !c.alive.Load() {
			logger.Warn("ws: heartbeat missed, terminating", "conn", c.ID)
			// terminate берет блокировку реестра - не держим её здесь
			go c.terminate()
			continue
		}
		c.alive.Store(false)
		c.ping()
	}
}

// Shutdown останавливает heartbeat и закрывает все соединения
func (r *Registry) Shutdown() {
	r.stopOnce.Do(func() { close(r.stop) })

	r.mu.RLock()
	snapshot := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		snapshot = append(snapshot, c)
	}
	r.mu.RUnlock()

	for _, c := range snapshot {
		c.terminate()
	}
}
