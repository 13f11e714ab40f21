package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"tolerance-journey/internal/game"
	"tolerance-journey/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBufferSize = 16
)

var activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "tolerance_websocket_connections",
	Help: "Number of open WebSocket connections.",
})

// SessionSource - контроллер сессии, на изменения которого подписывается клиент.
type SessionSource interface {
	ID() string
	Snapshot() models.Snapshot
	Subscribe(o game.Observer) (unsubscribe func())
}

// Hub управляет WebSocket соединениями наблюдателей сессий.
type Hub struct {
	mu       sync.Mutex
	clients  map[uuid.UUID]*Client
	closed   bool
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// Client - одно WebSocket соединение, подписанное на одну сессию.
type Client struct {
	ID        uuid.UUID
	SessionID string

	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	unsubscribe func()
}

// NewHub создает Hub. allowedOrigins со значением "*" разрешает любой Origin.
func NewHub(allowedOrigins []string, logger *zap.Logger) *Hub {
	h := &Hub{
		clients: make(map[uuid.UUID]*Client),
		logger:  logger.Named("WebSocketHub"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Serve переводит запрос в WebSocket и транслирует клиенту снимки сессии.
// Первым сообщением отправляется текущее состояние.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, source SessionSource) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:        uuid.New(),
		SessionID: source.ID(),
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		return conn.Close()
	}
	h.clients[client.ID] = client
	activeConnections.Inc()
	h.mu.Unlock()

	client.unsubscribe = source.Subscribe(client.enqueue)
	client.enqueue(source.Snapshot())

	h.logger.Info("WebSocket client connected", zap.String("clientID", client.ID.String()), zap.String("sessionID", client.SessionID))

	go client.writePump()
	go client.readPump()
	return nil
}

// Len возвращает число открытых соединений.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close закрывает все соединения. Новые подключения отклоняются.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		activeConnections.Dec()
	}
	h.mu.Unlock()
	h.logger.Info("WebSocket client disconnected", zap.String("clientID", c.ID.String()), zap.String("sessionID", c.SessionID))
}

// enqueue вызывается контроллером при каждом переходе. Не блокируется:
// клиент, не успевающий читать, отключается.
func (c *Client) enqueue(snap models.Snapshot) {
	data, err := json.Marshal(snap.View())
	if err != nil {
		c.hub.logger.Error("Failed to marshal snapshot", zap.String("sessionID", c.SessionID), zap.Error(err))
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.hub.logger.Warn("WebSocket client too slow, dropping", zap.String("clientID", c.ID.String()))
		go c.close()
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.hub.unregister(c)
	})
}

// readPump читает входящие кадры, чтобы обрабатывать pong и закрытие соединения.
// Сообщения клиента игнорируются: управление игрой идет через HTTP.
func (c *Client) readPump() {
	defer func() {
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket read error", zap.String("clientID", c.ID.String()), zap.Error(err))
			}
			return
		}
	}
}

// writePump отправляет снимки клиенту по одному на сообщение.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
