package services

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Feed event types.
const (
	FeedEventStatus       = "status"
	FeedEventSyncStarted  = "sync_started"
	FeedEventSyncFinished = "sync_finished"
)

// FeedEvent 推送给订阅端的云同步事件
type FeedEvent struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// FeedClient is one websocket subscriber.
type FeedClient struct {
	ID   string
	Conn *websocket.Conn
	Send chan FeedEvent
	feed *StatusFeed
}

// StatusFeed fans cloud sync events out to websocket subscribers. The
// feed is one-way; inbound frames only keep the connection alive.
type StatusFeed struct {
	clients    map[string]*FeedClient
	broadcast  chan FeedEvent
	register   chan *FeedClient
	unregister chan *FeedClient
	mutex      sync.RWMutex
	logger     *logrus.Logger
}

var feedUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 生产环境需要验证源
	},
}

// NewStatusFeed 创建状态推送中心
func NewStatusFeed(logger *logrus.Logger) *StatusFeed {
	if logger == nil {
		logger = logrus.New()
	}
	return &StatusFeed{
		clients:    make(map[string]*FeedClient),
		broadcast:  make(chan FeedEvent, 64),
		register:   make(chan *FeedClient),
		unregister: make(chan *FeedClient),
		logger:     logger,
	}
}

// Run dispatches register/unregister/broadcast traffic. Start it once in
// its own goroutine during wiring.
func (f *StatusFeed) Run() {
	for {
		select {
		case client := <-f.register:
			f.mutex.Lock()
			f.clients[client.ID] = client
			f.mutex.Unlock()
			f.logger.Infof("Feed client %s connected", client.ID)

		case client := <-f.unregister:
			f.mutex.Lock()
			if _, ok := f.clients[client.ID]; ok {
				delete(f.clients, client.ID)
				close(client.Send)
				f.logger.Infof("Feed client %s disconnected", client.ID)
			}
			f.mutex.Unlock()

		case event := <-f.broadcast:
			f.mutex.Lock()
			for id, client := range f.clients {
				select {
				case client.Send <- event:
				default:
					close(client.Send)
					delete(f.clients, id)
				}
			}
			f.mutex.Unlock()
		}
	}
}

// Broadcast queues an event for all subscribers. When the queue is full
// the event is dropped; a sync operation never stalls on slow readers.
func (f *StatusFeed) Broadcast(eventType string, data interface{}) {
	event := FeedEvent{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}
	select {
	case f.broadcast <- event:
	default:
		f.logger.Warnf("Feed queue full, dropping %s event", eventType)
	}
}

// HandleFeed upgrades the request to a websocket and subscribes it.
func (f *StatusFeed) HandleFeed(c *gin.Context) {
	conn, err := feedUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		f.logger.Error("Feed upgrade failed:", err)
		return
	}

	client := &FeedClient{
		ID:   uuid.NewString(),
		Conn: conn,
		Send: make(chan FeedEvent, 256),
		feed: f,
	}

	f.register <- client

	go client.writePump()
	go client.readPump()
}

// GetClientCount returns the number of live subscribers.
func (f *StatusFeed) GetClientCount() int {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return len(f.clients)
}

func (c *FeedClient) readPump() {
	defer func() {
		c.feed.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		// Subscribers have nothing to say; reading only services pongs
		// and surfaces disconnects.
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.feed.logger.Errorf("Feed read error: %v", err)
			}
			break
		}
	}
}

func (c *FeedClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteJSON(event); err != nil {
				c.feed.logger.Error("Feed write error:", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
