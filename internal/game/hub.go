package game

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/redis/go-redis/v9"
)

// Client is one websocket connection attached to the local hub.
type Client struct {
	conn     *websocket.Conn
	playerID string
	mu       sync.Mutex
}

func (c *Client) send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[WS] Write error for player %s: %v", c.playerID, err)
	}
}

// Hub relays game events to the websocket clients connected to this instance.
// Events arrive over Redis pub/sub, so a horizontally scaled deployment fans
// out every event regardless of which instance produced it. Messages on the
// shared game channel go to everyone; user-<id> channel messages go only to
// that player's connections.
type Hub struct {
	client     *redis.Client
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub(client *redis.Client) *Hub {
	return &Hub{
		client:     client,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run consumes the event channels and serves registrations until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	pubsub := h.client.Subscribe(ctx, CHANNEL_GAME)
	defer pubsub.Close()
	if err := pubsub.PSubscribe(ctx, CHANNEL_USER_PREFIX+"*"); err != nil {
		log.Printf("[WS] User channel subscription failed: %v", err)
	}
	messages := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("[WS] Client connected: %s (Total: %d)", client.playerID, total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.conn.Close()
				log.Printf("[WS] Client disconnected: %s (Total: %d)", client.playerID, len(h.clients))
			}
			h.mu.Unlock()

		case msg, ok := <-messages:
			if !ok {
				log.Println("[WS] Pub/sub stream closed")
				return
			}
			h.dispatch(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (h *Hub) dispatch(channel string, payload []byte) {
	onlyPlayer := ""
	if strings.HasPrefix(channel, CHANNEL_USER_PREFIX) {
		onlyPlayer = strings.TrimPrefix(channel, CHANNEL_USER_PREFIX)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if onlyPlayer != "" && client.playerID != onlyPlayer {
			continue
		}
		go client.send(payload)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.conn.Close()
		delete(h.clients, client)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RegisterClient(conn *websocket.Conn, playerID string) {
	h.register <- &Client{conn: conn, playerID: playerID}
}

func (h *Hub) UnregisterClient(conn *websocket.Conn) {
	h.mu.RLock()
	for client := range h.clients {
		if client.conn == conn {
			h.mu.RUnlock()
			h.unregister <- client
			return
		}
	}
	h.mu.RUnlock()
}
