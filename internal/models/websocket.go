package models

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub maintains the set of active feed clients, grouped by team, and fans
// activity messages out to them.
type Hub struct {
	// Team-based routing: team id -> user id -> connections.
	TeamChannels map[string]map[string][]*Client

	mu sync.RWMutex
}

// Client represents a WebSocket connection
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	UserID string
	TeamID string
}

// FeedMessage is what clients receive for every recorded activity.
type FeedMessage struct {
	Type     string      `json:"type"`
	TeamID   string      `json:"team_id"`
	Activity ActivityLog `json:"activity"`
}

func NewHub() *Hub {
	return &Hub{
		TeamChannels: make(map[string]map[string][]*Client),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.TeamChannels[client.TeamID]; !exists {
		h.TeamChannels[client.TeamID] = make(map[string][]*Client)
	}
	h.TeamChannels[client.TeamID][client.UserID] = append(h.TeamChannels[client.TeamID][client.UserID], client)
}

// Unregister removes the client and closes its send channel. Calling it
// twice for the same client is safe.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	users, exists := h.TeamChannels[client.TeamID]
	if !exists {
		return
	}
	clients := users[client.UserID]
	for i, c := range clients {
		if c != client {
			continue
		}
		users[client.UserID] = append(clients[:i], clients[i+1:]...)
		close(client.Send)
		break
	}
	if len(users[client.UserID]) == 0 {
		delete(users, client.UserID)
	}
	if len(users) == 0 {
		delete(h.TeamChannels, client.TeamID)
	}
}

// BroadcastToTeam sends a message to all clients in a specific team. Slow
// clients whose buffer is full miss the message.
func (h *Hub) BroadcastToTeam(teamID string, message []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, clients := range h.TeamChannels[teamID] {
		for _, client := range clients {
			select {
			case client.Send <- message:
				delivered++
			default:
			}
		}
	}
	return delivered
}

// GetUserConnections returns all active connections for a user in a team
func (h *Hub) GetUserConnections(teamID string, userID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return append([]*Client(nil), h.TeamChannels[teamID][userID]...)
}

// IsUserConnected checks if a user has any active connections in a team
func (h *Hub) IsUserConnected(teamID string, userID string) bool {
	return len(h.GetUserConnections(teamID, userID)) > 0
}

// DisconnectUser drops every feed connection a user holds for a team, used
// when the user leaves or is removed from it.
func (h *Hub) DisconnectUser(teamID, userID string) {
	for _, client := range h.GetUserConnections(teamID, userID) {
		h.Unregister(client)
	}
}

// ReadPump drains the connection so control frames are processed. The feed
// is server-to-client only; inbound data frames are discarded.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			break
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed
	maxMessageSize = 512
)
