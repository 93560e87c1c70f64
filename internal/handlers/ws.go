package handlers

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tandem-dev/tandem/internal/types"
)

// Connected clients get a lightweight "refresh" hint whenever a mutation bumps
// change markers in their group; they respond by re-running delta sync. The
// socket carries no data itself, so a missed hint costs nothing but latency.

var (
	groupClients   = make(map[string]map[*websocket.Conn]string) // conn -> client id
	groupClientsMu sync.RWMutex
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

func BroadcastGroupRefresh(groupID string) {
	groupClientsMu.RLock()
	clients, exists := groupClients[groupID]
	if !exists || len(clients) == 0 {
		groupClientsMu.RUnlock()
		return
	}

	clientsCopy := make([]*websocket.Conn, 0, len(clients))
	for conn := range clients {
		clientsCopy = append(clientsCopy, conn)
	}
	groupClientsMu.RUnlock()

	for _, conn := range clientsCopy {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			log.Printf("Failed to set write deadline for broadcast: %v", err)
			continue
		}

		err := conn.WriteJSON(map[string]string{
			"type":     "refresh",
			"message":  "Calendar data updated",
			"group_id": groupID,
		})

		if err != nil {
			log.Printf("Failed to broadcast refresh to client: %v", err)
			groupClientsMu.Lock()
			if clients, exists := groupClients[groupID]; exists {
				delete(clients, conn)
				if len(clients) == 0 {
					delete(groupClients, groupID)
				}
			}
			groupClientsMu.Unlock()
			conn.Close()
		}
	}
}

func WebSocket(c *gin.Context) {
	groupID := c.Param("group_id")

	if groupID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Group ID is required"})
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			for _, allowed := range types.AllowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	clientID := uuid.NewString()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Failed to set initial read deadline: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Failed to set read deadline in pong handler: %v", err)
		}
		return nil
	})

	groupClientsMu.Lock()
	if groupClients[groupID] == nil {
		groupClients[groupID] = make(map[*websocket.Conn]string)
	}
	groupClients[groupID][conn] = clientID
	groupClientsMu.Unlock()

	defer func() {
		groupClientsMu.Lock()

		if clients, exists := groupClients[groupID]; exists {
			delete(clients, conn)

			if len(clients) == 0 {
				delete(groupClients, groupID)
			}
		}

		groupClientsMu.Unlock()
		conn.Close()

		log.Printf("WebSocket client %s disconnected from group %s", clientID, groupID)
	}()

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Failed to set write deadline for welcome message: %v", err)
		return
	}

	err = conn.WriteJSON(map[string]string{
		"type":      "connected",
		"client_id": clientID,
		"group_id":  groupID,
	})

	if err != nil {
		log.Printf("Failed to send welcome message: %v", err)
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	go func() {
		for range ticker.C {
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("Failed to set write deadline for client %s: %v", clientID, err)
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("Ping failed for client %s: %v", clientID, err)
				return
			}
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Failed to set read deadline for client %s: %v", clientID, err)
			break
		}

		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for client %s in group %s: %v", clientID, groupID, err)
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			log.Printf("Received message from client %s in group %s: %s", clientID, groupID, string(message))
		case websocket.PongMessage:
			log.Printf("Received pong from client %s", clientID)
		}
	}
}
