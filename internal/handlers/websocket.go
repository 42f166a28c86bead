package handlers

import (
	"database/sql"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"donate-app/internal/store"
	ws "donate-app/internal/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler upgrades dashboard connections that want live
// confirmed-donation alerts for one campaign.
type WebSocketHandler struct {
	Campaigns *store.CampaignStore
	Hub       *ws.Hub
}

func NewWebSocketHandler(campaigns *store.CampaignStore, hub *ws.Hub) *WebSocketHandler {
	return &WebSocketHandler{Campaigns: campaigns, Hub: hub}
}

func (h *WebSocketHandler) ServeWs(c *gin.Context) {
	campaignID := c.Param("id")

	if _, err := h.Campaigns.GetByID(c.Request.Context(), campaignID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
			return
		}
		log.Println("Failed to look up campaign for websocket:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Println("Failed to upgrade connection:", err)
		return
	}

	client := &ws.Client{
		Hub:        h.Hub,
		Conn:       conn,
		Send:       make(chan []byte, 256),
		CampaignID: campaignID,
	}

	client.Hub.Register <- client

	go h.writePump(client)
	go h.readPump(client)
}

func (h *WebSocketHandler) writePump(client *ws.Client) {
	defer func() {
		client.Conn.Close()
	}()

	for message := range client.Send {
		if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}

	client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (h *WebSocketHandler) readPump(client *ws.Client) {
	defer func() {
		client.Hub.Unregister <- client
		client.Conn.Close()
	}()

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("readPump error: %v", err)
			}
			break
		}
	}
}
