package websocket

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one dashboard connection watching a campaign.
type Client struct {
	Hub        *Hub
	Conn       *websocket.Conn
	Send       chan []byte
	CampaignID string
}

// DonationAlert is pushed to every dashboard watching the campaign when a
// bank transaction confirms a donation. The donor-facing client does NOT
// receive these; it polls check-donation.
type DonationAlert struct {
	CampaignID  string    `json:"-"`
	MemoCode    string    `json:"memo_code"`
	Amount      int64     `json:"amount"`
	Gateway     string    `json:"gateway"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// Hub fans donation alerts out to campaign watchers. A campaign can have
// any number of watchers (organization dashboards, kiosk screens).
type Hub struct {
	Clients        map[string]map[*Client]bool
	Register       chan *Client
	Unregister     chan *Client
	BroadcastAlert chan DonationAlert
}

func NewHub() *Hub {
	return &Hub{
		Clients:        make(map[string]map[*Client]bool),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		BroadcastAlert: make(chan DonationAlert),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			if h.Clients[client.CampaignID] == nil {
				h.Clients[client.CampaignID] = make(map[*Client]bool)
			}
			h.Clients[client.CampaignID][client] = true
			log.Printf("WebSocket client registered for campaign %s", client.CampaignID)

		case client := <-h.Unregister:
			if watchers, ok := h.Clients[client.CampaignID]; ok && watchers[client] {
				delete(watchers, client)
				close(client.Send)
				if len(watchers) == 0 {
					delete(h.Clients, client.CampaignID)
				}
				log.Printf("WebSocket client unregistered for campaign %s", client.CampaignID)
			}

		case alert := <-h.BroadcastAlert:
			watchers, ok := h.Clients[alert.CampaignID]
			if !ok {
				continue
			}
			jsonData, err := json.Marshal(alert)
			if err != nil {
				log.Println("Failed to marshal donation alert:", err)
				continue
			}
			for client := range watchers {
				select {
				case client.Send <- jsonData:
				default:
					// Slow consumer; drop it rather than block the hub.
					close(client.Send)
					delete(watchers, client)
				}
			}
		}
	}
}
