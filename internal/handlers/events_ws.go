package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nvplabs/nvp-backend/internal/services"
)

// eventsUpgrader is the shared upgrader for the dashboard event feed.
var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS for WebSocket is handled at the HTTP layer already.
		return true
	},
}

// EventsWebSocket handles GET /ws/events: a live stream of device events
// for the admin dashboard. Events are published to Redis by the audit sink
// and fanned out here to every connected client.
func EventsWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := eventsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id := services.RegisterEventClient(conn)
	defer services.UnregisterEventClient(id)

	// Drain the connection so close/ping frames are processed; the feed
	// is one-way and any read error ends the session.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
