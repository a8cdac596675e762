package services

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nvplabs/nvp-backend/internal/audit"
	"github.com/nvplabs/nvp-backend/internal/database"
)

// EventConn is the minimal interface our WebSocket implementation must satisfy.
type EventConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// eventSendBuffer is the per-client backlog; events beyond it are dropped
// rather than blocking the publisher.
const eventSendBuffer = 32

// eventClient owns one dashboard connection. All writes go through send and
// are drained by a single goroutine: gorilla/websocket connections allow at
// most one concurrent writer.
type eventClient struct {
	conn EventConn
	send chan audit.Event
}

func (c *eventClient) writeLoop() {
	for event := range c.send {
		if err := c.conn.WriteJSON(event); err != nil {
			log.Printf("error writing device event to websocket: %v", err)
			c.conn.Close()
			return
		}
	}
}

// eventHub is a registry of dashboard connections receiving the live
// device-event feed.
type eventHub struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*eventClient
}

var (
	liveEvents    = &eventHub{conns: make(map[uuid.UUID]*eventClient)}
	eventsStarted sync.Once
)

// RegisterEventClient adds a dashboard connection and returns its id.
func RegisterEventClient(conn EventConn) uuid.UUID {
	id := uuid.New()
	client := &eventClient{conn: conn, send: make(chan audit.Event, eventSendBuffer)}
	go client.writeLoop()

	liveEvents.mu.Lock()
	liveEvents.conns[id] = client
	liveEvents.mu.Unlock()
	return id
}

// UnregisterEventClient removes a dashboard connection and stops its writer.
func UnregisterEventClient(id uuid.UUID) {
	liveEvents.mu.Lock()
	client, ok := liveEvents.conns[id]
	if ok {
		delete(liveEvents.conns, id)
	}
	liveEvents.mu.Unlock()

	if ok {
		close(client.send)
	}
}

// FanOutDeviceEvent queues an event to all connected dashboard clients.
// Never blocks: a client whose backlog is full misses the event.
func FanOutDeviceEvent(event audit.Event) {
	liveEvents.mu.RLock()
	defer liveEvents.mu.RUnlock()

	for _, client := range liveEvents.conns {
		select {
		case client.send <- event:
		default:
		}
	}
}

// StartEventSubscriber ensures a single shared Redis listener per instance.
func StartEventSubscriber(ctx context.Context) {
	eventsStarted.Do(func() {
		go runEventSubscriber(ctx)
	})
}

func runEventSubscriber(ctx context.Context) {
	client := database.RedisClient
	if client == nil {
		log.Println("Redis client not initialized; event subscriber not started")
		return
	}

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		func() {
			pubsub := client.Subscribe(ctx, audit.EventsChannel)
			defer pubsub.Close()

			log.Printf("✅ Device event subscriber started (channel: %s)", audit.EventsChannel)

			for {
				msg, err := pubsub.ReceiveMessage(ctx)
				if err != nil {
					log.Printf("Redis event subscriber error: %v", err)
					time.Sleep(backoff)
					backoff *= 2
					if backoff > 30*time.Second {
						backoff = 30 * time.Second
					}
					return
				}
				backoff = time.Second

				var event audit.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("invalid device event payload: %v", err)
					continue
				}
				FanOutDeviceEvent(event)
			}
		}()
	}
}
