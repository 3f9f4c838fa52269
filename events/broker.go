package events

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// Broker manages SSE connections and broadcasts orchestration events
// (run, deployment and rollback lifecycle changes) to all of them.
// Construct one with NewBroker and pass it to whoever publishes;
// a nil *Broker is safe to broadcast on and does nothing.
type Broker struct {
	clients map[chan string]bool
	mu      sync.RWMutex
}

// NewBroker creates an event broker with no connected clients
func NewBroker() *Broker {
	return &Broker{
		clients: make(map[chan string]bool),
	}
}

// Register adds a new SSE client
func (b *Broker) Register(client chan string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = true
	log.Printf("📡 SSE client connected (total: %d)", len(b.clients))
}

// Unregister removes an SSE client
func (b *Broker) Unregister(client chan string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, client)
	close(client)
	log.Printf("📡 SSE client disconnected (total: %d)", len(b.clients))
}

// Broadcast sends an event to all connected clients
func (b *Broker) Broadcast(eventType string, data interface{}) {
	if b == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	// Serialize data to JSON
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("Failed to marshal event data: %v", err)
		return
	}

	// Format SSE message
	message := fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, string(jsonData))

	// Send to all clients
	for client := range b.clients {
		select {
		case client <- message:
			// Message sent
		default:
			// Client buffer full, skip
		}
	}
}
