// Package sse provides Server-Sent Events broadcasting of note catalog
// events to connected API clients.
package sse

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// WriteTimeout bounds writes to a single client so a stale connection cannot
// stall a broadcast.
const WriteTimeout = 2 * time.Second

// Client is one connected SSE stream.
type Client struct {
	ID      string
	Writer  http.ResponseWriter
	Flusher http.Flusher
	Done    chan struct{}
}

// Broadcaster fans note catalog events out to connected clients.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[string]*Client
	nextID  int
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[string]*Client)}
}

// AddClient registers an SSE client for the given response writer.
func (b *Broadcaster) AddClient(w http.ResponseWriter) (*Client, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	b.mu.Lock()
	b.nextID++
	client := &Client{
		ID:      fmt.Sprintf("client-%d", b.nextID),
		Writer:  w,
		Flusher: flusher,
		Done:    make(chan struct{}),
	}
	b.clients[client.ID] = client
	count := len(b.clients)
	b.mu.Unlock()

	log.Debug().Str("clientId", client.ID).Int("totalClients", count).Msg("Event stream client connected")
	return client, nil
}

// RemoveClient unregisters a client and closes its Done channel.
func (b *Broadcaster) RemoveClient(client *Client) {
	b.mu.Lock()
	if _, exists := b.clients[client.ID]; !exists {
		b.mu.Unlock()
		return
	}
	delete(b.clients, client.ID)
	count := len(b.clients)
	b.mu.Unlock()

	close(client.Done)
	log.Debug().Str("clientId", client.ID).Int("totalClients", count).Msg("Event stream client disconnected")
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends an event to every connected client. Writes run
// concurrently with a per-client timeout; clients that fail to accept the
// write are dropped.
func (b *Broadcaster) Broadcast(event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal event stream payload")
		return
	}
	message := fmt.Sprintf("data: %s\n\n", payload)

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for _, client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.RUnlock()

	var wg sync.WaitGroup
	for _, client := range clients {
		select {
		case <-client.Done:
			continue
		default:
		}
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			if !writeWithTimeout(c, message) {
				log.Debug().Str("clientId", c.ID).Msg("Dropping unresponsive event stream client")
				b.RemoveClient(c)
			}
		}(client)
	}
	wg.Wait()
}

// writeWithTimeout writes one message to a client, bounded by WriteTimeout.
func writeWithTimeout(client *Client, message string) bool {
	done := make(chan bool, 1)
	go func() {
		if _, err := fmt.Fprint(client.Writer, message); err != nil {
			done <- false
			return
		}
		client.Flusher.Flush()
		done <- true
	}()

	select {
	case ok := <-done:
		return ok
	case <-time.After(WriteTimeout):
		return false
	}
}
