// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

// Package websocket pushes live sync and document-pipeline progress to
// connected dashboard clients.
package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dvicanovic/regsync/internal/logging"
	"github.com/dvicanovic/regsync/internal/metrics"
	"github.com/dvicanovic/regsync/internal/progress"
)

// Message types pushed to clients.
const (
	MessageTypeProgress     = "progress"
	MessageTypeJobEnqueued  = "job_enqueued"
	MessageTypeJobCompleted = "job_completed"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
)

// Message is one envelope sent over a websocket connection.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates an empty hub. Run it with RunWithContext before serving
// connections.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext drives the hub until ctx is canceled, then closes every
// connected client and returns ctx.Err(). Shutdown, lifecycle events and
// broadcasts are handled in that priority order so client state is always
// settled before messages go out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// broadcastToClients sends a message to every connected client in client-id
// order. A client whose send buffer is full is dropped; its write pump
// notices the closed channel and tears the connection down.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
			metrics.WSMessagesSent.Inc()
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
	}
	if len(toRemove) > 0 {
		metrics.WSConnections.Set(float64(len(h.clients)))
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	count := len(h.clients)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()
	metrics.WSConnections.Set(0)

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", reason).
		Int("clients_closed", count).
		Msg("websocket hub stopped")
}

// BroadcastJSON queues a message for all clients, dropping it if the
// broadcast buffer is full.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	select {
	case h.broadcast <- Message{Type: messageType, Data: data}:
	default:
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastJobEnqueued notifies clients that a new sync job was accepted.
func (h *Hub) BroadcastJobEnqueued(jobID, institutionID string) {
	h.BroadcastJSON(MessageTypeJobEnqueued, map[string]string{
		"job_id":         jobID,
		"institution_id": institutionID,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Reporter adapts the hub to the progress.Reporter interface so pipeline
// progress streams to every dashboard client. jobID tags the events.
func (h *Hub) Reporter(jobID string) progress.Reporter {
	return progress.ReporterFunc(func(e progress.Event) {
		messageType := MessageTypeProgress
		if e.Summary != nil {
			messageType = MessageTypeJobCompleted
		}
		h.BroadcastJSON(messageType, struct {
			JobID string `json:"job_id,omitempty"`
			progress.Event
		}{JobID: jobID, Event: e})
	})
}
