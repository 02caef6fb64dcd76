// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/nodegraph/services/nodegraph/host"
)

// ErrHubClosed is returned when subscribing to a closed hub.
var ErrHubClosed = errors.New("stream hub closed")

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HubOptions configures a Hub.
type HubOptions struct {
	// Buffer is the number of reports queued per client before new ones
	// are dropped for that client. Default: 16
	Buffer int

	// Logger for client events. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Hub fans tick reports out to websocket clients.
//
// Description:
//
//	Hub is a host.TickObserver. ObserveTick never blocks the tick loop: a
//	client whose queue is full misses that report and the miss is counted.
//
// Thread Safety:
//
//	Hub is safe for concurrent use.
type Hub struct {
	buffer int
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]chan host.TickReport
	closed  bool
	dropped uint64
}

// NewHub creates an empty hub.
func NewHub(opts HubOptions) *Hub {
	if opts.Buffer <= 0 {
		opts.Buffer = 16
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Hub{
		buffer:  opts.Buffer,
		logger:  opts.Logger,
		clients: make(map[string]chan host.TickReport),
	}
}

// ObserveTick implements host.TickObserver.
func (h *Hub) ObserveTick(_ context.Context, report host.TickReport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- report:
		default:
			h.dropped++
		}
	}
}

// Subscribe registers a client and returns its id and queue. The queue is
// closed by Unsubscribe or Close.
func (h *Hub) Subscribe() (string, <-chan host.TickReport, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", nil, ErrHubClosed
	}
	id := uuid.NewString()[:12]
	ch := make(chan host.TickReport, h.buffer)
	h.clients[id] = ch
	return id, ch, nil
}

// Unsubscribe removes a client. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(ch)
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.clients {
		delete(h.clients, id)
		close(ch)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many reports were skipped for slow clients.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// HandleStream handles GET /v1/nodegraph/stream.
//
// Description:
//
//	Upgrades to a websocket, sends a hello frame carrying the client id,
//	then one tick frame per report. Client messages are read and
//	discarded; a read error ends the session.
//
// Response:
//
//	101 Switching Protocols
//	503 Service Unavailable: Hub closed
func (h *Hub) HandleStream(c *gin.Context) {
	id, reports, err := h.Subscribe()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: "STREAM_CLOSED"})
		return
	}
	defer h.Unsubscribe(id)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	logger := h.logger.With(slog.String("client_id", id))
	logger.Info("stream client connected")

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeFrame(ws, StreamMessage{Type: "hello", ClientID: id}); err != nil {
		return
	}

	for {
		select {
		case <-gone:
			logger.Info("stream client disconnected")
			return
		case <-c.Request.Context().Done():
			return
		case report, ok := <-reports:
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			if err := writeFrame(ws, StreamMessage{Type: "tick", Tick: &report}); err != nil {
				logger.Warn("stream write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func writeFrame(ws *websocket.Conn, msg StreamMessage) error {
	if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return ws.WriteJSON(msg)
}
