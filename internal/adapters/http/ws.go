package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
	"github.com/kirillkom/retail-analytics/internal/core/ports"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	// wsSendBuffer bounds the per-client queue; a client that cannot keep
	// up is dropped rather than allowed to stall training broadcasts.
	wsSendBuffer = 64
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// TrainingHub fans training events out to connected websocket clients. It
// implements the progress publisher contract next to the message queue, so
// browser clients get push updates without a broker between them.
type TrainingHub struct {
	logger *slog.Logger

	// OnConnect and OnDisconnect, when set, observe the client count.
	// Assign before serving.
	OnConnect    func()
	OnDisconnect func()

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewTrainingHub(logger *slog.Logger) *TrainingHub {
	return &TrainingHub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// PublishTrainingEvent queues the event to every connected client. Slow
// clients are disconnected instead of blocking the caller.
func (h *TrainingHub) PublishTrainingEvent(_ context.Context, event domain.TrainingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.RLock()
	var stalled []*wsClient
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			stalled = append(stalled, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range stalled {
		h.logger.Warn("dropping stalled websocket client")
		h.remove(client)
	}
	return nil
}

// ServeHTTP upgrades the connection and keeps it subscribed until the peer
// goes away.
func (h *TrainingHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	if h.OnConnect != nil {
		h.OnConnect()
	}

	go h.writeLoop(client)
	go h.readLoop(client)
}

// Close disconnects every client. Shutdown hook.
func (h *TrainingHub) Close() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for _, client := range clients {
		close(client.send)
	}
}

func (h *TrainingHub) remove(client *wsClient) {
	h.mu.Lock()
	_, present := h.clients[client]
	if present {
		delete(h.clients, client)
	}
	h.mu.Unlock()
	if present {
		close(client.send)
		if h.OnDisconnect != nil {
			h.OnDisconnect()
		}
	}
}

// readLoop discards inbound frames; the socket is broadcast-only. Reading
// is still required to process control frames and detect closure.
func (h *TrainingHub) readLoop(client *wsClient) {
	defer func() {
		h.remove(client)
		client.conn.Close()
	}()
	client.conn.SetReadLimit(512)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *TrainingHub) writeLoop(client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// FanoutPublisher forwards each event to every backend, so the websocket
// hub and the message queue stay in lockstep. Errors are collected but the
// first one wins; a failing backend must not silence the others.
type FanoutPublisher struct {
	backends []ports.ProgressPublisher
}

func NewFanoutPublisher(backends ...ports.ProgressPublisher) *FanoutPublisher {
	return &FanoutPublisher{backends: backends}
}

func (p *FanoutPublisher) PublishTrainingEvent(ctx context.Context, event domain.TrainingEvent) error {
	var first error
	for _, backend := range p.backends {
		if err := backend.PublishTrainingEvent(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
