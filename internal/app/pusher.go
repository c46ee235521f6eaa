// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/relabs-tech/lemi_streamer/internal/config"
	"github.com/relabs-tech/lemi_streamer/internal/publish"
)

// PushMessage is what browsers receive for every relayed MQTT message.
type PushMessage struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

// PushRequest is what browsers may send.
type PushRequest struct {
	Action string `json:"action"` // subscribe
	Topic  string `json:"topic"`
}

// Subscriber adds MQTT subscriptions on behalf of browser clients.
type Subscriber interface {
	Subscribe(filter string, qos byte, handle func(topic string, payload []byte)) error
}

type pushClient struct {
	conn *websocket.Conn
	send chan PushMessage
}

// Hub relays MQTT messages to every connected WebSocket client. Slow clients
// lose messages instead of stalling the relay.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*pushClient]struct{}
	topics   map[string]struct{}
	sub      Subscriber
	qos      byte
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHub returns a hub that accepts browsers from origins. An empty list
// accepts any origin.
func NewHub(sub Subscriber, qos byte, origins []string, log zerolog.Logger) *Hub {
	h := &Hub{
		clients: make(map[*pushClient]struct{}),
		topics:  make(map[string]struct{}),
		sub:     sub,
		qos:     qos,
		log:     log.With().Str("component", "pusher").Logger(),
	}
	h.upgrader.CheckOrigin = originChecker(origins)
	return h
}

// originChecker matches the Origin header exactly. Requests without one do
// not come from a browser and are let through.
func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

// Subscribe makes sure filter is relayed. Repeated filters are subscribed once.
func (h *Hub) Subscribe(filter string) error {
	h.mu.Lock()
	if _, ok := h.topics[filter]; ok {
		h.mu.Unlock()
		return nil
	}
	h.topics[filter] = struct{}{}
	h.mu.Unlock()

	if err := h.sub.Subscribe(filter, h.qos, h.Broadcast); err != nil {
		h.mu.Lock()
		delete(h.topics, filter)
		h.mu.Unlock()
		return err
	}
	return nil
}

// Broadcast queues one message for every client.
func (h *Hub) Broadcast(topic string, payload []byte) {
	msg := PushMessage{Topic: topic, Payload: string(payload)}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Debug().Str("remote", c.conn.RemoteAddr().String()).Msg("client too slow, message dropped")
		}
	}
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the client until it goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade error")
		return
	}
	c := &pushClient{conn: conn, send: make(chan PushMessage, 64)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Info().Str("remote", r.RemoteAddr).Msg("client connected")

	done := make(chan struct{})
	go h.writeLoop(c, done)

	// Message loop
	for {
		var req PushRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Msg("websocket read error")
			}
			break
		}
		switch req.Action {
		case "subscribe":
			h.log.Info().Str("topic", req.Topic).Msg("subscribing")
			if err := h.Subscribe(req.Topic); err != nil {
				h.log.Error().Err(err).Str("topic", req.Topic).Msg("subscribe failed")
			}
		default:
			h.log.Debug().Str("action", req.Action).Msg("ignoring request")
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(done)
	conn.Close()
	h.log.Info().Str("remote", r.RemoteAddr).Msg("client disconnected")
}

func (h *Hub) writeLoop(c *pushClient, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

// RunPusher relays MQTT messages to browsers over WebSocket on /ws.
func RunPusher(cfg *config.Config, log zerolog.Logger) error {
	qos, _ := publish.ValidQoS(cfg.MQTTQoS)
	client, err := publish.DialMQTT(publish.MQTTOptions{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID + "-pusher",
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	}, log)
	if err != nil {
		return err
	}
	defer client.Close()

	hub := NewHub(client, qos, cfg.PusherOrigins, log)
	if len(cfg.PusherOrigins) == 0 {
		log.Warn().Msg("PUSHER_ORIGINS not set, accepting browsers from any origin")
	}
	if err := hub.Subscribe(cfg.PusherTopic); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	srv := &http.Server{Addr: cfg.PusherListen, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	log.Info().Str("addr", cfg.PusherListen).Str("topic", cfg.PusherTopic).Msg("pusher listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
