// Package realtime pushes a user's full table contents to their open
// WebSocket connections whenever that table changes.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"taskcal/internal/apperr"
	"taskcal/internal/logger"
	"taskcal/internal/model"
	"taskcal/internal/ready"
)

// Message types exchanged over the socket.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeSnapshot    = "snapshot"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeError       = "error"
)

// Message is the envelope for every frame in either direction.
type Message struct {
	Type   string          `json:"type"`
	Table  string          `json:"table,omitempty"`
	Tables []string        `json:"tables,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  *apperr.Payload `json:"error,omitempty"`
}

// Fetcher loads the complete current rows of one table for one user.
type Fetcher func(ctx context.Context, userID string) (any, error)

type tableKey struct {
	userID string
	table  string
}

type change struct {
	key tableKey
}

type inbound struct {
	client *Client
	msg    Message
}

type delivery struct {
	key     tableKey
	seq     uint64
	only    *Client
	payload []byte
}

// Hub owns every connected client. All client state is touched only from Run.
type Hub struct {
	fetchers map[string]Fetcher
	upgrader websocket.Upgrader

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	publish    chan change
	deliver    chan delivery

	// seq counts changes per user table; delivered is the newest seq sent,
	// so a slow fetch cannot overwrite a newer snapshot.
	seq       map[tableKey]uint64
	delivered map[tableKey]uint64

	ready   *ready.Signal
	stopped chan struct{}
	running atomic.Bool
}

// NewHub creates a hub serving the given tables.
func NewHub(fetchers map[string]Fetcher) *Hub {
	return &Hub{
		fetchers: fetchers,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are enforced by the CORS layer and the bearer token.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		publish:    make(chan change, 64),
		deliver:    make(chan delivery, 64),
		seq:        make(map[tableKey]uint64),
		delivered:  make(map[tableKey]uint64),
		ready:      ready.New(),
		stopped:    make(chan struct{}),
	}
}

// Ready is fired once Run is accepting clients.
func (h *Hub) Ready() *ready.Signal { return h.ready }

// Publish records that userID's table changed. Subscribers get a fresh
// snapshot. Safe to call from any goroutine.
func (h *Hub) Publish(userID, table string) {
	select {
	case h.publish <- change{key: tableKey{userID, table}}:
	case <-h.stopped:
	}
}

// Run processes hub events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if !h.running.CompareAndSwap(false, true) {
		return
	}
	defer close(h.stopped)
	h.ready.Fire()
	logger.Info("realtime hub running", "tables", len(h.fetchers))

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			logger.Debug("realtime client connected", "user", client.userID)

		case client := <-h.unregister:
			if h.clients[client] {
				h.drop(client)
				logger.Debug("realtime client disconnected", "user", client.userID)
			}

		case in := <-h.inbound:
			if h.clients[in.client] {
				h.handle(ctx, in.client, in.msg)
			}

		case c := <-h.publish:
			h.seq[c.key]++
			if h.hasSubscribers(c.key) {
				h.fetch(ctx, c.key, h.seq[c.key], nil)
			}

		case d := <-h.deliver:
			if d.seq < h.delivered[d.key] {
				continue
			}
			h.delivered[d.key] = d.seq
			for client := range h.clients {
				if d.only != nil && client != d.only {
					continue
				}
				if client.userID != d.key.userID || !client.tables[d.key.table] {
					continue
				}
				h.send(client, d.payload)
			}
		}
	}
}

func (h *Hub) handle(ctx context.Context, client *Client, msg Message) {
	switch msg.Type {
	case TypePing:
		h.sendMessage(client, Message{Type: TypePong})
	case TypeSubscribe:
		for _, table := range tablesOf(msg) {
			if _, ok := h.fetchers[table]; !ok || !model.KnownTable(table) {
				h.sendMessage(client, Message{
					Type:  TypeError,
					Table: table,
					Error: &apperr.Payload{Code: apperr.Validation.Code(), Message: "unknown table " + table},
				})
				continue
			}
			client.tables[table] = true
			key := tableKey{client.userID, table}
			h.fetch(ctx, key, h.seq[key], client)
		}
	case TypeUnsubscribe:
		for _, table := range tablesOf(msg) {
			delete(client.tables, table)
		}
	default:
		logger.Debug("realtime message ignored", "type", msg.Type, "user", client.userID)
	}
}

func tablesOf(msg Message) []string {
	if msg.Table != "" {
		return append([]string{msg.Table}, msg.Tables...)
	}
	return msg.Tables
}

func (h *Hub) hasSubscribers(key tableKey) bool {
	for client := range h.clients {
		if client.userID == key.userID && client.tables[key.table] {
			return true
		}
	}
	return false
}

// fetch loads a snapshot off the hub goroutine and hands it back through
// deliver.
func (h *Hub) fetch(ctx context.Context, key tableKey, seq uint64, only *Client) {
	fetcher := h.fetchers[key.table]
	go func() {
		msg := Message{Type: TypeSnapshot, Table: key.table}
		rows, err := fetcher(ctx, key.userID)
		if err == nil {
			msg.Data, err = json.Marshal(rows)
		}
		if err != nil {
			logger.Error("realtime fetch failed", "user", key.userID, "table", key.table, "error", err)
			payload := apperr.ToPayload(err)
			msg = Message{Type: TypeError, Table: key.table, Error: &payload}
		}
		raw, err := json.Marshal(msg)
		if err != nil {
			return
		}
		select {
		case h.deliver <- delivery{key: key, seq: seq, only: only, payload: raw}:
		case <-ctx.Done():
		}
	}()
}

func (h *Hub) sendMessage(client *Client, msg Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		logger.Error("marshal realtime message", "error", err)
		return
	}
	h.send(client, raw)
}

func (h *Hub) send(client *Client, payload []byte) {
	select {
	case client.send <- payload:
	default:
		logger.Warn("realtime send buffer full, dropping client", "user", client.userID)
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
}

// ServeWS upgrades the request and attaches the connection to userID.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 32),
		userID: userID,
		tables: make(map[string]bool),
	}
	select {
	case h.register <- client:
	case <-h.stopped:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}
