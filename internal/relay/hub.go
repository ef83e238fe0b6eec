// Package relay replicates committed changes to websocket clients and serves
// the document HTTP API.
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"blockdoc/internal/domain"
	"blockdoc/internal/service"
	"blockdoc/internal/wire"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Observer receives relay activity. *metrics.Metrics satisfies it.
type Observer interface {
	ClientConnected()
	ClientDisconnected()
	Frame(direction, frameType string)
}

type nopObserver struct{}

func (nopObserver) ClientConnected()     {}
func (nopObserver) ClientDisconnected()  {}
func (nopObserver) Frame(string, string) {}

// Hub fans committed changes out to the clients subscribed to a document.
// It implements service.EventEmitter.
type Hub struct {
	log zerolog.Logger
	obs Observer

	mu      sync.Mutex
	clients map[string]map[*client]struct{}
}

var _ service.EventEmitter = (*Hub)(nil)

func NewHub(log zerolog.Logger, obs Observer) *Hub {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Hub{
		log:     log.With().Str("component", "relay").Logger(),
		obs:     obs,
		clients: make(map[string]map[*client]struct{}),
	}
}

// Emit broadcasts document events. It never blocks: a client whose buffer
// is full is disconnected and has to resync from a fresh hello.
func (h *Hub) Emit(_ context.Context, event string, data any) {
	switch event {
	case service.EventDocumentChanged:
		c, ok := data.(*domain.Change)
		if !ok {
			return
		}
		h.broadcast(c.DocID, &wire.Frame{Type: wire.FrameChange, DocID: c.DocID, Version: c.Version, Change: c})
	case service.EventDocumentDeleted:
		docID, _ := data.(string)
		h.broadcast(docID, &wire.Frame{Type: wire.FrameError, DocID: docID, Error: "document deleted"})
		h.dropAll(docID)
	}
}

func (h *Hub) broadcast(docID string, f *wire.Frame) {
	b, err := wire.EncodeFrame(f)
	if err != nil {
		h.log.Error().Err(err).Str("doc", docID).Msg("encode broadcast")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[docID] {
		if !c.offer(b) {
			h.log.Warn().Str("doc", docID).Str("client", c.id).Msg("client too slow, disconnecting")
			h.removeLocked(c)
			continue
		}
		h.obs.Frame("out", f.Type)
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.docID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.docID] = set
	}
	set[c] = struct{}{}
	h.obs.ClientConnected()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	set := h.clients[c.docID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.docID)
	}
	c.close()
	h.obs.ClientDisconnected()
}

func (h *Hub) dropAll(docID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[docID] {
		h.removeLocked(c)
	}
}

// Clients returns the number of clients subscribed to docID.
func (h *Hub) Clients(docID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[docID])
}

// ── client ─────────────────────────────────────────────────

type client struct {
	id    string
	docID string
	conn  *websocket.Conn
	send  chan []byte

	once sync.Once
	done chan struct{}
}

func newClient(id, docID string, conn *websocket.Conn) *client {
	return &client{id: id, docID: docID, conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
}

// offer queues a frame without blocking. It reports false when the buffer
// is full.
func (c *client) offer(b []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// writePump is the only writer on the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			// Flush what is already queued, then say goodbye.
			for {
				select {
				case b := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
						return
					}
				default:
					_ = c.conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
					return
				}
			}
		}
	}
}
