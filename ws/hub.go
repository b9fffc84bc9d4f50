// ws/hub.go
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vinizap/pronode/domain"
	"github.com/vinizap/pronode/remote"
)

const sendBuffer = 256

// Conn is what the hub needs from a websocket connection. Both the gorilla
// and the fiber connection types satisfy it.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// Authorizer decides whether a principal may touch a path. A nil principal
// is a guest.
type Authorizer func(p *domain.Principal, path string) error

type client struct {
	conn      Conn
	principal *domain.Principal
	send      chan Message
	ctx       context.Context
	cancel    context.CancelFunc

	mu      sync.Mutex
	closed  bool
	dropped bool
	subs    map[string]func()
}

// enqueue reports false when the client is gone or its buffer is full.
func (c *client) enqueue(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// drop closes the connection under a client that fell behind. Serve then
// unregisters it and the remote end reconnects with fresh subscriptions.
// It reports whether this call did the dropping.
func (c *client) drop() bool {
	c.mu.Lock()
	if c.closed || c.dropped {
		c.mu.Unlock()
		return false
	}
	c.dropped = true
	c.mu.Unlock()

	c.cancel()
	c.conn.Close()
	return true
}

func (c *client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	close(c.send)
	c.mu.Unlock()

	c.cancel()
	for _, cancel := range subs {
		cancel()
	}
}

// Hub serves the store to websocket clients and tracks who is connected.
type Hub struct {
	store     remote.Store
	authorize Authorizer
	log       zerolog.Logger

	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub(store remote.Store, authorize Authorizer, log zerolog.Logger) *Hub {
	return &Hub{
		store:      store,
		authorize:  authorize,
		log:        log.With().Str("component", "hub").Logger(),
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.shutdown()
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				c.shutdown()
			}
			h.mu.Unlock()
			return
		}
	}
}

// Clients is the number of open connections.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve handles one connection until it closes.
func (h *Hub) Serve(conn Conn, p *domain.Principal) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		conn:      conn,
		principal: p,
		send:      make(chan Message, sendBuffer),
		ctx:       ctx,
		cancel:    cancel,
		subs:      map[string]func(){},
	}
	select {
	case h.register <- c:
	case <-h.done:
		cancel()
		conn.Close()
		return
	}
	log := h.log.With().Str("namespace", domain.Namespace(p)).Logger()
	log.Debug().Msg("client connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Warn().Err(err).Msg("websocket write error")
				c.cancel()
				conn.Close()
				return
			}
		}
		conn.Close()
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		reply := h.handle(c, msg)
		if reply != nil && !c.enqueue(*reply) {
			log.Warn().Msg("client too slow, dropping connection")
			break
		}
	}

	select {
	case h.unregister <- c:
	case <-h.done:
		c.shutdown()
	}
	<-writerDone
	log.Debug().Msg("client disconnected")
}

func (h *Hub) handle(c *client, msg Message) *Message {
	if msg.Type == TypeUnsubscribe {
		c.mu.Lock()
		cancel := c.subs[msg.Sub]
		delete(c.subs, msg.Sub)
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil
	}

	reply := &Message{Type: TypeResult, ID: msg.ID}
	if err := h.dispatch(c, msg, reply); err != nil {
		h.log.Debug().Err(err).Str("type", msg.Type).Str("path", msg.Path).Msg("request rejected")
		reply.Error = err.Error()
		reply.Code = remote.Code(err)
		if reply.Code == "" {
			reply.Code = "internal"
		}
	}
	return reply
}

func (h *Hub) dispatch(c *client, msg Message, reply *Message) error {
	path, err := remote.Clean(msg.Path)
	if err != nil {
		return err
	}
	if err := h.authorize(c.principal, path); err != nil {
		return err
	}
	ctx := c.ctx

	switch msg.Type {
	case TypeGet:
		snap, err := h.store.Get(ctx, path)
		if err != nil {
			return err
		}
		reply.Snapshot = &snap
		return nil

	case TypeSubscribe:
		sub := msg.Sub
		cancel, err := h.store.Subscribe(ctx, path, msg.OrderBy, func(s remote.Snapshot) {
			if !c.enqueue(Message{Type: TypeSnapshot, Sub: sub, Snapshot: &s}) && c.drop() {
				h.log.Warn().Str("path", path).Msg("client too slow for snapshots, dropping connection")
			}
		})
		if err != nil {
			return err
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			cancel()
			return nil
		}
		if prev := c.subs[sub]; prev != nil {
			prev()
		}
		c.subs[sub] = cancel
		c.mu.Unlock()
		return nil

	case TypeWrite:
		return h.store.Write(ctx, path, rawOrNull(msg.Value))

	case TypeUpdate:
		values := make(map[string]any, len(msg.Values))
		for k, v := range msg.Values {
			values[k] = rawOrNull(v)
		}
		return h.store.Update(ctx, path, values)

	case TypeRemove:
		return h.store.Remove(ctx, path)
	}
	return remote.ErrInvalidValue
}

func rawOrNull(v json.RawMessage) any {
	if len(v) == 0 || string(v) == "null" {
		return nil
	}
	return v
}
