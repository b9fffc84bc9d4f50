// ws/client.go
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/vinizap/pronode/remote"
)

const DefaultReconnectDelay = 5 * time.Second

type ClientOptions struct {
	// Token is sent as a bearer token on every dial.
	Token string
	// Password is sent as the shared guest password when Token is empty.
	Password       string
	ReconnectDelay time.Duration
	Dialer         *websocket.Dialer
}

type subscription struct {
	path    string
	orderBy string
	fn      func(remote.Snapshot)
}

// Client is a remote.Store reached over one websocket connection. It keeps
// reconnecting in the background and re-sends its subscriptions after every
// reconnect. While disconnected, operations fail with remote.ErrOffline.
type Client struct {
	url  string
	opts ClientOptions
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	next    uint64
	pending map[string]chan Message
	subs    map[string]*subscription
}

// Dial connects to url once and keeps the connection alive until Close.
func Dial(ctx context.Context, url string, opts ClientOptions, log zerolog.Logger) (*Client, error) {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	c := &Client{
		url:     url,
		opts:    opts,
		log:     log.With().Str("component", "ws-client").Str("url", url).Logger(),
		pending: map[string]chan Message{},
		subs:    map[string]*subscription{},
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.setConn(conn)
	go c.connectLoop(conn)
	return c, nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	} else if c.opts.Password != "" {
		header.Set("X-Lumi-Token", c.opts.Password)
	}
	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("dial %s: %w", c.url, remote.ErrPermissionDenied)
		}
		return nil, fmt.Errorf("dial %s: %w: %v", c.url, remote.ErrOffline, err)
	}
	return conn, nil
}

func (c *Client) connectLoop(conn *websocket.Conn) {
	for {
		c.readLoop(conn)
		c.dropConn(conn)
		if c.ctx.Err() != nil {
			return
		}
		c.log.Warn().Dur("delay", c.opts.ReconnectDelay).Msg("connection lost, reconnecting")

		for {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(c.opts.ReconnectDelay):
			}
			next, err := c.dial(c.ctx)
			if err == nil {
				conn = next
				break
			}
			c.log.Warn().Err(err).Msg("reconnect failed")
		}
		c.setConn(conn)
		c.log.Info().Msg("reconnected")
		go c.resubscribe()
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if c.ctx.Err() == nil {
				c.log.Debug().Err(err).Msg("read error")
			}
			return
		}
		switch msg.Type {
		case TypeSnapshot:
			c.mu.Lock()
			sub := c.subs[msg.Sub]
			c.mu.Unlock()
			if sub != nil && msg.Snapshot != nil {
				sub.fn(*msg.Snapshot)
			}
		case TypeResult:
			c.mu.Lock()
			ch := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()
			if ch != nil {
				ch <- msg
			}
		default:
			c.log.Warn().Str("type", msg.Type).Msg("unexpected message")
		}
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// dropConn fails every request still waiting on conn.
func (c *Client) dropConn(conn *websocket.Conn) {
	conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	pending := c.pending
	c.pending = map[string]chan Message{}
	c.mu.Unlock()
	for id, ch := range pending {
		ch <- Message{Type: TypeResult, ID: id, Code: remote.Code(remote.ErrOffline), Error: remote.ErrOffline.Error()}
	}
}

func (c *Client) resubscribe() {
	c.mu.Lock()
	subs := make(map[string]*subscription, len(c.subs))
	for id, s := range c.subs {
		subs[id] = s
	}
	c.mu.Unlock()
	for id, s := range subs {
		if _, err := c.call(c.ctx, Message{Type: TypeSubscribe, Sub: id, Path: s.path, OrderBy: s.orderBy}); err != nil {
			c.log.Error().Err(err).Str("path", s.path).Msg("resubscribe failed")
		}
	}
}

func (c *Client) nextID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	return strconv.FormatUint(c.next, 10)
}

// call sends a request and waits for its result.
func (c *Client) call(ctx context.Context, msg Message) (Message, error) {
	msg.ID = c.nextID()
	ch := make(chan Message, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return Message{}, remote.ErrOffline
	}
	c.pending[msg.ID] = ch
	c.mu.Unlock()

	if err := c.send(conn, msg); err != nil {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		return Message{}, fmt.Errorf("%w: %v", remote.ErrOffline, err)
	}

	select {
	case reply := <-ch:
		return reply, reply.Err()
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		return Message{}, ctx.Err()
	}
}

func (c *Client) send(conn *websocket.Conn, msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (c *Client) Get(ctx context.Context, path string) (remote.Snapshot, error) {
	reply, err := c.call(ctx, Message{Type: TypeGet, Path: path})
	if err != nil {
		return remote.Snapshot{}, err
	}
	if reply.Snapshot == nil {
		return remote.Snapshot{Path: path}, nil
	}
	return *reply.Snapshot, nil
}

func (c *Client) Subscribe(ctx context.Context, path, orderBy string, fn func(remote.Snapshot)) (func(), error) {
	id := "s" + c.nextID()
	c.mu.Lock()
	c.subs[id] = &subscription{path: path, orderBy: orderBy, fn: fn}
	c.mu.Unlock()

	if _, err := c.call(ctx, Message{Type: TypeSubscribe, Sub: id, Path: path, OrderBy: orderBy}); err != nil {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			conn := c.conn
			c.mu.Unlock()
			if conn != nil {
				c.send(conn, Message{Type: TypeUnsubscribe, Sub: id})
			}
		})
	}, nil
}

func (c *Client) Write(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &remote.WriteError{Op: remote.OpWrite, Path: path, Err: fmt.Errorf("%w: %v", remote.ErrInvalidValue, err)}
	}
	_, err = c.call(ctx, Message{Type: TypeWrite, Path: path, Value: raw})
	return remote.AsWriteError(remote.OpWrite, path, err)
}

func (c *Client) Update(ctx context.Context, root string, values map[string]any) error {
	raws := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return &remote.WriteError{Op: remote.OpUpdate, Path: root, Err: fmt.Errorf("%w: %v", remote.ErrInvalidValue, err)}
		}
		raws[k] = raw
	}
	_, err := c.call(ctx, Message{Type: TypeUpdate, Path: root, Values: raws})
	return remote.AsWriteError(remote.OpUpdate, root, err)
}

func (c *Client) Remove(ctx context.Context, path string) error {
	_, err := c.call(ctx, Message{Type: TypeRemove, Path: path})
	return remote.AsWriteError(remote.OpRemove, path, err)
}

// Close stops reconnecting and closes the connection.
func (c *Client) Close() error {
	c.cancel()
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return conn.Close()
}

var _ remote.Store = (*Client)(nil)
