// Package client is the session controller counterpart of the signaling
// server: a websocket caller with acknowledgement tracking plus a local
// mirror of the server-side session state.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/adapters/signal"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	callTimeout    = 10 * time.Second
)

var (
	ErrCallTimeout = errors.New("call timed out")
	ErrClosed      = errors.New("client closed")
)

// NotificationHandler receives server-pushed frames (id zero).
type NotificationHandler func(typ string, data json.RawMessage)

// Client is the websocket half: it sends requests, matches "response" frames
// to pending calls by id and hands everything else to the notification
// handler.
type Client struct {
	conn     *websocket.Conn
	outgoing chan []byte
	done     chan struct{}

	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan json.RawMessage
	onNotif NotificationHandler
	closed  bool
}

// Dial connects to the signaling endpoint. The header can carry the "ct"
// client-token cookie to resume a previous session.
func Dial(url string, header http.Header) (*Client, error) {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.Dial(url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c := &Client{
		conn:     conn,
		outgoing: make(chan []byte, 16),
		done:     make(chan struct{}),
		pending:  make(map[uint64]chan json.RawMessage),
	}
	go c.readPump()
	go c.writePump()
	return c, nil
}

// OnNotification sets the handler for server-pushed frames. Set it before
// joining a room or early notifications are dropped.
func (c *Client) OnNotification(h NotificationHandler) {
	c.mu.Lock()
	c.onNotif = h
	c.mu.Unlock()
}

func (c *Client) readPump() {
	defer c.Close()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env signal.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("bad frame")
			continue
		}
		if env.Type == signal.TypeResponse {
			c.resolve(env.ID, env.Data)
			continue
		}
		c.mu.Lock()
		h := c.onNotif
		c.mu.Unlock()
		if h != nil {
			h(env.Type, env.Data)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) resolve(id uint64, data json.RawMessage) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if !ok {
		log.Warn().Str("module", "client").Uint64("id", id).Msg("response for unknown call")
		return
	}
	ch <- data
}

// Call sends a request and blocks until the matching response arrives, the
// context ends or the call times out. A response carrying an error field is
// returned as an error; otherwise the result is unmarshalled into out (which
// may be nil).
func (c *Client) Call(ctx context.Context, typ string, payload, out any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	id := c.nextID.Add(1)
	ch := make(chan json.RawMessage, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.send(signal.Envelope{Type: typ, ID: id}, payload); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return err
	}

	timer := time.NewTimer(callTimeout)
	defer timer.Stop()
	select {
	case data, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		var probe signal.ErrorResult
		if err := json.Unmarshal(data, &probe); err == nil && probe.Error != "" {
			return fmt.Errorf("%s: %s", typ, probe.Error)
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal(data, out)
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-timer.C:
		c.forget(id)
		return fmt.Errorf("%s: %w", typ, ErrCallTimeout)
	}
}

// Notify sends a fire-and-forget frame.
func (c *Client) Notify(typ string, payload any) error {
	return c.send(signal.Envelope{Type: typ}, payload)
}

func (c *Client) send(env signal.Envelope, payload any) error {
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		env.Data = data
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case c.outgoing <- b:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	close(c.done)
	c.mu.Unlock()
	_ = c.conn.Close()
}
