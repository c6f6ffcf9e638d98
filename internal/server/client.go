// Package server manages individual WebSocket sessions, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	pingInterval  = 54 * time.Second
	sendQueueSize = 256
)

// Client is one WebSocket session: a channel bound to a single room for its
// whole lifetime, feeding inbound frames to the router and draining
// outbound events through its send queue.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	registry *Registry
	router   *Router
	roomID   string
	addr     string
	limiter  *rateLimiter

	// identity is the last user email seen on an identity-bearing frame.
	// Touched by the read pump only.
	identity string

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient wraps an upgraded connection into a session bound to the given
// room.
func NewClient(conn *websocket.Conn, registry *Registry, router *Router, roomID, addr string, cfg Config) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:     conn,
		send:     make(chan []byte, sendQueueSize),
		registry: registry,
		router:   router,
		roomID:   roomID,
		addr:     addr,
		limiter:  newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		done:     make(chan struct{}),
	}
}

// Deliver queues one outbound event for the session. It never blocks: a
// full queue or a closed session is reported as an error so broadcast loops
// can log and move on.
func (c *Client) Deliver(event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode outbound event: %w", err)
	}

	select {
	case <-c.done:
		return fmt.Errorf("session %s closed", c.addr)
	case c.send <- payload:
		return nil
	default:
		return fmt.Errorf("send queue full for %s", c.addr)
	}
}

// Close tears the session down. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// Run binds the session to its room, starts the write pump, and blocks in
// the read pump until the connection goes away. On exit the session is
// removed from the registry; the identity mapping is released only while it
// still points at this channel, so a takeover survives its predecessor's
// disconnect.
func (c *Client) Run() {
	c.registry.BindRoom(c.roomID, c)
	go c.writePump()

	c.readPump()

	c.registry.UnbindRoom(c.roomID, c)
	if c.identity != "" {
		c.registry.Release(c.identity, c)
	}
	c.Close()
}

func (c *Client) readPump() {
	defer func() {
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in readPump: %v", err)
		}
	}()

	if err := c.conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		log.Printf("Error setting read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.limiter.allow() {
			log.Printf("Rate limit exceeded for %s; discarding event", c.addr)
			continue
		}

		c.handleFrame(raw)
	}
}

// handleFrame decodes and dispatches one inbound frame. Any fault is
// contained to this frame: it is logged and the session keeps reading.
func (c *Client) handleFrame(raw []byte) {
	ev, err := DecodeEvent(raw)
	if errors.Is(err, ErrUnknownEventType) {
		log.Printf("Dropping event from %s: %v", c.addr, err)
		return
	}
	if err != nil {
		log.Printf("Rejecting malformed event from %s: %v", c.addr, err)
		return
	}

	if identity := eventIdentity(ev); identity != "" {
		if prev := c.registry.Takeover(identity, c); prev != nil {
			log.Printf("Identity %s taken over by connection from %s", identity, c.addr)
		}
		c.identity = identity
	}

	if err := c.router.Dispatch(context.Background(), c, c.roomID, ev); err != nil {
		log.Printf("Event %T from %s failed: %v", ev, c.addr, err)
	}
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("Message from %s exceeded the maximum size", c.addr)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Printf("Client %s disconnected: %v", c.addr, err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		log.Printf("Client %s connection closed: %v", c.addr, err)
	default:
		log.Printf("WebSocket read error from %s: %v", c.addr, err)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}()

	for {
		select {
		case payload := <-c.send:
			if !c.write(websocket.TextMessage, payload) {
				return
			}
		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}
		case <-c.done:
			c.write(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) write(messageType int, payload []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(messageType, payload); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
