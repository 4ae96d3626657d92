// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, event dispatch, and lifecycle control for each
// connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/roomchat/internal/chat"
)

const (
	readWait   = 60 * time.Second
	writeWait  = 10 * time.Second
	pingPeriod = 54 * time.Second
)

// Client represents one WebSocket connection. It owns the chat session for
// that connection and implements chat.Pusher for the delivery loop.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	closed         bool
	maxMessageSize int64
	limiter        *rate.Limiter
	rateLimit      RateLimitConfig
	session        *chat.Session
	logger         *slog.Logger
}

// NewClient creates a Client for conn using the hub's configuration. The
// session is attached when the hub registers the client.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		send:           make(chan []byte, cfg.SendBufferSize),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		logger:         hub.logger.With("addr", addr),
	}
}

// Push enqueues a room log snapshot without blocking. A full buffer drops
// the snapshot; the next tick carries the complete log again.
func (c *Client) Push(messages []chat.Message) bool {
	frame, err := encodeFrame(EventMessages, "", messages)
	if err != nil {
		c.logger.Error("Error encoding room log", "error", err)
		return false
	}
	return c.hub.safeSend(c, frame)
}

// reply sends a correlated response to a request event.
func (c *Client) reply(eventType, ref string, payload any) {
	frame, err := encodeFrame(eventType, ref, payload)
	if err != nil {
		c.logger.Error("Error encoding reply", "type", eventType, "error", err)
		return
	}
	if !c.hub.safeSend(c, frame) {
		c.logger.Warn("Dropped reply, send buffer unavailable", "type", eventType)
	}
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(readWait)); err != nil {
		c.logger.Error("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(readWait)); err != nil {
			c.logger.Error("Error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.logger.Warn("Message exceeded maximum size", "limit", c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.logger.Info("Client disconnected", "reason", err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.logger.Info("Client connection closed", "reason", err)
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.logger.Warn("Unexpected WebSocket error", "error", err)
		return true
	}

	c.logger.Warn("WebSocket read error", "error", err)
	return true
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the event should be processed
func (c *Client) checkRateLimit() bool {
	if c.limiter != nil && !c.limiter.Allow() {
		c.logger.Warn("Rate limit exceeded; discarding event",
			"burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// processMessage decodes a raw frame and applies it to the session.
// It returns false when the frame was malformed or unknown.
func (c *Client) processMessage(rawMessage []byte) bool {
	var env Envelope
	if err := json.Unmarshal(rawMessage, &env); err != nil {
		c.logger.Warn("Invalid frame", "error", err)
		return false
	}

	switch env.Type {
	case EventRequestIdentity:
		var req IdentityRequest
		if !c.decodePayload(env, &req) {
			return false
		}
		if user, ok := c.session.RequestIdentity(req.Username); ok {
			c.reply(EventIdentity, env.Ref, user)
		}

	case EventJoinRoom:
		var req JoinRoomRequest
		if !c.decodePayload(env, &req) {
			return false
		}
		if req.RoomID == "" {
			c.logger.Warn("joinRoom without roomId")
			return false
		}
		c.session.JoinRoom(req.RoomID)

	case EventLeaveRoom:
		c.session.LeaveRoom()

	case EventSendMessage:
		var req SendMessageRequest
		if !c.decodePayload(env, &req) {
			return false
		}
		c.session.SendMessage(req.Content)

	default:
		c.logger.Warn("Unknown event type", "type", env.Type)
		return false
	}

	return true
}

func (c *Client) decodePayload(env Envelope, v any) bool {
	if len(env.Payload) == 0 {
		c.logger.Warn("Event without payload", "type", env.Type)
		return false
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		c.logger.Warn("Invalid payload", "type", env.Type, "error", err)
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
			c.hub.removeClient(c)
		}
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				c.logger.Error("Error closing connection in readPump", "error", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if c.handleReadError(err) {
			break
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processMessage(rawMessage)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Error("Error closing connection in writePump", "error", err)
		}
	}
}

// handleMessage processes outgoing frames and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error("Error setting write deadline", "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Error("Error writing close message", "error", err)
		}
	}
	return false
}

// writeTextMessage writes one envelope per WebSocket frame so every frame
// stays a single JSON document.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error("Error writing message", "error", err)
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error("Error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error("Error writing ping message", "error", err)
		return false
	}
	return true
}
