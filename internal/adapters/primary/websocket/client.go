package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/soporte-labs/ticket-dashboard/internal/core/domain"
	"github.com/soporte-labs/ticket-dashboard/internal/feedproto"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// Client is a middleman between a feed websocket connection and the hub.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound frames.
	Send chan feedproto.Frame

	// limiter caps change-event delivery per client while preserving order.
	limiter *rate.Limiter

	// subscribed is set once the client completes the subscribe handshake.
	subscribed atomic.Bool

	// closeOnce ensures the Send channel is only closed once
	closeOnce sync.Once

	// sendMu guards Send against queueing racing CloseSend. The hub drops a
	// backed-up client while its ReadPump may still be queueing control
	// frames.
	sendMu     sync.RWMutex
	sendClosed bool

	logger *slog.Logger
}

// NewClient creates a new feed client. eventsPerSecond caps how fast change
// events are written to this client; zero disables the throttle.
func NewClient(hub *Hub, conn *websocket.Conn, eventsPerSecond float64, logger *slog.Logger) *Client {
	var limiter *rate.Limiter
	if eventsPerSecond > 0 {
		burst := int(eventsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(eventsPerSecond), burst)
	}

	return &Client{
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan feedproto.Frame, 256),
		limiter: limiter,
		logger:  logger.With("remote_addr", conn.RemoteAddr().String()),
	}
}

// RemoteAddr returns the peer address for logging.
func (c *Client) RemoteAddr() string {
	return c.Conn.RemoteAddr().String()
}

// Subscribed reports whether the client completed the subscribe handshake.
func (c *Client) Subscribed() bool {
	return c.subscribed.Load()
}

// CloseSend safely closes the Send channel exactly once
func (c *Client) CloseSend() {
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		c.sendClosed = true
		close(c.Send)
		c.sendMu.Unlock()
	})
}

// QueueEvent queues a change event for delivery. It reports false when the
// client's buffer is full or already closed.
func (c *Client) QueueEvent(event domain.ChangeEvent) bool {
	return c.trySend(feedproto.FromEvent(event))
}

// trySend queues a frame without blocking. It reports false when the Send
// channel is closed or full.
func (c *Client) trySend(frame feedproto.Frame) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()

	if c.sendClosed {
		return false
	}

	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
// This method runs in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("feed read error", "error", err)
			}
			break
		}

		c.handleIncomingMessage(message)
	}
}

// WritePump pumps frames from the hub to the websocket connection.
// This method runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			if !ok {
				// The hub closed the channel. Send close message.
				_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.Conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			// Throttle change events only; control frames go straight out.
			if _, isEvent := frame.Event(); isEvent && c.limiter != nil {
				if !c.waitForEventSlot(ticker) {
					return
				}
			}

			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if err := c.writeJSON(frame); err != nil {
				c.logger.Error("failed to write frame", "error", err)
				return
			}

		case <-ticker.C:
			if !c.ping() {
				return
			}
		}
	}
}

// waitForEventSlot blocks until the throttle admits the next change event,
// keeping pings flowing so a deep backlog cannot starve the keep-alive and
// trip the peer's read deadline.
func (c *Client) waitForEventSlot(ticker *time.Ticker) bool {
	reservation := c.limiter.Reserve()
	if !reservation.OK() {
		return false
	}

	delay := reservation.Delay()
	if delay == 0 {
		return true
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return true
		case <-ticker.C:
			if !c.ping() {
				return false
			}
		}
	}
}

func (c *Client) ping() bool {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error("failed to set write deadline for ping", "error", err)
		return false
	}

	if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug("failed to send ping", "error", err)
		return false
	}

	return true
}

func (c *Client) writeJSON(frame feedproto.Frame) error {
	w, err := c.Conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}

	if err := json.NewEncoder(w).Encode(frame); err != nil {
		_ = w.Close()
		return err
	}

	return w.Close()
}

// handleIncomingMessage processes frames received from the client.
func (c *Client) handleIncomingMessage(message []byte) {
	var frame feedproto.Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		c.logger.Warn("failed to unmarshal client frame", "error", err)
		return
	}

	switch frame.Type {
	case feedproto.TypeSubscribe:
		c.handleSubscribe()

	case feedproto.TypePing:
		// Client-side keep-alive, respond with pong
		c.sendControl(feedproto.Frame{Type: feedproto.TypePong})

	default:
		c.logger.Debug("received unknown frame type", "type", frame.Type)
	}
}

// handleSubscribe marks the client as subscribed and acknowledges. The ack
// is what flips the consumer's connection status to connected, so it must
// be sent even on a repeated subscribe.
func (c *Client) handleSubscribe() {
	c.subscribed.Store(true)
	c.sendControl(feedproto.Frame{Type: feedproto.TypeSubscribed})
}

func (c *Client) sendControl(frame feedproto.Frame) {
	// Best effort; dropped when the channel is full or already closed.
	_ = c.trySend(frame)
}
