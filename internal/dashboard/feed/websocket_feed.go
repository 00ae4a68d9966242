// Package feed implements the dashboard's change-feed subscription over a
// websocket connection to the backend's /feed endpoint.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soporte-labs/ticket-dashboard/internal/core/domain"
	"github.com/soporte-labs/ticket-dashboard/internal/dashboard/store"
	"github.com/soporte-labs/ticket-dashboard/internal/feedproto"
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
)

// WebsocketFeed dials the backend change feed and implements the
// store.ChangeFeed interface.
type WebsocketFeed struct {
	url       string
	accessKey string
	logger    *slog.Logger
}

var _ store.ChangeFeed = (*WebsocketFeed)(nil)

// New creates a websocket change feed. feedURL is the ws:// or wss:// feed
// endpoint; accessKey authenticates the connection.
func New(feedURL, accessKey string, logger *slog.Logger) *WebsocketFeed {
	return &WebsocketFeed{
		url:       feedURL,
		accessKey: accessKey,
		logger:    logger.With("component", "websocket_feed"),
	}
}

// Subscribe dials the feed, requests a subscription, and delivers events and
// status transitions through the callbacks until the subscription ends. The
// returned Subscription silences all callbacks once closed.
func (f *WebsocketFeed) Subscribe(
	ctx context.Context,
	onEvent func(domain.ChangeEvent),
	onStatus func(store.ChannelStatus),
) (store.Subscription, error) {
	endpoint, err := f.endpointURL()
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing feed: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing feed: %w", err)
	}

	sub := &subscription{
		conn:     conn,
		onEvent:  onEvent,
		onStatus: onStatus,
		done:     make(chan struct{}),
		logger:   f.logger,
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(feedproto.Frame{Type: feedproto.TypeSubscribe}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("requesting subscription: %w", err)
	}

	go sub.readLoop()
	go sub.watchContext(ctx)

	return sub, nil
}

// endpointURL appends the access key to the feed URL.
func (f *WebsocketFeed) endpointURL() (string, error) {
	u, err := url.Parse(f.url)
	if err != nil {
		return "", fmt.Errorf("parsing feed URL: %w", err)
	}
	q := u.Query()
	q.Set("apikey", f.accessKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// subscription is a live feed connection. Close is idempotent and guarantees
// no callback fires afterwards.
type subscription struct {
	conn     *websocket.Conn
	onEvent  func(domain.ChangeEvent)
	onStatus func(store.ChannelStatus)
	logger   *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

var _ store.Subscription = (*subscription)(nil)

// Close tears the subscription down. Safe to call more than once.
func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		deadline := time.Now().Add(writeWait)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = s.conn.Close()
		close(s.done)
	})
	return nil
}

// watchContext closes the subscription when the context is cancelled.
func (s *subscription) watchContext(ctx context.Context) {
	select {
	case <-ctx.Done():
		_ = s.Close()
	case <-s.done:
	}
}

// readLoop pumps frames off the connection until it fails or closes, then
// reports the terminal channel status.
func (s *subscription) readLoop() {
	for {
		var frame feedproto.Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			s.emitStatus(s.terminalStatus(err))
			_ = s.Close()
			return
		}

		switch frame.Type {
		case feedproto.TypeSubscribed:
			s.emitStatus(store.ChannelSubscribed)
		case feedproto.TypePong:
			// Keepalive, nothing to deliver.
		default:
			if event, ok := frame.Event(); ok {
				s.emitEvent(event)
			} else {
				s.logger.Warn("unexpected feed frame", "type", frame.Type)
			}
		}
	}
}

// terminalStatus maps a read error to the channel status the store's state
// machine expects.
func (s *subscription) terminalStatus(err error) store.ChannelStatus {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return store.ChannelClosed
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return store.ChannelTimedOut
	}
	return store.ChannelError
}

func (s *subscription) emitStatus(status store.ChannelStatus) {
	if s.closed.Load() {
		return
	}
	s.onStatus(status)
}

func (s *subscription) emitEvent(event domain.ChangeEvent) {
	if s.closed.Load() {
		return
	}
	s.onEvent(event)
}
