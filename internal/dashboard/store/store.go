// Package store holds the dashboard's in-memory ticket collection and keeps
// it synchronized with the backend through an initial full load plus a
// realtime change feed.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soporte-labs/ticket-dashboard/internal/core/domain"
)

// Status is the connection state the dashboard surfaces to its consumers.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// ChannelStatus is the feed-level subscription status reported by a
// ChangeFeed. The values mirror the states a realtime channel goes through.
type ChannelStatus string

const (
	ChannelSubscribed ChannelStatus = "SUBSCRIBED"
	ChannelError      ChannelStatus = "CHANNEL_ERROR"
	ChannelTimedOut   ChannelStatus = "TIMED_OUT"
	ChannelClosed     ChannelStatus = "CLOSED"
)

// Fetcher loads the full ticket collection from the backend.
type Fetcher interface {
	FetchTickets(ctx context.Context) ([]domain.Ticket, error)
}

// ChangeFeed delivers row-level change events and subscription status
// transitions through the provided callbacks until the subscription is
// closed.
type ChangeFeed interface {
	Subscribe(ctx context.Context, onEvent func(domain.ChangeEvent), onStatus func(ChannelStatus)) (Subscription, error)
}

// Subscription is a handle on an active feed subscription. Close tears the
// subscription down; no callbacks fire after Close returns.
type Subscription interface {
	Close() error
}

const (
	defaultMaxRetries     = 3
	defaultRetryBaseDelay = 2 * time.Second
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for state transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithMaxRetries bounds how many reconnection attempts a Store makes over
// its lifetime.
func WithMaxRetries(n int) Option {
	return func(s *Store) { s.maxRetries = n }
}

// WithRetryBaseDelay sets the base for the linear reconnection backoff:
// attempt n waits n times this delay.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(s *Store) { s.retryBaseDelay = d }
}

// Store keeps tickets ordered newest-first and applies feed events to them.
// All exported methods are safe for concurrent use.
type Store struct {
	fetcher        Fetcher
	feed           ChangeFeed
	logger         *slog.Logger
	maxRetries     int
	retryBaseDelay time.Duration

	mu         sync.Mutex
	tickets    []domain.Ticket
	loading    bool
	err        error
	status     Status
	retryCount int
	fetchSeq   uint64
	sub        Subscription
	retryTimer *time.Timer
	closed     bool

	ctx     context.Context
	updates chan struct{}
}

// New creates a Store. Call Start to perform the initial load and open the
// feed subscription.
func New(fetcher Fetcher, feed ChangeFeed, opts ...Option) *Store {
	s := &Store{
		fetcher:        fetcher,
		feed:           feed,
		logger:         slog.Default(),
		maxRetries:     defaultMaxRetries,
		retryBaseDelay: defaultRetryBaseDelay,
		status:         StatusConnecting,
		loading:        true,
		updates:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "ticket_store")
	return s
}

// Start performs the initial full load and opens the feed subscription. Load
// failures are surfaced through Err, not returned; the subscription is opened
// either way so the store can still converge via the feed.
func (s *Store) Start(ctx context.Context) {
	s.ctx = ctx
	_ = s.load(ctx)
	s.subscribe()
}

// Refetch reloads the full ticket collection. Concurrent refetches are
// sequence-guarded: only the most recently issued load may publish its
// result, stale responses are discarded.
func (s *Store) Refetch(ctx context.Context) error {
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.fetchSeq++
	seq := s.fetchSeq
	s.loading = true
	s.notifyLocked()
	s.mu.Unlock()

	tickets, err := s.fetcher.FetchTickets(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.fetchSeq {
		// A newer load superseded this one.
		return nil
	}
	s.loading = false
	if err != nil {
		s.err = err
		s.logger.Error("ticket load failed", "error", err)
		s.notifyLocked()
		return err
	}
	s.err = nil
	s.tickets = append([]domain.Ticket(nil), tickets...)
	s.logger.Info("tickets loaded", "count", len(tickets))
	s.notifyLocked()
	return nil
}

// subscribe opens a feed subscription and records it. A dial failure is
// treated like a channel error so it shares the retry budget.
func (s *Store) subscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.setStatusLocked(StatusConnecting)
	s.mu.Unlock()

	sub, err := s.feed.Subscribe(s.ctx, s.applyEvent, s.handleChannelStatus)
	if err != nil {
		s.logger.Warn("feed subscription failed", "error", err)
		s.handleChannelStatus(ChannelError)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = sub.Close()
		return
	}
	s.sub = sub
	s.mu.Unlock()
}

// handleChannelStatus drives the reconnect state machine.
func (s *Store) handleChannelStatus(status ChannelStatus) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	switch status {
	case ChannelSubscribed:
		s.retryCount = 0
		s.setStatusLocked(StatusConnected)
		s.mu.Unlock()

	case ChannelError:
		s.setStatusLocked(StatusDisconnected)
		if s.retryCount >= s.maxRetries {
			s.logger.Error("feed retry budget exhausted", "retries", s.retryCount)
			s.mu.Unlock()
			return
		}
		s.retryCount++
		attempt := s.retryCount
		delay := time.Duration(attempt) * s.retryBaseDelay

		// Tear down the failed subscription before scheduling a new one.
		old := s.sub
		s.sub = nil
		s.retryTimer = time.AfterFunc(delay, s.subscribe)
		s.mu.Unlock()

		if old != nil {
			_ = old.Close()
		}
		s.logger.Warn("feed channel error, scheduling reconnect",
			"attempt", attempt,
			"delay", delay,
		)

	case ChannelTimedOut, ChannelClosed:
		s.setStatusLocked(StatusDisconnected)
		s.logger.Warn("feed subscription ended", "status", string(status))
		s.mu.Unlock()

	default:
		s.setStatusLocked(StatusConnecting)
		s.mu.Unlock()
	}
}

// applyEvent folds a single change event into the collection. Events are
// applied exactly once; redeliveries and events for unknown rows are no-ops.
func (s *Store) applyEvent(event domain.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	switch event.Type {
	case domain.ChangeInsert:
		if event.New == nil {
			return
		}
		if s.indexOfLocked(event.New.ID) >= 0 {
			return
		}
		s.tickets = append([]domain.Ticket{*event.New}, s.tickets...)

	case domain.ChangeUpdate:
		if event.New == nil {
			return
		}
		i := s.indexOfLocked(event.New.ID)
		if i < 0 {
			return
		}
		s.tickets[i] = *event.New

	case domain.ChangeDelete:
		if event.Old == nil {
			return
		}
		i := s.indexOfLocked(event.Old.ID)
		if i < 0 {
			return
		}
		s.tickets = append(s.tickets[:i], s.tickets[i+1:]...)

	default:
		return
	}

	s.notifyLocked()
}

func (s *Store) indexOfLocked(id uuid.UUID) int {
	for i := range s.tickets {
		if s.tickets[i].ID == id {
			return i
		}
	}
	return -1
}

// Tickets returns a copy of the current collection, newest-first.
func (s *Store) Tickets() []domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Ticket(nil), s.tickets...)
}

// Loading reports whether a full load is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the error from the most recent completed load, if any.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ConnectionStatus returns the current feed connection state.
func (s *Store) ConnectionStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Stats aggregates the current collection.
func (s *Store) Stats() domain.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ComputeStats(s.tickets)
}

// Updates returns a channel that receives a coalesced signal whenever the
// store's observable state changes.
func (s *Store) Updates() <-chan struct{} {
	return s.updates
}

// Close tears down the subscription and cancels any pending reconnect. The
// store stops accepting events and loads after Close.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
	sub := s.sub
	s.sub = nil
	s.status = StatusDisconnected
	s.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}
	s.logger.Info("ticket store closed")
}

func (s *Store) setStatusLocked(status Status) {
	if s.status == status {
		return
	}
	s.logger.Info("connection status changed",
		"from", string(s.status),
		"to", string(status),
	)
	s.status = status
	s.notifyLocked()
}

// notifyLocked publishes a coalesced update signal. Callers must hold mu.
func (s *Store) notifyLocked() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
