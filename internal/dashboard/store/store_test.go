package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soporte-labs/ticket-dashboard/internal/core/domain"
	"github.com/soporte-labs/ticket-dashboard/internal/dashboard/store"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fetcherFunc func(ctx context.Context) ([]domain.Ticket, error)

func (f fetcherFunc) FetchTickets(ctx context.Context) ([]domain.Ticket, error) {
	return f(ctx)
}

func staticFetcher(tickets []domain.Ticket) fetcherFunc {
	return func(ctx context.Context) ([]domain.Ticket, error) {
		return tickets, nil
	}
}

// fakeFeed records subscriptions and lets tests drive events and channel
// statuses by hand.
type fakeFeed struct {
	mu       sync.Mutex
	subs     []*fakeSub
	dialErrs []error
}

func (f *fakeFeed) Subscribe(
	ctx context.Context,
	onEvent func(domain.ChangeEvent),
	onStatus func(store.ChannelStatus),
) (store.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.dialErrs) > 0 {
		err := f.dialErrs[0]
		f.dialErrs = f.dialErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	sub := &fakeSub{onEvent: onEvent, onStatus: onStatus}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeFeed) last() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

type fakeSub struct {
	onEvent  func(domain.ChangeEvent)
	onStatus func(store.ChannelStatus)
	closed   atomic.Bool
}

func (s *fakeSub) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *fakeSub) emit(event domain.ChangeEvent)     { s.onEvent(event) }
func (s *fakeSub) status(status store.ChannelStatus) { s.onStatus(status) }
func (s *fakeSub) isClosed() bool                    { return s.closed.Load() }

func ticket(description string) domain.Ticket {
	return domain.Ticket{
		ID:          uuid.New(),
		CreatedAt:   time.Now().UTC(),
		Description: description,
		Status:      domain.StatusPending,
	}
}

func startedStore(t *testing.T, tickets []domain.Ticket) (*store.Store, *fakeFeed) {
	t.Helper()
	feed := &fakeFeed{}
	s := store.New(staticFetcher(tickets), feed, store.WithRetryBaseDelay(5*time.Millisecond))
	s.Start(context.Background())
	t.Cleanup(s.Close)
	require.Equal(t, 1, feed.count())
	return s, feed
}

func TestStore_InitialLoad(t *testing.T) {
	first := ticket("primero")
	second := ticket("segundo")

	s, feed := startedStore(t, []domain.Ticket{second, first})

	assert.False(t, s.Loading())
	assert.NoError(t, s.Err())
	assert.Equal(t, []domain.Ticket{second, first}, s.Tickets())
	assert.Equal(t, store.StatusConnecting, s.ConnectionStatus())

	feed.last().status(store.ChannelSubscribed)
	assert.Equal(t, store.StatusConnected, s.ConnectionStatus())
}

func TestStore_LoadFailure(t *testing.T) {
	feed := &fakeFeed{}
	loadErr := errors.New("api unreachable")
	s := store.New(fetcherFunc(func(ctx context.Context) ([]domain.Ticket, error) {
		return nil, loadErr
	}), feed)
	s.Start(context.Background())
	defer s.Close()

	assert.False(t, s.Loading())
	assert.ErrorIs(t, s.Err(), loadErr)
	assert.Empty(t, s.Tickets())

	// The feed subscription is still opened so the store can converge later.
	assert.Equal(t, 1, feed.count())
}

func TestStore_InsertPrepends(t *testing.T) {
	existing := ticket("existente")
	s, feed := startedStore(t, []domain.Ticket{existing})

	fresh := ticket("recién creado")
	feed.last().emit(domain.InsertEvent(&fresh))

	assert.Equal(t, []domain.Ticket{fresh, existing}, s.Tickets())
}

func TestStore_DuplicateInsertIsNoOp(t *testing.T) {
	existing := ticket("existente")
	s, feed := startedStore(t, []domain.Ticket{existing})

	fresh := ticket("nuevo")
	feed.last().emit(domain.InsertEvent(&fresh))
	feed.last().emit(domain.InsertEvent(&fresh))

	assert.Equal(t, []domain.Ticket{fresh, existing}, s.Tickets())
}

func TestStore_InsertOfLoadedTicketIsNoOp(t *testing.T) {
	existing := ticket("existente")
	s, feed := startedStore(t, []domain.Ticket{existing})

	// The feed may redeliver a row that the initial load already returned.
	feed.last().emit(domain.InsertEvent(&existing))

	assert.Equal(t, []domain.Ticket{existing}, s.Tickets())
}

func TestStore_UpdateReplacesInPlace(t *testing.T) {
	first := ticket("primero")
	second := ticket("segundo")
	s, feed := startedStore(t, []domain.Ticket{first, second})

	updated := second
	require.NoError(t, updated.ApplyAnalysis(domain.Analysis{
		Category:   domain.CategoryTecnico,
		Sentiment:  domain.SentimentNeutral,
		Confidence: 0.8,
	}))
	feed.last().emit(domain.UpdateEvent(&updated))

	tickets := s.Tickets()
	require.Len(t, tickets, 2)
	assert.Equal(t, first, tickets[0])
	assert.Equal(t, updated, tickets[1])
}

func TestStore_UpdateForUnknownTicketIsDropped(t *testing.T) {
	existing := ticket("existente")
	s, feed := startedStore(t, []domain.Ticket{existing})

	unknown := ticket("desconocido")
	feed.last().emit(domain.UpdateEvent(&unknown))

	assert.Equal(t, []domain.Ticket{existing}, s.Tickets())
}

func TestStore_DeleteRemoves(t *testing.T) {
	first := ticket("primero")
	second := ticket("segundo")
	s, feed := startedStore(t, []domain.Ticket{first, second})

	feed.last().emit(domain.DeleteEvent(&first))
	assert.Equal(t, []domain.Ticket{second}, s.Tickets())

	// Redelivery of the same delete is a no-op.
	feed.last().emit(domain.DeleteEvent(&first))
	assert.Equal(t, []domain.Ticket{second}, s.Tickets())
}

func TestStore_ChannelErrorRetriesWithLinearBackoff(t *testing.T) {
	s, feed := startedStore(t, nil)
	first := feed.last()

	first.status(store.ChannelError)
	assert.Equal(t, store.StatusDisconnected, s.ConnectionStatus())

	// A replacement subscription appears after the backoff, and the failed
	// one is torn down first.
	require.Eventually(t, func() bool { return feed.count() == 2 }, waitFor, tick)
	assert.True(t, first.isClosed())

	feed.last().status(store.ChannelSubscribed)
	assert.Equal(t, store.StatusConnected, s.ConnectionStatus())
}

func TestStore_RetryBudgetIsExhaustedAfterThreeAttempts(t *testing.T) {
	s, feed := startedStore(t, nil)

	for attempt := 1; attempt <= 3; attempt++ {
		feed.last().status(store.ChannelError)
		want := attempt + 1
		require.Eventually(t, func() bool { return feed.count() == want }, waitFor, tick,
			"attempt %d should open subscription %d", attempt, want)
	}

	// The fourth error exceeds the budget: no further subscription.
	feed.last().status(store.ChannelError)
	assert.Equal(t, store.StatusDisconnected, s.ConnectionStatus())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 4, feed.count())
}

func TestStore_SubscribedResetsRetryBudget(t *testing.T) {
	_, feed := startedStore(t, nil)

	// Burn the whole budget.
	for attempt := 1; attempt <= 3; attempt++ {
		feed.last().status(store.ChannelError)
		want := attempt + 1
		require.Eventually(t, func() bool { return feed.count() == want }, waitFor, tick)
	}

	// A successful subscription resets the counter, so the next error
	// triggers a fresh retry.
	feed.last().status(store.ChannelSubscribed)
	feed.last().status(store.ChannelError)
	require.Eventually(t, func() bool { return feed.count() == 5 }, waitFor, tick)
}

func TestStore_TimedOutDoesNotRetry(t *testing.T) {
	s, feed := startedStore(t, nil)

	feed.last().status(store.ChannelTimedOut)
	assert.Equal(t, store.StatusDisconnected, s.ConnectionStatus())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, feed.count())
}

func TestStore_ClosedDoesNotRetry(t *testing.T) {
	s, feed := startedStore(t, nil)

	feed.last().status(store.ChannelClosed)
	assert.Equal(t, store.StatusDisconnected, s.ConnectionStatus())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, feed.count())
}

func TestStore_UnknownStatusMeansConnecting(t *testing.T) {
	s, feed := startedStore(t, nil)

	feed.last().status(store.ChannelSubscribed)
	require.Equal(t, store.StatusConnected, s.ConnectionStatus())

	feed.last().status(store.ChannelStatus("JOINING"))
	assert.Equal(t, store.StatusConnecting, s.ConnectionStatus())
}

func TestStore_DialFailureSharesRetryBudget(t *testing.T) {
	feed := &fakeFeed{dialErrs: []error{errors.New("connection refused")}}
	s := store.New(staticFetcher(nil), feed, store.WithRetryBaseDelay(5*time.Millisecond))
	s.Start(context.Background())
	defer s.Close()

	// The failed dial counts as a channel error; the retry succeeds.
	require.Eventually(t, func() bool { return feed.count() == 1 }, waitFor, tick)

	feed.last().status(store.ChannelSubscribed)
	assert.Equal(t, store.StatusConnected, s.ConnectionStatus())
}

func TestStore_RefetchReplacesCollection(t *testing.T) {
	var calls atomic.Int32
	first := ticket("inicial")
	second := ticket("tras recarga")

	fetcher := fetcherFunc(func(ctx context.Context) ([]domain.Ticket, error) {
		if calls.Add(1) == 1 {
			return []domain.Ticket{first}, nil
		}
		return []domain.Ticket{second, first}, nil
	})

	feed := &fakeFeed{}
	s := store.New(fetcher, feed)
	s.Start(context.Background())
	defer s.Close()

	require.Equal(t, []domain.Ticket{first}, s.Tickets())

	require.NoError(t, s.Refetch(context.Background()))
	assert.Equal(t, []domain.Ticket{second, first}, s.Tickets())
}

func TestStore_StaleRefetchIsDiscarded(t *testing.T) {
	slowRelease := make(chan struct{})
	slowStarted := make(chan struct{})
	stale := ticket("respuesta obsoleta")
	fresh := ticket("respuesta vigente")

	var calls atomic.Int32
	fetcher := fetcherFunc(func(ctx context.Context) ([]domain.Ticket, error) {
		switch calls.Add(1) {
		case 1:
			return nil, nil
		case 2:
			close(slowStarted)
			<-slowRelease
			return []domain.Ticket{stale}, nil
		default:
			return []domain.Ticket{fresh}, nil
		}
	})

	feed := &fakeFeed{}
	s := store.New(fetcher, feed)
	s.Start(context.Background())
	defer s.Close()

	// Kick off the slow refetch, then a faster one that supersedes it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Refetch(context.Background())
	}()
	<-slowStarted
	require.NoError(t, s.Refetch(context.Background()))
	require.Equal(t, []domain.Ticket{fresh}, s.Tickets())

	// The slow response arrives late and must not clobber the newer one.
	close(slowRelease)
	<-done
	assert.Equal(t, []domain.Ticket{fresh}, s.Tickets())
	assert.False(t, s.Loading())
}

func TestStore_UpdatesSignalIsCoalesced(t *testing.T) {
	s, feed := startedStore(t, nil)

	// Drain whatever the startup sequence produced.
	for {
		select {
		case <-s.Updates():
			continue
		default:
		}
		break
	}

	fresh := ticket("nuevo")
	feed.last().emit(domain.InsertEvent(&fresh))

	select {
	case <-s.Updates():
	case <-time.After(waitFor):
		t.Fatal("expected an update signal after an insert")
	}
}

func TestStore_CloseStopsEventDelivery(t *testing.T) {
	existing := ticket("existente")
	feed := &fakeFeed{}
	s := store.New(staticFetcher([]domain.Ticket{existing}), feed)
	s.Start(context.Background())

	sub := feed.last()
	s.Close()

	assert.True(t, sub.isClosed())
	assert.Equal(t, store.StatusDisconnected, s.ConnectionStatus())

	// Events and statuses after Close are ignored.
	fresh := ticket("tarde")
	sub.emit(domain.InsertEvent(&fresh))
	sub.status(store.ChannelError)

	assert.Equal(t, []domain.Ticket{existing}, s.Tickets())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, feed.count())

	// Close is idempotent.
	s.Close()
}
