package feed_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpAdapter "github.com/soporte-labs/ticket-dashboard/internal/adapters/primary/http"
	wsAdapter "github.com/soporte-labs/ticket-dashboard/internal/adapters/primary/websocket"
	"github.com/soporte-labs/ticket-dashboard/internal/auth"
	"github.com/soporte-labs/ticket-dashboard/internal/config"
	"github.com/soporte-labs/ticket-dashboard/internal/core/domain"
	"github.com/soporte-labs/ticket-dashboard/internal/dashboard/feed"
	"github.com/soporte-labs/ticket-dashboard/internal/dashboard/store"
	"github.com/soporte-labs/ticket-dashboard/internal/infrastructure/logging"
)

const testSecret = "integration-test-secret-0123456789"

// feedServer wires a real hub and feed handler behind an httptest server.
func feedServer(t *testing.T) (*wsAdapter.Hub, string) {
	t.Helper()

	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})
	cfg := &config.Config{
		Feed: config.FeedConfig{
			AccessKeySecret: testSecret,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			EventsPerSecond: 100,
		},
		App: config.AppConfig{Environment: "development"},
	}

	hub := wsAdapter.NewHub(logger)
	go hub.Run()

	km := auth.NewKeyManager(testSecret)
	handler := httpAdapter.NewFeedHandler(hub, km, cfg, logger)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return hub, wsURL
}

func accessKey(t *testing.T) string {
	t.Helper()
	km := auth.NewKeyManager(testSecret)
	key, err := km.GenerateAccessKey(auth.RoleAnon, time.Hour)
	require.NoError(t, err)
	return key
}

func TestWebsocketFeed_SubscribeAndReceive(t *testing.T) {
	hub, wsURL := feedServer(t)
	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})

	events := make(chan domain.ChangeEvent, 16)
	statuses := make(chan store.ChannelStatus, 16)

	f := feed.New(wsURL, accessKey(t), logger)
	sub, err := f.Subscribe(context.Background(),
		func(e domain.ChangeEvent) { events <- e },
		func(s store.ChannelStatus) { statuses <- s },
	)
	require.NoError(t, err)
	defer sub.Close()

	// The server acks the subscribe handshake.
	select {
	case status := <-statuses:
		assert.Equal(t, store.ChannelSubscribed, status)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the subscribed ack")
	}

	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	// A broadcast reaches the subscriber as a change event.
	ticket := &domain.Ticket{ID: uuid.New(), Description: "Evento en vivo"}
	require.NoError(t, hub.Broadcast(domain.InsertEvent(ticket)))

	select {
	case event := <-events:
		assert.Equal(t, domain.ChangeInsert, event.Type)
		require.NotNil(t, event.New)
		assert.Equal(t, ticket.ID, event.New.ID)
		assert.Equal(t, "Evento en vivo", event.New.Description)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the insert event")
	}
}

func TestWebsocketFeed_EventOrderIsPreserved(t *testing.T) {
	hub, wsURL := feedServer(t)
	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})

	events := make(chan domain.ChangeEvent, 16)
	f := feed.New(wsURL, accessKey(t), logger)
	sub, err := f.Subscribe(context.Background(),
		func(e domain.ChangeEvent) { events <- e },
		func(store.ChannelStatus) {},
	)
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	first := &domain.Ticket{ID: uuid.New(), Description: "primero"}
	second := first
	updated := *first
	updated.Processed = true

	require.NoError(t, hub.Broadcast(domain.InsertEvent(first)))
	require.NoError(t, hub.Broadcast(domain.UpdateEvent(&updated)))
	require.NoError(t, hub.Broadcast(domain.DeleteEvent(second)))

	wantTypes := []domain.ChangeType{domain.ChangeInsert, domain.ChangeUpdate, domain.ChangeDelete}
	for _, want := range wantTypes {
		select {
		case event := <-events:
			assert.Equal(t, want, event.Type)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestWebsocketFeed_RejectsMissingKey(t *testing.T) {
	_, wsURL := feedServer(t)
	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})

	f := feed.New(wsURL, "", logger)
	_, err := f.Subscribe(context.Background(),
		func(domain.ChangeEvent) {},
		func(store.ChannelStatus) {},
	)
	assert.Error(t, err)
}

func TestWebsocketFeed_RejectsInvalidKey(t *testing.T) {
	_, wsURL := feedServer(t)
	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})

	f := feed.New(wsURL, "not-a-valid-key", logger)
	_, err := f.Subscribe(context.Background(),
		func(domain.ChangeEvent) {},
		func(store.ChannelStatus) {},
	)
	assert.Error(t, err)
}

func TestWebsocketFeed_CloseSilencesCallbacks(t *testing.T) {
	hub, wsURL := feedServer(t)
	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})

	events := make(chan domain.ChangeEvent, 16)
	statuses := make(chan store.ChannelStatus, 16)

	f := feed.New(wsURL, accessKey(t), logger)
	sub, err := f.Subscribe(context.Background(),
		func(e domain.ChangeEvent) { events <- e },
		func(s store.ChannelStatus) { statuses <- s },
	)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "close must be idempotent")

	// Drain anything that raced the close, then verify silence.
	time.Sleep(100 * time.Millisecond)
	for len(events) > 0 {
		<-events
	}
	for len(statuses) > 0 {
		<-statuses
	}

	ticket := &domain.Ticket{ID: uuid.New(), Description: "tras el cierre"}
	require.NoError(t, hub.Broadcast(domain.InsertEvent(ticket)))

	select {
	case event := <-events:
		t.Fatalf("received event after close: %v", event.Type)
	case status := <-statuses:
		t.Fatalf("received status after close: %s", status)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWebsocketFeed_ContextCancelClosesSubscription(t *testing.T) {
	hub, wsURL := feedServer(t)
	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})

	ctx, cancel := context.WithCancel(context.Background())

	f := feed.New(wsURL, accessKey(t), logger)
	_, err := f.Subscribe(ctx,
		func(domain.ChangeEvent) {},
		func(store.ChannelStatus) {},
	)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	cancel()

	// The server notices the client going away and unregisters it.
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}
