package websocket

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soporte-labs/ticket-dashboard/internal/core/domain"
	"github.com/soporte-labs/ticket-dashboard/internal/infrastructure/logging"
)

func TestClient_PingsKeepFlowingWhileThrottled(t *testing.T) {
	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})
	serverConn, peer := wsPair(t)

	var pings atomic.Int32
	peer.SetPingHandler(func(string) error {
		pings.Add(1)
		return nil
	})
	go func() {
		for {
			if _, _, err := peer.ReadMessage(); err != nil {
				return
			}
		}
	}()

	c := NewClient(NewHub(logger), serverConn, 5, logger)

	// Exhaust the burst so the next event has to wait for a slot.
	for c.limiter.Allow() {
	}

	// A ticker far faster than the production ping period exercises the
	// same select the write pump uses.
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	require.True(t, c.waitForEventSlot(ticker))

	require.Eventually(t, func() bool { return pings.Load() >= 1 },
		time.Second, 10*time.Millisecond,
		"no ping reached the peer while an event waited for a slot")
}

func TestClient_QueueEventAfterCloseIsRejected(t *testing.T) {
	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})
	serverConn, _ := wsPair(t)

	c := NewClient(NewHub(logger), serverConn, 0, logger)
	c.CloseSend()
	c.CloseSend()

	ticket := &domain.Ticket{ID: uuid.New(), Description: "tras el cierre"}
	assert.False(t, c.QueueEvent(domain.InsertEvent(ticket)))
}
