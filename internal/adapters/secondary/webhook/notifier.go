package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/soporte-labs/ticket-dashboard/internal/core/domain"
	"github.com/soporte-labs/ticket-dashboard/internal/core/ports"
)

// Notifier is a secondary adapter that posts ticket events to an external
// automation webhook. It implements the ports.Notifier interface.
//
// Delivery is strictly best-effort: failures are logged and never surfaced
// to the caller, and a missing URL turns the notifier into a no-op.
type Notifier struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewNotifier creates a new webhook notifier. An empty url disables delivery.
func NewNotifier(url string, timeout time.Duration, logger *slog.Logger) ports.Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger.With("component", "webhook_notifier"),
	}
}

// payload is the JSON body posted to the webhook endpoint.
type payload struct {
	Event     string       `json:"event"`
	Ticket    ticketFields `json:"ticket"`
	Timestamp string       `json:"timestamp"`
}

type ticketFields struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	Sentiment   string `json:"sentiment,omitempty"`
}

// NotifyTicketCreated posts a ticket_created event to the configured webhook.
func (n *Notifier) NotifyTicketCreated(ctx context.Context, ticket *domain.Ticket) {
	n.deliver(ctx, "ticket_created", ticket)
}

func (n *Notifier) deliver(ctx context.Context, event string, ticket *domain.Ticket) {
	if n.url == "" {
		return
	}

	body, err := json.Marshal(payload{
		Event: event,
		Ticket: ticketFields{
			ID:          ticket.ID.String(),
			Description: ticket.Description,
			Category:    string(ticket.Category),
			Sentiment:   string(ticket.Sentiment),
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		n.logger.Error("failed to encode webhook payload",
			"event", event,
			"ticket_id", ticket.ID,
			"error", err,
		)
		return
	}

	deliverCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(deliverCtx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("failed to build webhook request",
			"event", event,
			"ticket_id", ticket.ID,
			"error", err,
		)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed",
			"event", event,
			"ticket_id", ticket.ID,
			"error", err,
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn("webhook returned non-success status",
			"event", event,
			"ticket_id", ticket.ID,
			"status", resp.StatusCode,
		)
		return
	}

	n.logger.Info("webhook delivered",
		"event", event,
		"ticket_id", ticket.ID,
		"status", resp.StatusCode,
	)
}
