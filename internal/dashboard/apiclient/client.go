// Package apiclient is the dashboard's HTTP client for the ticket API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/soporte-labs/ticket-dashboard/internal/core/domain"
	"github.com/soporte-labs/ticket-dashboard/internal/core/ports"
	"github.com/soporte-labs/ticket-dashboard/internal/dashboard/store"
)

const (
	defaultTimeout = 15 * time.Second

	// fetchLimit caps the initial load; the dashboard shows the full
	// collection, so it asks for the server's maximum page.
	fetchLimit = 1000
)

// Client talks to the ticket API. It implements the store.Fetcher interface
// so it can serve as the store's initial-load source.
type Client struct {
	baseURL    string
	httpClient *http.Client
	notifier   ports.Notifier
	logger     *slog.Logger
}

var _ store.Fetcher = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithNotifier sets the notifier invoked fire-and-forget after a successful
// ticket creation.
func WithNotifier(n ports.Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// New creates an API client for the given base URL.
func New(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.With("component", "api_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// errorBody is the API's error response shape.
type errorBody struct {
	Detail string `json:"detail"`
}

// createTicketResponse is the ticket row plus the server's outcome message.
type createTicketResponse struct {
	domain.Ticket
	Message string `json:"message"`
}

type listTicketsResponse struct {
	Tickets []domain.Ticket `json:"tickets"`
	Count   int             `json:"count"`
}

// CreateTicket submits a new ticket. On a non-2xx response the server's
// detail message becomes the error text; transport or parse failures fall
// back to a generic message. After a successful creation the configured
// notifier fires in the background and is never joined.
func (c *Client) CreateTicket(ctx context.Context, description string) (*domain.Ticket, error) {
	body, err := json.Marshal(map[string]string{"description": description})
	if err != nil {
		return nil, fmt.Errorf("encoding ticket request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/tickets", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building ticket request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.New("could not reach the ticket API")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.decodeError(resp.StatusCode, resp.Body)
	}

	var created createTicketResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decoding ticket response: %w", err)
	}

	c.logger.Info("ticket created", "ticket_id", created.ID)

	if c.notifier != nil {
		ticket := created.Ticket
		go c.notifier.NotifyTicketCreated(context.Background(), &ticket)
	}

	return &created.Ticket, nil
}

// FetchTickets loads the ticket collection, newest-first.
func (c *Client) FetchTickets(ctx context.Context) ([]domain.Ticket, error) {
	url := fmt.Sprintf("%s/tickets?limit=%d", c.baseURL, fetchLimit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building list request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching tickets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(resp.StatusCode, resp.Body)
	}

	var list listTicketsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding ticket list: %w", err)
	}

	return list.Tickets, nil
}

// Health probes the API's health endpoint. Any 2xx status counts as healthy.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	return nil
}

// decodeError turns an error response into a Go error, preferring the
// server's detail message.
func (c *Client) decodeError(status int, body io.Reader) error {
	var eb errorBody
	if err := json.NewDecoder(body).Decode(&eb); err == nil && eb.Detail != "" {
		return errors.New(eb.Detail)
	}
	return fmt.Errorf("ticket API returned status %d", status)
}
