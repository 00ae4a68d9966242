package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/soporte-labs/ticket-dashboard/internal/core/domain"
	apperrors "github.com/soporte-labs/ticket-dashboard/internal/core/errors"
	"github.com/soporte-labs/ticket-dashboard/internal/core/ports"
)

// List limits applied by ListTickets. Exported so the HTTP layer can report
// the effective limit without duplicating the values.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// TicketService implements business logic for ticket management.
type TicketService struct {
	ticketRepo  ports.TicketRepository
	analyzer    ports.Analyzer
	notifier    ports.Notifier
	broadcaster ports.EventBroadcaster
	logger      *slog.Logger
	wg          sync.WaitGroup
}

var _ ports.TicketService = (*TicketService)(nil)

// NewTicketService creates a new ticket service.
func NewTicketService(
	ticketRepo ports.TicketRepository,
	analyzer ports.Analyzer,
	notifier ports.Notifier,
	broadcaster ports.EventBroadcaster,
	logger *slog.Logger,
) *TicketService {
	return &TicketService{
		ticketRepo:  ticketRepo,
		analyzer:    analyzer,
		notifier:    notifier,
		broadcaster: broadcaster,
		logger:      logger.With("component", "ticket_service"),
	}
}

// CreateTicket handles the use case for submitting a new ticket. The ticket
// is stored unprocessed; classification happens later via ProcessTicket.
// The webhook notification is fire-and-forget: its failure never rolls back
// or fails the creation.
func (s *TicketService) CreateTicket(ctx context.Context, params ports.CreateTicketParams) (*domain.Ticket, error) {
	ticket, err := domain.NewTicket(params.Description)
	if err != nil {
		return nil, err
	}

	created, err := s.ticketRepo.Create(ctx, ticket)
	if err != nil {
		return nil, err
	}

	s.broadcast(domain.InsertEvent(created))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// The request context may be done by the time the notification
		// fires; use a background context.
		s.notifier.NotifyTicketCreated(context.Background(), created)
	}()

	return created, nil
}

// ProcessTicket runs the classification pipeline for an existing ticket.
// Processing an already-processed ticket is a no-op returning the stored
// result, so repeated deliveries of the same processing request are safe.
func (s *TicketService) ProcessTicket(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error) {
	ticket, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if ticket.Processed {
		s.logger.Info("ticket already processed", "ticket_id", ticketID)
		return ticket, nil
	}

	if err := s.ticketRepo.SetStatus(ctx, ticketID, domain.StatusProcessing); err != nil {
		// Status is advisory; classification proceeds regardless.
		s.logger.Warn("failed to mark ticket as processing", "ticket_id", ticketID, "error", err)
	}

	analysis, err := s.analyzer.Analyze(ctx, ticket.Description)
	if err != nil {
		s.markError(ticketID)
		return nil, apperrors.NewAnalysisError(err)
	}

	if err := ticket.ApplyAnalysis(analysis); err != nil {
		s.markError(ticketID)
		return nil, apperrors.NewAnalysisError(err)
	}

	updated, err := s.ticketRepo.Update(ctx, ticket)
	if err != nil {
		s.markError(ticketID)
		return nil, err
	}

	s.broadcast(domain.UpdateEvent(updated))

	return updated, nil
}

// GetTicket retrieves a single ticket by id.
func (s *TicketService) GetTicket(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error) {
	return s.ticketRepo.GetByID(ctx, ticketID)
}

// DeleteTicket removes a ticket and announces the removal on the feed.
// Deletion is an administrative action; the dashboard never triggers it.
func (s *TicketService) DeleteTicket(ctx context.Context, ticketID uuid.UUID) error {
	removed, err := s.ticketRepo.Delete(ctx, ticketID)
	if err != nil {
		return err
	}

	s.broadcast(domain.DeleteEvent(removed))
	return nil
}

// ListTickets returns tickets newest-first with an optional processed filter.
func (s *TicketService) ListTickets(ctx context.Context, params ports.ListTicketsParams) ([]domain.Ticket, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.ticketRepo.List(ctx, limit, params.Processed)
}

// Stats aggregates counts over the full ticket collection.
func (s *TicketService) Stats(ctx context.Context) (domain.Stats, error) {
	tickets, err := s.ticketRepo.List(ctx, 0, nil)
	if err != nil {
		return domain.Stats{}, err
	}
	return domain.ComputeStats(tickets), nil
}

// Shutdown waits for in-flight background notifications.
func (s *TicketService) Shutdown() {
	s.wg.Wait()
}

func (s *TicketService) broadcast(event domain.ChangeEvent) {
	if err := s.broadcaster.Broadcast(event); err != nil {
		s.logger.Warn("failed to broadcast change event",
			"event_type", event.Type,
			"ticket_id", event.TicketID(),
			"error", err,
		)
	}
}

func (s *TicketService) markError(ticketID uuid.UUID) {
	if err := s.ticketRepo.SetStatus(context.Background(), ticketID, domain.StatusError); err != nil &&
		!errors.Is(err, apperrors.ErrTicketNotFound) {
		s.logger.Warn("failed to mark ticket as errored", "ticket_id", ticketID, "error", err)
	}
}
