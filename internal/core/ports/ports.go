package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/soporte-labs/ticket-dashboard/internal/core/domain"
)

// TicketRepository is the port for ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Ticket, error)
	Update(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error)
	SetStatus(ctx context.Context, id uuid.UUID, status domain.ProcessingStatus) error
	Delete(ctx context.Context, id uuid.UUID) (*domain.Ticket, error)
	// List returns tickets ordered by created_at descending. A nil processed
	// filter returns everything up to limit.
	List(ctx context.Context, limit int, processed *bool) ([]domain.Ticket, error)
}

// Analyzer is the port for the external classification service.
type Analyzer interface {
	Analyze(ctx context.Context, description string) (domain.Analysis, error)
}

// EventBroadcaster is the port for publishing change events to the feed.
type EventBroadcaster interface {
	Broadcast(event domain.ChangeEvent) error
}

// Notifier is the port for best-effort outbound notifications. Notify must
// never block ticket creation on failure; implementations log and move on.
type Notifier interface {
	NotifyTicketCreated(ctx context.Context, ticket *domain.Ticket)
}

// CreateTicketParams defines the required input for creating a new ticket.
type CreateTicketParams struct {
	Description string
}

// ListTicketsParams defines the input for listing tickets.
type ListTicketsParams struct {
	Limit     int
	Processed *bool
}

// TicketService defines the core business operations for managing tickets.
type TicketService interface {
	CreateTicket(ctx context.Context, params CreateTicketParams) (*domain.Ticket, error)
	ProcessTicket(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error)
	GetTicket(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error)
	DeleteTicket(ctx context.Context, ticketID uuid.UUID) error
	ListTickets(ctx context.Context, params ListTicketsParams) ([]domain.Ticket, error)
	Stats(ctx context.Context) (domain.Stats, error)
	Shutdown()
}
