package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soporte-labs/ticket-dashboard/internal/core/domain"
	apperrors "github.com/soporte-labs/ticket-dashboard/internal/core/errors"
	"github.com/soporte-labs/ticket-dashboard/internal/core/ports"
)

// TicketRepository is the secondary adapter for ticket persistence.
type TicketRepository struct {
	pool *pgxpool.Pool
}

// Ensure TicketRepository implements the ports.TicketRepository interface.
var _ ports.TicketRepository = (*TicketRepository)(nil)

// NewTicketRepository creates a new ticket repository.
func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

const ticketColumns = `id, created_at, description, category, sentiment, confidence, processed, status`

// scanTicket maps a database row to the core domain model.
func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket     domain.Ticket
		category   pgtype.Text
		sentiment  pgtype.Text
		confidence pgtype.Float8
		status     pgtype.Text
	)

	err := row.Scan(
		&ticket.ID,
		&ticket.CreatedAt,
		&ticket.Description,
		&category,
		&sentiment,
		&confidence,
		&ticket.Processed,
		&status,
	)
	if err != nil {
		return nil, err
	}

	if category.Valid {
		ticket.Category = domain.TicketCategory(category.String)
	}
	if sentiment.Valid {
		ticket.Sentiment = domain.TicketSentiment(sentiment.String)
	}
	if confidence.Valid {
		value := confidence.Float64
		ticket.Confidence = &value
	}
	if status.Valid {
		ticket.Status = domain.ProcessingStatus(status.String)
	}

	return &ticket, nil
}

// Create persists a new ticket entity. The database assigns id and
// created_at.
func (r *TicketRepository) Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO tickets (description, processed, status)
		 VALUES ($1, $2, $3)
		 RETURNING `+ticketColumns,
		ticket.Description,
		ticket.Processed,
		string(ticket.Status),
	)
	return scanTicket(row)
}

// GetByID retrieves a single ticket by its ID.
func (r *TicketRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`,
		id,
	)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTicketNotFound
		}
		return nil, err
	}
	return ticket, nil
}

// Update persists the classification result on an existing ticket.
func (r *TicketRepository) Update(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	category := pgtype.Text{String: string(ticket.Category), Valid: ticket.Category != ""}
	sentiment := pgtype.Text{String: string(ticket.Sentiment), Valid: ticket.Sentiment != ""}
	confidence := pgtype.Float8{}
	if ticket.Confidence != nil {
		confidence = pgtype.Float8{Float64: *ticket.Confidence, Valid: true}
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE tickets
		 SET category = $2, sentiment = $3, confidence = $4, processed = $5, status = $6
		 WHERE id = $1
		 RETURNING `+ticketColumns,
		ticket.ID,
		category,
		sentiment,
		confidence,
		ticket.Processed,
		string(ticket.Status),
	)
	updated, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTicketNotFound
		}
		return nil, err
	}
	return updated, nil
}

// SetStatus updates only the processing status of a ticket.
func (r *TicketRepository) SetStatus(ctx context.Context, id uuid.UUID, status domain.ProcessingStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tickets SET status = $2 WHERE id = $1`,
		id,
		string(status),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrTicketNotFound
	}
	return nil
}

// Delete removes a ticket and returns the removed row so the caller can
// announce it on the change feed.
func (r *TicketRepository) Delete(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	row := r.pool.QueryRow(ctx,
		`DELETE FROM tickets WHERE id = $1 RETURNING `+ticketColumns,
		id,
	)
	removed, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTicketNotFound
		}
		return nil, err
	}
	return removed, nil
}

// List retrieves tickets ordered by created_at descending. limit <= 0 means
// no limit; a nil processed filter returns everything.
func (r *TicketRepository) List(ctx context.Context, limit int, processed *bool) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets`
	args := []any{}

	if processed != nil {
		query += ` WHERE processed = $1`
		args = append(args, *processed)
	}

	query += ` ORDER BY created_at DESC`

	if limit > 0 {
		if processed != nil {
			query += ` LIMIT $2`
		} else {
			query += ` LIMIT $1`
		}
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := make([]domain.Ticket, 0)
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return tickets, nil
}
