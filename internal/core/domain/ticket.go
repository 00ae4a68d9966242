package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/soporte-labs/ticket-dashboard/internal/core/errors"
)

const (
	MinDescriptionLength = 5
	MaxDescriptionLength = 2000
)

// TicketCategory is the classification assigned by the analysis step.
type TicketCategory string

const (
	CategoryTecnico     TicketCategory = "Técnico"
	CategoryFacturacion TicketCategory = "Facturación"
	CategoryComercial   TicketCategory = "Comercial"
)

// Categories lists all valid categories in a stable order.
func Categories() []TicketCategory {
	return []TicketCategory{CategoryTecnico, CategoryFacturacion, CategoryComercial}
}

// IsValid reports whether the category is one of the allowed values.
// The empty string is not valid; unclassified tickets simply carry no category.
func (c TicketCategory) IsValid() bool {
	switch c {
	case CategoryTecnico, CategoryFacturacion, CategoryComercial:
		return true
	}
	return false
}

// TicketSentiment is the sentiment assigned by the analysis step.
type TicketSentiment string

const (
	SentimentPositivo TicketSentiment = "Positivo"
	SentimentNeutral  TicketSentiment = "Neutral"
	SentimentNegativo TicketSentiment = "Negativo"
)

// Sentiments lists all valid sentiments in a stable order.
func Sentiments() []TicketSentiment {
	return []TicketSentiment{SentimentPositivo, SentimentNeutral, SentimentNegativo}
}

// IsValid reports whether the sentiment is one of the allowed values.
func (s TicketSentiment) IsValid() bool {
	switch s {
	case SentimentPositivo, SentimentNeutral, SentimentNegativo:
		return true
	}
	return false
}

// ProcessingStatus tracks a ticket through the classification pipeline.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusDone       ProcessingStatus = "done"
	StatusError      ProcessingStatus = "error"
)

// Ticket is the core domain entity. ID and CreatedAt are assigned by the
// backend at creation time; Category, Sentiment, Confidence and Processed are
// filled in asynchronously by the classification step.
type Ticket struct {
	ID          uuid.UUID        `json:"id"`
	CreatedAt   time.Time        `json:"created_at"`
	Description string           `json:"description"`
	Category    TicketCategory   `json:"category,omitempty"`
	Sentiment   TicketSentiment  `json:"sentiment,omitempty"`
	Confidence  *float64         `json:"confidence,omitempty"`
	Processed   bool             `json:"processed"`
	Status      ProcessingStatus `json:"status,omitempty"`
}

// NewTicket validates the description and returns an unprocessed ticket.
// The backend assigns ID and CreatedAt on insert.
func NewTicket(description string) (*Ticket, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, apperrors.ErrDescriptionRequired
	}
	if len([]rune(description)) < MinDescriptionLength {
		return nil, apperrors.ErrDescriptionTooShort
	}
	if len([]rune(description)) > MaxDescriptionLength {
		return nil, apperrors.ErrDescriptionTooLong
	}

	return &Ticket{
		Description: description,
		Processed:   false,
		Status:      StatusPending,
	}, nil
}

// Analysis is the validated result of the classification service.
type Analysis struct {
	Category   TicketCategory
	Sentiment  TicketSentiment
	Confidence float64
}

// Validate checks the analysis against the allowed enumerations.
func (a Analysis) Validate() error {
	if !a.Category.IsValid() {
		return apperrors.ErrInvalidCategory
	}
	if !a.Sentiment.IsValid() {
		return apperrors.ErrInvalidSentiment
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return apperrors.ErrConfidenceOutOfRange
	}
	return nil
}

// ApplyAnalysis records the classification result on the ticket.
func (t *Ticket) ApplyAnalysis(a Analysis) error {
	if err := a.Validate(); err != nil {
		return err
	}
	confidence := a.Confidence
	t.Category = a.Category
	t.Sentiment = a.Sentiment
	t.Confidence = &confidence
	t.Processed = true
	t.Status = StatusDone
	return nil
}
