package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/soporte-labs/ticket-dashboard/internal/core/domain"
	apperrors "github.com/soporte-labs/ticket-dashboard/internal/core/errors"
	"github.com/soporte-labs/ticket-dashboard/internal/core/ports"
	"github.com/soporte-labs/ticket-dashboard/internal/core/services"
)

// TicketHandler handles HTTP requests for tickets
type TicketHandler struct {
	ticketService ports.TicketService
	errorHandler  *ErrorHandler
	logger        *slog.Logger
}

// NewTicketHandler creates a new ticket handler
func NewTicketHandler(
	ticketService ports.TicketService,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *TicketHandler {
	return &TicketHandler{
		ticketService: ticketService,
		errorHandler:  errorHandler,
		logger:        logger.With("handler", "ticket"),
	}
}

// RegisterRoutes sets up the routing for all ticket endpoints.
func (h *TicketHandler) RegisterRoutes(r chi.Router) {
	r.Post("/tickets", h.HandleCreateTicket)
	r.Post("/process-ticket", h.HandleProcessTicket)
	r.Get("/tickets", h.HandleListTickets)
	r.Get("/stats", h.HandleStats)

	r.Route("/tickets/{ticketID}", func(r chi.Router) {
		r.Get("/", h.HandleGetTicket)
		r.Delete("/", h.HandleDeleteTicket)
	})
}

// --- Request/Response DTOs ---

// CreateTicketRequest defines the expected JSON body for creating a ticket
type CreateTicketRequest struct {
	Description string `json:"description"`
}

// ProcessTicketRequest defines the expected JSON body for processing a ticket
type ProcessTicketRequest struct {
	TicketID string `json:"ticket_id"`
}

// TicketResponse is a ticket row plus a human-readable outcome message.
type TicketResponse struct {
	domain.Ticket
	Message string `json:"message,omitempty"`
}

// TicketListResponse defines the JSON response for ticket listings
type TicketListResponse struct {
	Tickets []domain.Ticket `json:"tickets"`
	Count   int             `json:"count"`
	Limit   int             `json:"limit"`
}

// --- Handlers ---

// HandleCreateTicket handles POST /tickets. The ticket is stored unprocessed;
// classification is triggered separately via POST /process-ticket.
func (h *TicketHandler) HandleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req CreateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid JSON body"))
		return
	}

	ticket, err := h.ticketService.CreateTicket(r.Context(), ports.CreateTicketParams{
		Description: req.Description,
	})
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	h.logger.Info("ticket created", "ticket_id", ticket.ID)

	WriteCreated(w, TicketResponse{
		Ticket:  *ticket,
		Message: "Ticket created successfully",
	})
}

// HandleProcessTicket handles POST /process-ticket
func (h *TicketHandler) HandleProcessTicket(w http.ResponseWriter, r *http.Request) {
	var req ProcessTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid JSON body"))
		return
	}

	ticketID, err := uuid.Parse(req.TicketID)
	if err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid ticket_id"))
		return
	}

	ticket, err := h.ticketService.ProcessTicket(r.Context(), ticketID)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	h.logger.Info("ticket processed",
		"ticket_id", ticket.ID,
		"category", ticket.Category,
		"sentiment", ticket.Sentiment,
	)

	WriteJSON(w, http.StatusOK, TicketResponse{
		Ticket:  *ticket,
		Message: "Ticket processed successfully",
	})
}

// HandleListTickets handles GET /tickets
func (h *TicketHandler) HandleListTickets(w http.ResponseWriter, r *http.Request) {
	params := ports.ListTicketsParams{}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(apperrors.ErrBadRequest, "Invalid limit"))
			return
		}
		params.Limit = limit
	}

	if raw := r.URL.Query().Get("processed"); raw != "" {
		processed, err := strconv.ParseBool(raw)
		if err != nil {
			h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(apperrors.ErrBadRequest, "Invalid processed filter"))
			return
		}
		params.Processed = &processed
	}

	tickets, err := h.ticketService.ListTickets(r.Context(), params)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	limit := params.Limit
	if limit == 0 {
		limit = services.DefaultListLimit
	}

	WriteJSON(w, http.StatusOK, TicketListResponse{
		Tickets: tickets,
		Count:   len(tickets),
		Limit:   limit,
	})
}

// HandleGetTicket handles GET /tickets/{ticketID}
func (h *TicketHandler) HandleGetTicket(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := h.parseTicketID(w, r)
	if !ok {
		return
	}

	ticket, err := h.ticketService.GetTicket(r.Context(), ticketID)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteJSON(w, http.StatusOK, ticket)
}

// HandleDeleteTicket handles DELETE /tickets/{ticketID}. Deletion is an
// administrative action; the dashboard itself never calls it.
func (h *TicketHandler) HandleDeleteTicket(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := h.parseTicketID(w, r)
	if !ok {
		return
	}

	err := h.ticketService.DeleteTicket(r.Context(), ticketID)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	h.logger.Info("ticket deleted", "ticket_id", ticketID)

	WriteNoContent(w)
}

// HandleStats handles GET /stats
func (h *TicketHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ticketService.Stats(r.Context())
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

func (h *TicketHandler) parseTicketID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "ticketID")
	ticketID, err := uuid.Parse(raw)
	if err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid ticket ID"))
		return uuid.Nil, false
	}
	return ticketID, true
}
