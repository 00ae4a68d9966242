package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	wsAdapter "github.com/soporte-labs/ticket-dashboard/internal/adapters/primary/websocket"
	"github.com/soporte-labs/ticket-dashboard/internal/auth"
	"github.com/soporte-labs/ticket-dashboard/internal/config"
)

// FeedHandler upgrades HTTP requests to change-feed websocket connections.
type FeedHandler struct {
	hub             *wsAdapter.Hub
	km              *auth.KeyManager
	upgrader        websocket.Upgrader
	eventsPerSecond float64
	logger          *slog.Logger
}

// NewFeedHandler creates a new feed handler
func NewFeedHandler(
	hub *wsAdapter.Hub,
	km *auth.KeyManager,
	cfg *config.Config,
	logger *slog.Logger,
) *FeedHandler {
	handler := &FeedHandler{
		hub:             hub,
		km:              km,
		eventsPerSecond: cfg.Feed.EventsPerSecond,
		logger:          logger,
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.Feed.ReadBufferSize,
		WriteBufferSize: cfg.Feed.WriteBufferSize,
		CheckOrigin:     handler.makeOriginChecker(cfg),
	}

	return handler
}

// makeOriginChecker creates an origin checking function based on configuration
func (h *FeedHandler) makeOriginChecker(cfg *config.Config) func(r *http.Request) bool {
	allowedOrigins := cfg.Feed.AllowedOrigins

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// In development mode, allow all origins (but log a warning)
		if cfg.IsDevelopment() {
			if origin != "" {
				h.logger.Warn("allowing feed connection in development mode",
					"origin", origin,
					"remote_addr", r.RemoteAddr,
				)
			}
			return true
		}

		// No origin header (same-origin request or non-browser client)
		if origin == "" {
			return true
		}

		parsedOrigin, err := url.Parse(origin)
		if err != nil {
			h.logger.Warn("failed to parse feed origin",
				"origin", origin,
				"error", err,
			)
			return false
		}

		originHost := parsedOrigin.Host

		for _, allowed := range allowedOrigins {
			// Support wildcard subdomains like "*.example.com"
			if strings.HasPrefix(allowed, "*.") {
				suffix := allowed[1:]
				if strings.HasSuffix(originHost, suffix) || originHost == allowed[2:] {
					return true
				}
			} else if originHost == allowed {
				return true
			}
		}

		h.logger.Warn("feed connection rejected due to origin",
			"origin", origin,
			"remote_addr", r.RemoteAddr,
			"allowed_origins", allowedOrigins,
		)
		return false
	}
}

// ServeHTTP handles feed connection requests. Authentication uses the
// access key from the apikey query parameter, the same way a hosted
// backend's realtime endpoint consumes its anon key.
func (h *FeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	keyString := r.URL.Query().Get("apikey")
	if keyString == "" {
		h.logger.Warn("feed connection rejected: missing access key",
			"request_id", requestID,
			"remote_addr", r.RemoteAddr,
		)
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
			Detail: "Missing access key",
			Code:   "UNAUTHORIZED",
		})
		return
	}

	if _, err := h.km.ValidateAccessKey(keyString); err != nil {
		h.logger.Warn("feed connection rejected: invalid access key",
			"request_id", requestID,
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
			Detail: "Invalid access key",
			Code:   "UNAUTHORIZED",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Error("feed upgrade failed",
			"request_id", requestID,
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		return
	}

	client := wsAdapter.NewClient(h.hub, conn, h.eventsPerSecond, h.logger)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
