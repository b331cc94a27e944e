package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"tabletap/internal/database"
	"tabletap/internal/logger"
	"tabletap/internal/services/order"
)

// Handler serves customer tracking queries over HTTP
type Handler struct {
	service *Service
	db      *database.DB
	logger  *logger.Logger
}

// NewHandler creates a tracking handler
func NewHandler(service *Service, db *database.DB, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		db:      db,
		logger:  log,
	}
}

// SetupRoutes sets up the HTTP routes
func (h *Handler) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders/{orderID}", h.TrackOrder)
	mux.HandleFunc("GET /health", h.HealthCheck)
	return mux
}

// TrackOrder handles GET /orders/{orderID}?history=true requests
func (h *Handler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	withHistory := r.URL.Query().Get("history") == "true"

	resp, err := h.service.TrackOrder(ctx, r.PathValue("orderID"), withHistory)
	if err != nil {
		var notFoundErr *order.NotFoundError
		if errors.As(err, &notFoundErr) {
			h.writeErrorResponse(w, http.StatusNotFound, "Order not found", requestID)
			return
		}
		h.logger.Error("tracking_failed", "Failed to track order", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusServiceUnavailable, "Order store unavailable", requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// HealthCheck handles GET /health requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthy := h.db.Ping(ctx) == nil

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "tracking-service",
		"healthy":   healthy,
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		response["status"] = "unhealthy"
	}

	json.NewEncoder(w).Encode(response)
}

func (h *Handler) writeErrorResponse(w http.ResponseWriter, statusCode int, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	})
}
