package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tabletap/internal/cart"
	"tabletap/internal/database"
	"tabletap/internal/logger"
	"tabletap/internal/menu"
	"tabletap/internal/models"
)

// statusActions is the staff action surface. Each action names a fixed
// target status, so the UI can never request an arbitrary jump; legality
// against the current status is still enforced by the service and store.
var statusActions = map[string]models.OrderStatus{
	"accept":          models.StatusAccepted,
	"start_preparing": models.StatusPreparing,
	"mark_ready":      models.StatusReady,
	"mark_served":     models.StatusServed,
}

// Handler handles HTTP requests for the order service
type Handler struct {
	orders  *Service
	carts   *cart.Service
	catalog *menu.Catalog
	db      *database.DB
	logger  *logger.Logger
}

// NewHandler creates a new order handler
func NewHandler(orders *Service, carts *cart.Service, catalog *menu.Catalog, db *database.DB, log *logger.Logger) *Handler {
	return &Handler{
		orders:  orders,
		carts:   carts,
		catalog: catalog,
		db:      db,
		logger:  log,
	}
}

// SetupRoutes sets up the HTTP routes
func (h *Handler) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /menu", h.withLogging(h.GetMenu))
	mux.HandleFunc("GET /categories", h.withLogging(h.GetCategories))

	mux.HandleFunc("GET /cart", h.withLogging(h.GetCart))
	mux.HandleFunc("POST /cart/items", h.withLogging(h.AddCartItem))
	mux.HandleFunc("PATCH /cart/items/{menuItemID}", h.withLogging(h.UpdateCartItem))
	mux.HandleFunc("DELETE /cart/items/{menuItemID}", h.withLogging(h.RemoveCartItem))
	mux.HandleFunc("DELETE /cart", h.withLogging(h.ClearCart))

	mux.HandleFunc("POST /orders", h.withLogging(h.PlaceOrder))
	mux.HandleFunc("GET /orders", h.withLogging(h.ListOrders))
	mux.HandleFunc("GET /orders/{orderID}", h.withLogging(h.GetOrder))
	mux.HandleFunc("POST /orders/{orderID}/status", h.withLogging(h.UpdateOrderStatus))

	mux.HandleFunc("GET /health", h.withLogging(h.HealthCheck))

	return mux
}

// GetMenu handles GET /menu requests
func (h *Handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	filter := models.MenuFilter{
		CategoryID:    r.URL.Query().Get("category"),
		VegOnly:       r.URL.Query().Get("veg") == "true",
		AvailableOnly: r.URL.Query().Get("available") != "false",
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	items, err := h.catalog.Items(ctx, filter)
	if err != nil {
		h.logger.Error("menu_fetch_failed", "Failed to fetch menu items", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// GetCategories handles GET /categories requests
func (h *Handler) GetCategories(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	categories, err := h.catalog.Categories(ctx)
	if err != nil {
		h.logger.Error("categories_fetch_failed", "Failed to fetch categories", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"categories": categories})
}

// GetCart handles GET /cart requests
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	sessionID, ok := h.sessionID(w, r, requestID)
	if !ok {
		return
	}

	c := h.carts.Get(r.Context(), sessionID)
	h.writeCart(w, c)
}

// AddCartItem handles POST /cart/items requests
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	sessionID, ok := h.sessionID(w, r, requestID)
	if !ok {
		return
	}

	var req struct {
		MenuItemID          string   `json:"menu_item_id"`
		Quantity            int      `json:"quantity"`
		AddOnIDs            []string `json:"add_on_ids"`
		SpecialInstructions string   `json:"special_instructions"`
	}
	if !h.decodeJSON(w, r, &req, requestID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	item, err := h.catalog.Item(ctx, req.MenuItemID)
	if err != nil {
		if errors.Is(err, menu.ErrItemNotFound) {
			h.writeErrorResponse(w, http.StatusNotFound, "Menu item not found", requestID)
			return
		}
		h.logger.Error("menu_fetch_failed", "Failed to fetch menu item", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", requestID)
		return
	}
	if !item.IsAvailable {
		h.writeErrorResponse(w, http.StatusBadRequest, "Menu item is not available", requestID)
		return
	}

	addOns, err := resolveAddOns(item, req.AddOnIDs)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	c, err := h.carts.AddItem(ctx, sessionID, *item, req.Quantity, addOns, req.SpecialInstructions)
	if err != nil {
		if errors.Is(err, cart.ErrInvalidQuantity) {
			h.writeErrorResponse(w, http.StatusBadRequest, err.Error(), requestID)
			return
		}
		h.logger.Error("cart_save_failed", "Failed to save cart", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusServiceUnavailable, "Cart storage unavailable", requestID)
		return
	}

	h.writeCart(w, c)
}

// UpdateCartItem handles PATCH /cart/items/{menuItemID} requests
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	sessionID, ok := h.sessionID(w, r, requestID)
	if !ok {
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if !h.decodeJSON(w, r, &req, requestID) {
		return
	}

	c, err := h.carts.UpdateQuantity(r.Context(), sessionID, r.PathValue("menuItemID"), req.Quantity)
	if err != nil {
		h.logger.Error("cart_save_failed", "Failed to save cart", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusServiceUnavailable, "Cart storage unavailable", requestID)
		return
	}

	h.writeCart(w, c)
}

// RemoveCartItem handles DELETE /cart/items/{menuItemID} requests. With no
// query parameters it removes every line for the menu item; with
// ?add_on_ids=a,b it removes only the exact line.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	sessionID, ok := h.sessionID(w, r, requestID)
	if !ok {
		return
	}

	menuItemID := r.PathValue("menuItemID")

	var c *cart.Cart
	var err error
	if r.URL.Query().Has("add_on_ids") {
		c, err = h.carts.RemoveLine(r.Context(), sessionID, menuItemID, splitCSV(r.URL.Query().Get("add_on_ids")))
	} else {
		c, err = h.carts.RemoveItem(r.Context(), sessionID, menuItemID)
	}
	if err != nil {
		h.logger.Error("cart_save_failed", "Failed to save cart", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusServiceUnavailable, "Cart storage unavailable", requestID)
		return
	}

	h.writeCart(w, c)
}

// ClearCart handles DELETE /cart requests
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	sessionID, ok := h.sessionID(w, r, requestID)
	if !ok {
		return
	}

	if err := h.carts.Clear(r.Context(), sessionID); err != nil {
		h.logger.Error("cart_clear_failed", "Failed to clear cart", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusServiceUnavailable, "Cart storage unavailable", requestID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PlaceOrder handles POST /orders requests: it submits the session's cart
// for the given table and clears the cart on success.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	sessionID, ok := h.sessionID(w, r, requestID)
	if !ok {
		return
	}

	var req struct {
		TableNumber int `json:"table_number"`
	}
	if !h.decodeJSON(w, r, &req, requestID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	c := h.carts.Get(ctx, sessionID)

	o, err := h.orders.PlaceOrder(ctx, req.TableNumber, c.Items(), c.Subtotal(), c.Tax(), c.Total(), requestID)
	if err != nil {
		h.writeDomainError(w, err, requestID)
		return
	}

	if err := h.carts.Clear(ctx, sessionID); err != nil {
		// The order is placed; a stale cart is an inconvenience, not a failure.
		h.logger.Error("cart_clear_failed", "Failed to clear cart after order placement", requestID, err, map[string]interface{}{
			"order_id": o.ID,
		})
	}

	h.writeJSON(w, http.StatusCreated, o)
}

// ListOrders handles GET /orders requests, optionally filtered by
// ?status=accepted,preparing
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var statuses []models.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range splitCSV(raw) {
			statuses = append(statuses, models.OrderStatus(s))
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	orders, err := h.orders.ListActive(ctx, statuses...)
	if err != nil {
		h.writeDomainError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

// GetOrder handles GET /orders/{orderID} requests
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.orders.GetOrder(ctx, r.PathValue("orderID"))
	if err != nil {
		h.writeDomainError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, o)
}

// UpdateOrderStatus handles POST /orders/{orderID}/status requests
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req struct {
		Action    string `json:"action"`
		ChangedBy string `json:"changed_by"`
	}
	if !h.decodeJSON(w, r, &req, requestID) {
		return
	}

	target, ok := statusActions[req.Action]
	if !ok {
		h.writeErrorResponse(w, http.StatusBadRequest,
			"action must be one of: accept, start_preparing, mark_ready, mark_served", requestID)
		return
	}

	changedBy := req.ChangedBy
	if changedBy == "" {
		changedBy = "staff"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.orders.UpdateStatus(ctx, r.PathValue("orderID"), target, changedBy, requestID)
	if err != nil {
		h.writeDomainError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, o)
}

// HealthCheck handles GET /health requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthy := h.db.Ping(ctx) == nil

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "order-service",
		"healthy":   healthy,
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
		response["status"] = "unhealthy"
	}

	h.writeJSON(w, status, response)
}

// writeDomainError maps domain errors to HTTP status codes
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, requestID string) {
	var validationErr *ValidationError
	var notFoundErr *NotFoundError
	var transitionErr *InvalidTransitionError
	var unavailableErr *StoreUnavailableError

	switch {
	case errors.As(err, &validationErr):
		h.writeErrorResponse(w, http.StatusBadRequest, validationErr.Error(), requestID)
	case errors.As(err, &notFoundErr):
		h.writeErrorResponse(w, http.StatusNotFound, notFoundErr.Error(), requestID)
	case errors.As(err, &transitionErr):
		// Another client may already have advanced the order; 409 tells the
		// caller to refetch rather than retry the same action.
		h.writeErrorResponse(w, http.StatusConflict, transitionErr.Error(), requestID)
	case errors.As(err, &unavailableErr):
		h.logger.Error("store_unavailable", "Order store unavailable", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusServiceUnavailable, "Order store unavailable", requestID)
	default:
		h.logger.Error("request_failed", "Unexpected error", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", requestID)
	}
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request, requestID string) (string, bool) {
	sessionID := r.Header.Get("X-Session-ID")
	if sessionID == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "X-Session-ID header is required", requestID)
		return "", false
	}
	return sessionID, true
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, requestID string) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		h.logger.Error("validation_failed", "Failed to parse request body", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON format", requestID)
		return false
	}
	return true
}

func (h *Handler) writeCart(w http.ResponseWriter, c *cart.Cart) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":       c.Items(),
		"total_items": c.TotalItems(),
		"subtotal":    c.Subtotal(),
		"tax":         c.Tax(),
		"total":       c.Total(),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", "", err, nil)
	}
}

// writeErrorResponse writes an error response in JSON format
func (h *Handler) writeErrorResponse(w http.ResponseWriter, statusCode int, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	}

	json.NewEncoder(w).Encode(errorResponse)
}

type contextKey string

const requestIDKey contextKey = "request_id"

func requestIDFrom(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return logger.GenerateRequestID()
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// withLogging adds request logging middleware
func (h *Handler) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := logger.GenerateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		h.logger.Debug("request_started",
			fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
				"user_agent":  r.Header.Get("User-Agent"),
			})

		rw := &responseWriter{ResponseWriter: w, statusCode: 200}

		next(rw, r)

		duration := time.Since(start)
		h.logger.Debug("request_completed",
			fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, rw.statusCode),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status_code": rw.statusCode,
				"duration_ms": duration.Milliseconds(),
			})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// resolveAddOns matches requested add-on ids against the item's available
// add-ons, rejecting ids the item does not offer
func resolveAddOns(item *models.MenuItem, addOnIDs []string) ([]models.AddOn, error) {
	byID := make(map[string]models.AddOn, len(item.AddOns))
	for _, a := range item.AddOns {
		byID[a.ID] = a
	}

	addOns := make([]models.AddOn, 0, len(addOnIDs))
	for _, id := range addOnIDs {
		a, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("add-on %s is not offered for this item", id)
		}
		addOns = append(addOns, a)
	}
	return addOns, nil
}
