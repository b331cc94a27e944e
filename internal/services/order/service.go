package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"tabletap/internal/logger"
	"tabletap/internal/models"
)

// totalsTolerance absorbs float rounding between a client's displayed
// totals and the server-side recomputation.
const totalsTolerance = 0.005

// placeOrderAttempts bounds the retries when a racing placement claims the
// same order number first.
const placeOrderAttempts = 3

// Service owns the order lifecycle: placement and the linear status
// progression pending -> accepted -> preparing -> ready -> served.
type Service struct {
	store     Store
	publisher Publisher
	logger    *logger.Logger
}

// NewService creates an order lifecycle service
func NewService(store Store, publisher Publisher, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    log,
	}
}

// PlaceOrder creates a new order in the pending state from a submitted
// cart. The items and the totals are frozen at this point: later catalog
// price changes never affect a placed order. This is the only creation
// path for orders.
func (s *Service) PlaceOrder(ctx context.Context, tableNumber int, items []models.CartItem, subtotal, tax, total float64, requestID string) (*models.Order, error) {
	if len(items) == 0 {
		return nil, &ValidationError{Reason: "cart is empty"}
	}
	for i, it := range items {
		if it.Quantity < 1 {
			return nil, &ValidationError{Reason: fmt.Sprintf("items[%d].quantity must be at least 1", i)}
		}
		if it.MenuItem.ID == "" {
			return nil, &ValidationError{Reason: fmt.Sprintf("items[%d] has no menu item", i)}
		}
	}

	exists, err := s.store.TableExists(ctx, tableNumber)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &ValidationError{Reason: fmt.Sprintf("table %d is not a known table", tableNumber)}
	}

	// The submitted totals must match what the lines actually price to;
	// otherwise the client computed against a different cart.
	wantSubtotal := 0.0
	for _, it := range items {
		wantSubtotal += it.LineTotal()
	}
	if math.Abs(wantSubtotal-subtotal) > totalsTolerance || math.Abs(subtotal+tax-total) > totalsTolerance {
		return nil, &ValidationError{Reason: "submitted totals do not match cart items"}
	}

	// The sequence read and the insert are separate statements, so two
	// same-day placements can race to the same order number. The loser's
	// unique violation gets a fresh sequence and another try.
	var o *models.Order
	for attempt := 0; ; attempt++ {
		now := time.Now().UTC()
		seq, err := s.store.NextOrderSequence(ctx, fmt.Sprintf("ORD_%s_%%", now.Format("20060102")))
		if err != nil {
			return nil, err
		}

		o = &models.Order{
			ID:          uuid.New().String(),
			Number:      models.GenerateOrderNumber(now, seq),
			TableNumber: tableNumber,
			Items:       items,
			Status:      models.StatusPending,
			Subtotal:    subtotal,
			Tax:         tax,
			Total:       total,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		err = s.store.InsertOrder(ctx, o)
		if err == nil {
			break
		}
		if errors.Is(err, ErrDuplicateOrderNumber) {
			if attempt < placeOrderAttempts-1 {
				continue
			}
			return nil, &StoreUnavailableError{Op: "place order", Err: err}
		}
		return nil, err
	}

	s.logger.Info("order_placed", fmt.Sprintf("Order %s placed for table %d", o.Number, tableNumber), requestID, map[string]interface{}{
		"order_id":     o.ID,
		"order_number": o.Number,
		"table_number": tableNumber,
		"total":        o.Total,
	})

	s.notify(ctx, o, "", "customer", requestID)

	return o, nil
}

// UpdateStatus advances an order to newStatus. The only legal target is
// the single next status in the chain; anything else fails with
// InvalidTransitionError, including the race where another client already
// advanced the order. The conditional update in the store decides the
// winner, so at most one of two racing clients succeeds.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, newStatus models.OrderStatus, changedBy, requestID string) (*models.Order, error) {
	current, err := s.store.GetStatus(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !current.CanTransitionTo(newStatus) {
		return nil, &InvalidTransitionError{OrderID: orderID, From: current, To: newStatus}
	}

	err = s.store.AdvanceStatus(ctx, orderID, current, newStatus, changedBy)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			// Lost the race: report against the latest stored status so the
			// caller can refresh its view.
			latest, statusErr := s.store.GetStatus(ctx, orderID)
			if statusErr != nil {
				return nil, statusErr
			}
			return nil, &InvalidTransitionError{OrderID: orderID, From: latest, To: newStatus}
		}
		return nil, err
	}

	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("order_status_updated", fmt.Sprintf("Order %s moved from %s to %s", o.Number, current, newStatus), requestID, map[string]interface{}{
		"order_id":   orderID,
		"old_status": string(current),
		"new_status": string(newStatus),
		"changed_by": changedBy,
	})

	s.notify(ctx, o, current, changedBy, requestID)

	return o, nil
}

// ListActive returns the current snapshot of orders matching the status
// filter. An empty filter returns all orders, newest first.
func (s *Service) ListActive(ctx context.Context, statuses ...models.OrderStatus) ([]models.Order, error) {
	for _, st := range statuses {
		if !st.Valid() {
			return nil, &ValidationError{Reason: fmt.Sprintf("unknown status %q", st)}
		}
	}
	return s.store.ListOrders(ctx, statuses)
}

// GetOrder returns a single order with its items
func (s *Service) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

// GetHistory returns the append-only status history of an order
func (s *Service) GetHistory(ctx context.Context, orderID string) ([]models.StatusHistoryEntry, error) {
	if _, err := s.store.GetStatus(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.GetHistory(ctx, orderID)
}

// notify publishes an order-changed message. The mutation is already
// committed, so a publish failure is logged rather than unwinding it;
// observers will converge on their next refetch.
func (s *Service) notify(ctx context.Context, o *models.Order, oldStatus models.OrderStatus, changedBy, requestID string) {
	msg := models.NewOrderChangedMessage(o, oldStatus, changedBy)
	if err := s.publisher.PublishOrderChanged(ctx, msg); err != nil {
		s.logger.Error("notification_publish_failed", "Failed to publish order change", requestID, err, map[string]interface{}{
			"order_id":   o.ID,
			"new_status": string(o.Status),
		})
	}
}
