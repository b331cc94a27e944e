package dashboard

import (
	"context"
	"fmt"
	"strings"

	"tabletap/internal/logger"
	"tabletap/internal/messaging"
	"tabletap/internal/models"
	"tabletap/internal/services/order"
)

// Dashboard is the front-of-house observer: it renders every active order
// grouped by status and refreshes whenever a change notification arrives.
// It never trusts the notification payload; each notification triggers a
// refetch of the authoritative state from the store, so duplicate
// deliveries are harmless.
type Dashboard struct {
	store    order.Store
	consumer *messaging.Consumer
	logger   *logger.Logger

	done chan bool
}

// New creates a dashboard observer
func New(store order.Store, consumer *messaging.Consumer, log *logger.Logger) *Dashboard {
	return &Dashboard{
		store:    store,
		consumer: consumer,
		logger:   log,
		done:     make(chan bool, 1),
	}
}

// Start renders the initial snapshot and then follows change notifications
func (d *Dashboard) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()

	if err := d.refresh(ctx, requestID); err != nil {
		d.logger.Error("initial_refresh_failed", "Failed to load initial orders", requestID, err, nil)
	}

	go func() {
		if err := d.consumer.StartConsuming(ctx, d.handleNotification); err != nil && ctx.Err() == nil {
			d.logger.Error("consumer_failed", "Dashboard consumer failed", requestID, err, nil)
		}
		d.done <- true
	}()

	d.logger.Info("service_started", "Dashboard started", requestID, nil)

	select {
	case <-ctx.Done():
		d.consumer.Close()
		return nil
	case <-d.done:
		return nil
	}
}

// handleNotification refetches and re-renders on every order change
func (d *Dashboard) handleNotification(ctx context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	var msg models.OrderChangedMessage
	if err := messaging.ParseMessage(body, &msg); err != nil {
		d.logger.Error("message_parsing_failed", "Failed to parse order change", requestID, err, nil)
		return fmt.Errorf("failed to parse notification: %w", err)
	}

	d.logger.Debug("notification_received", "Order changed, refreshing dashboard", requestID, map[string]interface{}{
		"order_id":   msg.OrderID,
		"new_status": msg.NewStatus,
	})

	return d.refresh(ctx, requestID)
}

// refresh fetches all orders and renders them grouped by status
func (d *Dashboard) refresh(ctx context.Context, requestID string) error {
	orders, err := d.store.ListOrders(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to list orders: %w", err)
	}

	byStatus := make(map[models.OrderStatus][]models.Order)
	for _, o := range orders {
		byStatus[o.Status] = append(byStatus[o.Status], o)
	}

	var b strings.Builder
	b.WriteString("\n=== Orders Dashboard ===\n")
	for _, status := range models.AllStatuses() {
		group := byStatus[status]
		b.WriteString(fmt.Sprintf("%s (%d)\n", strings.ToUpper(string(status)), len(group)))
		for _, o := range group {
			b.WriteString(fmt.Sprintf("  %s  table %d  $%.2f  %s\n",
				o.Number, o.TableNumber, o.Total, o.CreatedAt.Format("15:04:05")))
		}
	}
	fmt.Print(b.String())

	d.logger.Debug("dashboard_refreshed", "Dashboard refreshed", requestID, map[string]interface{}{
		"order_count": len(orders),
	})
	return nil
}
