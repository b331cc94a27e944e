package kitchen

import (
	"context"
	"fmt"
	"strings"

	"tabletap/internal/logger"
	"tabletap/internal/messaging"
	"tabletap/internal/models"
	"tabletap/internal/services/order"
)

// Display is the kitchen observer: it shows the queue of orders the
// kitchen cares about (accepted and preparing) and refreshes on every
// change notification with a refetch of the authoritative state.
type Display struct {
	store    order.Store
	consumer *messaging.Consumer
	logger   *logger.Logger

	done chan bool
}

// New creates a kitchen display
func New(store order.Store, consumer *messaging.Consumer, log *logger.Logger) *Display {
	return &Display{
		store:    store,
		consumer: consumer,
		logger:   log,
		done:     make(chan bool, 1),
	}
}

// Start renders the initial queue and then follows change notifications
func (d *Display) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()

	if err := d.refresh(ctx, requestID); err != nil {
		d.logger.Error("initial_refresh_failed", "Failed to load kitchen queue", requestID, err, nil)
	}

	go func() {
		if err := d.consumer.StartConsuming(ctx, d.handleNotification); err != nil && ctx.Err() == nil {
			d.logger.Error("consumer_failed", "Kitchen consumer failed", requestID, err, nil)
		}
		d.done <- true
	}()

	d.logger.Info("service_started", "Kitchen display started", requestID, nil)

	select {
	case <-ctx.Done():
		d.consumer.Close()
		return nil
	case <-d.done:
		return nil
	}
}

func (d *Display) handleNotification(ctx context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	var msg models.OrderChangedMessage
	if err := messaging.ParseMessage(body, &msg); err != nil {
		d.logger.Error("message_parsing_failed", "Failed to parse order change", requestID, err, nil)
		return fmt.Errorf("failed to parse notification: %w", err)
	}

	return d.refresh(ctx, requestID)
}

// refresh fetches the kitchen's slice of the order store and renders it
func (d *Display) refresh(ctx context.Context, requestID string) error {
	orders, err := d.store.ListOrders(ctx, []models.OrderStatus{models.StatusAccepted, models.StatusPreparing})
	if err != nil {
		return fmt.Errorf("failed to list kitchen orders: %w", err)
	}

	var b strings.Builder
	b.WriteString("\n=== Kitchen Queue ===\n")
	if len(orders) == 0 {
		b.WriteString("  (no orders)\n")
	}
	for _, o := range orders {
		b.WriteString(fmt.Sprintf("%s  table %d  [%s]\n", o.Number, o.TableNumber, o.Status))
		for _, item := range o.Items {
			b.WriteString(fmt.Sprintf("  %dx %s", item.Quantity, item.MenuItem.Name))
			if len(item.SelectedAddOns) > 0 {
				names := make([]string, len(item.SelectedAddOns))
				for i, a := range item.SelectedAddOns {
					names[i] = a.Name
				}
				b.WriteString(" + " + strings.Join(names, ", "))
			}
			if item.SpecialInstructions != "" {
				b.WriteString(fmt.Sprintf("  (%s)", item.SpecialInstructions))
			}
			b.WriteString("\n")
		}
	}
	fmt.Print(b.String())

	d.logger.Debug("kitchen_refreshed", "Kitchen queue refreshed", requestID, map[string]interface{}{
		"order_count": len(orders),
	})
	return nil
}
