package tracking

import (
	"context"
	"fmt"
	"sync"

	"tabletap/internal/logger"
	"tabletap/internal/messaging"
	"tabletap/internal/models"
	"tabletap/internal/services/order"
)

// Tracker follows change notifications and keeps a per-order view of the
// latest confirmed status. Each notification starts a refetch tagged with
// a sequence number; a refetch that completes after a newer one has
// already been applied is discarded, so stale snapshots are never shown.
type Tracker struct {
	store    order.Store
	consumer *messaging.Consumer
	logger   *logger.Logger

	mu       sync.Mutex
	nextSeq  map[string]uint64
	applied  map[string]uint64
	statuses map[string]models.OrderStatus

	refetches sync.WaitGroup
	done      chan bool
}

// NewTracker creates a tracker
func NewTracker(store order.Store, consumer *messaging.Consumer, log *logger.Logger) *Tracker {
	return &Tracker{
		store:    store,
		consumer: consumer,
		logger:   log,
		nextSeq:  make(map[string]uint64),
		applied:  make(map[string]uint64),
		statuses: make(map[string]models.OrderStatus),
		done:     make(chan bool, 1),
	}
}

// Start consumes change notifications until the context is cancelled
func (t *Tracker) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()

	go func() {
		if err := t.consumer.StartConsuming(ctx, t.HandleNotification); err != nil && ctx.Err() == nil {
			t.logger.Error("consumer_failed", "Tracking consumer failed", requestID, err, nil)
		}
		t.done <- true
	}()

	t.logger.Info("service_started", "Order tracker started", requestID, nil)

	select {
	case <-ctx.Done():
		t.consumer.Close()
		t.refetches.Wait()
		return nil
	case <-t.done:
		t.refetches.Wait()
		return nil
	}
}

// HandleNotification reacts to one change notification. The payload only
// tells us which order changed; the status displayed always comes from a
// refetch of the store.
func (t *Tracker) HandleNotification(ctx context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	var msg models.OrderChangedMessage
	if err := messaging.ParseMessage(body, &msg); err != nil {
		t.logger.Error("message_parsing_failed", "Failed to parse order change", requestID, err, nil)
		return fmt.Errorf("failed to parse notification: %w", err)
	}

	seq := t.claimSeq(msg.OrderID)

	t.refetches.Add(1)
	go func() {
		defer t.refetches.Done()
		t.refetch(ctx, msg.OrderID, seq, requestID)
	}()

	return nil
}

// Status returns the last confirmed status for an order, if the tracker
// has seen one
func (t *Tracker) Status(orderID string) (models.OrderStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	status, ok := t.statuses[orderID]
	return status, ok
}

func (t *Tracker) claimSeq(orderID string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextSeq[orderID]++
	return t.nextSeq[orderID]
}

func (t *Tracker) refetch(ctx context.Context, orderID string, seq uint64, requestID string) {
	status, err := t.store.GetStatus(ctx, orderID)
	if err != nil {
		t.logger.Error("refetch_failed", "Failed to refetch order status", requestID, err, map[string]interface{}{
			"order_id": orderID,
		})
		return
	}

	t.mu.Lock()
	if seq <= t.applied[orderID] {
		// A newer refetch already landed; this snapshot is stale.
		t.mu.Unlock()
		t.logger.Debug("refetch_discarded", "Discarded stale refetch result", requestID, map[string]interface{}{
			"order_id": orderID,
			"seq":      seq,
		})
		return
	}
	previous := t.statuses[orderID]
	t.applied[orderID] = seq
	t.statuses[orderID] = status
	t.mu.Unlock()

	if previous != status {
		fmt.Printf("Order %s is now %s\n", orderID, status)
	}
}
