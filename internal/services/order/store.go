package order

import (
	"context"
	"errors"

	"tabletap/internal/models"
)

// ErrStatusConflict is reported by a Store when a conditional status
// advance matched no row because the order's stored status changed under
// us. The service translates it into an InvalidTransitionError carrying
// the latest status.
var ErrStatusConflict = errors.New("order status changed concurrently")

// ErrDuplicateOrderNumber is reported by a Store when an insert collides
// with an already-taken order number. Two same-day placements can read the
// same sequence; the service retries with a fresh one.
var ErrDuplicateOrderNumber = errors.New("order number already taken")

// Store is the persistent order store. Implementations must enforce the
// legal-transition invariant at their own boundary: AdvanceStatus commits
// only when the stored status still equals from, so racing clients cannot
// both advance the same order.
type Store interface {
	InsertOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetStatus(ctx context.Context, id string) (models.OrderStatus, error)
	AdvanceStatus(ctx context.Context, id string, from, to models.OrderStatus, changedBy string) error
	ListOrders(ctx context.Context, statuses []models.OrderStatus) ([]models.Order, error)
	GetHistory(ctx context.Context, id string) ([]models.StatusHistoryEntry, error)
	TableExists(ctx context.Context, tableNumber int) (bool, error)
	NextOrderSequence(ctx context.Context, numberPrefix string) (int, error)
}

// Publisher broadcasts order-change notifications to observers
type Publisher interface {
	PublishOrderChanged(ctx context.Context, msg interface{}) error
}
