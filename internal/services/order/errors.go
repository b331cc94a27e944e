package order

import (
	"fmt"

	"tabletap/internal/models"
)

// ValidationError reports malformed input to order placement. The order is
// not created.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// NotFoundError reports an operation against an order id that does not
// exist in the store.
type NotFoundError struct {
	OrderID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order %s not found", e.OrderID)
}

// InvalidTransitionError reports an attempted status change that is not
// the legal next status, including races where another client already
// advanced the order. Callers must refetch the authoritative status.
type InvalidTransitionError struct {
	OrderID string
	From    models.OrderStatus
	To      models.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: illegal transition from %q to %q", e.OrderID, e.From, e.To)
}

// StoreUnavailableError reports a transient failure reaching the order
// store or the notification broker. No state is assumed to have changed.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}
