package models

import (
	"fmt"
	"time"
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusAccepted  OrderStatus = "accepted"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusServed    OrderStatus = "served"
)

// statusChain is the complete lifecycle in order. There are no branches:
// each status has exactly one legal successor, and served is terminal.
var statusChain = []OrderStatus{
	StatusPending,
	StatusAccepted,
	StatusPreparing,
	StatusReady,
	StatusServed,
}

// AllStatuses returns the lifecycle statuses in chain order
func AllStatuses() []OrderStatus {
	out := make([]OrderStatus, len(statusChain))
	copy(out, statusChain)
	return out
}

// Valid reports whether s is a known order status
func (s OrderStatus) Valid() bool {
	for _, st := range statusChain {
		if st == s {
			return true
		}
	}
	return false
}

// Next returns the single legal successor status. ok is false when s is
// terminal or unknown.
func (s OrderStatus) Next() (next OrderStatus, ok bool) {
	for i, st := range statusChain {
		if st == s && i+1 < len(statusChain) {
			return statusChain[i+1], true
		}
	}
	return "", false
}

// CanTransitionTo reports whether moving from s to target is legal
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	next, ok := s.Next()
	return ok && next == target
}

// CartItem represents one line of a cart or a placed order. The embedded
// MenuItem and AddOns are copies taken at add-to-cart time, not live
// references to the catalog.
type CartItem struct {
	MenuItem            MenuItem `json:"menu_item"`
	Quantity            int      `json:"quantity"`
	SelectedAddOns      []AddOn  `json:"selected_add_ons"`
	SpecialInstructions string   `json:"special_instructions,omitempty"`
}

// UnitPrice returns the per-unit price including selected add-ons
func (ci CartItem) UnitPrice() float64 {
	price := ci.MenuItem.Price
	for _, a := range ci.SelectedAddOns {
		price += a.Price
	}
	return price
}

// LineTotal returns the price of the whole line
func (ci CartItem) LineTotal() float64 {
	return ci.UnitPrice() * float64(ci.Quantity)
}

// Order represents a placed order: an immutable snapshot of the cart at
// submission time plus a mutable status.
type Order struct {
	ID          string      `json:"id" db:"id"`
	Number      string      `json:"order_number" db:"number"`
	TableNumber int         `json:"table_number" db:"table_number"`
	Items       []CartItem  `json:"items"`
	Status      OrderStatus `json:"status" db:"status"`
	Subtotal    float64     `json:"subtotal" db:"subtotal"`
	Tax         float64     `json:"tax" db:"tax"`
	Total       float64     `json:"total" db:"total"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// StatusHistoryEntry represents an entry in the order status log
type StatusHistoryEntry struct {
	Status    OrderStatus `json:"status" db:"status"`
	ChangedBy string      `json:"changed_by" db:"changed_by"`
	ChangedAt time.Time   `json:"timestamp" db:"changed_at"`
	Notes     *string     `json:"notes,omitempty" db:"notes"`
}

// OrderChangedMessage is the change notification published after every
// committed order mutation. Observers treat it as advisory and refetch the
// authoritative state; a duplicate delivery is harmless.
type OrderChangedMessage struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	TableNumber int       `json:"table_number"`
	OldStatus   string    `json:"old_status"`
	NewStatus   string    `json:"new_status"`
	ChangedBy   string    `json:"changed_by"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewOrderChangedMessage creates a change notification for an order mutation
func NewOrderChangedMessage(o *Order, oldStatus OrderStatus, changedBy string) *OrderChangedMessage {
	return &OrderChangedMessage{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		TableNumber: o.TableNumber,
		OldStatus:   string(oldStatus),
		NewStatus:   string(o.Status),
		ChangedBy:   changedBy,
		Timestamp:   time.Now().UTC(),
	}
}

// GenerateOrderNumber generates a display order number in format ORD_YYYYMMDD_NNN
func GenerateOrderNumber(date time.Time, sequence int) string {
	return fmt.Sprintf("ORD_%s_%03d", date.Format("20060102"), sequence)
}
