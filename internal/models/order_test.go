package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_Next(t *testing.T) {
	tests := []struct {
		status OrderStatus
		next   OrderStatus
		ok     bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusAccepted, StatusPreparing, true},
		{StatusPreparing, StatusReady, true},
		{StatusReady, StatusServed, true},
		{StatusServed, "", false},
		{"bogus", "", false},
	}

	for _, tt := range tests {
		next, ok := tt.status.Next()
		assert.Equal(t, tt.ok, ok, "status %q", tt.status)
		assert.Equal(t, tt.next, next, "status %q", tt.status)
	}
}

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	all := AllStatuses()

	// From every status, exactly the immediate successor is legal.
	for i, from := range all {
		for j, to := range all {
			legal := from.CanTransitionTo(to)
			if j == i+1 {
				assert.True(t, legal, "%s -> %s should be legal", from, to)
			} else {
				assert.False(t, legal, "%s -> %s should be illegal", from, to)
			}
		}
	}

	// Terminal state has no successors at all.
	for _, to := range all {
		assert.False(t, StatusServed.CanTransitionTo(to))
	}
}

func TestOrderStatus_Valid(t *testing.T) {
	for _, st := range AllStatuses() {
		assert.True(t, st.Valid())
	}
	assert.False(t, OrderStatus("cancelled").Valid())
	assert.False(t, OrderStatus("").Valid())
}

func TestCartItem_Pricing(t *testing.T) {
	item := CartItem{
		MenuItem: MenuItem{ID: "i1", Price: 10.00},
		Quantity: 2,
		SelectedAddOns: []AddOn{
			{ID: "a1", Price: 1.00},
		},
	}

	assert.InDelta(t, 11.00, item.UnitPrice(), 1e-9)
	assert.InDelta(t, 22.00, item.LineTotal(), 1e-9)
}

func TestGenerateOrderNumber(t *testing.T) {
	date := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "ORD_20260828_007", GenerateOrderNumber(date, 7))
}
