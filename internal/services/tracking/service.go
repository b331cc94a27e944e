package tracking

import (
	"context"
	"time"

	"tabletap/internal/logger"
	"tabletap/internal/models"
	"tabletap/internal/services/order"
)

// TrackingResponse is what a diner sees while waiting for their order
type TrackingResponse struct {
	OrderID     string                      `json:"order_id"`
	OrderNumber string                      `json:"order_number"`
	TableNumber int                         `json:"table_number"`
	Status      models.OrderStatus          `json:"status"`
	Total       float64                     `json:"total"`
	UpdatedAt   time.Time                   `json:"updated_at"`
	History     []models.StatusHistoryEntry `json:"history,omitempty"`
}

// Service answers customer tracking queries from the authoritative store
type Service struct {
	store  order.Store
	logger *logger.Logger
}

// NewService creates a tracking service
func NewService(store order.Store, log *logger.Logger) *Service {
	return &Service{
		store:  store,
		logger: log,
	}
}

// TrackOrder returns the current status of an order, straight from the
// store so the response is never staler than the last committed change
func (s *Service) TrackOrder(ctx context.Context, orderID string, withHistory bool) (*TrackingResponse, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	resp := &TrackingResponse{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		TableNumber: o.TableNumber,
		Status:      o.Status,
		Total:       o.Total,
		UpdatedAt:   o.UpdatedAt,
	}

	if withHistory {
		history, err := s.store.GetHistory(ctx, orderID)
		if err != nil {
			return nil, err
		}
		resp.History = history
	}

	return resp, nil
}
