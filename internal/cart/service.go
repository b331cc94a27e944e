package cart

import (
	"context"
	"encoding/json"
	"fmt"

	"tabletap/internal/logger"
	"tabletap/internal/models"
)

// Store is the durable key-value storage for unsubmitted carts
type Store interface {
	Load(ctx context.Context, sessionID string) ([]byte, error)
	Save(ctx context.Context, sessionID string, payload []byte) error
	Delete(ctx context.Context, sessionID string) error
}

// Service persists per-session carts through a Store. Every mutation writes
// the full line list back; a missing or corrupt stored payload falls back
// to an empty cart.
type Service struct {
	store   Store
	taxRate float64
	logger  *logger.Logger
}

// NewService creates a cart service
func NewService(store Store, taxRate float64, log *logger.Logger) *Service {
	return &Service{
		store:   store,
		taxRate: taxRate,
		logger:  log,
	}
}

// Get loads the session's cart. Load failures and corrupt payloads reset to
// an empty cart rather than failing the caller.
func (s *Service) Get(ctx context.Context, sessionID string) *Cart {
	payload, err := s.store.Load(ctx, sessionID)
	if err != nil {
		s.logger.Error("cart_load_failed", "Failed to load cart, starting empty", "", err, map[string]interface{}{
			"session_id": sessionID,
		})
		return New(s.taxRate)
	}
	if payload == nil {
		return New(s.taxRate)
	}

	var items []models.CartItem
	if err := json.Unmarshal(payload, &items); err != nil {
		s.logger.Error("cart_corrupt", "Discarding corrupt cart payload", "", err, map[string]interface{}{
			"session_id": sessionID,
		})
		return New(s.taxRate)
	}

	return NewFromItems(s.taxRate, items)
}

// AddItem adds an item to the session's cart and persists it
func (s *Service) AddItem(ctx context.Context, sessionID string, item models.MenuItem, quantity int, addOns []models.AddOn, instructions string) (*Cart, error) {
	c := s.Get(ctx, sessionID)
	if err := c.AddItem(item, quantity, addOns, instructions); err != nil {
		return nil, err
	}
	if err := s.save(ctx, sessionID, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateQuantity sets a line's quantity and persists the cart
func (s *Service) UpdateQuantity(ctx context.Context, sessionID, menuItemID string, quantity int) (*Cart, error) {
	c := s.Get(ctx, sessionID)
	c.UpdateQuantity(menuItemID, quantity)
	if err := s.save(ctx, sessionID, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveItem removes all lines for a menu item and persists the cart
func (s *Service) RemoveItem(ctx context.Context, sessionID, menuItemID string) (*Cart, error) {
	c := s.Get(ctx, sessionID)
	c.RemoveItem(menuItemID)
	if err := s.save(ctx, sessionID, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveLine removes the exact item + add-on line and persists the cart
func (s *Service) RemoveLine(ctx context.Context, sessionID, menuItemID string, addOnIDs []string) (*Cart, error) {
	c := s.Get(ctx, sessionID)
	c.RemoveLine(menuItemID, addOnIDs)
	if err := s.save(ctx, sessionID, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Clear empties the session's cart and removes it from the store
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (s *Service) save(ctx context.Context, sessionID string, c *Cart) error {
	payload, err := json.Marshal(c.Items())
	if err != nil {
		return fmt.Errorf("failed to marshal cart: %w", err)
	}
	if err := s.store.Save(ctx, sessionID, payload); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}
