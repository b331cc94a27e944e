package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabletap/internal/logger"
	"tabletap/internal/models"
)

var (
	margherita = models.MenuItem{ID: "item-1", Name: "Margherita", Price: 10.00, IsAvailable: true}
	lemonade   = models.MenuItem{ID: "item-2", Name: "Lemonade", Price: 5.00, IsAvailable: true}

	extraCheese = models.AddOn{ID: "addon-1", Name: "Extra cheese", Price: 1.00}
	olives      = models.AddOn{ID: "addon-2", Name: "Olives", Price: 0.50}
)

func TestAddItem_MergesSameLine(t *testing.T) {
	c := New(0.10)

	require.NoError(t, c.AddItem(margherita, 1, []models.AddOn{extraCheese}, ""))
	require.NoError(t, c.AddItem(margherita, 2, []models.AddOn{extraCheese}, ""))
	require.NoError(t, c.AddItem(margherita, 3, []models.AddOn{extraCheese}, ""))

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 6, items[0].Quantity)
}

func TestAddItem_AddOnOrderDoesNotMatter(t *testing.T) {
	c := New(0.10)

	require.NoError(t, c.AddItem(margherita, 1, []models.AddOn{extraCheese, olives}, ""))
	require.NoError(t, c.AddItem(margherita, 1, []models.AddOn{olives, extraCheese}, ""))

	require.Len(t, c.Items(), 1)
	assert.Equal(t, 2, c.Items()[0].Quantity)
}

func TestAddItem_DifferentAddOnSetMakesNewLine(t *testing.T) {
	c := New(0.10)

	require.NoError(t, c.AddItem(margherita, 1, nil, ""))
	require.NoError(t, c.AddItem(margherita, 1, []models.AddOn{extraCheese}, ""))

	assert.Len(t, c.Items(), 2)
	assert.Equal(t, 2, c.TotalItems())
}

func TestAddItem_DuplicateAddOnsCollapse(t *testing.T) {
	c := New(0.10)

	require.NoError(t, c.AddItem(margherita, 1, []models.AddOn{extraCheese, extraCheese}, ""))

	items := c.Items()
	require.Len(t, items, 1)
	require.Len(t, items[0].SelectedAddOns, 1)
	// Each add-on applies once per unit.
	assert.InDelta(t, 11.00, c.Subtotal(), 1e-9)
}

func TestAddItem_RejectsNonPositiveQuantity(t *testing.T) {
	c := New(0.10)

	assert.ErrorIs(t, c.AddItem(margherita, 0, nil, ""), ErrInvalidQuantity)
	assert.ErrorIs(t, c.AddItem(margherita, -1, nil, ""), ErrInvalidQuantity)
	assert.Empty(t, c.Items())
}

func TestAddItem_CopiesMenuItem(t *testing.T) {
	c := New(0.10)

	item := margherita
	require.NoError(t, c.AddItem(item, 1, nil, ""))

	// A later catalog price change must not affect the cart.
	item.Price = 99.00
	assert.InDelta(t, 10.00, c.Subtotal(), 1e-9)
}

func TestUpdateQuantity(t *testing.T) {
	c := New(0.10)
	require.NoError(t, c.AddItem(margherita, 2, nil, ""))

	c.UpdateQuantity(margherita.ID, 5)
	assert.Equal(t, 5, c.Items()[0].Quantity)

	c.UpdateQuantity("unknown", 3)
	assert.Equal(t, 5, c.Items()[0].Quantity)
}

func TestUpdateQuantity_ZeroOrNegativeRemovesLine(t *testing.T) {
	for _, qty := range []int{0, -1} {
		c := New(0.10)
		require.NoError(t, c.AddItem(margherita, 2, nil, ""))

		c.UpdateQuantity(margherita.ID, qty)
		assert.Empty(t, c.Items(), "quantity %d should remove the line", qty)
	}
}

func TestRemoveItem_RemovesAllVariants(t *testing.T) {
	c := New(0.10)
	require.NoError(t, c.AddItem(margherita, 1, nil, ""))
	require.NoError(t, c.AddItem(margherita, 1, []models.AddOn{extraCheese}, ""))
	require.NoError(t, c.AddItem(lemonade, 1, nil, ""))

	c.RemoveItem(margherita.ID)

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, lemonade.ID, items[0].MenuItem.ID)
}

func TestRemoveLine_RemovesOnlyExactVariant(t *testing.T) {
	c := New(0.10)
	require.NoError(t, c.AddItem(margherita, 1, nil, ""))
	require.NoError(t, c.AddItem(margherita, 1, []models.AddOn{extraCheese}, ""))

	c.RemoveLine(margherita.ID, []string{extraCheese.ID})

	items := c.Items()
	require.Len(t, items, 1)
	assert.Empty(t, items[0].SelectedAddOns)
}

func TestClear(t *testing.T) {
	c := New(0.10)
	require.NoError(t, c.AddItem(margherita, 2, nil, ""))

	c.Clear()
	assert.Empty(t, c.Items())
	assert.Zero(t, c.TotalItems())
	assert.Zero(t, c.Total())
}

func TestPricing(t *testing.T) {
	c := New(0.10)

	// Item A: $10, qty 2, one $1 add-on. Item B: $5, qty 1, no add-ons.
	require.NoError(t, c.AddItem(margherita, 2, []models.AddOn{extraCheese}, ""))
	require.NoError(t, c.AddItem(lemonade, 1, nil, ""))

	assert.Equal(t, 3, c.TotalItems())
	assert.InDelta(t, 27.00, c.Subtotal(), 1e-9)
	assert.InDelta(t, 2.70, c.Tax(), 1e-9)
	assert.InDelta(t, 29.70, c.Total(), 1e-9)
}

func TestNewFromItems_DropsInvalidLines(t *testing.T) {
	c := NewFromItems(0.10, []models.CartItem{
		{MenuItem: margherita, Quantity: 2},
		{MenuItem: lemonade, Quantity: 0},
	})

	require.Len(t, c.Items(), 1)
	assert.Equal(t, margherita.ID, c.Items()[0].MenuItem.ID)
}

// memStore is an in-memory cart store for tests
type memStore struct {
	data map[string][]byte
	err  error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Load(_ context.Context, sessionID string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.data[sessionID], nil
}

func (m *memStore) Save(_ context.Context, sessionID string, payload []byte) error {
	if m.err != nil {
		return m.err
	}
	m.data[sessionID] = payload
	return nil
}

func (m *memStore) Delete(_ context.Context, sessionID string) error {
	if m.err != nil {
		return m.err
	}
	delete(m.data, sessionID)
	return nil
}

func TestService_PersistsAcrossLoads(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, 0.10, logger.New("test"))

	_, err := svc.AddItem(ctx, "session-1", margherita, 2, []models.AddOn{extraCheese}, "no basil")
	require.NoError(t, err)

	c := svc.Get(ctx, "session-1")
	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, "no basil", items[0].SpecialInstructions)
	assert.InDelta(t, 22.00, c.Subtotal(), 1e-9)
}

func TestService_CorruptPayloadFallsBackToEmpty(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.data["session-1"] = []byte("{not json")
	svc := NewService(store, 0.10, logger.New("test"))

	c := svc.Get(ctx, "session-1")
	assert.Empty(t, c.Items())
}

func TestService_LoadErrorFallsBackToEmpty(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.err = errors.New("connection refused")
	svc := NewService(store, 0.10, logger.New("test"))

	c := svc.Get(ctx, "session-1")
	assert.Empty(t, c.Items())
}

func TestService_ClearRemovesStoredCart(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, 0.10, logger.New("test"))

	_, err := svc.AddItem(ctx, "session-1", margherita, 1, nil, "")
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, "session-1"))

	assert.Empty(t, svc.Get(ctx, "session-1").Items())
	assert.Empty(t, store.data)
}
