package cart

import (
	"errors"
	"sort"

	"tabletap/internal/models"
)

// ErrInvalidQuantity is returned when an item is added with a quantity
// below one.
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// Cart holds a diner's pre-order selection. Lines are keyed by
// (menu item id, selected add-on set): adding the same combination again
// merges into the existing line, a different add-on set makes a new line.
type Cart struct {
	items   []models.CartItem
	taxRate float64
}

// New creates an empty cart with the given tax rate
func New(taxRate float64) *Cart {
	return &Cart{taxRate: taxRate}
}

// NewFromItems creates a cart from previously persisted lines. Lines with a
// quantity below one are dropped rather than carried.
func NewFromItems(taxRate float64, items []models.CartItem) *Cart {
	c := New(taxRate)
	for _, it := range items {
		if it.Quantity < 1 {
			continue
		}
		it.SelectedAddOns = dedupeAddOns(it.SelectedAddOns)
		c.items = append(c.items, it)
	}
	return c
}

// Items returns a copy of the current lines
func (c *Cart) Items() []models.CartItem {
	out := make([]models.CartItem, len(c.items))
	copy(out, c.items)
	return out
}

// AddItem adds a menu item to the cart. If a line with the same menu item
// and add-on set already exists, its quantity is incremented; otherwise a
// new line is appended. The menu item and add-ons are copied, so later
// catalog changes never affect the cart.
func (c *Cart) AddItem(item models.MenuItem, quantity int, addOns []models.AddOn, instructions string) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	selected := dedupeAddOns(addOns)

	for i := range c.items {
		if c.items[i].MenuItem.ID == item.ID && sameAddOnSet(c.items[i].SelectedAddOns, selected) {
			c.items[i].Quantity += quantity
			return nil
		}
	}

	snapshot := item
	snapshot.AddOns = append([]models.AddOn(nil), item.AddOns...)

	c.items = append(c.items, models.CartItem{
		MenuItem:            snapshot,
		Quantity:            quantity,
		SelectedAddOns:      selected,
		SpecialInstructions: instructions,
	})
	return nil
}

// UpdateQuantity sets the quantity on every line for the given menu item
// id. A quantity of zero or less removes the line entirely; an unknown id
// is a no-op.
func (c *Cart) UpdateQuantity(menuItemID string, quantity int) {
	if quantity <= 0 {
		c.RemoveItem(menuItemID)
		return
	}
	for i := range c.items {
		if c.items[i].MenuItem.ID == menuItemID {
			c.items[i].Quantity = quantity
		}
	}
}

// RemoveItem removes all lines for the given menu item id, regardless of
// their add-on selections.
func (c *Cart) RemoveItem(menuItemID string) {
	kept := c.items[:0]
	for _, it := range c.items {
		if it.MenuItem.ID != menuItemID {
			kept = append(kept, it)
		}
	}
	c.items = kept
}

// RemoveLine removes only the line matching the menu item id and the exact
// add-on selection, leaving other variants of the same item in place.
func (c *Cart) RemoveLine(menuItemID string, addOnIDs []string) {
	want := make([]models.AddOn, 0, len(addOnIDs))
	for _, id := range addOnIDs {
		want = append(want, models.AddOn{ID: id})
	}
	wantSet := dedupeAddOns(want)

	kept := c.items[:0]
	for _, it := range c.items {
		if it.MenuItem.ID == menuItemID && sameAddOnSet(it.SelectedAddOns, wantSet) {
			continue
		}
		kept = append(kept, it)
	}
	c.items = kept
}

// Clear empties the cart
func (c *Cart) Clear() {
	c.items = nil
}

// TotalItems returns the sum of quantities over all lines
func (c *Cart) TotalItems() int {
	total := 0
	for _, it := range c.items {
		total += it.Quantity
	}
	return total
}

// Subtotal returns the sum of line totals
func (c *Cart) Subtotal() float64 {
	total := 0.0
	for _, it := range c.items {
		total += it.LineTotal()
	}
	return total
}

// Tax returns the tax on the current subtotal
func (c *Cart) Tax() float64 {
	return c.Subtotal() * c.taxRate
}

// Total returns subtotal plus tax
func (c *Cart) Total() float64 {
	return c.Subtotal() + c.Tax()
}

// dedupeAddOns collapses duplicate add-on ids and sorts by id so that two
// selections of the same add-ons compare equal regardless of input order.
func dedupeAddOns(addOns []models.AddOn) []models.AddOn {
	seen := make(map[string]bool, len(addOns))
	out := make([]models.AddOn, 0, len(addOns))
	for _, a := range addOns {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// sameAddOnSet compares two already-deduped, sorted add-on selections by id
func sameAddOnSet(a, b []models.AddOn) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
