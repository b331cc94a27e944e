package menu

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tabletap/internal/database"
	"tabletap/internal/logger"
	"tabletap/internal/models"
)

// ErrItemNotFound is returned when a menu item id does not exist
var ErrItemNotFound = errors.New("menu item not found")

// Querier is the slice of the database wrapper the catalog reads through
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Catalog provides read-only access to the menu. Callers get snapshots:
// prices copied into a cart are not updated when the catalog changes.
type Catalog struct {
	db     Querier
	logger *logger.Logger
}

// NewCatalog creates a menu catalog
func NewCatalog(db Querier, log *logger.Logger) *Catalog {
	return &Catalog{
		db:     db,
		logger: log,
	}
}

// Categories returns all menu categories ordered by sort order
func (c *Catalog) Categories(ctx context.Context) ([]models.Category, error) {
	rows, err := c.db.Query(ctx, database.GetCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var cat models.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, cat)
	}

	return categories, rows.Err()
}

// Items returns menu items matching the filter, each with its add-ons
func (c *Catalog) Items(ctx context.Context, filter models.MenuFilter) ([]models.MenuItem, error) {
	rows, err := c.db.Query(ctx, database.GetMenuItemsSQL,
		filter.CategoryID, filter.VegOnly, filter.AvailableOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query menu items: %w", err)
	}
	defer rows.Close()

	var items []models.MenuItem
	for rows.Next() {
		var item models.MenuItem
		err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.Price,
			&item.Image, &item.CategoryID, &item.IsVeg, &item.IsAvailable)
		if err != nil {
			return nil, fmt.Errorf("failed to scan menu item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read menu items: %w", err)
	}

	for i := range items {
		addOns, err := c.itemAddOns(ctx, items[i].ID)
		if err != nil {
			return nil, err
		}
		items[i].AddOns = addOns
	}

	return items, nil
}

// Item returns a single menu item with its add-ons
func (c *Catalog) Item(ctx context.Context, id string) (*models.MenuItem, error) {
	var item models.MenuItem
	err := c.db.QueryRow(ctx, database.GetMenuItemSQL, id).Scan(
		&item.ID, &item.Name, &item.Description, &item.Price,
		&item.Image, &item.CategoryID, &item.IsVeg, &item.IsAvailable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to query menu item: %w", err)
	}

	addOns, err := c.itemAddOns(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	item.AddOns = addOns

	return &item, nil
}

func (c *Catalog) itemAddOns(ctx context.Context, itemID string) ([]models.AddOn, error) {
	rows, err := c.db.Query(ctx, database.GetMenuItemAddOnsSQL, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query add-ons: %w", err)
	}
	defer rows.Close()

	var addOns []models.AddOn
	for rows.Next() {
		var a models.AddOn
		if err := rows.Scan(&a.ID, &a.Name, &a.Price); err != nil {
			return nil, fmt.Errorf("failed to scan add-on: %w", err)
		}
		addOns = append(addOns, a)
	}

	return addOns, rows.Err()
}
