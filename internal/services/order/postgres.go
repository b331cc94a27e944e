package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tabletap/internal/database"
	"tabletap/internal/models"
)

// PostgresStore implements Store on the shared PostgreSQL database
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a Postgres-backed order store
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// InsertOrder persists a new order, its item snapshots, their add-on
// snapshots and the initial status log entry in one transaction.
func (p *PostgresStore) InsertOrder(ctx context.Context, o *models.Order) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return &StoreUnavailableError{Op: "insert order", Err: err}
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, database.InsertOrderSQL,
		o.ID, o.Number, o.TableNumber, o.Status, o.Subtotal, o.Tax, o.Total,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// unique_violation on orders.number
			return ErrDuplicateOrderNumber
		}
		return &StoreUnavailableError{Op: "insert order", Err: err}
	}

	for _, item := range o.Items {
		var itemID int
		err = tx.QueryRow(ctx, database.InsertOrderItemSQL,
			o.ID, item.MenuItem.ID, item.MenuItem.Name, item.MenuItem.Description,
			item.MenuItem.Price, item.Quantity, item.SpecialInstructions,
		).Scan(&itemID)
		if err != nil {
			return &StoreUnavailableError{Op: "insert order item", Err: err}
		}

		for _, addOn := range item.SelectedAddOns {
			_, err = tx.Exec(ctx, database.InsertOrderItemAddOnSQL,
				itemID, addOn.ID, addOn.Name, addOn.Price)
			if err != nil {
				return &StoreUnavailableError{Op: "insert order item add-on", Err: err}
			}
		}
	}

	_, err = tx.Exec(ctx, database.InsertOrderStatusLogSQL,
		o.ID, o.Status, "customer", "Order placed")
	if err != nil {
		return &StoreUnavailableError{Op: "insert status log", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return &StoreUnavailableError{Op: "insert order", Err: err}
	}
	return nil
}

// GetOrder loads a single order with its items
func (p *PostgresStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	err := p.db.QueryRow(ctx, database.GetOrderSQL, id).Scan(
		&o.ID, &o.Number, &o.TableNumber, &o.Status,
		&o.Subtotal, &o.Tax, &o.Total, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{OrderID: id}
		}
		return nil, &StoreUnavailableError{Op: "get order", Err: err}
	}

	items, err := p.orderItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items

	return &o, nil
}

// GetStatus returns the current stored status of an order
func (p *PostgresStore) GetStatus(ctx context.Context, id string) (models.OrderStatus, error) {
	var status models.OrderStatus
	err := p.db.QueryRow(ctx, database.GetOrderStatusSQL, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", &NotFoundError{OrderID: id}
		}
		return "", &StoreUnavailableError{Op: "get status", Err: err}
	}
	return status, nil
}

// AdvanceStatus moves an order from from to to. The update is conditional
// on the stored status still being from; when it is not, the caller lost a
// race and gets ErrStatusConflict.
func (p *PostgresStore) AdvanceStatus(ctx context.Context, id string, from, to models.OrderStatus, changedBy string) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return &StoreUnavailableError{Op: "advance status", Err: err}
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, database.AdvanceOrderStatusSQL, to, id, from)
	if err != nil {
		return &StoreUnavailableError{Op: "advance status", Err: err}
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		err = tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)", id).Scan(&exists)
		if err != nil {
			return &StoreUnavailableError{Op: "advance status", Err: err}
		}
		if !exists {
			return &NotFoundError{OrderID: id}
		}
		return ErrStatusConflict
	}

	_, err = tx.Exec(ctx, database.InsertOrderStatusLogSQL,
		id, to, changedBy, fmt.Sprintf("Status changed from %s to %s", from, to))
	if err != nil {
		return &StoreUnavailableError{Op: "insert status log", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return &StoreUnavailableError{Op: "advance status", Err: err}
	}
	return nil
}

// ListOrders returns orders matching the status filter, newest first. An
// empty filter returns every order.
func (p *PostgresStore) ListOrders(ctx context.Context, statuses []models.OrderStatus) ([]models.Order, error) {
	var rows pgx.Rows
	var err error

	if len(statuses) == 0 {
		rows, err = p.db.Query(ctx, database.ListAllOrdersSQL)
	} else {
		filter := make([]string, len(statuses))
		for i, st := range statuses {
			filter[i] = string(st)
		}
		rows, err = p.db.Query(ctx, database.ListOrdersSQL, filter)
	}
	if err != nil {
		return nil, &StoreUnavailableError{Op: "list orders", Err: err}
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		err := rows.Scan(&o.ID, &o.Number, &o.TableNumber, &o.Status,
			&o.Subtotal, &o.Tax, &o.Total, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return nil, &StoreUnavailableError{Op: "list orders", Err: err}
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreUnavailableError{Op: "list orders", Err: err}
	}

	for i := range orders {
		items, err := p.orderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

// GetHistory returns the status log of an order, oldest first
func (p *PostgresStore) GetHistory(ctx context.Context, id string) ([]models.StatusHistoryEntry, error) {
	rows, err := p.db.Query(ctx, database.GetOrderHistorySQL, id)
	if err != nil {
		return nil, &StoreUnavailableError{Op: "get history", Err: err}
	}
	defer rows.Close()

	var history []models.StatusHistoryEntry
	for rows.Next() {
		var entry models.StatusHistoryEntry
		if err := rows.Scan(&entry.Status, &entry.ChangedBy, &entry.ChangedAt, &entry.Notes); err != nil {
			return nil, &StoreUnavailableError{Op: "get history", Err: err}
		}
		history = append(history, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, &StoreUnavailableError{Op: "get history", Err: err}
	}
	return history, nil
}

// TableExists reports whether a table number is registered
func (p *PostgresStore) TableExists(ctx context.Context, tableNumber int) (bool, error) {
	var exists bool
	err := p.db.QueryRow(ctx, database.TableExistsSQL, tableNumber).Scan(&exists)
	if err != nil {
		return false, &StoreUnavailableError{Op: "resolve table", Err: err}
	}
	return exists, nil
}

// NextOrderSequence returns the next per-day order number sequence
func (p *PostgresStore) NextOrderSequence(ctx context.Context, numberPrefix string) (int, error) {
	var seq int
	err := p.db.QueryRow(ctx, database.GetNextOrderSequenceSQL, numberPrefix).Scan(&seq)
	if err != nil {
		return 0, &StoreUnavailableError{Op: "next order sequence", Err: err}
	}
	return seq, nil
}

func (p *PostgresStore) orderItems(ctx context.Context, orderID string) ([]models.CartItem, error) {
	rows, err := p.db.Query(ctx, database.GetOrderItemsSQL, orderID)
	if err != nil {
		return nil, &StoreUnavailableError{Op: "get order items", Err: err}
	}
	defer rows.Close()

	type itemRow struct {
		rowID int
		item  models.CartItem
	}

	var itemRows []itemRow
	for rows.Next() {
		var r itemRow
		err := rows.Scan(&r.rowID, &r.item.MenuItem.ID, &r.item.MenuItem.Name,
			&r.item.MenuItem.Description, &r.item.MenuItem.Price,
			&r.item.Quantity, &r.item.SpecialInstructions)
		if err != nil {
			return nil, &StoreUnavailableError{Op: "get order items", Err: err}
		}
		itemRows = append(itemRows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreUnavailableError{Op: "get order items", Err: err}
	}

	items := make([]models.CartItem, 0, len(itemRows))
	for _, r := range itemRows {
		addOnRows, err := p.db.Query(ctx, database.GetOrderItemAddOnsSQL, r.rowID)
		if err != nil {
			return nil, &StoreUnavailableError{Op: "get order item add-ons", Err: err}
		}

		for addOnRows.Next() {
			var a models.AddOn
			if err := addOnRows.Scan(&a.ID, &a.Name, &a.Price); err != nil {
				addOnRows.Close()
				return nil, &StoreUnavailableError{Op: "get order item add-ons", Err: err}
			}
			r.item.SelectedAddOns = append(r.item.SelectedAddOns, a)
		}
		err = addOnRows.Err()
		addOnRows.Close()
		if err != nil {
			return nil, &StoreUnavailableError{Op: "get order item add-ons", Err: err}
		}

		items = append(items, r.item)
	}

	return items, nil
}
