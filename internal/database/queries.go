package database

// Order queries
const (
	InsertOrderSQL = `
		INSERT INTO orders (id, number, table_number, status, subtotal, tax, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	InsertOrderItemSQL = `
		INSERT INTO order_items (order_id, menu_item_id, name, description, item_price, quantity, instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	InsertOrderItemAddOnSQL = `
		INSERT INTO order_item_add_ons (order_item_id, add_on_id, name, price)
		VALUES ($1, $2, $3, $4)`

	InsertOrderStatusLogSQL = `
		INSERT INTO order_status_log (order_id, status, changed_by, notes)
		VALUES ($1, $2, $3, $4)`

	// The WHERE clause on the current status makes the legal-transition
	// check authoritative at the store: of two racing clients, only one
	// update matches and the other affects zero rows.
	AdvanceOrderStatusSQL = `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`

	GetOrderSQL = `
		SELECT id, number, table_number, status, subtotal, tax, total, created_at, updated_at
		FROM orders WHERE id = $1`

	GetOrderStatusSQL = `
		SELECT status FROM orders WHERE id = $1`

	ListOrdersSQL = `
		SELECT id, number, table_number, status, subtotal, tax, total, created_at, updated_at
		FROM orders
		WHERE status = ANY($1)
		ORDER BY created_at DESC`

	ListAllOrdersSQL = `
		SELECT id, number, table_number, status, subtotal, tax, total, created_at, updated_at
		FROM orders
		ORDER BY created_at DESC`

	GetOrderItemsSQL = `
		SELECT id, menu_item_id, name, description, item_price, quantity, instructions
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC`

	GetOrderItemAddOnsSQL = `
		SELECT add_on_id, name, price
		FROM order_item_add_ons
		WHERE order_item_id = $1
		ORDER BY add_on_id ASC`

	GetOrderHistorySQL = `
		SELECT status, changed_by, changed_at, notes
		FROM order_status_log
		WHERE order_id = $1
		ORDER BY changed_at ASC`

	GetNextOrderSequenceSQL = `
		SELECT COALESCE(MAX(CAST(SUBSTRING(number FROM 'ORD_[0-9]{8}_([0-9]{3})') AS INTEGER)), 0) + 1
		FROM orders
		WHERE number LIKE $1`
)

// Table queries
const (
	TableExistsSQL = `
		SELECT EXISTS(SELECT 1 FROM tables WHERE table_number = $1)`
)

// Menu catalog queries
const (
	GetCategoriesSQL = `
		SELECT id, name, sort_order
		FROM categories
		ORDER BY sort_order ASC`

	// category_id is compared as text so $1 resolves to a single type
	// against both the empty-string sentinel and the uuid column, and
	// uncategorized items scan as an empty string.
	GetMenuItemsSQL = `
		SELECT id, name, description, price, image_url, COALESCE(category_id::text, ''), is_veg, is_available
		FROM menu_items
		WHERE ($1::text = '' OR category_id::text = $1)
		  AND (NOT $2::boolean OR is_veg)
		  AND (NOT $3::boolean OR is_available)
		ORDER BY name ASC`

	GetMenuItemSQL = `
		SELECT id, name, description, price, image_url, COALESCE(category_id::text, ''), is_veg, is_available
		FROM menu_items WHERE id = $1`

	GetMenuItemAddOnsSQL = `
		SELECT a.id, a.name, a.price
		FROM add_ons a
		JOIN menu_item_add_ons m ON m.add_on_id = a.id
		WHERE m.menu_item_id = $1
		ORDER BY a.name ASC`
)
