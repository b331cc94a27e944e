package models

// Category represents a menu category
type Category struct {
	ID        string `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	SortOrder int    `json:"sort_order" db:"sort_order"`
}

// AddOn represents a priced modifier attached to a menu item
type AddOn struct {
	ID    string  `json:"id" db:"id"`
	Name  string  `json:"name" db:"name"`
	Price float64 `json:"price" db:"price"`
}

// MenuItem represents a catalog entry
type MenuItem struct {
	ID          string  `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Description string  `json:"description" db:"description"`
	Price       float64 `json:"price" db:"price"`
	Image       string  `json:"image" db:"image_url"`
	CategoryID  string  `json:"category_id" db:"category_id"`
	IsVeg       bool    `json:"is_veg" db:"is_veg"`
	IsAvailable bool    `json:"is_available" db:"is_available"`
	AddOns      []AddOn `json:"add_ons,omitempty"`
}

// MenuFilter narrows a menu item query
type MenuFilter struct {
	CategoryID    string
	VegOnly       bool
	AvailableOnly bool
}
