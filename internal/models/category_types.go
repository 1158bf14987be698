package models

import "time"

// Category defines the struct for the 'categories' table
type Category struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	ParentID  *int64    `json:"parent_id,omitempty" db:"parent_id"` // NULL for top-level categories
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	Children []*Category `json:"children,omitempty" db:"-"`
}
