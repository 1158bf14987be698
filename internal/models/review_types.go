package models

import "time"

// Review is the model for the 'reviews' table. Rating is 1..5.
type Review struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	BookID    int64     `json:"book_id" db:"book_id"`
	Content   string    `json:"content" db:"content"`
	Rating    int       `json:"rating" db:"rating"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Listing-only fields.
	UserName string `json:"user_name,omitempty" db:"user_name"`
	Likes    int64  `json:"likes" db:"likes"`
}
