package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Book is a row of the 'books' table as shown in listings.
type Book struct {
	ID            int64           `json:"id" db:"id"`
	CategoryID    int64           `json:"category_id" db:"category_id"`
	Title         string          `json:"title" db:"title"`
	Author        string          `json:"author" db:"author"`
	Price         decimal.Decimal `json:"price" db:"price"`
	ImageURL      *string         `json:"image_url,omitempty" db:"image_url"`
	Summary       *string         `json:"summary,omitempty" db:"summary"`
	PublishedDate *time.Time      `json:"published_date,omitempty" db:"published_date"`
	Rating        decimal.Decimal `json:"rating" db:"rating"`
	Likes         int64           `json:"likes" db:"likes"`
}

// BookDetail adds the 'book_details' columns, the category name and whether
// the caller likes the book.
type BookDetail struct {
	Book
	CategoryName    string  `json:"category_name" db:"category_name"`
	ISBN            *string `json:"isbn,omitempty" db:"isbn"`
	Description     *string `json:"description,omitempty" db:"description"`
	TableOfContents *string `json:"table_of_contents,omitempty" db:"table_of_contents"`
	Form            *string `json:"form,omitempty" db:"form"`
	IsLiked         bool    `json:"is_liked" db:"is_liked"`
}

// BookFilter carries the GET /books query parameters.
type BookFilter struct {
	CategoryID *int64
	Keyword    string
	NewOnly    bool
	Page       int
	Limit      int
}

type Pagination struct {
	CurrentPage int   `json:"current_page"`
	TotalCount  int64 `json:"total_count"`
}

type BookPage struct {
	Books      []Book     `json:"books"`
	Pagination Pagination `json:"pagination"`
}
