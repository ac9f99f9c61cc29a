package domain

import "time"

type BookStatus string

const (
	StatusAvailable BookStatus = "available"
	StatusRented    BookStatus = "rented"
)

// MaxAuthorLen bounds the author field on book creation.
const MaxAuthorLen = 100

type Book struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Author      string     `json:"author"`
	Status      BookStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type User struct {
	ID           string            `json:"id"`
	Username     string            `json:"username"`
	Email        string            `json:"email,omitempty"`
	PasswordHash string            `json:"-"`
	Disabled     bool              `json:"disabled"`
	Profile      map[string]string `json:"profile,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// CatalogItem is a book record returned by the external catalog search.
// Catalog items are display-only and never persisted.
type CatalogItem struct {
	Title       string `json:"title"`
	Author      string `json:"author,omitempty"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source"`
}
