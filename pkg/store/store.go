package store

import (
	"librarium/pkg/domain"
)

// Store defines persistence operations for books and users. The surface
// mirrors a document store: list, find-one, insert, single-document
// update, delete. Per-document atomicity only; no multi-document
// transactions.
type Store interface {
	// books
	SaveBook(domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	ListBooks() ([]domain.Book, error)
	// SetBookStatus updates a book's status unconditionally and returns
	// the updated record (find-one-and-update semantics).
	SetBookStatus(id string, status domain.BookStatus) (domain.Book, bool, error)
	// SetBookStatusFrom updates the status only when the current status
	// matches from. The false return covers both an unknown id and a
	// status mismatch; callers disambiguate with GetBook.
	SetBookStatusFrom(id string, from, to domain.BookStatus) (domain.Book, bool, error)
	DeleteBook(id string) (bool, error)

	// users
	SaveUser(domain.User) error
	HasUsername(username string) (bool, error)
	GetUserByUsername(username string) (domain.User, bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	ListUsers() ([]domain.User, error)
}

// SessionStore issues and validates bearer tokens.
type SessionStore interface {
	NewSession(subject string) (string, error)
	GetSubjectByToken(token string) (string, bool, error)
}
