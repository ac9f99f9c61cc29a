package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"librarium/internal/util"
	"librarium/pkg/auth"
	"librarium/pkg/domain"
	"librarium/pkg/store"
)

// CatalogSearcher queries an external book catalog. Implementations must
// honor the context deadline; failures degrade listing, never abort it.
type CatalogSearcher interface {
	Search(ctx context.Context, query string) ([]domain.CatalogItem, error)
}

// Config holds runtime configuration for the core application.
type Config struct {
	Store          store.Store
	Sessions       store.SessionStore
	Catalog        CatalogSearcher
	CatalogQuery   string
	CatalogTimeout time.Duration
}

// App is the core application service wiring together storage, auth,
// and catalog enrichment.
type App struct {
	store          store.Store
	sessions       store.SessionStore
	catalog        CatalogSearcher
	catalogQuery   string
	catalogTimeout time.Duration
}

// BookListing is the result of ListBooks: local inventory plus optional
// catalog suggestions.
type BookListing struct {
	Books   []domain.Book        `json:"items"`
	Catalog []domain.CatalogItem `json:"catalog,omitempty"`
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	timeout := cfg.CatalogTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &App{
		store:          cfg.Store,
		sessions:       cfg.Sessions,
		catalog:        cfg.Catalog,
		catalogQuery:   cfg.CatalogQuery,
		catalogTimeout: timeout,
	}, nil
}

// Register creates a user after checking the username is free. Only the
// bcrypt hash of the password is stored.
func (a *App) Register(username, email, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, ErrUsernameAndPasswordRequired
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, validationErr("password", err.Error())
	}
	taken, err := a.store.HasUsername(username)
	if err != nil {
		return domain.User{}, fmt.Errorf("check username: %w", err)
	}
	if taken {
		return domain.User{}, ErrUsernameTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		Disabled:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// Authenticate validates a username/password pair. All failure causes
// collapse into ErrInvalidCredentials.
func (a *App) Authenticate(username, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	user, ok, err := a.store.GetUserByUsername(username)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok || user.Disabled {
		return domain.User{}, ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// IssueToken produces a signed bearer token for the user. The subject is
// the username; expiry is handled by the session store's TTL.
func (a *App) IssueToken(user domain.User) (string, error) {
	token, err := a.sessions.NewSession(user.Username)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// Login authenticates and issues a token in one step.
func (a *App) Login(username, password string) (domain.User, string, error) {
	user, err := a.Authenticate(username, password)
	if err != nil {
		return domain.User{}, "", err
	}
	token, err := a.IssueToken(user)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, token, nil
}

// UserFromToken verifies a bearer token and re-resolves its subject to a
// live user record. A user that vanished or was disabled after issuance
// does not authenticate.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	subject, ok, err := a.sessions.GetSubjectByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByUsername(subject)
	if err != nil || !found || user.Disabled {
		return domain.User{}, false
	}
	return user, true
}

// UserFromOAuth upserts a user from OAuth identity claims, keyed by
// email. The account carries no password; it exists for the session
// cookie flow.
func (a *App) UserFromOAuth(email, name string, claims map[string]string) (domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return domain.User{}, validationErr("email", "email claim required")
	}
	now := time.Now().UTC()
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		username := email
		if name = strings.TrimSpace(name); name != "" {
			username = name
		}
		// The chosen username may collide; fall back to the email,
		// which the provider guarantees unique.
		if taken, err := a.store.HasUsername(username); err != nil {
			return domain.User{}, fmt.Errorf("check username: %w", err)
		} else if taken && username != email {
			username = email
		}
		user = domain.User{
			ID:        uuid.NewString(),
			Username:  username,
			Email:     email,
			CreatedAt: now,
		}
	}
	if user.Disabled {
		return domain.User{}, ErrInvalidCredentials
	}
	user.Profile = claims
	user.UpdatedAt = now
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// ListUsers returns all users.
func (a *App) ListUsers() ([]domain.User, error) {
	return a.store.ListUsers()
}

// ListBooks returns local inventory, optionally enriched with external
// catalog results. The two fetches run concurrently; a catalog failure
// is logged and dropped so local listing always succeeds.
func (a *App) ListBooks(ctx context.Context) (BookListing, error) {
	var listing BookListing
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		books, err := a.store.ListBooks()
		if err != nil {
			return fmt.Errorf("list books: %w", err)
		}
		listing.Books = books
		return nil
	})
	if a.catalog != nil && a.catalogQuery != "" {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, a.catalogTimeout)
			defer cancel()
			items, err := a.catalog.Search(cctx, a.catalogQuery)
			if err != nil {
				util.LoggerFromContext(ctx).Warn("catalog search failed", "err", err)
				return nil
			}
			listing.Catalog = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BookListing{}, err
	}
	if listing.Books == nil {
		listing.Books = []domain.Book{}
	}
	return listing, nil
}

// CreateBook validates fields and persists a new book.
func (a *App) CreateBook(title, description, author string, status domain.BookStatus) (domain.Book, error) {
	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	if title == "" {
		return domain.Book{}, validationErr("title", "title is required")
	}
	if author == "" {
		return domain.Book{}, validationErr("author", "author is required")
	}
	if len(author) > domain.MaxAuthorLen {
		return domain.Book{}, validationErr("author", fmt.Sprintf("author must be at most %d characters", domain.MaxAuthorLen))
	}
	if status == "" {
		status = domain.StatusAvailable
	}
	if status != domain.StatusAvailable && status != domain.StatusRented {
		return domain.Book{}, validationErr("status", "status must be available or rented")
	}
	now := time.Now().UTC()
	book := domain.Book{
		ID:          uuid.NewString(),
		Title:       title,
		Description: strings.TrimSpace(description),
		Author:      author,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// RentBook transitions a book from available to rented. The transition
// is a conditional single-document update, so concurrent rents on the
// same book cannot both succeed.
func (a *App) RentBook(id string) (domain.Book, error) {
	book, ok, err := a.store.SetBookStatusFrom(id, domain.StatusAvailable, domain.StatusRented)
	if err != nil {
		return domain.Book{}, fmt.Errorf("rent book: %w", err)
	}
	if ok {
		return book, nil
	}
	// No row matched: unknown id or already rented.
	if _, found, err := a.store.GetBook(id); err != nil {
		return domain.Book{}, fmt.Errorf("rent book: %w", err)
	} else if !found {
		return domain.Book{}, ErrBookNotFound
	}
	return domain.Book{}, ErrBookAlreadyRented
}

// ReturnBook transitions a book back to available unconditionally.
func (a *App) ReturnBook(id string) (domain.Book, error) {
	book, ok, err := a.store.SetBookStatus(id, domain.StatusAvailable)
	if err != nil {
		return domain.Book{}, fmt.Errorf("return book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}

// DeleteBook removes a book.
func (a *App) DeleteBook(id string) error {
	deleted, err := a.store.DeleteBook(id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if !deleted {
		return ErrBookNotFound
	}
	return nil
}

// GetBook returns a single book.
func (a *App) GetBook(id string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}
