package store

import (
	"sync"
	"time"

	"librarium/pkg/domain"
)

// MemoryStore keeps records in-process. It backs tests and local runs
// without Postgres.
type MemoryStore struct {
	mu     sync.RWMutex
	books  map[string]domain.Book
	order  []string
	users  map[string]domain.User // key: user ID
	byName map[string]string      // username -> user ID
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:  make(map[string]domain.Book),
		users:  make(map[string]domain.User),
		byName: make(map[string]string),
	}
}

// SaveBook stores or replaces a book record and tracks insertion order.
func (m *MemoryStore) SaveBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.books[b.ID]; !exists {
		m.order = append(m.order, b.ID)
	}
	m.books[b.ID] = b
	return nil
}

// GetBook retrieves a book by ID.
func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

// ListBooks returns books in insertion order.
func (m *MemoryStore) ListBooks() ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0, len(m.order))
	for _, id := range m.order {
		if b, ok := m.books[id]; ok {
			res = append(res, b)
		}
	}
	return res, nil
}

// SetBookStatus updates a book's status unconditionally.
func (m *MemoryStore) SetBookStatus(id string, status domain.BookStatus) (domain.Book, bool, error) {
	return m.setStatus(id, "", status)
}

// SetBookStatusFrom updates the status only when the current status matches from.
func (m *MemoryStore) SetBookStatusFrom(id string, from, to domain.BookStatus) (domain.Book, bool, error) {
	return m.setStatus(id, from, to)
}

func (m *MemoryStore) setStatus(id string, from, to domain.BookStatus) (domain.Book, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[id]
	if !ok {
		return domain.Book{}, false, nil
	}
	if from != "" && book.Status != from {
		return domain.Book{}, false, nil
	}
	book.Status = to
	book.UpdatedAt = time.Now().UTC()
	m.books[id] = book
	return book, true, nil
}

// DeleteBook removes a book. Returns false when the id is unknown.
func (m *MemoryStore) DeleteBook(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return false, nil
	}
	delete(m.books, id)
	filtered := m.order[:0]
	for _, item := range m.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.order = filtered
	return true, nil
}

// SaveUser registers or updates a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.users[u.ID]; ok && prev.Username != u.Username {
		delete(m.byName, prev.Username)
	}
	m.users[u.ID] = u
	m.byName[u.Username] = u.ID
	return nil
}

// HasUsername checks if a username exists.
func (m *MemoryStore) HasUsername(username string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byName[username]
	return ok, nil
}

// GetUserByUsername looks up a user by username.
func (m *MemoryStore) GetUserByUsername(username string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.byName[username]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if email == "" {
		return domain.User{}, false, nil
	}
	for _, u := range m.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// ListUsers returns all users.
func (m *MemoryStore) ListUsers() ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		res = append(res, u)
	}
	return res, nil
}
