package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"librarium/internal/util"
)

// WebSession is the server-side state behind a session cookie. It is
// populated on form login or after an OAuth callback.
type WebSession struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
}

// WebSessionStore persists cookie sessions keyed by an opaque id.
type WebSessionStore interface {
	NewWebSession(sess WebSession) (string, error)
	GetWebSession(id string) (WebSession, bool, error)
	DeleteWebSession(id string) error
}

// RedisWebSessionStore keeps cookie sessions in Redis with TTL.
type RedisWebSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisWebSessionStore builds a Redis-backed web session store.
func NewRedisWebSessionStore(addr, password string, ttl time.Duration) *RedisWebSessionStore {
	return &RedisWebSessionStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		ttl: ttl,
	}
}

// NewWebSession writes an id -> session mapping with TTL.
func (s *RedisWebSessionStore) NewWebSession(sess WebSession) (string, error) {
	id := util.NewID()
	raw, err := json.Marshal(sess)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, webSessionKey(id), raw, s.ttl).Err(); err != nil {
		return "", err
	}
	return id, nil
}

// GetWebSession resolves a session id.
func (s *RedisWebSessionStore) GetWebSession(id string) (WebSession, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	raw, err := s.client.Get(ctx, webSessionKey(id)).Result()
	if err == redis.Nil {
		return WebSession{}, false, nil
	}
	if err != nil {
		return WebSession{}, false, err
	}
	var sess WebSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return WebSession{}, false, err
	}
	return sess, true, nil
}

// DeleteWebSession removes a session mapping.
func (s *RedisWebSessionStore) DeleteWebSession(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Del(ctx, webSessionKey(id)).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

func webSessionKey(id string) string {
	return "websession:" + id
}

// MemoryWebSessionStore keeps cookie sessions in-memory (tests and
// single-instance runs).
type MemoryWebSessionStore struct {
	mu       sync.Mutex
	sessions map[string]WebSession
}

// NewMemoryWebSessionStore constructs an empty in-memory session store.
func NewMemoryWebSessionStore() *MemoryWebSessionStore {
	return &MemoryWebSessionStore{sessions: make(map[string]WebSession)}
}

// NewWebSession stores a session under a fresh id.
func (s *MemoryWebSessionStore) NewWebSession(sess WebSession) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := util.NewID()
	s.sessions[id] = sess
	return id, nil
}

// GetWebSession resolves a session id.
func (s *MemoryWebSessionStore) GetWebSession(id string) (WebSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok, nil
}

// DeleteWebSession removes a session.
func (s *MemoryWebSessionStore) DeleteWebSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
