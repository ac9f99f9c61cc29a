package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisWebSessionStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisWebSessionStore(mr.Addr(), "", time.Minute)

	id, err := s.NewWebSession(WebSession{UserID: "u-1", Username: "alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	sess, ok, err := s.GetWebSession(id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !ok || sess.Username != "alice" || sess.UserID != "u-1" {
		t.Fatalf("unexpected session: %+v ok=%v", sess, ok)
	}

	if err := s.DeleteWebSession(id); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, err := s.GetWebSession(id); err != nil || ok {
		t.Fatalf("expected session gone, ok=%v err=%v", ok, err)
	}
}

func TestRedisWebSessionStoreExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisWebSessionStore(mr.Addr(), "", time.Second)

	id, err := s.NewWebSession(WebSession{UserID: "u-2", Username: "bob"})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	mr.FastForward(2 * time.Second)
	if _, ok, err := s.GetWebSession(id); err != nil || ok {
		t.Fatalf("expected expired session, ok=%v err=%v", ok, err)
	}
}

func TestMemoryWebSessionStore(t *testing.T) {
	s := NewMemoryWebSessionStore()
	id, err := s.NewWebSession(WebSession{UserID: "u-3", Username: "carol"})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	sess, ok, err := s.GetWebSession(id)
	if err != nil || !ok || sess.Username != "carol" {
		t.Fatalf("unexpected session: %+v ok=%v err=%v", sess, ok, err)
	}
	if err := s.DeleteWebSession(id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.GetWebSession(id); ok {
		t.Fatalf("expected session gone")
	}
}
