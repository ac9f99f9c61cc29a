package store

import (
	"testing"
	"time"
)

func newTestJWTStore(t *testing.T, ttl time.Duration) *JWTSessionStore {
	t.Helper()
	s, err := NewJWTSessionStore("test-secret", ttl, JWTOptions{Leeway: time.Millisecond})
	if err != nil {
		t.Fatalf("new jwt store: %v", err)
	}
	return s
}

func TestJWTSessionRoundTrip(t *testing.T) {
	s := newTestJWTStore(t, time.Minute)
	token, err := s.NewSession("alice")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	subject, ok, err := s.GetSubjectByToken(token)
	if err != nil {
		t.Fatalf("get subject: %v", err)
	}
	if !ok || subject != "alice" {
		t.Fatalf("expected subject alice, got %q ok=%v", subject, ok)
	}
}

func TestJWTSessionRejectsExpiredToken(t *testing.T) {
	s := newTestJWTStore(t, 10*time.Millisecond)
	token, err := s.NewSession("alice")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok, err := s.GetSubjectByToken(token); err != nil || ok {
		t.Fatalf("expected expired token to be rejected, ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionRejectsForeignSignature(t *testing.T) {
	s := newTestJWTStore(t, time.Minute)
	other, err := NewJWTSessionStore("other-secret", time.Minute, JWTOptions{})
	if err != nil {
		t.Fatalf("new jwt store: %v", err)
	}
	token, err := other.NewSession("alice")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, err := s.GetSubjectByToken(token); err != nil || ok {
		t.Fatalf("expected foreign signature to be rejected, ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionRejectsGarbage(t *testing.T) {
	s := newTestJWTStore(t, time.Minute)
	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		if _, ok, err := s.GetSubjectByToken(token); err != nil || ok {
			t.Fatalf("expected %q to be rejected, ok=%v err=%v", token, ok, err)
		}
	}
}
