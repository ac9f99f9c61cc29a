package server

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestTokenEndpointRateLimit(t *testing.T) {
	redis := miniredis.RunT(t)
	_, srv := newTestServerWithConfig(t, Config{
		RedisAddr:               redis.Addr(),
		LoginRateLimitPerMinute: 1,
	})

	form := url.Values{"username": {"alice"}, "password": {"secret1"}}
	resp1, err := http.PostForm(srv.URL+"/token", form)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	resp1.Body.Close()
	if resp1.StatusCode == http.StatusTooManyRequests {
		t.Fatalf("first request must not be rate limited")
	}

	resp2, err := http.PostForm(srv.URL+"/token", form)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", resp2.StatusCode)
	}
	if resp2.Header.Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After header")
	}
}
