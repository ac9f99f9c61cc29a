package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSearchParsesVolumes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/volumes" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "inauthor:pratchett" {
			t.Fatalf("unexpected query: %q", got)
		}
		if got := r.URL.Query().Get("key"); got != "test-key" {
			t.Fatalf("unexpected api key: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[
			{"volumeInfo":{"title":"Mort","authors":["Terry Pratchett"],"description":"Death takes an apprentice."}},
			{"volumeInfo":{"title":"","authors":["Nobody"]}},
			{"volumeInfo":{"title":"Good Omens","authors":["Terry Pratchett","Neil Gaiman"]}}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", time.Second)
	items, err := client.Search(context.Background(), "inauthor:pratchett")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items (untitled dropped), got %d", len(items))
	}
	if items[0].Title != "Mort" || items[0].Author != "Terry Pratchett" {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[1].Author != "Terry Pratchett, Neil Gaiman" {
		t.Fatalf("expected joined authors, got %q", items[1].Author)
	}
	if items[0].Source != "catalog" {
		t.Fatalf("expected catalog source, got %q", items[0].Source)
	}
}

func TestSearchUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", time.Second)
	if _, err := client.Search(context.Background(), "anything"); err == nil {
		t.Fatalf("expected error on non-200 status")
	}
}

func TestSearchEmptyQueryIsNoop(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "", time.Second)
	items, err := client.Search(context.Background(), "  ")
	if err != nil || items != nil {
		t.Fatalf("empty query should return nothing, got %v %v", items, err)
	}
}

func TestSearchHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.Search(ctx, "slow"); err == nil {
		t.Fatalf("expected context deadline error")
	}
}
