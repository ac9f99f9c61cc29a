package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/oauth2"

	"librarium/pkg/domain"
)

func testOAuthConfig(providerURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost/auth",
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  providerURL + "/authorize",
			TokenURL: providerURL + "/token",
		},
	}
}

// fakeProvider stands in for the OAuth provider: a token endpoint plus a
// userinfo endpoint.
func fakeProvider(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostFormValue("code") != "good-code" {
			http.Error(w, "invalid code", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "provider-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"sub":     "provider-123",
			"email":   "alice@example.com",
			"name":    "Alice",
			"picture": "https://example.com/alice.png",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOAuthLoginRedirectsToProvider(t *testing.T) {
	_, srv := newTestServerWithConfig(t, Config{OAuth: testOAuthConfig("https://provider.example.com")})

	resp, err := noRedirectClient().Get(srv.URL + "/login?provider=google")
	if err != nil {
		t.Fatalf("login redirect: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307, got %d", resp.StatusCode)
	}

	location, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	state := location.Query().Get("state")
	if state == "" {
		t.Fatalf("expected state in consent URL")
	}
	var stateCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == oauthStateCookie {
			stateCookie = c
		}
	}
	if stateCookie == nil || stateCookie.Value != state {
		t.Fatalf("state cookie must match consent URL state")
	}
}

func TestOAuthCallbackSignsIn(t *testing.T) {
	provider := fakeProvider(t)
	_, srv := newTestServerWithConfig(t, Config{
		OAuth:       testOAuthConfig(provider.URL),
		UserinfoURL: provider.URL + "/userinfo",
	})

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/auth?state=xyz&code=good-code", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "xyz"})
	resp, err := noRedirectClient().Do(req)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected redirect after sign-in, got %d", resp.StatusCode)
	}
	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie {
			session = c
		}
	}
	if session == nil || session.Value == "" {
		t.Fatalf("expected session cookie after oauth sign-in")
	}

	// The upserted user shows in the directory.
	usersResp, err := http.Get(srv.URL + "/users")
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	defer usersResp.Body.Close()
	var users struct {
		Items []domain.User `json:"items"`
	}
	if err := json.NewDecoder(usersResp.Body).Decode(&users); err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if len(users.Items) != 1 || users.Items[0].Email != "alice@example.com" {
		t.Fatalf("expected upserted oauth user, got %+v", users.Items)
	}
}

func TestOAuthCallbackProviderFailure(t *testing.T) {
	provider := fakeProvider(t)
	_, srv := newTestServerWithConfig(t, Config{
		OAuth:       testOAuthConfig(provider.URL),
		UserinfoURL: provider.URL + "/userinfo",
	})

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/auth?state=xyz&code=bad-code", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "xyz"})
	resp, err := noRedirectClient().Do(req)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 on exchange failure, got %d", resp.StatusCode)
	}
}
