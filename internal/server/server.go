package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"librarium/internal/app"
	"librarium/internal/chat"
	"librarium/internal/ratelimit"
	"librarium/internal/util"
	"librarium/internal/web"
	"librarium/pkg/domain"
	"librarium/pkg/store"
)

const (
	sessionCookie    = "librarium_session"
	oauthStateCookie = "oauth_state"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App         *app.App
	WebSessions store.WebSessionStore
	Hub         *chat.Hub
	Renderer    *web.Renderer

	// OAuth enables the provider sign-in flow when non-nil.
	OAuth       *oauth2.Config
	UserinfoURL string

	// Redis-backed rate limiting for credential endpoints. Disabled
	// when RedisAddr is empty.
	RedisAddr                string
	RedisPassword            string
	LoginRateLimitPerMinute  int
	SignupRateLimitPerMinute int
}

// Server exposes the HTTP API, the WebSocket chat endpoint and the
// server-rendered pages.
type Server struct {
	app           *app.App
	webSessions   store.WebSessionStore
	hub           *chat.Hub
	renderer      *web.Renderer
	oauth         *oauth2.Config
	userinfoURL   string
	mux           *http.ServeMux
	loginLimiter  *ratelimit.FixedWindowLimiter
	signupLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("app required")
	}
	if cfg.WebSessions == nil {
		return nil, fmt.Errorf("web session store required")
	}
	renderer := cfg.Renderer
	if renderer == nil {
		var err error
		renderer, err = web.NewRenderer()
		if err != nil {
			return nil, err
		}
	}
	hub := cfg.Hub
	if hub == nil {
		hub = chat.NewHub(slog.Default())
	}

	s := &Server{
		app:         cfg.App,
		webSessions: cfg.WebSessions,
		hub:         hub,
		renderer:    renderer,
		oauth:       cfg.OAuth,
		userinfoURL: cfg.UserinfoURL,
		mux:         http.NewServeMux(),
	}

	if cfg.RedisAddr != "" {
		loginLimit := cfg.LoginRateLimitPerMinute
		if loginLimit <= 0 {
			loginLimit = 10
		}
		signupLimit := cfg.SignupRateLimitPerMinute
		if signupLimit <= 0 {
			signupLimit = 5
		}
		newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
			prefix := "librarium:ratelimit:" + name
			limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		var err error
		if s.loginLimiter, err = newLimiter("login", loginLimit); err != nil {
			return nil, err
		}
		if s.signupLimiter, err = newLimiter("signup", signupLimit); err != nil {
			return nil, err
		}
	} else {
		slog.Warn("redis addr not configured, credential rate limiting disabled")
	}

	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the middleware chain.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// API
	s.mux.HandleFunc("/books", s.handleBooks)
	s.mux.HandleFunc("/books/", s.handleBookByID)
	s.mux.HandleFunc("/users", s.handleUsers)
	s.mux.HandleFunc("/users/me", s.handleMe)
	s.mux.HandleFunc("/token", s.handleToken)

	// session-cookie sign-in
	s.mux.HandleFunc("/login", s.handleLogin)
	s.mux.HandleFunc("/auth", s.handleOAuthCallback)
	s.mux.HandleFunc("/logout", s.handleLogout)

	// chat
	s.mux.HandleFunc("/ws/", s.handleWS)
	s.mux.HandleFunc("/chat", s.handleChatPage)

	s.mux.HandleFunc("/", s.handleIndex)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// books

type createBookRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      string `json:"author"`
	Status      string `json:"status"`
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		listing, err := s.app.ListBooks(r.Context())
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listing)
	case http.MethodPost:
		var req createBookRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		book, err := s.app.CreateBook(req.Title, req.Description, req.Author, domain.BookStatus(req.Status))
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, book)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/books/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}

	switch action {
	case "":
		book, err := s.app.GetBook(id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case "rent":
		book, err := s.app.RentBook(id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		s.finishBookAction(w, r, book)
	case "return":
		book, err := s.app.ReturnBook(id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		s.finishBookAction(w, r, book)
	case "delete":
		if err := s.app.DeleteBook(id); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// finishBookAction answers rent/return for both consumers: browsers
// following an index-page link get a redirect, API callers get JSON.
func (s *Server) finishBookAction(w http.ResponseWriter, r *http.Request, book domain.Book) {
	if wantsHTML(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// users

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users, err := s.app.ListUsers()
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": users, "count": len(users)})
	case http.MethodPost:
		if !s.allowRate(w, r, s.signupLimiter, "too many signup attempts") {
			return
		}
		var req registerRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		user, err := s.app.Register(req.Username, req.Email, req.Password)
		if err != nil {
			s.audit(r, "auth.signup", "fail")
			s.writeAppError(w, r, err)
			return
		}
		s.audit(r, "auth.signup", "success", "user_id", user.ID)
		writeJSON(w, http.StatusCreated, user)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, ok := s.app.UserFromToken(token)
	if !ok {
		s.audit(r, "auth.token.verify", "fail")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleToken implements the password grant style token endpoint: form
// credentials in, bearer token out.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	user, token, err := s.app.Login(r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		s.audit(r, "auth.login", "fail")
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

// session-cookie sign-in

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Get("provider") == "google" {
			s.startOAuth(w, r)
			return
		}
		s.renderPage(w, r, http.StatusOK, "login.html", &web.PageData{Title: "Log in"})
	case http.MethodPost:
		if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
			return
		}
		if err := r.ParseForm(); err != nil {
			s.renderPage(w, r, http.StatusBadRequest, "login.html", &web.PageData{Title: "Log in", FormError: "invalid form body"})
			return
		}
		user, err := s.app.Authenticate(r.PostFormValue("username"), r.PostFormValue("password"))
		if err != nil {
			s.audit(r, "web.login", "fail")
			s.renderPage(w, r, http.StatusUnauthorized, "login.html", &web.PageData{Title: "Log in", FormError: app.ErrInvalidCredentials.Error()})
			return
		}
		if err := s.startWebSession(w, user); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		s.audit(r, "web.login", "success", "user_id", user.ID)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) startOAuth(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil {
		writeError(w, http.StatusNotFound, "provider sign-in not configured")
		return
	}
	state := util.NewID()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.oauth == nil {
		writeError(w, http.StatusNotFound, "provider sign-in not configured")
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		s.audit(r, "oauth.callback", "fail", "reason", "state_mismatch")
		writeError(w, http.StatusBadRequest, "invalid state parameter")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		s.audit(r, "oauth.callback", "fail", "reason", "missing_code")
		writeError(w, http.StatusBadRequest, "authorization failed")
		return
	}
	token, err := s.oauth.Exchange(r.Context(), code)
	if err != nil {
		s.audit(r, "oauth.callback", "fail", "reason", "exchange_failed")
		writeError(w, http.StatusBadGateway, "token exchange failed")
		return
	}
	identity, err := s.fetchUserinfo(r, token)
	if err != nil {
		s.audit(r, "oauth.callback", "fail", "reason", "userinfo_failed")
		writeError(w, http.StatusBadGateway, "identity lookup failed")
		return
	}
	user, err := s.app.UserFromOAuth(identity.Email, identity.Name, identity.claims())
	if err != nil {
		s.audit(r, "oauth.callback", "fail")
		s.writeAppError(w, r, err)
		return
	}
	if err := s.startWebSession(w, user); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "oauth.callback", "success", "user_id", user.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type oauthIdentity struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (id oauthIdentity) claims() map[string]string {
	claims := map[string]string{}
	if id.Sub != "" {
		claims["sub"] = id.Sub
	}
	if id.Picture != "" {
		claims["picture"] = id.Picture
	}
	if id.Name != "" {
		claims["name"] = id.Name
	}
	return claims
}

func (s *Server) fetchUserinfo(r *http.Request, token *oauth2.Token) (oauthIdentity, error) {
	resp, err := s.oauth.Client(r.Context(), token).Get(s.userinfoURL)
	if err != nil {
		return oauthIdentity{}, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return oauthIdentity{}, fmt.Errorf("fetch userinfo: unexpected status %s", resp.Status)
	}
	var identity oauthIdentity
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&identity); err != nil {
		return oauthIdentity{}, fmt.Errorf("decode userinfo: %w", err)
	}
	return identity, nil
}

func (s *Server) startWebSession(w http.ResponseWriter, user domain.User) error {
	id, err := s.webSessions.NewWebSession(store.WebSession{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		if err := s.webSessions.DeleteWebSession(cookie.Value); err != nil {
			slog.Warn("delete web session failed", "err", err)
		}
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// currentUser resolves the session cookie to a user for page rendering.
func (s *Server) currentUser(r *http.Request) *domain.User {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		return nil
	}
	sess, ok, err := s.webSessions.GetWebSession(cookie.Value)
	if err != nil || !ok {
		return nil
	}
	return &domain.User{ID: sess.UserID, Username: sess.Username, Email: sess.Email}
}

// chat

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	clientID, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/ws/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "client id must be numeric")
		return
	}
	s.hub.Handler(clientID).ServeHTTP(w, r)
}

func (s *Server) handleChatPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	s.renderPage(w, r, http.StatusOK, "chat.html", &web.PageData{Title: "Chat"})
}

// pages

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	listing, err := s.app.ListBooks(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.renderPage(w, r, http.StatusOK, "index.html", &web.PageData{
		Title:   "Library",
		Books:   listing.Books,
		Catalog: listing.Catalog,
	})
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, page string, data *web.PageData) {
	if data.CurrentUser == nil {
		data.CurrentUser = s.currentUser(r)
	}
	if err := s.renderer.Render(w, status, page, data); err != nil {
		slog.Error("render page failed", "page", page, "err", err)
	}
}

// helpers

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *app.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, app.ErrUsernameTaken),
		errors.Is(err, app.ErrUsernameAndPasswordRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrBookNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrBookAlreadyRented):
		writeError(w, http.StatusConflict, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r)
	if limiter.Allow(key) {
		return true
	}
	s.audit(r, "ratelimit.block", "fail")
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html")
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
