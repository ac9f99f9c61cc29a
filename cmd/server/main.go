package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"

	"librarium/internal/app"
	"librarium/internal/catalog"
	"librarium/internal/chat"
	"librarium/internal/config"
	"librarium/internal/server"
	"librarium/internal/util"
	"librarium/pkg/store"
)

const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserinfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

	defaultCatalogBaseURL = "https://www.googleapis.com/books/v1"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	tokenTTL, _ := config.ParseDuration(cfg.TokenTTL, 30*time.Minute)
	jwtLeeway, _ := config.ParseDuration(cfg.JWTLeeway, 0)
	webSessionTTL, _ := config.ParseDuration(cfg.WebSessionTTL, 24*time.Hour)
	catalogTimeout, _ := config.ParseDuration(cfg.CatalogTimeout, 5*time.Second)

	var dataStore store.Store
	if cfg.DatabaseURL != "" {
		gormStore, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			util.Fatal("failed to init database store", "err", err)
		}
		dataStore = gormStore
	} else {
		slog.Warn("databaseURL not configured, using in-memory storage")
		dataStore = store.NewMemoryStore()
	}

	sessions, err := store.NewJWTSessionStore(cfg.TokenSecret, tokenTTL, store.JWTOptions{
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   jwtLeeway,
	})
	if err != nil {
		util.Fatal("failed to init token store", "err", err)
	}

	var webSessions store.WebSessionStore
	if cfg.RedisAddr != "" {
		webSessions = store.NewRedisWebSessionStore(cfg.RedisAddr, cfg.RedisPassword, webSessionTTL)
	} else {
		slog.Warn("redisAddr not configured, using in-memory web sessions")
		webSessions = store.NewMemoryWebSessionStore()
	}

	var catalogClient app.CatalogSearcher
	if cfg.CatalogAPIKey != "" {
		baseURL := cfg.CatalogBaseURL
		if baseURL == "" {
			baseURL = defaultCatalogBaseURL
		}
		catalogClient = catalog.NewClient(baseURL, cfg.CatalogAPIKey, catalogTimeout)
	}

	appCore, err := app.New(app.Config{
		Store:          dataStore,
		Sessions:       sessions,
		Catalog:        catalogClient,
		CatalogQuery:   cfg.CatalogQuery,
		CatalogTimeout: catalogTimeout,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	var oauthConfig *oauth2.Config
	if cfg.GoogleClientID != "" {
		oauthConfig = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  googleAuthURL,
				TokenURL: googleTokenURL,
			},
		}
	}

	httpServer, err := server.New(server.Config{
		App:                      appCore,
		WebSessions:              webSessions,
		Hub:                      chat.NewHub(logger),
		OAuth:                    oauthConfig,
		UserinfoURL:              googleUserinfoURL,
		RedisAddr:                cfg.RedisAddr,
		RedisPassword:            cfg.RedisPassword,
		LoginRateLimitPerMinute:  cfg.LoginRateLimitPerMinute,
		SignupRateLimitPerMinute: cfg.SignupRateLimitPerMinute,
	})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}

	addr := ":" + cfg.Port
	// No global read/write timeouts: the chat endpoint holds
	// connections open indefinitely.
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	slog.Info("server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
