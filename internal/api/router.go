package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/hugh/easy-diagrams/internal/api/handlers"
	"github.com/hugh/easy-diagrams/internal/api/middleware"
	"github.com/hugh/easy-diagrams/internal/auth"
	"github.com/hugh/easy-diagrams/internal/diagrams"
	"github.com/hugh/easy-diagrams/pkg/crypto"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB             *gorm.DB
	Redis          *redis.Client    // optional
	Inspector      *asynq.Inspector // optional
	Logger         *slog.Logger
	JWTService     *auth.JWTService
	AuthService    auth.Authenticator
	Sessions       auth.SessionVerifier
	Providers      []auth.Provider
	Sealer         *crypto.Sealer
	Diagrams       *diagrams.Factory
	RateLimiter    *middleware.RateLimiter // nil disables rate limiting; probes are never limited
	CSRFStore      *middleware.CSRFStore
	AllowedOrigins []string // CORS allowed origins
	SecureCookies  bool
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	// CORS - restrict to configured origins, or allow localhost in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "ETag"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	csrfStore := cfg.CSRFStore
	if csrfStore == nil {
		csrfStore = middleware.NewCSRFStore()
	}
	cookies := handlers.SessionCookies{Secure: cfg.SecureCookies, MaxAge: cfg.JWTService.Expiry()}

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis, cfg.Inspector)
	authHandler := handlers.NewAuthHandler(cfg.AuthService, cfg.Providers, cfg.Sealer, cookies, cfg.Logger)
	diagramHandler := handlers.NewDiagramHandler(cfg.Diagrams, cfg.Logger)
	folderHandler := handlers.NewFolderHandler(cfg.DB, cfg.Logger)
	orgHandler := handlers.NewOrganizationHandler(cfg.DB, cfg.AuthService, cfg.Diagrams.Renders(), cookies, cfg.Logger)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Social login
	r.Group(func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(middleware.RateLimit(cfg.RateLimiter))
		}
		r.Get("/login/{provider}", authHandler.Login)
		r.Get("/login/{provider}/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
	})

	// Images are public for public diagrams and otherwise need a session
	// in the owning organization.
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWTService, cfg.Sessions))
		if cfg.RateLimiter != nil {
			r.Use(middleware.RateLimitByUser(cfg.RateLimiter))
		}
		r.Get("/diagrams/{id}/image.png", diagramHandler.Image)
		r.Get("/diagrams/{id}/image.svg", diagramHandler.Image)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTService, cfg.Sessions))
		if cfg.RateLimiter != nil {
			r.Use(middleware.RateLimitByUser(cfg.RateLimiter))
		}
		r.Use(middleware.CSRF(csrfStore))

		r.Get("/me", authHandler.Me)

		// Only diagrams and folders check the token's organization; /me and
		// /organizations stay reachable so a caller whose organization was
		// deleted can still switch away.
		r.Route("/diagrams", func(r chi.Router) {
			r.Use(middleware.RequireOrganization(cfg.Sessions))
			r.Get("/", diagramHandler.List)
			r.Post("/", diagramHandler.Create)
			r.Get("/{id}", diagramHandler.Get)
			r.Put("/{id}", diagramHandler.Update)
			r.Delete("/{id}", diagramHandler.Delete)
		})

		r.Route("/folders", func(r chi.Router) {
			r.Use(middleware.RequireOrganization(cfg.Sessions))
			r.Get("/", folderHandler.List)
			r.Post("/", folderHandler.Create)
			r.Get("/{id}", folderHandler.Get)
			r.Put("/{id}", folderHandler.Update)
			r.Delete("/{id}", folderHandler.Delete)
			r.Get("/{id}/path", folderHandler.Path)
		})

		r.Route("/organizations", func(r chi.Router) {
			r.Get("/", orgHandler.List)
			r.Post("/", orgHandler.Create)
			r.Get("/{id}", orgHandler.Get)
			r.Put("/{id}", orgHandler.Update)
			r.Delete("/{id}", orgHandler.Delete)
			r.Post("/{id}/switch", orgHandler.Switch)
			r.Get("/{id}/users", orgHandler.ListUsers)
			r.Post("/{id}/users", orgHandler.AddUser)
			r.Delete("/{id}/users/{userID}", orgHandler.RemoveUser)
			r.Get("/{id}/owners", orgHandler.ListOwners)
			r.Put("/{id}/owners/{userID}", orgHandler.MakeOwner)
			r.Delete("/{id}/owners/{userID}", orgHandler.RemoveOwner)
		})
	})

	return &Router{r}
}
