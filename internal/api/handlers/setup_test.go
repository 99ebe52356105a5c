package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/easy-diagrams/internal/api/handlers"
	"github.com/hugh/easy-diagrams/internal/api/middleware"
	"github.com/hugh/easy-diagrams/internal/auth"
	"github.com/hugh/easy-diagrams/internal/diagrams"
	"github.com/hugh/easy-diagrams/internal/storage"
	"github.com/hugh/easy-diagrams/internal/testutil"
	"github.com/hugh/easy-diagrams/pkg/crypto"
	"github.com/stretchr/testify/require"
)

type server struct {
	*testutil.TestSetup
	router   chi.Router
	renderer *diagrams.FakeRenderer
	mirror   *storage.MemoryMirror
	auth     *auth.Service
}

func newServer(t *testing.T) *server {
	t.Helper()

	ts := testutil.NewTestContext(t)
	t.Cleanup(ts.Cleanup)

	renderer := &diagrams.FakeRenderer{}
	mirror := storage.NewMemoryMirror()
	renders := diagrams.NewRenderService(ts.DB, renderer, mirror, ts.Logger)
	factory := diagrams.NewFactory(ts.DB, renders, nil, ts.Logger)

	authService := auth.NewService(ts.DB, ts.JWTService, ts.Logger)
	sealer, err := crypto.NewSealer("")
	require.NoError(t, err)
	cookies := handlers.SessionCookies{MaxAge: ts.JWTService.Expiry()}

	authHandler := handlers.NewAuthHandler(authService, []auth.Provider{auth.DummyProvider{}}, sealer, cookies, ts.Logger)
	diagramHandler := handlers.NewDiagramHandler(factory, ts.Logger)
	folderHandler := handlers.NewFolderHandler(ts.DB, ts.Logger)
	orgHandler := handlers.NewOrganizationHandler(ts.DB, authService, renders, cookies, ts.Logger)
	healthHandler := handlers.NewHealthHandler(ts.DB, nil, nil)

	r := chi.NewRouter()
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/login/{provider}", authHandler.Login)
	r.Get("/login/{provider}/callback", authHandler.Callback)
	r.Post("/logout", authHandler.Logout)
	optional := middleware.OptionalAuth(ts.JWTService, authService)
	r.With(optional).Get("/diagrams/{id}/image.png", diagramHandler.Image)
	r.With(optional).Get("/diagrams/{id}/image.svg", diagramHandler.Image)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(ts.JWTService, authService))
		r.Get("/me", authHandler.Me)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireOrganization(authService))

			r.Get("/diagrams", diagramHandler.List)
			r.Post("/diagrams", diagramHandler.Create)
			r.Get("/diagrams/{id}", diagramHandler.Get)
			r.Put("/diagrams/{id}", diagramHandler.Update)
			r.Delete("/diagrams/{id}", diagramHandler.Delete)

			r.Get("/folders", folderHandler.List)
			r.Post("/folders", folderHandler.Create)
			r.Get("/folders/{id}", folderHandler.Get)
			r.Put("/folders/{id}", folderHandler.Update)
			r.Delete("/folders/{id}", folderHandler.Delete)
			r.Get("/folders/{id}/path", folderHandler.Path)
		})

		r.Get("/organizations", orgHandler.List)
		r.Post("/organizations", orgHandler.Create)
		r.Get("/organizations/{id}", orgHandler.Get)
		r.Put("/organizations/{id}", orgHandler.Update)
		r.Delete("/organizations/{id}", orgHandler.Delete)
		r.Post("/organizations/{id}/switch", orgHandler.Switch)
		r.Get("/organizations/{id}/users", orgHandler.ListUsers)
		r.Post("/organizations/{id}/users", orgHandler.AddUser)
		r.Delete("/organizations/{id}/users/{userID}", orgHandler.RemoveUser)
		r.Get("/organizations/{id}/owners", orgHandler.ListOwners)
		r.Put("/organizations/{id}/owners/{userID}", orgHandler.MakeOwner)
		r.Delete("/organizations/{id}/owners/{userID}", orgHandler.RemoveOwner)
	})

	return &server{
		TestSetup: ts,
		router:    r,
		renderer:  renderer,
		mirror:    mirror,
		auth:      authService,
	}
}

func (s *server) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

// call sends an authenticated JSON request as the fixture user.
func (s *server) call(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(testutil.AuthenticatedRequest(t, method, path, body, s.Token))
}

func strPtr(s string) *string { return &s }
