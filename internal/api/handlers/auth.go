package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/easy-diagrams/internal/api/dto"
	"github.com/hugh/easy-diagrams/internal/api/middleware"
	"github.com/hugh/easy-diagrams/internal/apperr"
	"github.com/hugh/easy-diagrams/internal/auth"
	"github.com/hugh/easy-diagrams/pkg/crypto"
)

const (
	loginStateCookie = "login_state"
	loginStateTTL    = 10 * time.Minute
)

// SessionCookies writes the session token cookie.
type SessionCookies struct {
	Secure bool
	MaxAge time.Duration
}

func (c SessionCookies) Set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(c.MaxAge.Seconds()),
	})
}

func (c SessionCookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		MaxAge:   -1,
	})
}

// loginState travels through the provider round trip in a sealed cookie.
type loginState struct {
	State     string    `json:"state"`
	Next      string    `json:"next"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AuthHandler struct {
	authService auth.Authenticator
	providers   map[string]auth.Provider
	sealer      *crypto.Sealer
	cookies     SessionCookies
	logger      *slog.Logger
}

func NewAuthHandler(authService auth.Authenticator, providers []auth.Provider, sealer *crypto.Sealer, cookies SessionCookies, logger *slog.Logger) *AuthHandler {
	byName := make(map[string]auth.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &AuthHandler{
		authService: authService,
		providers:   byName,
		sealer:      sealer,
		cookies:     cookies,
		logger:      logger,
	}
}

func (h *AuthHandler) provider(r *http.Request) (auth.Provider, error) {
	name := chi.URLParam(r, "provider")
	p, ok := h.providers[name]
	if !ok {
		return nil, apperr.NotFoundf("login provider %q not found", name)
	}
	return p, nil
}

// Login handles GET /login/{provider}
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	p, err := h.provider(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	state, err := crypto.GenerateRandomString(32)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sealed, err := h.sealer.Seal(loginState{
		State:     state,
		Next:      safeNext(r.URL.Query().Get("next")),
		ExpiresAt: time.Now().Add(loginStateTTL),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     loginStateCookie,
		Value:    sealed,
		Path:     "/login",
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(loginStateTTL.Seconds()),
	})
	http.Redirect(w, r, p.AuthCodeURL(state), http.StatusFound)
}

// Callback handles GET /login/{provider}/callback
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	p, err := h.provider(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	st, err := h.readState(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: loginStateCookie, Value: "", Path: "/login", MaxAge: -1})

	email, err := p.Email(r.Context(), r)
	if err != nil {
		h.logger.Warn("login failed", "provider", p.Name(), "error", err)
		writeError(w, r, h.logger, err)
		return
	}

	resp, err := h.authService.Login(r.Context(), email)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.cookies.Set(w, resp.Token)
	http.Redirect(w, r, st.Next, http.StatusSeeOther)
}

func (h *AuthHandler) readState(r *http.Request) (*loginState, error) {
	cookie, err := r.Cookie(loginStateCookie)
	if err != nil {
		return nil, apperr.Unauthorized("login session missing, start again")
	}

	var st loginState
	if err := h.sealer.Open(cookie.Value, &st); err != nil {
		return nil, apperr.Unauthorized("login session invalid, start again")
	}
	if time.Now().After(st.ExpiresAt) {
		return nil, apperr.Unauthorized("login session expired, start again")
	}
	if subtle.ConstantTimeCompare([]byte(st.State), []byte(r.URL.Query().Get("state"))) != 1 {
		return nil, apperr.Unauthorized("login state mismatch")
	}
	return &st, nil
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

// Logout handles POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Clear(w)
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Logged out"})
}

// Me handles GET /api/v1/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.GetUserByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		dto.UserDTO
		OrganizationID string `json:"organization_id"`
	}{dto.NewUserDTO(user), middleware.GetOrganizationID(r.Context()).String()})
}
