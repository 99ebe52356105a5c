package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/easy-diagrams/internal/api/dto"
	"github.com/hugh/easy-diagrams/internal/apperr"
	"github.com/hugh/easy-diagrams/internal/auth"
)

type contextKey string

const (
	UserIDKey         contextKey = "user_id"
	OrganizationIDKey contextKey = "organization_id"
	UserEmailKey      contextKey = "user_email"
)

// TokenCookieName is the cookie the login callback stores the session in.
const TokenCookieName = "token"

// Auth requires a valid token whose user still exists and is enabled. It does
// not look at the organization claim; routes that act on organization data
// add RequireOrganization.
func Auth(tokens auth.TokenService, sessions auth.SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w)
				return
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				writeUnauthorized(w)
				return
			}
			if err := sessions.VerifySession(r.Context(), claims.UserID, uuid.Nil); err != nil {
				writeSessionError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// RequireOrganization must run after Auth. It rejects callers that are no
// longer members of the organization named in their token.
func RequireOrganization(sessions auth.SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if err := sessions.VerifySession(ctx, GetUserID(ctx), GetOrganizationID(ctx)); err != nil {
				writeSessionError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OptionalAuth attaches the caller's identity when a valid token is present
// and the session still holds, and lets everything else through as
// anonymous.
func OptionalAuth(tokens auth.TokenService, sessions auth.SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := extractToken(r); token != "" {
				claims, err := tokens.ValidateToken(token)
				if err == nil {
					err = sessions.VerifySession(r.Context(), claims.UserID, claims.OrganizationID)
				}
				if err == nil {
					r = r.WithContext(withClaims(r.Context(), claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractToken looks at the Authorization header, then the session cookie,
// then X-Auth-Token.
func extractToken(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
		return token
	}
	if cookie, err := r.Cookie(TokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.Header.Get("X-Auth-Token")
}

func withClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
	ctx = context.WithValue(ctx, OrganizationIDKey, claims.OrganizationID)
	ctx = context.WithValue(ctx, UserEmailKey, claims.Email)
	return ctx
}

func writeUnauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch apperr.CodeOf(err) {
	case apperr.CodeUnauthorized, apperr.CodeNotFound:
		writeUnauthorized(w)
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dto.ErrorResponse{Error: msg})
}

// Helper functions to extract values from context
func GetUserID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(UserIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// GetOrganizationID returns uuid.Nil for anonymous requests.
func GetOrganizationID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(OrganizationIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

func GetUserEmail(ctx context.Context) string {
	if email, ok := ctx.Value(UserEmailKey).(string); ok {
		return email
	}
	return ""
}
