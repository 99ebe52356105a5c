package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/hugh/easy-diagrams/internal/database/models"
)

// Authenticator turns a verified email into a session.
type Authenticator interface {
	Login(ctx context.Context, email string) (*AuthResponse, error)
	SwitchOrganization(ctx context.Context, userID, orgID uuid.UUID) (*AuthResponse, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// SessionVerifier re-checks a validated token against current state. orgID
// uuid.Nil checks only the user.
type SessionVerifier interface {
	VerifySession(ctx context.Context, userID, orgID uuid.UUID) error
}

// TokenService defines the interface for JWT token operations.
type TokenService interface {
	GenerateToken(userID, orgID uuid.UUID, email string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Provider is a social login backend. AuthCodeURL starts the flow and Email
// finishes it from the callback request.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Email(ctx context.Context, r *http.Request) (string, error)
}

// Compile-time interface satisfaction checks
var (
	_ Authenticator   = (*Service)(nil)
	_ SessionVerifier = (*Service)(nil)
	_ TokenService    = (*JWTService)(nil)
	_ Provider        = (*GoogleProvider)(nil)
	_ Provider        = (*DummyProvider)(nil)
)
