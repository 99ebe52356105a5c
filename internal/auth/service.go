package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/easy-diagrams/internal/apperr"
	"github.com/hugh/easy-diagrams/internal/database/models"
	"github.com/hugh/easy-diagrams/internal/organizations"
	"github.com/hugh/easy-diagrams/internal/validation"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound = apperr.NotFound("user not found")
	ErrInactiveUser = apperr.Unauthorized("user is disabled")
	ErrSessionEnded = apperr.Unauthorized("session is no longer valid")
)

type Service struct {
	db     *gorm.DB
	jwt    TokenService
	logger *slog.Logger
}

func NewService(db *gorm.DB, jwt TokenService, logger *slog.Logger) *Service {
	return &Service{db: db, jwt: jwt, logger: logger}
}

type AuthResponse struct {
	Token          string       `json:"token"`
	User           *models.User `json:"user"`
	OrganizationID uuid.UUID    `json:"organization_id"`
	Created        bool         `json:"created"`
}

type loginInput struct {
	Email string `json:"email" validate:"required,email,max=240"`
}

// Login signs in the user with a verified email. Unknown emails get a user
// and a personal organization they own. The session is scoped to the user's
// oldest membership.
func (s *Service) Login(ctx context.Context, email string) (*AuthResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validation.Struct(loginInput{Email: email}); err != nil {
		return nil, err
	}

	var (
		user    models.User
		orgID   uuid.UUID
		created bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		err := tx.Where("email = ?", email).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = models.User{Email: &email, Enabled: true, ActivatedAt: &now, LastLoginAt: &now}
			if err := tx.Create(&user).Error; err != nil {
				return fmt.Errorf("creating user: %w", err)
			}
			created = true
			orgID, err = organizations.CreateForUser(tx, &user)
			return err
		}
		if err != nil {
			return err
		}

		if !user.Enabled {
			return ErrInactiveUser
		}

		updates := map[string]interface{}{"last_login_at": now}
		if user.ActivatedAt == nil {
			updates["activated_at"] = now
			user.ActivatedAt = &now
		}
		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return fmt.Errorf("recording login: %w", err)
		}
		user.LastLoginAt = &now

		orgID, err = organizations.NewRepository(tx, user.ID, s.logger).DefaultOrganizationID(ctx)
		if errors.Is(err, apperr.ErrNotFound) {
			// Removed from every organization; give them a fresh one.
			orgID, err = organizations.CreateForUser(tx, &user)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	token, err := s.jwt.GenerateToken(user.ID, orgID, email)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", "user_id", user.ID, "org_id", orgID, "created", created)

	return &AuthResponse{
		Token:          token,
		User:           &user,
		OrganizationID: orgID,
		Created:        created,
	}, nil
}

// SwitchOrganization issues a token scoped to another organization the user
// belongs to.
func (s *Service) SwitchOrganization(ctx context.Context, userID, orgID uuid.UUID) (*AuthResponse, error) {
	var membership models.OrganizationUser
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("organization not found or access denied")
	}
	if err != nil {
		return nil, err
	}
	if membership.User == nil || !membership.User.Enabled {
		return nil, ErrInactiveUser
	}

	token, err := s.jwt.GenerateToken(userID, orgID, membership.User.EmailAddress())
	if err != nil {
		return nil, err
	}

	return &AuthResponse{Token: token, User: membership.User, OrganizationID: orgID}, nil
}

// VerifySession checks a token's subject against the database: the user must
// still exist and be enabled and, unless orgID is uuid.Nil, still belong to
// that organization. Tokens outlive memberships, so every request that acts on
// organization data goes through here.
func (s *Service) VerifySession(ctx context.Context, userID, orgID uuid.UUID) error {
	db := s.db.WithContext(ctx)

	var user models.User
	err := db.Select("id", "enabled").First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSessionEnded
	}
	if err != nil {
		return fmt.Errorf("loading session user: %w", err)
	}
	if !user.Enabled {
		return ErrInactiveUser
	}
	if orgID == uuid.Nil {
		return nil
	}

	var n int64
	if err := db.Model(&models.OrganizationUser{}).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Count(&n).Error; err != nil {
		return fmt.Errorf("checking membership: %w", err)
	}
	if n == 0 {
		return ErrSessionEnded
	}
	return nil
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
