// Package organizations manages tenants and their memberships.
//
// Every operation is performed on behalf of an acting user, and membership
// is the only access check: any member may rename, delete, or administer
// the organization. Organizations the acting user does not belong to are
// reported as not found.
package organizations

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
	"github.com/hugh/easy-diagrams/internal/validation"
	"gorm.io/gorm"
)

const (
	DefaultListLimit   = 20
	DefaultMemberLimit = 100
)

var errNoAccess = apperr.NotFound("organization not found or access denied")

type organizationInput struct {
	Name string `json:"name" validate:"required,max=256"`
}

type memberInput struct {
	Email string `json:"email" validate:"required,email,max=240"`
}

// OrganizationEdit is a partial update; nil fields are left unchanged.
type OrganizationEdit struct {
	Name *string `json:"name" validate:"omitempty,min=1,max=256"`
}

// Member is one row of an organization's member list.
type Member struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	IsOwner   bool      `json:"is_owner"`
	CreatedAt time.Time `json:"created_at"`
}

// ImageMirror removes a public diagram's image from external storage.
type ImageMirror interface {
	Unmirror(ctx context.Context, diagramID string)
}

type Repository struct {
	db     *gorm.DB
	userID uuid.UUID
	images ImageMirror
	logger *slog.Logger
}

// NewRepository returns a repository acting as userID.
func NewRepository(db *gorm.DB, userID uuid.UUID, logger *slog.Logger) *Repository {
	return &Repository{db: db, userID: userID, logger: logger.With("user_id", userID)}
}

// WithImageMirror makes Delete take the organization's public images off the
// mirror once the rows are gone.
func (r *Repository) WithImageMirror(images ImageMirror) *Repository {
	r.images = images
	return r
}

// CreateForUser creates "<email>'s Organization" owned by user. It runs on
// the caller's transaction.
func CreateForUser(tx *gorm.DB, user *models.User) (uuid.UUID, error) {
	org := models.Organization{Name: user.EmailAddress() + "'s Organization"}
	if err := tx.Create(&org).Error; err != nil {
		return uuid.Nil, fmt.Errorf("creating organization: %w", err)
	}
	membership := models.OrganizationUser{OrganizationID: org.ID, UserID: user.ID, IsOwner: true}
	if err := tx.Create(&membership).Error; err != nil {
		return uuid.Nil, fmt.Errorf("creating membership: %w", err)
	}
	return org.ID, nil
}

// requireMember fails with errNoAccess unless the acting user belongs to orgID.
func (r *Repository) requireMember(db *gorm.DB, orgID uuid.UUID) error {
	var n int64
	err := db.Model(&models.OrganizationUser{}).
		Where("organization_id = ? AND user_id = ?", orgID, r.userID).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n == 0 {
		return errNoAccess
	}
	return nil
}

func (r *Repository) membership(db *gorm.DB, orgID, userID uuid.UUID) (*models.OrganizationUser, error) {
	var m models.OrganizationUser
	err := db.Where("organization_id = ? AND user_id = ?", orgID, userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("user %s is not a member of organization %s", userID, orgID)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create makes a new organization owned by the acting user.
func (r *Repository) Create(ctx context.Context, name string) (*models.Organization, error) {
	if err := validation.Struct(organizationInput{Name: name}); err != nil {
		return nil, err
	}

	org := &models.Organization{Name: name}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(org).Error; err != nil {
			return fmt.Errorf("creating organization: %w", err)
		}
		m := models.OrganizationUser{OrganizationID: org.ID, UserID: r.userID, IsOwner: true}
		if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("creating membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("organization created", "org_id", org.ID)
	return org, nil
}

func (r *Repository) get(db *gorm.DB, orgID uuid.UUID) (*models.Organization, error) {
	if err := r.requireMember(db, orgID); err != nil {
		return nil, err
	}
	var org models.Organization
	err := db.First(&org, "id = ?", orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errNoAccess
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *Repository) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	return r.get(r.db.WithContext(ctx), orgID)
}

// List returns the acting user's organizations ordered by name.
func (r *Repository) List(ctx context.Context, offset, limit int) ([]models.Organization, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	var out []models.Organization
	err := r.memberOf(ctx).
		Order("organizations.name ASC").
		Order("organizations.id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}
	return out, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.memberOf(ctx).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting organizations: %w", err)
	}
	return n, nil
}

func (r *Repository) memberOf(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Organization{}).
		Joins("JOIN organization_users ON organization_users.organization_id = organizations.id").
		Where("organization_users.user_id = ?", r.userID)
}

func (r *Repository) Edit(ctx context.Context, orgID uuid.UUID, changes OrganizationEdit) (*models.Organization, error) {
	if err := validation.Struct(changes); err != nil {
		return nil, err
	}

	var out *models.Organization
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := r.get(tx, orgID)
		if err != nil {
			return err
		}
		if changes.Name != nil {
			if err := tx.Model(org).Update("name", *changes.Name).Error; err != nil {
				return fmt.Errorf("updating organization: %w", err)
			}
		}
		out = org
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the organization and all of its memberships. Folders and
// diagrams are removed with it.
func (r *Repository) Delete(ctx context.Context, orgID uuid.UUID) error {
	var public []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := r.get(tx, orgID)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Diagram{}).
			Where("organization_id = ? AND is_public = ?", orgID, true).
			Pluck("id", &public).Error; err != nil {
			return fmt.Errorf("listing public diagrams: %w", err)
		}
		if err := tx.Where("organization_id = ?", orgID).Delete(&models.Diagram{}).Error; err != nil {
			return fmt.Errorf("deleting diagrams: %w", err)
		}
		if err := tx.Where("organization_id = ?", orgID).Delete(&models.Folder{}).Error; err != nil {
			return fmt.Errorf("deleting folders: %w", err)
		}
		if err := tx.Where("organization_id = ?", orgID).Delete(&models.OrganizationUser{}).Error; err != nil {
			return fmt.Errorf("deleting memberships: %w", err)
		}
		return tx.Delete(org).Error
	})
	if err != nil {
		return err
	}

	if r.images != nil {
		for _, id := range public {
			r.images.Unmirror(ctx, id)
		}
	}
	r.logger.Info("organization deleted", "org_id", orgID, "unmirrored", len(public))
	return nil
}

// AddUser adds the user with email to the organization, creating the user
// if no account exists yet.
func (r *Repository) AddUser(ctx context.Context, orgID uuid.UUID, email string, isOwner bool) (*Member, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validation.Struct(memberInput{Email: email}); err != nil {
		return nil, err
	}

	var member *Member
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.requireMember(tx, orgID); err != nil {
			return err
		}

		var user models.User
		err := tx.Where("email = ?", email).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = models.User{Email: &email, Enabled: true}
			if err := tx.Create(&user).Error; err != nil {
				return fmt.Errorf("creating user: %w", err)
			}
			r.logger.Info("user created by invitation", "invited_user_id", user.ID)
		} else if err != nil {
			return err
		}

		var n int64
		if err := tx.Model(&models.OrganizationUser{}).
			Where("organization_id = ? AND user_id = ?", orgID, user.ID).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflictf("User %s is already in organization", email)
		}

		m := models.OrganizationUser{OrganizationID: orgID, UserID: user.ID, IsOwner: isOwner}
		if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("creating membership: %w", err)
		}
		member = &Member{UserID: user.ID, Email: email, IsOwner: isOwner, CreatedAt: m.CreatedAt}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("user added to organization", "org_id", orgID, "member_id", member.UserID, "is_owner", isOwner)
	return member, nil
}

// RemoveUser drops a membership. Unlike RemoveOwner it does not protect the
// last owner, so an organization can be left without owners this way.
func (r *Repository) RemoveUser(ctx context.Context, orgID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.requireMember(tx, orgID); err != nil {
			return err
		}
		m, err := r.membership(tx, orgID, userID)
		if err != nil {
			return err
		}
		if err := tx.Delete(m).Error; err != nil {
			return fmt.Errorf("deleting membership: %w", err)
		}

		if m.IsOwner {
			var owners int64
			if err := tx.Model(&models.OrganizationUser{}).
				Where("organization_id = ? AND is_owner = ?", orgID, true).
				Count(&owners).Error; err != nil {
				return err
			}
			if owners == 0 {
				r.logger.Warn("organization left without owners", "org_id", orgID, "removed_user_id", userID)
			}
		}

		r.logger.Info("user removed from organization", "org_id", orgID, "removed_user_id", userID)
		return nil
	})
}

func (r *Repository) MakeOwner(ctx context.Context, orgID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.requireMember(tx, orgID); err != nil {
			return err
		}
		m, err := r.membership(tx, orgID, userID)
		if err != nil {
			return err
		}
		if m.IsOwner {
			return nil
		}
		return tx.Model(m).Update("is_owner", true).Error
	})
}

// RemoveOwner demotes an owner to a plain member. The last owner cannot be
// demoted.
func (r *Repository) RemoveOwner(ctx context.Context, orgID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.requireMember(tx, orgID); err != nil {
			return err
		}
		m, err := r.membership(tx, orgID, userID)
		if err != nil {
			return err
		}
		if !m.IsOwner {
			return apperr.Conflictf("User %s is not an owner", userID)
		}

		var owners int64
		if err := tx.Model(&models.OrganizationUser{}).
			Where("organization_id = ? AND is_owner = ?", orgID, true).
			Count(&owners).Error; err != nil {
			return err
		}
		if owners <= 1 {
			return apperr.Conflict("Cannot remove the last owner")
		}

		return tx.Model(m).Update("is_owner", false).Error
	})
}

// GetOwners returns owner user ids ordered by id.
func (r *Repository) GetOwners(ctx context.Context, orgID uuid.UUID, offset, limit int) ([]uuid.UUID, error) {
	db := r.db.WithContext(ctx)
	if err := r.requireMember(db, orgID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultMemberLimit
	}

	var ids []uuid.UUID
	err := db.Model(&models.OrganizationUser{}).
		Where("organization_id = ? AND is_owner = ?", orgID, true).
		Order("user_id ASC").
		Offset(offset).
		Limit(limit).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("listing owners: %w", err)
	}
	return ids, nil
}

// ListUsers returns the organization's members ordered by user id.
func (r *Repository) ListUsers(ctx context.Context, orgID uuid.UUID, offset, limit int) ([]Member, error) {
	db := r.db.WithContext(ctx)
	if err := r.requireMember(db, orgID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultMemberLimit
	}

	var rows []models.OrganizationUser
	err := db.Preload("User").
		Where("organization_id = ?", orgID).
		Order("user_id ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}

	out := make([]Member, 0, len(rows))
	for _, row := range rows {
		m := Member{UserID: row.UserID, IsOwner: row.IsOwner, CreatedAt: row.CreatedAt}
		if row.User != nil {
			m.Email = row.User.EmailAddress()
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *Repository) CountUsers(ctx context.Context, orgID uuid.UUID) (int64, error) {
	db := r.db.WithContext(ctx)
	if err := r.requireMember(db, orgID); err != nil {
		return 0, err
	}
	var n int64
	err := db.Model(&models.OrganizationUser{}).Where("organization_id = ?", orgID).Count(&n).Error
	return n, err
}

// DefaultOrganizationID returns the organization the acting user joined
// first.
func (r *Repository) DefaultOrganizationID(ctx context.Context) (uuid.UUID, error) {
	var m models.OrganizationUser
	err := r.db.WithContext(ctx).
		Where("user_id = ?", r.userID).
		Order("created_at ASC").
		Order("organization_id ASC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, apperr.NotFoundf("user %s is not in any organization", r.userID)
	}
	if err != nil {
		return uuid.Nil, err
	}
	return m.OrganizationID, nil
}
