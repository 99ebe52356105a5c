// Package folders manages the per-organization folder tree that diagrams
// are filed under.
package folders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hugh/easy-diagrams/internal/apperr"
	"github.com/hugh/easy-diagrams/internal/database/models"
	"github.com/hugh/easy-diagrams/internal/validation"
	"gorm.io/gorm"
)

const DefaultListLimit = 100

type folderCreate struct {
	Name     string  `json:"name" validate:"required,max=255"`
	ParentID *string `json:"parent_id" validate:"omitempty,len=32,alphanum"`
}

// FolderEdit is a partial update; nil fields are left unchanged.
type FolderEdit struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=255"`
	ParentID *string `json:"parent_id" validate:"omitempty,len=32,alphanum"`
	// MoveToRoot detaches the folder from its parent. It wins over ParentID.
	MoveToRoot bool `json:"move_to_root"`
}

// Repository reads and writes the folders of a single organization.
type Repository struct {
	db     *gorm.DB
	orgID  uuid.UUID
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, orgID uuid.UUID, logger *slog.Logger) *Repository {
	return &Repository{db: db, orgID: orgID, logger: logger.With("org_id", orgID)}
}

func notFound(id string) error {
	return apperr.NotFoundf("folder %s not found", id)
}

func (r *Repository) get(db *gorm.DB, id string) (*models.Folder, error) {
	var f models.Folder
	err := db.Where("id = ? AND organization_id = ?", id, r.orgID).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Create adds a folder under parentID, or at the root when parentID is nil.
func (r *Repository) Create(ctx context.Context, name string, parentID *string) (*models.Folder, error) {
	if err := validation.Struct(folderCreate{Name: name, ParentID: parentID}); err != nil {
		return nil, err
	}

	db := r.db.WithContext(ctx)
	if parentID != nil {
		if _, err := r.get(db, *parentID); err != nil {
			return nil, err
		}
	}

	f := &models.Folder{OrganizationID: r.orgID, Name: name, ParentID: parentID}
	if err := db.Create(f).Error; err != nil {
		return nil, fmt.Errorf("creating folder: %w", err)
	}

	r.logger.Info("folder created", "folder_id", f.ID)
	return f, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.Folder, error) {
	return r.get(r.db.WithContext(ctx), id)
}

func (r *Repository) children(ctx context.Context, parentID *string) *gorm.DB {
	q := r.db.WithContext(ctx).
		Model(&models.Folder{}).
		Where("organization_id = ?", r.orgID)
	if parentID == nil {
		return q.Where("parent_id IS NULL")
	}
	return q.Where("parent_id = ?", *parentID)
}

// List returns the direct children of parentID (root when nil) by name.
func (r *Repository) List(ctx context.Context, parentID *string, offset, limit int) ([]models.Folder, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	var out []models.Folder
	err := r.children(ctx, parentID).
		Order("name ASC").
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	return out, nil
}

func (r *Repository) Count(ctx context.Context, parentID *string) (int64, error) {
	var n int64
	if err := r.children(ctx, parentID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting folders: %w", err)
	}
	return n, nil
}

// Edit renames or reparents a folder. A new parent must belong to the
// organization and must not be the folder itself or one of its descendants.
func (r *Repository) Edit(ctx context.Context, id string, changes FolderEdit) (*models.Folder, error) {
	if err := validation.Struct(changes); err != nil {
		return nil, err
	}

	var out *models.Folder
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		f, err := r.get(tx, id)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if changes.Name != nil {
			updates["name"] = *changes.Name
		}
		if changes.MoveToRoot {
			updates["parent_id"] = nil
		} else if changes.ParentID != nil {
			if err := r.checkParent(tx, id, *changes.ParentID); err != nil {
				return err
			}
			updates["parent_id"] = *changes.ParentID
		}

		if len(updates) > 0 {
			if err := tx.Model(f).Updates(updates).Error; err != nil {
				return fmt.Errorf("updating folder: %w", err)
			}
		}

		out, err = r.get(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// checkParent walks up from parentID to the root and fails if it meets id.
func (r *Repository) checkParent(tx *gorm.DB, id, parentID string) error {
	if parentID == id {
		return apperr.ValidationField("parent_id", "a folder cannot be its own parent")
	}

	seen := map[string]bool{}
	next := &parentID
	for next != nil {
		if *next == id {
			return apperr.ValidationField("parent_id", "cannot move a folder into one of its subfolders")
		}
		if seen[*next] {
			return apperr.Internal(fmt.Sprintf("folder tree of organization %s contains a cycle", r.orgID), nil)
		}
		seen[*next] = true

		f, err := r.get(tx, *next)
		if err != nil {
			return err
		}
		next = f.ParentID
	}
	return nil
}

// Delete removes an empty folder. Folders that still hold subfolders or
// diagrams are a Conflict.
func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		f, err := r.get(tx, id)
		if err != nil {
			return err
		}

		var subfolders, diagrams int64
		if err := tx.Model(&models.Folder{}).Where("parent_id = ?", id).Count(&subfolders).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Diagram{}).Where("folder_id = ?", id).Count(&diagrams).Error; err != nil {
			return err
		}
		if subfolders > 0 || diagrams > 0 {
			return apperr.Conflictf("folder %s is not empty (%d folders, %d diagrams)", id, subfolders, diagrams)
		}

		if err := tx.Delete(f).Error; err != nil {
			return fmt.Errorf("deleting folder: %w", err)
		}
		r.logger.Info("folder deleted", "folder_id", id)
		return nil
	})
}

// Path returns the chain of folders from the root down to id, inclusive.
func (r *Repository) Path(ctx context.Context, id string) ([]models.Folder, error) {
	db := r.db.WithContext(ctx)

	var path []models.Folder
	seen := map[string]bool{}
	next := &id
	for next != nil {
		if seen[*next] {
			return nil, apperr.Internal(fmt.Sprintf("folder tree of organization %s contains a cycle", r.orgID), nil)
		}
		seen[*next] = true

		f, err := r.get(db, *next)
		if err != nil {
			return nil, err
		}
		path = append(path, *f)
		next = f.ParentID
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}
