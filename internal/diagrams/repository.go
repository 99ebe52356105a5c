package diagrams

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

// Dispatcher hands a render off to a background worker.
type Dispatcher interface {
	EnqueueRender(ctx context.Context, diagramID string, version int64) error
}

// DiagramEdit is a partial update; nil fields are left unchanged.
type DiagramEdit struct {
	Title    *string `json:"title" validate:"omitempty,max=300"`
	IsPublic *bool   `json:"is_public"`
	Code     *string `json:"code" validate:"omitempty,max=10240"`
	FolderID *string `json:"folder_id" validate:"omitempty,len=32,alphanum"`
	// MoveToRoot takes the diagram out of its folder. It wins over FolderID.
	MoveToRoot bool `json:"move_to_root"`
}

// ListFilter narrows List and Count. The zero value matches every diagram
// in the organization.
type ListFilter struct {
	FolderID *string // directly inside this folder
	Root     bool    // not inside any folder
}

// Factory holds the process-wide collaborators and hands out repositories
// bound to one organization.
type Factory struct {
	db         *gorm.DB
	renders    *RenderService
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewFactory builds a factory. With a nil dispatcher edits render inline.
func NewFactory(db *gorm.DB, renders *RenderService, dispatcher Dispatcher, logger *slog.Logger) *Factory {
	return &Factory{db: db, renders: renders, dispatcher: dispatcher, logger: logger}
}

// Renders returns the render service shared by every repository the factory
// builds.
func (f *Factory) Renders() *RenderService {
	return f.renders
}

func (f *Factory) ForOrganization(orgID uuid.UUID) *Repository {
	return NewRepository(f.db, orgID, f.renders, f.dispatcher, f.logger)
}

// Repository reads and writes diagrams of a single organization. Rows of
// other organizations behave as if they did not exist.
type Repository struct {
	db         *gorm.DB
	orgID      uuid.UUID
	renders    *RenderService
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewRepository(db *gorm.DB, orgID uuid.UUID, renders *RenderService, dispatcher Dispatcher, logger *slog.Logger) *Repository {
	return &Repository{
		db:         db,
		orgID:      orgID,
		renders:    renders,
		dispatcher: dispatcher,
		logger:     logger.With("org_id", orgID),
	}
}

func notFound(id string) error {
	return apperr.NotFoundf("diagram %s not found", id)
}

// Create stores an empty diagram, optionally inside folderID.
func (r *Repository) Create(ctx context.Context, folderID *string) (string, error) {
	db := r.db.WithContext(ctx)
	if folderID != nil {
		if err := r.checkFolder(db, *folderID); err != nil {
			return "", err
		}
	}

	d := models.Diagram{OrganizationID: r.orgID, FolderID: folderID}
	if err := db.Create(&d).Error; err != nil {
		return "", fmt.Errorf("creating diagram: %w", err)
	}

	r.logger.Info("diagram created", "diagram_id", d.ID)
	return d.ID, nil
}

func (r *Repository) checkFolder(db *gorm.DB, folderID string) error {
	var n int64
	err := db.Model(&models.Folder{}).
		Where("id = ? AND organization_id = ?", folderID, r.orgID).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFoundf("folder %s not found", folderID)
	}
	return nil
}

func (r *Repository) get(db *gorm.DB, id string) (*models.Diagram, error) {
	var d models.Diagram
	err := db.Where("id = ? AND organization_id = ?", id, r.orgID).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Get returns the diagram including its stored image.
func (r *Repository) Get(ctx context.Context, id string) (*models.Diagram, error) {
	return r.get(r.db.WithContext(ctx), id)
}

// Edit applies changes. New code is committed first and rendered
// afterwards, so a slow renderer never holds the write transaction. A failed
// render does not fail the edit; the returned diagram reports it through
// CodeIsValid and RenderError.
func (r *Repository) Edit(ctx context.Context, id string, changes DiagramEdit) (*models.Diagram, error) {
	if err := validation.Struct(changes); err != nil {
		return nil, err
	}

	var codeVersion *int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := r.get(tx, id)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if changes.Title != nil {
			updates["title"] = *changes.Title
		}
		if changes.IsPublic != nil {
			updates["is_public"] = *changes.IsPublic
		}
		if changes.MoveToRoot {
			updates["folder_id"] = nil
		} else if changes.FolderID != nil {
			if err := r.checkFolder(tx, *changes.FolderID); err != nil {
				return err
			}
			updates["folder_id"] = *changes.FolderID
		}
		if changes.Code != nil {
			d.SetCode(*changes.Code)
			updates["code"] = d.Code
			updates["code_version"] = d.CodeVersion
			updates["code_is_valid"] = nil
			updates["render_error"] = ""
			codeVersion = d.CodeVersion
		}

		if len(updates) == 0 {
			return nil
		}
		return tx.Model(d).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	if codeVersion != nil {
		r.render(ctx, id, *codeVersion)
	}
	if changes.IsPublic != nil && r.renders != nil {
		r.renders.SyncMirror(ctx, id)
	}

	return r.Get(ctx, id)
}

func (r *Repository) render(ctx context.Context, id string, version int64) {
	if r.dispatcher != nil {
		err := r.dispatcher.EnqueueRender(ctx, id, version)
		if err == nil {
			return
		}
		r.logger.Warn("enqueue render failed, rendering inline", "diagram_id", id, "error", err)
	}
	if r.renders == nil {
		return
	}
	if err := r.renders.RenderDiagram(ctx, id, version); err != nil {
		r.logger.Warn("diagram render failed", "diagram_id", id, "code_version", version, "error", err)
	}
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	db := r.db.WithContext(ctx)
	d, err := r.get(db, id)
	if err != nil {
		return err
	}
	if err := db.Delete(d).Error; err != nil {
		return fmt.Errorf("deleting diagram: %w", err)
	}

	if d.IsPublic && r.renders != nil {
		r.renders.Unmirror(ctx, id)
	}
	r.logger.Info("diagram deleted", "diagram_id", id)
	return nil
}

func (r *Repository) filtered(ctx context.Context, filter ListFilter) *gorm.DB {
	q := r.db.WithContext(ctx).
		Model(&models.Diagram{}).
		Where("organization_id = ?", r.orgID)
	switch {
	case filter.FolderID != nil:
		q = q.Where("folder_id = ?", *filter.FolderID)
	case filter.Root:
		q = q.Where("folder_id IS NULL")
	}
	return q
}

// List returns diagrams without code or image, most recently updated first.
// A limit of zero or less uses DefaultListLimit.
func (r *Repository) List(ctx context.Context, filter ListFilter, offset, limit int) ([]models.Diagram, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	var out []models.Diagram
	err := r.filtered(ctx, filter).
		Select("id", "organization_id", "folder_id", "title", "is_public", "created_at", "updated_at").
		Order("updated_at DESC").
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing diagrams: %w", err)
	}
	return out, nil
}

func (r *Repository) Count(ctx context.Context, filter ListFilter) (int64, error) {
	var n int64
	if err := r.filtered(ctx, filter).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting diagrams: %w", err)
	}
	return n, nil
}

// GetImageRender returns the stored image. Public diagrams are readable
// from any organization, including a repository bound to uuid.Nil for
// anonymous callers. A diagram without an image is its own not-found case.
func (r *Repository) GetImageRender(ctx context.Context, id string) (*models.DiagramRender, error) {
	var d models.Diagram
	err := r.db.WithContext(ctx).
		Select("id", "organization_id", "is_public", "image", "image_version").
		First(&d, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}

	if d.OrganizationID != r.orgID && !d.IsPublic {
		return nil, notFound(id)
	}
	if len(d.Image) == 0 {
		return nil, apperr.NotFoundf("diagram %s has no image", id)
	}
	return d.Render(), nil
}
