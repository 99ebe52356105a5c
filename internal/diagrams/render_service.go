package diagrams

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hugh/easy-diagrams/internal/apperr"
	"github.com/hugh/easy-diagrams/internal/database/models"
	"github.com/hugh/easy-diagrams/internal/storage"
	"gorm.io/gorm"
)

// RenderService renders stored diagram code and writes the result back.
//
// Rendering happens outside any database transaction. The image is written
// with a guard on code_version, so a render that finishes after a newer
// edit is dropped instead of overwriting the newer correlation.
type RenderService struct {
	db       *gorm.DB
	renderer Renderer
	mirror   storage.Mirror
	logger   *slog.Logger
}

// NewRenderService builds the service. mirror may be nil.
func NewRenderService(db *gorm.DB, renderer Renderer, mirror storage.Mirror, logger *slog.Logger) *RenderService {
	return &RenderService{db: db, renderer: renderer, mirror: mirror, logger: logger}
}

// RenderDiagram renders the diagram's code if it is still at version.
// A failed render is recorded on the diagram and returned as a
// RENDER_FAILED error; a superseded version is skipped without error.
func (s *RenderService) RenderDiagram(ctx context.Context, diagramID string, version int64) error {
	var d models.Diagram
	err := s.db.WithContext(ctx).
		Select("id", "organization_id", "is_public", "code", "code_version").
		First(&d, "id = ?", diagramID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFoundf("diagram %s not found", diagramID)
	}
	if err != nil {
		return fmt.Errorf("loading diagram: %w", err)
	}

	if d.Code == nil || d.CodeVersion == nil || *d.CodeVersion != version {
		s.logger.Debug("skipping superseded render", "diagram_id", diagramID, "code_version", version)
		return nil
	}

	image, renderErr := s.renderer.Render(ctx, *d.Code)
	if renderErr != nil {
		d.MarkRenderFailed(renderErr.Error())
		if _, err := s.writeIfCurrent(ctx, diagramID, version, map[string]interface{}{
			"code_is_valid": d.CodeIsValid,
			"render_error":  d.RenderError,
		}); err != nil {
			return err
		}
		return apperr.RenderFailed("diagram could not be rendered", renderErr)
	}

	d.SetImage(image, version)
	written, err := s.writeIfCurrent(ctx, diagramID, version, map[string]interface{}{
		"image":         d.Image,
		"image_version": d.ImageVersion,
		"code_is_valid": d.CodeIsValid,
		"render_error":  "",
	})
	if err != nil {
		return err
	}
	if !written {
		s.logger.Debug("discarding stale render", "diagram_id", diagramID, "code_version", version)
		return nil
	}

	s.logger.Info("diagram rendered", "diagram_id", diagramID, "code_version", version, "bytes", len(image))

	if d.IsPublic {
		s.mirrorPut(ctx, diagramID, image)
	}
	return nil
}

// writeIfCurrent applies columns only while code_version still equals
// version. updated_at is left alone so re-renders do not reorder listings.
func (s *RenderService) writeIfCurrent(ctx context.Context, diagramID string, version int64, columns map[string]interface{}) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Diagram{}).
		Where("id = ? AND code_version = ?", diagramID, version).
		UpdateColumns(columns)
	if res.Error != nil {
		return false, fmt.Errorf("storing render result: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SweepStale re-renders up to limit diagrams whose image does not match
// their code and whose last render did not fail. It returns how many
// diagrams now have a fresh image.
func (s *RenderService) SweepStale(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}

	var stale []models.Diagram
	err := s.db.WithContext(ctx).
		Select("id", "code_version").
		Where("code IS NOT NULL AND code_version IS NOT NULL").
		Where("code_is_valid IS NULL").
		Where("image_version IS NULL OR image_version <> code_version").
		Order("updated_at ASC").
		Limit(limit).
		Find(&stale).Error
	if err != nil {
		return 0, fmt.Errorf("finding stale diagrams: %w", err)
	}

	rendered := 0
	for _, d := range stale {
		if err := ctx.Err(); err != nil {
			return rendered, err
		}
		if err := s.RenderDiagram(ctx, d.ID, *d.CodeVersion); err != nil {
			s.logger.Warn("sweep render failed", "diagram_id", d.ID, "error", err)
			continue
		}
		rendered++
	}

	if len(stale) > 0 {
		s.logger.Info("render sweep finished", "candidates", len(stale), "rendered", rendered)
	}
	return rendered, nil
}

// SyncMirror makes the mirror match the diagram's visibility.
func (s *RenderService) SyncMirror(ctx context.Context, diagramID string) {
	if s.mirror == nil {
		return
	}

	var d models.Diagram
	err := s.db.WithContext(ctx).
		Select("id", "is_public", "image").
		First(&d, "id = ?", diagramID).Error
	if err != nil {
		s.logger.Warn("mirror sync lookup failed", "diagram_id", diagramID, "error", err)
		return
	}

	if d.IsPublic && len(d.Image) > 0 {
		s.mirrorPut(ctx, diagramID, d.Image)
		return
	}
	s.Unmirror(ctx, diagramID)
}

// Unmirror removes a diagram's mirrored image, if any.
func (s *RenderService) Unmirror(ctx context.Context, diagramID string) {
	if s == nil || s.mirror == nil {
		return
	}
	if err := s.mirror.Delete(ctx, diagramID); err != nil {
		s.logger.Warn("mirror delete failed", "diagram_id", diagramID, "error", err)
	}
}

func (s *RenderService) mirrorPut(ctx context.Context, diagramID string, image []byte) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Put(ctx, diagramID, image); err != nil {
		s.logger.Warn("mirror put failed", "diagram_id", diagramID, "error", err)
	}
}
