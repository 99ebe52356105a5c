package dto

import (
	"time"

	"github.com/hugh/easy-diagrams/internal/database/models"
)

type CreateDiagramRequest struct {
	FolderID *string `json:"folder_id"`
}

// DiagramResponse is a full diagram. The image itself is served separately.
type DiagramResponse struct {
	ID           string    `json:"id"`
	FolderID     *string   `json:"folder_id"`
	Title        *string   `json:"title"`
	IsPublic     bool      `json:"is_public"`
	Code         *string   `json:"code"`
	CodeVersion  *int64    `json:"code_version"`
	ImageVersion *int64    `json:"image_version"`
	RenderStatus string    `json:"render_status"`
	RenderError  string    `json:"render_error,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type DiagramListItem struct {
	ID        string    `json:"id"`
	FolderID  *string   `json:"folder_id"`
	Title     *string   `json:"title"`
	IsPublic  bool      `json:"is_public"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func ImageURL(id string) string {
	return "/diagrams/" + id + "/image.png"
}

func NewDiagramResponse(d *models.Diagram) DiagramResponse {
	resp := DiagramResponse{
		ID:           d.ID,
		FolderID:     d.FolderID,
		Title:        d.Title,
		IsPublic:     d.IsPublic,
		Code:         d.Code,
		CodeVersion:  d.CodeVersion,
		ImageVersion: d.ImageVersion,
		RenderStatus: string(d.RenderStatus()),
		RenderError:  d.RenderError,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if d.ImageVersion != nil {
		resp.ImageURL = ImageURL(d.ID)
	}
	return resp
}

func NewDiagramListItem(d *models.Diagram) DiagramListItem {
	return DiagramListItem{
		ID:        d.ID,
		FolderID:  d.FolderID,
		Title:     d.Title,
		IsPublic:  d.IsPublic,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
