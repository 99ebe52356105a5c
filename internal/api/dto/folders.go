package dto

import (
	"time"

	"github.com/hugh/easy-diagrams/internal/database/models"
)

type CreateFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

type FolderResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  *string   `json:"parent_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewFolderResponse(f *models.Folder) FolderResponse {
	return FolderResponse{
		ID:        f.ID,
		Name:      f.Name,
		ParentID:  f.ParentID,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

func NewFolderResponses(list []models.Folder) []FolderResponse {
	out := make([]FolderResponse, len(list))
	for i := range list {
		out[i] = NewFolderResponse(&list[i])
	}
	return out
}
