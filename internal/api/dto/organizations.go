package dto

import (
	"time"

	"github.com/hugh/easy-diagrams/internal/database/models"
)

type CreateOrganizationRequest struct {
	Name string `json:"name"`
}

type AddMemberRequest struct {
	Email   string `json:"email"`
	IsOwner bool   `json:"is_owner"`
}

type OrganizationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Current   bool      `json:"current"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewOrganizationResponse(o *models.Organization, current bool) OrganizationResponse {
	return OrganizationResponse{
		ID:        o.ID.String(),
		Name:      o.Name,
		Current:   current,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

type OwnersResponse struct {
	UserIDs []string `json:"user_ids"`
}
