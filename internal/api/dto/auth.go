package dto

import (
	"time"

	"github.com/hugh/easy-diagrams/internal/database/models"
)

type AuthResponse struct {
	Token          string  `json:"token"`
	User           UserDTO `json:"user"`
	OrganizationID string  `json:"organization_id"`
}

type UserDTO struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func NewUserDTO(u *models.User) UserDTO {
	return UserDTO{
		ID:          u.ID.String(),
		Email:       u.EmailAddress(),
		ActivatedAt: u.ActivatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}
