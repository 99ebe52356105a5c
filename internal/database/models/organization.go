package models

import (
	"time"

	"github.com/google/uuid"
)

const MaxOrganizationNameLength = 256

type Organization struct {
	Base
	Name string `gorm:"size:256;not null" json:"name"`

	Members []OrganizationUser `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (Organization) TableName() string {
	return "organizations"
}

// OrganizationUser is a membership. Every organization with members keeps at
// least one owner; see organizations.Repository.RemoveOwner.
type OrganizationUser struct {
	OrganizationID uuid.UUID `gorm:"type:uuid;primaryKey" json:"organization_id"`
	UserID         uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"user_id"`
	IsOwner        bool      `gorm:"not null" json:"is_owner"`
	CreatedAt      time.Time `json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (OrganizationUser) TableName() string {
	return "organization_users"
}
