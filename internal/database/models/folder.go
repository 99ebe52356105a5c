package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const MaxFolderNameLength = 255

// Folder is a node in an organization's folder tree. ParentID nil means the
// folder sits at the organization root.
type Folder struct {
	ID             string    `gorm:"type:varchar(32);primaryKey" json:"id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	ParentID       *string   `gorm:"type:varchar(32);index" json:"parent_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Folder) TableName() string {
	return "folders"
}

func (f *Folder) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		id, err := NewPublicID()
		if err != nil {
			return err
		}
		f.ID = id
	}
	return nil
}
