package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MaxTitleLength = 300
	MaxCodeLength  = 10240
)

type RenderStatus string

const (
	RenderStatusEmpty    RenderStatus = "empty"    // no code yet
	RenderStatusPending  RenderStatus = "pending"  // code changed, no matching image
	RenderStatusRendered RenderStatus = "rendered" // image_version == code_version
	RenderStatusFailed   RenderStatus = "failed"
)

// Diagram is a piece of PlantUML source plus its last rendered image.
//
// CodeVersion and ImageVersion correlate the two: the image is current only
// when both are set and equal. Use SetCode and SetImage rather than writing
// the fields directly.
type Diagram struct {
	ID             string    `gorm:"type:varchar(32);primaryKey" json:"id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`
	FolderID       *string   `gorm:"type:varchar(32);index" json:"folder_id"`
	Title          *string   `gorm:"size:300" json:"title"`
	IsPublic       bool      `gorm:"not null" json:"is_public"`
	Code           *string   `gorm:"size:10240" json:"code"`
	CodeVersion    *int64    `json:"code_version"`
	CodeIsValid    *bool     `json:"code_is_valid"` // nil until a render finishes
	RenderError    string    `gorm:"type:text" json:"render_error,omitempty"`
	Image          []byte    `json:"-"`
	ImageVersion   *int64    `json:"image_version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `gorm:"index" json:"updated_at"`
}

func (Diagram) TableName() string {
	return "diagrams"
}

func (d *Diagram) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		id, err := NewPublicID()
		if err != nil {
			return err
		}
		d.ID = id
	}
	return nil
}

// SetCode stores new source and always stamps a new code version, even when
// the text is unchanged. The previous image stays but no longer matches.
func (d *Diagram) SetCode(code string) {
	v := NewCodeVersion()
	d.Code = &code
	d.CodeVersion = &v
	d.CodeIsValid = nil
	d.RenderError = ""
}

// SetImage stores a render and the code version it was produced from.
// Callers pass the CodeVersion they rendered; the value is not checked
// against the current CodeVersion here.
func (d *Diagram) SetImage(image []byte, version int64) {
	valid := true
	d.Image = image
	d.ImageVersion = &version
	d.CodeIsValid = &valid
	d.RenderError = ""
}

// MarkRenderFailed records that the current code could not be rendered.
// The previous image, if any, is kept.
func (d *Diagram) MarkRenderFailed(reason string) {
	invalid := false
	d.CodeIsValid = &invalid
	d.RenderError = reason
}

func (d *Diagram) IsImageFresh() bool {
	return d.Image != nil && d.ImageVersion != nil && d.CodeVersion != nil &&
		*d.ImageVersion == *d.CodeVersion
}

func (d *Diagram) RenderStatus() RenderStatus {
	switch {
	case d.Code == nil:
		return RenderStatusEmpty
	case d.IsImageFresh():
		return RenderStatusRendered
	case d.CodeIsValid != nil && !*d.CodeIsValid:
		return RenderStatusFailed
	default:
		return RenderStatusPending
	}
}

// DiagramRender is a stored image and the code version it belongs to.
type DiagramRender struct {
	Image   []byte
	Version int64
}

// Render returns the stored image, or nil when there is none.
func (d *Diagram) Render() *DiagramRender {
	if d.Image == nil {
		return nil
	}
	r := &DiagramRender{Image: d.Image}
	if d.ImageVersion != nil {
		r.Version = *d.ImageVersion
	}
	return r
}
