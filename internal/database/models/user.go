package models

import "time"

type User struct {
	Base
	Email       *string    `gorm:"size:256;uniqueIndex" json:"email"`
	Enabled     bool       `gorm:"not null;default:true" json:"enabled"`
	ActivatedAt *time.Time `json:"activated_at"`
	LastLoginAt *time.Time `json:"last_login_at"`
}

func (User) TableName() string {
	return "users"
}

// EmailAddress returns the email or "" when unset.
func (u *User) EmailAddress() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}
