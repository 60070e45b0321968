package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the account record sessions are issued for. Deleting a user is a soft
// delete; deleted users are invisible to default scoped queries.
type User struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	Login          string `gorm:"uniqueIndex;size:64;not null" json:"login"`
	Email          string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash   string `gorm:"not null" json:"-"`
	EmailConfirmed bool   `gorm:"default:false" json:"email_confirmed"`

	Sessions []Session `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// IsDeleted reports whether the user has been soft deleted.
func (u *User) IsDeleted() bool {
	return u != nil && u.DeletedAt.Valid
}
