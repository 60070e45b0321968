package models

import (
	"time"
)

// Session binds one device of a user to the refresh token currently issued for
// it. IssuedAt and ExpiresAt mirror the iat/exp claims (epoch seconds) of that
// token and only ever move forward together.
type Session struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID     string    `gorm:"type:uuid;not null;uniqueIndex:idx_sessions_user_device,priority:1" json:"user_id"`
	DeviceID   string    `gorm:"type:uuid;not null;uniqueIndex:idx_sessions_user_device,priority:2;index" json:"device_id"`
	DeviceName string    `gorm:"size:255" json:"device_name"`
	IP         string    `gorm:"column:ip;size:64" json:"ip"`
	IssuedAt   int64     `gorm:"column:iat;not null" json:"iat"`
	ExpiresAt  int64     `gorm:"column:exp;not null" json:"exp"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IssuedAtTime returns IssuedAt as a UTC time.
func (s *Session) IssuedAtTime() time.Time {
	return time.Unix(s.IssuedAt, 0).UTC()
}

// ExpiresAtTime returns ExpiresAt as a UTC time.
func (s *Session) ExpiresAtTime() time.Time {
	return time.Unix(s.ExpiresAt, 0).UTC()
}
