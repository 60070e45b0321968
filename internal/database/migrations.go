package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/blogsphere/blogsphere/internal/models"
)

// AutoMigrate creates or updates the schema for users and their device sessions.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Session{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
