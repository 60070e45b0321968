package auth

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blogsphere/blogsphere/internal/models"
)

// ErrStorage marks failures of the persistence layer. Store errors wrap both
// this sentinel and the driver error.
var ErrStorage = errors.New("session store: storage failure")

// RotateInput carries the values written by a successful rotation.
type RotateInput struct {
	IssuedAt  int64
	ExpiresAt int64
	IP        string
}

// SessionStore persists device sessions. Lookups return (nil, nil) when no
// row matches. The store performs no authorization.
type SessionStore interface {
	Save(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindByUserAndDevice(ctx context.Context, userID, deviceID string) (*models.Session, error)
	FindByDevice(ctx context.Context, deviceID string) (*models.Session, error)
	DeleteByUserAndDevice(ctx context.Context, userID, deviceID string) (bool, error)
	DeleteByDevice(ctx context.Context, deviceID string) (bool, error)
	DeleteAllExceptDevice(ctx context.Context, userID, exceptDeviceID string) error
	Rotate(ctx context.Context, id string, expectedIssuedAt int64, next RotateInput) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
}

// GormSessionStore implements SessionStore on top of gorm.
type GormSessionStore struct {
	db *gorm.DB
}

// NewGormSessionStore returns a store bound to the supplied database handle.
func NewGormSessionStore(db *gorm.DB) (*GormSessionStore, error) {
	if db == nil {
		return nil, errors.New("session store: db is required")
	}
	return &GormSessionStore{db: db}, nil
}

// Save inserts the session or, when the id already exists, overwrites its
// mutable columns.
func (s *GormSessionStore) Save(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("session store: session is required")
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"device_name", "device_id", "ip", "iat", "exp", "updated_at"}),
		}).
		Create(session).Error
	if err != nil {
		return storageError("save session", err)
	}
	return nil
}

func (s *GormSessionStore) FindByID(ctx context.Context, id string) (*models.Session, error) {
	return s.findOne(ctx, "find session by id", "id = ?", id)
}

func (s *GormSessionStore) FindByUserAndDevice(ctx context.Context, userID, deviceID string) (*models.Session, error) {
	return s.findOne(ctx, "find session by user and device", "user_id = ? AND device_id = ?", userID, deviceID)
}

func (s *GormSessionStore) FindByDevice(ctx context.Context, deviceID string) (*models.Session, error) {
	return s.findOne(ctx, "find session by device", "device_id = ?", deviceID)
}

func (s *GormSessionStore) DeleteByUserAndDevice(ctx context.Context, userID, deviceID string) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		Delete(&models.Session{})
	if result.Error != nil {
		return false, storageError("delete session by user and device", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *GormSessionStore) DeleteByDevice(ctx context.Context, deviceID string) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Delete(&models.Session{})
	if result.Error != nil {
		return false, storageError("delete session by device", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// DeleteAllExceptDevice removes every session of the user other than the one
// bound to exceptDeviceID. Removing nothing is not an error.
func (s *GormSessionStore) DeleteAllExceptDevice(ctx context.Context, userID, exceptDeviceID string) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND device_id <> ?", userID, exceptDeviceID).
		Delete(&models.Session{}).Error
	if err != nil {
		return storageError("delete other sessions", err)
	}
	return nil
}

// Rotate moves the session timestamps forward only if the stored iat still
// equals expectedIssuedAt. It reports false when another writer got there first
// or the row no longer exists.
func (s *GormSessionStore) Rotate(ctx context.Context, id string, expectedIssuedAt int64, next RotateInput) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND iat = ?", id, expectedIssuedAt).
		Updates(map[string]any{
			"iat": next.IssuedAt,
			"exp": next.ExpiresAt,
			"ip":  next.IP,
		})
	if result.Error != nil {
		return false, storageError("rotate session", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ListByUser returns the user's sessions, most recently issued first.
func (s *GormSessionStore) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("iat DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, storageError("list sessions", err)
	}
	return sessions, nil
}

func (s *GormSessionStore) findOne(ctx context.Context, op, query string, args ...any) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).Where(query, args...).Take(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageError(op, err)
	}
	return &session, nil
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
