// Package users is the account store consulted by authentication.
package users

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/blogsphere/blogsphere/internal/models"
	"github.com/blogsphere/blogsphere/pkg/crypto"
	apperrors "github.com/blogsphere/blogsphere/pkg/errors"
)

// ErrUserExists is returned when the login or e-mail is already taken.
var ErrUserExists = apperrors.New("USER_EXISTS", "Login or email already exists", http.StatusConflict)

// CreateInput describes the fields accepted when creating a user.
type CreateInput struct {
	Login          string
	Email          string
	Password       string
	EmailConfirmed bool
}

// Repository reads and writes users through gorm.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a Repository.
func NewRepository(db *gorm.DB) (*Repository, error) {
	if db == nil {
		return nil, errors.New("user repository: db is required")
	}
	return &Repository{db: db}, nil
}

// FindByID loads a user including soft-deleted rows so callers can reject
// deleted accounts explicitly. It returns (nil, nil) for unknown ids.
func (r *Repository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Unscoped().Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user repository: find by id: %w", err)
	}
	return &user, nil
}

// FindByLoginOrEmail looks up a live user by login or e-mail, ignoring case.
func (r *Repository) FindByLoginOrEmail(ctx context.Context, loginOrEmail string) (*models.User, error) {
	needle := strings.ToLower(strings.TrimSpace(loginOrEmail))
	if needle == "" {
		return nil, nil
	}

	var user models.User
	err := r.db.WithContext(ctx).
		Where("LOWER(login) = ? OR LOWER(email) = ?", needle, needle).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user repository: find by login or email: %w", err)
	}
	return &user, nil
}

// Create stores a new user with a bcrypt hashed password.
func (r *Repository) Create(ctx context.Context, input CreateInput) (*models.User, error) {
	login := strings.TrimSpace(input.Login)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if login == "" {
		return nil, apperrors.NewBadRequest("login is required")
	}
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user repository: hash password: %w", err)
	}

	user := &models.User{
		Login:          login,
		Email:          email,
		PasswordHash:   hashed,
		EmailConfirmed: input.EmailConfirmed,
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("user repository: create user: %w", err)
	}
	return user, nil
}

// EnsureUser creates the user unless one with the same login or e-mail exists.
func (r *Repository) EnsureUser(ctx context.Context, input CreateInput) (*models.User, bool, error) {
	existing, err := r.FindByLoginOrEmail(ctx, input.Login)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		existing, err = r.FindByLoginOrEmail(ctx, input.Email)
		if err != nil {
			return nil, false, err
		}
	}
	if existing != nil {
		return existing, false, nil
	}

	user, err := r.Create(ctx, input)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// List returns every live user, newest first.
func (r *Repository) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id").
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("user repository: list users: %w", err)
	}
	return users, nil
}

// SoftDelete marks the user deleted. Sessions are left for authentication to reject.
func (r *Repository) SoftDelete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("user repository: delete user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
