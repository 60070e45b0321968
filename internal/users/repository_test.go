package users

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/blogsphere/blogsphere/internal/database/testutil"
	"github.com/blogsphere/blogsphere/internal/models"
	"github.com/blogsphere/blogsphere/pkg/crypto"
	apperrors "github.com/blogsphere/blogsphere/pkg/errors"
)

func TestCreateHashesPassword(t *testing.T) {
	repo := setupRepository(t)

	user, err := repo.Create(context.Background(), CreateInput{
		Login:    " alice ",
		Email:    "Alice@Example.com",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	require.Equal(t, "alice", user.Login)
	require.Equal(t, "alice@example.com", user.Email)
	require.NotEqual(t, "s3cret-pass", user.PasswordHash)
	require.True(t, crypto.VerifyPassword(user.PasswordHash, "s3cret-pass"))
	require.False(t, user.EmailConfirmed)
}

func TestCreateValidatesInput(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, CreateInput{Email: "a@example.com", Password: "x"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = repo.Create(ctx, CreateInput{Login: "a", Password: "x"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = repo.Create(ctx, CreateInput{Login: "a", Email: "a@example.com"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestCreateRejectsDuplicates(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, CreateInput{Login: "bob", Email: "bob@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, CreateInput{Login: "bob", Email: "other@example.com", Password: "pw"})
	require.ErrorIs(t, err, ErrUserExists)
}

func TestFindByLoginOrEmailIgnoresCase(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, CreateInput{Login: "Carol", Email: "carol@example.com", Password: "pw"})
	require.NoError(t, err)

	for _, needle := range []string{"carol", "CAROL", "Carol@Example.com", " carol@example.com "} {
		found, err := repo.FindByLoginOrEmail(ctx, needle)
		require.NoError(t, err)
		require.NotNil(t, found, needle)
		require.Equal(t, created.ID, found.ID)
	}

	missing, err := repo.FindByLoginOrEmail(ctx, "dave")
	require.NoError(t, err)
	require.Nil(t, missing)

	empty, err := repo.FindByLoginOrEmail(ctx, "  ")
	require.NoError(t, err)
	require.Nil(t, empty)
}

func TestSoftDeletedUsers(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	user, err := repo.Create(ctx, CreateInput{Login: "erin", Email: "erin@example.com", Password: "pw"})
	require.NoError(t, err)

	require.NoError(t, repo.SoftDelete(ctx, user.ID))
	require.ErrorIs(t, repo.SoftDelete(ctx, user.ID), apperrors.ErrNotFound)

	byLogin, err := repo.FindByLoginOrEmail(ctx, "erin")
	require.NoError(t, err)
	require.Nil(t, byLogin)

	byID, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	require.True(t, byID.IsDeleted())

	unknown, err := repo.FindByID(ctx, uuid.NewString())
	require.NoError(t, err)
	require.Nil(t, unknown)
}

func TestListSkipsDeletedUsers(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	for _, login := range []string{"alice", "bob", "carol"} {
		_, err := repo.Create(ctx, CreateInput{Login: login, Email: login + "@example.com", Password: "pw"})
		require.NoError(t, err)
	}
	deleted, err := repo.Create(ctx, CreateInput{Login: "alfred", Email: "alfred@example.com", Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, repo.SoftDelete(ctx, deleted.ID))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alice", "bob", "carol"}, userLogins(list))
}

func userLogins(list []models.User) []string {
	out := make([]string, 0, len(list))
	for _, u := range list {
		out = append(out, u.Login)
	}
	return out
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	input := CreateInput{Login: "admin", Email: "admin@example.com", Password: "pw", EmailConfirmed: true}

	first, created, err := repo.EnsureUser(ctx, input)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := repo.EnsureUser(ctx, input)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
}

func TestNewRepositoryRequiresDB(t *testing.T) {
	_, err := NewRepository(nil)
	require.Error(t, err)
}

func TestIsUniqueConstraintError(t *testing.T) {
	require.False(t, isUniqueConstraintError(nil))
	require.True(t, isUniqueConstraintError(gorm.ErrDuplicatedKey))
	require.True(t, isUniqueConstraintError(errors.New("UNIQUE constraint failed: users.login")))
	require.False(t, isUniqueConstraintError(errors.New("disk I/O error")))
}

func setupRepository(t *testing.T) *Repository {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	repo, err := NewRepository(db)
	require.NoError(t, err)
	return repo
}
