package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/blogsphere/blogsphere/internal/database"
	"github.com/blogsphere/blogsphere/internal/database/testutil"
	"github.com/blogsphere/blogsphere/internal/models"
)

func TestNewGormSessionStoreRequiresDB(t *testing.T) {
	_, err := NewGormSessionStore(nil)
	require.Error(t, err)
}

func TestSessionStoreSaveUpserts(t *testing.T) {
	db, store := setupSessionStore(t)
	ctx := context.Background()
	user := createTestUser(t, db, "upsert")

	session := newTestSession(user.ID, 100)
	require.NoError(t, store.Save(ctx, session))

	session.IP = "10.0.0.9"
	session.DeviceName = "renamed"
	session.IssuedAt = 200
	session.ExpiresAt = 300
	require.NoError(t, store.Save(ctx, session))

	stored, err := store.FindByID(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, "10.0.0.9", stored.IP)
	require.Equal(t, "renamed", stored.DeviceName)
	require.EqualValues(t, 200, stored.IssuedAt)
	require.EqualValues(t, 300, stored.ExpiresAt)

	var count int64
	require.NoError(t, db.Model(&models.Session{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSessionStoreFindersReturnNilWhenAbsent(t *testing.T) {
	_, store := setupSessionStore(t)
	ctx := context.Background()

	byID, err := store.FindByID(ctx, uuid.NewString())
	require.NoError(t, err)
	require.Nil(t, byID)

	byPair, err := store.FindByUserAndDevice(ctx, uuid.NewString(), uuid.NewString())
	require.NoError(t, err)
	require.Nil(t, byPair)

	byDevice, err := store.FindByDevice(ctx, uuid.NewString())
	require.NoError(t, err)
	require.Nil(t, byDevice)
}

func TestSessionStoreFinders(t *testing.T) {
	db, store := setupSessionStore(t)
	ctx := context.Background()
	user := createTestUser(t, db, "finders")

	session := newTestSession(user.ID, 100)
	require.NoError(t, store.Save(ctx, session))

	byPair, err := store.FindByUserAndDevice(ctx, user.ID, session.DeviceID)
	require.NoError(t, err)
	require.Equal(t, session.ID, byPair.ID)

	byDevice, err := store.FindByDevice(ctx, session.DeviceID)
	require.NoError(t, err)
	require.Equal(t, session.ID, byDevice.ID)

	other, err := store.FindByUserAndDevice(ctx, uuid.NewString(), session.DeviceID)
	require.NoError(t, err)
	require.Nil(t, other)
}

func TestSessionStoreDeleteReportsRemoval(t *testing.T) {
	db, store := setupSessionStore(t)
	ctx := context.Background()
	user := createTestUser(t, db, "delete")

	first := newTestSession(user.ID, 100)
	second := newTestSession(user.ID, 100)
	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	deleted, err := store.DeleteByUserAndDevice(ctx, user.ID, first.DeviceID)
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = store.DeleteByUserAndDevice(ctx, user.ID, first.DeviceID)
	require.NoError(t, err)
	require.False(t, deleted)

	deleted, err = store.DeleteByDevice(ctx, second.DeviceID)
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = store.DeleteByDevice(ctx, second.DeviceID)
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestSessionStoreDeleteAllExceptDevice(t *testing.T) {
	db, store := setupSessionStore(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner")
	stranger := createTestUser(t, db, "stranger")

	current := newTestSession(owner.ID, 100)
	other := newTestSession(owner.ID, 100)
	foreign := newTestSession(stranger.ID, 100)
	for _, session := range []*models.Session{current, other, foreign} {
		require.NoError(t, store.Save(ctx, session))
	}

	require.NoError(t, store.DeleteAllExceptDevice(ctx, owner.ID, current.DeviceID))
	// Nothing left to delete is still a success.
	require.NoError(t, store.DeleteAllExceptDevice(ctx, owner.ID, current.DeviceID))

	remaining, err := store.ListByUser(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, current.DeviceID, remaining[0].DeviceID)

	kept, err := store.FindByID(ctx, foreign.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)
}

func TestSessionStoreRotateIsConditional(t *testing.T) {
	db, store := setupSessionStore(t)
	ctx := context.Background()
	user := createTestUser(t, db, "rotate")

	session := newTestSession(user.ID, 100)
	require.NoError(t, store.Save(ctx, session))

	rotated, err := store.Rotate(ctx, session.ID, 100, RotateInput{IssuedAt: 101, ExpiresAt: 201, IP: "10.1.1.1"})
	require.NoError(t, err)
	require.True(t, rotated)

	rotated, err = store.Rotate(ctx, session.ID, 100, RotateInput{IssuedAt: 102, ExpiresAt: 202})
	require.NoError(t, err)
	require.False(t, rotated)

	rotated, err = store.Rotate(ctx, uuid.NewString(), 101, RotateInput{IssuedAt: 102, ExpiresAt: 202})
	require.NoError(t, err)
	require.False(t, rotated)

	stored, err := store.FindByID(ctx, session.ID)
	require.NoError(t, err)
	require.EqualValues(t, 101, stored.IssuedAt)
	require.EqualValues(t, 201, stored.ExpiresAt)
	require.Equal(t, "10.1.1.1", stored.IP)
}

func TestSessionStoreListByUserNewestFirst(t *testing.T) {
	db, store := setupSessionStore(t)
	ctx := context.Background()
	user := createTestUser(t, db, "list")

	older := newTestSession(user.ID, 100)
	newer := newTestSession(user.ID, 500)
	require.NoError(t, store.Save(ctx, older))
	require.NoError(t, store.Save(ctx, newer))

	sessions, err := store.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, newer.ID, sessions[0].ID)
	require.Equal(t, older.ID, sessions[1].ID)
}

func TestSessionStoreWrapsStorageErrors(t *testing.T) {
	db, store := setupSessionStore(t)
	ctx := context.Background()

	require.NoError(t, database.Close(db))

	_, err := store.FindByID(ctx, uuid.NewString())
	require.ErrorIs(t, err, ErrStorage)

	_, err = store.DeleteByDevice(ctx, uuid.NewString())
	require.ErrorIs(t, err, ErrStorage)

	err = store.DeleteAllExceptDevice(ctx, uuid.NewString(), uuid.NewString())
	require.ErrorIs(t, err, ErrStorage)

	_, err = store.Rotate(ctx, uuid.NewString(), 1, RotateInput{IssuedAt: 2, ExpiresAt: 3})
	require.ErrorIs(t, err, ErrStorage)
}

func setupSessionStore(t *testing.T) (*gorm.DB, *GormSessionStore) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store, err := NewGormSessionStore(db)
	require.NoError(t, err)
	return db, store
}

func newTestSession(userID string, issuedAt int64) *models.Session {
	return &models.Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		DeviceID:   uuid.NewString(),
		DeviceName: "test-device",
		IP:         "127.0.0.1",
		IssuedAt:   issuedAt,
		ExpiresAt:  issuedAt + 3600,
	}
}
