package directory

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventostec/eventostec/pkg/authz"
)

func newTestStore(t *testing.T) (*UserStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := NewUserStore(db)
	require.NoError(t, err)
	return store, mock
}

func userColumns() []string {
	return []string{
		"id", "provider_id", "email", "display_name", "picture_url",
		"role", "client_platform", "organization_id", "is_active",
		"notifications_enabled", "created_at", "last_login_at",
	}
}

func TestUserStore_Upsert_NewUser(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Now()

	rows := sqlmock.NewRows(append(userColumns(), "is_new")).
		AddRow("u-1", "google-123", "ana@itp.edu.mx", "Ana", "", "student",
			"ANDROID_STUDENT", nil, true, true, now, now, true)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "google-123", "ana@itp.edu.mx", "Ana", "",
			"student", "ANDROID_STUDENT").
		WillReturnRows(rows)

	user, isNew, err := store.Upsert(context.Background(), UpsertParams{
		ProviderID:     "google-123",
		Email:          "ana@itp.edu.mx",
		DisplayName:    "Ana",
		Role:           authz.RoleStudent,
		ClientPlatform: "ANDROID_STUDENT",
	})
	require.NoError(t, err)

	assert.True(t, isNew)
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, authz.RoleStudent, user.Role)
	assert.Nil(t, user.OrganizationID)
	assert.True(t, user.IsActive)
	assert.True(t, user.NotificationsEnabled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStore_Upsert_ExistingUserKeepsStoredRole(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Now()

	// The RETURNING row reflects the stored role, not the incoming one.
	rows := sqlmock.NewRows(append(userColumns(), "is_new")).
		AddRow("u-1", "google-123", "ana@itp.edu.mx", "Ana", "", "admin",
			"WEB_ADMIN", "ITP", true, false, now, now, false)

	mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(rows)

	user, isNew, err := store.Upsert(context.Background(), UpsertParams{
		ProviderID:     "google-123",
		Email:          "ana@itp.edu.mx",
		DisplayName:    "Ana",
		Role:           authz.RoleStudent,
		ClientPlatform: "ANDROID_STUDENT",
	})
	require.NoError(t, err)

	assert.False(t, isNew)
	assert.Equal(t, authz.RoleAdmin, user.Role)
	require.NotNil(t, user.OrganizationID)
	assert.Equal(t, "ITP", *user.OrganizationID)
	// Account-level flags round-trip as stored, not as insert defaults.
	assert.False(t, user.NotificationsEnabled)
}

func TestUserStore_Upsert_Validation(t *testing.T) {
	store, _ := newTestStore(t)

	_, _, err := store.Upsert(context.Background(), UpsertParams{
		Email: "x@y.mx",
		Role:  authz.RoleStudent,
	})
	assert.ErrorContains(t, err, "provider id is required")

	_, _, err = store.Upsert(context.Background(), UpsertParams{
		ProviderID: "google-123",
		Role:       authz.Role("owner"),
	})
	assert.ErrorContains(t, err, "invalid role")
}

func TestUserStore_GetByProviderID_NotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE provider_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(userColumns()))

	_, err := store.GetByProviderID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserStore_GetByID(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Now()

	rows := sqlmock.NewRows(userColumns()).
		AddRow("u-9", "google-9", "sa@admin.eventostec.mx", "SA", "", "super_admin",
			"WEB_ADMIN", nil, true, true, now, now)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs("u-9").
		WillReturnRows(rows)

	user, err := store.GetByID(context.Background(), "u-9")
	require.NoError(t, err)
	assert.Equal(t, authz.RoleSuperAdmin, user.Role)
}
