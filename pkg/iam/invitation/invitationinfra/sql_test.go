package invitationinfra_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/dbx"
	"github.com/Abraxas-365/facilitydir/pkg/dbx/dbxtest"
	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation/invitationinfra"
	"github.com/Abraxas-365/facilitydir/pkg/kernel"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func facilityPtr(id int64) *kernel.FacilityID {
	f := kernel.FacilityID(id)
	return &f
}

func userPtr(id string) *kernel.UserID {
	u := kernel.UserID(id)
	return &u
}

func newRepo(t *testing.T) (*invitationinfra.SQLInvitationRepository, *sqlx.DB) {
	db := dbxtest.NewSQLite(t)
	dbxtest.SeedFacility(t, db, 7, "Harbor Clinic")
	dbxtest.SeedFacility(t, db, 8, "Hill Clinic")
	return invitationinfra.NewSQLInvitationRepository(db), db
}

func TestUpsertByEmailCreatesAndFinds(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	stored, err := repo.UpsertByEmail(ctx, invitation.Invitation{
		Email:      " A@X.com ",
		Role:       kernel.RoleStaff,
		FacilityID: facilityPtr(7),
		InvitedBy:  "admin-1",
		ExpiresAt:  dbx.Timestamp(expires),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, "a@x.com", stored.Email)
	require.NotNil(t, stored.FacilityID)
	assert.Equal(t, kernel.FacilityID(7), *stored.FacilityID)
	assert.Nil(t, stored.UserID)
	assert.False(t, stored.IsUsed())

	exp, err := stored.Expiry()
	require.NoError(t, err)
	assert.WithinDuration(t, expires, exp, time.Second)

	found, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, found.ID)
}

func TestUpsertByEmailOverwritesPendingInvitation(t *testing.T) {
	repo, db := newRepo(t)
	ctx := context.Background()

	first, err := repo.UpsertByEmail(ctx, invitation.Invitation{
		Email:      "a@x.com",
		Role:       kernel.RoleStaff,
		FacilityID: facilityPtr(7),
		UserID:     userPtr("user-a"),
		InvitedBy:  "admin-1",
		ExpiresAt:  dbx.Timestamp(time.Now().Add(-time.Hour)),
	})
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE invitations SET used_at = ? WHERE id = ?`, dbx.Timestamp(time.Now()), first.ID)
	require.NoError(t, err)

	second, err := repo.UpsertByEmail(ctx, invitation.Invitation{
		Email:      "a@x.com",
		Role:       kernel.RoleAdmin,
		FacilityID: facilityPtr(8),
		InvitedBy:  "admin-2",
		ExpiresAt:  dbx.Timestamp(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, kernel.RoleAdmin, second.Role)
	assert.Equal(t, kernel.FacilityID(8), *second.FacilityID)
	assert.Equal(t, kernel.UserID("admin-2"), second.InvitedBy)
	require.NotNil(t, second.UserID, "bound user id survives a re-invite")
	assert.Equal(t, kernel.UserID("user-a"), *second.UserID)
	assert.False(t, second.IsUsed())
	assert.False(t, second.IsExpired(time.Now()))

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM invitations`))
	assert.Equal(t, 1, count)
}

func TestBindUserAndFindByUserID(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	_, err := repo.UpsertByEmail(ctx, invitation.Invitation{
		Email: "b@x.com", Role: kernel.RoleStaff, FacilityID: facilityPtr(7),
		InvitedBy: "admin-1", ExpiresAt: dbx.Timestamp(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)

	_, err = repo.FindByUserID(ctx, "user-b")
	assert.True(t, errx.HasCode(err, invitation.CodeInvitationNotFound))

	require.NoError(t, repo.BindUser(ctx, "B@x.com", "user-b"))

	inv, err := repo.FindByUserID(ctx, "user-b")
	require.NoError(t, err)
	assert.Equal(t, "b@x.com", inv.Email)

	err = repo.BindUser(ctx, "nobody@x.com", "user-z")
	assert.True(t, errx.HasCode(err, invitation.CodeInvitationNotFound))
}

func TestDeletes(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	for _, email := range []string{"c@x.com", "d@x.com"} {
		_, err := repo.UpsertByEmail(ctx, invitation.Invitation{
			Email: email, Role: kernel.RoleStaff, FacilityID: facilityPtr(7),
			InvitedBy: "admin-1", ExpiresAt: dbx.Timestamp(time.Now().Add(time.Hour)),
		})
		require.NoError(t, err)
	}
	require.NoError(t, repo.BindUser(ctx, "c@x.com", "user-c"))

	require.NoError(t, repo.DeleteByUserID(ctx, "user-c"))
	_, err := repo.FindByEmail(ctx, "c@x.com")
	assert.True(t, errx.HasCode(err, invitation.CodeInvitationNotFound))

	require.NoError(t, repo.DeleteByEmail(ctx, "d@x.com"))
	_, err = repo.FindByEmail(ctx, "d@x.com")
	assert.True(t, errx.HasCode(err, invitation.CodeInvitationNotFound))

	// deleting what is already gone is not an error
	require.NoError(t, repo.DeleteByUserID(ctx, "user-c"))
	require.NoError(t, repo.DeleteByEmail(ctx, "d@x.com"))
}

func TestDeleteExpired(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	now := time.Now()

	rows := map[string]time.Duration{
		"old1@x.com":  -48 * time.Hour,
		"old2@x.com":  -time.Minute,
		"fresh@x.com": time.Hour,
	}
	for email, offset := range rows {
		_, err := repo.UpsertByEmail(ctx, invitation.Invitation{
			Email: email, Role: kernel.RoleStaff, FacilityID: facilityPtr(7),
			InvitedBy: "admin-1", ExpiresAt: dbx.Timestamp(now.Add(offset)),
		})
		require.NoError(t, err)
	}

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = repo.FindByEmail(ctx, "fresh@x.com")
	require.NoError(t, err)
}

func TestUnparsableExpiry(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	_, err := repo.UpsertByEmail(ctx, invitation.Invitation{
		Email: "e@x.com", Role: kernel.RoleStaff, FacilityID: facilityPtr(7),
		InvitedBy: "admin-1", ExpiresAt: "soon",
	})
	require.NoError(t, err)

	inv, err := repo.FindByEmail(ctx, "e@x.com")
	require.NoError(t, err)

	_, err = inv.Expiry()
	assert.True(t, errx.HasCode(err, invitation.CodeInvalidExpiry))
	assert.False(t, inv.IsExpired(time.Now()))
}

func TestList(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	for _, email := range []string{"a@x.com", "b@x.com"} {
		_, err := repo.UpsertByEmail(ctx, invitation.Invitation{
			Email: email, Role: kernel.RoleStaff, FacilityID: facilityPtr(7),
			InvitedBy: "admin-1", ExpiresAt: dbx.Timestamp(time.Now().Add(time.Hour)),
		})
		require.NoError(t, err)
	}

	all, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	emails := []string{all[0].Email, all[1].Email}
	assert.ElementsMatch(t, []string{"a@x.com", "b@x.com"}, emails)
}

func TestStoreFailuresAreWrapped(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	repo := invitationinfra.NewSQLInvitationRepository(sqlx.NewDb(mockDB, dbx.DriverPostgres))
	ctx := context.Background()

	mock.ExpectQuery(`SELECT .* FROM invitations WHERE user_id = \$1`).
		WithArgs("user-a").
		WillReturnError(errors.New("connection reset"))

	_, err = repo.FindByUserID(ctx, "user-a")
	require.Error(t, err)
	assert.True(t, errx.HasCode(err, invitation.CodeStoreFailed))

	mock.ExpectExec(`DELETE FROM invitations WHERE expires_at < \$1`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	mock.ExpectQuery(`SELECT .* FROM invitations ORDER BY created_at, id`).
		WillReturnError(errors.New("connection reset"))

	_, err = repo.List(ctx)
	assert.True(t, errx.HasCode(err, invitation.CodeStoreFailed))

	assert.NoError(t, mock.ExpectationsWereMet())
}
