package onboarding_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/dbx"
	"github.com/Abraxas-365/facilitydir/pkg/dbx/dbxtest"
	"github.com/Abraxas-365/facilitydir/pkg/iam/auth"
	"github.com/Abraxas-365/facilitydir/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/facilitydir/pkg/iam/identity"
	"github.com/Abraxas-365/facilitydir/pkg/iam/identity/identitymem"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation/invitationinfra"
	"github.com/Abraxas-365/facilitydir/pkg/iam/onboarding"
	"github.com/Abraxas-365/facilitydir/pkg/iam/profile/profileinfra"
	"github.com/Abraxas-365/facilitydir/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

const redirect = "https://app.example.com/auth/callback"

// gatewayFaults wraps the in-memory provider and injects failures.
type gatewayFaults struct {
	identity.Gateway
	setPasswordErr error
	signOutErr     error
	setPasswordN   atomic.Int32
	signOutN       atomic.Int32
}

func (g *gatewayFaults) SetPassword(ctx context.Context, userID kernel.UserID, password string) error {
	g.setPasswordN.Add(1)
	if g.setPasswordErr != nil {
		return g.setPasswordErr
	}
	return g.Gateway.SetPassword(ctx, userID, password)
}

func (g *gatewayFaults) SignOut(ctx context.Context, s *identity.Session) error {
	g.signOutN.Add(1)
	if g.signOutErr != nil {
		return g.signOutErr
	}
	return g.Gateway.SignOut(ctx, s)
}

type fixture struct {
	t            *testing.T
	db           *sqlx.DB
	provider     *identitymem.Provider
	gateway      *gatewayFaults
	invitations  *invitationinfra.SQLInvitationRepository
	profiles     *profileinfra.SQLProfileRepository
	facilities   *profileinfra.SQLFacilityRepository
	callback     *onboarding.CallbackService
	registration *onboarding.RegistrationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbxtest.NewSQLite(t)
	dbxtest.SeedFacility(t, db, 7, "Harbor Clinic")

	provider := identitymem.New(auth.NewJWTService("secret", time.Hour, "test"))
	gateway := &gatewayFaults{Gateway: provider}
	invitations := invitationinfra.NewSQLInvitationRepository(db)
	profiles := profileinfra.NewSQLProfileRepository(db)
	facilities := profileinfra.NewSQLFacilityRepository(db)
	audit := authinfra.NewLogxAuditService()

	return &fixture{
		t:            t,
		db:           db,
		provider:     provider,
		gateway:      gateway,
		invitations:  invitations,
		profiles:     profiles,
		facilities:   facilities,
		callback:     onboarding.NewCallbackService(gateway, invitations, audit),
		registration: onboarding.NewRegistrationService(gateway, invitations, profiles, facilities, audit),
	}
}

type invited struct {
	userID  kernel.UserID
	email   string
	session *identity.Session
}

// invite creates the identity, its profile and an invitation expiring after
// ttl (negative for the past), then opens a session through a one-time code.
func (f *fixture) invite(email string, facilityID *kernel.FacilityID, ttl time.Duration) invited {
	f.t.Helper()
	ctx := context.Background()

	ident, err := f.provider.SendInvite(ctx, email, redirect)
	require.NoError(f.t, err)
	dbxtest.SeedProfile(f.t, f.db, ident.ID.String(), ident.Email, "Original", "staff")

	userID := ident.ID
	_, err = f.invitations.UpsertByEmail(ctx, invitation.Invitation{
		Email:      email,
		Role:       kernel.RoleStaff,
		FacilityID: facilityID,
		UserID:     &userID,
		InvitedBy:  "admin-1",
		ExpiresAt:  dbx.Timestamp(time.Now().Add(ttl)),
	})
	require.NoError(f.t, err)

	return invited{userID: userID, email: ident.Email, session: f.openSession(email)}
}

func (f *fixture) code(email string) string {
	f.t.Helper()
	code, err := f.provider.IssueRecoveryCode(context.Background(), email)
	require.NoError(f.t, err)
	return code
}

func (f *fixture) openSession(email string) *identity.Session {
	f.t.Helper()
	session, err := f.provider.ExchangeAuthCode(context.Background(), f.code(email))
	require.NoError(f.t, err)
	return session
}

func (f *fixture) sessionAlive(s *identity.Session) bool {
	f.t.Helper()
	ident, err := f.provider.CurrentUser(context.Background(), s)
	require.NoError(f.t, err)
	return ident != nil
}

func (f *fixture) linkCount(userID kernel.UserID) int {
	f.t.Helper()
	var n int
	require.NoError(f.t, f.db.Get(&n, `SELECT COUNT(*) FROM facility_profiles WHERE user_id = ?`, userID))
	return n
}

func facility(id int64) *kernel.FacilityID {
	f := kernel.FacilityID(id)
	return &f
}

var errProviderDown = errors.New("provider unavailable")
