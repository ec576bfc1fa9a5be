package invitationsrv_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/dbx/dbxtest"
	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/iam/auth"
	"github.com/Abraxas-365/facilitydir/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/facilitydir/pkg/iam/identity"
	"github.com/Abraxas-365/facilitydir/pkg/iam/identity/identitymem"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation/invitationinfra"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation/invitationsrv"
	"github.com/Abraxas-365/facilitydir/pkg/iam/profile/profileinfra"
	"github.com/Abraxas-365/facilitydir/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const redirect = "https://app.example.com/auth/callback"

// failingInvites rejects every SendInvite and delegates the rest.
type failingInvites struct {
	identity.Gateway
	calls int
}

func (f *failingInvites) SendInvite(context.Context, string, string) (*identity.Identity, error) {
	f.calls++
	return nil, identity.ErrProviderError().WithCause(errors.New("smtp down"))
}

type fixture struct {
	svc         *invitationsrv.InvitationService
	invitations *invitationinfra.SQLInvitationRepository
	profiles    *profileinfra.SQLProfileRepository
	provider    *identitymem.Provider
}

func newFixture(t *testing.T, gw func(identity.Gateway) identity.Gateway) fixture {
	t.Helper()
	db := dbxtest.NewSQLite(t)
	dbxtest.SeedFacility(t, db, 7, "Harbor Clinic")

	provider := identitymem.New(auth.NewJWTService("secret", time.Hour, "test"))
	var gateway identity.Gateway = provider
	if gw != nil {
		gateway = gw(provider)
	}

	invitations := invitationinfra.NewSQLInvitationRepository(db)
	profiles := profileinfra.NewSQLProfileRepository(db)
	svc := invitationsrv.NewInvitationService(invitations, profiles, gateway, authinfra.NewLogxAuditService(), redirect, 72*time.Hour)
	return fixture{svc: svc, invitations: invitations, profiles: profiles, provider: provider}
}

func TestIssueWritesBindsAndEnsuresProfile(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.svc.WithClock(func() time.Time { return now })

	inv, err := f.svc.Issue(ctx, "admin-1", invitation.IssueRequest{
		Email:       "A@X.com",
		Role:        kernel.RoleStaff,
		FacilityIDs: []kernel.FacilityID{7},
	})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", inv.Email)
	require.NotNil(t, inv.UserID)

	exp, err := inv.Expiry()
	require.NoError(t, err)
	assert.Equal(t, now.Add(72*time.Hour), exp)

	stored, err := f.invitations.FindByUserID(ctx, *inv.UserID)
	require.NoError(t, err)
	assert.Equal(t, kernel.FacilityID(7), *stored.FacilityID)
	assert.Equal(t, kernel.UserID("admin-1"), stored.InvitedBy)

	role, err := f.profiles.GetRole(ctx, *inv.UserID)
	require.NoError(t, err)
	assert.Equal(t, kernel.RoleStaff, role)
}

func TestIssueReinviteKeepsSingleRow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	req := invitation.IssueRequest{Email: "a@x.com", Role: kernel.RoleStaff, FacilityIDs: []kernel.FacilityID{7}}

	first, err := f.svc.Issue(ctx, "admin-1", req)
	require.NoError(t, err)
	second, err := f.svc.Issue(ctx, "admin-2", req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, *first.UserID, *second.UserID)
	assert.Equal(t, kernel.UserID("admin-2"), second.InvitedBy)
}

func TestIssueSendFailureRemovesRow(t *testing.T) {
	var failing *failingInvites
	f := newFixture(t, func(g identity.Gateway) identity.Gateway {
		failing = &failingInvites{Gateway: g}
		return failing
	})
	ctx := context.Background()

	_, err := f.svc.Issue(ctx, "admin-1", invitation.IssueRequest{
		Email: "a@x.com", Role: kernel.RoleStaff, FacilityIDs: []kernel.FacilityID{7},
	})
	require.Error(t, err)
	assert.True(t, errx.HasCode(err, identity.CodeProviderError))
	assert.Equal(t, 1, failing.calls)

	_, err = f.invitations.FindByEmail(ctx, "a@x.com")
	assert.True(t, errx.HasCode(err, invitation.CodeInvitationNotFound))
}

func TestIssueValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  invitation.IssueRequest
		code *errx.ErrorCode
	}{
		{"bad email", invitation.IssueRequest{Email: "not-an-email", FacilityIDs: []kernel.FacilityID{7}}, invitation.CodeInvalidEmail},
		{"bad role", invitation.IssueRequest{Email: "a@x.com", Role: "owner", FacilityIDs: []kernel.FacilityID{7}}, invitation.CodeInvalidRole},
		{"staff without facility", invitation.IssueRequest{Email: "a@x.com", Role: kernel.RoleStaff}, invitation.CodeInvalidFacilities},
		{"two facilities", invitation.IssueRequest{Email: "a@x.com", Role: kernel.RoleAdmin, FacilityIDs: []kernel.FacilityID{7, 8}}, invitation.CodeInvalidFacilities},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Issue(ctx, "admin-1", tt.req)
			assert.True(t, errx.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestIssueAdminWithoutFacility(t *testing.T) {
	f := newFixture(t, nil)

	inv, err := f.svc.Issue(context.Background(), "admin-1", invitation.IssueRequest{
		Email: "boss@x.com", Role: kernel.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Nil(t, inv.FacilityID)
	assert.Equal(t, kernel.RoleAdmin, inv.Role)
}
