package onboarding_test

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/iam/identity"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation"
	"github.com/Abraxas-365/facilitydir/pkg/iam/onboarding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchangeCodeRoutesToSetup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.invite("a@x.com", facility(7), time.Hour)

	out, err := f.callback.ExchangeCode(ctx, f.code("a@x.com"), onboarding.ParseFlowType("invite"))
	require.NoError(t, err)
	assert.Equal(t, onboarding.IntentSetup, out.Intent)
	assert.Equal(t, a.userID, out.UserID)
	assert.True(t, f.sessionAlive(out.Session))
}

func TestExchangeCodeRecoveryRoutesToReset(t *testing.T) {
	f := newFixture(t)
	f.invite("a@x.com", facility(7), time.Hour)

	out, err := f.callback.ExchangeCode(context.Background(), f.code("a@x.com"), onboarding.ParseFlowType("recovery"))
	require.NoError(t, err)
	assert.Equal(t, onboarding.IntentReset, out.Intent)
}

func TestExchangeTokensRoutesToSetup(t *testing.T) {
	f := newFixture(t)
	a := f.invite("a@x.com", facility(7), time.Hour)

	out, err := f.callback.ExchangeTokens(context.Background(), a.session.AccessToken, a.session.RefreshToken, onboarding.FlowInvite)
	require.NoError(t, err)
	assert.Equal(t, onboarding.IntentSetup, out.Intent)
}

func TestExchangeBindsInvitationFoundByEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.invite("a@x.com", facility(7), time.Hour)
	_, err := f.db.Exec(`UPDATE invitations SET user_id = NULL`)
	require.NoError(t, err)

	_, err = f.callback.ExchangeCode(ctx, f.code("a@x.com"), onboarding.FlowInvite)
	require.NoError(t, err)

	inv, err := f.invitations.FindByUserID(ctx, a.userID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", inv.Email)
}

func TestCallbackRejectionsSignOut(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, f *fixture)
		code    *errx.ErrorCode
	}{
		{
			name: "no invitation",
			prepare: func(t *testing.T, f *fixture) {
				_, err := f.db.Exec(`DELETE FROM invitations`)
				require.NoError(t, err)
			},
			code: onboarding.CodeNoInvitation,
		},
		{
			name: "expired invitation",
			prepare: func(t *testing.T, f *fixture) {
				_, err := f.db.Exec(`UPDATE invitations SET expires_at = '2000-01-01T00:00:00Z'`)
				require.NoError(t, err)
			},
			code: onboarding.CodeExpiredInvitation,
		},
		{
			name: "unparsable expiry",
			prepare: func(t *testing.T, f *fixture) {
				_, err := f.db.Exec(`UPDATE invitations SET expires_at = 'next week'`)
				require.NoError(t, err)
			},
			code: onboarding.CodeInvalidInvitation,
		},
		{
			name: "used invitation",
			prepare: func(t *testing.T, f *fixture) {
				_, err := f.db.Exec(`UPDATE invitations SET used_at = '2026-01-01T00:00:00Z'`)
				require.NoError(t, err)
			},
			code: onboarding.CodeUsedInvitation,
		},
		{
			name: "invitation bound to someone else",
			prepare: func(t *testing.T, f *fixture) {
				_, err := f.db.Exec(`UPDATE invitations SET user_id = 'other-user'`)
				require.NoError(t, err)
			},
			code: onboarding.CodeNoInvitation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.invite("a@x.com", facility(7), time.Hour)
			tt.prepare(t, f)

			// code flow
			_, err := f.callback.ExchangeCode(ctx, f.code("a@x.com"), onboarding.FlowInvite)
			assert.True(t, errx.HasCode(err, tt.code), "got %v", err)
			assert.Equal(t, tt.code.Code, onboarding.CallbackErrorCode(err))

			// token flow; an expired row is gone after the first rejection
			live := f.openSession("a@x.com")
			_, err = f.callback.ExchangeTokens(ctx, live.AccessToken, live.RefreshToken, onboarding.FlowInvite)
			require.Error(t, err)
			assert.False(t, f.sessionAlive(live), "rejected session must not stay valid")
		})
	}
}

func TestCallbackExpiredDeletesInvitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.invite("a@x.com", facility(7), -time.Minute)

	_, err := f.callback.ExchangeCode(ctx, f.code("a@x.com"), onboarding.FlowInvite)
	assert.True(t, errx.HasCode(err, onboarding.CodeExpiredInvitation))

	_, err = f.invitations.FindByEmail(ctx, "a@x.com")
	assert.True(t, errx.HasCode(err, invitation.CodeInvitationNotFound))
}

func TestCallbackInvalidatesSessionsWhenSignOutFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.invite("a@x.com", facility(7), -time.Minute)
	f.gateway.signOutErr = identity.ErrProviderError()

	live := f.openSession("a@x.com")
	_, err := f.callback.ExchangeTokens(ctx, live.AccessToken, live.RefreshToken, onboarding.FlowInvite)
	assert.True(t, errx.HasCode(err, onboarding.CodeExpiredInvitation))
	assert.Equal(t, int32(1), f.gateway.signOutN.Load())
	assert.False(t, f.sessionAlive(live))
}

func TestCallbackMissingCodeAndBadCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.callback.ExchangeCode(ctx, "", onboarding.FlowInvite)
	assert.True(t, errx.HasCode(err, onboarding.CodeNoCode))

	_, err = f.callback.ExchangeTokens(ctx, "", "", onboarding.FlowInvite)
	assert.True(t, errx.HasCode(err, onboarding.CodeNoCode))

	_, err = f.callback.ExchangeCode(ctx, "not-a-code", onboarding.FlowInvite)
	assert.True(t, errx.HasCode(err, onboarding.CodeAuthFailed))

	_, err = f.callback.ExchangeTokens(ctx, "not-a-token", "", onboarding.FlowInvite)
	assert.True(t, errx.HasCode(err, onboarding.CodeAuthFailed))

	assert.Equal(t, onboarding.CodeAuthFailed.Code, onboarding.CallbackErrorCode(errx.Internal("boom")))
}
