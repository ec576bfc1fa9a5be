package onboardingapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/dbx"
	"github.com/Abraxas-365/facilitydir/pkg/dbx/dbxtest"
	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/iam/auth"
	"github.com/Abraxas-365/facilitydir/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/facilitydir/pkg/iam/identity/identitymem"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation/invitationinfra"
	"github.com/Abraxas-365/facilitydir/pkg/iam/onboarding"
	"github.com/Abraxas-365/facilitydir/pkg/iam/onboarding/onboardingapi"
	"github.com/Abraxas-365/facilitydir/pkg/iam/profile/profileinfra"
	"github.com/Abraxas-365/facilitydir/pkg/kernel"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var routes = onboardingapi.Routes{
	SiteURL:   "https://app.example.com",
	SetupPath: "/setup",
	ResetPath: "/reset-password",
	LoginPath: "/login",
}

type env struct {
	app      *fiber.App
	provider *identitymem.Provider
	profiles *profileinfra.SQLProfileRepository
}

func setup(t *testing.T, ttl time.Duration) env {
	t.Helper()
	db := dbxtest.NewSQLite(t)
	dbxtest.SeedFacility(t, db, 7, "Harbor Clinic")

	tokens := auth.NewJWTService("secret", time.Hour, "test")
	provider := identitymem.New(tokens)
	invitations := invitationinfra.NewSQLInvitationRepository(db)
	profiles := profileinfra.NewSQLProfileRepository(db)
	facilities := profileinfra.NewSQLFacilityRepository(db)
	audit := authinfra.NewLogxAuditService()

	ctx := context.Background()
	ident, err := provider.SendInvite(ctx, "a@x.com", routes.SiteURL+"/auth/callback")
	require.NoError(t, err)
	require.NoError(t, profiles.EnsureProfile(ctx, ident.ID, ident.Email, kernel.RoleStaff))
	fid := kernel.FacilityID(7)
	_, err = invitations.UpsertByEmail(ctx, invitation.Invitation{
		Email: "a@x.com", Role: kernel.RoleStaff, FacilityID: &fid,
		InvitedBy: "admin-1", ExpiresAt: dbx.Timestamp(time.Now().Add(ttl)),
	})
	require.NoError(t, err)

	handlers := onboardingapi.NewOnboardingHandlers(
		onboarding.NewCallbackService(provider, invitations, audit),
		onboarding.NewRegistrationService(provider, invitations, profiles, facilities, audit),
		routes,
	)

	app := fiber.New(fiber.Config{ErrorHandler: errx.FiberErrorHandler(false)})
	handlers.RegisterRoutes(app, auth.NewAuthMiddleware(tokens, profiles))
	return env{app: app, provider: provider, profiles: profiles}
}

func (e env) code(t *testing.T) string {
	t.Helper()
	code, err := e.provider.IssueRecoveryCode(context.Background(), "a@x.com")
	require.NoError(t, err)
	return code
}

func cookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestCallbackThenRegister(t *testing.T) {
	e := setup(t, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code="+e.code(t)+"&type=invite", nil)
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://app.example.com/setup", resp.Header.Get("Location"))

	access := cookie(resp, auth.AccessTokenCookie)
	require.NotNil(t, access)
	require.NotEmpty(t, access.Value)
	refresh := cookie(resp, auth.RefreshTokenCookie)
	require.NotNil(t, refresh)

	body := strings.NewReader(`{"name":"Taro Yamada","password":"Abcdef12"}`)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/registration", body)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(access)
	req.AddCookie(refresh)
	resp, err = e.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	signedIn, err := e.provider.SignInWithPassword(context.Background(), "a@x.com", "Abcdef12")
	require.NoError(t, err)
	name, err := e.profiles.GetName(context.Background(), signedIn.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Taro Yamada", name)
}

func TestCallbackRecoveryRedirectsToReset(t *testing.T) {
	e := setup(t, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code="+e.code(t)+"&type=recovery", nil)
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/reset-password", resp.Header.Get("Location"))
}

func TestCallbackErrorsRedirectToLogin(t *testing.T) {
	tests := []struct {
		name     string
		ttl      time.Duration
		query    func(e env) string
		location string
	}{
		{"missing code", time.Hour, func(env) string { return "" }, "https://app.example.com/login?error=no_code"},
		{"bad code", time.Hour, func(env) string { return "?code=nope" }, "https://app.example.com/login?error=auth_failed"},
		{"expired", -time.Hour, func(e env) string { return "?code=" + e.code(t) }, "https://app.example.com/login?error=expired_invitation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t, tt.ttl)
			resp, err := e.app.Test(httptest.NewRequest(http.MethodGet, "/auth/callback"+tt.query(e), nil), -1)
			require.NoError(t, err)
			assert.Equal(t, http.StatusFound, resp.StatusCode)
			assert.Equal(t, tt.location, resp.Header.Get("Location"))

			access := cookie(resp, auth.AccessTokenCookie)
			require.NotNil(t, access, "session cookie is cleared")
			assert.Empty(t, access.Value)
		})
	}
}

func TestTokenCallback(t *testing.T) {
	e := setup(t, time.Hour)
	session, err := e.provider.ExchangeAuthCode(context.Background(), e.code(t))
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]string{
		"access_token":  session.AccessToken,
		"refresh_token": session.RefreshToken,
		"type":          "invite",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/callback", strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, string(onboarding.IntentSetup), out["intent"])
	assert.Equal(t, "https://app.example.com/setup", out["redirect_to"])
	assert.Empty(t, out["error"])
}

func TestTokenCallbackRejected(t *testing.T) {
	e := setup(t, time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/auth/callback", strings.NewReader(`{"access_token":"bogus"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, string(onboarding.IntentError), out["intent"])
	assert.Equal(t, "auth_failed", out["error"])
}

func TestRegisterRequiresSession(t *testing.T) {
	e := setup(t, time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/registration", strings.NewReader(`{"name":"x","password":"Abcdef12"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
