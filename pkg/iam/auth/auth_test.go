package auth_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/iam"
	"github.com/Abraxas-365/facilitydir/pkg/iam/auth"
	"github.com/Abraxas-365/facilitydir/pkg/kernel"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestJWTRoundTrip(t *testing.T) {
	svc := auth.NewJWTService(secret, time.Minute, "facilitydir")
	uid := kernel.NewRandomUserID()

	token, exp, err := svc.GenerateAccessToken(uid, "a@x.com", "sess-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 2*time.Second)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, uid, claims.UserID)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, "sess-1", claims.SessionID)
}

func TestJWTRejectsForeignTokens(t *testing.T) {
	uid := kernel.NewRandomUserID()
	other, _, err := auth.NewJWTService("other-secret", time.Minute, "facilitydir").GenerateAccessToken(uid, "", "s")
	require.NoError(t, err)

	svc := auth.NewJWTService(secret, time.Minute, "facilitydir")
	_, err = svc.ValidateAccessToken(other)
	assert.True(t, errx.HasCode(err, auth.CodeTokenValidationFailed))

	wrongIssuer, _, _ := auth.NewJWTService(secret, time.Minute, "someone-else").GenerateAccessToken(uid, "", "s")
	_, err = svc.ValidateAccessToken(wrongIssuer)
	assert.Error(t, err)

	expired, _, _ := auth.NewJWTService(secret, -time.Minute, "facilitydir").GenerateAccessToken(uid, "", "s")
	_, err = svc.ValidateAccessToken(expired)
	assert.Error(t, err)
}

type roles map[kernel.UserID]kernel.Role

func (r roles) GetRole(_ context.Context, id kernel.UserID) (kernel.Role, error) {
	role, ok := r[id]
	if !ok {
		return "", errors.New("no profile")
	}
	return role, nil
}

func newApp(t *testing.T, mw *auth.TokenMiddleware) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: errx.FiberErrorHandler(false)})

	whoami := func(c *fiber.Ctx) error {
		ac, ok := auth.GetAuthContext(c)
		if !ok {
			return c.SendString("anonymous")
		}
		return c.SendString(ac.UserID.String() + "|" + ac.Role.String() + "|" + ac.RefreshToken)
	}
	app.Get("/required", mw.Authenticate(), whoami)
	app.Get("/optional", mw.OptionalAuth(), whoami)
	app.Get("/admin", mw.Authenticate(), mw.RequireAdmin(), whoami)
	return app
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, string) {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestMiddleware(t *testing.T) {
	svc := auth.NewJWTService(secret, time.Minute, "")
	admin := kernel.NewRandomUserID()
	staff := kernel.NewRandomUserID()
	app := newApp(t, auth.NewAuthMiddleware(svc, roles{admin: kernel.RoleAdmin, staff: kernel.RoleStaff}))

	adminToken, _, _ := svc.GenerateAccessToken(admin, "", "s1")
	staffToken, _, _ := svc.GenerateAccessToken(staff, "", "s2")

	t.Run("missing token", func(t *testing.T) {
		status, body := do(t, app, httptest.NewRequest(http.MethodGet, "/required", nil))
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Contains(t, body, iam.CodeUnauthorized.Code)
	})

	t.Run("bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/required", nil)
		req.Header.Set("Authorization", "Bearer "+staffToken)
		req.Header.Set("X-Refresh-Token", "r-1")
		status, body := do(t, app, req)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, staff.String()+"|staff|r-1", body)
	})

	t.Run("cookie token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/required", nil)
		req.AddCookie(&http.Cookie{Name: auth.AccessTokenCookie, Value: adminToken})
		req.AddCookie(&http.Cookie{Name: auth.RefreshTokenCookie, Value: "r-2"})
		status, body := do(t, app, req)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, admin.String()+"|admin|r-2", body)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/required", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		status, body := do(t, app, req)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Contains(t, body, iam.CodeInvalidToken.Code)
	})

	t.Run("optional without token", func(t *testing.T) {
		status, body := do(t, app, httptest.NewRequest(http.MethodGet, "/optional", nil))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "anonymous", body)
	})

	t.Run("optional with invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/optional", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		status, body := do(t, app, req)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "anonymous", body)
	})

	t.Run("admin allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+adminToken)
		status, _ := do(t, app, req)
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("staff denied admin route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+staffToken)
		status, body := do(t, app, req)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Contains(t, body, iam.CodeAccessDenied.Code)
	})

	t.Run("unknown profile has no role", func(t *testing.T) {
		stranger, _, _ := svc.GenerateAccessToken(kernel.NewRandomUserID(), "", "s3")
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+stranger)
		status, _ := do(t, app, req)
		assert.Equal(t, http.StatusForbidden, status)
	})
}
