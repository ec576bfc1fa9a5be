package auth

import (
	"strings"

	"github.com/Abraxas-365/facilitydir/pkg/iam"
	"github.com/Abraxas-365/facilitydir/pkg/kernel"
	"github.com/Abraxas-365/facilitydir/pkg/logx"
	"github.com/gofiber/fiber/v2"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	refreshTokenHeader = "X-Refresh-Token"
)

// TokenMiddleware authenticates fiber requests with bearer tokens or session cookies.
type TokenMiddleware struct {
	tokenService TokenService
	roles        RoleResolver
}

// NewAuthMiddleware builds the middleware. roles may be nil, in which case
// callers never carry a role.
func NewAuthMiddleware(tokenService TokenService, roles RoleResolver) *TokenMiddleware {
	return &TokenMiddleware{
		tokenService: tokenService,
		roles:        roles,
	}
}

// Authenticate rejects requests without a valid access token.
func (am *TokenMiddleware) Authenticate() fiber.Handler {
	return am.handler(true)
}

// OptionalAuth attaches the caller when a valid token is present and lets
// anonymous requests through.
func (am *TokenMiddleware) OptionalAuth() fiber.Handler {
	return am.handler(false)
}

func (am *TokenMiddleware) handler(required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractAccessToken(c)
		if token == "" {
			if required {
				return iam.ErrUnauthorized()
			}
			return c.Next()
		}

		claims, err := am.tokenService.ValidateAccessToken(token)
		if err != nil {
			if required {
				return iam.ErrInvalidToken().WithCause(err)
			}
			logx.WithError(err).Debug("auth: ignoring invalid optional token")
			return c.Next()
		}

		authContext := &kernel.AuthContext{
			UserID:       claims.UserID,
			Email:        claims.Email,
			SessionID:    claims.SessionID,
			AccessToken:  token,
			RefreshToken: extractRefreshToken(c),
		}

		if am.roles != nil {
			role, err := am.roles.GetRole(c.UserContext(), claims.UserID)
			if err != nil {
				logx.WithError(err).WithField("user_id", claims.UserID).Warn("auth: role lookup failed")
			} else {
				authContext.Role = role
			}
		}

		c.Locals(string(kernel.AuthContextKey), authContext)
		return c.Next()
	}
}

// RequireAdmin rejects callers whose profile role is not admin.
func (am *TokenMiddleware) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authContext, ok := GetAuthContext(c)
		if !ok {
			return iam.ErrUnauthorized()
		}

		if !authContext.IsAdmin() {
			logx.WithFields(logx.Fields{
				"user_id": authContext.UserID,
				"path":    c.Path(),
			}).Warn("auth: admin role required")
			return iam.ErrAccessDenied()
		}

		return c.Next()
	}
}

// GetAuthContext returns the caller attached by the middleware.
func GetAuthContext(c *fiber.Ctx) (*kernel.AuthContext, bool) {
	authContext, ok := c.Locals(string(kernel.AuthContextKey)).(*kernel.AuthContext)
	if !ok || !authContext.IsValid() {
		return nil, false
	}
	return authContext, true
}

func extractAccessToken(c *fiber.Ctx) string {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && parts[1] != "" {
			return parts[1]
		}
	}
	return c.Cookies(AccessTokenCookie)
}

func extractRefreshToken(c *fiber.Ctx) string {
	if v := c.Get(refreshTokenHeader); v != "" {
		return v
	}
	return c.Cookies(RefreshTokenCookie)
}
