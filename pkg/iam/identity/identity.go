// Package identity defines the contract with the external identity provider,
// which owns credentials and session tokens.
package identity

import (
	"context"
	"net/http"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/kernel"
)

// Identity is a user as the provider knows it. Nothing here is stored locally.
type Identity struct {
	ID          kernel.UserID `json:"id"`
	Email       string        `json:"email"`
	ConfirmedAt *time.Time    `json:"confirmed_at,omitempty"`
}

// Session is an authenticated provider session.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	// User is filled when the provider returned it with the tokens.
	User *Identity `json:"user,omitempty"`
}

// Gateway is the set of provider operations the provisioning flows rely on.
type Gateway interface {
	// SendInvite creates (or reuses) the identity for email and dispatches an
	// invite message whose link lands on redirectURL.
	SendInvite(ctx context.Context, email, redirectURL string) (*Identity, error)
	ExchangeAuthCode(ctx context.Context, code string) (*Session, error)
	EstablishSession(ctx context.Context, accessToken, refreshToken string) (*Session, error)
	// CurrentUser returns (nil, nil) when the session no longer identifies anyone.
	CurrentUser(ctx context.Context, session *Session) (*Identity, error)
	SetPassword(ctx context.Context, userID kernel.UserID, password string) error
	InvalidateAllSessions(ctx context.Context, userID kernel.UserID) error
	SignOut(ctx context.Context, session *Session) error
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("IDENTITY")

var (
	CodeCapabilityUnavailable = ErrRegistry.Register("CAPABILITY_UNAVAILABLE", errx.TypeInternal, http.StatusServiceUnavailable, "Identity provider capability not available")
	CodeInvalidCredentials    = ErrRegistry.Register("INVALID_CREDENTIALS", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid credentials")
	CodeUserNotFound          = ErrRegistry.Register("USER_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Identity not found")
	CodeProviderError         = ErrRegistry.Register("PROVIDER_ERROR", errx.TypeExternal, http.StatusBadGateway, "Identity provider request failed")
	CodeInvalidRequest        = ErrRegistry.Register("INVALID_REQUEST", errx.TypeValidation, http.StatusBadRequest, "Invalid identity request")
)

// Helper functions
func ErrCapabilityUnavailable(operation string) *errx.Error {
	return ErrRegistry.New(CodeCapabilityUnavailable).WithDetail("operation", operation)
}

func ErrInvalidCredentials() *errx.Error {
	return ErrRegistry.New(CodeInvalidCredentials)
}

func ErrUserNotFound(userID kernel.UserID) *errx.Error {
	return ErrRegistry.New(CodeUserNotFound).WithDetail("user_id", userID)
}

func ErrProviderError() *errx.Error {
	return ErrRegistry.New(CodeProviderError)
}

func ErrInvalidRequest(reason string) *errx.Error {
	return ErrRegistry.New(CodeInvalidRequest).WithDetail("reason", reason)
}

// IsCapabilityUnavailable reports whether err marks a missing provider capability.
func IsCapabilityUnavailable(err error) bool {
	return errx.HasCode(err, CodeCapabilityUnavailable)
}
