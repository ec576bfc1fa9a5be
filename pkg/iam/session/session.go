// Package session forces users out: administrator logouts, multi-device
// invalidation and credential-change invalidation all end in revoking every
// session of one user.
package session

import (
	"net/http"

	"github.com/Abraxas-365/facilitydir/pkg/errx"
)

// Reason says why sessions are being revoked. It selects the preconditions
// and the audit description.
type Reason string

const (
	ReasonTokenExpiry      Reason = "token-expiry"
	ReasonInactivity       Reason = "inactivity"
	ReasonRefreshInvalid   Reason = "refresh-invalid"
	ReasonCredentialChange Reason = "credential-change"
	ReasonMultiLogin       Reason = "multi-login"
	ReasonAdminForce       Reason = "admin-force"
	ReasonAuthError        Reason = "auth-error"
)

var descriptions = map[Reason]string{
	ReasonTokenExpiry:      "Access token expired",
	ReasonInactivity:       "Signed out after inactivity",
	ReasonRefreshInvalid:   "Refresh token was rejected",
	ReasonCredentialChange: "Password or credentials changed",
	ReasonMultiLogin:       "Signed in on another device",
	ReasonAdminForce:       "Forced logout by an administrator",
	ReasonAuthError:        "Authentication error",
}

func (r Reason) IsValid() bool {
	_, ok := descriptions[r]
	return ok
}

// Description is the human-readable audit text for r.
func (r Reason) Description() string {
	return descriptions[r]
}

// RevokeRequest is the body of a revocation call.
type RevokeRequest struct {
	TargetUserID string `json:"target_user_id"`
	Reason       Reason `json:"reason"`
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("SESSION")

var (
	CodeInvalidReason = ErrRegistry.Register("INVALID_REASON", errx.TypeValidation, http.StatusBadRequest, "Unknown revocation reason")
	CodeInvalidTarget = ErrRegistry.Register("INVALID_TARGET", errx.TypeValidation, http.StatusBadRequest, "Target user id is not valid")
	CodeRevokeFailed  = ErrRegistry.Register("REVOKE_FAILED", errx.TypeExternal, http.StatusBadGateway, "Sessions could not be revoked")
)

// Helper functions
func ErrInvalidReason(reason Reason) *errx.Error {
	return ErrRegistry.New(CodeInvalidReason).WithDetail("reason", reason)
}

func ErrInvalidTarget() *errx.Error {
	return ErrRegistry.New(CodeInvalidTarget)
}

// ErrRevokeFailed carries the provider's message.
func ErrRevokeFailed(cause error) *errx.Error {
	msg := CodeRevokeFailed.Message
	if e, ok := errx.As(cause); ok && e.Message != "" {
		msg = e.Message
	} else if cause != nil {
		msg = cause.Error()
	}
	return ErrRegistry.NewWithMessage(CodeRevokeFailed, msg).WithCause(cause)
}
