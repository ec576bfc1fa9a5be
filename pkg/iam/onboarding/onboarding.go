// Package onboarding turns an accepted invitation into a usable account. The
// callback exchange establishes a session and routes the caller; the
// registration saga links the facility, names the profile and sets the
// password, undoing local steps when a later one fails.
package onboarding

import (
	"net/http"

	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/iam/identity"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation"
	"github.com/Abraxas-365/facilitydir/pkg/kernel"
)

// FlowType tells the callback which entry point to route to.
type FlowType string

const (
	FlowInvite   FlowType = "invite"
	FlowRecovery FlowType = "recovery"
)

// ParseFlowType maps the callback's type parameter. Anything but recovery is
// treated as an invite.
func ParseFlowType(s string) FlowType {
	if FlowType(s) == FlowRecovery {
		return FlowRecovery
	}
	return FlowInvite
}

// Intent is where the caller should go after the callback.
type Intent string

const (
	IntentSetup Intent = "continue-to-setup"
	IntentReset Intent = "continue-to-reset"
	IntentError Intent = "error"
)

// Outcome is a successful callback: the session is live and belongs to an
// invited user.
type Outcome struct {
	Intent     Intent
	Session    *identity.Session
	UserID     kernel.UserID
	Invitation *invitation.Invitation
}

// RegisterRequest is the first-time setup form.
type RegisterRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// JobAccountRegistered is published after a successful registration.
const JobAccountRegistered = "account.registered"

// AccountRegistered is the JobAccountRegistered payload.
type AccountRegistered struct {
	UserID     kernel.UserID      `json:"user_id"`
	Email      string             `json:"email"`
	Name       string             `json:"name"`
	Role       kernel.Role        `json:"role"`
	FacilityID *kernel.FacilityID `json:"facility_id,omitempty"`
	InvitedBy  kernel.UserID      `json:"invited_by"`
}

// ============================================================================
// Error Registry
// ============================================================================

// Codes are bare: the UI selects its message by them.
var ErrRegistry = errx.NewRegistry("")

var (
	CodeNoCode             = ErrRegistry.Register("no_code", errx.TypeValidation, http.StatusBadRequest, "Authorization code is missing")
	CodeAuthFailed         = ErrRegistry.Register("auth_failed", errx.TypeAuthorization, http.StatusUnauthorized, "Authentication failed")
	CodeNoInvitation       = ErrRegistry.Register("no_invitation", errx.TypeForbidden, http.StatusForbidden, "No invitation found")
	CodeInvalidInvitation  = ErrRegistry.Register("invalid_invitation", errx.TypeInternal, http.StatusInternalServerError, "Something went wrong. Please contact an administrator")
	CodeExpiredInvitation  = ErrRegistry.Register("expired_invitation", errx.TypeForbidden, http.StatusForbidden, "The invitation has expired")
	CodeUsedInvitation     = ErrRegistry.Register("used_invitation", errx.TypeForbidden, http.StatusForbidden, "The invitation has already been used")
	CodeInvalidName        = ErrRegistry.Register("invalid_name", errx.TypeValidation, http.StatusBadRequest, "Name is required")
	CodeWeakPassword       = ErrRegistry.Register("weak_password", errx.TypeValidation, http.StatusBadRequest, "Password must be at least 8 characters and mix two of upper case, lower case and digits")
	CodeRegistrationFailed = ErrRegistry.Register("registration_failed", errx.TypeInternal, http.StatusInternalServerError, "Registration could not be completed. Please try again")
)

// Helper functions
func ErrNoCode() *errx.Error {
	return ErrRegistry.New(CodeNoCode)
}

func ErrAuthFailed() *errx.Error {
	return ErrRegistry.New(CodeAuthFailed)
}

func ErrNoInvitation() *errx.Error {
	return ErrRegistry.New(CodeNoInvitation)
}

func ErrInvalidInvitation() *errx.Error {
	return ErrRegistry.New(CodeInvalidInvitation)
}

func ErrExpiredInvitation() *errx.Error {
	return ErrRegistry.New(CodeExpiredInvitation)
}

func ErrUsedInvitation() *errx.Error {
	return ErrRegistry.New(CodeUsedInvitation)
}

func ErrInvalidName() *errx.Error {
	return ErrRegistry.New(CodeInvalidName)
}

func ErrWeakPassword() *errx.Error {
	return ErrRegistry.New(CodeWeakPassword)
}

func ErrRegistrationFailed(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeRegistrationFailed, cause)
}

// callbackCodes are the codes the callback reports back to the UI.
var callbackCodes = []*errx.ErrorCode{
	CodeNoCode, CodeAuthFailed, CodeNoInvitation, CodeInvalidInvitation, CodeExpiredInvitation, CodeUsedInvitation,
}

// CallbackErrorCode returns the UI code for a callback failure. Errors that
// carry none of them report auth_failed.
func CallbackErrorCode(err error) string {
	for _, code := range callbackCodes {
		if errx.HasCode(err, code) {
			return code.Code
		}
	}
	return CodeAuthFailed.Code
}
