package auth

import (
	"context"

	"github.com/Abraxas-365/facilitydir/pkg/kernel"
)

// TokenService verifies access tokens presented by callers.
type TokenService interface {
	ValidateAccessToken(token string) (*TokenClaims, error)
}

// RoleResolver looks up the application role of a user.
type RoleResolver interface {
	GetRole(ctx context.Context, userID kernel.UserID) (kernel.Role, error)
}

// AuditService records security-relevant provisioning events.
type AuditService interface {
	LogInvitationIssued(ctx context.Context, email string, role kernel.Role, invitedBy kernel.UserID)
	LogCallbackRejected(ctx context.Context, userID kernel.UserID, code string)
	LogRegistrationCompleted(ctx context.Context, userID kernel.UserID, facilityID *kernel.FacilityID)
	LogSessionsRevoked(ctx context.Context, target, actor kernel.UserID, reason, description string)
	LogRevocationDenied(ctx context.Context, target, actor kernel.UserID, reason, cause string)
}
