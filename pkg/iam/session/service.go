package session

import (
	"context"

	"github.com/Abraxas-365/facilitydir/pkg/iam"
	"github.com/Abraxas-365/facilitydir/pkg/iam/auth"
	"github.com/Abraxas-365/facilitydir/pkg/iam/identity"
	"github.com/Abraxas-365/facilitydir/pkg/kernel"
	"github.com/Abraxas-365/facilitydir/pkg/logx"
)

// RevocationService invalidates every session of a user.
type RevocationService struct {
	gateway identity.Gateway
	roles   auth.RoleResolver
	audit   auth.AuditService
}

func NewRevocationService(gateway identity.Gateway, roles auth.RoleResolver, audit auth.AuditService) *RevocationService {
	return &RevocationService{gateway: gateway, roles: roles, audit: audit}
}

// Revoke invalidates all sessions of target. actor may be empty.
//
// admin-force needs an admin actor, checked right before the call. auth-error
// with no target is a successful no-op. Every other reason only needs a
// well-formed target id.
func (s *RevocationService) Revoke(ctx context.Context, target kernel.UserID, reason Reason, actor kernel.UserID) error {
	if !reason.IsValid() {
		return ErrInvalidReason(reason)
	}

	log := logx.WithContext(ctx).WithFields(logx.Fields{
		"target_user_id": target,
		"acting_user_id": actor,
		"reason":         reason,
	})

	if target.IsEmpty() && reason == ReasonAuthError {
		log.Debug("Session revocation skipped: no target")
		return nil
	}
	if !target.Valid() {
		log.Debug("Session revocation rejected: malformed target")
		return ErrInvalidTarget()
	}

	if reason == ReasonAdminForce {
		if err := s.requireAdmin(ctx, target, actor); err != nil {
			log.WithError(err).Warn("Forced logout denied")
			return err
		}
	}

	if err := s.gateway.InvalidateAllSessions(ctx, target); err != nil {
		if identity.IsCapabilityUnavailable(err) {
			log.WithError(err).Warn("Session revocation unavailable: identity provider lacks the capability")
		} else {
			log.WithError(err).Error("Session revocation call failed")
		}
		return ErrRevokeFailed(err)
	}

	s.audit.LogSessionsRevoked(ctx, target, actor, string(reason), reason.Description())
	return nil
}

func (s *RevocationService) requireAdmin(ctx context.Context, target, actor kernel.UserID) error {
	if actor.IsEmpty() {
		s.audit.LogRevocationDenied(ctx, target, actor, string(ReasonAdminForce), "no acting user")
		return iam.ErrUnauthorized()
	}

	role, err := s.roles.GetRole(ctx, actor)
	if err != nil {
		s.audit.LogRevocationDenied(ctx, target, actor, string(ReasonAdminForce), "role lookup failed")
		return iam.ErrAccessDenied().WithCause(err)
	}
	if role != kernel.RoleAdmin {
		s.audit.LogRevocationDenied(ctx, target, actor, string(ReasonAdminForce), "acting user is not an admin")
		return iam.ErrAccessDenied()
	}
	return nil
}
