package authinfra

import (
	"context"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/kernel"
	"github.com/Abraxas-365/facilitydir/pkg/logx"
)

// LogxAuditService implements auth.AuditService using structured logx logging.
type LogxAuditService struct{}

func NewLogxAuditService() *LogxAuditService {
	return &LogxAuditService{}
}

func (s *LogxAuditService) LogInvitationIssued(ctx context.Context, email string, role kernel.Role, invitedBy kernel.UserID) {
	logx.WithContext(ctx).WithFields(logx.Fields{
		"audit_event": "invitation_issued",
		"email":       email,
		"role":        role,
		"invited_by":  invitedBy,
		"timestamp":   time.Now(),
	}).Info("Audit: invitation issued")
}

func (s *LogxAuditService) LogCallbackRejected(ctx context.Context, userID kernel.UserID, code string) {
	logx.WithContext(ctx).WithFields(logx.Fields{
		"audit_event": "callback_rejected",
		"user_id":     userID,
		"code":        code,
		"timestamp":   time.Now(),
	}).Warn("Audit: callback rejected")
}

func (s *LogxAuditService) LogRegistrationCompleted(ctx context.Context, userID kernel.UserID, facilityID *kernel.FacilityID) {
	fields := logx.Fields{
		"audit_event": "registration_completed",
		"user_id":     userID,
		"timestamp":   time.Now(),
	}
	if facilityID != nil {
		fields["facility_id"] = *facilityID
	}
	logx.WithContext(ctx).WithFields(fields).Info("Audit: registration completed")
}

func (s *LogxAuditService) LogSessionsRevoked(ctx context.Context, target, actor kernel.UserID, reason, description string) {
	fields := logx.Fields{
		"audit_event": "sessions_revoked",
		"user_id":     target,
		"reason":      reason,
		"timestamp":   time.Now(),
	}
	if !actor.IsEmpty() {
		fields["actor_id"] = actor
	}
	logx.WithContext(ctx).WithFields(fields).Info("Audit: " + description)
}

func (s *LogxAuditService) LogRevocationDenied(ctx context.Context, target, actor kernel.UserID, reason, cause string) {
	logx.WithContext(ctx).WithFields(logx.Fields{
		"audit_event": "revocation_denied",
		"user_id":     target,
		"actor_id":    actor,
		"reason":      reason,
		"cause":       cause,
		"timestamp":   time.Now(),
	}).Warn("Audit: session revocation denied")
}
