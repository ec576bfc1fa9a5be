package invitationsrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/dbx"
	"github.com/Abraxas-365/facilitydir/pkg/iam/auth"
	"github.com/Abraxas-365/facilitydir/pkg/iam/identity"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation"
	"github.com/Abraxas-365/facilitydir/pkg/iam/profile"
	"github.com/Abraxas-365/facilitydir/pkg/kernel"
	"github.com/Abraxas-365/facilitydir/pkg/logx"
)

// InvitationService issues invitations. Authorization of the inviter is the
// transport layer's job.
type InvitationService struct {
	invitations invitation.Repository
	profiles    profile.Repository
	gateway     identity.Gateway
	audit       auth.AuditService

	redirectURL string
	ttl         time.Duration
	now         func() time.Time
}

func NewInvitationService(
	invitations invitation.Repository,
	profiles profile.Repository,
	gateway identity.Gateway,
	audit auth.AuditService,
	redirectURL string,
	ttl time.Duration,
) *InvitationService {
	return &InvitationService{
		invitations: invitations,
		profiles:    profiles,
		gateway:     gateway,
		audit:       audit,
		redirectURL: redirectURL,
		ttl:         ttl,
		now:         time.Now,
	}
}

// WithClock replaces the time source.
func (s *InvitationService) WithClock(now func() time.Time) *InvitationService {
	s.now = now
	return s
}

// Issue writes the invitation and asks the identity provider to send the
// invite email. When the send fails the row is removed again and the
// provider's error is returned.
func (s *InvitationService) Issue(ctx context.Context, invitedBy kernel.UserID, req invitation.IssueRequest) (*invitation.Invitation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv, err := s.invitations.UpsertByEmail(ctx, invitation.Invitation{
		Email:      req.Email,
		Role:       req.Role,
		FacilityID: req.FacilityID(),
		InvitedBy:  invitedBy,
		ExpiresAt:  dbx.Timestamp(s.now().Add(s.ttl)),
	})
	if err != nil {
		return nil, err
	}

	ident, err := s.gateway.SendInvite(ctx, inv.Email, s.redirectURL)
	if err != nil {
		if delErr := s.invitations.DeleteByEmail(ctx, inv.Email); delErr != nil {
			logx.WithContext(ctx).WithError(delErr).WithField("email", inv.Email).
				Warn("Failed to remove invitation after invite send failure; it will expire")
		}
		logx.WithContext(ctx).WithError(err).WithField("email", inv.Email).Error("Invite email could not be sent")
		return nil, err
	}

	if ident != nil && !ident.ID.IsEmpty() {
		s.bindIdentity(ctx, inv, ident.ID)
	}

	s.audit.LogInvitationIssued(ctx, inv.Email, inv.Role, invitedBy)
	return inv, nil
}

// bindIdentity records the identity id on the invitation and makes sure the
// profile row exists. Both are best effort; the callback binds by email too.
func (s *InvitationService) bindIdentity(ctx context.Context, inv *invitation.Invitation, userID kernel.UserID) {
	if err := s.invitations.BindUser(ctx, inv.Email, userID); err != nil {
		logx.WithContext(ctx).WithError(err).WithFields(logx.Fields{
			"email":   inv.Email,
			"user_id": userID,
		}).Warn("Failed to bind identity to invitation")
	} else {
		inv.UserID = &userID
	}

	if err := s.profiles.EnsureProfile(ctx, userID, inv.Email, inv.Role); err != nil {
		logx.WithContext(ctx).WithError(err).WithField("user_id", userID).Warn("Failed to ensure profile for invited user")
	}
}
