package onboarding

import (
	"context"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/iam"
	"github.com/Abraxas-365/facilitydir/pkg/iam/auth"
	"github.com/Abraxas-365/facilitydir/pkg/iam/identity"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation"
	"github.com/Abraxas-365/facilitydir/pkg/iam/profile"
	"github.com/Abraxas-365/facilitydir/pkg/jobx"
	"github.com/Abraxas-365/facilitydir/pkg/kernel"
	"github.com/Abraxas-365/facilitydir/pkg/logx"
)

// RegistrationService completes first-time setup for an invited user.
//
// Steps run strictly in order: resolve the caller, load and check the
// invitation, snapshot the profile name, link the facility, rename the
// profile, set the password, delete the invitation. A failure at the
// facility link, rename or password step undoes the local steps before it.
// The password is set last because it cannot be undone.
type RegistrationService struct {
	gateway     identity.Gateway
	invitations invitation.Repository
	profiles    profile.Repository
	facilities  profile.FacilityRepository
	audit       auth.AuditService
	publisher   jobx.Publisher
	now         func() time.Time
}

func NewRegistrationService(
	gateway identity.Gateway,
	invitations invitation.Repository,
	profiles profile.Repository,
	facilities profile.FacilityRepository,
	audit auth.AuditService,
) *RegistrationService {
	return &RegistrationService{
		gateway:     gateway,
		invitations: invitations,
		profiles:    profiles,
		facilities:  facilities,
		audit:       audit,
		now:         time.Now,
	}
}

// WithPublisher publishes JobAccountRegistered after each registration.
func (s *RegistrationService) WithPublisher(p jobx.Publisher) *RegistrationService {
	s.publisher = p
	return s
}

// WithClock replaces the time source.
func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	s.now = now
	return s
}

// Register runs the saga for the session's user. It is safe to call again
// after a failure as long as the invitation still exists.
func (s *RegistrationService) Register(ctx context.Context, session *identity.Session, req RegisterRequest) error {
	// 1. caller
	ident, err := s.gateway.CurrentUser(ctx, session)
	if err != nil {
		logx.WithContext(ctx).WithError(err).Warn("Registration: current user lookup failed")
		return iam.ErrUnauthorized().WithCause(err)
	}
	if ident == nil {
		return iam.ErrUnauthorized()
	}
	userID := ident.ID
	log := logx.WithContext(ctx).WithField("user_id", userID)

	// 2. invitation
	inv, err := findInvitation(ctx, s.invitations, ident)
	if err != nil {
		log.WithError(err).Warn("Registration rejected: no usable invitation")
		return err
	}

	// 3. expiry; checked before the form so an expired row is always removed
	expiresAt, err := inv.Expiry()
	if err != nil {
		log.WithError(err).WithFields(logx.Fields{
			"invitation_id": inv.ID,
			"expires_at":    inv.ExpiresAt,
		}).Critical("Registration: invitation expiry is corrupt")
		return ErrInvalidInvitation().WithCause(err)
	}
	if expiresAt.Before(s.now()) {
		if err := s.invitations.DeleteByEmail(ctx, inv.Email); err != nil {
			log.WithError(err).WithField("invitation_id", inv.ID).Warn("Failed to delete expired invitation")
		}
		return ErrExpiredInvitation()
	}
	if inv.IsUsed() {
		return ErrUsedInvitation()
	}

	name, err := NormalizeName(req.Name)
	if err != nil {
		return err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return err
	}

	// 4. snapshot
	originalName, err := s.profiles.GetName(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Registration: profile read failed")
		return err
	}

	// 5. facility link
	if inv.FacilityID != nil {
		if err := s.facilities.Insert(ctx, userID, *inv.FacilityID); err != nil {
			log.WithError(err).WithField("facility_id", *inv.FacilityID).Warn("Registration: facility link failed")
			return err
		}
	}

	// 6. profile name
	if err := s.profiles.SetName(ctx, userID, name); err != nil {
		log.WithError(err).Error("Registration: profile rename failed")
		s.unlinkFacility(ctx, userID, inv.FacilityID, err)
		return err
	}

	// 7. password
	if err := s.gateway.SetPassword(ctx, userID, req.Password); err != nil {
		log.WithError(err).Error("Registration: setting password failed")
		s.restoreName(ctx, userID, originalName, err)
		s.unlinkFacility(ctx, userID, inv.FacilityID, err)
		return ErrRegistrationFailed(err)
	}

	// 8. consume
	if err := s.invitations.DeleteByEmail(ctx, inv.Email); err != nil {
		log.WithError(err).WithField("invitation_id", inv.ID).
			Warn("Registration succeeded but the invitation could not be deleted; expiry cleanup will remove it")
	}

	s.audit.LogRegistrationCompleted(ctx, userID, inv.FacilityID)
	s.publishRegistered(ctx, AccountRegistered{
		UserID:     userID,
		Email:      ident.Email,
		Name:       name,
		Role:       inv.Role,
		FacilityID: inv.FacilityID,
		InvitedBy:  inv.InvitedBy,
	})
	return nil
}

func (s *RegistrationService) unlinkFacility(ctx context.Context, userID kernel.UserID, facilityID *kernel.FacilityID, cause error) {
	if facilityID == nil {
		return
	}
	if err := s.facilities.Delete(ctx, userID, *facilityID); err != nil {
		logx.WithContext(ctx).WithError(err).WithFields(logx.Fields{
			"user_id":     userID,
			"facility_id": *facilityID,
			"cause":       cause.Error(),
		}).Critical("Compensation failed: facility link left behind, manual cleanup required")
	}
}

func (s *RegistrationService) restoreName(ctx context.Context, userID kernel.UserID, originalName string, cause error) {
	if err := s.profiles.SetName(ctx, userID, originalName); err != nil {
		logx.WithContext(ctx).WithError(err).WithFields(logx.Fields{
			"user_id":       userID,
			"original_name": originalName,
			"cause":         cause.Error(),
		}).Critical("Compensation failed: profile name not restored, manual cleanup required")
	}
}

func (s *RegistrationService) publishRegistered(ctx context.Context, event AccountRegistered) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, JobAccountRegistered, event); err != nil {
		logx.WithContext(ctx).WithError(err).WithField("user_id", event.UserID).Warn("Failed to publish account registered event")
	}
}
