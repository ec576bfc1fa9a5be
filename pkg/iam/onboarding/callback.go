package onboarding

import (
	"context"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/iam/auth"
	"github.com/Abraxas-365/facilitydir/pkg/iam/identity"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation"
	"github.com/Abraxas-365/facilitydir/pkg/kernel"
	"github.com/Abraxas-365/facilitydir/pkg/logx"
)

// CallbackService establishes the session an invite or recovery link leads
// to. Every rejection signs the session out before returning.
type CallbackService struct {
	gateway     identity.Gateway
	invitations invitation.Repository
	audit       auth.AuditService
	now         func() time.Time
}

func NewCallbackService(gateway identity.Gateway, invitations invitation.Repository, audit auth.AuditService) *CallbackService {
	return &CallbackService{
		gateway:     gateway,
		invitations: invitations,
		audit:       audit,
		now:         time.Now,
	}
}

// WithClock replaces the time source.
func (s *CallbackService) WithClock(now func() time.Time) *CallbackService {
	s.now = now
	return s
}

// ExchangeCode handles the server-redirect flow.
func (s *CallbackService) ExchangeCode(ctx context.Context, code string, flow FlowType) (*Outcome, error) {
	if code == "" {
		s.audit.LogCallbackRejected(ctx, "", CodeNoCode.Code)
		return nil, ErrNoCode()
	}

	session, err := s.gateway.ExchangeAuthCode(ctx, code)
	if err != nil {
		logx.WithContext(ctx).WithError(err).Warn("Authorization code exchange failed")
		s.audit.LogCallbackRejected(ctx, "", CodeAuthFailed.Code)
		return nil, ErrAuthFailed().WithCause(err)
	}
	return s.continueWith(ctx, session, flow)
}

// ExchangeTokens handles the fragment flow, where the client forwards the
// tokens it found in the URL fragment.
func (s *CallbackService) ExchangeTokens(ctx context.Context, accessToken, refreshToken string, flow FlowType) (*Outcome, error) {
	if accessToken == "" {
		s.audit.LogCallbackRejected(ctx, "", CodeNoCode.Code)
		return nil, ErrNoCode()
	}

	session, err := s.gateway.EstablishSession(ctx, accessToken, refreshToken)
	if err != nil {
		logx.WithContext(ctx).WithError(err).Warn("Session from fragment tokens failed")
		// the presented tokens may still be live
		s.signOut(ctx, &identity.Session{AccessToken: accessToken, RefreshToken: refreshToken}, "")
		s.audit.LogCallbackRejected(ctx, "", CodeAuthFailed.Code)
		return nil, ErrAuthFailed().WithCause(err)
	}
	return s.continueWith(ctx, session, flow)
}

func (s *CallbackService) continueWith(ctx context.Context, session *identity.Session, flow FlowType) (*Outcome, error) {
	ident, err := s.gateway.CurrentUser(ctx, session)
	if err != nil || ident == nil {
		if err != nil {
			logx.WithContext(ctx).WithError(err).Warn("Current user lookup failed")
		}
		return nil, s.reject(ctx, session, "", ErrAuthFailed().WithCause(err))
	}

	inv, err := findInvitation(ctx, s.invitations, ident)
	if err != nil {
		return nil, s.reject(ctx, session, ident.ID, err)
	}

	expiresAt, err := inv.Expiry()
	if err != nil {
		logx.WithContext(ctx).WithError(err).WithFields(logx.Fields{
			"invitation_id": inv.ID,
			"user_id":       ident.ID,
		}).Error("Invitation has an unparsable expiry")
		return nil, s.reject(ctx, session, ident.ID, ErrInvalidInvitation().WithCause(err))
	}

	if expiresAt.Before(s.now()) {
		if err := s.invitations.DeleteByEmail(ctx, inv.Email); err != nil {
			logx.WithContext(ctx).WithError(err).WithField("invitation_id", inv.ID).Warn("Failed to delete expired invitation")
		}
		return nil, s.reject(ctx, session, ident.ID, ErrExpiredInvitation())
	}

	if inv.IsUsed() {
		return nil, s.reject(ctx, session, ident.ID, ErrUsedInvitation())
	}

	intent := IntentSetup
	if flow == FlowRecovery {
		intent = IntentReset
	}

	return &Outcome{
		Intent:     intent,
		Session:    session,
		UserID:     ident.ID,
		Invitation: inv,
	}, nil
}

// reject signs the session out, records the rejection and returns cause.
func (s *CallbackService) reject(ctx context.Context, session *identity.Session, userID kernel.UserID, cause error) error {
	s.signOut(ctx, session, userID)
	s.audit.LogCallbackRejected(ctx, userID, CallbackErrorCode(cause))
	return cause
}

// signOut ends the session and, when that fails and the user is known, every
// session of the user, so no rejected session stays usable.
func (s *CallbackService) signOut(ctx context.Context, session *identity.Session, userID kernel.UserID) {
	err := s.gateway.SignOut(ctx, session)
	if err == nil {
		return
	}
	log := logx.WithContext(ctx).WithError(err).WithField("user_id", userID)
	if userID.IsEmpty() {
		log.Error("Sign-out of rejected session failed")
		return
	}
	if err := s.gateway.InvalidateAllSessions(ctx, userID); err != nil {
		log.WithField("invalidate_error", err.Error()).Error("Sign-out of rejected session failed")
		return
	}
	log.Warn("Sign-out failed; all sessions of the user were invalidated instead")
}
