package onboarding

import (
	"context"

	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/iam/identity"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation"
	"github.com/Abraxas-365/facilitydir/pkg/logx"
)

// findInvitation looks the invitation up by user id, then by email. A row
// found by email is bound to the identity on first sight; a row bound to a
// different identity does not belong to this caller.
func findInvitation(ctx context.Context, invitations invitation.Repository, ident *identity.Identity) (*invitation.Invitation, error) {
	inv, err := invitations.FindByUserID(ctx, ident.ID)
	if err == nil {
		return inv, nil
	}
	if !errx.HasCode(err, invitation.CodeInvitationNotFound) {
		return nil, err
	}

	if ident.Email == "" {
		return nil, ErrNoInvitation()
	}
	inv, err = invitations.FindByEmail(ctx, ident.Email)
	if err != nil {
		if errx.HasCode(err, invitation.CodeInvitationNotFound) {
			return nil, ErrNoInvitation()
		}
		return nil, err
	}

	if inv.UserID != nil && *inv.UserID != ident.ID {
		logx.WithContext(ctx).WithFields(logx.Fields{
			"email":      inv.Email,
			"user_id":    ident.ID,
			"bound_user": *inv.UserID,
		}).Warn("Invitation is bound to another identity")
		return nil, ErrNoInvitation()
	}

	if inv.UserID == nil {
		if err := invitations.BindUser(ctx, inv.Email, ident.ID); err != nil {
			logx.WithContext(ctx).WithError(err).WithField("email", inv.Email).Warn("Failed to bind invitation to identity")
		} else {
			id := ident.ID
			inv.UserID = &id
		}
	}
	return inv, nil
}
