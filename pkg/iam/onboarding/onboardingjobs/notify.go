// Package onboardingjobs tells the inviting administrator when an invited
// user finishes registering.
package onboardingjobs

import (
	"context"

	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/iam/onboarding"
	"github.com/Abraxas-365/facilitydir/pkg/iam/profile"
	"github.com/Abraxas-365/facilitydir/pkg/jobx"
	"github.com/Abraxas-365/facilitydir/pkg/logx"
	"github.com/Abraxas-365/facilitydir/pkg/notifx"
)

// Mailer renders and sends a named template. notifx.Client satisfies it.
type Mailer interface {
	SendTemplate(ctx context.Context, name string, data any, to ...string) error
}

// Notifier handles onboarding.JobAccountRegistered.
type Notifier struct {
	profiles profile.Repository
	mailer   Mailer
}

func NewNotifier(profiles profile.Repository, mailer Mailer) *Notifier {
	return &Notifier{profiles: profiles, mailer: mailer}
}

// Register binds the handler on client.
func (n *Notifier) Register(client *jobx.Client) {
	client.Register(onboarding.JobAccountRegistered, n.Handle)
}

// Handle emails the inviter. An inviter without a profile or email is
// skipped, not retried.
func (n *Notifier) Handle(ctx context.Context, job *jobx.JobInfo) error {
	var event onboarding.AccountRegistered
	if err := job.Decode(&event); err != nil {
		return err
	}

	log := logx.WithContext(ctx).WithFields(logx.Fields{
		"job_id":     job.ID,
		"user_id":    event.UserID,
		"invited_by": event.InvitedBy,
	})

	if event.InvitedBy.IsEmpty() {
		log.Debug("Registered user has no inviter to notify")
		return nil
	}

	to, err := n.profiles.GetEmail(ctx, event.InvitedBy)
	if err != nil {
		if errx.HasCode(err, profile.CodeProfileNotFound) {
			log.Warn("Inviter profile not found; skipping notification")
			return nil
		}
		return err
	}
	if to == "" {
		log.Warn("Inviter has no email; skipping notification")
		return nil
	}

	data := notifx.AccountRegisteredData{
		Name:  event.Name,
		Email: event.Email,
		Role:  event.Role.String(),
	}
	if event.FacilityID != nil {
		data.FacilityID = event.FacilityID.String()
	}

	if err := n.mailer.SendTemplate(ctx, notifx.TemplateAccountRegistered, data, to); err != nil {
		return err
	}
	log.Info("Inviter notified of registration")
	return nil
}
