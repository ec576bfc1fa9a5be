// Package invitationjobs removes invitations whose expiry has passed, on a
// cron schedule, through the jobx queue.
package invitationjobs

import (
	"context"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation"
	"github.com/Abraxas-365/facilitydir/pkg/jobx"
	"github.com/Abraxas-365/facilitydir/pkg/logx"
)

const JobPurgeExpired = "invitation.purge_expired"

// PurgePayload is the purge job body.
type PurgePayload struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

// Purger deletes expired invitations.
type Purger struct {
	invitations invitation.Repository
	now         func() time.Time
}

func NewPurger(invitations invitation.Repository) *Purger {
	return &Purger{invitations: invitations, now: time.Now}
}

// Register binds the purge handler on client.
func (p *Purger) Register(client *jobx.Client) {
	client.Register(JobPurgeExpired, p.Handle)
}

// Handle is the jobx handler.
func (p *Purger) Handle(ctx context.Context, job *jobx.JobInfo) error {
	var payload PurgePayload
	if err := job.Decode(&payload); err != nil {
		return err
	}

	n, err := p.Purge(ctx)
	if err != nil {
		return err
	}

	logx.WithContext(ctx).WithFields(logx.Fields{
		"job_id":       job.ID,
		"scheduled_at": payload.ScheduledAt,
		"deleted":      n,
	}).Info("Expired invitations purged")
	return nil
}

// Purge deletes everything that expired before now. Rows whose expiry cannot
// be parsed are never deleted; they are reported through Unparsable.
func (p *Purger) Purge(ctx context.Context) (int64, error) {
	n, err := p.invitations.DeleteExpired(ctx, p.now())
	if err != nil {
		return 0, err
	}
	if _, err := p.Unparsable(ctx); err != nil {
		logx.WithContext(ctx).WithError(err).Warn("Scan for corrupt invitation expiries failed")
	}
	return n, nil
}

// Unparsable lists invitations whose expires_at is not a timestamp and logs
// each one. They stay in place until an admin re-invites or deletes them.
func (p *Purger) Unparsable(ctx context.Context) ([]invitation.Invitation, error) {
	all, err := p.invitations.List(ctx)
	if err != nil {
		return nil, err
	}

	var corrupt []invitation.Invitation
	for _, inv := range all {
		if _, err := inv.Expiry(); err != nil {
			corrupt = append(corrupt, inv)
			logx.WithContext(ctx).WithFields(logx.Fields{
				"invitation_id": inv.ID,
				"email":         inv.Email,
				"expires_at":    inv.ExpiresAt,
			}).Error("Invitation has an unparsable expiry and cannot be purged")
		}
	}
	if len(corrupt) > 0 {
		logx.WithContext(ctx).WithField("count", len(corrupt)).Warn("Corrupt invitations left in place")
	}
	return corrupt, nil
}
