package invitationjobs

import (
	"context"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/jobx"
	"github.com/Abraxas-365/facilitydir/pkg/logx"
	"github.com/robfig/cron/v3"
)

// Scheduler enqueues the purge job on a cron schedule. The job itself runs
// on whichever worker dequeues it.
type Scheduler struct {
	cron      *cron.Cron
	publisher jobx.Publisher
}

// NewScheduler parses schedule as a six-field (seconds first) cron expression in UTC.
func NewScheduler(publisher jobx.Publisher, schedule string) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithSeconds(),
		),
		publisher: publisher,
	}

	if _, err := s.cron.AddFunc(schedule, s.enqueuePurge); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) enqueuePurge() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := s.publisher.Publish(ctx, JobPurgeExpired, PurgePayload{ScheduledAt: time.Now().UTC()})
	if err != nil {
		logx.WithError(err).Error("Failed to enqueue invitation purge")
		return
	}
	logx.WithField("job_id", id).Debug("Invitation purge enqueued")
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logx.Info("Starting invitation purge scheduler...")
	s.cron.Start()
}

// Stop waits for a running enqueue to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logx.Info("Invitation purge scheduler stopped")
}

// Entries reports how many schedules are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
