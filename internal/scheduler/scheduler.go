package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"

	"algoportfolio/internal/ports"
)

// Job represents a scheduled job
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	log  ports.Logger
}

// New creates a new scheduler
func New(log ports.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info(context.Background(), "Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info(context.Background(), "Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "@hourly"            - Every hour
//   - "@every 5m"          - Every 5 minutes
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx := context.Background()
		s.log.Debug(ctx, "Running job", map[string]interface{}{"job": job.Name()})

		if err := job.Run(ctx); err != nil {
			s.log.Error(ctx, err, "Job failed", map[string]interface{}{"job": job.Name()})
		} else {
			s.log.Debug(ctx, "Job completed", map[string]interface{}{"job": job.Name()})
		}
	})
	if err != nil {
		return err
	}

	s.log.Info(context.Background(), "Job registered", map[string]interface{}{
		"schedule": schedule,
		"job":      job.Name(),
	})
	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(ctx context.Context, job Job) error {
	s.log.Info(ctx, "Running job immediately", map[string]interface{}{"job": job.Name()})
	return job.Run(ctx)
}
