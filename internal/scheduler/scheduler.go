// Package scheduler hosts the background jobs on a cron runner. All
// schedules use the six-field form with seconds; user analysis times
// are translated from HH:MM wall-clock strings to weekday cron
// entries and can be swapped at runtime.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one schedulable unit of work.
type Job interface {
	Name() string
	Run() error
}

// FuncJob adapts a bare function to the Job interface.
type FuncJob struct {
	JobName string
	Fn      func() error
}

func (j FuncJob) Name() string { return j.JobName }
func (j FuncJob) Run() error   { return j.Fn() }

// Scheduler manages background jobs.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop waits for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

// AddJob registers a job. An empty schedule disables the job, which
// lets configuration turn individual jobs off.
func (s *Scheduler) AddJob(schedule string, job Job) (cron.EntryID, error) {
	if schedule == "" {
		s.log.Info().Str("job", job.Name()).Msg("job disabled, no schedule")
		return 0, nil
	}

	id, err := s.cron.AddFunc(schedule, func() {
		s.log.Debug().Str("job", job.Name()).Msg("running job")
		if err := job.Run(); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("job failed")
			return
		}
		s.log.Debug().Str("job", job.Name()).Msg("job completed")
	})
	if err != nil {
		return 0, fmt.Errorf("register job %s: %w", job.Name(), err)
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("job registered")
	return id, nil
}

// Remove drops a previously registered entry.
func (s *Scheduler) Remove(id cron.EntryID) {
	if id != 0 {
		s.cron.Remove(id)
	}
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("running job immediately")
	return job.Run()
}
