// Package jobs schedules the background maintenance the contract system
// needs to stay truthful: expiry sweeps, quorum recovery, session purges
// and audit retention.
package jobs

import (
	"fmt"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Job is one named maintenance task with its own schedule.
type Job interface {
	Name() string
	Schedule() gocron.JobDefinition
	Execute()
}

// Manager owns the gocron scheduler and the registered maintenance jobs.
type Manager struct {
	scheduler gocron.Scheduler
	log       *zap.Logger
}

// NewManager creates a manager with an idle scheduler. Register jobs, then
// Start.
func NewManager(log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Manager{scheduler: s, log: log}, nil
}

// Register adds a job to the scheduler. Singleton mode keeps a slow sweep
// from stacking on itself.
func (m *Manager) Register(job Job) error {
	_, err := m.scheduler.NewJob(
		job.Schedule(),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.Name()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("register job %s: %w", job.Name(), err)
	}
	m.log.Info("maintenance job registered", zap.String("job", job.Name()))
	return nil
}

// Start begins running registered jobs on their schedules.
func (m *Manager) Start() {
	m.scheduler.Start()
	m.log.Info("maintenance scheduler started", zap.Int("jobs", len(m.scheduler.Jobs())))
}

// Stop shuts the scheduler down, waiting for running jobs.
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		m.log.Error("scheduler shutdown failed", zap.Error(err))
	}
}
