package interfaces

import (
	"context"
	"time"
)

// JobStatus represents the current status of a scheduled job
type JobStatus struct {
	Name        string
	Enabled     bool
	Schedule    string
	Description string
	LastRun     *time.Time
	NextRun     *time.Time
	IsRunning   bool
	LastError   string
}

// JobHandler is the work of one scheduled job.
type JobHandler func(ctx context.Context) error

// SchedulerService manages cron-based scheduling
type SchedulerService interface {
	// Start begins firing registered jobs
	Start() error

	// Stop halts the scheduler and waits for running jobs
	Stop() error

	// IsRunning returns true if scheduler is active
	IsRunning() bool

	// RegisterJob registers a job under a 5-field cron schedule
	RegisterJob(name, schedule, description string, handler JobHandler) error

	// TriggerJob runs a registered job now, outside its schedule
	TriggerJob(name string) error

	// GetJobStatus returns the status of a specific job
	GetJobStatus(name string) (*JobStatus, error)

	// GetAllJobStatuses returns the status of every registered job
	GetAllJobStatuses() map[string]*JobStatus
}
