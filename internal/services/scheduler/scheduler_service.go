package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/interfaces"
)

// DefaultSchedule runs after the 15:00 close on weekdays.
const DefaultSchedule = "0 16 * * 1-5"

const lastRunKeyPrefix = "scheduler_last_run_"

// jobEntry represents a registered job with metadata
type jobEntry struct {
	name        string
	schedule    string
	description string
	handler     interfaces.JobHandler
	cronID      cron.EntryID
	lastRun     *time.Time
	isRunning   bool
	lastError   string
}

// Service implements SchedulerService interface
type Service struct {
	cron      *cron.Cron
	location  *time.Location
	kvStorage interfaces.KeyValueStorage // Optional, persists last run times
	logger    arbor.ILogger
	ctx       context.Context
	cancel    context.CancelFunc
	jobMu     sync.Mutex // Protects jobs map and running
	globalMu  sync.Mutex // Prevents concurrent job execution
	jobs      map[string]*jobEntry
	running   bool
}

var _ interfaces.SchedulerService = (*Service)(nil)

// NewService creates a scheduler firing in the given IANA timezone.
// An empty timezone uses Asia/Shanghai.
func NewService(timezone string, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) (*Service, error) {
	location := common.ChinaLocation()
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduler timezone %q: %w", timezone, err)
		}
		location = loc
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cron:      cron.New(cron.WithLocation(location)),
		location:  location,
		kvStorage: kvStorage,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[string]*jobEntry),
	}, nil
}

// Start begins the scheduler
func (s *Service) Start() error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Int("jobs", len(s.jobs)).
		Str("timezone", s.location.String()).
		Msg("Scheduler started")
	return nil
}

// Stop halts the scheduler, cancels running jobs and waits for them to return
func (s *Service) Stop() error {
	s.jobMu.Lock()
	if !s.running {
		s.jobMu.Unlock()
		return nil
	}
	s.running = false
	s.jobMu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning returns true if scheduler is active
func (s *Service) IsRunning() bool {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	return s.running
}

// RegisterJob registers a new job with the scheduler
func (s *Service) RegisterJob(name, schedule, description string, handler interfaces.JobHandler) error {
	if err := common.ValidateJobSchedule(schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	entry := &jobEntry{
		name:        name,
		schedule:    schedule,
		description: description,
		handler:     handler,
		lastRun:     s.loadLastRun(name),
	}

	cronID, err := s.cron.AddFunc(schedule, func() {
		s.executeJob(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add job to cron: %w", err)
	}

	entry.cronID = cronID
	s.jobs[name] = entry

	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Msg("Job registered")

	return nil
}

// TriggerJob runs a job synchronously outside its schedule
func (s *Service) TriggerJob(name string) error {
	s.jobMu.Lock()
	_, exists := s.jobs[name]
	s.jobMu.Unlock()
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	s.executeJob(name)

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if msg := s.jobs[name].lastError; msg != "" {
		return fmt.Errorf("job %s failed: %s", name, msg)
	}
	return nil
}

// GetJobStatus returns the status of a specific job
func (s *Service) GetJobStatus(name string) (*interfaces.JobStatus, error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	entry, exists := s.jobs[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}

	var nextRun *time.Time
	if next := s.cron.Entry(entry.cronID).Next; !next.IsZero() {
		nextRun = &next
	}

	return &interfaces.JobStatus{
		Name:        entry.name,
		Enabled:     true,
		Schedule:    entry.schedule,
		Description: entry.description,
		LastRun:     entry.lastRun,
		NextRun:     nextRun,
		IsRunning:   entry.isRunning,
		LastError:   entry.lastError,
	}, nil
}

// GetAllJobStatuses returns all job statuses
func (s *Service) GetAllJobStatuses() map[string]*interfaces.JobStatus {
	s.jobMu.Lock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	s.jobMu.Unlock()

	statuses := make(map[string]*interfaces.JobStatus, len(names))
	for _, name := range names {
		if status, err := s.GetJobStatus(name); err == nil {
			statuses[name] = status
		}
	}
	return statuses
}

// executeJob wraps job execution with mutex, panic recovery, and status tracking
func (s *Service) executeJob(name string) {
	s.globalMu.Lock()
	defer s.globalMu.Unlock()

	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		s.logger.Warn().Str("job_name", name).Msg("Job not found")
		return
	}
	entry.isRunning = true
	handler := entry.handler
	s.jobMu.Unlock()

	s.logger.Info().Str("job_name", name).Msg("Job execution started")
	start := time.Now()

	err := common.SafeCall(s.logger, name, func() error {
		return handler(s.ctx)
	})

	completed := time.Now()
	s.jobMu.Lock()
	entry.isRunning = false
	entry.lastRun = &completed
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.jobMu.Unlock()

	if err != nil {
		s.logger.Error().
			Str("job_name", name).
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Job execution failed")
	} else {
		s.logger.Info().
			Str("job_name", name).
			Dur("duration", time.Since(start)).
			Msg("Job execution completed")
	}

	s.saveLastRun(name, completed)
}

func (s *Service) loadLastRun(name string) *time.Time {
	if s.kvStorage == nil {
		return nil
	}
	value, err := s.kvStorage.Get(context.Background(), lastRunKeyPrefix+name)
	if err != nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		s.logger.Warn().Str("job_name", name).Str("value", value).Msg("Ignoring malformed last run time")
		return nil
	}
	return &t
}

func (s *Service) saveLastRun(name string, t time.Time) {
	if s.kvStorage == nil {
		return
	}
	if err := s.kvStorage.Set(context.Background(), lastRunKeyPrefix+name, t.Format(time.RFC3339), "Last run of scheduled job "+name); err != nil {
		s.logger.Warn().Err(err).Str("job_name", name).Msg("Failed to persist job last run time")
	}
}
