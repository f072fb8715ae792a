package cron

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type entry struct {
	job     Job
	fn      JobFunc
	entryID cron.EntryID
}

// Service runs jobs on cron schedules. Schedules use the standard five
// field syntax plus descriptors such as "@every 10m".
type Service struct {
	cron    *cron.Cron
	logger  *zap.Logger
	entries map[string]*entry
	mu      sync.RWMutex
}

// NewService creates a new cron service.
func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cron:    cron.New(),
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Start starts the scheduler in its own goroutine.
func (s *Service) Start() {
	s.cron.Start()
	s.logger.Info("cron service started", zap.Int("jobs", len(s.ListJobs())))
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

// AddJob schedules fn under name. The schedule is validated immediately.
func (s *Service) AddJob(name, schedule string, fn JobFunc) (Job, error) {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return Job{}, fmt.Errorf("cron: parse schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e := &entry{
		job: Job{
			ID:        uuid.New().String()[:8],
			Name:      name,
			Schedule:  schedule,
			CreatedAt: now,
			State:     JobState{NextRunAt: sched.Next(now)},
		},
		fn: fn,
	}
	id := e.job.ID
	e.entryID = s.cron.Schedule(sched, cron.FuncJob(func() { s.RunJob(id) }))
	s.entries[id] = e

	return e.job, nil
}

// RemoveJob unschedules a job. It reports whether the job existed.
func (s *Service) RemoveJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	s.cron.Remove(e.entryID)
	delete(s.entries, id)
	return true
}

// ListJobs returns all jobs ordered by their next run.
func (s *Service) ListJobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]Job, 0, len(s.entries))
	for _, e := range s.entries {
		job := e.job
		if next := s.cron.Entry(e.entryID).Next; !next.IsZero() {
			job.State.NextRunAt = next
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].State.NextRunAt.Before(jobs[j].State.NextRunAt)
	})
	return jobs
}

// RunJob executes a job now, outside its schedule, and records the result.
// It reports whether the job exists.
func (s *Service) RunJob(id string) bool {
	s.mu.RLock()
	e, ok := s.entries[id]
	var (
		fn   JobFunc
		name string
	)
	if ok {
		fn = e.fn
		name = e.job.Name
	}
	s.mu.RUnlock()
	if !ok {
		return false
	}

	start := time.Now()
	err := s.execute(name, fn)

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.job.State.LastRunAt = start
		if err != nil {
			e.job.State.LastStatus = "error"
			e.job.State.LastError = err.Error()
		} else {
			e.job.State.LastStatus = "ok"
			e.job.State.LastError = ""
		}
	}
	return true
}

func (s *Service) execute(name string, fn JobFunc) (err error) {
	log := s.logger.With(zap.String("job", name))
	log.Debug("cron: executing job")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			log.Error("cron: job failed", zap.Error(err))
		}
	}()

	return fn()
}
