package cron

import "time"

// JobFunc is the work a scheduled job performs.
type JobFunc func() error

// JobState is the runtime state of a job.
type JobState struct {
	NextRunAt  time.Time `json:"nextRunAt,omitempty"`
	LastRunAt  time.Time `json:"lastRunAt,omitempty"`
	LastStatus string    `json:"lastStatus,omitempty"` // ok, error
	LastError  string    `json:"lastError,omitempty"`
}

// Job is a scheduled job as reported by ListJobs.
type Job struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	State     JobState  `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
}
