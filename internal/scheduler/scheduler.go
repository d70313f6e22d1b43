// Package scheduler runs persisted background jobs on cron schedules:
// periodic summarization, skill registry refresh, and agent-card cache
// maintenance.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one schedulable unit of work.
type Job struct {
	Name     string
	CronExpr string
	Run      func(ctx context.Context) error
}

// Scheduler executes registered jobs on their cron schedules and
// records last-run timestamps in the scheduled_jobs table.
type Scheduler struct {
	db   *sql.DB
	cron *cron.Cron

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

// New creates a stopped scheduler over the shared database handle.
func New(db *sql.DB) *Scheduler {
	return &Scheduler{
		db:   db,
		cron: cron.New(),
		jobs: make(map[string]cron.EntryID),
	}
}

// Register adds a job and persists its schedule.
func (s *Scheduler) Register(ctx context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("scheduler: job %s already registered", job.Name)
	}

	id, err := s.cron.AddFunc(job.CronExpr, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := job.Run(runCtx); err != nil {
			slog.Warn("scheduled job failed", "job", job.Name, "error", err)
			return
		}
		s.recordRun(runCtx, job.Name)
	})
	if err != nil {
		return fmt.Errorf("scheduler: register %s: %w", job.Name, err)
	}
	s.jobs[job.Name] = id

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (name, cron_expr) VALUES (?, ?)
		 ON CONFLICT (name) DO UPDATE SET cron_expr = excluded.cron_expr`,
		job.Name, job.CronExpr)
	if err != nil {
		return fmt.Errorf("scheduler: persist %s: %w", job.Name, err)
	}
	return nil
}

func (s *Scheduler) recordRun(ctx context.Context, name string) {
	_, err := s.db.ExecContext(ctx,
		"UPDATE scheduled_jobs SET last_run = CURRENT_TIMESTAMP WHERE name = ?", name)
	if err != nil {
		slog.Debug("last_run not recorded", "job", name, "error", err)
	}
}

// Start begins executing schedules.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
