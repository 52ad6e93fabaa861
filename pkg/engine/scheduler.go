package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vowflow/journey/pkg/collaborators"
	"github.com/vowflow/journey/pkg/models"
	"github.com/vowflow/journey/pkg/persistence"
)

// SchedulerConfig tunes the temporal passes.
type SchedulerConfig struct {
	// ResumeSchedule is the cron cadence of the resume pass.
	ResumeSchedule string
	// DateSchedule is the cron cadence of the date-trigger pass.
	DateSchedule string
	// Workers bounds concurrent instance resumptions per pass.
	Workers int
}

// DefaultSchedulerConfig resumes every minute and re-evaluates date triggers
// once a day, early morning UTC.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		ResumeSchedule: "* * * * *",
		DateSchedule:   "0 6 * * *",
		Workers:        16,
	}
}

// Scheduler is the centralized temporal component. It claims due wakeup
// records and re-drives the owning instances, and it synthesizes date-based
// trigger events from the subject directory.
//
// Claiming is atomic: a claimed record is consumed even when the subsequent
// resume fails, so a wakeup fires at most once.
type Scheduler struct {
	logger       *slog.Logger
	persistence  persistence.Persistence
	orchestrator *Orchestrator
	subjects     collaborators.SubjectDirectory
	config       SchedulerConfig
	cron         *cron.Cron
	now          func() time.Time
	started      bool
	mu           sync.Mutex
}

func NewScheduler(
	logger *slog.Logger,
	store persistence.Persistence,
	orchestrator *Orchestrator,
	subjects collaborators.SubjectDirectory,
	config SchedulerConfig,
) *Scheduler {
	if config.Workers <= 0 {
		config.Workers = DefaultSchedulerConfig().Workers
	}

	return &Scheduler{
		logger:       logger.With("module", "scheduler"),
		persistence:  store,
		orchestrator: orchestrator,
		subjects:     subjects,
		config:       config,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Start registers both passes and begins ticking. Idempotent.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.cron = cron.New()

	if _, err := s.cron.AddFunc(s.config.ResumeSchedule, func() { s.ResumePass(ctx) }); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(s.config.DateSchedule, func() { s.DateTriggerPass(ctx) }); err != nil {
		return err
	}

	s.cron.Start()
	s.started = true

	s.logger.Info("Scheduler started",
		"resume_schedule", s.config.ResumeSchedule,
		"date_schedule", s.config.DateSchedule,
		"workers", s.config.Workers)

	return nil
}

// Stop halts the cron loop and waits for running passes to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	stopCtx := s.cron.Stop()

	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}

	s.started = false
	s.logger.Info("Scheduler stopped")

	return nil
}

// ResumePass claims every due wakeup record and resumes the owning
// instances through a bounded worker pool. Failures are per-item: one broken
// instance never blocks the rest of the batch.
func (s *Scheduler) ResumePass(ctx context.Context) {
	due, err := s.persistence.ScheduledWork().ClaimDue(ctx, models.WorkKindResumeInstance, s.now())
	if err != nil {
		s.logger.Error("Failed to claim due work", "error", err)

		return
	}

	if len(due) == 0 {
		return
	}

	s.logger.Info("Resuming due instances", "count", len(due))

	var wg sync.WaitGroup

	slots := make(chan struct{}, s.config.Workers)

	for _, work := range due {
		wg.Add(1)
		slots <- struct{}{}

		go func(work *models.ScheduledWork) {
			defer wg.Done()
			defer func() { <-slots }()

			if err := s.orchestrator.Resume(ctx, work); err != nil {
				s.logger.Error("Failed to resume instance",
					"instance_id", work.InstanceID, "work_id", work.ID, "error", err)
			}
		}(work)
	}

	wg.Wait()
}

// DateTriggerPass synthesizes date-based trigger events for every subject
// carrying a reference date. Window filtering happens in the matcher; the
// enrollment guard absorbs re-emissions for subjects already enrolled.
func (s *Scheduler) DateTriggerPass(ctx context.Context) {
	if s.subjects == nil {
		return
	}

	subjects, err := s.subjects.SubjectsWithReferenceDate(ctx)
	if err != nil {
		s.logger.Error("Failed to list subjects for date triggers", "error", err)

		return
	}

	s.logger.Info("Re-evaluating date-based triggers", "subjects", len(subjects))

	var wg sync.WaitGroup

	slots := make(chan struct{}, s.config.Workers)

	for _, subject := range subjects {
		if subject.ReferenceDate == nil {
			continue
		}

		wg.Add(1)
		slots <- struct{}{}

		go func(subject *collaborators.Subject) {
			defer wg.Done()
			defer func() { <-slots }()

			event := models.NewTriggerEvent(subject.ID, models.TriggerTypeDateBased, map[string]any{})
			event.ReferenceDate = subject.ReferenceDate

			if err := s.orchestrator.OnTrigger(ctx, event); err != nil {
				s.logger.Error("Date trigger evaluation failed",
					"subject_id", subject.ID, "error", err)
			}
		}(subject)
	}

	wg.Wait()
}
