package usecase

import (
	"context"
	"log/slog"
	"time"

	"CourtWatch/internal/ports"
)

const TaskOpportunitySweep = "opportunity_sweep"

type SchedulerDeps struct {
	Entities     ports.EntityRepository
	Queue        ports.TaskQueue
	Monitor      *Monitor
	Detector     *Detector
	Driver       ports.TickDriver
	BatchSize    int
	VerifyPolicy ports.TaskPolicy
	SweepPolicy  ports.TaskPolicy
	Logger       *slog.Logger
}

// Scheduler walks the roster on every tick: it retires expired
// entities, kicks off the opportunity sweep and fans out one
// verification task per due entity.
type Scheduler struct {
	entities     ports.EntityRepository
	queue        ports.TaskQueue
	monitor      *Monitor
	detector     *Detector
	driver       ports.TickDriver
	batchSize    int
	verifyPolicy ports.TaskPolicy
	sweepPolicy  ports.TaskPolicy
	logger       *slog.Logger
}

func NewScheduler(deps SchedulerDeps) *Scheduler {
	return &Scheduler{
		entities:     deps.Entities,
		queue:        deps.Queue,
		monitor:      deps.Monitor,
		detector:     deps.Detector,
		driver:       deps.Driver,
		batchSize:    deps.BatchSize,
		verifyPolicy: deps.VerifyPolicy,
		sweepPolicy:  deps.SweepPolicy,
		logger:       deps.Logger,
	}
}

// Start attaches the scheduler to its tick driver.
func (s *Scheduler) Start(ctx context.Context) error {
	return s.driver.Start(ctx, func(now time.Time) {
		s.Tick(ctx, now)
	})
}

// Stop detaches from the tick driver. In-flight tasks keep running.
func (s *Scheduler) Stop(ctx context.Context) error {
	return s.driver.Stop(ctx)
}

// Tick runs one scheduling pass. It is also called directly for a
// forced resync. A tick never fails: each stage logs its own errors so
// a broken stage cannot starve the others.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	expired, err := s.entities.DeactivateExpired(ctx, now)
	if err != nil {
		s.logger.Error("failed to deactivate expired entities", slog.String("error", err.Error()))
	} else if expired > 0 {
		s.logger.Info("deactivated expired entities", slog.Int("count", expired))
	}

	s.queue.Submit(ctx, ports.Task{
		Name: TaskOpportunitySweep,
		Key:  0,
		Run: func(ctx context.Context) error {
			created, err := s.detector.Sweep(ctx)
			if err != nil {
				return err
			}
			if created > 0 {
				s.logger.Info("opportunity sweep complete", slog.Int("alerts", created))
			}
			return nil
		},
	}, s.sweepPolicy)

	due, err := s.entities.DueEntities(ctx, now, s.batchSize)
	if err != nil {
		s.logger.Error("failed to list due entities", slog.String("error", err.Error()))
		return
	}
	if len(due) == 0 {
		s.logger.Debug("no entities due")
		return
	}

	submitted := 0
	for _, entity := range due {
		id := entity.ID
		accepted := s.queue.Submit(ctx, ports.Task{
			Name: TaskVerify,
			Key:  id,
			Run: func(ctx context.Context) error {
				return s.monitor.RunVerifyTask(ctx, id)
			},
		}, s.verifyPolicy)
		if accepted {
			submitted++
		}
	}
	s.logger.Info("scheduler tick",
		slog.Int("due", len(due)),
		slog.Int("submitted", submitted))
}
