package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"CourtWatch/internal/domain"
	"CourtWatch/internal/normalize"
	"CourtWatch/internal/ports"
)

// Task names used for in-flight deduplication in the dispatch pool.
const (
	TaskVerify     = "verify_entity"
	TaskFirstCheck = "first_check"
)

// Publications issued by federal regional courts are out of scope and
// are dropped before storage.
const federalCourtPrefix = "TRF"

type MonitorDeps struct {
	Source           ports.RecordSource
	Entities         ports.EntityRepository
	Records          ports.RecordRepository
	Alerts           ports.AlertRepository
	Notifiers        []ports.Notifier
	Queue            ports.TaskQueue
	FirstCheckPolicy ports.TaskPolicy
	MaxPages         int
	DescriptionChars int
	DefaultInterval  time.Duration
	Logger           *slog.Logger
	Now              func() time.Time
}

// Monitor runs the per-entity verification cycle: fetch publications,
// store new ones, raise alerts and notify, then advance the schedule.
type Monitor struct {
	source           ports.RecordSource
	entities         ports.EntityRepository
	records          ports.RecordRepository
	alerts           ports.AlertRepository
	notifiers        []ports.Notifier
	queue            ports.TaskQueue
	firstCheckPolicy ports.TaskPolicy
	maxPages         int
	descriptionChars int
	defaultInterval  time.Duration
	logger           *slog.Logger
	now              func() time.Time
}

func NewMonitor(deps MonitorDeps) *Monitor {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		source:           deps.Source,
		entities:         deps.Entities,
		records:          deps.Records,
		alerts:           deps.Alerts,
		notifiers:        deps.Notifiers,
		queue:            deps.Queue,
		firstCheckPolicy: deps.FirstCheckPolicy,
		maxPages:         deps.MaxPages,
		descriptionChars: deps.DescriptionChars,
		defaultInterval:  deps.DefaultInterval,
		logger:           deps.Logger,
		now:              now,
	}
}

// Enroll registers an entity for monitoring and submits an immediate
// backfill check so its history is populated without waiting for the
// next scheduler tick.
func (m *Monitor) Enroll(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	if entity.CheckInterval <= 0 {
		entity.CheckInterval = m.defaultInterval
	}
	entity.Active = true
	now := m.now()
	entity.NextCheck = &now

	saved, err := m.entities.UpsertEntity(ctx, entity)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("enroll entity: %w", err)
	}

	id := saved.ID
	accepted := m.queue.Submit(ctx, ports.Task{
		Name: TaskFirstCheck,
		Key:  id,
		Run: func(ctx context.Context) error {
			return m.RunFirstCheck(ctx, id)
		},
	}, m.firstCheckPolicy)
	if !accepted {
		m.logger.Warn("first check already pending", slog.Int64("entity_id", id))
	}
	return saved, nil
}

// RunVerifyTask reloads the entity and runs a verification cycle.
// Missing or deactivated entities are skipped without error so stale
// tasks drain quietly.
func (m *Monitor) RunVerifyTask(ctx context.Context, entityID int64) error {
	entity, err := m.entities.EntityByID(ctx, entityID)
	if err != nil {
		return fmt.Errorf("load entity %d: %w", entityID, err)
	}
	if entity == nil || !entity.Active {
		m.logger.Debug("skipping verification for inactive entity", slog.Int64("entity_id", entityID))
		return nil
	}
	alerts, err := m.Verify(ctx, *entity)
	if err != nil {
		return err
	}
	m.logger.Info("entity verified",
		slog.String("entity", entity.Name),
		slog.Int("new_alerts", alerts))
	return nil
}

// RunFirstCheck reloads the entity and backfills its publication
// history without raising alerts.
func (m *Monitor) RunFirstCheck(ctx context.Context, entityID int64) error {
	entity, err := m.entities.EntityByID(ctx, entityID)
	if err != nil {
		return fmt.Errorf("load entity %d: %w", entityID, err)
	}
	if entity == nil || !entity.Active {
		return nil
	}
	stored, err := m.FirstCheck(ctx, *entity)
	if err != nil {
		return err
	}
	m.logger.Info("first check complete",
		slog.String("entity", entity.Name),
		slog.Int("stored", stored))
	return nil
}

// Verify fetches publications for the entity, stores unseen ones and
// raises an alert for each. It returns the number of alerts created.
// The next check time is always advanced, even when the cycle fails,
// so a persistently failing entity cannot monopolize the scheduler.
func (m *Monitor) Verify(ctx context.Context, entity domain.Entity) (alerts int, err error) {
	defer m.finishCheck(ctx, entity)
	return m.check(ctx, entity, true)
}

// FirstCheck stores the entity's current publications without alerting,
// returning the number of records stored.
func (m *Monitor) FirstCheck(ctx context.Context, entity domain.Entity) (stored int, err error) {
	defer m.finishCheck(ctx, entity)
	return m.check(ctx, entity, false)
}

func (m *Monitor) check(ctx context.Context, entity domain.Entity, alerting bool) (int, error) {
	raws := m.fetch(ctx, entity)

	count := 0
	for _, raw := range raws {
		rec := normalize.Normalize(entity.ID, raw)
		if strings.HasPrefix(strings.ToUpper(rec.Court), federalCourtPrefix) {
			continue
		}

		saved, existed, err := m.records.InsertRecordIfAbsent(ctx, rec)
		if err != nil {
			return count, fmt.Errorf("store record for entity %d: %w", entity.ID, err)
		}
		if existed {
			continue
		}
		if !alerting {
			count++
			continue
		}
		if normalize.SameProcess(saved.Process, entity.ReferenceProcess) {
			m.logger.Debug("reference process publication stored without alert",
				slog.Int64("entity_id", entity.ID),
				slog.String("process", saved.Process))
			continue
		}

		alert, err := m.alerts.InsertAlert(ctx, domain.Alert{
			EntityID:    entity.ID,
			RecordID:    saved.ID,
			Kind:        domain.AlertNewPublication,
			Title:       normalize.BuildTitle(saved),
			Description: normalize.BuildDescription(saved, m.descriptionChars),
		})
		if err != nil {
			return count, fmt.Errorf("store alert for entity %d: %w", entity.ID, err)
		}
		m.notify(ctx, entity, saved, alert.ID)
		count++
	}

	if _, err := m.entities.RefreshRecordCount(ctx, entity.ID, entity.ReferenceProcess); err != nil {
		return count, fmt.Errorf("refresh record count for entity %d: %w", entity.ID, err)
	}
	return count, nil
}

// fetch queries the publication source. Source failures are logged and
// treated as an empty result: a flaky upstream must not break the
// verification cycle.
func (m *Monitor) fetch(ctx context.Context, entity domain.Entity) []normalize.RawRecord {
	raws, err := m.source.Search(ctx, entity.Name, entity.CourtFilter, m.maxPages)
	if err != nil {
		m.logger.Warn("publication search failed",
			slog.String("entity", entity.Name),
			slog.String("error", err.Error()))
		return nil
	}
	return raws
}

// notify delivers the alerted record through every configured channel.
// Each channel fails independently; a delivery failure is logged and
// never propagated.
func (m *Monitor) notify(ctx context.Context, entity domain.Entity, rec domain.Record, alertID int64) {
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, entity, rec); err != nil {
			m.logger.Warn("notification failed",
				slog.String("channel", string(n.Channel())),
				slog.Int64("entity_id", entity.ID),
				slog.String("error", err.Error()))
			continue
		}
		if err := m.alerts.MarkAlertDelivered(ctx, alertID, n.Channel()); err != nil {
			m.logger.Warn("failed to mark alert delivered",
				slog.Int64("alert_id", alertID),
				slog.String("channel", string(n.Channel())),
				slog.String("error", err.Error()))
		}
	}
}

// finishCheck advances the entity's schedule regardless of how the
// cycle ended. It runs on a detached context so a timed-out attempt
// still gets its bookkeeping done.
func (m *Monitor) finishCheck(ctx context.Context, entity domain.Entity) {
	bg := context.WithoutCancel(ctx)
	if err := m.entities.MarkChecked(bg, entity.ID, m.now(), entity.CheckInterval); err != nil {
		m.logger.Error("failed to advance entity schedule",
			slog.Int64("entity_id", entity.ID),
			slog.String("error", err.Error()))
	}
}
