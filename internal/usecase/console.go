package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"CourtWatch/internal/domain"
	"CourtWatch/internal/ports"
)

type ConsoleDeps struct {
	Entities ports.EntityRepository
	Records  ports.RecordRepository
	Alerts   ports.AlertRepository
	Logger   *slog.Logger
}

// Console exposes the operator-facing read and bookkeeping operations:
// entity roster, per-process record browsing, alert triage and the
// dashboard counters.
type Console struct {
	entities ports.EntityRepository
	records  ports.RecordRepository
	alerts   ports.AlertRepository
	logger   *slog.Logger
}

func NewConsole(deps ConsoleDeps) *Console {
	return &Console{
		entities: deps.Entities,
		records:  deps.Records,
		alerts:   deps.Alerts,
		logger:   deps.Logger,
	}
}

func (c *Console) Entities(ctx context.Context, activeOnly bool) ([]domain.Entity, error) {
	entities, err := c.entities.ListEntities(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return entities, nil
}

func (c *Console) Deactivate(ctx context.Context, entityID int64) error {
	ok, err := c.entities.DeactivateEntity(ctx, entityID)
	if err != nil {
		return fmt.Errorf("deactivate entity %d: %w", entityID, err)
	}
	if !ok {
		return fmt.Errorf("entity %d not found", entityID)
	}
	c.logger.Info("entity deactivated", slog.Int64("entity_id", entityID))
	return nil
}

// EntityRecords returns the entity's publications grouped by process
// number. Publications of the entity's own reference process are
// filtered out of the view, matching the alerting rules.
func (c *Console) EntityRecords(ctx context.Context, entityID int64, limit int) ([]domain.ProcessGroup, error) {
	entity, err := c.entities.EntityByID(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("load entity %d: %w", entityID, err)
	}
	if entity == nil {
		return nil, fmt.Errorf("entity %d not found", entityID)
	}
	groups, err := c.records.RecordsByEntity(ctx, entityID, limit, entity.ReferenceProcess)
	if err != nil {
		return nil, fmt.Errorf("list records for entity %d: %w", entityID, err)
	}
	return groups, nil
}

func (c *Console) Alerts(ctx context.Context, filter ports.AlertFilter) ([]domain.Alert, error) {
	alerts, err := c.alerts.ListAlerts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

// MarkRead flags the given alerts as read; with all set, every unread
// alert is flagged instead. Returns the number of alerts updated.
func (c *Console) MarkRead(ctx context.Context, ids []int64, all bool) (int, error) {
	n, err := c.alerts.MarkAlertsRead(ctx, ids, all)
	if err != nil {
		return 0, fmt.Errorf("mark alerts read: %w", err)
	}
	return n, nil
}

func (c *Console) UnreadCount(ctx context.Context, entityID *int64, kind *domain.AlertKind) (int, error) {
	n, err := c.alerts.CountUnread(ctx, entityID, kind)
	if err != nil {
		return 0, fmt.Errorf("count unread alerts: %w", err)
	}
	return n, nil
}

func (c *Console) Dashboard(ctx context.Context) (domain.DashboardStats, error) {
	stats, err := c.alerts.DashboardStats(ctx)
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("dashboard stats: %w", err)
	}
	return stats, nil
}
