package ports

import (
	"context"
	"time"

	"CourtWatch/internal/domain"
	"CourtWatch/internal/normalize"
)

// RecordSource pulls today's publications for a party name from an upstream
// gazette service. Implementations paginate internally up to maxPages and
// return a flat list.
type RecordSource interface {
	Search(ctx context.Context, name, courtFilter string, maxPages int) ([]normalize.RawRecord, error)
}

// EntityRepository persists monitored entities and drives due-entity
// selection.
type EntityRepository interface {
	UpsertEntity(ctx context.Context, entity domain.Entity) (domain.Entity, error)
	EntityByID(ctx context.Context, id int64) (*domain.Entity, error)
	ListEntities(ctx context.Context, activeOnly bool) ([]domain.Entity, error)
	DeactivateEntity(ctx context.Context, id int64) (bool, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)
	DueEntities(ctx context.Context, now time.Time, limit int) ([]domain.Entity, error)
	MarkChecked(ctx context.Context, id int64, now time.Time, interval time.Duration) error
	RefreshRecordCount(ctx context.Context, entityID int64, referenceProcess string) (int, error)
}

// RecordRepository stores ingested records with hash-keyed deduplication.
type RecordRepository interface {
	// InsertRecordIfAbsent stores the record unless its hash already exists.
	// The second return reports "already existed"; a constraint hit under
	// concurrent ingestion is folded into it, never surfaced as an error.
	InsertRecordIfAbsent(ctx context.Context, rec domain.Record) (domain.Record, bool, error)
	RecordsByEntity(ctx context.Context, entityID int64, limit int, excludeProcess string) ([]domain.ProcessGroup, error)
	OpportunityCandidates(ctx context.Context, since time.Time, limit int) ([]domain.OpportunityCandidate, error)
}

// AlertFilter narrows alert listings.
type AlertFilter struct {
	EntityID *int64
	Read     *bool
	Kind     *domain.AlertKind
	Limit    int
	Offset   int
}

// AlertRepository stores alerts and their read/delivery bookkeeping.
type AlertRepository interface {
	InsertAlert(ctx context.Context, alert domain.Alert) (domain.Alert, error)
	OpportunityAlertExists(ctx context.Context, recordID int64) (bool, error)
	MarkAlertDelivered(ctx context.Context, alertID int64, channel domain.Channel) error
	ListAlerts(ctx context.Context, filter AlertFilter) ([]domain.Alert, error)
	MarkAlertsRead(ctx context.Context, ids []int64, all bool) (int, error)
	CountUnread(ctx context.Context, entityID *int64, kind *domain.AlertKind) (int, error)
	DashboardStats(ctx context.Context) (domain.DashboardStats, error)
}

// Notifier delivers one occurrence through a single outbound channel.
// Each channel is invoked independently; a failure never propagates.
type Notifier interface {
	Channel() domain.Channel
	Notify(ctx context.Context, entity domain.Entity, rec domain.Record) error
}

// VectorSearch scores candidate records against a query text. Only IDs at or
// above the threshold appear in the result; absence means "filtered out".
type VectorSearch interface {
	Rerank(ctx context.Context, ids []int64, query string, threshold float64) (map[int64]float64, error)
}

// Task is an independent unit of work keyed for in-flight deduplication.
type Task struct {
	Name string
	Key  int64
	Run  func(ctx context.Context) error
}

// TaskPolicy bounds a task's execution: attempts beyond the first are
// retries, each attempt runs under TimeLimit, and retries are separated by
// exponential backoff clamped to [MinBackoff, MaxBackoff].
type TaskPolicy struct {
	MaxRetries int
	MinBackoff time.Duration
	MaxBackoff time.Duration
	TimeLimit  time.Duration
}

// TaskQueue accepts work units for bounded concurrent execution. Submit
// reports whether the task was accepted (false when an identical unit is
// already in flight).
type TaskQueue interface {
	Submit(ctx context.Context, task Task, policy TaskPolicy) bool
}

// TickDriver fires the scheduler job on a fixed cadence.
type TickDriver interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
