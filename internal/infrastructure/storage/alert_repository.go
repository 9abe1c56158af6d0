package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"CourtWatch/internal/domain"
	"CourtWatch/internal/ports"
)

const alertColumns = `id, entity_id, record_id, kind, title, description,
	is_read, read_at, delivered_telegram, delivered_email, created_at`

// AlertRepository persists alerts and their read/delivery bookkeeping.
type AlertRepository struct {
	db *sql.DB
}

var _ ports.AlertRepository = (*AlertRepository)(nil)

func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) InsertAlert(ctx context.Context, alert domain.Alert) (domain.Alert, error) {
	query := `INSERT INTO alerts (entity_id, record_id, kind, title, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + alertColumns

	row := r.db.QueryRowContext(ctx, query,
		alert.EntityID,
		alert.RecordID,
		alert.Kind,
		alert.Title,
		alert.Description,
	)
	saved, err := scanAlert(row)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	return saved, nil
}

func (r *AlertRepository) OpportunityAlertExists(ctx context.Context, recordID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM alerts WHERE record_id = $1 AND kind = $2)`,
		recordID, domain.AlertCreditOpportunity).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check opportunity alert: %w", err)
	}
	return exists, nil
}

func (r *AlertRepository) MarkAlertDelivered(ctx context.Context, alertID int64, channel domain.Channel) error {
	var column string
	switch channel {
	case domain.ChannelTelegram:
		column = "delivered_telegram"
	case domain.ChannelEmail:
		column = "delivered_email"
	default:
		return fmt.Errorf("unknown channel %q", channel)
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET `+column+` = TRUE WHERE id = $1`, alertID)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

func (r *AlertRepository) ListAlerts(ctx context.Context, filter ports.AlertFilter) ([]domain.Alert, error) {
	qb := builder.Select(alertColumns).From("alerts").OrderBy("created_at DESC", "id DESC")
	if filter.EntityID != nil {
		qb = qb.Where(sq.Eq{"entity_id": *filter.EntityID})
	}
	if filter.Read != nil {
		qb = qb.Where(sq.Eq{"is_read": *filter.Read})
	}
	if filter.Kind != nil {
		qb = qb.Where(sq.Eq{"kind": *filter.Kind})
	}
	if filter.Limit > 0 {
		qb = qb.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		qb = qb.Offset(uint64(filter.Offset))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build alerts query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return alerts, nil
}

// MarkAlertsRead flags the given alerts as read, or every unread alert
// when all is set. Returns the number of alerts flagged.
func (r *AlertRepository) MarkAlertsRead(ctx context.Context, ids []int64, all bool) (int, error) {
	qb := builder.Update("alerts").
		Set("is_read", true).
		Set("read_at", sq.Expr("NOW()")).
		Where("NOT is_read")
	if !all {
		if len(ids) == 0 {
			return 0, nil
		}
		qb = qb.Where(sq.Eq{"id": ids})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build mark-read query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark alerts read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (r *AlertRepository) CountUnread(ctx context.Context, entityID *int64, kind *domain.AlertKind) (int, error) {
	qb := builder.Select("COUNT(*)").From("alerts").Where("NOT is_read")
	if entityID != nil {
		qb = qb.Where(sq.Eq{"entity_id": *entityID})
	}
	if kind != nil {
		qb = qb.Where(sq.Eq{"kind": *kind})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build unread query: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (r *AlertRepository) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	var stats domain.DashboardStats
	err := r.db.QueryRowContext(ctx, `SELECT
			(SELECT COUNT(*) FROM entities WHERE active),
			(SELECT COUNT(*) FROM records),
			(SELECT COUNT(*) FROM alerts WHERE NOT is_read),
			(SELECT MAX(last_check) FROM entities)`).
		Scan(&stats.ActiveEntities, &stats.TotalRecords, &stats.UnreadAlerts, &stats.LastSync)
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("dashboard stats: %w", err)
	}
	return stats, nil
}

func scanAlert(row rowScanner) (domain.Alert, error) {
	var alert domain.Alert
	err := row.Scan(
		&alert.ID,
		&alert.EntityID,
		&alert.RecordID,
		&alert.Kind,
		&alert.Title,
		&alert.Description,
		&alert.Read,
		&alert.ReadAt,
		&alert.DeliveredTelegram,
		&alert.DeliveredEmail,
		&alert.CreatedAt,
	)
	if err != nil {
		return domain.Alert{}, err
	}
	return alert, nil
}
