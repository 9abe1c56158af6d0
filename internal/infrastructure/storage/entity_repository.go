package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"CourtWatch/internal/domain"
	"CourtWatch/internal/normalize"
	"CourtWatch/internal/ports"
)

const entityColumns = `id, name, national_id, court_filter, active, check_interval_sec,
	last_check, next_check, record_count, reference_process, expires_at, created_at, updated_at`

// EntityRepository persists monitored entities in Postgres.
type EntityRepository struct {
	db *sql.DB
}

var _ ports.EntityRepository = (*EntityRepository)(nil)

func NewEntityRepository(db *sql.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

// UpsertEntity inserts the entity or, when (name, national_id) is already
// enrolled, reactivates it with the new settings.
func (r *EntityRepository) UpsertEntity(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	query := `INSERT INTO entities
			(name, national_id, court_filter, active, check_interval_sec,
			 next_check, reference_process, expires_at)
		VALUES ($1, $2, $3, TRUE, $4, $5, $6, $7)
		ON CONFLICT (name, national_id) DO UPDATE
		SET court_filter = EXCLUDED.court_filter,
			active = TRUE,
			check_interval_sec = EXCLUDED.check_interval_sec,
			next_check = EXCLUDED.next_check,
			reference_process = EXCLUDED.reference_process,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
		RETURNING ` + entityColumns

	row := r.db.QueryRowContext(ctx, query,
		entity.Name,
		entity.NationalID,
		entity.CourtFilter,
		int64(entity.CheckInterval/time.Second),
		entity.NextCheck,
		entity.ReferenceProcess,
		entity.ExpiresAt,
	)
	saved, err := scanEntity(row)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("upsert entity: %w", err)
	}
	return saved, nil
}

func (r *EntityRepository) EntityByID(ctx context.Context, id int64) (*domain.Entity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = $1`, id)
	entity, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select entity: %w", err)
	}
	return &entity, nil
}

func (r *EntityRepository) ListEntities(ctx context.Context, activeOnly bool) ([]domain.Entity, error) {
	qb := builder.Select(entityColumns).From("entities").OrderBy("name ASC")
	if activeOnly {
		qb = qb.Where("active")
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var entities []domain.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return entities, nil
}

func (r *EntityRepository) DeactivateEntity(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE entities SET active = FALSE, updated_at = NOW() WHERE id = $1 AND active`, id)
	if err != nil {
		return false, fmt.Errorf("deactivate entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// DeactivateExpired retires every active entity whose monitoring window
// has closed, returning how many were retired.
func (r *EntityRepository) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE entities SET active = FALSE, updated_at = NOW()
		 WHERE active AND expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// DueEntities returns active entities whose next check is unset or in the
// past, oldest first so never-checked entities go to the front of the line.
func (r *EntityRepository) DueEntities(ctx context.Context, now time.Time, limit int) ([]domain.Entity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities
		 WHERE active
		   AND (next_check IS NULL OR next_check <= $1)
		   AND (expires_at IS NULL OR expires_at >= $1)
		 ORDER BY next_check ASC NULLS FIRST
		 LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due entities: %w", err)
	}
	defer rows.Close()

	var entities []domain.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return entities, nil
}

func (r *EntityRepository) MarkChecked(ctx context.Context, id int64, now time.Time, interval time.Duration) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE entities SET last_check = $2, next_check = $3, updated_at = NOW() WHERE id = $1`,
		id, now, now.Add(interval))
	if err != nil {
		return fmt.Errorf("mark checked: %w", err)
	}
	return nil
}

// RefreshRecordCount recounts the entity's stored publications, skipping
// those of the reference process, and stores the result.
func (r *EntityRepository) RefreshRecordCount(ctx context.Context, entityID int64, referenceProcess string) (int, error) {
	qb := builder.Select("COUNT(*)").From("records").Where(sq.Eq{"entity_id": entityID})
	if digits := normalize.ProcessDigits(referenceProcess); digits != "" {
		qb = qb.Where(`regexp_replace(process, '\D', '', 'g') <> ?`, digits)
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE entities SET record_count = $2, updated_at = NOW() WHERE id = $1`,
		entityID, count); err != nil {
		return 0, fmt.Errorf("store record count: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (domain.Entity, error) {
	var (
		entity      domain.Entity
		intervalSec int64
	)
	err := row.Scan(
		&entity.ID,
		&entity.Name,
		&entity.NationalID,
		&entity.CourtFilter,
		&entity.Active,
		&intervalSec,
		&entity.LastCheck,
		&entity.NextCheck,
		&entity.RecordCount,
		&entity.ReferenceProcess,
		&entity.ExpiresAt,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
	if err != nil {
		return domain.Entity{}, err
	}
	entity.CheckInterval = time.Duration(intervalSec) * time.Second
	return entity, nil
}
