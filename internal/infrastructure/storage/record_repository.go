package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"CourtWatch/internal/domain"
	"CourtWatch/internal/normalize"
	"CourtWatch/internal/ports"
)

const recordColumns = `id, entity_id, hash, source_id, court, process, venue, kind,
	pub_date, summary, full_text, link, claimants, respondents, created_at`

// RecordRepository persists normalized publications in Postgres.
type RecordRepository struct {
	db *sql.DB
}

var _ ports.RecordRepository = (*RecordRepository)(nil)

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// InsertRecordIfAbsent stores the record unless its hash is already present.
// The hash is globally unique: a publication observed for a second entity is
// a no-op, not a second row. A conflict, including one raced in by a
// concurrent verification, returns the stored row with existed=true.
func (r *RecordRepository) InsertRecordIfAbsent(ctx context.Context, rec domain.Record) (domain.Record, bool, error) {
	query := `INSERT INTO records
			(entity_id, hash, source_id, court, process, venue, kind,
			 pub_date, summary, full_text, link, claimants, respondents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (hash) DO NOTHING
		RETURNING ` + recordColumns

	row := r.db.QueryRowContext(ctx, query,
		rec.EntityID,
		rec.Hash,
		rec.SourceID,
		rec.Court,
		rec.Process,
		rec.Venue,
		rec.Kind,
		rec.Date,
		rec.Summary,
		rec.FullText,
		rec.Link,
		pq.StringArray(rec.Claimants),
		pq.StringArray(rec.Respondents),
	)
	saved, err := scanRecord(row)
	if err == nil {
		return saved, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) && !isUniqueViolation(err) {
		return domain.Record{}, false, fmt.Errorf("insert record: %w", err)
	}

	existing := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE hash = $1`,
		rec.Hash)
	saved, err = scanRecord(existing)
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("select existing record: %w", err)
	}
	return saved, true, nil
}

// RecordsByEntity returns the entity's newest publications grouped by
// process number, in order of each process's most recent publication.
// Publications of the excluded process are left out of the view.
func (r *RecordRepository) RecordsByEntity(ctx context.Context, entityID int64, limit int, excludeProcess string) ([]domain.ProcessGroup, error) {
	qb := builder.Select(recordColumns).
		From("records").
		Where(sq.Eq{"entity_id": entityID}).
		OrderBy("pub_date DESC", "created_at DESC", "id DESC").
		Limit(uint64(limit))
	if digits := normalize.ProcessDigits(excludeProcess); digits != "" {
		qb = qb.Where(`regexp_replace(process, '\D', '', 'g') <> ?`, digits)
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build records query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var (
		groups  []domain.ProcessGroup
		indexes = map[string]int{}
	)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		key := normalize.ProcessDigits(rec.Process)
		if key == "" {
			key = rec.Process
		}
		idx, ok := indexes[key]
		if !ok {
			idx = len(groups)
			indexes[key] = idx
			groups = append(groups, domain.ProcessGroup{Process: rec.Process, Court: rec.Court})
		}
		groups[idx].Records = append(groups[idx].Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return groups, nil
}

// OpportunityCandidates returns recent records of active entities whose text
// matches any financial-release phrase group and that have no opportunity
// alert yet, joined with the owning entity's name.
func (r *RecordRepository) OpportunityCandidates(ctx context.Context, since time.Time, limit int) ([]domain.OpportunityCandidate, error) {
	query, args, err := opportunityCandidatesQuery(since, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidates query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var candidates []domain.OpportunityCandidate
	for rows.Next() {
		var (
			rec  domain.Record
			name string
		)
		var claimants, respondents pq.StringArray
		err := rows.Scan(
			&rec.ID, &rec.EntityID, &rec.Hash, &rec.SourceID, &rec.Court,
			&rec.Process, &rec.Venue, &rec.Kind, &rec.Date, &rec.Summary,
			&rec.FullText, &rec.Link, &claimants, &respondents, &rec.CreatedAt,
			&name,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		rec.Claimants = claimants
		rec.Respondents = respondents
		candidates = append(candidates, domain.OpportunityCandidate{Record: rec, EntityName: name})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return candidates, nil
}

func opportunityCandidatesQuery(since time.Time, limit int) sq.SelectBuilder {
	return builder.Select(
		`r.id, r.entity_id, r.hash, r.source_id, r.court, r.process, r.venue, r.kind,
		 r.pub_date, r.summary, r.full_text, r.link, r.claimants, r.respondents, r.created_at,
		 e.name`).
		From("records r").
		Join("entities e ON e.id = r.entity_id").
		Where("e.active").
		Where(sq.GtOrEq{"r.created_at": since}).
		Where(`(regexp_replace(e.reference_process, '\D', '', 'g') = ''
			OR regexp_replace(r.process, '\D', '', 'g') <> regexp_replace(e.reference_process, '\D', '', 'g'))`).
		Where(phraseFilter()).
		Where(`NOT EXISTS (
			SELECT 1 FROM alerts a
			WHERE a.record_id = r.id AND a.kind = 'CREDIT_OPPORTUNITY')`).
		OrderBy("r.created_at DESC").
		Limit(uint64(limit))
}

// phraseFilter builds one disjunct per phrase clause: the record matches
// when its full text contains every phrase of some clause.
func phraseFilter() sq.Or {
	var filter sq.Or
	for _, group := range normalize.OpportunityPatterns {
		for _, clause := range group.Clauses {
			var conj sq.And
			for _, phrase := range clause {
				conj = append(conj, sq.ILike{"r.full_text": "%" + phrase + "%"})
			}
			filter = append(filter, conj)
		}
	}
	return filter
}

func scanRecord(row rowScanner) (domain.Record, error) {
	var (
		rec         domain.Record
		claimants   pq.StringArray
		respondents pq.StringArray
	)
	err := row.Scan(
		&rec.ID,
		&rec.EntityID,
		&rec.Hash,
		&rec.SourceID,
		&rec.Court,
		&rec.Process,
		&rec.Venue,
		&rec.Kind,
		&rec.Date,
		&rec.Summary,
		&rec.FullText,
		&rec.Link,
		&claimants,
		&respondents,
		&rec.CreatedAt,
	)
	if err != nil {
		return domain.Record{}, err
	}
	rec.Claimants = claimants
	rec.Respondents = respondents
	return rec, nil
}
