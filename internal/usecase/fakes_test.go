package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CourtWatch/internal/domain"
	"CourtWatch/internal/normalize"
	"CourtWatch/internal/ports"
)

type fakeEntityRepo struct {
	mu       sync.Mutex
	nextID   int64
	entities map[int64]domain.Entity
	checked  []int64
	byIDErr  error
}

func newFakeEntityRepo() *fakeEntityRepo {
	return &fakeEntityRepo{entities: map[int64]domain.Entity{}}
}

func (f *fakeEntityRepo) add(entity domain.Entity) domain.Entity {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entity.ID == 0 {
		f.nextID++
		entity.ID = f.nextID
	} else if entity.ID > f.nextID {
		f.nextID = entity.ID
	}
	f.entities[entity.ID] = entity
	return entity
}

func (f *fakeEntityRepo) UpsertEntity(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	f.mu.Lock()
	for _, existing := range f.entities {
		if existing.Name == entity.Name && existing.NationalID == entity.NationalID {
			entity.ID = existing.ID
			f.entities[entity.ID] = entity
			f.mu.Unlock()
			return entity, nil
		}
	}
	f.mu.Unlock()
	return f.add(entity), nil
}

func (f *fakeEntityRepo) EntityByID(ctx context.Context, id int64) (*domain.Entity, error) {
	if f.byIDErr != nil {
		return nil, f.byIDErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	entity, ok := f.entities[id]
	if !ok {
		return nil, nil
	}
	return &entity, nil
}

func (f *fakeEntityRepo) ListEntities(ctx context.Context, activeOnly bool) ([]domain.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Entity
	for _, e := range f.entities {
		if activeOnly && !e.Active {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeEntityRepo) DeactivateEntity(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entity, ok := f.entities[id]
	if !ok || !entity.Active {
		return false, nil
	}
	entity.Active = false
	f.entities[id] = entity
	return true, nil
}

func (f *fakeEntityRepo) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, e := range f.entities {
		if e.Active && e.Expired(now) {
			e.Active = false
			f.entities[id] = e
			n++
		}
	}
	return n, nil
}

func (f *fakeEntityRepo) DueEntities(ctx context.Context, now time.Time, limit int) ([]domain.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []domain.Entity
	for _, e := range f.entities {
		if e.Due(now) && !e.Expired(now) && len(due) < limit {
			due = append(due, e)
		}
	}
	return due, nil
}

func (f *fakeEntityRepo) MarkChecked(ctx context.Context, id int64, now time.Time, interval time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entity, ok := f.entities[id]
	if !ok {
		return fmt.Errorf("entity %d not found", id)
	}
	next := now.Add(interval)
	entity.LastCheck = &now
	entity.NextCheck = &next
	f.entities[id] = entity
	f.checked = append(f.checked, id)
	return nil
}

func (f *fakeEntityRepo) RefreshRecordCount(ctx context.Context, entityID int64, referenceProcess string) (int, error) {
	return 0, nil
}

func (f *fakeEntityRepo) get(id int64) domain.Entity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entities[id]
}

type fakeRecordRepo struct {
	mu         sync.Mutex
	nextID     int64
	records    []domain.Record
	insertErr  error
	candidates []domain.OpportunityCandidate
	candErr    error
}

func (f *fakeRecordRepo) InsertRecordIfAbsent(ctx context.Context, rec domain.Record) (domain.Record, bool, error) {
	if f.insertErr != nil {
		return domain.Record{}, false, f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.records {
		if existing.Hash == rec.Hash {
			return existing, true, nil
		}
	}
	f.nextID++
	rec.ID = f.nextID
	rec.CreatedAt = time.Now()
	f.records = append(f.records, rec)
	return rec, false, nil
}

func (f *fakeRecordRepo) RecordsByEntity(ctx context.Context, entityID int64, limit int, excludeProcess string) ([]domain.ProcessGroup, error) {
	return nil, nil
}

func (f *fakeRecordRepo) OpportunityCandidates(ctx context.Context, since time.Time, limit int) ([]domain.OpportunityCandidate, error) {
	if f.candErr != nil {
		return nil, f.candErr
	}
	if len(f.candidates) > limit {
		return f.candidates[:limit], nil
	}
	return f.candidates, nil
}

func (f *fakeRecordRepo) stored() []domain.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Record(nil), f.records...)
}

type fakeAlertRepo struct {
	mu        sync.Mutex
	nextID    int64
	alerts    []domain.Alert
	delivered map[int64][]domain.Channel
	insertErr error
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{delivered: map[int64][]domain.Channel{}}
}

func (f *fakeAlertRepo) InsertAlert(ctx context.Context, alert domain.Alert) (domain.Alert, error) {
	if f.insertErr != nil {
		return domain.Alert{}, f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	alert.ID = f.nextID
	alert.CreatedAt = time.Now()
	f.alerts = append(f.alerts, alert)
	return alert, nil
}

func (f *fakeAlertRepo) OpportunityAlertExists(ctx context.Context, recordID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.alerts {
		if a.RecordID == recordID && a.Kind == domain.AlertCreditOpportunity {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAlertRepo) MarkAlertDelivered(ctx context.Context, alertID int64, channel domain.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered[alertID] = append(f.delivered[alertID], channel)
	return nil
}

func (f *fakeAlertRepo) ListAlerts(ctx context.Context, filter ports.AlertFilter) ([]domain.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Alert(nil), f.alerts...), nil
}

func (f *fakeAlertRepo) MarkAlertsRead(ctx context.Context, ids []int64, all bool) (int, error) {
	return 0, nil
}

func (f *fakeAlertRepo) CountUnread(ctx context.Context, entityID *int64, kind *domain.AlertKind) (int, error) {
	return 0, nil
}

func (f *fakeAlertRepo) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	return domain.DashboardStats{}, nil
}

func (f *fakeAlertRepo) all() []domain.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Alert(nil), f.alerts...)
}

type fakeSource struct {
	results []normalize.RawRecord
	err     error
	calls   int
}

func (f *fakeSource) Search(ctx context.Context, name, courtFilter string, maxPages int) ([]normalize.RawRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeNotifier struct {
	channel domain.Channel
	err     error
	mu      sync.Mutex
	sent    []domain.Record
}

func (f *fakeNotifier) Channel() domain.Channel { return f.channel }

func (f *fakeNotifier) Notify(ctx context.Context, entity domain.Entity, rec domain.Record) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, rec)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// inlineQueue runs submitted tasks synchronously, deduplicating nothing.
type inlineQueue struct {
	mu        sync.Mutex
	submitted []ports.Task
	run       bool
}

func (q *inlineQueue) Submit(ctx context.Context, task ports.Task, policy ports.TaskPolicy) bool {
	q.mu.Lock()
	q.submitted = append(q.submitted, task)
	run := q.run
	q.mu.Unlock()
	if run {
		_ = task.Run(ctx)
	}
	return true
}

func (q *inlineQueue) names() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	names := make([]string, 0, len(q.submitted))
	for _, task := range q.submitted {
		names = append(names, task.Name)
	}
	return names
}

type fakeVector struct {
	scores map[int64]float64
	err    error
	calls  int
}

func (f *fakeVector) Rerank(ctx context.Context, ids []int64, query string, threshold float64) (map[int64]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}
