package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"CourtWatch/internal/domain"
	"CourtWatch/internal/normalize"
	"CourtWatch/internal/ports"
)

const opportunitySummaryChars = 300

type DetectorDeps struct {
	Records   ports.RecordRepository
	Alerts    ports.AlertRepository
	Entities  ports.EntityRepository
	Vector    ports.VectorSearch
	Notifiers []ports.Notifier
	Window    time.Duration
	Limit     int
	Threshold float64
	Query     string
	Logger    *slog.Logger
	Now       func() time.Time
}

// Detector finds records that signal a payable credit: a cheap keyword
// prefilter over recent records followed by a semantic rerank. When the
// rerank backend is down the detector fails open and alerts on every
// keyword candidate rather than staying silent.
type Detector struct {
	records   ports.RecordRepository
	alerts    ports.AlertRepository
	entities  ports.EntityRepository
	vector    ports.VectorSearch
	notifiers []ports.Notifier
	window    time.Duration
	limit     int
	threshold float64
	query     string
	logger    *slog.Logger
	now       func() time.Time
}

func NewDetector(deps DetectorDeps) *Detector {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Detector{
		records:   deps.Records,
		alerts:    deps.Alerts,
		entities:  deps.Entities,
		vector:    deps.Vector,
		notifiers: deps.Notifiers,
		window:    deps.Window,
		limit:     deps.Limit,
		threshold: deps.Threshold,
		query:     deps.Query,
		logger:    deps.Logger,
		now:       now,
	}
}

// Sweep scans the recent window for credit opportunities and raises at
// most one CREDIT_OPPORTUNITY alert per record. It returns the number
// of alerts created.
func (d *Detector) Sweep(ctx context.Context) (int, error) {
	since := d.now().Add(-d.window)
	candidates, err := d.records.OpportunityCandidates(ctx, since, d.limit)
	if err != nil {
		return 0, fmt.Errorf("list opportunity candidates: %w", err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	scores := d.rerank(ctx, candidates)

	created := 0
	for _, cand := range candidates {
		score, ok := scores[cand.Record.ID]
		if !ok {
			continue
		}
		exists, err := d.alerts.OpportunityAlertExists(ctx, cand.Record.ID)
		if err != nil {
			return created, fmt.Errorf("check existing opportunity alert: %w", err)
		}
		if exists {
			continue
		}

		label := normalize.DetectPattern(cand.Record.FullText)
		alert, err := d.alerts.InsertAlert(ctx, domain.Alert{
			EntityID:    cand.Record.EntityID,
			RecordID:    cand.Record.ID,
			Kind:        domain.AlertCreditOpportunity,
			Title:       fmt.Sprintf("Oportunidade: %s | %s", label, cand.Record.Court),
			Description: fmt.Sprintf("%s — %s", cand.EntityName, normalize.Excerpt(cand.Record.FullText, opportunitySummaryChars)),
		})
		if err != nil {
			return created, fmt.Errorf("store opportunity alert: %w", err)
		}
		d.logger.Info("credit opportunity detected",
			slog.Int64("record_id", cand.Record.ID),
			slog.String("pattern", label),
			slog.Float64("score", score))
		d.notify(ctx, cand, alert.ID)
		created++
	}
	return created, nil
}

// rerank scores the candidates semantically. On any backend failure
// every candidate passes with a zero score: a missed opportunity costs
// more than a spurious alert.
func (d *Detector) rerank(ctx context.Context, candidates []domain.OpportunityCandidate) map[int64]float64 {
	passAll := func() map[int64]float64 {
		scores := make(map[int64]float64, len(candidates))
		for _, c := range candidates {
			scores[c.Record.ID] = 0
		}
		return scores
	}
	if d.vector == nil {
		return passAll()
	}

	ids := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.Record.ID)
	}
	scores, err := d.vector.Rerank(ctx, ids, d.query, d.threshold)
	if err != nil {
		d.logger.Warn("semantic rerank unavailable, keeping all keyword candidates",
			slog.String("error", err.Error()))
		return passAll()
	}
	return scores
}

func (d *Detector) notify(ctx context.Context, cand domain.OpportunityCandidate, alertID int64) {
	entity, err := d.entities.EntityByID(ctx, cand.Record.EntityID)
	if err != nil || entity == nil {
		d.logger.Warn("skipping opportunity notification, entity unavailable",
			slog.Int64("entity_id", cand.Record.EntityID))
		return
	}
	for _, n := range d.notifiers {
		if err := n.Notify(ctx, *entity, cand.Record); err != nil {
			d.logger.Warn("opportunity notification failed",
				slog.String("channel", string(n.Channel())),
				slog.Int64("record_id", cand.Record.ID),
				slog.String("error", err.Error()))
			continue
		}
		if err := d.alerts.MarkAlertDelivered(ctx, alertID, n.Channel()); err != nil {
			d.logger.Warn("failed to mark opportunity alert delivered",
				slog.Int64("alert_id", alertID),
				slog.String("channel", string(n.Channel())),
				slog.String("error", err.Error()))
		}
	}
}
