package domain

import "time"

// Entity is a monitored party tracked by name across court gazettes.
type Entity struct {
	ID               int64
	Name             string
	NationalID       string
	CourtFilter      string
	Active           bool
	CheckInterval    time.Duration
	LastCheck        *time.Time
	NextCheck        *time.Time
	RecordCount      int
	ReferenceProcess string
	ExpiresAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Due reports whether the entity should be verified at the given instant.
// A nil NextCheck means "due now" (enrollment forces an immediate first pass).
func (e Entity) Due(now time.Time) bool {
	return e.Active && (e.NextCheck == nil || !e.NextCheck.After(now))
}

// Expired reports whether the monitoring window has closed.
func (e Entity) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}

// Record is one normalized publication observed for an entity.
// Records are immutable once stored; they remain as the dedup audit trail.
type Record struct {
	ID          int64
	EntityID    int64
	Hash        string
	SourceID    string
	Court       string
	Process     string
	Venue       string
	Kind        string
	Date        string
	Summary     string
	FullText    string
	Link        string
	Claimants   []string
	Respondents []string
	CreatedAt   time.Time
}

// AlertKind separates ordinary new-publication alerts from credit
// opportunities surfaced by the detector.
type AlertKind string

const (
	AlertNewPublication    AlertKind = "NEW_PUBLICATION"
	AlertCreditOpportunity AlertKind = "CREDIT_OPPORTUNITY"
)

// Channel names a notification transport for delivery bookkeeping.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelEmail    Channel = "email"
)

// Alert is a notification-worthy event tied to one record.
type Alert struct {
	ID                int64
	EntityID          int64
	RecordID          int64
	Kind              AlertKind
	Title             string
	Description       string
	Read              bool
	ReadAt            *time.Time
	DeliveredTelegram bool
	DeliveredEmail    bool
	CreatedAt         time.Time
}

// ProcessGroup bundles an entity's records sharing one process number,
// newest first, for presentation.
type ProcessGroup struct {
	Process string
	Court   string
	Records []Record
}

// OpportunityCandidate is a record that passed the keyword prefilter,
// joined with the owning entity for alert composition.
type OpportunityCandidate struct {
	Record     Record
	EntityName string
}

// DashboardStats summarizes the system for operator-facing views.
type DashboardStats struct {
	ActiveEntities int
	TotalRecords   int
	UnreadAlerts   int
	LastSync       *time.Time
}
