// Package watcher defines core types shared across the monitoring pipeline.
package watcher

import "time"

// Status represents the lifecycle state of a watcher.
type Status string

// Watcher status values persisted in the repository.
const (
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusError    Status = "error"
	StatusDisabled Status = "disabled"
)

// ErrorThreshold is the consecutive-failure count at which a watcher is
// flipped to StatusError and excluded from scheduling.
const ErrorThreshold = 5

// PriceRuleMode selects how a price rule compares snapshots.
type PriceRuleMode string

// Price rule modes.
const (
	PriceBelow  PriceRuleMode = "below"
	PriceAbove  PriceRuleMode = "above"
	PriceChange PriceRuleMode = "change"
)

// PriceRule describes a watcher's price alerting condition. Value is the
// threshold for below/above; Percent is the minimum |delta%| for change mode
// (nil means any change fires).
type PriceRule struct {
	Mode    PriceRuleMode `json:"mode"`
	Value   *float64      `json:"value,omitempty"`
	Percent *float64      `json:"percent,omitempty"`
}

// RuleSet is a watcher's alerting policy. Immutable for the duration of one
// check.
type RuleSet struct {
	Price       *PriceRule `json:"price,omitempty"`
	BackInStock bool       `json:"back_in_stock,omitempty"`
	Sizes       []string   `json:"sizes,omitempty"`
}

// Empty reports whether the rule set can never produce an alert.
func (r RuleSet) Empty() bool {
	return r.Price == nil && !r.BackInStock && len(r.Sizes) == 0
}

// ProductSnapshot is the normalized result of one successful parse. Price and
// InStock are pointers because "unknown" is distinct from zero/false.
type ProductSnapshot struct {
	Title     string    `json:"title,omitempty"`
	Price     *float64  `json:"price,omitempty"`
	Currency  string    `json:"currency,omitempty"`
	InStock   *bool     `json:"in_stock,omitempty"`
	Sizes     []string  `json:"sizes,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
}

// HasSize reports whether the snapshot lists the given size label.
func (s *ProductSnapshot) HasSize(label string) bool {
	if s == nil {
		return false
	}
	for _, l := range s.Sizes {
		if l == label {
			return true
		}
	}
	return false
}

// Watcher is one monitoring configuration. Owned by the external repository;
// the pipeline reads it at dispatch time and writes back a CheckOutcome.
type Watcher struct {
	ID           string           `json:"id"`
	Name         string           `json:"name,omitempty"`
	URL          string           `json:"url"`
	Domain       string           `json:"domain"`
	Rules        RuleSet          `json:"rules"`
	Interval     time.Duration    `json:"interval"`
	Status       Status           `json:"status"`
	LastCheckAt  *time.Time       `json:"last_check_at,omitempty"`
	LastAlertAt  *time.Time       `json:"last_alert_at,omitempty"`
	ErrorCount   int              `json:"error_count"`
	LastSnapshot *ProductSnapshot `json:"last_snapshot,omitempty"`
}

// AlertType labels the condition that produced an alert event.
type AlertType string

// Alert types emitted by the rule evaluator.
const (
	AlertPriceChange   AlertType = "price_change"
	AlertBackInStock   AlertType = "back_in_stock"
	AlertSizeAvailable AlertType = "size_available"
)

// AlertEvent is an immutable fact produced by the rule evaluator and handed
// to the external alert sink. The pipeline never persists or delivers it.
type AlertEvent struct {
	ID        string    `json:"id"`
	WatcherID string    `json:"watcher_id"`
	Type      AlertType `json:"type"`
	Title     string    `json:"title,omitempty"`
	URL       string    `json:"url"`
	Previous  string    `json:"previous,omitempty"`
	Current   string    `json:"current,omitempty"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// QueueItem is an ephemeral unit of dispatch. Identity is the watcher ID, so
// at most one item per watcher is queued or in flight at any time.
type QueueItem struct {
	WatcherID string
	URL       string
	Domain    string
	Priority  int
	Submitted time.Time
}

// CheckOutcome is the single atomic delta written back after a check.
// Snapshot is nil when the stored snapshot must be left untouched (failures
// and 304-unchanged checks).
type CheckOutcome struct {
	Success          bool
	Snapshot         *ProductSnapshot
	ErrorIncrement   int
	StatusTransition *Status
	CheckedAt        time.Time
}
