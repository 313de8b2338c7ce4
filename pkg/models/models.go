package models

import (
	"time"
)

// LossCategory classifies non-productive time against one of the three
// OEE components.
type LossCategory string

const (
	LossUnplannedStop LossCategory = "unplanned_stop"
	LossPlannedStop   LossCategory = "planned_stop"
	LossSmallStop     LossCategory = "small_stop"
	LossSpeedLoss     LossCategory = "speed_loss"
	LossReworkScrap   LossCategory = "rework_scrap"
	LossStartup       LossCategory = "startup_loss"
	LossUnknown       LossCategory = "unknown_loss"

	// CategoryValueAdded marks productive time. It contributes to no loss
	// bucket; both spellings appear in historical event logs.
	CategoryValueAdded    LossCategory = "value_added"
	CategoryValueAddedAlt LossCategory = "value-added"
)

// Normalize maps legacy spellings onto the canonical category and empty
// strings onto LossUnknown.
func (c LossCategory) Normalize() LossCategory {
	switch c {
	case "":
		return LossUnknown
	case "rework/scrap":
		return LossReworkScrap
	case CategoryValueAddedAlt:
		return CategoryValueAdded
	default:
		return c
	}
}

// KnownLossCategory reports whether c belongs to the fixed loss vocabulary
// (value-added and unknown are known but carry no loss).
func KnownLossCategory(c LossCategory) bool {
	switch c.Normalize() {
	case LossUnplannedStop, LossPlannedStop, LossSmallStop, LossSpeedLoss,
		LossReworkScrap, LossStartup, LossUnknown, CategoryValueAdded:
		return true
	}
	return false
}

// OperationRecord is a single row of the raw operation event log as supplied
// by an ingester. Timestamps are kept as strings on the wire; the calculator
// owns parsing and repair.
type OperationRecord struct {
	ID           string       `json:"id,omitempty"`
	Operation    string       `json:"operation"`
	Start        string       `json:"timestamp_start"`
	End          string       `json:"timestamp_end,omitempty"`
	LossCategory LossCategory `json:"loss_category,omitempty"`
	Source       string       `json:"source,omitempty"`
	IngestedAt   time.Time    `json:"ingested_at,omitempty"`
}

// DiagnosticCode identifies a recoverable condition raised during an OEE
// calculation.
type DiagnosticCode string

const (
	DiagUnmodeledOperation DiagnosticCode = "unmodeled_operation"
	DiagDegenerateWindow   DiagnosticCode = "degenerate_window"
	DiagEmptyResult        DiagnosticCode = "empty_result"
	DiagOngoingEvent       DiagnosticCode = "ongoing_event"
)

// Diagnostic is a structured, non-fatal finding emitted alongside a result.
type Diagnostic struct {
	Code      DiagnosticCode `json:"code"`
	Operation string         `json:"operation,omitempty"`
	Message   string         `json:"message"`
}

// OEEReport is a computed OEE result for a single analysis window, as served
// by the API and stored by the reports engine. Ratio fields are rounded to
// three decimals and time totals to two for presentation stability.
type OEEReport struct {
	ID          string    `json:"id,omitempty"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	Availability float64 `json:"availability"`
	Performance  float64 `json:"performance"`
	Quality      float64 `json:"quality"`
	OEE          float64 `json:"oee"`

	TotalTime          float64 `json:"total_time_seconds"`
	ValueAddedTime     float64 `json:"value_added_time_seconds"`
	AvailabilityLosses float64 `json:"availability_losses_seconds"`
	PerformanceLosses  float64 `json:"performance_losses_seconds"`
	QualityLosses      float64 `json:"quality_losses_seconds"`

	EventCount  int          `json:"event_count"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	ComputedAt  time.Time    `json:"computed_at"`
}
