package oee

import (
	"fmt"
	"time"

	"github.com/savegress/oeesense/pkg/models"
)

// Window is the half-open analysis interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Seconds returns the window span in seconds. Degenerate windows yield a
// value <= 0 and are handled by the composer, not here.
func (w Window) Seconds() float64 {
	return w.End.Sub(w.Start).Seconds()
}

// Event is a normalized operation event with well-formed timestamps.
type Event struct {
	Operation    string
	Start        time.Time
	End          time.Time
	LossCategory models.LossCategory
	Ongoing      bool // end timestamp was missing, repaired to window end
}

// TruncatedEvent is an Event clipped to the analysis window, with its
// effective duration and prorated value-added contribution. Recomputed on
// every calculation, never persisted.
type TruncatedEvent struct {
	Event
	EffectiveStart    time.Time
	EffectiveEnd      time.Time
	EffectiveDuration float64 // seconds inside the window
	ValueAddedTime    float64 // min(standard, EffectiveDuration)
}

// LossBreakdown sums effective duration per loss category across the
// surviving truncated events.
type LossBreakdown map[models.LossCategory]float64

// Result carries the four OEE components plus the time totals they were
// derived from. Values are exact; call Rounded before presenting them.
type Result struct {
	Availability float64
	Performance  float64
	Quality      float64
	OEE          float64

	TotalTime          float64
	ValueAddedTime     float64
	AvailabilityLosses float64
	PerformanceLosses  float64
	QualityLosses      float64

	EventCount  int
	Diagnostics []models.Diagnostic
}

// Rounded returns a copy with ratios rounded to three decimals and time
// totals to two. The receiver keeps full precision for chained computation.
func (r Result) Rounded() Result {
	out := r
	out.Availability = round3(r.Availability)
	out.Performance = round3(r.Performance)
	out.Quality = round3(r.Quality)
	out.OEE = round3(r.OEE)
	out.TotalTime = round2(r.TotalTime)
	out.ValueAddedTime = round2(r.ValueAddedTime)
	out.AvailabilityLosses = round2(r.AvailabilityLosses)
	out.PerformanceLosses = round2(r.PerformanceLosses)
	out.QualityLosses = round2(r.QualityLosses)
	return out
}

// ParseError reports a malformed required timestamp. It is fatal to the
// calculation that encountered it.
type ParseError struct {
	Field string
	Value string
	Row   int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("oee: row %d: unparsable %s timestamp %q", e.Row, e.Field, e.Value)
}

// ConfigError reports a standards entry that is present but not a valid
// non-negative number. Surfaced lazily, when the entry is first referenced.
type ConfigError struct {
	Operation string
	Value     interface{}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("oee: standard value-added time for %q is not a non-negative number: %v", e.Operation, e.Value)
}

// TraceSink receives the intermediate truncated-event table per pipeline
// stage. Intended for debugging; the default is no sink.
type TraceSink func(stage string, events []TruncatedEvent)
