package oee

import (
	"fmt"
	"math"
	"time"

	"github.com/savegress/oeesense/pkg/models"
)

// Calculator computes OEE metrics for batches of operation events against an
// analysis window. It holds only the immutable standards and override maps,
// so a single instance is safe for concurrent use on distinct batches.
type Calculator struct {
	standards map[string]interface{}
	overrides map[string]models.LossCategory
	trace     TraceSink
}

// NewCalculator creates a calculator from the configured standard
// value-added times (operation -> seconds) and optional loss-category
// overrides (operation -> category). Invalid standards values are not
// rejected here: an entry is only validated when a calculation references
// it, since a bad entry may never be touched.
func NewCalculator(standards map[string]interface{}, overrides map[string]models.LossCategory) *Calculator {
	c := &Calculator{
		standards: make(map[string]interface{}, len(standards)),
		overrides: make(map[string]models.LossCategory, len(overrides)),
	}
	for op, v := range standards {
		c.standards[op] = v
	}
	for op, cat := range overrides {
		c.overrides[op] = cat
	}
	return c
}

// SetTraceSink installs a sink for intermediate pipeline tables. Passing nil
// restores the default no-op behavior.
func (c *Calculator) SetTraceSink(sink TraceSink) {
	c.trace = sink
}

// Calculate runs the full pipeline: normalize -> truncate -> prorate ->
// aggregate -> compose. The input slice is read-only; derived state is
// rebuilt on every call.
//
// Fatal errors are limited to unparsable start timestamps (*ParseError) and
// non-numeric standards entries (*ConfigError). Everything else -- unmodeled
// operations, a degenerate window, a quiet window with no surviving events --
// degrades to a well-defined zero result plus diagnostics, because a
// monitoring loop calling this per shift must never crash on a quiet window.
func (c *Calculator) Calculate(records []models.OperationRecord, window Window) (Result, error) {
	totalTime := window.Seconds()
	if totalTime <= 0 {
		return Result{
			Diagnostics: []models.Diagnostic{{
				Code:    models.DiagDegenerateWindow,
				Message: fmt.Sprintf("window span is %.0fs; start must precede end", totalTime),
			}},
		}, nil
	}

	var diags []models.Diagnostic

	events, err := c.normalize(records, window.End, &diags)
	if err != nil {
		return Result{}, err
	}

	truncated := c.truncate(events, window)
	c.emitTrace("truncate", truncated)

	if err := c.prorate(truncated, &diags); err != nil {
		return Result{}, err
	}
	c.emitTrace("prorate", truncated)

	breakdown := c.aggregate(truncated)

	return c.compose(truncated, breakdown, totalTime, diags), nil
}

// normalize parses the raw rows into events with well-formed timestamps.
// A missing or unparsable end timestamp means the operation was still
// running at analysis time, so it is repaired to the window end and flagged
// ongoing. A malformed start is a hard error.
func (c *Calculator) normalize(records []models.OperationRecord, windowEnd time.Time, diags *[]models.Diagnostic) ([]Event, error) {
	events := make([]Event, 0, len(records))
	for i, rec := range records {
		start, err := ParseTimestamp(rec.Start)
		if err != nil {
			return nil, &ParseError{Field: "start", Value: rec.Start, Row: i}
		}

		ev := Event{
			Operation:    rec.Operation,
			Start:        start,
			LossCategory: rec.LossCategory.Normalize(),
		}

		if end, err := ParseTimestamp(rec.End); err == nil {
			ev.End = end
		} else {
			ev.End = windowEnd
			ev.Ongoing = true
			*diags = append(*diags, models.Diagnostic{
				Code:      models.DiagOngoingEvent,
				Operation: rec.Operation,
				Message:   fmt.Sprintf("event %d has no end timestamp; treated as running through window end", i),
			})
		}

		events = append(events, ev)
	}
	return events, nil
}

// truncate clips each event to the window and drops events that lie entirely
// outside it. Dropped events contribute to no downstream aggregate.
func (c *Calculator) truncate(events []Event, window Window) []TruncatedEvent {
	out := make([]TruncatedEvent, 0, len(events))
	for _, ev := range events {
		effStart := maxTime(ev.Start, window.Start)
		effEnd := minTime(ev.End, window.End)

		dur := effEnd.Sub(effStart).Seconds()
		if dur <= 0 {
			continue
		}

		out = append(out, TruncatedEvent{
			Event:             ev,
			EffectiveStart:    effStart,
			EffectiveEnd:      effEnd,
			EffectiveDuration: dur,
		})
	}
	return out
}

// prorate fills in each surviving event's value-added contribution:
// min(standard, effective duration), so a boundary-truncated event can never
// credit more value-added time than the portion actually inside the window.
// Operations without a standards entry prorate to zero with a diagnostic.
func (c *Calculator) prorate(events []TruncatedEvent, diags *[]models.Diagnostic) error {
	unmodeled := make(map[string]bool)

	for i := range events {
		raw, ok := c.standards[events[i].Operation]
		if !ok {
			events[i].ValueAddedTime = 0
			if !unmodeled[events[i].Operation] {
				unmodeled[events[i].Operation] = true
				*diags = append(*diags, models.Diagnostic{
					Code:      models.DiagUnmodeledOperation,
					Operation: events[i].Operation,
					Message:   fmt.Sprintf("operation %q has no standard value-added time; prorated to zero", events[i].Operation),
				})
			}
			continue
		}

		standard, err := numericStandard(events[i].Operation, raw)
		if err != nil {
			return err
		}
		events[i].ValueAddedTime = math.Min(standard, events[i].EffectiveDuration)
	}
	return nil
}

// aggregate applies any loss-category overrides and sums effective duration
// per category.
func (c *Calculator) aggregate(events []TruncatedEvent) LossBreakdown {
	breakdown := make(LossBreakdown)
	for _, ev := range events {
		cat := ev.LossCategory
		if override, ok := c.overrides[ev.Operation]; ok {
			cat = override.Normalize()
		}
		breakdown[cat] += ev.EffectiveDuration
	}
	return breakdown
}

// compose derives the four OEE components from the loss buckets and the full
// window span. The window span is authoritative for the denominator: gaps
// with no logged event at all still count against availability.
//
// Performance uses 1 - performance_losses/total_time. An earlier variant of
// this calculation used value_added/(value_added+delay); the loss-bucket
// form is the one carried forward.
func (c *Calculator) compose(events []TruncatedEvent, breakdown LossBreakdown, totalTime float64, diags []models.Diagnostic) Result {
	res := Result{
		TotalTime:   totalTime,
		EventCount:  len(events),
		Diagnostics: diags,
	}

	if len(events) == 0 {
		res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
			Code:    models.DiagEmptyResult,
			Message: "no events overlap the analysis window; all components zeroed",
		})
		return res
	}

	for _, ev := range events {
		res.ValueAddedTime += ev.ValueAddedTime
	}

	res.AvailabilityLosses = breakdown[models.LossUnplannedStop] + breakdown[models.LossPlannedStop]
	res.PerformanceLosses = breakdown[models.LossSmallStop] + breakdown[models.LossSpeedLoss]
	res.QualityLosses = breakdown[models.LossReworkScrap] + breakdown[models.LossStartup]

	// Loss sums from partial overlaps can slightly exceed the window span in
	// degenerate configurations; clamp so no component goes negative.
	res.Availability = clamp01((totalTime - res.AvailabilityLosses) / totalTime)
	res.Performance = clamp01(1 - res.PerformanceLosses/totalTime)
	res.Quality = clamp01(1 - res.QualityLosses/totalTime)
	res.OEE = res.Availability * res.Performance * res.Quality

	return res
}

func (c *Calculator) emitTrace(stage string, events []TruncatedEvent) {
	if c.trace != nil {
		c.trace(stage, events)
	}
}

// numericStandard coerces a raw standards entry into seconds. YAML decodes
// numbers as int or float64; anything else, or a negative value, is a
// configuration error.
func numericStandard(operation string, raw interface{}) (float64, error) {
	var v float64
	switch n := raw.(type) {
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case float64:
		v = n
	case float32:
		v = float64(n)
	default:
		return 0, &ConfigError{Operation: operation, Value: raw}
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ConfigError{Operation: operation, Value: raw}
	}
	return v, nil
}

// timestampLayouts are tried in order when parsing event timestamps.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an event timestamp in any of the accepted layouts.
// The event store uses the same rules to index rows, so a row the store can
// place in time is one the normalizer can parse.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
