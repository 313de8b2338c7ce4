package reports

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/savegress/oeesense/internal/oee"
	"github.com/savegress/oeesense/pkg/models"
)

// Config holds report engine configuration
type Config struct {
	ShiftDuration       time.Duration
	CalculationInterval time.Duration
	MaxHistory          int
}

// EventSource supplies the raw event rows overlapping a window.
type EventSource interface {
	QueryWindow(ctx context.Context, from, to time.Time) ([]models.OperationRecord, error)
}

// Engine periodically computes OEE reports for shift-aligned windows and
// keeps an in-memory history. The running shift's report is provisional and
// recomputed every interval; it settles once the shift rolls over.
type Engine struct {
	config *Config
	source EventSource
	calc   *oee.Calculator

	mu       sync.RWMutex
	reports  map[int64]*models.OEEReport // window start unix -> report
	onReport func(*models.OEEReport)

	running bool
	stopCh  chan struct{}
}

// NewEngine creates a report engine over an event source and calculator.
func NewEngine(config *Config, source EventSource, calc *oee.Calculator) *Engine {
	if config.ShiftDuration == 0 {
		config.ShiftDuration = 8 * time.Hour
	}
	if config.CalculationInterval == 0 {
		config.CalculationInterval = 5 * time.Minute
	}
	if config.MaxHistory == 0 {
		config.MaxHistory = 500
	}

	return &Engine{
		config:  config,
		source:  source,
		calc:    calc,
		reports: make(map[int64]*models.OEEReport),
		stopCh:  make(chan struct{}),
	}
}

// Start starts the periodic calculation loop
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.mu.Unlock()

	go e.calculationLoop(ctx)
	return nil
}

// Stop stops the calculation loop
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		close(e.stopCh)
		e.running = false
	}
}

// SetReportCallback installs an observer invoked for every computed report.
func (e *Engine) SetReportCallback(fn func(*models.OEEReport)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onReport = fn
}

func (e *Engine) calculationLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.CalculationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.calculateShifts(ctx, time.Now().UTC())
		}
	}
}

// calculateShifts recomputes the running shift window and re-settles the
// previous one, so a shift's final report covers events that arrived after
// its last in-shift tick.
func (e *Engine) calculateShifts(ctx context.Context, now time.Time) {
	current := now.Truncate(e.config.ShiftDuration)
	for _, start := range []time.Time{current.Add(-e.config.ShiftDuration), current} {
		report, err := e.ComputeWindow(ctx, start, start.Add(e.config.ShiftDuration))
		if err != nil {
			// Fatal calculation errors (bad row, bad standards entry) are
			// kept out of history; the next tick retries.
			continue
		}
		e.store(report)
	}
}

// ComputeWindow computes an OEE report for an arbitrary window on demand.
// It does not touch the engine's history.
func (e *Engine) ComputeWindow(ctx context.Context, from, to time.Time) (*models.OEEReport, error) {
	records, err := e.source.QueryWindow(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	result, err := e.calc.Calculate(records, oee.Window{Start: from, End: to})
	if err != nil {
		return nil, err
	}

	rounded := result.Rounded()
	return &models.OEEReport{
		ID:                 uuid.New().String(),
		WindowStart:        from,
		WindowEnd:          to,
		Availability:       rounded.Availability,
		Performance:        rounded.Performance,
		Quality:            rounded.Quality,
		OEE:                rounded.OEE,
		TotalTime:          rounded.TotalTime,
		ValueAddedTime:     rounded.ValueAddedTime,
		AvailabilityLosses: rounded.AvailabilityLosses,
		PerformanceLosses:  rounded.PerformanceLosses,
		QualityLosses:      rounded.QualityLosses,
		EventCount:         rounded.EventCount,
		Diagnostics:        rounded.Diagnostics,
		ComputedAt:         time.Now().UTC(),
	}, nil
}

func (e *Engine) store(report *models.OEEReport) {
	e.mu.Lock()
	key := report.WindowStart.Unix()
	if existing, ok := e.reports[key]; ok {
		report.ID = existing.ID
	}
	e.reports[key] = report
	e.pruneLocked()
	callback := e.onReport
	e.mu.Unlock()

	if callback != nil {
		callback(report)
	}
}

func (e *Engine) pruneLocked() {
	for len(e.reports) > e.config.MaxHistory {
		var oldest int64
		first := true
		for key := range e.reports {
			if first || key < oldest {
				oldest = key
				first = false
			}
		}
		delete(e.reports, oldest)
	}
}

// Latest returns the most recent report in history.
func (e *Engine) Latest() (*models.OEEReport, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var latest *models.OEEReport
	for _, report := range e.reports {
		if latest == nil || report.WindowStart.After(latest.WindowStart) {
			latest = report
		}
	}
	return latest, latest != nil
}

// List returns up to limit reports, newest window first.
func (e *Engine) List(limit int) []*models.OEEReport {
	e.mu.RLock()
	out := make([]*models.OEEReport, 0, len(e.reports))
	for _, report := range e.reports {
		out = append(out, report)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].WindowStart.After(out[j].WindowStart)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Stats summarizes the engine's history.
func (e *Engine) Stats() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := map[string]interface{}{
		"reports":        len(e.reports),
		"shift_duration": e.config.ShiftDuration.String(),
		"interval":       e.config.CalculationInterval.String(),
		"running":        e.running,
	}
	if latest, ok := e.latestLocked(); ok {
		stats["latest_window_start"] = latest.WindowStart
		stats["latest_oee"] = latest.OEE
	}
	return stats
}

func (e *Engine) latestLocked() (*models.OEEReport, bool) {
	var latest *models.OEEReport
	for _, report := range e.reports {
		if latest == nil || report.WindowStart.After(latest.WindowStart) {
			latest = report
		}
	}
	return latest, latest != nil
}
