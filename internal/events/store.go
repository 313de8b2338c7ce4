package events

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/savegress/oeesense/internal/oee"
	"github.com/savegress/oeesense/pkg/models"
)

// Store is a SQLite-backed append-only log of raw operation events. Rows
// keep their timestamps as the ingester supplied them; a best-effort epoch
// index is stored alongside purely for window queries. Rows whose start
// cannot be indexed are returned to every window so the calculator can
// surface the parse failure instead of the store silently hiding the row.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open creates the data directory if needed and opens the event database.
func Open(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataPath, "events.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS operation_events (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		start_ts TEXT NOT NULL,
		end_ts TEXT,
		loss_category TEXT,
		source TEXT,
		start_epoch INTEGER,
		end_epoch INTEGER,
		ingested_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_start_epoch ON operation_events(start_epoch);
	CREATE INDEX IF NOT EXISTS idx_events_operation ON operation_events(operation);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Insert stores a single event row, assigning an ID and ingestion time if
// absent. The stored copy is returned; the caller's record is not modified.
func (s *Store) Insert(ctx context.Context, rec models.OperationRecord) (models.OperationRecord, error) {
	stored := prepareRecord(rec)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operation_events
			(id, operation, start_ts, end_ts, loss_category, source, start_epoch, end_epoch, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.Operation, stored.Start, nullableString(stored.End),
		string(stored.LossCategory), stored.Source,
		epochOf(stored.Start), epochOf(stored.End), stored.IngestedAt.Unix(),
	)
	if err != nil {
		return models.OperationRecord{}, fmt.Errorf("failed to insert event: %w", err)
	}
	return stored, nil
}

// InsertBatch stores a batch of event rows in one transaction and returns
// the stored copies.
func (s *Store) InsertBatch(ctx context.Context, recs []models.OperationRecord) ([]models.OperationRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO operation_events
			(id, operation, start_ts, end_ts, loss_category, source, start_epoch, end_epoch, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	stored := make([]models.OperationRecord, 0, len(recs))
	for _, rec := range recs {
		r := prepareRecord(rec)
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Operation, r.Start, nullableString(r.End),
			string(r.LossCategory), r.Source,
			epochOf(r.Start), epochOf(r.End), r.IngestedAt.Unix(),
		); err != nil {
			return nil, fmt.Errorf("failed to insert event: %w", err)
		}
		stored = append(stored, r)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch: %w", err)
	}
	return stored, nil
}

// QueryWindow returns all rows whose interval overlaps [from, to). Rows with
// no end timestamp count as ongoing and overlap any window their start
// precedes; rows with an unindexable timestamp are always returned.
func (s *Store) QueryWindow(ctx context.Context, from, to time.Time) ([]models.OperationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation, start_ts, end_ts, loss_category, source, ingested_at
		FROM operation_events
		WHERE (start_epoch IS NULL OR start_epoch < ?)
		  AND (end_epoch IS NULL OR end_epoch > ?)
		ORDER BY start_epoch, ingested_at`,
		to.Unix(), from.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// List returns the most recently ingested rows, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]models.OperationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation, start_ts, end_ts, loss_category, source, ingested_at
		FROM operation_events
		ORDER BY ingested_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Count returns the number of stored event rows.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM operation_events`).Scan(&n)
	return n, err
}

// Cleanup removes rows ingested before the retention horizon and reports how
// many were deleted.
func (s *Store) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM operation_events WHERE ingested_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up events: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func prepareRecord(rec models.OperationRecord) models.OperationRecord {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = time.Now().UTC()
	}
	rec.LossCategory = rec.LossCategory.Normalize()
	return rec
}

func scanRecords(rows *sql.Rows) ([]models.OperationRecord, error) {
	records := []models.OperationRecord{}
	for rows.Next() {
		var (
			rec      models.OperationRecord
			end      sql.NullString
			category sql.NullString
			ingested int64
		)
		if err := rows.Scan(&rec.ID, &rec.Operation, &rec.Start, &end, &category, &rec.Source, &ingested); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		rec.End = end.String
		rec.LossCategory = models.LossCategory(category.String)
		rec.IngestedAt = time.Unix(ingested, 0).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// epochOf indexes a timestamp with the calculator's own parsing rules; nil
// means the row cannot be placed in time and must match every window.
func epochOf(ts string) interface{} {
	t, err := oee.ParseTimestamp(ts)
	if err != nil {
		return nil
	}
	return t.Unix()
}
