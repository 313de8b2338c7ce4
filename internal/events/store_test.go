package events

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/savegress/oeesense/pkg/models"
)

var (
	shiftStart = time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)
	shiftEnd   = time.Date(2024, 3, 15, 16, 0, 0, 0, time.UTC)
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpen(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := Open(tmpDir)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(filepath.Join(tmpDir, "events.db")); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	tmpDir := t.TempDir()
	blocker := filepath.Join(tmpDir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to create blocker file: %v", err)
	}
	if _, err := Open(filepath.Join(blocker, "data")); err == nil {
		t.Error("expected error for invalid data path")
	}
}

func TestStore_InsertAssignsID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := models.OperationRecord{
		Operation:    "Mixing",
		Start:        shiftStart.Format(time.RFC3339),
		End:          shiftStart.Add(30 * time.Minute).Format(time.RFC3339),
		LossCategory: models.LossUnplannedStop,
	}

	stored, err := store.Insert(ctx, rec)
	if err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	if stored.ID == "" {
		t.Error("expected an assigned ID")
	}
	if stored.IngestedAt.IsZero() {
		t.Error("expected an ingestion timestamp")
	}
	// The caller's record stays untouched.
	if rec.ID != "" {
		t.Error("input record must not be modified")
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row, got %d", n)
	}
}

func TestStore_InsertNormalizesCategory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stored, err := store.Insert(ctx, models.OperationRecord{
		Operation:    "Inspection",
		Start:        shiftStart.Format(time.RFC3339),
		LossCategory: "rework/scrap",
	})
	if err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	if stored.LossCategory != models.LossReworkScrap {
		t.Errorf("expected normalized category rework_scrap, got %s", stored.LossCategory)
	}
}

func TestStore_InsertBatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	recs := []models.OperationRecord{
		{Operation: "Mixing", Start: shiftStart.Format(time.RFC3339), End: shiftStart.Add(time.Hour).Format(time.RFC3339)},
		{Operation: "Filling", Start: shiftStart.Add(time.Hour).Format(time.RFC3339)},
		{Operation: "Capping", Start: shiftStart.Add(2 * time.Hour).Format(time.RFC3339)},
	}

	stored, err := store.InsertBatch(ctx, recs)
	if err != nil {
		t.Fatalf("failed to insert batch: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("expected 3 stored rows, got %d", len(stored))
	}
	for i, r := range stored {
		if r.ID == "" {
			t.Errorf("row %d: expected assigned ID", i)
		}
	}

	n, _ := store.Count(ctx)
	if n != 3 {
		t.Errorf("expected 3 rows, got %d", n)
	}
}

func TestStore_QueryWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rows := []models.OperationRecord{
		// Fully inside the window.
		{Operation: "Inside", Start: shiftStart.Add(time.Hour).Format(time.RFC3339), End: shiftStart.Add(2 * time.Hour).Format(time.RFC3339)},
		// Spans the window start.
		{Operation: "SpansStart", Start: shiftStart.Add(-time.Hour).Format(time.RFC3339), End: shiftStart.Add(time.Hour).Format(time.RFC3339)},
		// Entirely before the window.
		{Operation: "Before", Start: shiftStart.Add(-3 * time.Hour).Format(time.RFC3339), End: shiftStart.Add(-2 * time.Hour).Format(time.RFC3339)},
		// Entirely after the window.
		{Operation: "After", Start: shiftEnd.Add(time.Hour).Format(time.RFC3339), End: shiftEnd.Add(2 * time.Hour).Format(time.RFC3339)},
		// Ongoing: no end, started mid-window.
		{Operation: "Ongoing", Start: shiftStart.Add(3 * time.Hour).Format(time.RFC3339)},
	}
	if _, err := store.InsertBatch(ctx, rows); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	got, err := store.QueryWindow(ctx, shiftStart, shiftEnd)
	if err != nil {
		t.Fatalf("failed to query window: %v", err)
	}

	ops := make(map[string]bool)
	for _, r := range got {
		ops[r.Operation] = true
	}
	for _, want := range []string{"Inside", "SpansStart", "Ongoing"} {
		if !ops[want] {
			t.Errorf("expected %s in window results", want)
		}
	}
	for _, exclude := range []string{"Before", "After"} {
		if ops[exclude] {
			t.Errorf("did not expect %s in window results", exclude)
		}
	}
}

func TestStore_QueryWindowReturnsUnindexableRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// A row with a timestamp the indexer cannot place must come back from
	// every window query; the calculator owns rejecting it.
	if _, err := store.Insert(ctx, models.OperationRecord{
		Operation: "Broken",
		Start:     "garbage-timestamp",
	}); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	got, err := store.QueryWindow(ctx, shiftStart, shiftEnd)
	if err != nil {
		t.Fatalf("failed to query window: %v", err)
	}
	if len(got) != 1 || got[0].Operation != "Broken" {
		t.Fatalf("expected the unindexable row, got %+v", got)
	}
}

func TestStore_List(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.Insert(ctx, models.OperationRecord{
			Operation: "Mixing",
			Start:     shiftStart.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
		}); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}
	}

	got, err := store.List(ctx, 3)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 rows, got %d", len(got))
	}
}

func TestStore_Cleanup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := models.OperationRecord{
		Operation:  "Mixing",
		Start:      shiftStart.Format(time.RFC3339),
		IngestedAt: time.Now().Add(-48 * time.Hour),
	}
	fresh := models.OperationRecord{
		Operation: "Filling",
		Start:     shiftStart.Format(time.RFC3339),
	}
	if _, err := store.Insert(ctx, old); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	if _, err := store.Insert(ctx, fresh); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	deleted, err := store.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("failed to clean up: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted row, got %d", deleted)
	}

	n, _ := store.Count(ctx)
	if n != 1 {
		t.Errorf("expected 1 remaining row, got %d", n)
	}
}
