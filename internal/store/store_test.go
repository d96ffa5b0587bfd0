package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"livetrade/internal/domain"
)

func testOrder(id string, state domain.OrderState, updated time.Time) *domain.Order {
	return &domain.Order{
		CorrelationID: id,
		BrokerID:      "B-" + id,
		Symbol:        "AAPL",
		Action:        domain.ActionOpen,
		Qty:           100,
		Price:         150,
		Type:          domain.OrderTypeLimit,
		FilledQty:     100,
		FilledPrice:   149.5,
		State:         state,
		CreatedAt:     updated.Add(-time.Minute),
		UpdatedAt:     updated,
	}
}

func TestParquetJournalPath(t *testing.T) {
	j := NewParquetJournal("/data")
	ts := time.Date(2024, 6, 15, 23, 0, 0, 0, time.UTC)

	want := filepath.Join("/data", "orders", "2024-06-15.parquet")
	if got := j.dayPath(ts); got != want {
		t.Errorf("dayPath mismatch:\n  got  %s\n  want %s", got, want)
	}
}

func TestParquetJournalRecordAndList(t *testing.T) {
	dir := t.TempDir()
	j := NewParquetJournal(dir)
	ctx := context.Background()
	day := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

	if err := j.RecordOrder(ctx, testOrder("o1", domain.OrderStateFulfilled, day)); err != nil {
		t.Fatalf("RecordOrder: %v", err)
	}
	if err := j.RecordOrder(ctx, testOrder("o2", domain.OrderStateCanceled, day.Add(time.Second))); err != nil {
		t.Fatalf("RecordOrder: %v", err)
	}
	// Next day goes to its own file.
	if err := j.RecordOrder(ctx, testOrder("o3", domain.OrderStateFulfilled, day.AddDate(0, 0, 1))); err != nil {
		t.Fatalf("RecordOrder: %v", err)
	}

	got, err := j.ListOrders(ctx, domain.OrderStateFulfilled)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListOrders returned %d orders, want 2", len(got))
	}
	if got[0].ID != "o1" || got[1].ID != "o3" {
		t.Errorf("ListOrders ids = [%s %s], want [o1 o3]", got[0].ID, got[1].ID)
	}
	if got[0].FilledPrice != 149.5 {
		t.Errorf("FilledPrice = %v, want 149.5", got[0].FilledPrice)
	}
}

func TestParquetJournalMerge(t *testing.T) {
	dir := t.TempDir()
	j := NewParquetJournal(dir)
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	o := testOrder("dup", domain.OrderStateFailed, day)
	if err := j.RecordOrder(ctx, o); err != nil {
		t.Fatalf("RecordOrder (first): %v", err)
	}
	o.Desc = "rejected by broker"
	if err := j.RecordOrder(ctx, o); err != nil {
		t.Fatalf("RecordOrder (second): %v", err)
	}

	rows, err := readParquetFile[OrderRecord](j.dayPath(day))
	if err != nil {
		t.Fatalf("reading day file: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("day file has %d rows after merge, want 1", len(rows))
	}
	if rows[0].Desc != "rejected by broker" {
		t.Errorf("Desc = %q, want %q", rows[0].Desc, "rejected by broker")
	}
}

func TestParquetJournalWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	j := NewParquetJournal(dir)
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"a", "b", "c"} {
		if err := j.RecordOrder(ctx, testOrder(id, domain.OrderStateFulfilled, day)); err != nil {
			t.Fatalf("RecordOrder(%s): %v", id, err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(dir, "orders"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "2024-03-01.parquet" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("orders dir = %v, want only the day file", names)
	}
	rows, err := readParquetFile[OrderRecord](j.dayPath(day))
	if err != nil {
		t.Fatalf("reading day file: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("day file has %d rows, want 3", len(rows))
	}
}

func TestParquetJournalListEmpty(t *testing.T) {
	j := NewParquetJournal(t.TempDir())
	got, err := j.ListOrders(context.Background(), domain.OrderStateFulfilled)
	if err != nil {
		t.Fatalf("ListOrders on empty dir: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ListOrders returned %d orders, want 0", len(got))
	}
}

func TestSQLiteJournalOpen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	j, err := NewSQLiteJournal(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteJournal(%q) returned error: %v", dbPath, err)
	}
	defer func() {
		if cerr := j.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	}()

	if err := j.db.Ping(); err != nil {
		t.Fatalf("db.Ping() returned error: %v", err)
	}
}

func TestSQLiteJournalRecordAndList(t *testing.T) {
	j, err := NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewSQLiteJournal: %v", err)
	}
	defer j.Close()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC)

	if err := j.RecordOrder(ctx, testOrder("a", domain.OrderStateFulfilled, now)); err != nil {
		t.Fatalf("RecordOrder: %v", err)
	}
	failed := testOrder("b", domain.OrderStateFailed, now)
	failed.BrokerID = ""
	failed.FilledQty = 0
	failed.Desc = "broker returned no order id"
	if err := j.RecordOrder(ctx, failed); err != nil {
		t.Fatalf("RecordOrder: %v", err)
	}
	// Re-recording replaces the row.
	if err := j.RecordOrder(ctx, failed); err != nil {
		t.Fatalf("RecordOrder (replace): %v", err)
	}

	got, err := j.ListOrders(ctx, domain.OrderStateFailed)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ListOrders returned %d rows, want 1", len(got))
	}
	if got[0].ID != "b" || got[0].Desc != "broker returned no order id" {
		t.Errorf("row = %+v, want id b with desc", got[0])
	}
	if got[0].UpdatedAt != now.UnixMilli() {
		t.Errorf("UpdatedAt = %d, want %d", got[0].UpdatedAt, now.UnixMilli())
	}
}
