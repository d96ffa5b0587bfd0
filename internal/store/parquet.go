package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"livetrade/internal/domain"
)

// Compile-time interface checks.
var _ OrderJournal = (*ParquetJournal)(nil)
var _ JournalReader = (*ParquetJournal)(nil)

// ParquetJournal implements OrderJournal with one Parquet file per UTC day:
//
//	<DataDir>/orders/<YYYY-MM-DD>.parquet
//
// Each RecordOrder merges the row into its day file, keyed by order id.
type ParquetJournal struct {
	DataDir string

	mu sync.Mutex
}

// NewParquetJournal creates a ParquetJournal rooted at the given data
// directory.
func NewParquetJournal(dataDir string) *ParquetJournal {
	return &ParquetJournal{DataDir: dataDir}
}

// RecordOrder merges o into the file for the day it was last updated.
func (j *ParquetJournal) RecordOrder(_ context.Context, o *domain.Order) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	path := j.dayPath(o.UpdatedAt)
	existing, err := readParquetFile[OrderRecord](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	merged := mergeOrderRecords(existing, []OrderRecord{NewOrderRecord(o)})
	if err := writeParquetFile(path, merged); err != nil {
		return fmt.Errorf("writing order %s: %w", o.CorrelationID, err)
	}
	return nil
}

// ListOrders scans every day file and returns the orders in the given
// state, oldest first.
func (j *ParquetJournal) ListOrders(_ context.Context, state domain.OrderState) ([]OrderRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(j.DataDir, "orders"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []OrderRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".parquet") {
			continue
		}
		rows, err := readParquetFile[OrderRecord](filepath.Join(j.DataDir, "orders", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		for _, r := range rows {
			if r.State == string(state) {
				out = append(out, r)
			}
		}
	}
	sortOrderRecords(out)
	return out, nil
}

// Close is a no-op; every RecordOrder is written through.
func (j *ParquetJournal) Close() error { return nil }

func (j *ParquetJournal) dayPath(t time.Time) string {
	return filepath.Join(j.DataDir, "orders", t.UTC().Format("2006-01-02")+".parquet")
}

// writeParquetFile replaces path atomically: rows go to a temp file in the
// same directory, which is renamed over path once synced.
func writeParquetFile[T any](path string, records []T) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := parquet.Write(tmp, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeOrderRecords deduplicates by id, preferring incoming records.
func mergeOrderRecords(existing, incoming []OrderRecord) []OrderRecord {
	seen := make(map[string]OrderRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.ID] = r
	}
	for _, r := range incoming {
		seen[r.ID] = r
	}

	merged := make([]OrderRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sortOrderRecords(merged)
	return merged
}

func sortOrderRecords(rs []OrderRecord) {
	sort.Slice(rs, func(i, k int) bool {
		if rs[i].UpdatedAt != rs[k].UpdatedAt {
			return rs[i].UpdatedAt < rs[k].UpdatedAt
		}
		return rs[i].ID < rs[k].ID
	})
}
