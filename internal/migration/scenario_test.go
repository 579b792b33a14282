package migration

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leandro-jm/bulk-migration/internal/database"
)

// TestRunOverwriteBatchingBoundary exercises base spec §8's literal boundary
// property: 501 source rows trigger exactly two LIMIT-500 source queries and
// two target-side batch inserts.
func TestRunOverwriteBatchingBoundary(t *testing.T) {
	cols := []database.ColumnDescriptor{{Name: "id"}, {Name: "name"}}

	firstBatch := make([][]any, 500)
	for i := range firstBatch {
		firstBatch[i] = []any{int64(i + 1), "row"}
	}
	secondBatch := [][]any{{int64(501), "row"}}

	src := &fakeConn{
		columns: cols,
		batches: [][][]any{firstBatch, secondBatch},
	}
	dst := &fakeConn{
		tableExists: true,
		tableEmpty:  true,
	}

	migrated, err := RunOverwrite(context.Background(), src, dst, "orders", nil, nil, testLogger())
	if err != nil {
		t.Fatalf("RunOverwrite: %v", err)
	}
	if migrated != 501 {
		t.Errorf("migrated = %d, want 501", migrated)
	}
	if src.fetchCalls != 2 {
		t.Errorf("source fetchBatch calls = %d, want 2", src.fetchCalls)
	}
	if dst.copyFromCalls != 2 {
		t.Errorf("target CopyFrom calls = %d, want 2", dst.copyFromCalls)
	}
}

// TestRunUpsertPKOnlyFallback exercises RunUpsert end to end against a table
// whose only column is its primary key, which forces buildUpsertSQL's
// DO NOTHING branch (base spec §4.4.2's documented fallback when there are
// no non-key columns to merge).
func TestRunUpsertPKOnlyFallback(t *testing.T) {
	cols := []database.ColumnDescriptor{{Name: "id"}}

	src := &fakeConn{
		columns:    cols,
		primaryKey: []string{"id"},
		rows:       [][]any{{int64(1)}, {int64(2)}},
	}
	dst := &fakeConn{}

	migrated, err := RunUpsert(context.Background(), src, dst, "memberships", nil, nil, testLogger())
	if err != nil {
		t.Fatalf("RunUpsert: %v", err)
	}
	if migrated != 2 {
		t.Errorf("migrated = %d, want 2", migrated)
	}
	if len(dst.execLog) != 2 {
		t.Fatalf("target Exec calls = %d, want 2", len(dst.execLog))
	}
	if !strings.Contains(dst.execLog[0], `ON CONFLICT ("id") DO NOTHING`) {
		t.Errorf("executed SQL = %q, want ON CONFLICT ... DO NOTHING", dst.execLog[0])
	}
}

// TestRunInsertIgnoreSkipsDuplicates exercises base spec §8's insert-ignore
// scenario: a row that conflicts on the target's unique constraint is
// skipped silently, and the run still succeeds.
func TestRunInsertIgnoreSkipsDuplicates(t *testing.T) {
	cols := []database.ColumnDescriptor{{Name: "id"}, {Name: "val"}}

	src := &fakeConn{
		columns: cols,
		rows:    [][]any{{int64(1), "new"}, {int64(2), "y"}},
	}

	calls := 0
	dst := &fakeConn{
		execFunc: func(sql string, args []any) (pgconn.CommandTag, error) {
			calls++
			if calls == 1 {
				return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505", Message: `duplicate key value violates unique constraint "t_pkey"`}
			}
			return pgconn.CommandTag{}, nil
		},
	}

	migrated, err := RunInsertIgnore(context.Background(), src, dst, "events", nil, nil, testLogger())
	if err != nil {
		t.Fatalf("RunInsertIgnore: %v", err)
	}
	if migrated != 1 {
		t.Errorf("migrated = %d, want 1 (one row skipped as a duplicate)", migrated)
	}
	if calls != 2 {
		t.Errorf("target Exec calls = %d, want 2", calls)
	}
}

// TestIsDuplicateKeyErrorDoesNotFalseMatchGenericErrors guards against the
// fallback substring check firing on unrelated connection failures, which
// would make RunInsertIgnore silently swallow a real outage.
func TestIsDuplicateKeyErrorDoesNotFalseMatchGenericErrors(t *testing.T) {
	if isDuplicateKeyError(errors.New("connection reset by peer")) {
		t.Errorf("isDuplicateKeyError(connection reset) = true, want false")
	}
}
