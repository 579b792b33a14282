package jobstore

import (
	"context"
	"testing"

	"github.com/leandro-jm/bulk-migration/internal/database"
	"github.com/leandro-jm/bulk-migration/internal/migration"
)

func TestMemStoreLoadConnectionNotFound(t *testing.T) {
	store := NewMemStore()
	_, err := store.LoadConnection(context.Background(), "missing")
	if err != migration.ErrConnectionNotFound {
		t.Errorf("LoadConnection error = %v, want %v", err, migration.ErrConnectionNotFound)
	}
}

func TestMemStoreLoadConnectionRoundTrip(t *testing.T) {
	store := NewMemStore()
	spec := database.ConnectionSpec{Host: "localhost", Port: 5432, Database: "app"}
	store.PutConnection("source", spec)

	got, err := store.LoadConnection(context.Background(), "source")
	if err != nil {
		t.Fatalf("LoadConnection returned error: %v", err)
	}
	if got != spec {
		t.Errorf("LoadConnection = %+v, want %+v", got, spec)
	}
}

func TestMemStoreUpdateJobMergesFields(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	running := migration.JobRunning
	if err := store.UpdateJob(ctx, "job-1", migration.JobUpdate{Status: &running}); err != nil {
		t.Fatalf("UpdateJob returned error: %v", err)
	}

	duration := int64(1500)
	completed := migration.JobCompleted
	if err := store.UpdateJob(ctx, "job-1", migration.JobUpdate{Status: &completed, DurationMS: &duration}); err != nil {
		t.Fatalf("UpdateJob returned error: %v", err)
	}

	record, ok := store.Record("job-1")
	if !ok {
		t.Fatalf("Record not found after UpdateJob")
	}
	if record.Status != migration.JobCompleted {
		t.Errorf("record.Status = %v, want %v", record.Status, migration.JobCompleted)
	}
	if record.DurationMS != duration {
		t.Errorf("record.DurationMS = %d, want %d", record.DurationMS, duration)
	}
}

func TestMemStoreAppendLogAccumulates(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		event := migration.LogEvent{JobID: "job-1", Level: migration.LevelInfo, Message: "step"}
		if err := store.AppendLog(ctx, event); err != nil {
			t.Fatalf("AppendLog returned error: %v", err)
		}
	}

	logs := store.Logs("job-1")
	if len(logs) != 3 {
		t.Errorf("len(logs) = %d, want 3", len(logs))
	}
	for _, l := range logs {
		if l.Timestamp.IsZero() {
			t.Errorf("AppendLog left Timestamp zero")
		}
	}
}
