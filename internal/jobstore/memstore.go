package jobstore

import (
	"context"
	"sync"
	"time"

	"github.com/leandro-jm/bulk-migration/internal/database"
	"github.com/leandro-jm/bulk-migration/internal/migration"
)

// MemStore is an in-memory migration.Store, used by the CLI's one-shot
// migrate command and by tests that never touch a real job database.
type MemStore struct {
	mu          sync.Mutex
	connections map[string]database.ConnectionSpec
	jobs        map[string]migration.JobRecord
	logs        map[string][]migration.LogEvent
}

func NewMemStore() *MemStore {
	return &MemStore{
		connections: make(map[string]database.ConnectionSpec),
		jobs:        make(map[string]migration.JobRecord),
		logs:        make(map[string][]migration.LogEvent),
	}
}

// PutConnection registers a connection under id, for callers that resolve
// connection references before submitting a job.
func (s *MemStore) PutConnection(id string, spec database.ConnectionSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[id] = spec
}

func (s *MemStore) LoadConnection(ctx context.Context, id string) (database.ConnectionSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := s.connections[id]
	if !ok {
		return database.ConnectionSpec{}, migration.ErrConnectionNotFound
	}
	return spec, nil
}

func (s *MemStore) UpdateJob(ctx context.Context, id string, update migration.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.jobs[id]
	record.JobID = id
	if update.Status != nil {
		record.Status = *update.Status
	}
	if update.Result != nil {
		record.Result = update.Result
	}
	if update.DurationMS != nil {
		record.DurationMS = *update.DurationMS
	}
	if update.ErrorMessage != nil {
		record.ErrorMessage = *update.ErrorMessage
	}
	s.jobs[id] = record
	return nil
}

func (s *MemStore) AppendLog(ctx context.Context, event migration.LogEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.logs[event.JobID] = append(s.logs[event.JobID], event)
	return nil
}

// Record returns the current JobRecord for id, as last written by UpdateJob.
func (s *MemStore) Record(id string) (migration.JobRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.jobs[id]
	return record, ok
}

// Logs returns id's accumulated log stream in append order.
func (s *MemStore) Logs(id string) []migration.LogEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]migration.LogEvent, len(s.logs[id]))
	copy(out, s.logs[id])
	return out
}
