package migration

import (
	"context"
	"errors"
	"log"
	"sync"
)

// ErrAlreadyRunning is returned by Manager.Start when the job id it was
// asked to run is already in flight.
var ErrAlreadyRunning = errors.New("migration already running")

// ErrJobNotFound is returned by Manager lookups for a job id with no
// tracked run, live or finished.
var ErrJobNotFound = errors.New("job not found")

type runningJob struct {
	coord *Coordinator
}

// Manager owns the concurrency boundary the base spec calls for (§5): many
// jobs may run at once, each as its own goroutine, but each job's own table
// loop stays strictly sequential inside the Coordinator it owns. A Manager
// is the process-wide registry of in-flight and completed jobs.
type Manager struct {
	mu      sync.Mutex
	store   Store
	hub     BroadcasterFactory
	logger  *log.Logger
	running map[string]*runningJob
	done    map[string]JobRecord
}

// NewManager builds a Manager backed by store for durable state and hub for
// live progress; hub may be nil, in which case no job broadcasts progress.
func NewManager(store Store, hub BroadcasterFactory, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		store:   store,
		hub:     hub,
		logger:  logger,
		running: make(map[string]*runningJob),
		done:    make(map[string]JobRecord),
	}
}

// Start launches spec's job in its own goroutine and returns immediately.
// Concurrent jobs are independent: one job's failure never affects another.
func (m *Manager) Start(spec JobSpec) error {
	m.mu.Lock()
	if _, ok := m.running[spec.JobID]; ok {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	var sink Broadcaster
	if m.hub != nil {
		sink = m.hub.Sink(spec.JobID)
	}

	coord := NewCoordinator(m.store, sink, m.logger)
	m.running[spec.JobID] = &runningJob{coord: coord}
	m.mu.Unlock()

	go func() {
		// Jobs run to completion or fail on a connection error (base spec
		// §5); the context passed to the Coordinator is never cancelled by
		// Manager.Cancel, so an in-flight statement always finishes.
		record := coord.Run(context.Background(), spec)
		m.mu.Lock()
		delete(m.running, spec.JobID)
		m.done[spec.JobID] = record
		m.mu.Unlock()
	}()

	return nil
}

// Cancel records a cancellation request against the Job Store; it never
// aborts the job itself. Per base spec §5, "cancellation" is advisory only —
// a running job always runs to completion or fails on a connection error,
// and any in-flight statement finishes regardless of this call. It is a
// no-op if the job is not currently running.
func (m *Manager) Cancel(jobID string) {
	m.mu.Lock()
	_, running := m.running[jobID]
	m.mu.Unlock()
	if !running {
		return
	}
	_ = m.store.AppendLog(context.Background(), LogEvent{
		JobID:   jobID,
		Level:   LevelWarning,
		Message: "cancellation requested; advisory only, in-flight statements will run to completion",
	})
}

// Status returns the live progress snapshot for a running job, or the
// terminal JobRecord's synthesized snapshot for a finished one.
func (m *Manager) Status(jobID string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.running[jobID]; ok {
		if p := job.coord.Progress(); p != nil {
			return p.Snapshot(), nil
		}
		return Status{JobID: jobID, Running: true}, nil
	}
	if record, ok := m.done[jobID]; ok {
		return Status{
			JobID:      jobID,
			Running:    false,
			Overall:    100,
			LogMessage: record.ErrorMessage,
		}, nil
	}
	return Status{}, ErrJobNotFound
}

// Record returns the terminal JobRecord for a finished job.
func (m *Manager) Record(jobID string) (JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.done[jobID]
	if !ok {
		return JobRecord{}, ErrJobNotFound
	}
	return record, nil
}
