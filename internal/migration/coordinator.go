package migration

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leandro-jm/bulk-migration/internal/database"
)

// Coordinator drives one migration job end to end (C5): it resolves
// connections, opens pooled connections to both sides, iterates the job's
// TableTasks in order, dispatches each to the Schema Replayer or Data
// Replicator, and isolates per-table failures so one bad table never aborts
// the job.
type Coordinator struct {
	store    Store
	hub      Broadcaster
	logger   *log.Logger
	progress *Progress
}

// NewCoordinator builds a Coordinator backed by store for durable state and
// hub for live progress; hub may be nil. Each job run gets its own
// Coordinator instance — Manager constructs one per Start call — so a
// single Coordinator's Progress is never shared across jobs.
func NewCoordinator(store Store, hub Broadcaster, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{store: store, hub: hub, logger: logger}
}

// Progress returns the live Progress tracker for the job currently (or most
// recently) run by this Coordinator, or nil before the first Run call.
func (c *Coordinator) Progress() *Progress {
	return c.progress
}

// Run executes spec to completion and returns the terminal JobRecord. Run
// never panics: every failure surfaces either as a job-fatal JobRecord
// (connection lifecycle errors) or as a failed TableResult for the table
// that triggered it.
func (c *Coordinator) Run(ctx context.Context, spec JobSpec) JobRecord {
	start := time.Now()

	record := JobRecord{
		JobID:              spec.JobID,
		SourceConnectionID: spec.SourceConnectionID,
		TargetConnectionID: spec.TargetConnectionID,
	}
	c.progress = NewProgress(spec.JobID, spec.Tasks, c.hub)

	sourceSpec, err := c.store.LoadConnection(ctx, spec.SourceConnectionID)
	if err != nil {
		return c.failJob(ctx, record, start, "Source or target connection not found")
	}
	targetSpec, err := c.store.LoadConnection(ctx, spec.TargetConnectionID)
	if err != nil {
		return c.failJob(ctx, record, start, "Source or target connection not found")
	}

	sourcePool, err := database.NewPool(ctx, sourceSpec, database.DataPoolOptions())
	if err != nil {
		return c.failJob(ctx, record, start, fmt.Sprintf("opening source connection: %v", err))
	}
	defer sourcePool.Close()

	targetPool, err := database.NewPool(ctx, targetSpec, database.DataPoolOptions())
	if err != nil {
		return c.failJob(ctx, record, start, fmt.Sprintf("opening target connection: %v", err))
	}
	defer targetPool.Close()

	var results []TableResult
	for _, task := range spec.Tasks {
		result := c.runTask(ctx, spec.JobID, sourcePool, targetPool, task)
		results = append(results, result)
	}

	durationMS := time.Since(start).Milliseconds()
	record.Status = JobCompleted
	record.Result = results
	record.DurationMS = durationMS
	status := JobCompleted
	c.store.UpdateJob(ctx, spec.JobID, JobUpdate{
		Status:     &status,
		Result:     results,
		DurationMS: &durationMS,
	})
	c.progress.Finish()
	return record
}

func (c *Coordinator) runTask(ctx context.Context, jobID string, sourcePool, targetPool *pgxpool.Pool, task TableTask) TableResult {
	c.log(ctx, jobID, task.TableName, LevelInfo, fmt.Sprintf("Starting migration with rule: %s", task.Rule))
	c.progress.SetCurrentTable(task.TableName)
	c.progress.UpdateTable(task.TableName, "running", 0, 0)

	srcConn, err := sourcePool.Acquire(ctx)
	if err != nil {
		return c.failTable(ctx, jobID, task, fmt.Sprintf("acquiring source connection: %v", err))
	}
	defer srcConn.Release()

	dstConn, err := targetPool.Acquire(ctx)
	if err != nil {
		return c.failTable(ctx, jobID, task, fmt.Sprintf("acquiring target connection: %v", err))
	}
	defer dstConn.Release()

	cols, err := database.Columns(ctx, srcConn, task.TableName)
	if err != nil {
		return c.failTable(ctx, jobID, task, fmt.Sprintf("introspecting columns: %v", err))
	}
	jsonColumns, arrayColumns := database.ClassifyColumns(cols)
	c.log(ctx, jobID, task.TableName, LevelInfo,
		fmt.Sprintf("classified columns: %d json, %d array", len(jsonColumns), len(arrayColumns)))

	rowsMigrated, err := c.dispatch(ctx, task, srcConn, dstConn, jsonColumns, arrayColumns)
	if err != nil {
		return c.failTable(ctx, jobID, task, err.Error())
	}

	c.progress.UpdateTable(task.TableName, "completed", rowsMigrated, rowsMigrated)
	return TableResult{
		Table:        task.TableName,
		Rule:         task.Rule,
		RowsMigrated: rowsMigrated,
		Status:       ResultSuccess,
	}
}

func (c *Coordinator) dispatch(ctx context.Context, task TableTask, src *pgxpool.Conn, dst *pgxpool.Conn, jsonColumns, arrayColumns map[string]bool) (int64, error) {
	switch task.Rule {
	case RuleSchema:
		return RunSchemaOnly(ctx, src, dst, task.TableName, c.logger)
	case RuleOverwrite:
		return RunOverwrite(ctx, src, dst, task.TableName, jsonColumns, arrayColumns, c.logger)
	case RuleUpsert:
		return RunUpsert(ctx, src, dst, task.TableName, jsonColumns, arrayColumns, c.logger)
	case RuleIgnore:
		return RunInsertIgnore(ctx, src, dst, task.TableName, jsonColumns, arrayColumns, c.logger)
	default:
		return 0, fmt.Errorf("unknown rule %q", task.Rule)
	}
}

func (c *Coordinator) failTable(ctx context.Context, jobID string, task TableTask, msg string) TableResult {
	c.log(ctx, jobID, task.TableName, LevelError, msg)
	c.progress.UpdateTable(task.TableName, "failed", 0, 0)
	return TableResult{
		Table:  task.TableName,
		Rule:   task.Rule,
		Status: ResultFailed,
		Error:  msg,
	}
}

func (c *Coordinator) failJob(ctx context.Context, record JobRecord, start time.Time, msg string) JobRecord {
	durationMS := time.Since(start).Milliseconds()
	record.Status = JobFailed
	record.ErrorMessage = msg
	record.DurationMS = durationMS
	status := JobFailed
	c.store.UpdateJob(ctx, record.JobID, JobUpdate{
		Status:       &status,
		DurationMS:   &durationMS,
		ErrorMessage: &msg,
	})
	c.log(ctx, record.JobID, "", LevelError, msg)
	if c.progress != nil {
		c.progress.FinishWithError(msg)
	}
	return record
}

// log appends a LogEvent both durably (best-effort, per base spec §4.6) and
// to the live WebSocket hub, if one is attached.
func (c *Coordinator) log(ctx context.Context, jobID, table string, level LogLevel, message string) {
	event := LogEvent{
		JobID:     jobID,
		TableName: table,
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	}
	if err := c.store.AppendLog(ctx, event); err != nil {
		c.logger.Printf("log append failed (swallowed): %v", err)
	}
	if c.hub != nil {
		if payload, err := encodeLogEvent(event); err == nil {
			c.hub.Broadcast(payload)
		}
	}
}
