package migration

import "time"

// Rule is the closed sum type of per-table replication strategies. Base
// spec §9 calls for expressing the four rules this way, with a dispatch
// switch in the Coordinator, instead of per-row dynamic dispatch.
type Rule string

const (
	RuleSchema    Rule = "schema"
	RuleOverwrite Rule = "overwrite"
	RuleUpsert    Rule = "upsert"
	RuleIgnore    Rule = "ignore"
)

// Valid reports whether r is one of the four rules the engine dispatches on.
// The HTTP surface calls this before a JobSpec is ever constructed; the
// engine itself assumes valid input.
func (r Rule) Valid() bool {
	switch r {
	case RuleSchema, RuleOverwrite, RuleUpsert, RuleIgnore:
		return true
	default:
		return false
	}
}

// TableTask pairs a table name with the rule the job applies to it.
type TableTask struct {
	TableName string `json:"table_name"`
	Rule      Rule   `json:"rule"`
}

// JobSpec is the caller-submitted description of one migration job. Source
// and target are connection *references*; the Coordinator resolves them
// through the Job Store at the start of a run.
type JobSpec struct {
	JobID              string      `json:"job_id"`
	SourceConnectionID string      `json:"source_connection_id"`
	TargetConnectionID string      `json:"target_connection_id"`
	GlobalRule         Rule        `json:"global_rule"`
	Tasks              []TableTask `json:"tasks"`
}

// ResultStatus is the terminal state of one TableResult.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
)

// TableResult is the per-table outcome of one job.
type TableResult struct {
	Table        string       `json:"table"`
	Rule         Rule         `json:"rule"`
	RowsMigrated int64        `json:"rows_migrated"`
	Status       ResultStatus `json:"status"`
	Error        string       `json:"error,omitempty"`
}

// JobStatus is the monotonic lifecycle state of a JobRecord:
// pending -> running -> {completed | failed}, never backwards.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobRecord is the terminal (or in-flight) record the Coordinator writes
// through the Job Store.
type JobRecord struct {
	JobID              string        `json:"job_id"`
	SourceConnectionID string        `json:"source_connection_id"`
	TargetConnectionID string        `json:"target_connection_id"`
	Status             JobStatus     `json:"status"`
	Result             []TableResult `json:"result,omitempty"`
	DurationMS         int64         `json:"duration_ms"`
	ErrorMessage       string        `json:"error_message,omitempty"`
}

// LogLevel is the severity of a LogEvent.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// LogEvent is one entry in the job's time-ordered log stream.
type LogEvent struct {
	JobID     string    `json:"job_id"`
	TableName string    `json:"table_name,omitempty"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// SchemaChanges is the Schema Replayer's report of what it did to bring the
// target table structurally in line with the source.
type SchemaChanges struct {
	TableCreated     bool
	SequencesCreated int
	ColumnsAdded     []string
	Errors           []string
}

// TableProgress is the live, in-memory progress snapshot of one table,
// distinct from the durable TableResult the job ends with.
type TableProgress struct {
	Table        string `json:"table"`
	Status       string `json:"status"`
	TotalRows    int64  `json:"total_rows"`
	MigratedRows int64  `json:"migrated_rows"`
	Percent      int    `json:"percent"`
}

// Status is the live snapshot a Manager exposes through Manager.Status while
// a job is running, and that Progress broadcasts over the WebSocket hub. The
// HTTP handlers do not serve it; GET /api/migrations/{id} returns JobRecord.
type Status struct {
	JobID        string          `json:"job_id"`
	Running      bool            `json:"running"`
	Overall      int             `json:"overall_percent"`
	ElapsedSec   int64           `json:"elapsed_seconds"`
	CurrentTable string          `json:"current_table,omitempty"`
	LogMessage   string          `json:"log_message,omitempty"`
	Tables       []TableProgress `json:"tables"`
}
