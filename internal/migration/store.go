package migration

import (
	"context"
	"errors"

	"github.com/leandro-jm/bulk-migration/internal/database"
)

// ErrConnectionNotFound is returned by Store.LoadConnection when id does not
// resolve to a known ConnectionSpec.
var ErrConnectionNotFound = errors.New("connection not found")

// JobUpdate carries the fields a Coordinator run wants to persist about a
// job; nil fields are left untouched by the Store.
type JobUpdate struct {
	Status       *JobStatus
	Result       []TableResult
	DurationMS   *int64
	ErrorMessage *string
}

// BroadcasterFactory mints a job-scoped Broadcaster. A Manager running many
// jobs concurrently needs one Broadcaster per job, never a single shared one,
// or one job's progress traffic would leak into another's.
type BroadcasterFactory interface {
	Sink(jobID string) Broadcaster
}

// Store is the external Job Store contract (C6) the Coordinator depends on.
// It is deliberately narrow: connection/preset/job persistence, HTTP surface,
// and UI all live outside the engine, per base spec §1.
type Store interface {
	LoadConnection(ctx context.Context, id string) (database.ConnectionSpec, error)
	UpdateJob(ctx context.Context, id string, update JobUpdate) error
	AppendLog(ctx context.Context, event LogEvent) error
}
