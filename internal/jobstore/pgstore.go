package jobstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leandro-jm/bulk-migration/internal/database"
	"github.com/leandro-jm/bulk-migration/internal/migration"
)

// PgStore is the pgxpool-backed migration.Store against the connections,
// migrations, and migration_logs tables. It is the durable implementation
// the HTTP surface (the serve command) uses; the CLI's one-shot migrate
// command uses MemStore instead.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// LoadConnection resolves a connection row into the opaque ConnectionSpec
// the engine needs to dial the source or target.
func (s *PgStore) LoadConnection(ctx context.Context, id string) (database.ConnectionSpec, error) {
	var spec database.ConnectionSpec
	var sslEnabled, verifyPeer bool
	var sslMode string
	err := s.pool.QueryRow(ctx, `
		SELECT host, port, database, username, password, ssl, ssl_mode, verify_peer
		FROM connections WHERE id = $1`, id).
		Scan(&spec.Host, &spec.Port, &spec.Database, &spec.User, &spec.Password, &sslEnabled, &sslMode, &verifyPeer)
	if err != nil {
		return database.ConnectionSpec{}, fmt.Errorf("%w: %v", migration.ErrConnectionNotFound, err)
	}
	spec.TLS = database.TLSSpec{
		Enabled:    sslEnabled,
		Mode:       database.TLSMode(sslMode),
		VerifyPeer: verifyPeer,
	}
	return spec, nil
}

// UpdateJob persists the fields update sets on the migrations row for id.
// Each field updates independently; nil fields are left untouched.
func (s *PgStore) UpdateJob(ctx context.Context, id string, update migration.JobUpdate) error {
	if update.Status != nil {
		if _, err := s.pool.Exec(ctx, `UPDATE migrations SET status = $1, updated_at = now() WHERE id = $2`,
			string(*update.Status), id); err != nil {
			return fmt.Errorf("updating migration status for %s: %w", id, err)
		}
	}
	if update.Result != nil {
		payload, err := json.Marshal(update.Result)
		if err != nil {
			return fmt.Errorf("encoding result for %s: %w", id, err)
		}
		if _, err := s.pool.Exec(ctx, `UPDATE migrations SET result = $1, updated_at = now() WHERE id = $2`,
			string(payload), id); err != nil {
			return fmt.Errorf("updating migration result for %s: %w", id, err)
		}
	}
	if update.DurationMS != nil {
		if _, err := s.pool.Exec(ctx, `UPDATE migrations SET duration_ms = $1, updated_at = now() WHERE id = $2`,
			*update.DurationMS, id); err != nil {
			return fmt.Errorf("updating migration duration for %s: %w", id, err)
		}
	}
	if update.ErrorMessage != nil {
		if _, err := s.pool.Exec(ctx, `UPDATE migrations SET error_message = $1, updated_at = now() WHERE id = $2`,
			*update.ErrorMessage, id); err != nil {
			return fmt.Errorf("updating migration error for %s: %w", id, err)
		}
	}
	return nil
}

// AppendLog inserts one row into migration_logs.
func (s *PgStore) AppendLog(ctx context.Context, event migration.LogEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO migration_logs (migration_id, collection_name, level, message, timestamp)
		VALUES ($1, $2, $3, $4, $5)`,
		event.JobID, event.TableName, string(event.Level), event.Message, event.Timestamp)
	if err != nil {
		return fmt.Errorf("appending log for %s: %w", event.JobID, err)
	}
	return nil
}

// CreateMigration inserts a running migrations row for a newly submitted
// job, returning nothing: the caller already knows the job id it generated.
func (s *PgStore) CreateMigration(ctx context.Context, spec migration.JobSpec) error {
	tasks, err := json.Marshal(spec.Tasks)
	if err != nil {
		return fmt.Errorf("encoding job tasks: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO migrations (id, source_connection_id, target_connection_id, status, global_rule, collections)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		spec.JobID, spec.SourceConnectionID, spec.TargetConnectionID, string(migration.JobRunning), string(spec.GlobalRule), string(tasks))
	if err != nil {
		return fmt.Errorf("creating migration %s: %w", spec.JobID, err)
	}
	return nil
}

// LoadMigration returns the current JobRecord for id.
func (s *PgStore) LoadMigration(ctx context.Context, id string) (migration.JobRecord, error) {
	var record migration.JobRecord
	var status string
	var result, errMsg *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, source_connection_id, target_connection_id, status, result, duration_ms, error_message
		FROM migrations WHERE id = $1`, id).
		Scan(&record.JobID, &record.SourceConnectionID, &record.TargetConnectionID, &status, &result, &record.DurationMS, &errMsg)
	if err != nil {
		return migration.JobRecord{}, fmt.Errorf("loading migration %s: %w", id, err)
	}
	record.Status = migration.JobStatus(status)
	if errMsg != nil {
		record.ErrorMessage = *errMsg
	}
	if result != nil {
		if err := json.Unmarshal([]byte(*result), &record.Result); err != nil {
			return migration.JobRecord{}, fmt.Errorf("decoding migration result %s: %w", id, err)
		}
	}
	return record, nil
}

// LoadLogs returns id's log events after afterID, ordered by timestamp,
// capped at limit rows.
func (s *PgStore) LoadLogs(ctx context.Context, id string, afterID int64, limit int) ([]migration.LogEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT collection_name, level, message, timestamp
		FROM migration_logs
		WHERE migration_id = $1 AND id > $2
		ORDER BY timestamp ASC
		LIMIT $3`, id, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading logs for %s: %w", id, err)
	}
	defer rows.Close()

	var out []migration.LogEvent
	for rows.Next() {
		event := migration.LogEvent{JobID: id}
		var level string
		if err := rows.Scan(&event.TableName, &level, &event.Message, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning log row for %s: %w", id, err)
		}
		event.Level = migration.LogLevel(level)
		out = append(out, event)
	}
	return out, rows.Err()
}
