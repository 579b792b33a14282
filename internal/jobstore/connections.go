package jobstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leandro-jm/bulk-migration/internal/database"
)

// ConnectionStatus is the last-known reachability of a ConnectionRecord.
type ConnectionStatus string

const (
	ConnectionUnknown     ConnectionStatus = "unknown"
	ConnectionOK          ConnectionStatus = "ok"
	ConnectionUnreachable ConnectionStatus = "unreachable"
)

// ConnectionRecord is a persisted, named ConnectionSpec.
type ConnectionRecord struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Host       string           `json:"host"`
	Port       int              `json:"port"`
	Database   string           `json:"database"`
	Username   string           `json:"username"`
	Password   string           `json:"password"`
	SSLEnabled bool             `json:"ssl_enabled"`
	SSLMode    string           `json:"ssl_mode"`
	VerifyPeer bool             `json:"verify_peer"`
	Status     ConnectionStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Spec projects a ConnectionRecord down to the opaque shape the engine
// needs to dial the database.
func (c ConnectionRecord) Spec() database.ConnectionSpec {
	return database.ConnectionSpec{
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
		User:     c.Username,
		Password: c.Password,
		TLS: database.TLSSpec{
			Enabled:    c.SSLEnabled,
			Mode:       database.TLSMode(c.SSLMode),
			VerifyPeer: c.VerifyPeer,
		},
	}
}

// ConnectionStore is the CRUD contract the HTTP surface uses for connections,
// separate from migration.Store so C9's connection management never depends
// on a running job.
type ConnectionStore struct {
	pool *pgxpool.Pool
}

func NewConnectionStore(pool *pgxpool.Pool) *ConnectionStore {
	return &ConnectionStore{pool: pool}
}

// Create inserts a new ConnectionRecord, assigning it a fresh id.
func (s *ConnectionStore) Create(ctx context.Context, rec ConnectionRecord) (ConnectionRecord, error) {
	rec.ID = uuid.NewString()
	rec.Status = ConnectionUnknown
	err := s.pool.QueryRow(ctx, `
		INSERT INTO connections (id, name, host, port, database, username, password, ssl, ssl_mode, verify_peer, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		rec.ID, rec.Name, rec.Host, rec.Port, rec.Database, rec.Username, rec.Password,
		rec.SSLEnabled, rec.SSLMode, rec.VerifyPeer, string(rec.Status)).
		Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return ConnectionRecord{}, fmt.Errorf("creating connection: %w", err)
	}
	return rec, nil
}

// List returns every stored ConnectionRecord, newest first.
func (s *ConnectionStore) List(ctx context.Context) ([]ConnectionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, host, port, database, username, password, ssl, ssl_mode, verify_peer, status, created_at, updated_at
		FROM connections ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	defer rows.Close()

	var out []ConnectionRecord
	for rows.Next() {
		var rec ConnectionRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Host, &rec.Port, &rec.Database, &rec.Username, &rec.Password,
			&rec.SSLEnabled, &rec.SSLMode, &rec.VerifyPeer, &status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		rec.Status = ConnectionStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns one ConnectionRecord by id.
func (s *ConnectionStore) Get(ctx context.Context, id string) (ConnectionRecord, error) {
	var rec ConnectionRecord
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, host, port, database, username, password, ssl, ssl_mode, verify_peer, status, created_at, updated_at
		FROM connections WHERE id = $1`, id).
		Scan(&rec.ID, &rec.Name, &rec.Host, &rec.Port, &rec.Database, &rec.Username, &rec.Password,
			&rec.SSLEnabled, &rec.SSLMode, &rec.VerifyPeer, &status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return ConnectionRecord{}, fmt.Errorf("loading connection %s: %w", id, err)
	}
	rec.Status = ConnectionStatus(status)
	return rec, nil
}

// Delete removes a ConnectionRecord by id.
func (s *ConnectionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM connections WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting connection %s: %w", id, err)
	}
	return nil
}

// SetStatus updates a ConnectionRecord's last-known reachability, as
// reported by the /test endpoint.
func (s *ConnectionStore) SetStatus(ctx context.Context, id string, status ConnectionStatus) error {
	if _, err := s.pool.Exec(ctx, `UPDATE connections SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), id); err != nil {
		return fmt.Errorf("updating connection status %s: %w", id, err)
	}
	return nil
}
