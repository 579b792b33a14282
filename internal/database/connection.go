package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TLSMode mirrors the wire vocabulary a caller may request for a connection.
type TLSMode string

const (
	TLSDisable TLSMode = "disable"
	TLSRequire TLSMode = "require"
	TLSPrefer  TLSMode = "prefer"
)

// TLSSpec is the opaque TLS block carried on a ConnectionSpec. The engine
// never inspects its contents beyond building a libpq sslmode string from it.
type TLSSpec struct {
	Enabled    bool    `json:"enabled"`
	Mode       TLSMode `json:"mode"`
	VerifyPeer bool    `json:"verify_peer"`
}

// ConnectionSpec is the engine's view of a connection: host, port, database,
// user, password plus the TLS block. Opaque to the engine otherwise; supplied
// by the caller (the HTTP surface, resolved from a ConnectionRecord).
type ConnectionSpec struct {
	Host     string  `json:"host"`
	Port     int     `json:"port"`
	Database string  `json:"database"`
	User     string  `json:"user"`
	Password string  `json:"password"`
	TLS      TLSSpec `json:"tls"`
}

// sslMode derives the libpq sslmode parameter from the TLS block. verify_peer
// without verify-ca/verify-full support in the base spec maps to the closest
// libpq mode that still validates the server certificate.
func (c ConnectionSpec) sslMode() string {
	if !c.TLS.Enabled {
		return "disable"
	}
	switch c.TLS.Mode {
	case TLSRequire:
		if c.TLS.VerifyPeer {
			return "verify-full"
		}
		return "require"
	case TLSPrefer:
		return "prefer"
	default:
		return "disable"
	}
}

// DSN renders a libpq keyword/value connection string for this spec.
func (c ConnectionSpec) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host,
		c.Port,
		c.Database,
		c.User,
		c.Password,
		c.sslMode(),
	)
}

// Connect opens a single unpooled connection, used for probe operations
// (connection tests, one-off introspection outside a job).
func Connect(ctx context.Context, spec ConnectionSpec) (*pgx.Conn, error) {
	cfg, err := pgx.ParseConfig(spec.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing connection spec: %w", err)
	}
	// Simple protocol keeps text decoding working for types like "char".
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	return conn, nil
}

// PoolOptions bounds a job-scoped connection pool. Two short-lived pools are
// opened per job, one per side, per the resource model: min 0 so an idle job
// holds no server-side connections, a small max so data motion never floods
// the target with concurrent writers beyond what a single logical worker needs.
type PoolOptions struct {
	MinConns int32
	MaxConns int32
}

// ProbePoolOptions is a single-connection bound for a read-probe pool. No
// caller in this repository opens a pool with it: the Coordinator runs its
// table_exists/table_is_empty probes on its data-pool connections, and the
// connection test endpoint uses Connect.
func ProbePoolOptions() PoolOptions {
	return PoolOptions{MinConns: 0, MaxConns: 1}
}

// DataPoolOptions bounds a pool used for schema replay and data motion.
func DataPoolOptions() PoolOptions {
	return PoolOptions{MinConns: 0, MaxConns: 4}
}

// NewPool opens a pgxpool.Pool for spec, bounded by opts. Callers must Close
// the pool on every exit path, including job-fatal errors.
func NewPool(ctx context.Context, spec ConnectionSpec, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(spec.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing pool config: %w", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	cfg.MinConns = opts.MinConns
	cfg.MaxConns = opts.MaxConns
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening pool: %w", err)
	}
	return pool, nil
}
