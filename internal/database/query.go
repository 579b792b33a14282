package database

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by *pgx.Conn, pgx.Tx, and *pgxpool.Pool. Components
// depend on this instead of a concrete connection type so introspection can
// run inside an open transaction when that's useful.
type Querier interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Execer is satisfied by the same set of types and adds Exec, for DDL/DML.
type Execer interface {
	Querier
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdent reports whether name is safe to splice into SQL after quoting.
// Table and column names reaching this package originate from a prior
// introspection query against the same server, which already closes the
// obvious injection path, but callers should still validate before splicing
// anything that did not come straight out of the catalog.
func ValidIdent(name string) bool {
	return identPattern.MatchString(name)
}

// QuoteIdent double-quotes name for use as a SQL identifier, escaping any
// embedded double quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteQualified double-quotes and dot-joins a schema-qualified identifier.
func QuoteQualified(schema, name string) string {
	return fmt.Sprintf("%s.%s", QuoteIdent(schema), QuoteIdent(name))
}
