package migration

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leandro-jm/bulk-migration/internal/database"
)

// fakeConn is a pgx-free stand-in for a single connection, covering just
// enough of database.Querier/Execer and dataConn's CopyFrom to drive
// RunOverwrite/RunUpsert/RunInsertIgnore against canned introspection and
// row data instead of a real server. One fakeConn plays the source, another
// the target; each test wires up only the fixtures its scenario touches.
type fakeConn struct {
	columns           []database.ColumnDescriptor
	primaryKey        []string
	uniqueConstraints []database.ConstraintDescriptor
	rows              [][]any   // served by selectAllSQL (no LIMIT/OFFSET)
	batches           [][][]any // served in order by fetchBatch's LIMIT/OFFSET queries

	tableExists bool
	tableEmpty  bool

	execFunc     func(sql string, args []any) (pgconn.CommandTag, error)
	copyFromFunc func(cols []string, rows [][]any) (int64, error)

	fetchCalls    int
	copyFromCalls int
	execLog       []string
}

func (f *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	switch {
	case strings.Contains(sql, "information_schema.columns"):
		return columnRows(f.columns), nil
	case strings.Contains(sql, "table_constraints"):
		return uniqueConstraintRows(f.uniqueConstraints), nil
	case strings.Contains(sql, "pg_indexes"):
		return &fakeScanRows{}, nil
	case strings.Contains(sql, "pg_index"):
		return pkRows(f.primaryKey), nil
	case strings.Contains(sql, "LIMIT") && strings.Contains(sql, "OFFSET"):
		if f.fetchCalls >= len(f.batches) {
			return valueRows(nil), nil
		}
		batch := f.batches[f.fetchCalls]
		f.fetchCalls++
		return valueRows(batch), nil
	default:
		return valueRows(f.rows), nil
	}
}

func (f *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	switch {
	case strings.Contains(sql, "pg_get_serial_sequence"):
		return fakeRowFunc(func(dest ...any) error {
			*(dest[0].(**string)) = nil
			return nil
		})
	case strings.Contains(sql, "EXISTS("):
		return fakeRowFunc(func(dest ...any) error {
			*(dest[0].(*bool)) = f.tableExists
			return nil
		})
	case strings.Contains(sql, "count(*)"):
		return fakeRowFunc(func(dest ...any) error {
			n := int64(0)
			if !f.tableEmpty {
				n = 1
			}
			*(dest[0].(*int64)) = n
			return nil
		})
	default:
		return fakeRowFunc(func(dest ...any) error {
			return fmt.Errorf("fakeConn: unhandled QueryRow %q", sql)
		})
	}
}

func (f *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execLog = append(f.execLog, sql)
	if f.execFunc != nil {
		return f.execFunc(sql, args)
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeConn) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	f.copyFromCalls++
	var rows [][]any
	for rowSrc.Next() {
		vals, err := rowSrc.Values()
		if err != nil {
			return 0, err
		}
		rows = append(rows, vals)
	}
	if err := rowSrc.Err(); err != nil {
		return 0, err
	}
	if f.copyFromFunc != nil {
		return f.copyFromFunc(columnNames, rows)
	}
	return int64(len(rows)), nil
}

// fakeRowFunc adapts a plain function to pgx.Row for QueryRow results.
type fakeRowFunc func(dest ...any) error

func (f fakeRowFunc) Scan(dest ...any) error { return f(dest...) }

// fakeScanRows serves rows whose consumer calls Scan with fixed-arity typed
// destinations, for introspection queries (Columns, PrimaryKey, UniqueConstraints).
type fakeScanRows struct {
	n    int
	idx  int
	scan func(i int, dest ...any) error
}

func (r *fakeScanRows) Close()                                      {}
func (r *fakeScanRows) Err() error                                   { return nil }
func (r *fakeScanRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeScanRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeScanRows) RawValues() [][]byte                          { return nil }
func (r *fakeScanRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeScanRows) Next() bool {
	if r.idx >= r.n {
		return false
	}
	r.idx++
	return true
}

func (r *fakeScanRows) Scan(dest ...any) error {
	return r.scan(r.idx-1, dest...)
}

func (r *fakeScanRows) Values() ([]any, error) {
	return nil, fmt.Errorf("fakeScanRows: Values not supported")
}

// fakeValueRows serves rows whose consumer calls Values(), for table-data
// queries (selectAllSQL, fetchBatch).
type fakeValueRows struct {
	rows [][]any
	idx  int
}

func valueRows(rows [][]any) pgx.Rows { return &fakeValueRows{rows: rows} }

func (r *fakeValueRows) Close()                                      {}
func (r *fakeValueRows) Err() error                                   { return nil }
func (r *fakeValueRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeValueRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeValueRows) RawValues() [][]byte                          { return nil }
func (r *fakeValueRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeValueRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeValueRows) Scan(dest ...any) error {
	return fmt.Errorf("fakeValueRows: Scan not supported")
}

func (r *fakeValueRows) Values() ([]any, error) {
	return r.rows[r.idx-1], nil
}

// columnRows mirrors database.Columns' Scan destinations exactly:
// name, data_type, udt_name, nullable, char_max_len, numeric_precision,
// numeric_scale, column_default.
func columnRows(cols []database.ColumnDescriptor) pgx.Rows {
	return &fakeScanRows{n: len(cols), scan: func(i int, dest ...any) error {
		c := cols[i]
		nullable := "NO"
		if c.IsNullable {
			nullable = "YES"
		}
		*dest[0].(*string) = c.Name
		*dest[1].(*string) = c.DataType
		*dest[2].(*string) = c.UDTName
		*dest[3].(*string) = nullable
		*dest[4].(**int) = c.CharacterMaximumLength
		*dest[5].(**int) = c.NumericPrecision
		*dest[6].(**int) = c.NumericScale
		*dest[7].(**string) = c.ColumnDefault
		return nil
	}}
}

// pkRows mirrors database.PrimaryKey's single-column Scan per row.
func pkRows(cols []string) pgx.Rows {
	return &fakeScanRows{n: len(cols), scan: func(i int, dest ...any) error {
		*dest[0].(*string) = cols[i]
		return nil
	}}
}

// uniqueConstraintRows mirrors database.UniqueConstraints' (name, column)
// Scan per row, flattening each constraint's column list.
func uniqueConstraintRows(constraints []database.ConstraintDescriptor) pgx.Rows {
	type pair struct{ name, col string }
	var pairs []pair
	for _, c := range constraints {
		for _, col := range c.Columns {
			pairs = append(pairs, pair{c.Name, col})
		}
	}
	return &fakeScanRows{n: len(pairs), scan: func(i int, dest ...any) error {
		*dest[0].(*string) = pairs[i].name
		*dest[1].(*string) = pairs[i].col
		return nil
	}}
}
