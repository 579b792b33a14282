package database

import (
	"context"
	"fmt"
	"strings"
)

// ColumnDescriptor describes one column of a table as seen by
// information_schema.columns, restricted to the public schema.
type ColumnDescriptor struct {
	Name                   string
	DataType               string
	UDTName                string
	IsNullable             bool
	CharacterMaximumLength *int
	NumericPrecision       *int
	NumericScale           *int
	ColumnDefault          *string
}

// SequenceDescriptor describes a sequence owned by a serial-style column.
type SequenceDescriptor struct {
	Name         string
	Increment    int64
	MinimumValue int64
	StartValue   int64
	OwnerTable   string
	OwnerColumn  string
}

// ConstraintKind enumerates the constraint kinds the introspector reports.
type ConstraintKind string

const (
	ConstraintPrimary ConstraintKind = "primary"
	ConstraintUnique  ConstraintKind = "unique"
	ConstraintForeign ConstraintKind = "foreign"
)

// ConstraintDescriptor describes a primary, unique, or foreign key constraint.
type ConstraintDescriptor struct {
	Kind             ConstraintKind
	Name             string
	Columns          []string
	ReferencedTable  string
	ReferencedColumn []string
	UpdateAction     string
	DeleteAction     string
}

// IndexDescriptor carries a full CREATE INDEX definition, replayed verbatim.
type IndexDescriptor struct {
	Name       string
	Definition string
}

// Columns returns table's columns from information_schema, ordered by
// ordinal_position, restricted to the public schema.
func Columns(ctx context.Context, q Querier, table string) ([]ColumnDescriptor, error) {
	rows, err := q.Query(ctx, `
		SELECT column_name, data_type, udt_name, is_nullable,
		       character_maximum_length, numeric_precision, numeric_scale, column_default
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("querying columns for %s: %w", table, err)
	}
	defer rows.Close()

	var out []ColumnDescriptor
	for rows.Next() {
		var c ColumnDescriptor
		var nullable string
		if err := rows.Scan(&c.Name, &c.DataType, &c.UDTName, &nullable,
			&c.CharacterMaximumLength, &c.NumericPrecision, &c.NumericScale, &c.ColumnDefault); err != nil {
			return nil, fmt.Errorf("scanning column for %s: %w", table, err)
		}
		c.IsNullable = nullable == "YES"
		out = append(out, c)
	}
	return out, rows.Err()
}

// ClassifyColumns precomputes the JSON and ARRAY column name sets for a
// table once, so the hot row-preparation path never does string comparisons
// per cell.
func ClassifyColumns(cols []ColumnDescriptor) (jsonColumns, arrayColumns map[string]bool) {
	jsonColumns = make(map[string]bool)
	arrayColumns = make(map[string]bool)
	for _, c := range cols {
		dt := strings.ToLower(c.DataType)
		udt := strings.ToLower(c.UDTName)
		if dt == "json" || dt == "jsonb" || udt == "json" || udt == "jsonb" {
			jsonColumns[c.Name] = true
		}
		if dt == "array" || strings.HasPrefix(udt, "_") {
			arrayColumns[c.Name] = true
		}
	}
	return jsonColumns, arrayColumns
}

// Sequences returns the sequences owned by table's serial-style columns,
// joining information_schema.sequences with pg_get_serial_sequence.
func Sequences(ctx context.Context, q Querier, table string) ([]SequenceDescriptor, error) {
	cols, err := Columns(ctx, q, table)
	if err != nil {
		return nil, err
	}

	var out []SequenceDescriptor
	for _, c := range cols {
		var seqRegclass *string
		err := q.QueryRow(ctx, `SELECT pg_get_serial_sequence($1, $2)`, table, c.Name).Scan(&seqRegclass)
		if err != nil {
			return nil, fmt.Errorf("resolving serial sequence for %s.%s: %w", table, c.Name, err)
		}
		if seqRegclass == nil || *seqRegclass == "" {
			continue
		}
		seqName := stripSchemaQualifier(*seqRegclass)

		var desc SequenceDescriptor
		err = q.QueryRow(ctx, `
			SELECT increment, minimum_value, start_value
			FROM information_schema.sequences
			WHERE sequence_schema = 'public' AND sequence_name = $1`, seqName).
			Scan(&desc.Increment, &desc.MinimumValue, &desc.StartValue)
		if err != nil {
			return nil, fmt.Errorf("describing sequence %s: %w", seqName, err)
		}
		desc.Name = seqName
		desc.OwnerTable = table
		desc.OwnerColumn = c.Name
		out = append(out, desc)
	}
	return out, nil
}

// UniqueConstraints aggregates information_schema.table_constraints and
// key_column_usage for constraint_type='UNIQUE'.
func UniqueConstraints(ctx context.Context, q Querier, table string) ([]ConstraintDescriptor, error) {
	rows, err := q.Query(ctx, `
		SELECT tc.constraint_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
		WHERE tc.table_schema = 'public' AND tc.table_name = $1 AND tc.constraint_type = 'UNIQUE'
		ORDER BY tc.constraint_name, kcu.ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("querying unique constraints for %s: %w", table, err)
	}
	defer rows.Close()

	byName := make(map[string]*ConstraintDescriptor)
	var order []string
	for rows.Next() {
		var name, col string
		if err := rows.Scan(&name, &col); err != nil {
			return nil, fmt.Errorf("scanning unique constraint for %s: %w", table, err)
		}
		d, ok := byName[name]
		if !ok {
			d = &ConstraintDescriptor{Kind: ConstraintUnique, Name: name}
			byName[name] = d
			order = append(order, name)
		}
		d.Columns = append(d.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ConstraintDescriptor, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}

// PrimaryKey returns table's primary key column names in key order, from
// pg_index joined to pg_attribute on indisprimary.
func PrimaryKey(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT a.attname
		FROM pg_index i
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		JOIN pg_class c ON c.oid = i.indrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = 'public' AND c.relname = $1 AND i.indisprimary
		ORDER BY array_position(i.indkey, a.attnum)`, table)
	if err != nil {
		return nil, fmt.Errorf("querying primary key for %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scanning primary key column for %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// ForeignKeys returns table's foreign key constraints. Available but
// currently unused in schema replay; see base spec §9.
func ForeignKeys(ctx context.Context, q Querier, table string) ([]ConstraintDescriptor, error) {
	rows, err := q.Query(ctx, `
		SELECT
			c.conname,
			kcu.column_name,
			ccu.table_name AS referenced_table,
			ccu.column_name AS referenced_column,
			c.confupdtype,
			c.confdeltype
		FROM pg_constraint c
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = c.conname AND kcu.table_schema = 'public'
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_name = c.conname AND ccu.table_schema = 'public'
		JOIN pg_class t ON t.oid = c.conrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE n.nspname = 'public' AND t.relname = $1 AND c.contype = 'f'
		ORDER BY c.conname, kcu.ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("querying foreign keys for %s: %w", table, err)
	}
	defer rows.Close()

	byName := make(map[string]*ConstraintDescriptor)
	var order []string
	for rows.Next() {
		var name, col, refTable, refCol, updAction, delAction string
		if err := rows.Scan(&name, &col, &refTable, &refCol, &updAction, &delAction); err != nil {
			return nil, fmt.Errorf("scanning foreign key for %s: %w", table, err)
		}
		d, ok := byName[name]
		if !ok {
			d = &ConstraintDescriptor{
				Kind:            ConstraintForeign,
				Name:            name,
				ReferencedTable: refTable,
				UpdateAction:    updAction,
				DeleteAction:    delAction,
			}
			byName[name] = d
			order = append(order, name)
		}
		d.Columns = append(d.Columns, col)
		d.ReferencedColumn = append(d.ReferencedColumn, refCol)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ConstraintDescriptor, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}

// Indexes returns table's index definitions from pg_indexes, excluding the
// primary key index.
func Indexes(ctx context.Context, q Querier, table string) ([]IndexDescriptor, error) {
	rows, err := q.Query(ctx, `
		SELECT indexname, indexdef
		FROM pg_indexes
		WHERE schemaname = 'public' AND tablename = $1 AND indexname NOT LIKE '%\_pkey' ESCAPE '\'
		ORDER BY indexname`, table)
	if err != nil {
		return nil, fmt.Errorf("querying indexes for %s: %w", table, err)
	}
	defer rows.Close()

	var out []IndexDescriptor
	for rows.Next() {
		var d IndexDescriptor
		if err := rows.Scan(&d.Name, &d.Definition); err != nil {
			return nil, fmt.Errorf("scanning index for %s: %w", table, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// TableExists reports whether table exists in the public schema.
func TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)`, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking table_exists for %s: %w", table, err)
	}
	return exists, nil
}

// TableIsEmpty reports whether table has zero rows, via a fast COUNT(*) path.
func TableIsEmpty(ctx context.Context, q Querier, table string) (bool, error) {
	if !ValidIdent(table) {
		return false, fmt.Errorf("invalid identifier %q", table)
	}
	var count int64
	err := q.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, QuoteIdent(table))).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("counting rows in %s: %w", table, err)
	}
	return count == 0, nil
}

// stripSchemaQualifier takes pg_get_serial_sequence's quoted
// "schema"."sequence" result and returns the last dotted component, unquoted.
func stripSchemaQualifier(regclass string) string {
	parts := strings.Split(regclass, ".")
	last := parts[len(parts)-1]
	last = strings.TrimPrefix(last, `"`)
	last = strings.TrimSuffix(last, `"`)
	return last
}
