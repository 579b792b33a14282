package migration

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/leandro-jm/bulk-migration/internal/database"
)

// ReplaySchema implements the Schema Replayer (C3): it produces a target
// table structurally compatible with the source, non-destructively, and
// reports what it changed. Columns are never removed from the target; only
// additions occur.
func ReplaySchema(ctx context.Context, src database.Querier, dst database.Execer, table string, logger *log.Logger) (*SchemaChanges, error) {
	changes := &SchemaChanges{}

	sourceCols, err := database.Columns(ctx, src, table)
	if err != nil {
		return nil, fmt.Errorf("introspecting source columns for %s: %w", table, err)
	}
	if len(sourceCols) == 0 {
		logger.Printf("table %s not found in source", table)
		return changes, nil
	}

	exists, err := database.TableExists(ctx, dst, table)
	if err != nil {
		return nil, fmt.Errorf("checking target existence for %s: %w", table, err)
	}

	if !exists {
		if err := createTable(ctx, src, dst, table, sourceCols, changes, logger); err != nil {
			return changes, err
		}
	} else {
		if err := addMissingColumns(ctx, src, dst, table, sourceCols, changes, logger); err != nil {
			return changes, err
		}
	}

	if err := syncIndexes(ctx, src, dst, table, changes, logger); err != nil {
		return changes, err
	}

	return changes, nil
}

func createTable(ctx context.Context, src database.Querier, dst database.Execer, table string, sourceCols []database.ColumnDescriptor, changes *SchemaChanges, logger *log.Logger) error {
	sequences, err := database.Sequences(ctx, src, table)
	if err != nil {
		return fmt.Errorf("introspecting sequences for %s: %w", table, err)
	}
	for _, seq := range sequences {
		ddl := fmt.Sprintf(`CREATE SEQUENCE IF NOT EXISTS %s INCREMENT BY %d MINVALUE %d START WITH %d`,
			database.QuoteIdent(seq.Name), seq.Increment, seq.MinimumValue, seq.StartValue)
		if _, err := dst.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("creating sequence %s: %w", seq.Name, err)
		}
		changes.SequencesCreated++
	}

	var colDefs []string
	var serialCols []string
	for _, col := range sourceCols {
		def := fmt.Sprintf("%s %s", database.QuoteIdent(col.Name), mapColumnType(col))
		if !col.IsNullable {
			def += " NOT NULL"
		}
		if col.ColumnDefault != nil {
			if isNextvalDefault(*col.ColumnDefault) {
				serialCols = append(serialCols, col.Name)
			} else {
				def += " DEFAULT " + *col.ColumnDefault
			}
		}
		colDefs = append(colDefs, def)
	}

	ddl := fmt.Sprintf(`CREATE TABLE %s (%s)`, database.QuoteIdent(table), strings.Join(colDefs, ", "))
	if _, err := dst.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating table %s: %w", table, err)
	}
	changes.TableCreated = true

	for _, col := range sourceCols {
		if col.ColumnDefault == nil || !isNextvalDefault(*col.ColumnDefault) {
			continue
		}
		seqName, ok := extractSequenceName(*col.ColumnDefault)
		if !ok {
			continue
		}
		if _, err := dst.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s SET DEFAULT nextval('%s'::regclass)`,
			database.QuoteIdent(table), database.QuoteIdent(col.Name), seqName)); err != nil {
			return fmt.Errorf("setting default for %s.%s: %w", table, col.Name, err)
		}
		if _, err := dst.Exec(ctx, fmt.Sprintf(`ALTER SEQUENCE %s OWNED BY %s`,
			database.QuoteIdent(seqName), database.QuoteQualified(table, col.Name))); err != nil {
			return fmt.Errorf("assigning sequence ownership for %s.%s: %w", table, col.Name, err)
		}
	}

	if len(serialCols) > 0 {
		pkName := table + "_pkey"
		quoted := make([]string, len(serialCols))
		for i, c := range serialCols {
			quoted[i] = database.QuoteIdent(c)
		}
		ddl := fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s PRIMARY KEY (%s)`,
			database.QuoteIdent(table), database.QuoteIdent(pkName), strings.Join(quoted, ", "))
		if _, err := dst.Exec(ctx, ddl); err != nil {
			changes.Errors = append(changes.Errors, fmt.Sprintf("declare primary key: %v", err))
		}
	}

	return nil
}

func addMissingColumns(ctx context.Context, src database.Querier, dst database.Execer, table string, sourceCols []database.ColumnDescriptor, changes *SchemaChanges, logger *log.Logger) error {
	targetCols, err := database.Columns(ctx, dst, table)
	if err != nil {
		return fmt.Errorf("introspecting target columns for %s: %w", table, err)
	}
	have := make(map[string]bool, len(targetCols))
	for _, c := range targetCols {
		have[c.Name] = true
	}

	for _, col := range sourceCols {
		if have[col.Name] {
			continue
		}

		if col.ColumnDefault != nil && isNextvalDefault(*col.ColumnDefault) {
			if err := ensureSequenceExists(ctx, src, dst, table, col.Name); err != nil {
				changes.Errors = append(changes.Errors, fmt.Sprintf("add column %s: %v", col.Name, err))
				continue
			}
		}

		def := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", database.QuoteIdent(table), database.QuoteIdent(col.Name), mapColumnType(col))
		hasDefault := false
		if col.ColumnDefault != nil {
			if isNextvalDefault(*col.ColumnDefault) {
				if seqName, ok := extractSequenceName(*col.ColumnDefault); ok {
					def += fmt.Sprintf(" DEFAULT nextval('%s'::regclass)", seqName)
					hasDefault = true
				}
			} else {
				def += " DEFAULT " + *col.ColumnDefault
				hasDefault = true
			}
		}
		if !col.IsNullable {
			if !hasDefault {
				if fill, ok := nullFillDefault(col); ok {
					def += " DEFAULT " + fill
					hasDefault = true
				}
			}
			def += " NOT NULL"
		}

		if _, err := dst.Exec(ctx, def); err != nil {
			changes.Errors = append(changes.Errors, fmt.Sprintf("add column %s: %v", col.Name, err))
			continue
		}
		changes.ColumnsAdded = append(changes.ColumnsAdded, col.Name)
	}
	return nil
}

func ensureSequenceExists(ctx context.Context, src database.Querier, dst database.Execer, table, column string) error {
	sequences, err := database.Sequences(ctx, src, table)
	if err != nil {
		return fmt.Errorf("introspecting sequences: %w", err)
	}
	for _, seq := range sequences {
		if seq.OwnerColumn != column {
			continue
		}
		ddl := fmt.Sprintf(`CREATE SEQUENCE IF NOT EXISTS %s INCREMENT BY %d MINVALUE %d START WITH %d`,
			database.QuoteIdent(seq.Name), seq.Increment, seq.MinimumValue, seq.StartValue)
		if _, err := dst.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("creating sequence %s: %w", seq.Name, err)
		}
		return nil
	}
	return nil
}

func syncIndexes(ctx context.Context, src database.Querier, dst database.Execer, table string, changes *SchemaChanges, logger *log.Logger) error {
	sourceIdx, err := database.Indexes(ctx, src, table)
	if err != nil {
		return fmt.Errorf("introspecting source indexes for %s: %w", table, err)
	}
	targetIdx, err := database.Indexes(ctx, dst, table)
	if err != nil {
		return fmt.Errorf("introspecting target indexes for %s: %w", table, err)
	}
	have := make(map[string]bool, len(targetIdx))
	for _, idx := range targetIdx {
		have[idx.Name] = true
	}

	for _, idx := range sourceIdx {
		if have[idx.Name] {
			continue
		}
		logger.Printf("replaying index %s on %s", idx.Name, table)
		if _, err := dst.Exec(ctx, idx.Definition); err != nil {
			changes.Errors = append(changes.Errors, fmt.Sprintf("create index %s: %v", idx.Name, err))
		}
	}
	return nil
}

var nextvalRe = regexp.MustCompile(`(?i)^nextval\('([^']+)'::regclass\)$`)

func isNextvalDefault(def string) bool {
	return nextvalRe.MatchString(strings.TrimSpace(def))
}

// extractSequenceName pulls the sequence name out of a nextval('...') default
// expression, taking the last dotted component and stripping quotes.
func extractSequenceName(def string) (string, bool) {
	matches := nextvalRe.FindStringSubmatch(strings.TrimSpace(def))
	if len(matches) != 2 {
		return "", false
	}
	parts := strings.Split(matches[1], ".")
	last := parts[len(parts)-1]
	last = strings.Trim(last, `"`)
	return last, true
}

// mapColumnType renders a source data_type into the SQL type emitted for the
// target column, per the type mapping table.
func mapColumnType(col database.ColumnDescriptor) string {
	switch strings.ToLower(col.DataType) {
	case "character varying":
		n := 255
		if col.CharacterMaximumLength != nil {
			n = *col.CharacterMaximumLength
		}
		return fmt.Sprintf("varchar(%d)", n)
	case "character":
		n := 1
		if col.CharacterMaximumLength != nil {
			n = *col.CharacterMaximumLength
		}
		return fmt.Sprintf("char(%d)", n)
	case "numeric":
		p, s := 10, 2
		if col.NumericPrecision != nil {
			p = *col.NumericPrecision
		}
		if col.NumericScale != nil {
			s = *col.NumericScale
		}
		return fmt.Sprintf("numeric(%d,%d)", p, s)
	case "integer", "bigint", "smallint", "boolean", "text", "json", "jsonb", "uuid", "date", "bytea", "real":
		return strings.ToLower(col.DataType)
	case "double precision":
		return "double precision"
	case "timestamp without time zone":
		return "timestamp"
	case "timestamp with time zone":
		return "timestamptz"
	case "time without time zone":
		return "time"
	case "array":
		return strings.TrimPrefix(col.UDTName, "_") + "[]"
	default:
		if col.UDTName != "" {
			return col.UDTName
		}
		return col.DataType
	}
}

// nullFillDefault returns the default value synthesized for a NOT NULL
// column added during an incremental schema run with no existing default.
func nullFillDefault(col database.ColumnDescriptor) (string, bool) {
	dt := strings.ToLower(col.DataType)
	switch {
	case isNumericKind(dt):
		return "0", true
	case dt == "boolean":
		return "false", true
	case isStringKind(dt):
		return "''", true
	case dt == "json" || dt == "jsonb":
		return "'{}'", true
	case isTimestampKind(dt):
		return "NOW()", true
	case dt == "date":
		return "CURRENT_DATE", true
	case dt == "uuid":
		return "gen_random_uuid()", true
	default:
		return "", false
	}
}

func isNumericKind(dt string) bool {
	switch dt {
	case "integer", "bigint", "smallint", "numeric", "real", "double precision", "decimal":
		return true
	default:
		return false
	}
}

func isStringKind(dt string) bool {
	switch dt {
	case "character varying", "character", "text", "citext":
		return true
	default:
		return false
	}
}

func isTimestampKind(dt string) bool {
	switch dt {
	case "timestamp without time zone", "timestamp with time zone":
		return true
	default:
		return false
	}
}
