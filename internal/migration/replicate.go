package migration

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leandro-jm/bulk-migration/internal/database"
)

const overwriteBatchSize = 500

// dataConn is satisfied by *pgxpool.Conn: the narrow surface the Data
// Replicator needs from a single, dedicated connection (session-scoped
// settings like session_replication_role only make sense pinned to one
// physical connection, never a pool).
type dataConn interface {
	database.Execer
	CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error)
}

// RunSchemaOnly implements the schema rule (C4.4.4): reconcile structure
// only, report columns added, never a row count.
func RunSchemaOnly(ctx context.Context, src database.Querier, dst database.Execer, table string, logger *log.Logger) (int64, error) {
	changes, err := ReplaySchema(ctx, src, dst, table, logger)
	if err != nil {
		return 0, err
	}
	for _, e := range changes.Errors {
		logger.Printf("schema replay for %s: %s", table, e)
	}
	return int64(len(changes.ColumnsAdded)), nil
}

// RunOverwrite implements the overwrite rule (C4.4.1).
func RunOverwrite(ctx context.Context, src database.Querier, dst dataConn, table string, jsonColumns, arrayColumns map[string]bool, logger *log.Logger) (int64, error) {
	exists, err := database.TableExists(ctx, dst, table)
	if err != nil {
		return 0, fmt.Errorf("checking target existence for %s: %w", table, err)
	}
	if !exists {
		logger.Printf("target table %s missing, invoking schema replay", table)
		if _, err := ReplaySchema(ctx, src, dst, table, logger); err != nil {
			return 0, err
		}
	}

	empty, err := database.TableIsEmpty(ctx, dst, table)
	if err != nil {
		return 0, fmt.Errorf("checking target emptiness for %s: %w", table, err)
	}
	if !empty {
		if err := withReplicaSession(ctx, dst, func() error {
			_, err := dst.Exec(ctx, fmt.Sprintf(`TRUNCATE TABLE %s CASCADE`, database.QuoteIdent(table)))
			return err
		}); err != nil {
			return 0, fmt.Errorf("truncating %s: %w", table, err)
		}
		if err := resetSequences(ctx, src, dst, table); err != nil {
			logger.Printf("resetting sequences for %s: %v", table, err)
		}
	}

	cols, err := database.Columns(ctx, src, table)
	if err != nil {
		return 0, fmt.Errorf("introspecting columns for %s: %w", table, err)
	}
	colNames := columnNames(cols)
	prep := newRowPreparer(table, cols, jsonColumns, arrayColumns, logger)

	var migrated int64
	offset := 0
	for {
		batch, err := fetchBatch(ctx, src, table, colNames, offset, overwriteBatchSize)
		if err != nil {
			return migrated, fmt.Errorf("fetching batch for %s at offset %d: %w", table, offset, err)
		}
		if len(batch) == 0 {
			break
		}

		prepared := make([][]any, len(batch))
		for i, row := range batch {
			prepared[i] = prep.Prepare(row)
		}

		n, err := insertBatch(ctx, dst, table, colNames, prepared, logger)
		migrated += n
		if err != nil {
			return migrated, fmt.Errorf("inserting batch for %s: %w", table, err)
		}

		offset += len(batch)
		if len(batch) < overwriteBatchSize {
			break
		}
	}

	if err := resetSequences(ctx, src, dst, table); err != nil {
		logger.Printf("resetting sequences for %s: %v", table, err)
	}
	if err := replayUniqueConstraints(ctx, src, dst, table, logger); err != nil {
		logger.Printf("replaying unique constraints for %s: %v", table, err)
	}

	return migrated, nil
}

// RunUpsert implements the upsert rule (C4.4.2). It reads the whole source
// table into memory, per base spec §9's documented open limitation.
func RunUpsert(ctx context.Context, src database.Querier, dst dataConn, table string, jsonColumns, arrayColumns map[string]bool, logger *log.Logger) (int64, error) {
	pkCols, err := database.PrimaryKey(ctx, src, table)
	if err != nil {
		return 0, fmt.Errorf("resolving primary key for %s: %w", table, err)
	}
	if len(pkCols) == 0 {
		pkCols = []string{"id"}
	}

	cols, err := database.Columns(ctx, src, table)
	if err != nil {
		return 0, fmt.Errorf("introspecting columns for %s: %w", table, err)
	}
	colNames := columnNames(cols)
	prep := newRowPreparer(table, cols, jsonColumns, arrayColumns, logger)

	rows, err := src.Query(ctx, selectAllSQL(table, colNames))
	if err != nil {
		return 0, fmt.Errorf("reading source rows for %s: %w", table, err)
	}
	defer rows.Close()

	insertSQL := buildUpsertSQL(table, colNames, pkCols)

	var migrated int64
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return migrated, fmt.Errorf("reading row values for %s: %w", table, err)
		}
		prepared := prep.Prepare(vals)
		if _, err := dst.Exec(ctx, insertSQL, prepared...); err != nil {
			logger.Printf("upsert row failed for %s: %v", table, err)
			continue
		}
		migrated++
	}
	return migrated, rows.Err()
}

// RunInsertIgnore implements the insert-ignore rule (C4.4.3). It reads the
// whole source table into memory, per base spec §9's documented open
// limitation.
func RunInsertIgnore(ctx context.Context, src database.Querier, dst dataConn, table string, jsonColumns, arrayColumns map[string]bool, logger *log.Logger) (int64, error) {
	cols, err := database.Columns(ctx, src, table)
	if err != nil {
		return 0, fmt.Errorf("introspecting columns for %s: %w", table, err)
	}
	colNames := columnNames(cols)
	prep := newRowPreparer(table, cols, jsonColumns, arrayColumns, logger)

	rows, err := src.Query(ctx, selectAllSQL(table, colNames))
	if err != nil {
		return 0, fmt.Errorf("reading source rows for %s: %w", table, err)
	}
	defer rows.Close()

	insertSQL := buildInsertSQL(table, colNames)

	var migrated int64
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return migrated, fmt.Errorf("reading row values for %s: %w", table, err)
		}
		prepared := prep.Prepare(vals)
		if _, err := dst.Exec(ctx, insertSQL, prepared...); err != nil {
			if isDuplicateKeyError(err) {
				continue
			}
			logger.Printf("insert failed for %s: %v", table, err)
			continue
		}
		migrated++
	}
	return migrated, rows.Err()
}

// withReplicaSession scopes session_replication_role=replica to fn, on the
// single connection dst is bound to, with guaranteed release on every exit
// path including a panic unwinding through fn.
func withReplicaSession(ctx context.Context, dst database.Execer, fn func() error) error {
	if _, err := dst.Exec(ctx, `SET session_replication_role = replica`); err != nil {
		return fmt.Errorf("entering replica session: %w", err)
	}
	defer func() {
		_, _ = dst.Exec(ctx, `SET session_replication_role = origin`)
	}()
	return fn()
}

func fetchBatch(ctx context.Context, src database.Querier, table string, cols []string, offset, limit int) ([][]any, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s LIMIT %d OFFSET %d`, quotedColumnList(cols), database.QuoteIdent(table), limit, offset)
	rows, err := src.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

// insertBatch bulk-inserts rows via COPY within a replica session; on
// failure it falls back to per-row inserts within the same session, counting
// only rows that succeed, with no retry.
func insertBatch(ctx context.Context, dst dataConn, table string, cols []string, rows [][]any, logger *log.Logger) (int64, error) {
	var migrated int64
	err := withReplicaSession(ctx, dst, func() error {
		copied, copyErr := dst.CopyFrom(ctx, pgx.Identifier{table}, cols, pgx.CopyFromRows(rows))
		if copyErr == nil {
			migrated = copied
			return nil
		}
		logger.Printf("batch insert failed for %s, falling back to per-row insert: %v", table, copyErr)

		insertSQL := buildInsertSQL(table, cols)
		var succeeded int64
		for _, row := range rows {
			if _, err := dst.Exec(ctx, insertSQL, row...); err != nil {
				logger.Printf("row insert failed for %s: %v payload=%s", table, err, truncatedPayload(row))
				continue
			}
			succeeded++
		}
		migrated = succeeded
		return nil
	})
	return migrated, err
}

func truncatedPayload(row []any) string {
	b, err := json.Marshal(row)
	if err != nil {
		return "<unserializable>"
	}
	s := string(b)
	if len(s) > 200 {
		return s[:200]
	}
	return s
}

// resetSequences sets every sequence owned by table's columns to
// max(column)+1, or 1 when the column is empty.
func resetSequences(ctx context.Context, src database.Querier, dst database.Execer, table string) error {
	sequences, err := database.Sequences(ctx, src, table)
	if err != nil {
		return fmt.Errorf("introspecting sequences for %s: %w", table, err)
	}
	for _, seq := range sequences {
		var maxVal *int64
		err := dst.QueryRow(ctx, fmt.Sprintf(`SELECT max(%s) FROM %s`, database.QuoteIdent(seq.OwnerColumn), database.QuoteIdent(table))).Scan(&maxVal)
		if err != nil {
			return fmt.Errorf("computing max(%s) on %s: %w", seq.OwnerColumn, table, err)
		}
		next := int64(1)
		if maxVal != nil {
			next = *maxVal + 1
		}
		escaped := strings.ReplaceAll(seq.Name, "'", "''")
		if _, err := dst.Exec(ctx, fmt.Sprintf(`SELECT setval('%s', %d, false)`, escaped, next)); err != nil {
			return fmt.Errorf("resetting sequence %s: %w", seq.Name, err)
		}
	}
	return nil
}

// replayUniqueConstraints replays the source's unique constraints on the
// target, ignoring "already exists" failures.
func replayUniqueConstraints(ctx context.Context, src database.Querier, dst database.Execer, table string, logger *log.Logger) error {
	constraints, err := database.UniqueConstraints(ctx, src, table)
	if err != nil {
		return fmt.Errorf("introspecting unique constraints for %s: %w", table, err)
	}
	for _, c := range constraints {
		cols := make([]string, len(c.Columns))
		for i, col := range c.Columns {
			cols[i] = database.QuoteIdent(col)
		}
		ddl := fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)`,
			database.QuoteIdent(table), database.QuoteIdent(c.Name), strings.Join(cols, ", "))
		if _, err := dst.Exec(ctx, ddl); err != nil {
			if isAlreadyExistsError(err) {
				continue
			}
			logger.Printf("replaying unique constraint %s on %s: %v", c.Name, table, err)
		}
	}
	return nil
}

func isAlreadyExistsError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42710", "42P07", "42P16":
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

func columnNames(cols []database.ColumnDescriptor) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func quotedColumnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = database.QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

func selectAllSQL(table string, cols []string) string {
	return fmt.Sprintf(`SELECT %s FROM %s`, quotedColumnList(cols), database.QuoteIdent(table))
}

func buildInsertSQL(table string, cols []string) string {
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		database.QuoteIdent(table), quotedColumnList(cols), strings.Join(placeholders, ", "))
}

func buildUpsertSQL(table string, cols, pkCols []string) string {
	pkSet := make(map[string]struct{}, len(pkCols))
	for _, c := range pkCols {
		pkSet[c] = struct{}{}
	}

	placeholders := make([]string, len(cols))
	var updateCols []string
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if _, ok := pkSet[col]; !ok {
			updateCols = append(updateCols, fmt.Sprintf("%s = EXCLUDED.%s", database.QuoteIdent(col), database.QuoteIdent(col)))
		}
	}

	conflictCols := make([]string, len(pkCols))
	for i, c := range pkCols {
		conflictCols[i] = database.QuoteIdent(c)
	}

	action := "DO NOTHING"
	if len(updateCols) > 0 {
		action = "DO UPDATE SET " + strings.Join(updateCols, ", ")
	}

	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s`,
		database.QuoteIdent(table), quotedColumnList(cols), strings.Join(placeholders, ", "),
		strings.Join(conflictCols, ", "), action)
}
