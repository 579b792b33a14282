package migration

import (
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/leandro-jm/bulk-migration/internal/database"
)

// rowPreparer implements the Type Preparer (C1): it normalizes a source row
// into a form acceptable to the target insert, given the table's precomputed
// JSON/ARRAY column classification. Base spec §9 calls for precomputing this
// schedule once per table and iterating positionally, instead of walking a
// map and doing string comparisons on every cell.
type rowPreparer struct {
	table       string
	columnNames []string
	isJSON      []bool
	isArray     []bool
	logger      *log.Logger
}

// newRowPreparer builds the column-indexed conversion schedule for table
// from its column list and the classification C2 computed once.
func newRowPreparer(table string, cols []database.ColumnDescriptor, jsonColumns, arrayColumns map[string]bool, logger *log.Logger) *rowPreparer {
	p := &rowPreparer{table: table, logger: logger}
	for _, c := range cols {
		p.columnNames = append(p.columnNames, c.Name)
		p.isJSON = append(p.isJSON, jsonColumns[c.Name])
		p.isArray = append(p.isArray, arrayColumns[c.Name])
	}
	return p
}

// Prepare converts one row, given positionally as pgx would return it via
// Rows.Values(), into the values an insert/copy can accept.
func (p *rowPreparer) Prepare(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = p.prepareValue(i, v)
	}
	return out
}

func (p *rowPreparer) prepareValue(idx int, v any) any {
	if v == nil {
		return nil
	}
	switch {
	case idx < len(p.isJSON) && p.isJSON[idx]:
		return p.prepareJSON(idx, v)
	case idx < len(p.isArray) && p.isArray[idx]:
		return prepareArray(v)
	default:
		return p.prepareGeneric(idx, v)
	}
}

// prepareJSON implements the JSON/JSONB column rules of base spec §4.1.
func (p *rowPreparer) prepareJSON(idx int, v any) any {
	switch val := v.(type) {
	case string:
		if json.Valid([]byte(val)) {
			return val
		}
		b, err := json.Marshal(val)
		if err != nil {
			p.logFailure(idx, err)
			return nil
		}
		return string(b)
	case []byte:
		if json.Valid(val) {
			return string(val)
		}
		b, err := json.Marshal(string(val))
		if err != nil {
			p.logFailure(idx, err)
			return nil
		}
		return string(b)
	default:
		if isScalar(v) {
			return v
		}
		b, err := json.Marshal(v)
		if err != nil {
			p.logFailure(idx, err)
			return nil
		}
		return string(b)
	}
}

// prepareGeneric implements the fallback rule: a non-JSON, non-ARRAY column
// whose value is a structured object (not a timestamp) gets serialized too.
func (p *rowPreparer) prepareGeneric(idx int, v any) any {
	if isScalar(v) {
		return v
	}
	b, err := json.Marshal(v)
	if err != nil {
		p.logFailure(idx, err)
		return nil
	}
	return string(b)
}

func (p *rowPreparer) logFailure(idx int, err error) {
	if p.logger == nil {
		return
	}
	col := "?"
	if idx < len(p.columnNames) {
		col = p.columnNames[idx]
	}
	p.logger.Printf("type preparer: %s.%s: serialization failed, substituting null: %v", p.table, col, err)
}

// prepareArray implements the ARRAY column rule of base spec §4.1.
func prepareArray(v any) any {
	if s, ok := v.(string); ok {
		if strings.HasPrefix(s, "{") {
			return s
		}
		return s
	}
	elems, ok := toSlice(v)
	if !ok {
		return v
	}
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = arrayElementLiteral(e)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func arrayElementLiteral(e any) string {
	if e == nil {
		return "NULL"
	}
	s, ok := e.(string)
	if !ok {
		return fmt.Sprintf("%v", e)
	}
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

// isScalar reports whether v should pass through unchanged rather than be
// JSON-serialized: anything that isn't a map or a non-byte slice, plus
// time.Time explicitly, since timestamps are structured but not JSON-worthy.
func isScalar(v any) bool {
	if _, ok := v.(time.Time); ok {
		return true
	}
	if _, ok := v.([]byte); ok {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Ptr:
		return false
	default:
		return true
	}
}

// toSlice returns v's elements if v is a native ordered sequence ([]any or a
// concretely typed slice), for the ARRAY literal encoder.
func toSlice(v any) ([]any, bool) {
	if elems, ok := v.([]any); ok {
		return elems, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
