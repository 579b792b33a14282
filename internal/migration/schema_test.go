package migration

import (
	"context"
	"strings"
	"testing"

	"github.com/leandro-jm/bulk-migration/internal/database"
)

func intPtr(n int) *int { return &n }

func TestMapColumnType(t *testing.T) {
	cases := []struct {
		name string
		col  database.ColumnDescriptor
		want string
	}{
		{"varchar with length", database.ColumnDescriptor{DataType: "character varying", CharacterMaximumLength: intPtr(64)}, "varchar(64)"},
		{"varchar no length defaults 255", database.ColumnDescriptor{DataType: "character varying"}, "varchar(255)"},
		{"numeric with precision/scale", database.ColumnDescriptor{DataType: "numeric", NumericPrecision: intPtr(12), NumericScale: intPtr(4)}, "numeric(12,4)"},
		{"integer passthrough", database.ColumnDescriptor{DataType: "integer"}, "integer"},
		{"timestamp without tz", database.ColumnDescriptor{DataType: "timestamp without time zone"}, "timestamp"},
		{"timestamp with tz", database.ColumnDescriptor{DataType: "timestamp with time zone"}, "timestamptz"},
		{"array of text", database.ColumnDescriptor{DataType: "ARRAY", UDTName: "_text"}, "text[]"},
		{"unknown falls back to udt_name", database.ColumnDescriptor{DataType: "USER-DEFINED", UDTName: "custom_domain"}, "custom_domain"},
	}
	for _, c := range cases {
		if got := mapColumnType(c.col); got != c.want {
			t.Errorf("%s: mapColumnType = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestNullFillDefault(t *testing.T) {
	cases := []struct {
		name     string
		dataType string
		want     string
		ok       bool
	}{
		{"integer", "integer", "0", true},
		{"boolean", "boolean", "false", true},
		{"varchar", "character varying", "''", true},
		{"jsonb", "jsonb", "'{}'", true},
		{"timestamp", "timestamp with time zone", "NOW()", true},
		{"date", "date", "CURRENT_DATE", true},
		{"uuid", "uuid", "gen_random_uuid()", true},
		{"unsupported", "bytea", "", false},
	}
	for _, c := range cases {
		got, ok := nullFillDefault(database.ColumnDescriptor{DataType: c.dataType})
		if ok != c.ok || got != c.want {
			t.Errorf("%s: nullFillDefault = (%q, %v), want (%q, %v)", c.name, got, ok, c.want, c.ok)
		}
	}
}

func TestIsNextvalDefault(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{`nextval('users_id_seq'::regclass)`, true},
		{`NEXTVAL('users_id_seq'::regclass)`, true},
		{"'active'::character varying", false},
		{"0", false},
	}
	for _, c := range cases {
		if got := isNextvalDefault(c.in); got != c.want {
			t.Errorf("isNextvalDefault(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

// TestReplaySchemaCreatesMissingTable exercises ReplaySchema's createTable
// branch: the target table doesn't exist, so it's created from scratch with
// the source's column set, and no index or sequence work is needed.
func TestReplaySchemaCreatesMissingTable(t *testing.T) {
	cols := []database.ColumnDescriptor{
		{Name: "id", DataType: "integer", IsNullable: false},
		{Name: "name", DataType: "character varying", IsNullable: true, CharacterMaximumLength: intPtr(100)},
	}
	src := &fakeConn{columns: cols}
	dst := &fakeConn{} // tableExists defaults to false

	changes, err := ReplaySchema(context.Background(), src, dst, "widgets", testLogger())
	if err != nil {
		t.Fatalf("ReplaySchema: %v", err)
	}
	if !changes.TableCreated {
		t.Errorf("changes.TableCreated = false, want true")
	}
	if len(changes.ColumnsAdded) != 0 {
		t.Errorf("changes.ColumnsAdded = %v, want none", changes.ColumnsAdded)
	}
	if len(dst.execLog) != 1 {
		t.Fatalf("target Exec calls = %d, want 1", len(dst.execLog))
	}
	want := `CREATE TABLE "widgets" ("id" integer NOT NULL, "name" varchar(100))`
	if dst.execLog[0] != want {
		t.Errorf("executed DDL = %q, want %q", dst.execLog[0], want)
	}
}

// TestReplaySchemaAddsMissingColumn exercises ReplaySchema's addMissingColumns
// branch: the target table already exists but is missing a column the source
// has, which must be added non-destructively without touching existing columns.
func TestReplaySchemaAddsMissingColumn(t *testing.T) {
	sourceCols := []database.ColumnDescriptor{
		{Name: "id", DataType: "integer", IsNullable: false},
		{Name: "email", DataType: "text", IsNullable: true},
	}
	src := &fakeConn{columns: sourceCols}
	dst := &fakeConn{
		tableExists: true,
		columns:     []database.ColumnDescriptor{{Name: "id", DataType: "integer", IsNullable: false}},
	}

	changes, err := ReplaySchema(context.Background(), src, dst, "accounts", testLogger())
	if err != nil {
		t.Fatalf("ReplaySchema: %v", err)
	}
	if changes.TableCreated {
		t.Errorf("changes.TableCreated = true, want false")
	}
	if len(changes.ColumnsAdded) != 1 || changes.ColumnsAdded[0] != "email" {
		t.Errorf("changes.ColumnsAdded = %v, want [email]", changes.ColumnsAdded)
	}
	if len(dst.execLog) != 1 {
		t.Fatalf("target Exec calls = %d, want 1", len(dst.execLog))
	}
	if !strings.Contains(dst.execLog[0], `ADD COLUMN "email" text`) {
		t.Errorf("executed DDL = %q, want ADD COLUMN \"email\" text", dst.execLog[0])
	}
}

func TestExtractSequenceName(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantOK  bool
	}{
		{`nextval('"public"."users_id_seq"'::regclass)`, "users_id_seq", true},
		{`nextval('users_id_seq'::regclass)`, "users_id_seq", true},
		{"not a default", "", false},
	}
	for _, c := range cases {
		got, ok := extractSequenceName(c.in)
		if ok != c.wantOK || got != c.want {
			t.Errorf("extractSequenceName(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.wantOK)
		}
	}
}
